/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package caption

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-captions/internal/events"
	"github.com/loqalabs/loqa-captions/internal/logging"
	"github.com/loqalabs/loqa-captions/internal/security"
	"github.com/loqalabs/loqa-captions/internal/session"
	"github.com/loqalabs/loqa-captions/internal/timer"
	"go.uber.org/zap"
)

// Defaults used when Options leave a field unset
const (
	DefaultDisplayDuration = 5 * time.Second
	DefaultInterimOpacity  = 0.7
)

// Options configure a Manager
type Options struct {
	DisplayDuration time.Duration
	InterimOpacity  float64
	Scheduler       timer.Scheduler
}

// Manager drives the single caption slot from transcript events.
//
// Every event bumps generation. Translation results and expiry timers carry
// the generation they were created for and are dropped when it no longer
// matches, so events render strictly in arrival order.
type Manager struct {
	mu         sync.Mutex
	renderer   Renderer
	translator Translator
	opts       Options

	settings session.Settings
	state    State
	caption  *Caption

	generation        uint64
	expiry            timer.Timer
	cancelTranslation context.CancelFunc
	inflight          sync.WaitGroup
}

// NewManager creates an idle manager
func NewManager(renderer Renderer, translator Translator, settings session.Settings, opts Options) *Manager {
	if opts.DisplayDuration <= 0 {
		opts.DisplayDuration = DefaultDisplayDuration
	}
	if opts.InterimOpacity <= 0 || opts.InterimOpacity > 1 {
		opts.InterimOpacity = DefaultInterimOpacity
	}
	if opts.Scheduler == nil {
		opts.Scheduler = timer.Real()
	}
	return &Manager{
		renderer:   renderer,
		translator: translator,
		opts:       opts,
		settings:   settings,
		state:      Idle,
	}
}

// State returns the current slot state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns the caption on screen, if any
func (m *Manager) Current() (Caption, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.caption == nil {
		return Caption{}, false
	}
	return *m.caption, true
}

// HandleTranscript applies one transcript event. Interim events replace the
// caption immediately; final events are translated first.
func (m *Manager) HandleTranscript(event events.TranscriptEvent) {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.supersedeLocked()
	gen := m.generation

	if !event.IsFinal {
		m.caption = &Caption{DisplayText: text, IsInterim: true}
		m.state = Interim
		m.renderLocked("interim")
		return
	}

	settings := m.settings
	if m.translator == nil || !settings.ShouldTranslate() {
		m.showFinalLocked(text, "final_untranslated")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelTranslation = cancel
	m.state = Translating
	logging.LogCaptionEvent(m.state.String(), "translate",
		zap.String("target_lang", settings.TargetLanguage),
		zap.Int("text_length", len(text)),
	)

	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		result := m.translator.Translate(ctx, text, settings.TargetLanguage)
		m.resolve(gen, result.Text, result.Fallback)
	}()
}

func (m *Manager) resolve(gen uint64, text string, fallback bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		logging.LogCaptionEvent(m.state.String(), "discard_stale_translation")
		return
	}

	if m.cancelTranslation != nil {
		m.cancelTranslation()
		m.cancelTranslation = nil
	}

	action := "final"
	if fallback {
		action = "final_fallback"
	}
	m.showFinalLocked(text, action)
}

func (m *Manager) showFinalLocked(text, action string) {
	gen := m.generation
	m.caption = &Caption{
		DisplayText: text,
		ExpiresAt:   m.opts.Scheduler.Now().Add(m.opts.DisplayDuration),
	}
	m.state = Final
	m.renderLocked(action)
	m.expiry = m.opts.Scheduler.AfterFunc(m.opts.DisplayDuration, func() { m.expire(gen) })
}

func (m *Manager) expire(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		return
	}
	m.expiry = nil
	m.clearLocked("expire")
}

// UpdateSettings swaps the settings used for rendering and translation and
// restyles the visible caption right away.
func (m *Manager) UpdateSettings(settings session.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings = settings
	if m.caption != nil {
		m.renderLocked("restyle")
	}
}

// Clear removes the caption, cancels its timer and discards any in-flight
// translation. Clearing an empty slot does nothing.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.supersedeLocked()
	m.clearLocked("clear")
}

// Show makes the caption surface visible
func (m *Manager) Show() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.renderer != nil {
		m.renderer.SetVisible(true)
	}
}

// Deactivate clears the slot and hides the surface
func (m *Manager) Deactivate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.supersedeLocked()
	m.clearLocked("deactivate")
	if m.renderer != nil {
		m.renderer.SetVisible(false)
	}
}

// Wait blocks until in-flight translations have returned
func (m *Manager) Wait() {
	m.inflight.Wait()
}

// supersedeLocked invalidates the pending timer and translation of the
// previous caption transition.
func (m *Manager) supersedeLocked() {
	m.generation++
	if m.expiry != nil {
		m.expiry.Stop()
		m.expiry = nil
	}
	if m.cancelTranslation != nil {
		m.cancelTranslation()
		m.cancelTranslation = nil
	}
}

func (m *Manager) clearLocked(action string) {
	if m.expiry != nil {
		m.expiry.Stop()
		m.expiry = nil
	}
	m.state = Idle
	if m.caption == nil {
		return
	}
	m.caption = nil
	logging.LogCaptionEvent(m.state.String(), action)
	if m.renderer != nil {
		m.renderer.Clear()
	}
}

func (m *Manager) renderLocked(action string) {
	logging.LogCaptionEvent(m.state.String(), action, zap.String("text", security.SanitizeLogInput(m.caption.DisplayText)))
	if m.renderer == nil {
		return
	}
	m.renderer.Render(m.frameLocked())
}

// frameLocked reads display attributes from the current settings, not
// from the time the caption was created.
func (m *Manager) frameLocked() Frame {
	display := m.settings.DisplayConfig
	frame := Frame{
		Text:            m.caption.DisplayText,
		Interim:         m.caption.IsInterim,
		Opacity:         1,
		FontSize:        display.FontSize,
		TextColor:       display.TextColor,
		BackgroundColor: display.BackgroundColor(),
		Position:        display.Position,
	}
	if m.caption.IsInterim {
		frame.Opacity = m.opts.InterimOpacity
	}
	if m.caption.HasExpiry() {
		expiresAt := m.caption.ExpiresAt
		frame.ExpiresAt = &expiresAt
	}
	return frame
}
