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

// Package pipeline composes recognition, captioning and settings into the
// toggle / updateSettings / getStatus surface of one monitored page.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/loqalabs/loqa-captions/internal/events"
	"github.com/loqalabs/loqa-captions/internal/logging"
	"github.com/loqalabs/loqa-captions/internal/recognition"
	"github.com/loqalabs/loqa-captions/internal/session"
	"go.uber.org/zap"
)

// User-visible status messages
const (
	MessageActivated   = "Subtitles activated"
	MessageDeactivated = "Subtitles deactivated"
	MessageUnsupported = "Speech recognition not supported in this browser"
	MessageStartFailed = "Failed to start subtitle recognition"
)

// Recognizer is the recognition side of the pipeline
type Recognizer interface {
	Supported() bool
	Start() error
	Stop()
	State() recognition.State
	SetTranscriptHandler(handler func(events.TranscriptEvent))
	SetStatusHandler(handler func(error))
}

// Captions is the caption side of the pipeline
type Captions interface {
	HandleTranscript(event events.TranscriptEvent)
	UpdateSettings(settings session.Settings)
	Show()
	Deactivate()
}

// SettingsStore persists the settings record
type SettingsStore interface {
	Load(ctx context.Context) (session.Settings, error)
	Save(ctx context.Context, settings session.Settings) error
}

// Notifier shows short non-blocking messages on the page
type Notifier interface {
	ShowStatus(message string)
	ShowError(message string)
}

// Status is the snapshot returned by getStatus
type Status struct {
	Active    bool `json:"active"`
	Supported bool `json:"supported"`
}

// Dependencies wire a Controller. Store and Notifier are optional.
type Dependencies struct {
	Recognizer Recognizer
	Captions   Captions
	Store      SettingsStore
	Notifier   Notifier
}

// Controller owns the Session of one page. Toggle and UpdateSettings are
// serialized by mu; listeners run with mu held and must not call back.
type Controller struct {
	mu         sync.Mutex
	recognizer Recognizer
	captions   Captions
	store      SettingsStore
	notifier   Notifier

	session   session.Session
	listeners []session.Listener
}

// New loads the persisted settings and wires recognition into captions
func New(ctx context.Context, deps Dependencies) (*Controller, error) {
	if deps.Recognizer == nil || deps.Captions == nil {
		return nil, errors.New("pipeline requires a recognizer and captions")
	}

	settings := session.DefaultSettings()
	if deps.Store != nil {
		loaded, err := deps.Store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load settings: %w", err)
		}
		settings = loaded
	}

	c := &Controller{
		recognizer: deps.Recognizer,
		captions:   deps.Captions,
		store:      deps.Store,
		notifier:   deps.Notifier,
		session:    session.New(settings),
	}

	c.captions.UpdateSettings(settings)
	c.listeners = append(c.listeners, func(s session.Session) {
		c.captions.UpdateSettings(s.Settings)
	})

	c.recognizer.SetTranscriptHandler(c.captions.HandleTranscript)
	c.recognizer.SetStatusHandler(c.reportRecognitionError)

	return c, nil
}

// OnSessionChange registers a listener for every new Session value
func (c *Controller) OnSessionChange(listener session.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, listener)
}

// Session returns the current Session value
func (c *Controller) Session() session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Status reports activation and recognition capability
func (c *Controller) Status() Status {
	// The capability probe may be a round trip to the host; keep it out of mu.
	supported := c.recognizer.Supported()

	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Active:    c.session.Active,
		Supported: supported,
	}
}

// Toggle activates an inactive pipeline and deactivates an active one. It
// returns the resulting active flag. When it returns false the recognizer
// is stopped and no caption is shown.
func (c *Controller) Toggle(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.Active {
		c.deactivateLocked()
		return false, nil
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := c.activateLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// activateLocked relies on Start to probe the recognition capability, so
// the host is asked once per activation attempt.
func (c *Controller) activateLocked() error {
	if err := c.recognizer.Start(); err != nil {
		c.recognizer.Stop()
		if errors.Is(err, recognition.ErrUnsupported) {
			logging.LogWarn("Speech recognition is not available")
			c.showError(MessageUnsupported)
			return err
		}
		logging.LogError(err, "Failed to start subtitles")
		c.showError(MessageStartFailed)
		return err
	}

	c.captions.Show()
	c.setSessionLocked(c.session.Activated())
	logging.LogPipelineEvent("activate", zap.String("session_id", c.session.ID))
	c.showStatus(MessageActivated)
	return nil
}

func (c *Controller) deactivateLocked() {
	id := c.session.ID
	c.recognizer.Stop()
	c.captions.Deactivate()
	c.setSessionLocked(c.session.Deactivated())
	logging.LogPipelineEvent("deactivate", zap.String("session_id", id))
	c.showStatus(MessageDeactivated)
}

// UpdateSettings merges patch into the current settings, notifies listeners
// and persists the result.
func (c *Controller) UpdateSettings(ctx context.Context, patch session.Patch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if patch.IsEmpty() {
		return nil
	}

	settings, err := c.session.Settings.Apply(patch)
	if err != nil {
		return err
	}

	c.setSessionLocked(c.session.WithSettings(settings))
	logging.LogPipelineEvent("update_settings",
		zap.String("target_lang", settings.TargetLanguage),
		zap.Bool("translation_enabled", settings.TranslationEnabled),
	)

	if c.store == nil {
		return nil
	}
	if err := c.store.Save(ctx, settings); err != nil {
		return fmt.Errorf("failed to persist settings: %w", err)
	}
	return nil
}

// Close stops recognition and clears the caption
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recognizer.Stop()
	c.captions.Deactivate()
	if c.session.Active {
		c.setSessionLocked(c.session.Deactivated())
	}
}

func (c *Controller) setSessionLocked(next session.Session) {
	c.session = next
	for _, listener := range c.listeners {
		listener(next)
	}
}

func (c *Controller) reportRecognitionError(err error) {
	var hostErr *recognition.HostError
	message := "Speech recognition error"
	if errors.As(err, &hostErr) && hostErr.Kind != "" {
		message = fmt.Sprintf("Speech recognition error: %s", hostErr.Kind)
	}
	c.showError(message)
}

func (c *Controller) showStatus(message string) {
	if c.notifier != nil {
		c.notifier.ShowStatus(message)
	}
}

func (c *Controller) showError(message string) {
	if c.notifier != nil {
		c.notifier.ShowError(message)
	}
}
