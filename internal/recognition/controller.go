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

package recognition

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-captions/internal/events"
	"github.com/loqalabs/loqa-captions/internal/logging"
	"github.com/loqalabs/loqa-captions/internal/timer"
	"go.uber.org/zap"
)

// State of the recognition session
type State int

const (
	Stopped State = iota
	Running
	Restarting
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Restarting:
		return "restarting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configure a Controller
type Options struct {
	RestartDelay  time.Duration
	NoSpeechDelay time.Duration
	Language      string
	AudioSource   string
	Scheduler     timer.Scheduler
}

// Controller keeps a host recognition stream logically continuous by
// restarting it whenever the host ends it. All transitions happen under mu;
// handlers are invoked with mu held and must not call back into the
// Controller.
type Controller struct {
	mu     sync.Mutex
	engine Engine
	opts   Options

	state        State
	stream       Stream
	generation   uint64 // identifies the open stream, bumped on Start and Stop
	restartTimer timer.Timer
	restarts     int
	failing      bool // a restart failed and no restart has succeeded since

	onTranscript  func(events.TranscriptEvent)
	onStatus      func(error)
	onStateChange func(State)
}

// NewController creates a stopped controller for the given engine
func NewController(engine Engine, opts Options) *Controller {
	if opts.Scheduler == nil {
		opts.Scheduler = timer.Real()
	}
	if opts.Language == "" {
		opts.Language = "auto"
	}
	return &Controller{
		engine: engine,
		opts:   opts,
		state:  Stopped,
	}
}

// SetTranscriptHandler sets the receiver of transcript events
func (c *Controller) SetTranscriptHandler(handler func(events.TranscriptEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTranscript = handler
}

// SetStatusHandler sets the receiver of non-fatal recognizer errors
func (c *Controller) SetStatusHandler(handler func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = handler
}

// SetStateChangeHandler sets the receiver of state transitions
func (c *Controller) SetStateChangeHandler(handler func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = handler
}

// Supported reports whether the host recognition capability is present
func (c *Controller) Supported() bool {
	return c.engine != nil && c.engine.Supported()
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Restarts returns how many times the stream was restarted since Start
func (c *Controller) Restarts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restarts
}

// Start opens a continuous, interim-enabled stream and begins emitting
// transcript events. It is a no-op when the controller is already running.
func (c *Controller) Start() error {
	if !c.Supported() {
		return ErrUnsupported
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Stopped {
		return nil
	}

	c.generation++
	gen := c.generation

	stream, err := c.engine.Open(StreamOptions{
		Continuous:     true,
		InterimResults: true,
		Language:       c.opts.Language,
		AudioSource:    c.opts.AudioSource,
	}, c.callbacks(gen))
	if err != nil {
		return fmt.Errorf("open recognition stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		if stopErr := stream.Stop(); stopErr != nil {
			logging.LogWarn("Failed to release recognition stream", zap.Error(stopErr))
		}
		return fmt.Errorf("start recognition stream: %w", err)
	}

	c.stream = stream
	c.restarts = 0
	c.failing = false
	c.setStateLocked(Running, "start")
	return nil
}

// Stop releases the stream and cancels any pending restart. Calling Stop on
// a stopped controller does nothing.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Stopped {
		return
	}

	c.generation++
	c.cancelRestartLocked()

	if c.stream != nil {
		if err := c.stream.Stop(); err != nil {
			logging.LogWarn("Failed to stop recognition stream", zap.Error(err))
		}
		c.stream = nil
	}

	c.setStateLocked(Stopped, "stop")
}

func (c *Controller) callbacks(gen uint64) Callbacks {
	return Callbacks{
		OnResult: func(batch ResultBatch) { c.handleResult(gen, batch) },
		OnError:  func(kind, message string) { c.handleError(gen, kind, message) },
		OnEnd:    func() { c.handleEnd(gen) },
	}
}

// currentLocked reports whether a callback from stream generation gen
// still applies.
func (c *Controller) currentLocked(gen uint64) bool {
	return gen == c.generation && c.state != Stopped
}

func (c *Controller) handleResult(gen uint64, batch ResultBatch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(gen) {
		return
	}

	event, ok := eventFromBatch(batch)
	if !ok || c.onTranscript == nil {
		return
	}
	c.onTranscript(event)
}

// eventFromBatch concatenates the final fragments of a batch into one final
// event. Interim fragments only produce an event when the batch holds no
// final fragment.
func eventFromBatch(batch ResultBatch) (events.TranscriptEvent, bool) {
	start := batch.ResultIndex
	if start < 0 {
		start = 0
	}

	var final, interim strings.Builder
	for i := start; i < len(batch.Results); i++ {
		fragment := batch.Results[i]
		if fragment.IsFinal {
			final.WriteString(fragment.Transcript)
		} else {
			interim.WriteString(fragment.Transcript)
		}
	}

	if text := strings.TrimSpace(final.String()); text != "" {
		return events.NewTranscriptEvent(text, true), true
	}
	if text := strings.TrimSpace(interim.String()); text != "" {
		return events.NewTranscriptEvent(text, false), true
	}
	return events.TranscriptEvent{}, false
}

func (c *Controller) handleError(gen uint64, kind, message string) {
	hostErr := &HostError{Kind: kind, Message: message}

	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}

	if Classify(kind) == ErrTransient {
		logging.LogRecognitionEvent(c.state.String(), "no_speech")
		if c.state == Running {
			c.scheduleRestartLocked(c.opts.NoSpeechDelay, "no_speech")
		}
		c.mu.Unlock()
		return
	}

	// Left to the end-triggered restart.
	onStatus := c.onStatus
	c.mu.Unlock()

	logging.LogError(hostErr, "Speech recognition error", zap.String("kind", kind))
	if onStatus != nil {
		onStatus(hostErr)
	}
}

func (c *Controller) handleEnd(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(gen) {
		return
	}

	// A pending restart already covers this end.
	if c.state != Running {
		return
	}
	c.scheduleRestartLocked(c.opts.RestartDelay, "end")
}

func (c *Controller) scheduleRestartLocked(delay time.Duration, reason string) {
	c.cancelRestartLocked()
	gen := c.generation
	c.restartTimer = c.opts.Scheduler.AfterFunc(delay, func() { c.restart(gen) })
	c.setStateLocked(Restarting, reason)
}

func (c *Controller) cancelRestartLocked() {
	if c.restartTimer != nil {
		c.restartTimer.Stop()
		c.restartTimer = nil
	}
}

func (c *Controller) restart(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != Restarting || c.stream == nil {
		c.mu.Unlock()
		return
	}
	c.restartTimer = nil

	if err := c.stream.Start(); err != nil {
		// Restarts are unconditional; try again after the longer delay.
		c.scheduleRestartLocked(c.opts.NoSpeechDelay, "restart_failed")
		firstFailure := !c.failing
		c.failing = true
		onStatus := c.onStatus
		c.mu.Unlock()

		if !firstFailure {
			logging.LogWarn("Recognition stream still failing to restart", zap.Error(err))
			return
		}

		wrapped := fmt.Errorf("%w: restart recognition stream: %v", ErrFatal, err)
		logging.LogError(err, "Failed to restart recognition stream")
		if onStatus != nil {
			onStatus(wrapped)
		}
		return
	}

	c.restarts++
	c.failing = false
	c.setStateLocked(Running, "restart")
	c.mu.Unlock()
}

func (c *Controller) setStateLocked(state State, action string) {
	previous := c.state
	c.state = state
	logging.LogRecognitionEvent(state.String(), action,
		zap.String("previous", previous.String()),
		zap.Int("restarts", c.restarts),
	)
	if c.onStateChange != nil && previous != state {
		c.onStateChange(state)
	}
}
