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

package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-captions/internal/logging"
	"github.com/loqalabs/loqa-captions/internal/recognition"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Recognition commands sent to the host
const (
	CommandProbe = "probe"
	CommandStart = "start"
	CommandStop  = "stop"
)

// Recognition event types published by the host
const (
	EventResult = "result"
	EventError  = "error"
	EventEnd    = "end"
)

// DefaultRequestTimeout bounds probe and start requests to the host
const DefaultRequestTimeout = 2 * time.Second

// RecognitionCommand is sent on the recognition command subject
type RecognitionCommand struct {
	Command  string                     `json:"command"`
	StreamID string                     `json:"streamId,omitempty"`
	Options  *recognition.StreamOptions `json:"options,omitempty"`
}

// RecognitionReply answers probe and start commands
type RecognitionReply struct {
	Supported bool   `json:"supported"`
	Error     string `json:"error,omitempty"`
}

// RecognitionEvent is published by the host for an open stream. All event
// types share one subject so they arrive in the order the host sent them.
type RecognitionEvent struct {
	Type        string                 `json:"type"`
	StreamID    string                 `json:"streamId"`
	ResultIndex int                    `json:"resultIndex,omitempty"`
	Results     []recognition.Fragment `json:"results,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Message     string                 `json:"message,omitempty"`
}

// RemoteEngine is a recognition.Engine whose recognizer runs in the page
// host and is reached over NATS.
type RemoteEngine struct {
	conn     *nats.Conn
	subjects Subjects
	timeout  time.Duration
}

// NewRemoteEngine creates an engine for the page subjects
func NewRemoteEngine(conn *nats.Conn, subjects Subjects, timeout time.Duration) *RemoteEngine {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &RemoteEngine{conn: conn, subjects: subjects, timeout: timeout}
}

// Supported asks the host whether it can recognize speech. No answer
// counts as unsupported.
func (e *RemoteEngine) Supported() bool {
	reply, err := e.request(RecognitionCommand{Command: CommandProbe})
	if err != nil {
		logging.LogWarn("Recognition host did not answer probe", zap.Error(err))
		return false
	}
	return reply.Supported
}

// Open subscribes to the host events of a new stream
func (e *RemoteEngine) Open(opts recognition.StreamOptions, callbacks recognition.Callbacks) (recognition.Stream, error) {
	if e.conn == nil {
		return nil, fmt.Errorf("NATS connection not established")
	}

	stream := &remoteStream{
		engine:    e,
		id:        uuid.NewString(),
		opts:      opts,
		callbacks: callbacks,
	}

	sub, err := e.conn.Subscribe(e.subjects.RecognitionEvents, stream.handle)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", e.subjects.RecognitionEvents, err)
	}
	stream.sub = sub

	logging.LogNATSEvent(e.subjects.RecognitionEvents, "open_stream", zap.String("stream_id", stream.id))
	return stream, nil
}

func (e *RemoteEngine) request(cmd RecognitionCommand) (RecognitionReply, error) {
	if e.conn == nil {
		return RecognitionReply{}, fmt.Errorf("NATS connection not established")
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return RecognitionReply{}, fmt.Errorf("failed to marshal %s command: %w", cmd.Command, err)
	}

	msg, err := e.conn.Request(e.subjects.RecognitionCommands, data, e.timeout)
	if err != nil {
		return RecognitionReply{}, fmt.Errorf("%s request failed: %w", cmd.Command, err)
	}

	var reply RecognitionReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return RecognitionReply{}, fmt.Errorf("invalid %s reply: %w", cmd.Command, err)
	}
	return reply, nil
}

type remoteStream struct {
	engine    *RemoteEngine
	id        string
	opts      recognition.StreamOptions
	callbacks recognition.Callbacks

	mu  sync.Mutex
	sub *nats.Subscription
}

// Start asks the host to begin (or resume) listening for this stream
func (s *remoteStream) Start() error {
	opts := s.opts
	reply, err := s.engine.request(RecognitionCommand{
		Command:  CommandStart,
		StreamID: s.id,
		Options:  &opts,
	})
	if err != nil {
		return err
	}
	if reply.Error != "" {
		if !reply.Supported {
			return fmt.Errorf("%w: %s", recognition.ErrUnsupported, reply.Error)
		}
		return errors.New(reply.Error)
	}
	return nil
}

// Stop tells the host to stop listening and drops the event subscription
func (s *remoteStream) Stop() error {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub == nil {
		return nil
	}

	var errs []error
	if err := sub.Unsubscribe(); err != nil {
		errs = append(errs, fmt.Errorf("unsubscribe: %w", err))
	}

	data, err := json.Marshal(RecognitionCommand{Command: CommandStop, StreamID: s.id})
	if err == nil {
		err = s.engine.conn.Publish(s.engine.subjects.RecognitionCommands, data)
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("stop command: %w", err))
	}

	logging.LogNATSEvent(s.engine.subjects.RecognitionCommands, "stop_stream", zap.String("stream_id", s.id))
	return errors.Join(errs...)
}

func (s *remoteStream) handle(msg *nats.Msg) {
	var event RecognitionEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logging.LogWarn("Dropping malformed recognition event", zap.Error(err))
		return
	}
	if event.StreamID != s.id {
		return
	}

	switch event.Type {
	case EventResult:
		if s.callbacks.OnResult != nil {
			s.callbacks.OnResult(recognition.ResultBatch{
				ResultIndex: event.ResultIndex,
				Results:     event.Results,
			})
		}
	case EventError:
		if s.callbacks.OnError != nil {
			s.callbacks.OnError(event.Error, event.Message)
		}
	case EventEnd:
		if s.callbacks.OnEnd != nil {
			s.callbacks.OnEnd()
		}
	default:
		logging.LogWarn("Unknown recognition event type", zap.String("type", event.Type))
	}
}
