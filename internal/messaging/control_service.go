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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/loqalabs/loqa-captions/internal/logging"
	"github.com/loqalabs/loqa-captions/internal/pipeline"
	"github.com/loqalabs/loqa-captions/internal/session"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Control actions accepted on the control subject
const (
	ActionToggle         = "toggle"
	ActionUpdateSettings = "updateSettings"
	ActionGetStatus      = "getStatus"
)

// ErrUnknownAction is returned for requests naming no known action
var ErrUnknownAction = errors.New("unknown action")

// Pipeline is the control surface driven by ControlService
type Pipeline interface {
	Toggle(ctx context.Context) (bool, error)
	UpdateSettings(ctx context.Context, patch session.Patch) error
	Status() pipeline.Status
}

// ControlRequest is one message on the control subject
type ControlRequest struct {
	Action   string        `json:"action"`
	Settings session.Patch `json:"settings"`
}

// ControlResponse is the reply to a ControlRequest. Only the fields of the
// requested action are set.
type ControlResponse struct {
	Active    *bool  `json:"active,omitempty"`
	Supported *bool  `json:"supported,omitempty"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ControlService answers control requests for one page
type ControlService struct {
	pipeline Pipeline
	timeout  time.Duration
	sub      *nats.Subscription
}

// NewControlService creates a service; timeout bounds each request
func NewControlService(p Pipeline, timeout time.Duration) *ControlService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ControlService{pipeline: p, timeout: timeout}
}

// Subscribe starts answering requests on subject
func (s *ControlService) Subscribe(conn *nats.Conn, subject string) error {
	if conn == nil {
		return fmt.Errorf("NATS connection not established")
	}

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		reply := s.Handle(ctx, msg.Data)
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(reply); err != nil {
			logging.LogError(err, "Failed to reply to control request", zap.String("subject", subject))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	s.sub = sub
	logging.LogNATSEvent(subject, "subscribe")
	return nil
}

// Handle decodes one request, runs it and encodes the reply
func (s *ControlService) Handle(ctx context.Context, data []byte) []byte {
	var req ControlRequest
	var resp ControlResponse
	if err := json.Unmarshal(data, &req); err != nil {
		resp = ControlResponse{Error: fmt.Sprintf("invalid request: %v", err)}
	} else {
		resp = s.Dispatch(ctx, req)
	}

	out, err := json.Marshal(resp)
	if err != nil {
		// ControlResponse always encodes
		return []byte(`{"error":"internal error"}`)
	}
	return out
}

// Dispatch runs a decoded request against the pipeline
func (s *ControlService) Dispatch(ctx context.Context, req ControlRequest) ControlResponse {
	logging.LogNATSEvent("", "control", zap.String("action", req.Action))

	switch req.Action {
	case ActionToggle:
		active, err := s.pipeline.Toggle(ctx)
		resp := ControlResponse{Active: &active}
		if err != nil {
			resp.Error = err.Error()
		}
		return resp

	case ActionUpdateSettings:
		if err := s.pipeline.UpdateSettings(ctx, req.Settings); err != nil {
			return ControlResponse{Error: err.Error()}
		}
		return ControlResponse{Status: "updated"}

	case ActionGetStatus:
		status := s.pipeline.Status()
		return ControlResponse{Active: &status.Active, Supported: &status.Supported}

	default:
		return ControlResponse{Error: fmt.Sprintf("%v: %q", ErrUnknownAction, req.Action)}
	}
}

// Close stops answering requests
func (s *ControlService) Close() error {
	if s.sub == nil {
		return nil
	}
	err := s.sub.Unsubscribe()
	s.sub = nil
	return err
}
