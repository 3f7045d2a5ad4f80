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
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-captions/internal/config"
	"github.com/loqalabs/loqa-captions/internal/logging"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Publisher is the subset of *nats.Conn used to push page updates
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Subjects are the NATS subjects of one monitored page
type Subjects struct {
	Control             string // request/reply: toggle, updateSettings, getStatus
	Overlay             string // caption frames for the page overlay
	Status              string // status and error toasts
	RecognitionCommands string // request/reply: probe, start, stop
	RecognitionEvents   string // result, error and end events from the host recognizer
}

// NewSubjects derives the page subjects from a prefix and page id
func NewSubjects(prefix, pageID string) Subjects {
	base := fmt.Sprintf("%s.%s", strings.TrimSuffix(prefix, "."), sanitizeToken(pageID))
	return Subjects{
		Control:             base + ".control",
		Overlay:             base + ".overlay",
		Status:              base + ".status",
		RecognitionCommands: base + ".recognition.command",
		RecognitionEvents:   base + ".recognition.events",
	}
}

// sanitizeToken keeps a page id usable as a single subject token
func sanitizeToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return "default"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, token)
}

// NATSService owns the connection shared by the control service, the
// remote recognizer and the overlay publisher.
type NATSService struct {
	cfg      config.NATSConfig
	conn     *nats.Conn
	subjects Subjects
}

// NewNATSService creates a disconnected service for the configured page
func NewNATSService(cfg config.NATSConfig) *NATSService {
	return &NATSService{
		cfg:      cfg,
		subjects: NewSubjects(cfg.SubjectPrefix, cfg.PageID),
	}
}

// Connect establishes the connection to the NATS server
func (ns *NATSService) Connect() error {
	logging.LogNATSEvent("", "connect", zap.String("url", ns.cfg.URL))

	opts := []nats.Option{
		nats.Name("loqa-captions"),
		nats.ReconnectWait(ns.cfg.ReconnectWait),
		nats.MaxReconnects(ns.cfg.MaxReconnect),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.LogWarn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.LogNATSEvent("", "reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logging.LogNATSEvent("", "closed")
		}),
	}

	conn, err := nats.Connect(ns.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	ns.conn = conn
	logging.LogNATSEvent("", "connected", zap.String("url", conn.ConnectedUrl()))
	return nil
}

// Conn returns the underlying connection, nil before Connect
func (ns *NATSService) Conn() *nats.Conn {
	return ns.conn
}

// Subjects returns the subjects of the configured page
func (ns *NATSService) Subjects() Subjects {
	return ns.subjects
}

// Close closes the NATS connection
func (ns *NATSService) Close() {
	if ns.conn != nil {
		ns.conn.Close()
	}
}

// IsConnected returns true if connected to NATS
func (ns *NATSService) IsConnected() bool {
	return ns.conn != nil && ns.conn.IsConnected()
}

// GetStats returns connection statistics
func (ns *NATSService) GetStats() nats.Statistics {
	if ns.conn != nil {
		return ns.conn.Stats()
	}
	return nats.Statistics{}
}
