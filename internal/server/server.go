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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/loqalabs/loqa-captions/internal/config"
	"github.com/loqalabs/loqa-captions/internal/logging"
	"github.com/loqalabs/loqa-captions/internal/pipeline"
	"github.com/loqalabs/loqa-captions/internal/recognition"
	"github.com/loqalabs/loqa-captions/internal/session"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	maxRequestBytes = 64 << 10
	healthTimeout   = 2 * time.Second
)

// Pipeline is the control surface exposed over HTTP
type Pipeline interface {
	Toggle(ctx context.Context) (bool, error)
	UpdateSettings(ctx context.Context, patch session.Patch) error
	Status() pipeline.Status
	Session() session.Session
}

// MessagingProbe reports the control connection
type MessagingProbe interface {
	IsConnected() bool
	GetStats() nats.Statistics
}

// DatabaseProbe reports the settings database
type DatabaseProbe interface {
	Ping(ctx context.Context) error
}

// RecognitionProbe reports the recognition session
type RecognitionProbe interface {
	State() recognition.State
	Restarts() int
}

// Option adds a dependency check to /health
type Option func(*Server)

// WithMessaging reports NATS connectivity in /health
func WithMessaging(m MessagingProbe) Option {
	return func(s *Server) { s.messaging = m }
}

// WithDatabase pings the database in /health
func WithDatabase(d DatabaseProbe) Option {
	return func(s *Server) { s.database = d }
}

// WithRecognition reports the recognition state and restart count in /health
func WithRecognition(r RecognitionProbe) Option {
	return func(s *Server) { s.recognition = r }
}

// Server exposes the pipeline controls over HTTP
type Server struct {
	cfg      *config.Config
	mux      *http.ServeMux
	server   *http.Server
	pipeline Pipeline
	started  time.Time

	messaging   MessagingProbe
	database    DatabaseProbe
	recognition RecognitionProbe
}

// New creates a server for the pipeline
func New(cfg *config.Config, p Pipeline, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		pipeline: p,
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      s.mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.routes()
	return s
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves HTTP until Stop is called
func (s *Server) Start() error {
	logging.Sugar.Infow("🚀 Caption control API starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logging.Sugar.Infow("✅ Caption control API shut down")
	return nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/toggle", s.handleToggle)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
}

// handleHealth reports "degraded" with 503 when NATS is down or the
// database does not answer. A restarting recognizer is reported but does
// not degrade health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.pipeline.Status()
	body := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"active":    status.Active,
		"supported": status.Supported,
	}
	code := http.StatusOK

	if s.messaging != nil {
		stats := s.messaging.GetStats()
		connected := s.messaging.IsConnected()
		body["nats"] = map[string]interface{}{
			"connected":  connected,
			"in_msgs":    stats.InMsgs,
			"out_msgs":   stats.OutMsgs,
			"reconnects": stats.Reconnects,
		}
		if !connected {
			code = http.StatusServiceUnavailable
		}
	}

	if s.database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		err := s.database.Ping(ctx)
		cancel()
		if err != nil {
			logging.LogWarn("Database health check failed", zap.Error(err))
			body["database"] = map[string]string{"status": "error", "error": err.Error()}
			code = http.StatusServiceUnavailable
		} else {
			body["database"] = map[string]string{"status": "ok"}
		}
	}

	if s.recognition != nil {
		body["recognition"] = map[string]interface{}{
			"state":    s.recognition.State().String(),
			"restarts": s.recognition.Restarts(),
		}
	}

	if code != http.StatusOK {
		body["status"] = "degraded"
	}
	writeJSON(w, code, body)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.pipeline.Status())
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	active, err := s.pipeline.Toggle(r.Context())
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, recognition.ErrUnsupported) {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]interface{}{"active": active, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.pipeline.Session().Settings)

	case http.MethodPost:
		var patch session.Patch
		if err := readJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid settings body: %w", err))
			return
		}
		if err := s.pipeline.UpdateSettings(r.Context(), patch); err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, session.ErrInvalidSettings) {
				code = http.StatusBadRequest
			}
			writeError(w, code, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.LogError(err, "Failed to write response")
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		logging.LogError(err, "Request failed", zap.Int("status", code))
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func readJSON(r *http.Request, data interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return err
	}
	defer func() { _ = r.Body.Close() }()

	return json.Unmarshal(body, data)
}
