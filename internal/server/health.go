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
	"fmt"
	"net"

	"github.com/loqalabs/loqa-captions/internal/logging"
	"github.com/loqalabs/loqa-captions/internal/recognition"
	"github.com/loqalabs/loqa-captions/internal/session"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
)

// PipelineService is the health service name reporting caption activity.
// It is SERVING while a session is active; the empty service name reports
// process health.
const PipelineService = "loqa.captions.Pipeline"

// RecognitionService is SERVING only while the recognition stream is
// running; it drops to NOT_SERVING while the stream restarts.
const RecognitionService = "loqa.captions.Recognition"

// HealthServer serves the standard gRPC health protocol
type HealthServer struct {
	grpcServer *grpc.Server
	health     *health.Server
}

// NewHealthServer registers the health service on a new gRPC server
func NewHealthServer(opts ...grpc.ServerOption) *HealthServer {
	grpcServer := grpc.NewServer(opts...)
	healthServer := health.NewServer()
	healthgrpc.RegisterHealthServer(grpcServer, healthServer)

	healthServer.SetServingStatus("", healthgrpc.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(PipelineService, healthgrpc.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(RecognitionService, healthgrpc.HealthCheckResponse_NOT_SERVING)

	return &HealthServer{grpcServer: grpcServer, health: healthServer}
}

// SetActive reflects the pipeline activation state
func (h *HealthServer) SetActive(active bool) {
	status := healthgrpc.HealthCheckResponse_NOT_SERVING
	if active {
		status = healthgrpc.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(PipelineService, status)
}

// SessionListener keeps the health status in step with the session
func (h *HealthServer) SessionListener() session.Listener {
	return func(s session.Session) {
		h.SetActive(s.Active)
	}
}

// RecognitionListener keeps the recognition status in step with the
// recognition state machine
func (h *HealthServer) RecognitionListener() func(recognition.State) {
	return func(state recognition.State) {
		status := healthgrpc.HealthCheckResponse_NOT_SERVING
		if state == recognition.Running {
			status = healthgrpc.HealthCheckResponse_SERVING
		}
		h.health.SetServingStatus(RecognitionService, status)
	}
}

// Serve blocks serving gRPC on lis
func (h *HealthServer) Serve(lis net.Listener) error {
	logging.Sugar.Infow("🩺 gRPC health service listening", "addr", lis.Addr().String())
	if err := h.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("gRPC server failed: %w", err)
	}
	return nil
}

// Stop marks every service NOT_SERVING and stops the gRPC server
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpcServer.GracefulStop()
	logging.Sugar.Infow("🔌 gRPC health service stopped")
}
