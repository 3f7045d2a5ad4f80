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

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/loqalabs/loqa-captions/internal/caption"
	"github.com/loqalabs/loqa-captions/internal/config"
	"github.com/loqalabs/loqa-captions/internal/logging"
	"github.com/loqalabs/loqa-captions/internal/messaging"
	"github.com/loqalabs/loqa-captions/internal/pipeline"
	"github.com/loqalabs/loqa-captions/internal/recognition"
	"github.com/loqalabs/loqa-captions/internal/server"
	"github.com/loqalabs/loqa-captions/internal/session"
	"github.com/loqalabs/loqa-captions/internal/storage"
	"github.com/loqalabs/loqa-captions/internal/translation"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logging.InitializeWithConfig(logging.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.LogError(err, "loqa-captions stopped with an error")
		logging.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := storage.NewDatabase(storage.DatabaseConfig{Path: cfg.Storage.DBPath})
	if err != nil {
		return err
	}
	defer db.Close()
	store := storage.NewSettingsStore(db, cfg.Storage.SettingsRecord)

	nats := messaging.NewNATSService(cfg.NATS)
	if err := nats.Connect(); err != nil {
		return err
	}
	defer nats.Close()
	subjects := nats.Subjects()

	translator, err := translation.NewClient(cfg.Translation)
	if err != nil {
		return err
	}
	defer translator.Close()

	overlay := messaging.NewOverlayPublisher(nats.Conn(), subjects)

	recognizer := recognition.NewController(
		messaging.NewRemoteEngine(nats.Conn(), subjects, messaging.DefaultRequestTimeout),
		recognition.Options{
			RestartDelay:  cfg.Recognition.RestartDelay,
			NoSpeechDelay: cfg.Recognition.NoSpeechDelay,
			Language:      cfg.Recognition.Language,
			AudioSource:   cfg.Recognition.AudioSource,
		},
	)

	captions := caption.NewManager(overlay, translator, session.DefaultSettings(), caption.Options{
		DisplayDuration: cfg.Caption.DisplayDuration,
		InterimOpacity:  cfg.Caption.InterimOpacity,
	})

	p, err := pipeline.New(ctx, pipeline.Dependencies{
		Recognizer: recognizer,
		Captions:   captions,
		Store:      store,
		Notifier:   overlay,
	})
	if err != nil {
		return err
	}
	defer p.Close()

	health := server.NewHealthServer()
	p.OnSessionChange(health.SessionListener())
	recognizer.SetStateChangeHandler(health.RecognitionListener())

	control := messaging.NewControlService(p, cfg.Server.WriteTimeout)
	if err := control.Subscribe(nats.Conn(), subjects.Control); err != nil {
		return err
	}
	defer control.Close()

	grpcAddr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.GRPCPort))
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
	}

	httpServer := server.New(cfg, p,
		server.WithMessaging(nats),
		server.WithDatabase(db),
		server.WithRecognition(recognizer),
	)
	errCh := make(chan error, 2)
	go func() { errCh <- httpServer.Start() }()
	go func() { errCh <- health.Serve(lis) }()

	logging.Sugar.Infow("🚀 loqa-captions started",
		"http_port", cfg.Server.Port,
		"grpc_port", cfg.Server.GRPCPort,
		"control_subject", subjects.Control,
		"audio_source", cfg.Recognition.AudioSource,
		"db_path", db.Path(),
		"settings_record", store.Record(),
	)

	var runErr error
	select {
	case <-ctx.Done():
		logging.Sugar.Infow("🛑 Shutting down loqa-captions")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	health.Stop()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logging.LogError(err, "HTTP shutdown failed", zap.Duration("timeout", shutdownTimeout))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
