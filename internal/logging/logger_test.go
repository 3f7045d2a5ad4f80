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

package logging

import (
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	originalLevel := os.Getenv("LOG_LEVEL")
	originalFormat := os.Getenv("LOG_FORMAT")
	defer func() {
		_ = os.Setenv("LOG_LEVEL", originalLevel)
		_ = os.Setenv("LOG_FORMAT", originalFormat)
	}()

	tests := []struct {
		name      string
		logLevel  string
		logFormat string
	}{
		{name: "Default values"},
		{name: "Debug level JSON format", logLevel: "debug", logFormat: "json"},
		{name: "Warn level console format", logLevel: "warn", logFormat: "console"},
		{name: "Invalid format defaults to console", logLevel: "info", logFormat: "invalid"},
		{name: "Invalid level defaults to info", logLevel: "invalid", logFormat: "console"},
		{name: "Case insensitive", logLevel: "INFO", logFormat: "JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.logLevel != "" {
				_ = os.Setenv("LOG_LEVEL", tt.logLevel)
			} else {
				_ = os.Unsetenv("LOG_LEVEL")
			}
			if tt.logFormat != "" {
				_ = os.Setenv("LOG_FORMAT", tt.logFormat)
			} else {
				_ = os.Unsetenv("LOG_FORMAT")
			}

			if err := Initialize(); err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}
			if Logger == nil || Sugar == nil {
				t.Error("Logger and Sugar should be set after initialization")
			}
			Close()
		})
	}
}

func fieldMap(entry observer.LoggedEntry) map[string]interface{} {
	fields := make(map[string]interface{})
	for _, field := range entry.Context {
		switch field.Type {
		case zapcore.StringType:
			fields[field.Key] = field.String
		case zapcore.Int64Type:
			fields[field.Key] = field.Integer
		case zapcore.ErrorType:
			fields[field.Key] = field.Interface
		}
	}
	return fields
}

func TestLoggingFunctions(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	t.Run("LogRecognitionEvent", func(t *testing.T) {
		LogRecognitionEvent("restarting", "end", zap.Int("restarts", 2))

		logs := recorded.All()
		fields := fieldMap(logs[len(logs)-1])
		if fields["component"] != "recognition" {
			t.Errorf("Expected component 'recognition', got %v", fields["component"])
		}
		if fields["state"] != "restarting" {
			t.Errorf("Expected state 'restarting', got %v", fields["state"])
		}
		if fields["restarts"] != int64(2) {
			t.Errorf("Expected restarts 2, got %v", fields["restarts"])
		}
	})

	t.Run("LogCaptionEvent", func(t *testing.T) {
		LogCaptionEvent("final", "render", zap.String("text", "hola"))

		logs := recorded.All()
		entry := logs[len(logs)-1]
		if entry.Level != zapcore.DebugLevel {
			t.Errorf("Expected debug level, got %v", entry.Level)
		}
		if fieldMap(entry)["component"] != "caption" {
			t.Errorf("Expected component 'caption', got %v", fieldMap(entry)["component"])
		}
	})

	t.Run("LogTranslation", func(t *testing.T) {
		LogTranslation("fallback", zap.String("target_lang", "es"))

		logs := recorded.All()
		entry := logs[len(logs)-1]
		if entry.Message != "Translation operation" {
			t.Errorf("Expected message 'Translation operation', got %q", entry.Message)
		}
		if fieldMap(entry)["operation"] != "fallback" {
			t.Errorf("Expected operation 'fallback', got %v", fieldMap(entry)["operation"])
		}
	})

	t.Run("LogPipelineEvent", func(t *testing.T) {
		LogPipelineEvent("activate", zap.String("session_id", "abc"))

		logs := recorded.All()
		fields := fieldMap(logs[len(logs)-1])
		if fields["component"] != "pipeline" || fields["action"] != "activate" {
			t.Errorf("Unexpected pipeline fields: %v", fields)
		}
	})

	t.Run("LogNATSEvent", func(t *testing.T) {
		LogNATSEvent("loqa.captions.default.control", "reply")

		logs := recorded.All()
		fields := fieldMap(logs[len(logs)-1])
		if fields["subject"] != "loqa.captions.default.control" {
			t.Errorf("Expected subject, got %v", fields["subject"])
		}
	})

	t.Run("LogDatabaseOperation", func(t *testing.T) {
		LogDatabaseOperation("UPSERT", "settings")

		logs := recorded.All()
		fields := fieldMap(logs[len(logs)-1])
		if fields["table"] != "settings" || fields["operation"] != "UPSERT" {
			t.Errorf("Unexpected database fields: %v", fields)
		}
	})

	t.Run("LogError", func(t *testing.T) {
		LogError(errors.New("boom"), "Something went wrong")

		logs := recorded.All()
		entry := logs[len(logs)-1]
		if entry.Level != zapcore.ErrorLevel {
			t.Errorf("Expected error level, got %v", entry.Level)
		}
		if _, ok := fieldMap(entry)["error"]; !ok {
			t.Error("Missing error field")
		}
	})

	t.Run("LogWarn", func(t *testing.T) {
		LogWarn("careful")

		logs := recorded.All()
		if logs[len(logs)-1].Level != zapcore.WarnLevel {
			t.Errorf("Expected warn level, got %v", logs[len(logs)-1].Level)
		}
	})
}

func TestLoggingFunctions_NilLogger(t *testing.T) {
	SetLogger(nil)

	// None of these may panic without a logger.
	LogRecognitionEvent("running", "start")
	LogCaptionEvent("idle", "clear")
	LogTranslation("ok")
	LogPipelineEvent("toggle")
	LogNATSEvent("subject", "publish")
	LogDatabaseOperation("SELECT", "settings")
	LogError(errors.New("x"), "msg")
	LogWarn("msg")
	Sync()
}
