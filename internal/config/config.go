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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/loqalabs/loqa-captions/internal/security"
)

// Audio sources the host recognizer can be asked to listen to.
const (
	AudioSourceMicrophone = "microphone"
	AudioSourcePage       = "page"
)

// Config holds all configuration for the caption service
type Config struct {
	Server      ServerConfig
	Recognition RecognitionConfig
	Caption     CaptionConfig
	Translation TranslationConfig
	Storage     StorageConfig
	NATS        NATSConfig
	Logging     LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string
	Port         int
	GRPCPort     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RecognitionConfig controls the continuous recognition session
type RecognitionConfig struct {
	RestartDelay  time.Duration // delay before restarting after the host ends the stream
	NoSpeechDelay time.Duration // delay before the single restart after a no-speech error
	AudioSource   string        // "microphone" or "page", forwarded to the host engine
	Language      string        // "auto" leaves detection to the host
}

// CaptionConfig controls caption display timing and styling
type CaptionConfig struct {
	DisplayDuration time.Duration
	InterimOpacity  float64
}

// TranslationConfig holds translation service configuration
type TranslationConfig struct {
	URL          string
	ContactEmail string // sent as the "de" parameter for higher free-tier quotas
	Timeout      time.Duration
}

// StorageConfig holds settings persistence configuration
type StorageConfig struct {
	DBPath         string
	SettingsRecord string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// NATSConfig holds NATS messaging configuration
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	PageID        string
	MaxReconnect  int
	ReconnectWait time.Duration
}

// Default returns the built-in configuration before file and environment
// overrides are applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         3000,
			GRPCPort:     50052,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Recognition: RecognitionConfig{
			RestartDelay:  100 * time.Millisecond,
			NoSpeechDelay: time.Second,
			AudioSource:   AudioSourceMicrophone,
			Language:      "auto",
		},
		Caption: CaptionConfig{
			DisplayDuration: 5 * time.Second,
			InterimOpacity:  0.7,
		},
		Translation: TranslationConfig{
			URL:     "https://api.mymemory.translated.net",
			Timeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			DBPath:         "./data/loqa-captions.db",
			SettingsRecord: "subtitleSettings",
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "loqa.captions",
			PageID:        "default",
			MaxReconnect:  -1,
			ReconnectWait: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from an optional TOML file (CAPTIONS_CONFIG_FILE)
// and environment variables. Environment variables win over the file.
func Load() (*Config, error) {
	config := Default()

	if path := strings.TrimSpace(os.Getenv("CAPTIONS_CONFIG_FILE")); path != "" {
		if err := config.applyFile(path); err != nil {
			return nil, err
		}
	}

	config.applyEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnvString("CAPTIONS_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("CAPTIONS_HTTP_PORT", c.Server.Port)
	c.Server.GRPCPort = getEnvInt("CAPTIONS_GRPC_PORT", c.Server.GRPCPort)
	c.Server.ReadTimeout = getEnvDuration("CAPTIONS_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("CAPTIONS_WRITE_TIMEOUT", c.Server.WriteTimeout)

	c.Recognition.RestartDelay = getEnvDuration("RECOGNITION_RESTART_DELAY", c.Recognition.RestartDelay)
	c.Recognition.NoSpeechDelay = getEnvDuration("RECOGNITION_NO_SPEECH_DELAY", c.Recognition.NoSpeechDelay)
	c.Recognition.AudioSource = getEnvString("RECOGNITION_AUDIO_SOURCE", c.Recognition.AudioSource)
	c.Recognition.Language = getEnvString("RECOGNITION_LANGUAGE", c.Recognition.Language)

	c.Caption.DisplayDuration = getEnvDuration("CAPTION_DISPLAY_DURATION", c.Caption.DisplayDuration)
	c.Caption.InterimOpacity = getEnvFloat64("CAPTION_INTERIM_OPACITY", c.Caption.InterimOpacity)

	c.Translation.URL = getEnvString("TRANSLATION_URL", c.Translation.URL)
	c.Translation.ContactEmail = getEnvString("TRANSLATION_CONTACT_EMAIL", c.Translation.ContactEmail)
	c.Translation.Timeout = getEnvDuration("TRANSLATION_TIMEOUT", c.Translation.Timeout)

	c.Storage.DBPath = getEnvString("DB_PATH", c.Storage.DBPath)
	c.Storage.SettingsRecord = getEnvString("SETTINGS_RECORD", c.Storage.SettingsRecord)

	c.NATS.URL = getEnvString("NATS_URL", c.NATS.URL)
	c.NATS.SubjectPrefix = getEnvString("NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)
	c.NATS.PageID = getEnvString("CAPTIONS_PAGE_ID", c.NATS.PageID)
	c.NATS.MaxReconnect = getEnvInt("NATS_MAX_RECONNECT", c.NATS.MaxReconnect)
	c.NATS.ReconnectWait = getEnvDuration("NATS_RECONNECT_WAIT", c.NATS.ReconnectWait)

	c.Logging.Level = getEnvString("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnvString("LOG_FORMAT", c.Logging.Format)
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.GRPCPort <= 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.Server.GRPCPort)
	}

	if c.Recognition.RestartDelay < 0 || c.Recognition.NoSpeechDelay < 0 {
		return fmt.Errorf("recognition delays must not be negative")
	}

	switch c.Recognition.AudioSource {
	case AudioSourceMicrophone, AudioSourcePage:
	default:
		return fmt.Errorf("invalid recognition audio source: %q", c.Recognition.AudioSource)
	}

	if c.Caption.DisplayDuration <= 0 {
		return fmt.Errorf("caption display duration must be positive: %s", c.Caption.DisplayDuration)
	}

	if c.Caption.InterimOpacity <= 0 || c.Caption.InterimOpacity > 1 {
		return fmt.Errorf("caption interim opacity must be in (0, 1]: %f", c.Caption.InterimOpacity)
	}

	if c.Translation.URL == "" {
		return fmt.Errorf("translation URL must be provided")
	}

	if c.Storage.SettingsRecord == "" {
		return fmt.Errorf("settings record name must be provided")
	}

	if err := security.ValidateSubjectPrefix(c.NATS.SubjectPrefix); err != nil {
		return fmt.Errorf("invalid NATS configuration: %w", err)
	}

	if err := security.ValidatePageID(c.NATS.PageID); err != nil {
		return fmt.Errorf("invalid NATS configuration: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
