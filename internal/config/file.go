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
	"time"

	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors the TOML layout. Durations are Go duration strings.
type fileConfig struct {
	Server struct {
		Host     string `toml:"host"`
		Port     int    `toml:"port"`
		GRPCPort int    `toml:"grpc_port"`
	} `toml:"server"`
	Recognition struct {
		RestartDelay  string `toml:"restart_delay"`
		NoSpeechDelay string `toml:"no_speech_delay"`
		AudioSource   string `toml:"audio_source"`
		Language      string `toml:"language"`
	} `toml:"recognition"`
	Caption struct {
		DisplayDuration string  `toml:"display_duration"`
		InterimOpacity  float64 `toml:"interim_opacity"`
	} `toml:"caption"`
	Translation struct {
		URL          string `toml:"url"`
		ContactEmail string `toml:"contact_email"`
		Timeout      string `toml:"timeout"`
	} `toml:"translation"`
	Storage struct {
		DBPath         string `toml:"db_path"`
		SettingsRecord string `toml:"settings_record"`
	} `toml:"storage"`
	NATS struct {
		URL           string `toml:"url"`
		SubjectPrefix string `toml:"subject_prefix"`
		PageID        string `toml:"page_id"`
	} `toml:"nats"`
	Logging struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"logging"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Server.Host, fc.Server.Host)
	setInt(&c.Server.Port, fc.Server.Port)
	setInt(&c.Server.GRPCPort, fc.Server.GRPCPort)

	if err := setDuration(&c.Recognition.RestartDelay, fc.Recognition.RestartDelay, "recognition.restart_delay"); err != nil {
		return err
	}
	if err := setDuration(&c.Recognition.NoSpeechDelay, fc.Recognition.NoSpeechDelay, "recognition.no_speech_delay"); err != nil {
		return err
	}
	setString(&c.Recognition.AudioSource, fc.Recognition.AudioSource)
	setString(&c.Recognition.Language, fc.Recognition.Language)

	if err := setDuration(&c.Caption.DisplayDuration, fc.Caption.DisplayDuration, "caption.display_duration"); err != nil {
		return err
	}
	if fc.Caption.InterimOpacity != 0 {
		c.Caption.InterimOpacity = fc.Caption.InterimOpacity
	}

	setString(&c.Translation.URL, fc.Translation.URL)
	setString(&c.Translation.ContactEmail, fc.Translation.ContactEmail)
	if err := setDuration(&c.Translation.Timeout, fc.Translation.Timeout, "translation.timeout"); err != nil {
		return err
	}

	setString(&c.Storage.DBPath, fc.Storage.DBPath)
	setString(&c.Storage.SettingsRecord, fc.Storage.SettingsRecord)

	setString(&c.NATS.URL, fc.NATS.URL)
	setString(&c.NATS.SubjectPrefix, fc.NATS.SubjectPrefix)
	setString(&c.NATS.PageID, fc.NATS.PageID)

	setString(&c.Logging.Level, fc.Logging.Level)
	setString(&c.Logging.Format, fc.Logging.Format)

	return nil
}

func setString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func setInt(target *int, value int) {
	if value != 0 {
		*target = value
	}
}

func setDuration(target *time.Duration, value, key string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("config file: %s: %w", key, err)
	}
	*target = d
	return nil
}
