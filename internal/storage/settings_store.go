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

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/loqalabs/loqa-captions/internal/logging"
	"github.com/loqalabs/loqa-captions/internal/session"
	"go.uber.org/zap"
)

// ErrNotFound is returned when the settings record has never been written
var ErrNotFound = errors.New("settings record not found")

// DefaultRecord is the record name used by the page overlay
const DefaultRecord = "subtitleSettings"

// SettingsStore persists one named settings record
type SettingsStore struct {
	db     *Database
	record string
	now    func() time.Time
}

// NewSettingsStore creates a store for the given record name
func NewSettingsStore(db *Database, record string) *SettingsStore {
	if record == "" {
		record = DefaultRecord
	}
	return &SettingsStore{db: db, record: record, now: time.Now}
}

// Record returns the name of the stored record
func (s *SettingsStore) Record() string {
	return s.record
}

// Get reads the record. Fields missing from the stored document keep their
// defaults so older records stay readable.
func (s *SettingsStore) Get(ctx context.Context) (session.Settings, error) {
	var raw string
	err := s.db.DB().QueryRowContext(ctx,
		`SELECT value FROM settings WHERE name = ?`, s.record,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Settings{}, ErrNotFound
	}
	if err != nil {
		return session.Settings{}, fmt.Errorf("failed to read settings %q: %w", s.record, err)
	}

	settings := session.DefaultSettings()
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return session.Settings{}, fmt.Errorf("failed to decode settings %q: %w", s.record, err)
	}

	logging.LogDatabaseOperation("select", "settings", zap.String("record", s.record))
	return settings, nil
}

// Load returns the stored settings, or the defaults when nothing was written
// yet. A stored record that fails validation is replaced by the defaults.
func (s *SettingsStore) Load(ctx context.Context) (session.Settings, error) {
	settings, err := s.Get(ctx)
	if errors.Is(err, ErrNotFound) {
		return session.DefaultSettings(), nil
	}
	if err != nil {
		return session.Settings{}, err
	}
	if err := settings.Validate(); err != nil {
		logging.LogWarn("Stored settings are invalid, using defaults",
			zap.String("record", s.record),
			zap.Error(err),
		)
		return session.DefaultSettings(), nil
	}
	return settings, nil
}

// Save writes the whole record
func (s *SettingsStore) Save(ctx context.Context, settings session.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	value, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	_, err = s.db.DB().ExecContext(ctx, `
		INSERT INTO settings (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.record, string(value), s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to write settings %q: %w", s.record, err)
	}

	logging.LogDatabaseOperation("upsert", "settings", zap.String("record", s.record))
	return nil
}
