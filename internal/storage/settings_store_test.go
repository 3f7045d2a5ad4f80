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
	"path/filepath"
	"testing"

	"github.com/loqalabs/loqa-captions/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(DatabaseConfig{Path: filepath.Join(t.TempDir(), "nested", "captions.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSettingsStore_LoadDefaultsWhenEmpty(t *testing.T) {
	store := NewSettingsStore(newTestDatabase(t), "")
	assert.Equal(t, DefaultRecord, store.Record())

	_, err := store.Get(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	settings, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.DefaultSettings(), settings)
}

func TestSettingsStore_SaveThenLoad(t *testing.T) {
	ctx := context.Background()
	store := NewSettingsStore(newTestDatabase(t), DefaultRecord)

	settings := session.DefaultSettings()
	settings.TargetLanguage = "es"
	settings.FontSize = "24px"
	require.NoError(t, store.Save(ctx, settings))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings, loaded)
}

func TestSettingsStore_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	store := NewSettingsStore(newTestDatabase(t), DefaultRecord)

	first := session.DefaultSettings()
	first.Position = session.PositionTop
	second := first
	second.BackgroundOpacity = 20

	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, loaded.BackgroundOpacity)
	assert.Equal(t, session.PositionTop, loaded.Position)

	var rows int
	require.NoError(t, store.db.DB().QueryRow(`SELECT COUNT(*) FROM settings`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestSettingsStore_RecordsAreIndependent(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	a := NewSettingsStore(db, "pageA")
	b := NewSettingsStore(db, "pageB")

	settings := session.DefaultSettings()
	settings.TextColor = "#000000"
	require.NoError(t, a.Save(ctx, settings))

	_, err := b.Get(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSettingsStore_SaveRejectsInvalid(t *testing.T) {
	store := NewSettingsStore(newTestDatabase(t), DefaultRecord)

	settings := session.DefaultSettings()
	settings.BackgroundOpacity = 150

	err := store.Save(context.Background(), settings)
	assert.ErrorIs(t, err, session.ErrInvalidSettings)
}

func TestSettingsStore_PartialRecordKeepsDefaults(t *testing.T) {
	ctx := context.Background()
	store := NewSettingsStore(newTestDatabase(t), DefaultRecord)

	_, err := store.db.DB().Exec(
		`INSERT INTO settings (name, value, updated_at) VALUES (?, ?, 0)`,
		DefaultRecord, `{"targetLanguage":"fr"}`,
	)
	require.NoError(t, err)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fr", loaded.TargetLanguage)
	assert.Equal(t, "18px", loaded.FontSize)
	assert.True(t, loaded.TranslationEnabled)
}

func TestSettingsStore_InvalidRecordFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()
	store := NewSettingsStore(newTestDatabase(t), DefaultRecord)

	_, err := store.db.DB().Exec(
		`INSERT INTO settings (name, value, updated_at) VALUES (?, ?, 0)`,
		DefaultRecord, `{"position":"middle"}`,
	)
	require.NoError(t, err)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.DefaultSettings(), loaded)
}

func TestDatabase_Ping(t *testing.T) {
	db := newTestDatabase(t)
	require.NoError(t, db.Ping(context.Background()))
	assert.Contains(t, db.Path(), "captions.db")
}
