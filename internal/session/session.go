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

package session

import (
	"github.com/google/uuid"
)

// Session is the run-scoped activation state and configuration for one
// monitored page. It is a value: updates produce a new Session and the
// previous one is never modified.
type Session struct {
	ID       string   `json:"id,omitempty"`
	Active   bool     `json:"active"`
	Settings Settings `json:"settings"`
}

// Listener receives every new Session value
type Listener func(Session)

// New returns an inactive session carrying the given settings
func New(settings Settings) Session {
	return Session{Settings: settings}
}

// Activated returns an active copy with a fresh session ID
func (s Session) Activated() Session {
	s.Active = true
	s.ID = uuid.NewString()
	return s
}

// Deactivated returns an inactive copy; the ID is dropped with the run
func (s Session) Deactivated() Session {
	s.Active = false
	s.ID = ""
	return s
}

// WithSettings returns a copy carrying the given settings
func (s Session) WithSettings(settings Settings) Session {
	s.Settings = settings
	return s
}
