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

package caption

import (
	"context"
	"fmt"
	"time"

	"github.com/loqalabs/loqa-captions/internal/session"
	"github.com/loqalabs/loqa-captions/internal/translation"
)

// State of the caption slot
type State int

const (
	Idle State = iota
	Interim
	Translating
	Final
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Interim:
		return "interim"
	case Translating:
		return "translating"
	case Final:
		return "final"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Caption is the phrase currently on screen. Interim captions have a zero
// ExpiresAt; final captions always carry one.
type Caption struct {
	DisplayText string
	IsInterim   bool
	ExpiresAt   time.Time
}

// HasExpiry reports whether the caption clears itself
func (c Caption) HasExpiry() bool {
	return !c.ExpiresAt.IsZero()
}

// Frame is everything a renderer needs to draw the caption element
type Frame struct {
	Text            string           `json:"text"`
	Interim         bool             `json:"interim"`
	Opacity         float64          `json:"opacity"`
	FontSize        string           `json:"fontSize"`
	TextColor       string           `json:"textColor"`
	BackgroundColor string           `json:"backgroundColor"`
	Position        session.Position `json:"position"`
	ExpiresAt       *time.Time       `json:"expiresAt,omitempty"`
}

// Renderer owns the single on-screen caption element and its surface
type Renderer interface {
	Render(frame Frame)
	Clear()
	SetVisible(visible bool)
}

// Translator resolves final phrases; failures come back as Fallback results
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) translation.Result
}
