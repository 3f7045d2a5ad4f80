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

package events

import (
	"fmt"
	"time"
)

// TranscriptEvent is one recognition result handed from the recognition
// controller to the caption manager. It is consumed once and not retained.
type TranscriptEvent struct {
	Text      string    `json:"text"`
	IsFinal   bool      `json:"is_final"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTranscriptEvent creates a TranscriptEvent stamped with the current time
func NewTranscriptEvent(text string, isFinal bool) TranscriptEvent {
	return TranscriptEvent{
		Text:      text,
		IsFinal:   isFinal,
		Timestamp: time.Now(),
	}
}

// Kind returns "final" or "interim"
func (e TranscriptEvent) Kind() string {
	if e.IsFinal {
		return "final"
	}
	return "interim"
}

// String returns a human-readable representation of the event
func (e TranscriptEvent) String() string {
	return fmt.Sprintf("TranscriptEvent{Kind: %s, Text: %q, Timestamp: %s}",
		e.Kind(), e.Text, e.Timestamp.Format(time.RFC3339Nano))
}
