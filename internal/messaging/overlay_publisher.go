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

package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-captions/internal/caption"
	"github.com/loqalabs/loqa-captions/internal/logging"
	"go.uber.org/zap"
)

// Overlay message types
const (
	OverlayRender     = "render"
	OverlayClear      = "clear"
	OverlayVisibility = "visibility"
)

// Toast kinds and how long the page shows them
const (
	StatusKindStatus = "status"
	StatusKindError  = "error"

	StatusDuration = 3 * time.Second
	ErrorDuration  = 5 * time.Second
)

// OverlayMessage drives the caption element on the page
type OverlayMessage struct {
	Type      string         `json:"type"`
	ID        string         `json:"id"`
	Frame     *caption.Frame `json:"frame,omitempty"`
	Visible   *bool          `json:"visible,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// StatusMessage is a transient toast shown on the page
type StatusMessage struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	DurationMs int64  `json:"durationMs"`
	Timestamp  int64  `json:"timestamp"`
}

// OverlayPublisher renders captions and toasts by publishing them to the
// page overlay. Publish failures are logged; the caption state machine
// never waits on the page.
type OverlayPublisher struct {
	pub      Publisher
	subjects Subjects
}

// NewOverlayPublisher creates a publisher for the page subjects
func NewOverlayPublisher(pub Publisher, subjects Subjects) *OverlayPublisher {
	return &OverlayPublisher{pub: pub, subjects: subjects}
}

// Render replaces the caption shown on the page
func (p *OverlayPublisher) Render(frame caption.Frame) {
	p.publishOverlay(OverlayMessage{Type: OverlayRender, Frame: &frame})
}

// Clear removes the caption from the page
func (p *OverlayPublisher) Clear() {
	p.publishOverlay(OverlayMessage{Type: OverlayClear})
}

// SetVisible shows or hides the caption surface
func (p *OverlayPublisher) SetVisible(visible bool) {
	p.publishOverlay(OverlayMessage{Type: OverlayVisibility, Visible: &visible})
}

// ShowStatus shows an informational toast
func (p *OverlayPublisher) ShowStatus(message string) {
	p.publishStatus(StatusKindStatus, message, StatusDuration)
}

// ShowError shows an error toast
func (p *OverlayPublisher) ShowError(message string) {
	p.publishStatus(StatusKindError, message, ErrorDuration)
}

func (p *OverlayPublisher) publishOverlay(msg OverlayMessage) {
	msg.ID = uuid.NewString()
	msg.Timestamp = time.Now().UnixMilli()
	p.publish(p.subjects.Overlay, msg)
}

func (p *OverlayPublisher) publishStatus(kind, message string, duration time.Duration) {
	p.publish(p.subjects.Status, StatusMessage{
		Kind:       kind,
		Message:    message,
		DurationMs: duration.Milliseconds(),
		Timestamp:  time.Now().UnixMilli(),
	})
}

func (p *OverlayPublisher) publish(subject string, v any) {
	if p.pub == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		logging.LogError(err, "Failed to marshal overlay message", zap.String("subject", subject))
		return
	}

	if err := p.pub.Publish(subject, data); err != nil {
		logging.LogError(err, "Failed to publish overlay message", zap.String("subject", subject))
		return
	}
	logging.LogNATSEvent(subject, "publish", zap.Int("bytes", len(data)))
}
