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
	"testing"
	"time"

	"github.com/loqalabs/loqa-captions/internal/caption"
	"github.com/loqalabs/loqa-captions/internal/session"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeOverlay(t *testing.T, data []byte) OverlayMessage {
	t.Helper()
	var msg OverlayMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestOverlayPublisher_Render(t *testing.T) {
	conn := NewMockNATSConnection()
	subjects := NewSubjects("loqa.captions", "default")
	publisher := NewOverlayPublisher(conn, subjects)

	publisher.Render(caption.Frame{
		Text:            "hola alla",
		Opacity:         1,
		FontSize:        "18px",
		TextColor:       "#ffffff",
		BackgroundColor: "rgba(0, 0, 0, 0.8)",
		Position:        session.PositionBottom,
	})
	publisher.Render(caption.Frame{Text: "next", Interim: true, Opacity: 0.7})

	messages := conn.Messages(subjects.Overlay)
	require.Len(t, messages, 2)

	first := decodeOverlay(t, messages[0])
	assert.Equal(t, OverlayRender, first.Type)
	require.NotNil(t, first.Frame)
	assert.Equal(t, "hola alla", first.Frame.Text)
	assert.Equal(t, "rgba(0, 0, 0, 0.8)", first.Frame.BackgroundColor)
	assert.NotEmpty(t, first.ID)

	second := decodeOverlay(t, messages[1])
	assert.NotEqual(t, first.ID, second.ID, "every frame gets its own id")
	assert.True(t, second.Frame.Interim)
}

func TestOverlayPublisher_ClearAndVisibility(t *testing.T) {
	conn := NewMockNATSConnection()
	subjects := NewSubjects("loqa.captions", "default")
	publisher := NewOverlayPublisher(conn, subjects)

	publisher.SetVisible(true)
	publisher.Clear()
	publisher.SetVisible(false)

	messages := conn.Messages(subjects.Overlay)
	require.Len(t, messages, 3)

	shown := decodeOverlay(t, messages[0])
	assert.Equal(t, OverlayVisibility, shown.Type)
	require.NotNil(t, shown.Visible)
	assert.True(t, *shown.Visible)

	cleared := decodeOverlay(t, messages[1])
	assert.Equal(t, OverlayClear, cleared.Type)
	assert.Nil(t, cleared.Frame)

	hidden := decodeOverlay(t, messages[2])
	require.NotNil(t, hidden.Visible)
	assert.False(t, *hidden.Visible)
}

func TestOverlayPublisher_Toasts(t *testing.T) {
	conn := NewMockNATSConnection()
	subjects := NewSubjects("loqa.captions", "default")
	publisher := NewOverlayPublisher(conn, subjects)

	publisher.ShowStatus("Subtitles activated")
	publisher.ShowError("Failed to start subtitle recognition")

	messages := conn.Messages(subjects.Status)
	require.Len(t, messages, 2)

	var status, failure StatusMessage
	require.NoError(t, json.Unmarshal(messages[0], &status))
	require.NoError(t, json.Unmarshal(messages[1], &failure))

	assert.Equal(t, StatusKindStatus, status.Kind)
	assert.Equal(t, "Subtitles activated", status.Message)
	assert.Equal(t, (3 * time.Second).Milliseconds(), status.DurationMs)
	assert.Equal(t, StatusKindError, failure.Kind)
	assert.Equal(t, (5 * time.Second).Milliseconds(), failure.DurationMs)
}

func TestOverlayPublisher_PublishErrorsAreSwallowed(t *testing.T) {
	conn := NewMockNATSConnection()
	subjects := NewSubjects("loqa.captions", "default")
	publisher := NewOverlayPublisher(conn, subjects)

	conn.SetError(subjects.Overlay, nats.ErrConnectionClosed)
	publisher.Render(caption.Frame{Text: "lost"})
	publisher.ShowStatus("still delivered")

	assert.Empty(t, conn.Messages(subjects.Overlay))
	assert.Len(t, conn.Messages(subjects.Status), 1)

	conn.Disconnect()
	publisher.ShowStatus("dropped")
	assert.Len(t, conn.Messages(subjects.Status), 1)
}

func TestOverlayPublisher_NilPublisher(t *testing.T) {
	publisher := NewOverlayPublisher(nil, NewSubjects("p", "q"))
	publisher.Render(caption.Frame{Text: "nowhere"})
	publisher.Clear()
	publisher.ShowError("nowhere")
}
