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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-captions/internal/recognition"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost answers recognition commands the way the page agent does
type fakeHost struct {
	mu        sync.Mutex
	supported bool
	startErr  string
	commands  []RecognitionCommand
}

func (h *fakeHost) serve(t *testing.T, conn *nats.Conn, subjects Subjects) {
	t.Helper()
	sub, err := conn.Subscribe(subjects.RecognitionCommands, func(msg *nats.Msg) {
		var cmd RecognitionCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			return
		}

		h.mu.Lock()
		h.commands = append(h.commands, cmd)
		reply := RecognitionReply{Supported: h.supported}
		if cmd.Command == CommandStart {
			reply.Error = h.startErr
		}
		h.mu.Unlock()

		if msg.Reply != "" {
			data, _ := json.Marshal(reply)
			_ = msg.Respond(data)
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
}

func (h *fakeHost) received() []RecognitionCommand {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]RecognitionCommand(nil), h.commands...)
}

func publishEvent(t *testing.T, conn *nats.Conn, subject string, event RecognitionEvent) {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	require.NoError(t, conn.Publish(subject, data))
}

// collector gathers stream callbacks in delivery order
type collector struct {
	mu     sync.Mutex
	events []string
	done   chan struct{}
	want   int
}

func newCollector(want int) *collector {
	return &collector{done: make(chan struct{}), want: want}
}

func (c *collector) add(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	if len(c.events) == c.want {
		close(c.done)
	}
}

func (c *collector) callbacks() recognition.Callbacks {
	return recognition.Callbacks{
		OnResult: func(batch recognition.ResultBatch) {
			c.add("result:" + batch.Results[len(batch.Results)-1].Transcript)
		},
		OnError: func(kind, _ string) { c.add("error:" + kind) },
		OnEnd:   func() { c.add("end") },
	}
}

func (c *collector) wait(t *testing.T) []string {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for recognition events")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

func TestRemoteEngine_Supported(t *testing.T) {
	conn := runTestServer(t)
	subjects := NewSubjects("loqa.captions", "default")

	engine := NewRemoteEngine(conn, subjects, 200*time.Millisecond)
	assert.False(t, engine.Supported(), "no host answering")

	host := &fakeHost{supported: true}
	host.serve(t, conn, subjects)
	assert.True(t, engine.Supported())
	assert.Equal(t, CommandProbe, host.received()[0].Command)
}

func TestRemoteEngine_StreamLifecycle(t *testing.T) {
	conn := runTestServer(t)
	subjects := NewSubjects("loqa.captions", "default")
	host := &fakeHost{supported: true}
	host.serve(t, conn, subjects)

	engine := NewRemoteEngine(conn, subjects, time.Second)
	events := newCollector(4)
	stream, err := engine.Open(recognition.StreamOptions{
		Continuous:     true,
		InterimResults: true,
		Language:       "auto",
		AudioSource:    "page",
	}, events.callbacks())
	require.NoError(t, err)
	require.NoError(t, conn.Flush())
	require.NoError(t, stream.Start())

	commands := host.received()
	require.Len(t, commands, 1)
	start := commands[0]
	assert.Equal(t, CommandStart, start.Command)
	require.NotNil(t, start.Options)
	assert.True(t, start.Options.Continuous)
	assert.Equal(t, "page", start.Options.AudioSource)
	streamID := start.StreamID
	require.NotEmpty(t, streamID)

	// Events for another stream are ignored
	publishEvent(t, conn, subjects.RecognitionEvents, RecognitionEvent{Type: EventEnd, StreamID: "stale"})
	publishEvent(t, conn, subjects.RecognitionEvents, RecognitionEvent{
		Type:     EventResult,
		StreamID: streamID,
		Results:  []recognition.Fragment{{Transcript: "hel"}},
	})
	publishEvent(t, conn, subjects.RecognitionEvents, RecognitionEvent{
		Type:        EventResult,
		StreamID:    streamID,
		ResultIndex: 1,
		Results:     []recognition.Fragment{{Transcript: "hel"}, {Transcript: "hello", IsFinal: true}},
	})
	publishEvent(t, conn, subjects.RecognitionEvents, RecognitionEvent{Type: EventError, StreamID: streamID, Error: "no-speech"})
	publishEvent(t, conn, subjects.RecognitionEvents, RecognitionEvent{Type: EventEnd, StreamID: streamID})

	assert.Equal(t, []string{"result:hel", "result:hello", "error:no-speech", "end"}, events.wait(t))

	require.NoError(t, stream.Stop())
	require.NoError(t, stream.Stop())
	require.NoError(t, conn.Flush())

	require.Eventually(t, func() bool {
		received := host.received()
		return len(received) == 2 && received[1].Command == CommandStop && received[1].StreamID == streamID
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRemoteEngine_StartRejectedByHost(t *testing.T) {
	conn := runTestServer(t)
	subjects := NewSubjects("loqa.captions", "default")

	tests := []struct {
		name        string
		supported   bool
		unsupported bool
	}{
		{"unsupported", false, true},
		{"failed", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := &fakeHost{supported: tt.supported, startErr: "not-allowed"}
			host.serve(t, conn, subjects)

			stream, err := NewRemoteEngine(conn, subjects, time.Second).Open(recognition.StreamOptions{}, recognition.Callbacks{})
			require.NoError(t, err)
			defer stream.Stop()

			err = stream.Start()
			require.Error(t, err)
			assert.Equal(t, tt.unsupported, errors.Is(err, recognition.ErrUnsupported))
		})
	}
}

func TestRemoteEngine_DrivesController(t *testing.T) {
	conn := runTestServer(t)
	subjects := NewSubjects("loqa.captions", "default")
	host := &fakeHost{supported: true}
	host.serve(t, conn, subjects)

	controller := recognition.NewController(NewRemoteEngine(conn, subjects, time.Second), recognition.Options{
		RestartDelay:  10 * time.Millisecond,
		NoSpeechDelay: 50 * time.Millisecond,
	})
	require.NoError(t, controller.Start())
	defer controller.Stop()

	streamID := host.received()[1].StreamID
	publishEvent(t, conn, subjects.RecognitionEvents, RecognitionEvent{Type: EventEnd, StreamID: streamID})

	require.Eventually(t, func() bool {
		return controller.Restarts() == 1 && controller.State() == recognition.Running
	}, 2*time.Second, 10*time.Millisecond)
}
