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
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-captions/internal/pipeline"
	"github.com/loqalabs/loqa-captions/internal/recognition"
	"github.com/loqalabs/loqa-captions/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	mu        sync.Mutex
	active    bool
	supported bool
	toggleErr error
	updateErr error
	patches   []session.Patch
}

func (p *fakePipeline) Toggle(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.toggleErr != nil {
		return false, p.toggleErr
	}
	p.active = !p.active
	return p.active, nil
}

func (p *fakePipeline) UpdateSettings(_ context.Context, patch session.Patch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.updateErr != nil {
		return p.updateErr
	}
	p.patches = append(p.patches, patch)
	return nil
}

func (p *fakePipeline) Status() pipeline.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return pipeline.Status{Active: p.active, Supported: p.supported}
}

func TestControlService_Handle(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*fakePipeline)
		request string
		want    string
	}{
		{
			name:    "toggle on",
			request: `{"action":"toggle"}`,
			want:    `{"active":true}`,
		},
		{
			name:    "toggle unsupported",
			setup:   func(p *fakePipeline) { p.toggleErr = recognition.ErrUnsupported },
			request: `{"action":"toggle"}`,
			want:    `{"active":false,"error":"speech recognition not supported"}`,
		},
		{
			name:    "get status",
			setup:   func(p *fakePipeline) { p.supported = true },
			request: `{"action":"getStatus"}`,
			want:    `{"active":false,"supported":true}`,
		},
		{
			name:    "update settings",
			request: `{"action":"updateSettings","settings":{"fontSize":"24px"}}`,
			want:    `{"status":"updated"}`,
		},
		{
			name:    "update settings rejected",
			setup:   func(p *fakePipeline) { p.updateErr = errors.New("invalid settings: bad color") },
			request: `{"action":"updateSettings","settings":{"textColor":"red"}}`,
			want:    `{"error":"invalid settings: bad color"}`,
		},
		{
			name:    "unknown action",
			request: `{"action":"explode"}`,
			want:    `{"error":"unknown action: \"explode\""}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{}
			if tt.setup != nil {
				tt.setup(p)
			}
			service := NewControlService(p, time.Second)

			got := service.Handle(context.Background(), []byte(tt.request))
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestControlService_HandleMalformed(t *testing.T) {
	service := NewControlService(&fakePipeline{}, 0)

	var resp ControlResponse
	require.NoError(t, json.Unmarshal(service.Handle(context.Background(), []byte("{not json")), &resp))
	assert.Contains(t, resp.Error, "invalid request")
}

func TestControlService_DispatchPassesPatch(t *testing.T) {
	p := &fakePipeline{}
	service := NewControlService(p, time.Second)

	var req ControlRequest
	require.NoError(t, json.Unmarshal([]byte(`{"action":"updateSettings","settings":{"targetLanguage":"de","translationEnabled":false}}`), &req))
	resp := service.Dispatch(context.Background(), req)

	assert.Equal(t, "updated", resp.Status)
	require.Len(t, p.patches, 1)
	require.NotNil(t, p.patches[0].TargetLanguage)
	assert.Equal(t, "de", *p.patches[0].TargetLanguage)
	require.NotNil(t, p.patches[0].TranslationEnabled)
	assert.False(t, *p.patches[0].TranslationEnabled)
	assert.Nil(t, p.patches[0].FontSize)
}

func TestControlService_RequestReply(t *testing.T) {
	conn := runTestServer(t)
	subjects := NewSubjects("loqa.captions", "default")
	p := &fakePipeline{supported: true}

	service := NewControlService(p, time.Second)
	require.NoError(t, service.Subscribe(conn, subjects.Control))
	defer service.Close()

	msg, err := conn.Request(subjects.Control, []byte(`{"action":"toggle"}`), 2*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"active":true}`, string(msg.Data))

	msg, err = conn.Request(subjects.Control, []byte(`{"action":"getStatus"}`), 2*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"active":true,"supported":true}`, string(msg.Data))

	require.NoError(t, service.Close())
	assert.NoError(t, service.Close())
}

func TestControlService_SubscribeWithoutConnection(t *testing.T) {
	service := NewControlService(&fakePipeline{}, time.Second)
	assert.Error(t, service.Subscribe(nil, "x"))
}
