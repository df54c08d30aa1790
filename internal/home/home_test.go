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

package home

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/loqalabs/loqa-pi/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		want Command
		ok   bool
	}{
		{"Turn on the light in the kitchen", Command{Action: ActionOn, Device: "light", Location: "kitchen"}, true},
		{"please switch off the living room lamp", Command{Action: ActionOff, Device: "lamp", Location: "living_room"}, true},
		{"turn off the lights.", Command{Action: ActionOff, Device: "light"}, true},
		{"Turn on the TV", Command{Action: ActionOn, Device: "tv"}, true},
		{"turn on the bedroom fan, then turn off the light", Command{Action: ActionOn, Device: "fan", Location: "bedroom"}, true},
		{"what is the weather", Command{}, false},
		{"turn on the toaster", Command{}, false},
		{"the light is nice", Command{}, false},
		{"what is the return on a lamp", Command{}, false},
		{"turn on the light in the storage bedroomette", Command{Action: ActionOn, Device: "light"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ParseCommand(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfirmation(t *testing.T) {
	assert.Equal(t, "Turning on the light in the kitchen.",
		Command{Action: ActionOn, Device: "light", Location: "kitchen"}.Confirmation())
	assert.Equal(t, "Turning off the fan in the living room.",
		Command{Action: ActionOff, Device: "fan", Location: "living_room"}.Confirmation())
	assert.Equal(t, "Turning off the tv.", Command{Action: ActionOff, Device: "tv"}.Confirmation())
}

type capturePublisher struct {
	subject string
	payload any
	err     error
}

func (p *capturePublisher) PublishJSON(subject string, v any) error {
	p.subject, p.payload = subject, v
	return p.err
}

func TestNATSBackend(t *testing.T) {
	pub := &capturePublisher{}
	b := NewNATSBackend(pub)

	cmd := Command{Action: ActionOn, Device: "light", Location: "kitchen"}
	require.NoError(t, b.Execute(context.Background(), cmd, "turn on the kitchen light"))

	assert.Equal(t, "loqa.devices.commands.light", pub.subject)
	event, ok := pub.payload.(DeviceCommandEvent)
	require.True(t, ok)
	assert.Equal(t, "on", event.Action)
	assert.Equal(t, "kitchen", event.Location)
	assert.Equal(t, "turn on the kitchen light", event.Transcription)
	assert.NotEmpty(t, event.RequestID)

	assert.Error(t, b.Execute(context.Background(), Command{Action: ActionOn, Device: "light.>"}, ""))

	pub.err = errors.New("nats: connection closed")
	assert.Error(t, b.Execute(context.Background(), cmd, ""))
}

func TestHomeAssistantBackend(t *testing.T) {
	var gotPath, gotAuth, gotEntity string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotEntity = body["entity_id"]
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	b := NewHomeAssistantBackend(config.HomeConfig{HAURL: server.URL + "/", HAToken: "secret"})
	require.NoError(t, b.Execute(context.Background(), Command{Action: ActionOff, Device: "fan"}, ""))

	assert.Equal(t, "/api/services/switch/turn_off", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "switch.fan", gotEntity)
}

func TestHomeAssistantBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "401: Unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	b := NewHomeAssistantBackend(config.HomeConfig{HAURL: server.URL})
	err := b.Execute(context.Background(), Command{Action: ActionOn, Device: "plug"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestHandler(t *testing.T) {
	pub := &capturePublisher{}
	h := NewHandler(NewNATSBackend(pub))

	reply, handled, err := h.Handle(context.Background(), "Turn on the light in the kitchen")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "Turning on the light in the kitchen.", reply)

	reply, handled, err = h.Handle(context.Background(), "tell me a joke")
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, reply)

	pub.err = errors.New("down")
	_, handled, err = h.Handle(context.Background(), "turn off the fan")
	assert.True(t, handled)
	assert.Error(t, err)

	var none *Handler
	_, handled, _ = none.Handle(context.Background(), "turn on the light")
	assert.False(t, handled)
}

func TestNewBackend(t *testing.T) {
	_, err := NewBackend(config.HomeConfig{Backend: "nats"}, nil)
	assert.Error(t, err)

	b, err := NewBackend(config.HomeConfig{Backend: "nats"}, &capturePublisher{})
	require.NoError(t, err)
	assert.IsType(t, &NATSBackend{}, b)

	b, err = NewBackend(config.HomeConfig{Backend: "homeassistant", HAURL: "http://ha.local"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &HomeAssistantBackend{}, b)

	_, err = NewBackend(config.HomeConfig{Backend: "x10"}, nil)
	assert.Error(t, err)
}
