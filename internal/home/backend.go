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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-pi/internal/config"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"github.com/loqalabs/loqa-pi/internal/security"
	"go.uber.org/zap"
)

// SubjectDeviceCommands prefixes per-device command subjects
const SubjectDeviceCommands = "loqa.devices.commands"

// Backend carries out a command
type Backend interface {
	Execute(ctx context.Context, cmd Command, transcript string) error
}

// Publisher sends JSON on a subject
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// DeviceCommandEvent is published for device controllers on the bus
type DeviceCommandEvent struct {
	RequestID     string `json:"request_id"`
	Transcription string `json:"transcription"`
	DeviceType    string `json:"device_type"`
	Location      string `json:"location,omitempty"`
	Action        string `json:"action"`
	Timestamp     int64  `json:"timestamp"`
}

// NATSBackend publishes device commands on loqa.devices.commands.<device>
type NATSBackend struct {
	pub Publisher
}

// NewNATSBackend creates a bus backend
func NewNATSBackend(pub Publisher) *NATSBackend {
	return &NATSBackend{pub: pub}
}

// Execute implements Backend
func (b *NATSBackend) Execute(ctx context.Context, cmd Command, transcript string) error {
	if err := security.ValidateIdentifier(cmd.Device); err != nil {
		return fmt.Errorf("invalid device: %w", err)
	}

	event := DeviceCommandEvent{
		RequestID:     uuid.NewString(),
		Transcription: transcript,
		DeviceType:    cmd.Device,
		Location:      cmd.Location,
		Action:        cmd.Action,
		Timestamp:     time.Now().Unix(),
	}

	subject := fmt.Sprintf("%s.%s", SubjectDeviceCommands, cmd.Device)
	if err := b.pub.PublishJSON(subject, event); err != nil {
		return fmt.Errorf("failed to publish device command: %w", err)
	}

	logging.LogNATSEvent(subject, "published",
		zap.String("request_id", event.RequestID),
		zap.String("device_action", cmd.Action),
	)
	return nil
}

// HomeAssistantBackend calls the Home Assistant switch services
type HomeAssistantBackend struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHomeAssistantBackend creates a REST backend
func NewHomeAssistantBackend(cfg config.HomeConfig) *HomeAssistantBackend {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HomeAssistantBackend{
		baseURL: strings.TrimSuffix(cfg.HAURL, "/"),
		token:   cfg.HAToken,
		client:  &http.Client{Timeout: timeout},
	}
}

// Execute implements Backend
func (b *HomeAssistantBackend) Execute(ctx context.Context, cmd Command, transcript string) error {
	body, err := json.Marshal(map[string]string{"entity_id": cmd.EntityID()})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/services/switch/%s", b.baseURL, cmd.Service())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("Home Assistant request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("Home Assistant returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	logging.Sugar.Infow("🏠 Home Assistant service called",
		"service", cmd.Service(),
		"entity_id", cmd.EntityID(),
	)
	return nil
}

// Handler answers home commands found in chat transcripts
type Handler struct {
	backend Backend
}

// NewHandler wraps a backend; a nil handler handles nothing
func NewHandler(backend Backend) *Handler {
	return &Handler{backend: backend}
}

// Handle executes text if it is a home command. handled is false when
// the transcript should go to the LLM instead.
func (h *Handler) Handle(ctx context.Context, text string) (reply string, handled bool, err error) {
	if h == nil || h.backend == nil {
		return "", false, nil
	}

	cmd, ok := ParseCommand(text)
	if !ok {
		return "", false, nil
	}

	if err := h.backend.Execute(ctx, cmd, text); err != nil {
		return "", true, err
	}
	return cmd.Confirmation(), true, nil
}

// NewBackend builds the configured backend; pub is required for "nats"
func NewBackend(cfg config.HomeConfig, pub Publisher) (Backend, error) {
	switch cfg.Backend {
	case "", "nats":
		if pub == nil {
			return nil, fmt.Errorf("home backend nats requires a NATS connection")
		}
		return NewNATSBackend(pub), nil
	case "homeassistant":
		return NewHomeAssistantBackend(cfg), nil
	}
	return nil, fmt.Errorf("unknown home backend: %q", cfg.Backend)
}
