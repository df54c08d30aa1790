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
	"fmt"
	"sync"
	"time"

	"github.com/loqalabs/loqa-pi/internal/config"
	"github.com/loqalabs/loqa-pi/internal/events"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATS subjects owned by loqa-pi
const (
	SubjectInteractions    = "loqa.pi.interactions"
	SubjectDeviceResponses = "loqa.devices.responses"
	SubjectSystemEvents    = "loqa.system.events"
)

// DeviceResponseEvent is what a device agent sends back after a command
type DeviceResponseEvent struct {
	RequestID  string `json:"request_id"`
	DeviceType string `json:"device_type"`
	DeviceID   string `json:"device_id,omitempty"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp"`
}

// Conn is the part of *nats.Conn the service uses
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	IsConnected() bool
	ConnectedUrl() string
	Stats() nats.Statistics
	Close()
}

// NATSService publishes pipeline output and receives remote button edges
type NATSService struct {
	cfg config.NATSConfig

	mu   sync.RWMutex
	conn Conn
}

// NewNATSService creates a service for cfg; call Connect before use
func NewNATSService(cfg config.NATSConfig) *NATSService {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	return &NATSService{cfg: cfg}
}

// NewNATSServiceWithConn wraps an existing connection
func NewNATSServiceWithConn(conn Conn) *NATSService {
	return &NATSService{conn: conn}
}

// Connect establishes connection to NATS server
func (ns *NATSService) Connect() error {
	logging.Sugar.Infof("🔌 Connecting to NATS at %s", ns.cfg.URL)

	maxReconnect := ns.cfg.MaxReconnect
	if maxReconnect == 0 {
		maxReconnect = -1
	}

	reconnectWait := ns.cfg.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}

	opts := []nats.Option{
		nats.Name("loqa-pi"),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnect),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logging.LogWarn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Sugar.Infof("🔄 NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logging.Sugar.Info("🔌 NATS connection closed")
		}),
	}

	conn, err := nats.Connect(ns.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	ns.mu.Lock()
	ns.conn = conn
	ns.mu.Unlock()

	if conn.IsConnected() {
		logging.Sugar.Infof("✅ Connected to NATS server at %s", conn.ConnectedUrl())
	} else {
		logging.LogWarn("NATS not reachable yet, retrying in background", zap.String("url", ns.cfg.URL))
	}
	return nil
}

func (ns *NATSService) connection() (Conn, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	if ns.conn == nil {
		return nil, fmt.Errorf("NATS connection not established")
	}
	return ns.conn, nil
}

// PublishJSON marshals v and publishes it on subject
func (ns *NATSService) PublishJSON(subject string, v any) error {
	conn, err := ns.connection()
	if err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", subject, err)
	}

	if err := conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// PublishInteraction announces a finished pipeline run
func (ns *NATSService) PublishInteraction(in *events.Interaction) error {
	subject := SubjectInteractions + "." + string(in.Mode)
	if err := ns.PublishJSON(subject, in); err != nil {
		return err
	}

	logging.LogNATSEvent(subject, "publish",
		zap.String("interaction_uuid", in.UUID),
		zap.Bool("success", in.Success),
	)
	return nil
}

// SubscribeRaw delivers every message on subject to handler
func (ns *NATSService) SubscribeRaw(subject string, handler func([]byte)) (*nats.Subscription, error) {
	conn, err := ns.connection()
	if err != nil {
		return nil, err
	}

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		logging.LogNATSEvent(msg.Subject, "receive", zap.Int("bytes", len(msg.Data)))
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

// SubscribeDeviceResponses subscribes to device agent responses
func (ns *NATSService) SubscribeDeviceResponses(handler func(*DeviceResponseEvent)) (*nats.Subscription, error) {
	return ns.SubscribeRaw(SubjectDeviceResponses, func(data []byte) {
		var event DeviceResponseEvent
		if err := json.Unmarshal(data, &event); err != nil {
			logging.LogError(err, "Error unmarshaling device response")
			return
		}

		logging.LogNATSEvent(SubjectDeviceResponses, "device_response",
			zap.String("device_type", event.DeviceType),
			zap.Bool("success", event.Success),
		)
		handler(&event)
	})
}

// Close closes the NATS connection
func (ns *NATSService) Close() {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.conn != nil {
		ns.conn.Close()
		ns.conn = nil
	}
}

// IsConnected returns true if connected to NATS
func (ns *NATSService) IsConnected() bool {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.conn != nil && ns.conn.IsConnected()
}

// GetStats returns connection statistics
func (ns *NATSService) GetStats() nats.Statistics {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	if ns.conn != nil {
		return ns.conn.Stats()
	}
	return nats.Statistics{}
}
