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

	"github.com/loqalabs/loqa-pi/internal/audio"
	"github.com/loqalabs/loqa-pi/internal/config"
	"github.com/loqalabs/loqa-pi/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	mu         sync.Mutex
	published  []published
	handlers   map[string]nats.MsgHandler
	publishErr error
	closed     bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{handlers: map[string]nats.MsgHandler{}}
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{subject, data})
	return nil
}

func (c *fakeConn) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[subject] = cb
	return &nats.Subscription{Subject: subject}, nil
}

func (c *fakeConn) deliver(subject string, data []byte) {
	c.mu.Lock()
	cb := c.handlers[subject]
	c.mu.Unlock()
	cb(&nats.Msg{Subject: subject, Data: data})
}

func (c *fakeConn) IsConnected() bool      { return !c.closed }
func (c *fakeConn) ConnectedUrl() string   { return "nats://fake:4222" }
func (c *fakeConn) Stats() nats.Statistics { return nats.Statistics{OutMsgs: uint64(len(c.published))} }
func (c *fakeConn) Close()                 { c.closed = true }

func TestNotConnected(t *testing.T) {
	ns := NewNATSService(config.NATSConfig{})

	assert.False(t, ns.IsConnected())
	assert.Error(t, ns.PublishJSON("x", map[string]string{}))
	_, err := ns.SubscribeRaw("x", func([]byte) {})
	assert.Error(t, err)
	assert.Equal(t, nats.Statistics{}, ns.GetStats())
	ns.Close()
}

func TestPublishInteraction(t *testing.T) {
	conn := newFakeConn()
	ns := NewNATSServiceWithConn(conn)

	in := events.NewInteraction(events.ModeObject)
	in.SetDetections("/captures/a.jpg", []string{"cup"})
	require.NoError(t, ns.PublishInteraction(in))

	require.Len(t, conn.published, 1)
	assert.Equal(t, "loqa.pi.interactions.object", conn.published[0].subject)

	var got events.Interaction
	require.NoError(t, json.Unmarshal(conn.published[0].data, &got))
	assert.Equal(t, in.UUID, got.UUID)
	assert.Equal(t, []string{"cup"}, got.Labels)
	assert.Equal(t, uint64(1), ns.GetStats().OutMsgs)
}

func TestPublishErrors(t *testing.T) {
	conn := newFakeConn()
	conn.publishErr = errors.New("slow consumer")
	ns := NewNATSServiceWithConn(conn)

	err := ns.PublishJSON("loqa.pi.display", map[string]int{"a": 1})
	assert.ErrorContains(t, err, "loqa.pi.display")

	assert.Error(t, ns.PublishJSON("x", make(chan int)), "unmarshalable payload")
}

func TestSubscribeRaw(t *testing.T) {
	conn := newFakeConn()
	ns := NewNATSServiceWithConn(conn)

	var got [][]byte
	_, err := ns.SubscribeRaw("loqa.pi.buttons", func(b []byte) { got = append(got, b) })
	require.NoError(t, err)

	conn.deliver("loqa.pi.buttons", []byte(`{"button":"k3","edge":"press"}`))
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"button":"k3","edge":"press"}`, string(got[0]))
}

func TestSubscribeDeviceResponses(t *testing.T) {
	conn := newFakeConn()
	ns := NewNATSServiceWithConn(conn)

	var got []*DeviceResponseEvent
	_, err := ns.SubscribeDeviceResponses(func(e *DeviceResponseEvent) { got = append(got, e) })
	require.NoError(t, err)

	conn.deliver(SubjectDeviceResponses, []byte(`{"request_id":"r1","device_type":"light","success":true}`))
	conn.deliver(SubjectDeviceResponses, []byte(`garbage`))

	require.Len(t, got, 1)
	assert.Equal(t, "light", got[0].DeviceType)
	assert.True(t, got[0].Success)
}

func TestCloseDropsConnection(t *testing.T) {
	conn := newFakeConn()
	ns := NewNATSServiceWithConn(conn)
	assert.True(t, ns.IsConnected())

	ns.Close()
	assert.True(t, conn.closed)
	assert.False(t, ns.IsConnected())
}

func TestAudioStreamPublisher(t *testing.T) {
	conn := newFakeConn()
	player := NewAudioStreamPublisher(NewNATSServiceWithConn(conn), "")

	require.NoError(t, player.Play(context.Background(), nil, 22050))
	assert.Empty(t, conn.published, "empty speech is not published")

	pcm := make([]int16, 2205)
	pcm[100] = 4000
	require.NoError(t, player.Play(context.Background(), pcm, 22050))
	require.Len(t, conn.published, 1)
	assert.Equal(t, SubjectSpeech, conn.published[0].subject)

	var msg AudioStreamMessage
	require.NoError(t, json.Unmarshal(conn.published[0].data, &msg))
	assert.Equal(t, "wav", msg.AudioFormat)
	assert.Equal(t, 22050, msg.SampleRate)
	assert.Equal(t, "RIFF", string(msg.AudioData[:4]))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, player.Play(ctx, pcm, 22050), context.Canceled)
}

func TestAudioStreamPublisherIsPlayer(t *testing.T) {
	var _ audio.Player = NewAudioStreamPublisher(nil, "custom")
}
