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

package buttons

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-pi/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingTarget struct {
	mu      sync.Mutex
	calls   []string
	active  int
	overlap bool
}

func (r *recordingTarget) record(s string) {
	r.mu.Lock()
	r.active++
	if r.active > 1 {
		r.overlap = true
	}
	r.calls = append(r.calls, s)
	r.mu.Unlock()

	time.Sleep(time.Millisecond)

	r.mu.Lock()
	r.active--
	r.mu.Unlock()
}

func (r *recordingTarget) OnModeButton(m events.Mode) { r.record("mode:" + string(m)) }
func (r *recordingTarget) OnActionPress()            { r.record("press") }
func (r *recordingTarget) OnActionRelease()          { r.record("release") }

func (r *recordingTarget) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestDebouncer(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	d := NewDebouncer(200*time.Millisecond, clock.Now)

	assert.True(t, d.Allow(K3, Press))
	clock.Advance(50 * time.Millisecond)
	assert.False(t, d.Allow(K3, Press), "bounce within interval")
	assert.True(t, d.Allow(K3, Release), "other edge kind is independent")
	assert.True(t, d.Allow(K1, Press), "other button is independent")

	clock.Advance(200 * time.Millisecond)
	assert.True(t, d.Allow(K3, Press))
}

func TestDebouncerDisabled(t *testing.T) {
	d := NewDebouncer(0, nil)
	for i := 0; i < 3; i++ {
		assert.True(t, d.Allow(K1, Press))
	}
}

func TestDispatcherRouting(t *testing.T) {
	target := &recordingTarget{}
	d := NewDispatcher(target, nil)

	assert.True(t, d.Dispatch(K1, Press, events.SourceGPIO))
	assert.True(t, d.Dispatch(K2, Press, events.SourceGPIO))
	assert.True(t, d.Dispatch(K3, Press, events.SourceGPIO))
	assert.True(t, d.Dispatch(K3, Release, events.SourceGPIO))
	assert.False(t, d.Dispatch(K1, Release, events.SourceGPIO), "mode key releases are ignored")

	assert.Equal(t, []string{"mode:chat", "mode:object", "press", "release"}, target.Calls())

	accepted, dropped := d.Stats()
	assert.Equal(t, uint64(4), accepted)
	assert.Zero(t, dropped)
}

func TestDispatcherDebounces(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	target := &recordingTarget{}
	d := NewDispatcher(target, NewDebouncer(DefaultDebounce, clock.Now))

	d.Dispatch(K2, Press, events.SourceGPIO)
	d.Dispatch(K2, Press, events.SourceGPIO)

	assert.Equal(t, []string{"mode:object"}, target.Calls())
	_, dropped := d.Stats()
	assert.Equal(t, uint64(1), dropped)
}

func TestDispatcherSerializes(t *testing.T) {
	target := &recordingTarget{}
	d := NewDispatcher(target, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(K3, Press, events.SourceNATS)
		}()
	}
	wg.Wait()

	assert.Len(t, target.Calls(), 10)
	assert.False(t, target.overlap, "target callbacks must not overlap")
}

func TestHandleJSON(t *testing.T) {
	target := &recordingTarget{}
	d := NewDispatcher(target, nil)

	require.NoError(t, d.HandleJSON([]byte(`{"button":"K3","edge":"press"}`), events.SourceNATS))
	require.NoError(t, d.HandleJSON([]byte(`{"button":"k3","edge":"up"}`), events.SourceNATS))
	assert.Equal(t, []string{"press", "release"}, target.Calls())

	assert.Error(t, d.HandleJSON([]byte(`not json`), events.SourceNATS))
	assert.Error(t, d.HandleJSON([]byte(`{"button":"k9","edge":"press"}`), events.SourceNATS))
	assert.Error(t, d.HandleJSON([]byte(`{"button":"k1","edge":"wiggle"}`), events.SourceNATS))
}

func TestKeyboardSource(t *testing.T) {
	defer goleak.VerifyNone(t)

	target := &recordingTarget{}
	d := NewDispatcher(target, nil)
	input := "1\n3d\n3u\n2\n3\nbogus\n\n"

	err := NewKeyboardSource(strings.NewReader(input), d).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"mode:chat", "press", "release", "mode:object", "press", "release"}, target.Calls())
}

func TestKeyboardSourceStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewKeyboardSource(pr, NewDispatcher(&recordingTarget{}, nil)).Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("keyboard source did not stop")
	}
}

func TestParse(t *testing.T) {
	b, err := ParseButton(" K2 ")
	require.NoError(t, err)
	assert.Equal(t, K2, b)

	e, err := ParseEdge("down")
	require.NoError(t, err)
	assert.Equal(t, Press, e)

	_, err = ParseEdge("sideways")
	assert.Error(t, err)
}
