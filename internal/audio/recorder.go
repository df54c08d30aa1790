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

package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/loqalabs/loqa-pi/internal/logging"
	"go.uber.org/zap"
)

// DefaultJoinTimeout bounds how long StopAndCollect waits for the capture goroutine
const DefaultJoinTimeout = 2 * time.Second

// Recorder captures one push-to-talk clip at a time
type Recorder struct {
	source      Source
	sampleRate  int
	maxSamples  int
	joinTimeout time.Duration

	mu      sync.Mutex
	current *capture
}

// capture is the state of one recording; goroutines of an abandoned
// capture only ever touch their own struct
type capture struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	samples []int16
	err     error
}

func (c *capture) snapshot() ([]int16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int16(nil), c.samples...), c.err
}

// RecorderConfig holds capture limits
type RecorderConfig struct {
	SampleRate  int
	MaxDuration time.Duration
	JoinTimeout time.Duration
}

// NewRecorder creates a recorder over source
func NewRecorder(source Source, cfg RecorderConfig) *Recorder {
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}

	maxSamples := 0
	if cfg.MaxDuration > 0 && cfg.SampleRate > 0 {
		maxSamples = int(cfg.MaxDuration.Seconds() * float64(cfg.SampleRate))
	}

	return &Recorder{
		source:      source,
		sampleRate:  cfg.SampleRate,
		maxSamples:  maxSamples,
		joinTimeout: cfg.JoinTimeout,
	}
}

// SampleRate returns the capture rate
func (r *Recorder) SampleRate() int {
	return r.sampleRate
}

// Recording reports whether a capture is in progress
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil
}

// Start begins a capture. Starting while already recording is a no-op.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		return nil
	}
	if r.source == nil {
		return errors.New("no audio source configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &capture{cancel: cancel, done: make(chan struct{})}
	frames := make(chan []int16, 16)
	r.current = c

	go func() {
		err := r.source.Start(ctx, frames)
		if err != nil && !errors.Is(err, context.Canceled) {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
		}
		close(frames)
	}()

	go func() {
		defer close(c.done)
		for frame := range frames {
			c.mu.Lock()
			if r.maxSamples == 0 || len(c.samples) < r.maxSamples {
				c.samples = append(c.samples, frame...)
				if r.maxSamples > 0 && len(c.samples) > r.maxSamples {
					c.samples = c.samples[:r.maxSamples]
				}
			}
			c.mu.Unlock()
		}
	}()

	logging.LogPipelineStage("chat", "record_start", zap.Int("sample_rate", r.sampleRate))
	return nil
}

// StopAndCollect stops the capture and returns everything recorded. If the
// capture goroutine does not finish within the join timeout, whatever has
// arrived so far is returned.
func (r *Recorder) StopAndCollect(ctx context.Context) ([]int16, error) {
	r.mu.Lock()
	c := r.current
	r.current = nil
	r.mu.Unlock()

	if c == nil {
		return nil, nil
	}

	c.cancel()

	timer := time.NewTimer(r.joinTimeout)
	defer timer.Stop()

	select {
	case <-c.done:
	case <-timer.C:
		logging.LogWarn("Audio capture did not stop in time", zap.Duration("timeout", r.joinTimeout))
	case <-ctx.Done():
		logging.LogWarn("Audio collection abandoned", zap.Error(ctx.Err()))
	}

	samples, err := c.snapshot()
	if err != nil {
		return samples, fmt.Errorf("audio capture failed: %w", err)
	}

	logging.LogPipelineStage("chat", "record_stop", zap.Int("samples", len(samples)))
	return samples, nil
}

// Cancel aborts a capture and discards its samples
func (r *Recorder) Cancel() {
	r.mu.Lock()
	c := r.current
	r.current = nil
	r.mu.Unlock()

	if c == nil {
		return
	}

	c.cancel()
	logging.LogPipelineStage("chat", "record_cancel")
}
