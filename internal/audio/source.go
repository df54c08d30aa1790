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
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Source is a microphone. Start blocks, sending frames until ctx is done,
// and must not send after it returns.
type Source interface {
	Start(ctx context.Context, frames chan<- []int16) error
}

// SilentSource emits zeroed frames at real-time pace. It stands in for a
// microphone on headless boxes.
type SilentSource struct {
	SampleRate      int
	FramesPerBuffer int
}

// Start implements Source
func (s SilentSource) Start(ctx context.Context, frames chan<- []int16) error {
	if s.SampleRate <= 0 || s.FramesPerBuffer <= 0 {
		return fmt.Errorf("invalid silent source format: rate=%d frames=%d", s.SampleRate, s.FramesPerBuffer)
	}

	period := time.Duration(s.FramesPerBuffer) * time.Second / time.Duration(s.SampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			select {
			case frames <- make([]int16, s.FramesPerBuffer):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// SliceSource replays fixed samples in buffer-sized frames, then waits for
// ctx like a live microphone that has gone quiet.
type SliceSource struct {
	Samples         []int16
	FramesPerBuffer int
}

// Start implements Source
func (s SliceSource) Start(ctx context.Context, frames chan<- []int16) error {
	size := s.FramesPerBuffer
	if size <= 0 {
		size = 1024
	}

	for i := 0; i < len(s.Samples); i += size {
		end := i + size
		if end > len(s.Samples) {
			end = len(s.Samples)
		}
		chunk := append([]int16(nil), s.Samples[i:end]...)
		select {
		case frames <- chunk:
		case <-ctx.Done():
			return nil
		}
	}

	<-ctx.Done()
	return nil
}

// NewFileSource loads a WAV clip and replays it as a microphone
func NewFileSource(fs afero.Fs, path string, framesPerBuffer int) (*SliceSource, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	samples, _, err := DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return &SliceSource{Samples: samples, FramesPerBuffer: framesPerBuffer}, nil
}

// NewSource picks a microphone from a config string: "portaudio", "silent"
// or "file:<path>"
func NewSource(fs afero.Fs, spec string, sampleRate, framesPerBuffer int) (Source, error) {
	switch {
	case spec == "" || spec == "portaudio":
		src, err := NewPortAudioSource(sampleRate, framesPerBuffer)
		if err != nil {
			return nil, err
		}
		return src, nil
	case spec == "silent":
		return SilentSource{SampleRate: sampleRate, FramesPerBuffer: framesPerBuffer}, nil
	case strings.HasPrefix(spec, "file:"):
		src, err := NewFileSource(fs, strings.TrimPrefix(spec, "file:"), framesPerBuffer)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return nil, fmt.Errorf("unknown audio input: %q", spec)
}
