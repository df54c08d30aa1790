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

//go:build portaudio

package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"go.uber.org/zap"
)

var (
	paMu   sync.Mutex
	paRefs int
)

// acquire and release reference-count the PortAudio library; several streams
// may be open at once
func acquire() error {
	paMu.Lock()
	defer paMu.Unlock()
	if paRefs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize PortAudio: %w", err)
		}
	}
	paRefs++
	return nil
}

func release() {
	paMu.Lock()
	defer paMu.Unlock()
	paRefs--
	if paRefs == 0 {
		if err := portaudio.Terminate(); err != nil {
			logging.LogWarn("PortAudio terminate failed", zap.Error(err))
		}
	}
}

// PortAudioSource reads the default input device
type PortAudioSource struct {
	sampleRate      int
	framesPerBuffer int
}

// NewPortAudioSource checks that an input device exists
func NewPortAudioSource(sampleRate, framesPerBuffer int) (*PortAudioSource, error) {
	if err := acquire(); err != nil {
		return nil, err
	}
	defer release()

	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("no input device: %w", err)
	}
	logging.Sugar.Infof("🎙️  Using input device %s", dev.Name)

	return &PortAudioSource{sampleRate: sampleRate, framesPerBuffer: framesPerBuffer}, nil
}

// Start implements Source
func (s *PortAudioSource) Start(ctx context.Context, frames chan<- []int16) error {
	if err := acquire(); err != nil {
		return err
	}
	defer release()

	in := make([]int16, s.framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(s.sampleRate), len(in), in)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	defer stream.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := stream.Read(); err != nil {
			// overflow drops a buffer but the stream is still usable
			if err == portaudio.InputOverflowed {
				continue
			}
			return fmt.Errorf("failed to read input stream: %w", err)
		}

		select {
		case frames <- append([]int16(nil), in...):
		case <-ctx.Done():
			return nil
		}
	}
}

// PortAudioPlayer writes to the default output device
type PortAudioPlayer struct {
	mu sync.Mutex
}

// NewPortAudioPlayer checks that an output device exists
func NewPortAudioPlayer() (*PortAudioPlayer, error) {
	if err := acquire(); err != nil {
		return nil, err
	}
	defer release()

	if _, err := portaudio.DefaultOutputDevice(); err != nil {
		return nil, fmt.Errorf("no output device: %w", err)
	}
	return &PortAudioPlayer{}, nil
}

// Play implements Player. Calls are serialized so utterances never overlap.
func (p *PortAudioPlayer) Play(ctx context.Context, pcm []int16, sampleRate int) error {
	if len(pcm) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := acquire(); err != nil {
		return err
	}
	defer release()

	out := make([]int16, 1024)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(out), out)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	defer stream.Stop()

	for i := 0; i < len(pcm); i += len(out) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(out, pcm[i:])
		for j := n; j < len(out); j++ {
			out[j] = 0
		}
		if err := stream.Write(); err != nil && err != portaudio.OutputUnderflowed {
			return fmt.Errorf("failed to write output stream: %w", err)
		}
	}
	return nil
}
