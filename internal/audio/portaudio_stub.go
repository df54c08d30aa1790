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

//go:build !portaudio

package audio

import (
	"context"
	"errors"
)

// ErrNoPortAudio is returned when the binary was built without PortAudio
var ErrNoPortAudio = errors.New("built without portaudio support (use -tags portaudio)")

// PortAudioSource is unavailable in this build
type PortAudioSource struct{}

// NewPortAudioSource always fails without the portaudio tag
func NewPortAudioSource(sampleRate, framesPerBuffer int) (*PortAudioSource, error) {
	return nil, ErrNoPortAudio
}

// Start implements Source
func (s *PortAudioSource) Start(ctx context.Context, frames chan<- []int16) error {
	return ErrNoPortAudio
}

// PortAudioPlayer is unavailable in this build
type PortAudioPlayer struct{}

// NewPortAudioPlayer always fails without the portaudio tag
func NewPortAudioPlayer() (*PortAudioPlayer, error) {
	return nil, ErrNoPortAudio
}

// Play implements Player
func (p *PortAudioPlayer) Play(ctx context.Context, pcm []int16, sampleRate int) error {
	return ErrNoPortAudio
}
