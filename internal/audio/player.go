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
	"sync"

	"github.com/loqalabs/loqa-pi/internal/logging"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Player renders synthesized speech
type Player interface {
	Play(ctx context.Context, pcm []int16, sampleRate int) error
}

// FilePlayer writes each utterance to a WAV file instead of a speaker
type FilePlayer struct {
	fs  afero.Fs
	dir string

	mu   sync.Mutex
	last string
}

// NewFilePlayer creates a player that saves under dir
func NewFilePlayer(fs afero.Fs, dir string) *FilePlayer {
	return &FilePlayer{fs: fs, dir: dir}
}

// Play implements Player
func (p *FilePlayer) Play(ctx context.Context, pcm []int16, sampleRate int) error {
	if len(pcm) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path, _, err := EncodeWAV(p.fs, p.dir, "tts", pcm, sampleRate)
	if err != nil {
		return fmt.Errorf("failed to save speech: %w", err)
	}

	p.mu.Lock()
	p.last = path
	p.mu.Unlock()

	logging.LogTTSOperation("saved", zap.String("path", path), zap.Duration("duration", Duration(pcm, sampleRate)))
	return nil
}

// LastPath returns the most recently written file
func (p *FilePlayer) LastPath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// NopPlayer discards audio
type NopPlayer struct{}

// Play implements Player
func (NopPlayer) Play(context.Context, []int16, int) error { return nil }

// NewPlayer picks an output from a config string: "portaudio", "file" or "none"
func NewPlayer(fs afero.Fs, spec, dir string) (Player, error) {
	switch spec {
	case "", "portaudio":
		player, err := NewPortAudioPlayer()
		if err != nil {
			return nil, err
		}
		return player, nil
	case "file":
		return NewFilePlayer(fs, dir), nil
	case "none":
		return NopPlayer{}, nil
	}
	return nil, fmt.Errorf("unknown audio output: %q", spec)
}
