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

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-pi/internal/audio"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"go.uber.org/zap"
)

// Speaker turns text into audible speech
type Speaker struct {
	tts    TextToSpeech
	player audio.Player
}

// NewSpeaker pairs a synthesizer with an output. A nil tts makes Speak a
// silent no-op.
func NewSpeaker(tts TextToSpeech, player audio.Player) *Speaker {
	if player == nil {
		player = audio.NopPlayer{}
	}
	return &Speaker{tts: tts, player: player}
}

// Speak synthesizes and plays text. Empty text does nothing, and a missing
// voice model only logs a warning so the pipeline still completes.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" || s.tts == nil {
		return nil
	}

	result, err := s.tts.Synthesize(ctx, text)
	if err != nil {
		if errors.Is(err, ErrVoiceMissing) {
			logging.LogWarn("TTS voice missing, skipping speech", zap.Error(err))
			return nil
		}
		return fmt.Errorf("speech synthesis failed: %w", err)
	}

	if err := s.player.Play(ctx, result.PCM, result.SampleRate); err != nil {
		return fmt.Errorf("speech playback failed: %w", err)
	}
	return nil
}

// Close releases the synthesizer
func (s *Speaker) Close() error {
	if s.tts == nil {
		return nil
	}
	return s.tts.Close()
}
