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
	"fmt"

	"github.com/loqalabs/loqa-pi/internal/config"
)

// NewTranscriber builds the configured speech-to-text backend
func NewTranscriber(cfg config.STTConfig) (Transcriber, error) {
	switch cfg.Backend {
	case "", "rest":
		return NewSTTClient(cfg), nil
	case "whisper":
		wt, err := NewWhisperTranscriber(cfg.ModelPath, cfg.Language)
		if err != nil {
			return nil, err
		}
		return wt, nil
	}
	return nil, fmt.Errorf("unknown STT backend: %q", cfg.Backend)
}

// NewTextToSpeech builds the configured synthesizer; "none" yields nil
func NewTextToSpeech(cfg config.TTSConfig) (TextToSpeech, error) {
	switch cfg.Backend {
	case "", "piper":
		p, err := NewPiperTTS(cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "kokoro":
		k, err := NewKokoroClient(cfg)
		if err != nil {
			return nil, err
		}
		return k, nil
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown TTS backend: %q", cfg.Backend)
}
