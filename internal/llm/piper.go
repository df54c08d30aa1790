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
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/loqalabs/loqa-pi/internal/config"
	"github.com/loqalabs/loqa-pi/internal/executil"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"go.uber.org/zap"
)

// ErrVoiceMissing means the configured voice model file does not exist
var ErrVoiceMissing = errors.New("voice model not found")

// PiperTTS synthesizes speech by piping text through the piper binary
type PiperTTS struct {
	exec       *executil.Executor
	model      string
	sampleRate int
}

// NewPiperTTS creates a piper synthesizer using the real binary
func NewPiperTTS(cfg config.TTSConfig) (*PiperTTS, error) {
	exec, err := executil.NewExecutor(cfg.PiperBinary, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("piper unavailable: %w", err)
	}
	return NewPiperTTSWithExecutor(cfg, exec), nil
}

// NewPiperTTSWithExecutor lets tests substitute the runner
func NewPiperTTSWithExecutor(cfg config.TTSConfig, exec *executil.Executor) *PiperTTS {
	rate := cfg.PiperSampleRate
	if rate <= 0 {
		rate = 22050
	}
	return &PiperTTS{exec: exec, model: cfg.PiperModel, sampleRate: rate}
}

// Synthesize implements TextToSpeech
func (p *PiperTTS) Synthesize(ctx context.Context, text string) (*TTSResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	if _, err := os.Stat(p.model); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrVoiceMissing, p.model)
	}

	startTime := time.Now()
	args := []string{"--model", p.model, "--output-raw", "--sentence-silence", "0.1"}

	raw, err := p.exec.Execute(ctx, args, strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("piper synthesis failed: %w", err)
	}

	pcm := make([]int16, len(raw)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}

	result := &TTSResult{PCM: pcm, SampleRate: p.sampleRate}
	logging.LogTTSOperation("synthesis_complete",
		zap.String("backend", "piper"),
		zap.Int("text_length", len(text)),
		zap.Duration("audio", result.Duration()),
		zap.Duration("processing_time", time.Since(startTime)),
	)
	return result, nil
}

// Close implements TextToSpeech
func (p *PiperTTS) Close() error {
	return nil
}
