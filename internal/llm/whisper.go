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

//go:build whisper

package llm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/loqalabs/loqa-pi/internal/audio"
	"github.com/loqalabs/loqa-pi/internal/logging"
)

const whisperSampleRate = 16000

// WhisperTranscriber handles speech-to-text using a local whisper.cpp model
type WhisperTranscriber struct {
	mu        sync.Mutex
	model     whisper.Model
	modelPath string
	language  string
}

// NewWhisperTranscriber creates a new Whisper transcriber
func NewWhisperTranscriber(modelPath, language string) (*WhisperTranscriber, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("whisper model not found at %s", modelPath)
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load whisper model: %w", err)
	}

	logging.Sugar.Infof("✅ Whisper model loaded: %s", modelPath)
	return &WhisperTranscriber{
		model:     model,
		modelPath: modelPath,
		language:  language,
	}, nil
}

// Transcribe implements Transcriber
func (wt *WhisperTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	samples, rate, err := audio.DecodeWAV(bytes.NewReader(wav))
	if err != nil {
		return "", err
	}
	if rate != whisperSampleRate {
		return "", fmt.Errorf("whisper needs %d Hz audio, got %d", whisperSampleRate, rate)
	}

	data := make([]float32, len(samples))
	for i, s := range samples {
		data[i] = float32(s) / 32768
	}

	// a model context is not safe for concurrent use
	wt.mu.Lock()
	defer wt.mu.Unlock()

	if wt.model == nil {
		return "", fmt.Errorf("whisper model not initialized")
	}

	wctx, err := wt.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("failed to create whisper context: %w", err)
	}
	if wt.language != "" {
		if err := wctx.SetLanguage(wt.language); err != nil {
			logging.Sugar.Warnf("Whisper language %q not supported: %v", wt.language, err)
		}
	}

	// the encoder callback returns false to abort
	keepGoing := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(data, keepGoing, nil, nil); err != nil {
		return "", fmt.Errorf("failed to process audio: %w", err)
	}

	var transcript strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if err != nil {
			break
		}
		transcript.WriteString(segment.Text)
	}

	result := CleanTranscript(transcript.String())
	logging.Sugar.Infof("🧠 Whisper transcription: %q", result)
	return result, nil
}

// Close cleans up the Whisper model
func (wt *WhisperTranscriber) Close() error {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	if wt.model != nil {
		err := wt.model.Close()
		wt.model = nil
		logging.Sugar.Info("🧠 Whisper model closed")
		return err
	}
	return nil
}
