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

//go:build !whisper

package llm

import (
	"context"
	"fmt"
)

// WhisperTranscriber stub for builds without whisper.cpp
type WhisperTranscriber struct{}

// NewWhisperTranscriber stub implementation
func NewWhisperTranscriber(modelPath, language string) (*WhisperTranscriber, error) {
	return nil, fmt.Errorf("whisper transcription disabled (build with -tags whisper to enable)")
}

// Transcribe stub implementation
func (wt *WhisperTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	return "", fmt.Errorf("whisper transcription disabled (build with -tags whisper to enable)")
}

// Close stub implementation
func (wt *WhisperTranscriber) Close() error {
	return nil
}
