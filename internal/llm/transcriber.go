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
	"regexp"
	"strings"
)

// Transcriber defines the interface for speech-to-text transcription services
type Transcriber interface {
	// Transcribe converts a WAV clip to text
	Transcribe(ctx context.Context, wav []byte) (string, error)

	// Close cleans up resources
	Close() error
}

// whisper marks non-speech with bracketed or parenthesized tags
var annotationPattern = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)

// CleanTranscript drops annotations such as [BLANK_AUDIO] or (music) and
// collapses whitespace
func CleanTranscript(text string) string {
	text = annotationPattern.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}
