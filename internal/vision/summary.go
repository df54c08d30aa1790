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

package vision

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-pi/internal/llm"
)

// NoObjectsSentence is spoken when nothing was detected
const NoObjectsSentence = "I could not detect any objects in the scene."

// Generator produces a reply for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate implements Generator
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Summarize verbalizes labels. An empty set short-circuits to a fixed
// sentence without calling the model.
func Summarize(ctx context.Context, labels []string, gen Generator) (string, error) {
	if len(labels) == 0 {
		return NoObjectsSentence, nil
	}
	reply, err := gen.Generate(ctx, llm.BuildDetectionPrompt(labels))
	if err != nil {
		return "", fmt.Errorf("detection summary failed: %w", err)
	}
	return reply, nil
}
