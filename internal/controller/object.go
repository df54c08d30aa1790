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

package controller

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-pi/internal/display"
	"github.com/loqalabs/loqa-pi/internal/events"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"github.com/loqalabs/loqa-pi/internal/vision"
	"go.uber.org/zap"
)

const objectMode = string(events.ModeObject)

// runObject captures a still, names what is in it and speaks a summary
func (c *Controller) runObject(ctx context.Context, in *events.Interaction) error {
	c.deps.Display.Show(display.ScreenProcessing)

	if c.deps.Camera == nil || c.deps.Detector == nil {
		return fmt.Errorf("camera or detector not configured")
	}

	path, jpeg, err := c.deps.Camera.Capture(ctx)
	if err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}
	logging.LogPipelineStage(objectMode, "captured", zap.String("path", path), zap.Int("bytes", len(jpeg)))

	detections, err := c.deps.Detector.Detect(ctx, jpeg)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}
	labels := vision.UniqueLabels(detections, c.minConfidence)
	in.SetDetections(path, labels)
	logging.LogPipelineStage(objectMode, "detected",
		zap.Int("detections", len(detections)),
		zap.Strings("labels", labels),
	)

	// detection prompts go through the chat prompt without history so
	// retrieved memory still applies
	gen := vision.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		reply, count, err := c.answer(ctx, prompt, nil)
		in.SetContext(count)
		return reply, err
	})

	summary, err := vision.Summarize(ctx, labels, gen)
	if err != nil {
		return fmt.Errorf("summary failed: %w", err)
	}
	in.SetResponse(events.RouteDetection, summary)

	if err := c.speak(ctx, summary); err != nil {
		return err
	}
	c.showIdle()
	return nil
}
