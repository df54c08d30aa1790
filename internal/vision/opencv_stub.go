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

//go:build !opencv

package vision

import (
	"context"
	"errors"

	"github.com/loqalabs/loqa-pi/internal/config"
	"github.com/spf13/afero"
)

// ErrNoOpenCV is returned when the binary was built without gocv
var ErrNoOpenCV = errors.New("built without opencv support (use -tags opencv)")

// OpenCVCamera is unavailable in this build
type OpenCVCamera struct{}

// NewOpenCVCamera always fails without the opencv tag
func NewOpenCVCamera(cfg config.VisionConfig, fs afero.Fs) (*OpenCVCamera, error) {
	return nil, ErrNoOpenCV
}

// Capture implements Camera
func (c *OpenCVCamera) Capture(ctx context.Context) (string, []byte, error) {
	return "", nil, ErrNoOpenCV
}

// Close implements Camera
func (c *OpenCVCamera) Close() error { return nil }

// YOLODetector is unavailable in this build
type YOLODetector struct{}

// NewYOLO always fails without the opencv tag
func NewYOLO(cfg YOLOConfig) (*YOLODetector, error) {
	return nil, ErrNoOpenCV
}

// Detect implements Detector
func (d *YOLODetector) Detect(ctx context.Context, jpeg []byte) ([]Detection, error) {
	return nil, ErrNoOpenCV
}

// Close implements Detector
func (d *YOLODetector) Close() error { return nil }
