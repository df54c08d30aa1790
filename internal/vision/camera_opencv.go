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

//go:build opencv

package vision

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loqalabs/loqa-pi/internal/config"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// OpenCVCamera reads frames from a V4L2 device through gocv
type OpenCVCamera struct {
	fs      afero.Fs
	saveDir string

	mu      sync.Mutex
	capture *gocv.VideoCapture
}

// NewOpenCVCamera opens the configured device index
func NewOpenCVCamera(cfg config.VisionConfig, fs afero.Fs) (*OpenCVCamera, error) {
	capture, err := gocv.OpenVideoCapture(cfg.DeviceIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", cfg.DeviceIndex, err)
	}
	capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))

	return &OpenCVCamera{fs: fs, saveDir: cfg.SaveDir, capture: capture}, nil
}

// Capture implements Camera
func (c *OpenCVCamera) Capture(ctx context.Context) (string, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	if c.capture == nil {
		return "", nil, fmt.Errorf("camera closed")
	}

	img := gocv.NewMat()
	defer img.Close()

	if ok := c.capture.Read(&img); !ok || img.Empty() {
		return "", nil, fmt.Errorf("camera returned no frame")
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	jpeg := append([]byte(nil), buf.GetBytes()...)
	path, err := saveCapture(c.fs, c.saveDir, jpeg, time.Now())
	if err != nil {
		return "", nil, err
	}

	logging.LogPipelineStage("object", "capture_complete", zap.String("path", path), zap.Int("bytes", len(jpeg)))
	return path, jpeg, nil
}

// Close implements Camera
func (c *OpenCVCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.capture = nil
	return err
}
