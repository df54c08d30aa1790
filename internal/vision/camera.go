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
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/loqalabs/loqa-pi/internal/config"
	"github.com/loqalabs/loqa-pi/internal/executil"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Camera grabs one still and stores it
type Camera interface {
	Capture(ctx context.Context) (path string, jpeg []byte, err error)
	Close() error
}

// CaptureName is the file name for a still taken at t
func CaptureName(t time.Time) string {
	return "capture_" + t.Format("20060102_150405") + ".jpg"
}

// saveCapture writes jpeg under dir and returns its path
func saveCapture(fs afero.Fs, dir string, jpeg []byte, at time.Time) (string, error) {
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create capture directory: %w", err)
	}
	path := filepath.Join(dir, CaptureName(at))
	if err := afero.WriteFile(fs, path, jpeg, 0o640); err != nil {
		return "", fmt.Errorf("failed to save capture: %w", err)
	}
	return path, nil
}

// CommandCamera shells out to rpicam-still and reads the JPEG from stdout
type CommandCamera struct {
	exec    *executil.Executor
	fs      afero.Fs
	saveDir string
	width   int
	height  int
	now     func() time.Time

	mu sync.Mutex
}

// NewCommandCamera creates a camera backed by the rpicam-still binary
func NewCommandCamera(cfg config.VisionConfig, fs afero.Fs) (*CommandCamera, error) {
	exec, err := executil.NewExecutor(cfg.CameraCommand, cfg.CaptureTimeout)
	if err != nil {
		return nil, fmt.Errorf("camera command unavailable: %w", err)
	}
	return NewCommandCameraWithExecutor(cfg, fs, exec), nil
}

// NewCommandCameraWithExecutor lets tests substitute the runner
func NewCommandCameraWithExecutor(cfg config.VisionConfig, fs afero.Fs, exec *executil.Executor) *CommandCamera {
	return &CommandCamera{
		exec:    exec,
		fs:      fs,
		saveDir: cfg.SaveDir,
		width:   cfg.Width,
		height:  cfg.Height,
		now:     time.Now,
	}
}

// Capture implements Camera. Only one capture runs at a time since the
// sensor cannot be shared.
func (c *CommandCamera) Capture(ctx context.Context) (string, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	args := []string{
		"-n",
		"-o", "-",
		"--width", strconv.Itoa(c.width),
		"--height", strconv.Itoa(c.height),
		"-e", "jpg",
	}

	startTime := time.Now()
	jpeg, err := c.exec.Execute(ctx, args, nil)
	if err != nil {
		return "", nil, fmt.Errorf("camera capture failed: %w", err)
	}
	if len(jpeg) == 0 {
		return "", nil, fmt.Errorf("camera returned an empty image")
	}

	path, err := saveCapture(c.fs, c.saveDir, jpeg, c.now())
	if err != nil {
		return "", nil, err
	}

	logging.LogPipelineStage("object", "capture_complete",
		zap.String("path", path),
		zap.Int("bytes", len(jpeg)),
		zap.Duration("duration", time.Since(startTime)),
	)
	return path, jpeg, nil
}

// Close implements Camera
func (c *CommandCamera) Close() error {
	return nil
}

// NewCamera builds the configured camera
func NewCamera(cfg config.VisionConfig, fs afero.Fs) (Camera, error) {
	switch cfg.Camera {
	case "", "command":
		cam, err := NewCommandCamera(cfg, fs)
		if err != nil {
			return nil, err
		}
		return cam, nil
	case "opencv":
		cam, err := NewOpenCVCamera(cfg, fs)
		if err != nil {
			return nil, err
		}
		return cam, nil
	}
	return nil, fmt.Errorf("unknown camera: %q", cfg.Camera)
}
