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

// Overlay watching adapted from the syn4pse samples (github.com/ekisa-team/syn4pse,
// internal/config).

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"go.uber.org/zap"
)

const reloadDebounce = 500 * time.Millisecond

// Watcher reloads the overlay file when it changes
type Watcher struct {
	path     string
	onReload func(*Config, error)
	debounce time.Duration

	mu      sync.RWMutex
	current *Config
	reloads atomic.Uint32
}

// NewWatcher creates a watcher for the overlay at path. The initial
// configuration is the caller's already-loaded one.
func NewWatcher(path string, initial *Config, onReload func(*Config, error)) *Watcher {
	return &Watcher{
		path:     path,
		onReload: onReload,
		debounce: reloadDebounce,
		current:  initial,
	}
}

// Run watches until ctx is cancelled. The parent directory is watched so
// editors that replace the file by rename are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config file %s: %w", w.path, err)
	}

	logging.Sugar.Infof("👀 Watching config overlay %s", w.path)

	target := filepath.Clean(w.path)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.LogWarn("Config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	count := w.reloads.Add(1)
	logging.Sugar.Infof("🔄 Reloading config overlay %s (#%d)", w.path, count)

	cfg, err := LoadWithFile(w.path)
	if err != nil {
		logging.LogError(err, "Failed to reload config", zap.String("path", w.path))
		w.onReload(nil, err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	w.onReload(cfg, nil)
}

// Snapshot returns the most recent successfully loaded configuration
func (w *Watcher) Snapshot() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// ReloadCount returns the number of reload attempts
func (w *Watcher) ReloadCount() uint32 {
	return w.reloads.Load()
}
