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

package buttons

import (
	"sync"
	"time"
)

// DefaultDebounce matches the hardware bounce time of the tactile switches
const DefaultDebounce = 200 * time.Millisecond

type edgeKey struct {
	button Button
	edge   Edge
}

// Debouncer drops repeated edges of the same kind that arrive within the
// interval
type Debouncer struct {
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[edgeKey]time.Time
}

// NewDebouncer creates a debouncer; now may be nil for the wall clock
func NewDebouncer(interval time.Duration, now func() time.Time) *Debouncer {
	if now == nil {
		now = time.Now
	}
	return &Debouncer{
		interval: interval,
		now:      now,
		last:     make(map[edgeKey]time.Time),
	}
}

// Allow reports whether the edge should be delivered and records it if so
func (d *Debouncer) Allow(b Button, e Edge) bool {
	if d.interval <= 0 {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := edgeKey{b, e}
	now := d.now()
	if prev, ok := d.last[key]; ok && now.Sub(prev) < d.interval {
		return false
	}
	d.last[key] = now
	return true
}
