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
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/loqalabs/loqa-pi/internal/events"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"github.com/loqalabs/loqa-pi/internal/security"
	"go.uber.org/zap"
)

// SubjectButtons carries edges from the GPIO agent
const SubjectButtons = "loqa.pi.buttons"

// Target receives translated button actions
type Target interface {
	OnModeButton(mode events.Mode)
	OnActionPress()
	OnActionRelease()
}

// Dispatcher debounces edges and routes them to a Target. Calls into the
// target never overlap.
type Dispatcher struct {
	target    Target
	debouncer *Debouncer

	mu       sync.Mutex
	accepted atomic.Uint64
	dropped  atomic.Uint64
}

// NewDispatcher wires a debouncer to target
func NewDispatcher(target Target, debouncer *Debouncer) *Dispatcher {
	if debouncer == nil {
		debouncer = NewDebouncer(0, nil)
	}
	return &Dispatcher{target: target, debouncer: debouncer}
}

// Dispatch delivers one edge. It returns false if the edge was debounced or
// has no meaning (k1/k2 releases).
func (d *Dispatcher) Dispatch(b Button, e Edge, source string) bool {
	if !d.debouncer.Allow(b, e) {
		d.dropped.Add(1)
		logging.Logger.Debug("Button edge debounced",
			zap.String("button", string(b)),
			zap.String("edge", string(e)),
			zap.String("source", source),
		)
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case b == K1 && e == Press:
		d.target.OnModeButton(events.ModeChat)
	case b == K2 && e == Press:
		d.target.OnModeButton(events.ModeObject)
	case b == K3 && e == Press:
		d.target.OnActionPress()
	case b == K3 && e == Release:
		d.target.OnActionRelease()
	default:
		return false
	}

	d.accepted.Add(1)
	logging.Logger.Debug("Button edge dispatched",
		zap.String("button", string(b)),
		zap.String("edge", string(e)),
		zap.String("source", source),
	)
	return true
}

// Click delivers a press followed by a release
func (d *Dispatcher) Click(b Button, source string) {
	d.Dispatch(b, Press, source)
	if b == K3 {
		d.Dispatch(b, Release, source)
	}
}

// HandleJSON decodes an agent message and dispatches it
func (d *Dispatcher) HandleJSON(data []byte, source string) error {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("invalid button message: %w", err)
	}

	b, err := ParseButton(string(ev.Button))
	if err != nil {
		return err
	}
	e, err := ParseEdge(string(ev.Edge))
	if err != nil {
		return err
	}

	d.Dispatch(b, e, source)
	return nil
}

// Stats returns accepted and debounced edge counts
func (d *Dispatcher) Stats() (accepted, dropped uint64) {
	return d.accepted.Load(), d.dropped.Load()
}

// logUnknownInput is shared by line-oriented sources
func logUnknownInput(source, line string) {
	logging.LogWarn("Unrecognized button input",
		zap.String("source", source),
		zap.String("input", security.SanitizeLogInput(line)),
	)
}
