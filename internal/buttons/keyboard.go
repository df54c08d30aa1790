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
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/loqalabs/loqa-pi/internal/events"
)

// KeyboardSource turns terminal lines into button edges for bench use:
// "1" and "2" select a mode, "3" clicks the action key, "3d"/"3u" hold
// and release it.
type KeyboardSource struct {
	r io.Reader
	d *Dispatcher
}

// NewKeyboardSource reads lines from r
func NewKeyboardSource(r io.Reader, d *Dispatcher) *KeyboardSource {
	return &KeyboardSource{r: r, d: d}
}

// Run reads until EOF or ctx is cancelled. A blocked read on a terminal is
// abandoned rather than interrupted.
func (k *KeyboardSource) Run(ctx context.Context) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(k.r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			k.handle(strings.ToLower(strings.TrimSpace(line)))
		}
	}
}

func (k *KeyboardSource) handle(line string) {
	switch line {
	case "":
	case "1":
		k.d.Dispatch(K1, Press, events.SourceKeyboard)
	case "2":
		k.d.Dispatch(K2, Press, events.SourceKeyboard)
	case "3":
		k.d.Click(K3, events.SourceKeyboard)
	case "3d":
		k.d.Dispatch(K3, Press, events.SourceKeyboard)
	case "3u":
		k.d.Dispatch(K3, Release, events.SourceKeyboard)
	default:
		logUnknownInput(events.SourceKeyboard, line)
	}
}
