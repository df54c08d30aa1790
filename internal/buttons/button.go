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
	"fmt"
	"strings"
)

// Button is one of the three hardware keys
type Button string

const (
	K1 Button = "k1" // chat mode
	K2 Button = "k2" // object mode
	K3 Button = "k3" // action
)

// Edge is a press or a release
type Edge string

const (
	Press   Edge = "press"
	Release Edge = "release"
)

// ParseButton accepts "k1".."k3" in any case
func ParseButton(s string) (Button, error) {
	switch b := Button(strings.ToLower(strings.TrimSpace(s))); b {
	case K1, K2, K3:
		return b, nil
	}
	return "", fmt.Errorf("unknown button: %q", s)
}

// ParseEdge accepts "press"/"release" and the short forms "down"/"up"
func ParseEdge(s string) (Edge, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "press", "down":
		return Press, nil
	case "release", "up":
		return Release, nil
	}
	return "", fmt.Errorf("unknown edge: %q", s)
}

// Event is the wire form published by the GPIO agent
type Event struct {
	Button Button `json:"button"`
	Edge   Edge   `json:"edge"`
}
