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

package home

import (
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-pi/internal/security"
)

// Actions
const (
	ActionOn  = "on"
	ActionOff = "off"
)

// Command is a parsed "turn on the kitchen light" request
type Command struct {
	Action   string `json:"action"`
	Device   string `json:"device"`
	Location string `json:"location,omitempty"`
}

var actionPhrases = []struct {
	phrase string
	action string
}{
	{"turn on", ActionOn},
	{"switch on", ActionOn},
	{"turn off", ActionOff},
	{"switch off", ActionOff},
}

// aliases map spoken words to canonical device names
var deviceAliases = map[string]string{
	"light":      "light",
	"lights":     "light",
	"lamp":       "lamp",
	"fan":        "fan",
	"plug":       "plug",
	"tv":         "tv",
	"television": "tv",
	"music":      "music",
}

// checked in order so "living room" wins over "room"
var locations = []string{
	"living room",
	"bedroom",
	"bathroom",
	"kitchen",
	"office",
	"garage",
	"hallway",
}

// ParseCommand recognizes on/off requests for known devices. ok is false when
// text is not a home command.
func ParseCommand(text string) (Command, bool) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
	// padded so phrases only match on word boundaries
	padded := " " + strings.Join(words, " ") + " "

	var cmd Command
	first := -1
	for _, p := range actionPhrases {
		if i := strings.Index(padded, " "+p.phrase+" "); i >= 0 && (first < 0 || i < first) {
			first = i
			cmd.Action = p.action
		}
	}
	if cmd.Action == "" {
		return Command{}, false
	}

	for _, word := range words {
		if device, ok := deviceAliases[word]; ok {
			cmd.Device = device
			break
		}
	}
	if cmd.Device == "" {
		return Command{}, false
	}

	for _, loc := range locations {
		if strings.Contains(padded, " "+loc+" ") {
			cmd.Location = security.NormalizeIdentifier(loc)
			break
		}
	}

	return cmd, true
}

// Confirmation is the sentence spoken back after a command is sent
func (c Command) Confirmation() string {
	if c.Location == "" {
		return fmt.Sprintf("Turning %s the %s.", c.Action, c.Device)
	}
	return fmt.Sprintf("Turning %s the %s in the %s.", c.Action, c.Device, strings.ReplaceAll(c.Location, "_", " "))
}

// Service is the Home Assistant service name
func (c Command) Service() string {
	return "turn_" + c.Action
}

// EntityID is the Home Assistant switch entity
func (c Command) EntityID() string {
	return "switch." + c.Device
}
