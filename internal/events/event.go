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

package events

import (
	"fmt"
	"time"
)

// Type is the kind of an event on the controller queue
type Type string

const (
	TypeModeChat      Type = "mode_chat"
	TypeModeObject    Type = "mode_object"
	TypeChatPress     Type = "chat_press"
	TypeChatRelease   Type = "chat_release"
	TypeObjectTrigger Type = "object_trigger"
	TypeShutdown      Type = "shutdown"
)

// Types lists every queue event type
var Types = []Type{
	TypeModeChat,
	TypeModeObject,
	TypeChatPress,
	TypeChatRelease,
	TypeObjectTrigger,
	TypeShutdown,
}

// Valid reports whether t is part of the queue vocabulary
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Producers of events
const (
	SourceGPIO     = "gpio"
	SourceHTTP     = "http"
	SourceNATS     = "nats"
	SourceKeyboard = "keyboard"
	SourceVoice    = "voice"
)

// Event is one entry on the controller queue
type Event struct {
	Type    Type      `json:"type"`
	Source  string    `json:"source"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// New stamps an event with the current time
func New(t Type, source string) Event {
	return Event{Type: t, Source: source, At: time.Now()}
}

func (e Event) String() string {
	return fmt.Sprintf("Event{Type: %s, Source: %s}", e.Type, e.Source)
}

// Mode is the assistant's operating mode
type Mode string

const (
	ModeBoot   Mode = "boot"
	ModeChat   Mode = "chat"
	ModeObject Mode = "object"
)

// ParseMode accepts the mode names used by the HTTP and CLI surfaces
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeChat, ModeObject, ModeBoot:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode: %q", s)
}
