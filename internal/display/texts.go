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

package display

import "github.com/loqalabs/loqa-pi/internal/config"

// Screen names a state of the UI
type Screen string

const (
	ScreenBoot          Screen = "boot"
	ScreenChatIdle      Screen = "chat_idle"
	ScreenChatListening Screen = "chat_listening"
	ScreenObjectIdle    Screen = "object_idle"
	ScreenProcessing    Screen = "processing"
	ScreenMessage       Screen = "message"
	ScreenOff           Screen = "off"
)

// StateTexts holds the fixed text of each screen
type StateTexts struct {
	Boot          string `json:"boot"`
	ChatIdle      string `json:"chat_idle"`
	ChatListening string `json:"chat_listening"`
	ObjectIdle    string `json:"object_idle"`
	Processing    string `json:"processing"`
}

// TextsFromConfig copies the display texts out of the config
func TextsFromConfig(cfg config.DisplayConfig) StateTexts {
	return StateTexts{
		Boot:          cfg.Boot,
		ChatIdle:      cfg.ChatIdle,
		ChatListening: cfg.ChatListening,
		ObjectIdle:    cfg.ObjectIdle,
		Processing:    cfg.Processing,
	}
}

func (t StateTexts) lookup(s Screen) (string, bool) {
	switch s {
	case ScreenBoot:
		return t.Boot, true
	case ScreenChatIdle:
		return t.ChatIdle, true
	case ScreenChatListening:
		return t.ChatListening, true
	case ScreenObjectIdle:
		return t.ObjectIdle, true
	case ScreenProcessing:
		return t.Processing, true
	}
	return "", false
}
