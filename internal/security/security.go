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

package security

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrInvalidIdentifier is returned when a device, entity or subject token is unsafe
	ErrInvalidIdentifier = errors.New("invalid identifier")

	identifierPattern = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// SanitizeLogInput removes newline characters to prevent log injection.
// Use it for transcripts and other user-controlled text before logging.
func SanitizeLogInput(input string) string {
	sanitized := strings.ReplaceAll(input, "\n", "")
	sanitized = strings.ReplaceAll(sanitized, "\r", "")
	return sanitized
}

// NormalizeIdentifier lowercases text and joins words with underscores, so
// "Living Room" becomes "living_room".
func NormalizeIdentifier(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), "_")
}

// ValidateIdentifier ensures an identifier is safe to splice into a NATS
// subject or a Home Assistant entity id. Only lowercase ASCII letters,
// digits and underscores are allowed.
func ValidateIdentifier(id string) error {
	if id == "" || len(id) > 64 {
		return ErrInvalidIdentifier
	}

	if !identifierPattern.MatchString(id) {
		return ErrInvalidIdentifier
	}

	return nil
}
