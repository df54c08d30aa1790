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

import "strings"

// Wrap breaks text into lines of at most width runes. Words stay whole
// unless longer than width, in which case they are split. Explicit line
// breaks are kept.
func Wrap(text string, width int) []string {
	if width <= 0 {
		return nil
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			continue
		}

		var line []rune
		for _, word := range words {
			w := []rune(word)

			if len(line) > 0 && len(line)+1+len(w) <= width {
				line = append(line, ' ')
				line = append(line, w...)
				continue
			}
			if len(line) > 0 {
				lines = append(lines, string(line))
				line = nil
			}

			for len(w) > width {
				lines = append(lines, string(w[:width]))
				w = w[width:]
			}
			line = append(line, w...)
		}
		if len(line) > 0 {
			lines = append(lines, string(line))
		}
	}
	return lines
}
