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

// SubjectDisplay carries frames to the OLED agent
const SubjectDisplay = "loqa.pi.display"

// Publisher sends JSON on a subject
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// NATSSink forwards frames to the bus for the process driving the panel
type NATSSink struct {
	pub     Publisher
	subject string
}

// NewNATSSink publishes on subject, or loqa.pi.display when empty
func NewNATSSink(pub Publisher, subject string) *NATSSink {
	if subject == "" {
		subject = SubjectDisplay
	}
	return &NATSSink{pub: pub, subject: subject}
}

// Render implements Sink
func (s *NATSSink) Render(f Frame) error {
	return s.pub.PublishJSON(s.subject, f)
}
