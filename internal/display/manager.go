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

import (
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-pi/internal/config"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"go.uber.org/zap"
)

// Frame is one rendered screen
type Frame struct {
	Screen Screen    `json:"screen"`
	Text   string    `json:"text"`
	Lines  []string  `json:"lines"`
	At     time.Time `json:"at"`
}

// Sink receives every new frame
type Sink interface {
	Render(Frame) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(Frame) error

// Render implements Sink
func (f SinkFunc) Render(frame Frame) error { return f(frame) }

// Manager renders screens for a small OLED and fans frames out to sinks
type Manager struct {
	width    int
	maxLines int

	// renderMu orders dedupe, last and sink fan-out as one step
	renderMu sync.Mutex

	mu    sync.Mutex
	texts StateTexts
	sinks []Sink
	last  *Frame
}

// NewManager creates a manager with the configured geometry and texts
func NewManager(cfg config.DisplayConfig, sinks ...Sink) *Manager {
	width, maxLines := cfg.WrapWidth, cfg.MaxLines
	if width <= 0 {
		width = 18
	}
	if maxLines <= 0 {
		maxLines = 8
	}
	return &Manager{
		width:    width,
		maxLines: maxLines,
		texts:    TextsFromConfig(cfg),
		sinks:    sinks,
	}
}

// AddSink attaches another output
func (m *Manager) AddSink(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

// SetTexts swaps the screen texts; used on config reload
func (m *Manager) SetTexts(t StateTexts) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = t
}

// Show renders one of the fixed screens
func (m *Manager) Show(s Screen) {
	m.mu.Lock()
	text, ok := m.texts.lookup(s)
	m.mu.Unlock()
	if !ok {
		logging.LogWarn("Unknown display screen", zap.String("screen", string(s)))
		return
	}
	m.render(s, text)
}

// Message renders free text such as a reply or an error line
func (m *Manager) Message(text string) {
	m.render(ScreenMessage, text)
}

// PowerOff blanks the screen
func (m *Manager) PowerOff() {
	m.render(ScreenOff, "")
}

// Last returns the most recent frame, if any
func (m *Manager) Last() (Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Frame{}, false
	}
	f := *m.last
	f.Lines = append([]string(nil), m.last.Lines...)
	return f, true
}

// Layout wraps and truncates text to the screen geometry
func (m *Manager) Layout(text string) []string {
	lines := Wrap(text, m.width)
	if len(lines) > m.maxLines {
		lines = lines[:m.maxLines]
	}
	return lines
}

func (m *Manager) render(s Screen, text string) {
	lines := m.Layout(text)

	m.renderMu.Lock()
	defer m.renderMu.Unlock()

	m.mu.Lock()
	if m.last != nil && m.last.Screen == s && strings.Join(m.last.Lines, "\n") == strings.Join(lines, "\n") {
		m.mu.Unlock()
		return
	}
	frame := Frame{Screen: s, Text: text, Lines: lines, At: time.Now()}
	m.last = &frame
	sinks := append([]Sink(nil), m.sinks...)
	m.mu.Unlock()

	logging.LogDisplay(string(s), strings.Join(lines, " | "))

	for _, sink := range sinks {
		if err := sink.Render(frame); err != nil {
			logging.LogWarn("Display sink failed", zap.String("screen", string(s)), zap.Error(err))
		}
	}
}
