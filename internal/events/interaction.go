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
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Route records how a chat transcript was answered
type Route string

const (
	RouteLLM          Route = "llm"
	RouteVoiceCommand Route = "voice_command"
	RouteHome         Route = "home"
	RouteNoSpeech     Route = "no_speech"
	RouteDetection    Route = "detection"
)

// Interaction is the persistent record of one chat or object pipeline run
type Interaction struct {
	// Core identification
	UUID      string    `json:"uuid" db:"uuid"`
	Mode      Mode      `json:"mode" db:"mode"`
	Route     Route     `json:"route,omitempty" db:"route"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	// Audio metadata (chat)
	AudioPath     string  `json:"audio_path,omitempty" db:"audio_path"`
	AudioHash     string  `json:"audio_hash,omitempty" db:"audio_hash"`
	AudioDuration float64 `json:"audio_duration" db:"audio_duration"`
	SampleRate    int     `json:"sample_rate" db:"sample_rate"`

	// Chat results
	Transcript   string `json:"transcript,omitempty" db:"transcript"`
	ContextCount int    `json:"context_count" db:"context_count"`

	// Object results
	ImagePath string   `json:"image_path,omitempty" db:"image_path"`
	Labels    []string `json:"labels,omitempty" db:"labels"`

	// Response data
	ResponseText   string `json:"response_text" db:"response_text"`
	ProcessingTime int64  `json:"processing_time_ms" db:"processing_time_ms"`
	Success        bool   `json:"success" db:"success"`
	ErrorMessage   string `json:"error_message,omitempty" db:"error_message"`
}

// NewInteraction creates an Interaction with a fresh UUID and the current timestamp
func NewInteraction(mode Mode) *Interaction {
	return &Interaction{
		UUID:      uuid.NewString(),
		Mode:      mode,
		Timestamp: time.Now(),
		Success:   true,
	}
}

// GetUUID satisfies the logging helpers
func (in *Interaction) GetUUID() string {
	if in == nil {
		return ""
	}
	return in.UUID
}

// SetAudio records the captured clip
func (in *Interaction) SetAudio(path string, samples []int16, sampleRate int) {
	in.AudioPath = path
	in.AudioHash = hashSamples(samples)
	in.SampleRate = sampleRate
	if sampleRate > 0 {
		in.AudioDuration = float64(len(samples)) / float64(sampleRate)
	}
}

// SetTranscript sets the speech-to-text result
func (in *Interaction) SetTranscript(transcript string) {
	in.Transcript = transcript
}

// SetContext records how many memory snippets were fed to the prompt
func (in *Interaction) SetContext(count int) {
	in.ContextCount = count
}

// SetDetections records the captured image and its unique labels
func (in *Interaction) SetDetections(imagePath string, labels []string) {
	in.ImagePath = imagePath
	in.Labels = append([]string(nil), labels...)
}

// SetResponse sets the response text and marks processing as complete
func (in *Interaction) SetResponse(route Route, responseText string) {
	in.Route = route
	in.ResponseText = responseText
	in.ProcessingTime = time.Since(in.Timestamp).Milliseconds()
}

// SetError marks the interaction as failed with an error message
func (in *Interaction) SetError(err error) {
	in.Success = false
	in.ErrorMessage = err.Error()
	in.ProcessingTime = time.Since(in.Timestamp).Milliseconds()
}

// hashSamples generates a SHA-256 hash of the PCM for duplicate detection
func hashSamples(samples []int16) string {
	if len(samples) == 0 {
		return ""
	}

	hasher := sha256.New()
	_ = binary.Write(hasher, binary.LittleEndian, samples)
	return hex.EncodeToString(hasher.Sum(nil))
}

// LabelsJSON returns labels as JSON string for database storage
func (in *Interaction) LabelsJSON() (string, error) {
	if len(in.Labels) == 0 {
		return "[]", nil
	}

	data, err := json.Marshal(in.Labels)
	if err != nil {
		return "", fmt.Errorf("failed to marshal labels: %w", err)
	}

	return string(data), nil
}

// SetLabelsFromJSON parses JSON string and sets labels
func (in *Interaction) SetLabelsFromJSON(jsonStr string) error {
	if jsonStr == "" || jsonStr == "[]" {
		in.Labels = nil
		return nil
	}

	var labels []string
	if err := json.Unmarshal([]byte(jsonStr), &labels); err != nil {
		return fmt.Errorf("failed to unmarshal labels JSON: %w", err)
	}

	in.Labels = labels
	return nil
}

// Validate performs basic validation on the interaction
func (in *Interaction) Validate() error {
	if in.UUID == "" {
		return fmt.Errorf("UUID is required")
	}

	if in.Mode != ModeChat && in.Mode != ModeObject {
		return fmt.Errorf("mode must be chat or object, got %q", in.Mode)
	}

	if in.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	if in.AudioDuration < 0 {
		return fmt.Errorf("audio duration must not be negative")
	}

	if !in.Success && in.ErrorMessage == "" {
		return fmt.Errorf("failed interaction needs an error message")
	}

	return nil
}

// String returns a human-readable representation of the interaction
func (in *Interaction) String() string {
	return fmt.Sprintf("Interaction{UUID: %s, Mode: %s, Route: %s, Transcript: %q, Labels: %v, Success: %t}",
		in.UUID, in.Mode, in.Route, in.Transcript, in.Labels, in.Success)
}
