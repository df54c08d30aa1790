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

package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-pi/internal/audio"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"go.uber.org/zap"
)

// SubjectSpeech carries synthesized replies to a remote speaker agent
const SubjectSpeech = "loqa.pi.audio"

// AudioStreamMessage is one complete spoken reply
type AudioStreamMessage struct {
	StreamID    string `json:"stream_id"`
	AudioData   []byte `json:"audio_data"`
	AudioFormat string `json:"audio_format"`
	SampleRate  int    `json:"sample_rate"`
	MessageType string `json:"message_type"` // "response" or "system"
	Priority    int    `json:"priority"`     // 1=highest, 5=lowest
}

// AudioStreamPublisher plays audio by shipping it as WAV over NATS
type AudioStreamPublisher struct {
	pub     Publisher
	subject string
}

// Publisher is satisfied by NATSService
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// NewAudioStreamPublisher creates an audio.Player backed by pub
func NewAudioStreamPublisher(pub Publisher, subject string) *AudioStreamPublisher {
	if subject == "" {
		subject = SubjectSpeech
	}
	return &AudioStreamPublisher{pub: pub, subject: subject}
}

var _ audio.Player = (*AudioStreamPublisher)(nil)

// Play implements audio.Player
func (p *AudioStreamPublisher) Play(ctx context.Context, pcm []int16, sampleRate int) error {
	if len(pcm) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	wav, err := audio.WAVBytes(pcm, sampleRate)
	if err != nil {
		return fmt.Errorf("failed to encode speech: %w", err)
	}

	msg := AudioStreamMessage{
		StreamID:    fmt.Sprintf("%s-%d", uuid.New().String()[:8], time.Now().UnixNano()),
		AudioData:   wav,
		AudioFormat: "wav",
		SampleRate:  sampleRate,
		MessageType: "response",
		Priority:    1,
	}
	if err := p.pub.PublishJSON(p.subject, msg); err != nil {
		return fmt.Errorf("failed to publish speech: %w", err)
	}

	logging.LogTTSOperation("published",
		zap.String("stream_id", msg.StreamID),
		zap.Int("bytes", len(wav)),
		zap.Duration("duration", audio.Duration(pcm, sampleRate)),
	)
	return nil
}
