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

package controller

import (
	"context"
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-pi/internal/audio"
	"github.com/loqalabs/loqa-pi/internal/display"
	"github.com/loqalabs/loqa-pi/internal/events"
	"github.com/loqalabs/loqa-pi/internal/llm"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"go.uber.org/zap"
)

const chatMode = string(events.ModeChat)

// runChat is the push-to-talk pipeline: stop the capture, transcribe, answer
// and speak
func (c *Controller) runChat(ctx context.Context, in *events.Interaction) error {
	c.deps.Display.Show(display.ScreenProcessing)

	samples, err := c.deps.Microphone.StopAndCollect(ctx)
	if err != nil {
		return fmt.Errorf("failed to stop recording: %w", err)
	}
	rate := c.deps.Microphone.SampleRate()
	logging.LogPipelineStage(chatMode, "recorded",
		zap.Int("samples", len(samples)),
		zap.Duration("duration", audio.Duration(samples, rate)),
	)

	if len(samples) == 0 || (c.deps.VAD != nil && !c.deps.VAD.HasSpeech(samples)) {
		logging.LogPipelineStage(chatMode, "no_speech")
		in.SetAudio("", samples, rate)
		c.showIdle()
		return ErrNoSpeech
	}

	transcript, err := c.transcribe(ctx, in, samples, rate)
	if err != nil {
		return err
	}
	if transcript == "" {
		logging.LogPipelineStage(chatMode, "empty_transcript")
		in.SetResponse(events.RouteNoSpeech, "")
		c.showIdle()
		return nil
	}

	if c.voiceCommands {
		if target, ok := matchVoiceCommand(transcript); ok {
			return c.voiceSwitch(ctx, in, target)
		}
	}

	if c.deps.Home != nil {
		reply, handled, err := c.deps.Home.Handle(ctx, transcript)
		if err != nil {
			return fmt.Errorf("home command failed: %w", err)
		}
		if handled {
			in.SetResponse(events.RouteHome, reply)
			logging.LogPipelineStage(chatMode, "home_command", zap.String("reply", reply))
			if err := c.speak(ctx, reply); err != nil {
				return err
			}
			c.showIdle()
			return nil
		}
	}

	reply, count, err := c.answer(ctx, transcript, c.History())
	if err != nil {
		return err
	}
	in.SetContext(count)
	in.SetResponse(events.RouteLLM, reply)

	c.appendHistory(transcript, reply)
	c.remember(ctx, transcript, reply)

	if err := c.speak(ctx, reply); err != nil {
		return err
	}
	c.showIdle()
	return nil
}

// transcribe writes the clip as WAV and runs speech-to-text on it
func (c *Controller) transcribe(ctx context.Context, in *events.Interaction, samples []int16, rate int) (string, error) {
	if c.deps.Transcriber == nil {
		return "", fmt.Errorf("no speech-to-text backend configured")
	}

	path, wav, err := audio.EncodeWAV(c.deps.Fs, c.captureDir, "chat_audio", samples, rate)
	if err != nil {
		return "", fmt.Errorf("failed to write recording: %w", err)
	}
	if !c.keepRecordings {
		if rmErr := c.deps.Fs.Remove(path); rmErr != nil {
			logging.LogWarn("Failed to remove recording", zap.String("path", path), zap.Error(rmErr))
		}
		path = ""
	}
	in.SetAudio(path, samples, rate)

	text, err := c.deps.Transcriber.Transcribe(ctx, wav)
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	text = strings.TrimSpace(text)
	in.SetTranscript(text)
	logging.LogPipelineStage(chatMode, "transcribed", zap.String("transcript", text))
	return text, nil
}

// answer retrieves memory for text and asks the LLM. It returns the reply
// and the number of memory snippets used.
func (c *Controller) answer(ctx context.Context, text string, history []llm.Turn) (string, int, error) {
	if c.deps.LLM == nil {
		return "", 0, fmt.Errorf("no LLM configured")
	}

	docs := c.retrieve(ctx, text)

	c.mu.Lock()
	system := c.settings.systemPrompt
	c.mu.Unlock()

	prompt := llm.BuildChatPrompt(system, history, docs, text)
	reply, err := c.deps.LLM.Generate(ctx, prompt)
	if err != nil {
		return "", len(docs), fmt.Errorf("generation failed: %w", err)
	}
	logging.LogPipelineStage(chatMode, "generated",
		zap.Int("context_docs", len(docs)),
		zap.Int("reply_length", len(reply)),
	)
	return reply, len(docs), nil
}

// retrieve returns memory snippets for query; failures fall back to none
func (c *Controller) retrieve(ctx context.Context, query string) []string {
	if !c.memoryEnabled || c.deps.Memory == nil {
		return nil
	}
	docs, err := c.deps.Memory.Retrieve(ctx, query, c.topK)
	if err != nil {
		logging.LogWarn("Memory retrieval failed, continuing without context", zap.Error(err))
		return nil
	}
	return docs
}

func (c *Controller) remember(ctx context.Context, question, answer string) {
	if !c.memoryEnabled || c.deps.Memory == nil {
		return
	}
	if _, err := c.deps.Memory.Add(ctx, question, answer); err != nil {
		logging.LogWarn("Failed to store chat memory", zap.Error(err))
	}
}

func (c *Controller) speak(ctx context.Context, text string) error {
	if c.deps.Speaker == nil {
		return nil
	}
	if err := c.deps.Speaker.Speak(ctx, text); err != nil {
		return err
	}
	logging.LogTTSOperation("spoken", zap.Int("text_length", len(text)))
	return nil
}

func (c *Controller) appendHistory(user, assistant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = trimHistory(append(c.history, llm.Turn{User: user, Assistant: assistant}), c.settings.historyTurns)
}

// trimHistory keeps the newest n turns
func trimHistory(history []llm.Turn, n int) []llm.Turn {
	if n <= 0 {
		return nil
	}
	if len(history) <= n {
		return history
	}
	return append([]llm.Turn(nil), history[len(history)-n:]...)
}

var voicePhrases = []struct {
	phrase string
	mode   events.Mode
}{
	{"switch to object mode", events.ModeObject},
	{"object mode", events.ModeObject},
	{"detection", events.ModeObject},
	{"switch to chat mode", events.ModeChat},
	{"chat mode", events.ModeChat},
}

// matchVoiceCommand reports whether a transcript asks for a mode change
func matchVoiceCommand(transcript string) (events.Mode, bool) {
	normalized := strings.Join(strings.FieldsFunc(strings.ToLower(transcript), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}), " ")

	for _, p := range voicePhrases {
		if strings.Contains(" "+normalized+" ", " "+p.phrase+" ") {
			return p.mode, true
		}
	}
	return "", false
}

// voiceSwitch queues a mode change; the consumer applies it like a button
func (c *Controller) voiceSwitch(ctx context.Context, in *events.Interaction, target events.Mode) error {
	typ := events.TypeModeChat
	if target == events.ModeObject {
		typ = events.TypeModeObject
	}

	reply := fmt.Sprintf("Switching to %s mode.", target)
	in.SetResponse(events.RouteVoiceCommand, reply)
	logging.LogPipelineStage(chatMode, "voice_command", zap.String("target", string(target)))

	if err := c.Submit(events.New(typ, events.SourceVoice)); err != nil {
		return fmt.Errorf("failed to queue mode switch: %w", err)
	}
	return c.speak(ctx, reply)
}
