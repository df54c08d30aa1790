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

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-pi/internal/audio"
	"github.com/loqalabs/loqa-pi/internal/config"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"go.uber.org/zap"
)

// KokoroRequest represents a request to the Kokoro TTS API
type KokoroRequest struct {
	Model   string                 `json:"model"`
	Input   string                 `json:"input"`
	Voice   string                 `json:"voice"`
	Format  string                 `json:"response_format"`
	Speed   float32                `json:"speed,omitempty"`
	Options map[string]interface{} `json:"normalization_options,omitempty"`
}

// KokoroVoicesResponse represents the response from the voices endpoint
type KokoroVoicesResponse struct {
	Voices []string `json:"voices"`
}

// KokoroClient implements TextToSpeech for Kokoro-82M and other
// OpenAI-compatible speech endpoints that can return WAV
type KokoroClient struct {
	baseURL         string
	client          *http.Client
	config          config.TTSConfig
	semaphore       chan struct{} // Limits concurrent requests
	mu              sync.RWMutex
	cachedVoices    []string
	voicesCacheTime time.Time
}

// NewKokoroClient creates a new Kokoro TTS client
func NewKokoroClient(cfg config.TTSConfig) (*KokoroClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("Kokoro TTS URL cannot be empty")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	// samples are decoded locally, so only WAV is usable
	cfg.ResponseFormat = "wav"

	k := &KokoroClient{
		baseURL:   strings.TrimSuffix(cfg.URL, "/"),
		client:    &http.Client{Timeout: cfg.Timeout},
		config:    cfg,
		semaphore: make(chan struct{}, cfg.MaxConcurrent),
	}

	logging.Sugar.Infow("🔊 Kokoro TTS client initialized",
		"url", cfg.URL,
		"voice", cfg.Voice,
		"max_concurrent", cfg.MaxConcurrent,
	)

	return k, nil
}

// Synthesize converts text to speech using Kokoro-82M
func (k *KokoroClient) Synthesize(ctx context.Context, text string) (*TTSResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	// Acquire semaphore slot for concurrency control
	select {
	case k.semaphore <- struct{}{}:
		defer func() { <-k.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("TTS synthesis queue full, request timed out")
	}

	startTime := time.Now()

	request := KokoroRequest{
		Model:  "kokoro",
		Input:  text,
		Voice:  k.config.Voice,
		Format: k.config.ResponseFormat,
		Speed:  k.config.Speed,
	}
	if !k.config.Normalize {
		request.Options = map[string]interface{}{
			"normalize": false,
		}
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}

	logging.LogTTSOperation("synthesis_start",
		zap.String("voice", request.Voice),
		zap.Int("text_length", len(text)),
		zap.Float32("speed", request.Speed),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+"/audio/speech", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := k.client.Do(req)
	if err != nil {
		logging.LogError(err, "Kokoro TTS HTTP request failed",
			zap.String("voice", request.Voice),
			zap.Int("text_length", len(text)),
		)
		return nil, fmt.Errorf("TTS HTTP request failed: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		logging.LogWarn("Kokoro TTS request failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response_body", string(body)),
		)
		return nil, fmt.Errorf("TTS request failed with status %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read TTS audio: %w", err)
	}

	pcm, rate, err := audio.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode TTS audio: %w", err)
	}

	result := &TTSResult{PCM: pcm, SampleRate: rate}
	logging.LogTTSOperation("synthesis_complete",
		zap.String("backend", "kokoro"),
		zap.String("voice", request.Voice),
		zap.Duration("audio", result.Duration()),
		zap.Duration("processing_time", time.Since(startTime)),
	)
	return result, nil
}

// GetAvailableVoices returns the list of available voices
func (k *KokoroClient) GetAvailableVoices(ctx context.Context) ([]string, error) {
	k.mu.RLock()
	// Return cached voices if they're fresh (cache for 1 hour)
	if len(k.cachedVoices) > 0 && time.Since(k.voicesCacheTime) < time.Hour {
		voices := make([]string, len(k.cachedVoices))
		copy(voices, k.cachedVoices)
		k.mu.RUnlock()
		return voices, nil
	}
	k.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.baseURL+"/audio/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch voices: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voices request failed with status %d", resp.StatusCode)
	}

	var voicesResponse KokoroVoicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&voicesResponse); err != nil {
		return nil, fmt.Errorf("failed to decode voices response: %w", err)
	}

	k.mu.Lock()
	k.cachedVoices = make([]string, len(voicesResponse.Voices))
	copy(k.cachedVoices, voicesResponse.Voices)
	k.voicesCacheTime = time.Now()
	k.mu.Unlock()

	logging.Sugar.Debugw("🔊 Retrieved available voices",
		"count", len(voicesResponse.Voices),
		"voices", voicesResponse.Voices,
	)

	return voicesResponse.Voices, nil
}

// HealthCheck reports whether the voices endpoint answers and still offers
// the configured voice
func (k *KokoroClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.baseURL+"/audio/voices", nil)
	if err != nil {
		return fmt.Errorf("failed to create test request: %w", err)
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status %d", resp.StatusCode)
	}

	if k.config.Voice == "" {
		return nil
	}
	voices, err := k.GetAvailableVoices(ctx)
	if err != nil {
		return err
	}
	for _, v := range voices {
		if v == k.config.Voice {
			return nil
		}
	}
	return fmt.Errorf("voice %q not offered by Kokoro", k.config.Voice)
}

// Close cleans up resources
func (k *KokoroClient) Close() error {
	k.client.CloseIdleConnections()
	return nil
}
