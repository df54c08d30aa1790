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

	"github.com/loqalabs/loqa-pi/internal/config"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"go.uber.org/zap"
)

// HTTPClient is the subset of *http.Client the Ollama client needs
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// GenerateOptions are the sampling settings sent with every request
type GenerateOptions struct {
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	NumPredict  int      `json:"num_predict"`
	Stop        []string `json:"stop,omitempty"`
}

// OllamaRequest represents a request to Ollama API
type OllamaRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options GenerateOptions `json:"options"`
}

// OllamaResponse represents a response from Ollama API
type OllamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// OllamaClient generates completions and embeddings
type OllamaClient struct {
	baseURL    string
	model      string
	embedModel string
	client     HTTPClient

	mu      sync.RWMutex
	options GenerateOptions
}

// NewOllamaClient creates a client from LLM settings
func NewOllamaClient(cfg config.LLMConfig) *OllamaClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return NewOllamaClientWithHTTP(cfg, &http.Client{Timeout: timeout})
}

// NewOllamaClientWithHTTP lets tests inject the transport
func NewOllamaClientWithHTTP(cfg config.LLMConfig, client HTTPClient) *OllamaClient {
	o := &OllamaClient{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		model:      cfg.Model,
		embedModel: cfg.EmbedModel,
		client:     client,
	}
	o.SetOptions(cfg)
	return o
}

// SetOptions swaps sampling settings; used on config reload
func (o *OllamaClient) SetOptions(cfg config.LLMConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.options = GenerateOptions{
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		NumPredict:  cfg.MaxTokens,
		Stop:        append([]string(nil), cfg.Stop...),
	}
}

// Options returns the current sampling settings
func (o *OllamaClient) Options() GenerateOptions {
	o.mu.RLock()
	defer o.mu.RUnlock()
	opts := o.options
	opts.Stop = append([]string(nil), o.options.Stop...)
	return opts
}

// Generate runs a non-streaming completion and returns the trimmed reply
func (o *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	startTime := time.Now()

	reqBody := OllamaRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  false,
		Options: o.Options(),
	}

	var ollamaResp OllamaResponse
	if err := o.postJSON(ctx, "/api/generate", reqBody, &ollamaResp); err != nil {
		return "", err
	}

	text := strings.TrimSpace(ollamaResp.Response)
	logging.LogPipelineStage("chat", "llm_complete",
		zap.String("model", o.model),
		zap.Int("prompt_chars", len(prompt)),
		zap.Int("response_chars", len(text)),
		zap.Duration("duration", time.Since(startTime)),
	)
	return text, nil
}

// Embed returns the embedding vector for text
func (o *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embeddingResponse
	if err := o.postJSON(ctx, "/api/embeddings", embeddingRequest{Model: o.embedModel, Prompt: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding for model %s", o.embedModel)
	}
	return resp.Embedding, nil
}

// TestConnection checks that Ollama is reachable
func (o *OllamaClient) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("cannot connect to Ollama at %s: %w", o.baseURL, err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama API returned status %d", resp.StatusCode)
	}
	return nil
}

func (o *OllamaClient) postJSON(ctx context.Context, path string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("error making request to Ollama: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ollama API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error unmarshaling response: %w", err)
	}
	return nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		logging.LogWarn("Failed to close response body", zap.Error(err))
	}
}
