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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-pi/internal/config"
)

func TestSTTClientTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("bad multipart body: %v", err)
		}
		if r.FormValue("language") != "en" {
			t.Errorf("language = %q, want en", r.FormValue("language"))
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			return
		}
		defer file.Close()
		if header.Filename != "audio.wav" {
			t.Errorf("filename = %q", header.Filename)
		}

		json.NewEncoder(w).Encode(map[string]string{"text": " [BLANK_AUDIO] What time is it? "})
	}))
	defer server.Close()

	client := NewSTTClient(config.STTConfig{URL: server.URL, Language: "en"})
	defer client.Close()

	text, err := client.Transcribe(context.Background(), []byte("RIFF....WAVE"))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "What time is it?" {
		t.Errorf("Transcribe() = %q", text)
	}
}

func TestSTTClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewSTTClient(config.STTConfig{URL: server.URL})

	if _, err := client.Transcribe(context.Background(), nil); err == nil {
		t.Error("expected error for empty audio")
	}

	_, err := client.Transcribe(context.Background(), []byte("RIFF"))
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("expected status error, got %v", err)
	}

	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck should fail on 503")
	}
}

func TestSTTClientHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewSTTClient(config.STTConfig{URL: server.URL + "/"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestCleanTranscript(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello world", "hello world"},
		{"  [BLANK_AUDIO]  ", ""},
		{"(music) turn on   the light", "turn on the light"},
		{"what [inaudible] time", "what time"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CleanTranscript(tt.input); got != tt.want {
			t.Errorf("CleanTranscript(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNewTranscriber(t *testing.T) {
	tr, err := NewTranscriber(config.STTConfig{Backend: "rest", URL: "http://localhost:1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.(*STTClient); !ok {
		t.Errorf("rest backend built %T", tr)
	}

	if _, err := NewTranscriber(config.STTConfig{Backend: "telepathy"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
