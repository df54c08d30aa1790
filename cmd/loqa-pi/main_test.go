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

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-pi/internal/events"
	"github.com/loqalabs/loqa-pi/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute(), out.String())
	return out.String()
}

func TestConfigPrintMasksSecrets(t *testing.T) {
	t.Setenv("LOQA_PI_CONFIG", "")
	t.Setenv("HOME_ASSISTANT_TOKEN", "super-secret")

	out := execute(t, "config", "print")
	assert.Contains(t, out, "model: llama3.2:1b")
	assert.NotContains(t, out, "super-secret")
}

func TestConfigOverlayFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  model: qwen2.5:0.5b\n"), 0o600))

	out := execute(t, "--config", path, "config", "print")
	assert.Contains(t, out, "model: qwen2.5:0.5b")
}

func TestInteractionsList(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	t.Setenv("LOQA_DB_PATH", dbPath)

	db, err := storage.NewDatabase(storage.DatabaseConfig{Path: dbPath})
	require.NoError(t, err)
	store := storage.NewInteractionsStore(db)

	chat := events.NewInteraction(events.ModeChat)
	chat.SetTranscript("what is the weather like")
	chat.SetResponse(events.RouteLLM, "Sunny and mild.")
	require.NoError(t, store.Insert(context.Background(), chat))

	obj := events.NewInteraction(events.ModeObject)
	obj.SetDetections("/tmp/a.jpg", []string{"cup", "laptop"})
	obj.SetResponse(events.RouteDetection, "I can see a cup and a laptop.")
	require.NoError(t, store.Insert(context.Background(), obj))
	require.NoError(t, db.Close())

	out := execute(t, "interactions", "list")
	assert.Contains(t, out, "what is the weather like")
	assert.Contains(t, out, "cup, laptop")

	out = execute(t, "interactions", "list", "--mode", "object", "--json")
	assert.Contains(t, out, obj.UUID)
	assert.NotContains(t, out, chat.UUID)
}

func TestInteractionsListByAudioHash(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	t.Setenv("LOQA_DB_PATH", dbPath)

	db, err := storage.NewDatabase(storage.DatabaseConfig{Path: dbPath})
	require.NoError(t, err)
	store := storage.NewInteractionsStore(db)

	clip := events.NewInteraction(events.ModeChat)
	clip.SetAudio("/audio/a.wav", []int16{1, 2, 3, 4}, 16000)
	clip.SetTranscript("turn on the lamp")
	clip.SetResponse(events.RouteHome, "Turning on the lamp.")
	require.NoError(t, store.Insert(context.Background(), clip))

	other := events.NewInteraction(events.ModeChat)
	other.SetAudio("/audio/b.wav", []int16{9, 9}, 16000)
	other.SetTranscript("what time is it")
	other.SetResponse(events.RouteLLM, "Noon.")
	require.NoError(t, store.Insert(context.Background(), other))
	require.NoError(t, db.Close())

	out := execute(t, "interactions", "list", "--audio-hash", clip.AudioHash, "--json")
	assert.Contains(t, out, clip.UUID)
	assert.NotContains(t, out, other.UUID)
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "short", shorten("short", 10))
	assert.Equal(t, "a b", shorten("a\n  b", 10))
	got := shorten(strings.Repeat("x", 20), 10)
	assert.Equal(t, 10, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
