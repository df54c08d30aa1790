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

package memory

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-pi/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bagEmbedder embeds text as counts over a tiny fixed vocabulary
type bagEmbedder struct {
	vocab []string
	fail  bool
	calls int
}

func (b *bagEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	b.calls++
	if b.fail {
		return nil, errors.New("embedding service down")
	}
	text = strings.ToLower(text)
	vec := make([]float32, len(b.vocab))
	for i, w := range b.vocab {
		vec[i] = float32(strings.Count(text, w))
	}
	return vec, nil
}

func newTestStore(t *testing.T, embedder Embedder) *Store {
	t.Helper()
	db, err := storage.NewDatabase(storage.DatabaseConfig{Path: filepath.Join(t.TempDir(), "mem.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db.DB(), embedder)
}

func TestRetrieve_EmptyStore(t *testing.T) {
	emb := &bagEmbedder{vocab: []string{"weather"}}
	store := newTestStore(t, emb)

	docs, err := store.Retrieve(context.Background(), "weather", 3)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Zero(t, emb.calls, "empty store should not embed the query")
}

func TestAddStoresExchangeFormat(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	_, err := store.Add(ctx, "What is your name?", "I am Loqa.")
	require.NoError(t, err)

	entries, err := store.Search(ctx, "name", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Q: What is your name?\nA: I am Loqa.", entries[0].Document)
	assert.Equal(t, KindChatExchange, entries[0].Kind)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRetrieve_CosineTopK(t *testing.T) {
	emb := &bagEmbedder{vocab: []string{"weather", "rain", "music", "song", "light"}}
	store := newTestStore(t, emb)
	ctx := context.Background()

	for _, qa := range [][2]string{
		{"Will it rain today?", "The weather looks like rain."},
		{"Play a song", "Here is some music, a nice song."},
		{"Turn on the light", "The light is on."},
		{"Is the weather nice?", "The weather is sunny."},
	} {
		_, err := store.Add(ctx, qa[0], qa[1])
		require.NoError(t, err)
	}

	docs, err := store.Retrieve(ctx, "what about the weather and rain", 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Contains(t, docs[0], "rain")
	assert.Contains(t, docs[1], "weather")

	all, err := store.Retrieve(ctx, "music", 10)
	require.NoError(t, err)
	assert.Len(t, all, 4, "vector ranking returns every embedded document up to k")
	assert.Contains(t, all[0], "song")
}

func TestRetrieve_DefaultK(t *testing.T) {
	store := newTestStore(t, &bagEmbedder{vocab: []string{"a"}})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := store.Add(ctx, "a question", "an answer")
		require.NoError(t, err)
	}

	docs, err := store.Retrieve(ctx, "a", 0)
	require.NoError(t, err)
	assert.Len(t, docs, DefaultTopK)
}

func TestRetrieve_KeywordFallbackOnEmbedFailure(t *testing.T) {
	emb := &bagEmbedder{vocab: []string{"kitchen", "garden"}}
	store := newTestStore(t, emb)
	ctx := context.Background()

	_, err := store.Add(ctx, "Where are the keys?", "In the kitchen drawer.")
	require.NoError(t, err)
	_, err = store.Add(ctx, "What grows outside?", "Tomatoes in the garden.")
	require.NoError(t, err)

	emb.fail = true
	docs, err := store.Retrieve(ctx, "kitchen keys", 3)
	require.NoError(t, err, "embedding failure must not fail retrieval")
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0], "kitchen drawer")
}

func TestAdd_EmbedFailureStillStores(t *testing.T) {
	emb := &bagEmbedder{vocab: []string{"x"}, fail: true}
	store := newTestStore(t, emb)
	ctx := context.Background()

	_, err := store.Add(ctx, "remember the code word", "pineapple")
	require.NoError(t, err)

	// Query embeds fine now but the stored row has no vector, so keywords rank it.
	emb.fail = false
	docs, err := store.Retrieve(ctx, "pineapple", 3)
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestVectorRoundTrip(t *testing.T) {
	vec := []float32{0.5, -1.25, 3}
	assert.Equal(t, vec, decodeVector(encodeVector(vec)))
	assert.Nil(t, decodeVector([]byte{1, 2, 3}))
	assert.Nil(t, encodeVector(nil))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 1}))
}
