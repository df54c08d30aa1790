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
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"go.uber.org/zap"
)

// KindChatExchange tags documents that hold one question/answer pair
const KindChatExchange = "chat_exchange"

// DefaultTopK is the number of snippets fed to the chat prompt
const DefaultTopK = 3

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Entry is one stored document with its ranking score
type Entry struct {
	ID        string    `json:"id"`
	Document  string    `json:"document"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	Score     float64   `json:"score"`
}

// Store keeps chat memories in the shared SQLite database
type Store struct {
	db       *sql.DB
	embedder Embedder
}

// NewStore creates a memory store. A nil embedder ranks by keyword overlap only.
func NewStore(db *sql.DB, embedder Embedder) *Store {
	return &Store{db: db, embedder: embedder}
}

// FormatExchange renders a question/answer pair the way it is stored
func FormatExchange(question, answer string) string {
	return fmt.Sprintf("Q: %s\nA: %s", question, answer)
}

// Add stores one exchange. An embedding failure still stores the document,
// which stays reachable through keyword ranking.
func (s *Store) Add(ctx context.Context, question, answer string) (string, error) {
	doc := FormatExchange(question, answer)
	id := uuid.NewString()

	var blob []byte
	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, doc)
		if err != nil {
			logging.LogWarn("Embedding failed, storing memory without vector",
				zap.String("component", "memory"), zap.Error(err))
		} else {
			blob = encodeVector(vec)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, document, kind, embedding, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, doc, KindChatExchange, blob, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to store memory: %w", err)
	}

	logging.LogDatabaseOperation("insert", "memories", zap.String("id", id), zap.Bool("embedded", blob != nil))
	return id, nil
}

// Retrieve returns the documents of the k best matches for query
func (s *Store) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	entries, err := s.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}

	docs := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.Document) == "" {
			continue
		}
		docs = append(docs, e.Document)
	}
	return docs, nil
}

type candidate struct {
	entry Entry
	vec   []float32
}

// Search ranks stored memories against query, by cosine similarity when the
// query can be embedded and by keyword overlap otherwise
func (s *Store) Search(ctx context.Context, query string, k int) ([]Entry, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	candidates, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	var queryVec []float32
	if s.embedder != nil {
		queryVec, err = s.embedder.Embed(ctx, query)
		if err != nil {
			logging.LogWarn("Query embedding failed, falling back to keyword recall",
				zap.String("component", "memory"), zap.Error(err))
			queryVec = nil
		}
	}

	var ranked []Entry
	if queryVec != nil {
		ranked = rankByVector(candidates, queryVec)
	}
	if len(ranked) == 0 {
		ranked = rankByKeywords(candidates, query)
	}

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

// Count returns the number of stored memories
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return n, nil
}

func (s *Store) load(ctx context.Context) ([]candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document, kind, embedding, created_at FROM memories ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var out []candidate
	for rows.Next() {
		var c candidate
		var blob []byte
		if err := rows.Scan(&c.entry.ID, &c.entry.Document, &c.entry.Kind, &blob, &c.entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		c.vec = decodeVector(blob)
		out = append(out, c)
	}
	return out, rows.Err()
}

// rankByVector scores every embedded candidate; unembedded ones are skipped
func rankByVector(candidates []candidate, query []float32) []Entry {
	var ranked []Entry
	for _, c := range candidates {
		if len(c.vec) == 0 || len(c.vec) != len(query) {
			continue
		}
		e := c.entry
		e.Score = cosine(query, c.vec)
		ranked = append(ranked, e)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked
}

// rankByKeywords scores by the fraction of query words found in the document
func rankByKeywords(candidates []candidate, query string) []Entry {
	keywords := strings.Fields(strings.ToLower(query))
	if len(keywords) == 0 {
		return nil
	}

	var ranked []Entry
	for _, c := range candidates {
		doc := strings.ToLower(c.entry.Document)
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(doc, kw) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		e := c.entry
		e.Score = float64(hits) / float64(len(keywords))
		ranked = append(ranked, e)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func encodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, vec); err != nil {
		return nil
	}
	return buf.Bytes()
}

func decodeVector(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}
