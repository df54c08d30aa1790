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

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loqalabs/loqa-pi/internal/events"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"go.uber.org/zap"
)

const interactionColumns = `uuid, mode, route, timestamp,
	audio_path, audio_hash, audio_duration, sample_rate,
	transcript, context_count,
	image_path, labels,
	response_text, processing_time_ms, success, error_message`

// sortColumns maps accepted SortBy values onto columns; anything else is rejected.
var sortColumns = map[string]string{
	"timestamp":       "timestamp",
	"processing_time": "processing_time_ms",
	"mode":            "mode",
}

// InteractionsStore handles database operations for interactions
type InteractionsStore struct {
	db *Database
}

// NewInteractionsStore creates a new interactions store
func NewInteractionsStore(db *Database) *InteractionsStore {
	return &InteractionsStore{db: db}
}

// Record persists a finished interaction
func (s *InteractionsStore) Record(ctx context.Context, in *events.Interaction) error {
	return s.Insert(ctx, in)
}

// Insert stores a new interaction in the database
func (s *InteractionsStore) Insert(ctx context.Context, in *events.Interaction) error {
	if err := in.Validate(); err != nil {
		return fmt.Errorf("invalid interaction: %w", err)
	}

	labelsJSON, err := in.LabelsJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize labels: %w", err)
	}

	query := `INSERT INTO interactions (` + interactionColumns + `) VALUES (
			?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?,
			?, ?,
			?, ?, ?, ?
		)`

	_, err = s.db.DB().ExecContext(ctx, query,
		in.UUID, string(in.Mode), string(in.Route), in.Timestamp.UTC(),
		in.AudioPath, in.AudioHash, in.AudioDuration, in.SampleRate,
		in.Transcript, in.ContextCount,
		in.ImagePath, labelsJSON,
		in.ResponseText, in.ProcessingTime, in.Success, in.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}

	logging.LogDatabaseOperation("insert", "interactions",
		zap.String("uuid", in.UUID),
		zap.String("mode", string(in.Mode)),
	)
	return nil
}

// GetByUUID retrieves an interaction by its UUID
func (s *InteractionsStore) GetByUUID(ctx context.Context, uuid string) (*events.Interaction, error) {
	query := `SELECT ` + interactionColumns + ` FROM interactions WHERE uuid = ?`

	row := s.db.DB().QueryRowContext(ctx, query, uuid)
	return scanInteraction(row)
}

// List retrieves interactions with pagination and filtering
func (s *InteractionsStore) List(ctx context.Context, options ListOptions) ([]*events.Interaction, error) {
	query, args, err := buildListQuery(options)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var list []*events.Interaction
	for rows.Next() {
		in, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		list = append(list, in)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interactions: %w", err)
	}

	return list, nil
}

// Count returns the total number of interactions matching the filter
func (s *InteractionsStore) Count(ctx context.Context, options ListOptions) (int64, error) {
	options.Limit = 0
	options.Offset = 0
	query, args, err := buildListQuery(options)
	if err != nil {
		return 0, err
	}

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS filtered"

	var count int64
	if err := s.db.DB().QueryRowContext(ctx, countQuery, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count interactions: %w", err)
	}

	return count, nil
}

// GetByAudioHash finds interactions with the same audio hash (repeated clips)
func (s *InteractionsStore) GetByAudioHash(ctx context.Context, audioHash string) ([]*events.Interaction, error) {
	query := `SELECT ` + interactionColumns + ` FROM interactions
		WHERE audio_hash = ? ORDER BY timestamp DESC`

	rows, err := s.db.DB().QueryContext(ctx, query, audioHash)
	if err != nil {
		return nil, fmt.Errorf("failed to query by audio hash: %w", err)
	}
	defer rows.Close()

	var list []*events.Interaction
	for rows.Next() {
		in, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		list = append(list, in)
	}

	return list, rows.Err()
}

// Delete removes an interaction by UUID
func (s *InteractionsStore) Delete(ctx context.Context, uuid string) error {
	result, err := s.db.DB().ExecContext(ctx, "DELETE FROM interactions WHERE uuid = ?", uuid)
	if err != nil {
		return fmt.Errorf("failed to delete interaction: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("interaction %s: %w", uuid, ErrNotFound)
	}

	logging.LogDatabaseOperation("delete", "interactions", zap.String("uuid", uuid))
	return nil
}

// Prune deletes interactions recorded before cutoff and returns how many went
func (s *InteractionsStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.DB().ExecContext(ctx, "DELETE FROM interactions WHERE timestamp < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune interactions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if n > 0 {
		logging.Sugar.Infof("🧹 Pruned %d interactions older than %s", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// ListOptions defines filtering and pagination options
type ListOptions struct {
	// Filtering
	Mode      events.Mode
	Route     events.Route
	Success   *bool // nil = all, true = success only, false = errors only
	StartTime *time.Time
	EndTime   *time.Time

	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string // "timestamp", "processing_time", "mode"
	SortOrder string // "ASC", "DESC"
}

// buildListQuery constructs the SQL query based on ListOptions
func buildListQuery(options ListOptions) (string, []any, error) {
	query := `SELECT ` + interactionColumns + ` FROM interactions WHERE 1=1`

	var args []any

	if options.Mode != "" {
		query += " AND mode = ?"
		args = append(args, string(options.Mode))
	}

	if options.Route != "" {
		query += " AND route = ?"
		args = append(args, string(options.Route))
	}

	if options.Success != nil {
		query += " AND success = ?"
		args = append(args, *options.Success)
	}

	if options.StartTime != nil {
		query += " AND timestamp >= ?"
		args = append(args, options.StartTime.UTC())
	}

	if options.EndTime != nil {
		query += " AND timestamp <= ?"
		args = append(args, options.EndTime.UTC())
	}

	sortBy := options.SortBy
	if sortBy == "" {
		sortBy = "timestamp"
	}
	column, ok := sortColumns[sortBy]
	if !ok {
		return "", nil, fmt.Errorf("unsupported sort column: %q", sortBy)
	}

	sortOrder := strings.ToUpper(options.SortOrder)
	switch sortOrder {
	case "":
		sortOrder = "DESC"
	case "ASC", "DESC":
	default:
		return "", nil, fmt.Errorf("unsupported sort order: %q", options.SortOrder)
	}

	query += fmt.Sprintf(" ORDER BY %s %s", column, sortOrder)

	if options.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, options.Limit)

		if options.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, options.Offset)
		}
	}

	return query, args, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanInteraction scans a database row into an Interaction
func scanInteraction(row rowScanner) (*events.Interaction, error) {
	var in events.Interaction
	var mode, route, labelsJSON string

	err := row.Scan(
		&in.UUID, &mode, &route, &in.Timestamp,
		&in.AudioPath, &in.AudioHash, &in.AudioDuration, &in.SampleRate,
		&in.Transcript, &in.ContextCount,
		&in.ImagePath, &labelsJSON,
		&in.ResponseText, &in.ProcessingTime, &in.Success, &in.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("interaction: %w", ErrNotFound)
		}
		return nil, err
	}

	in.Mode = events.Mode(mode)
	in.Route = events.Route(route)

	if err := in.SetLabelsFromJSON(labelsJSON); err != nil {
		return nil, fmt.Errorf("failed to parse labels JSON: %w", err)
	}

	return &in, nil
}
