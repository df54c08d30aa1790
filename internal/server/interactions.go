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

package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/loqalabs/loqa-pi/internal/events"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"github.com/loqalabs/loqa-pi/internal/storage"
	"go.uber.org/zap"
)

// ListInteractionsResponse is one page of interactions
type ListInteractionsResponse struct {
	Interactions []*events.Interaction `json:"interactions"`
	Total        int64                 `json:"total"`
	Page         int                   `json:"page"`
	PageSize     int                   `json:"page_size"`
	TotalPages   int                   `json:"total_pages"`
}

// ListOptionsFromQuery maps dashboard query parameters onto store filters.
// Unparseable filters are ignored.
func ListOptionsFromQuery(get func(key string) string) (storage.ListOptions, int, int) {
	page := parseIntParam(get("page"), 1)
	pageSize := parseIntParam(get("page_size"), 20)
	if pageSize > 100 {
		pageSize = 100
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if page < 1 {
		page = 1
	}

	options := storage.ListOptions{
		Limit:     pageSize,
		Offset:    (page - 1) * pageSize,
		SortBy:    get("sort_by"),
		SortOrder: strings.ToUpper(get("sort_order")),
	}

	if mode, err := events.ParseMode(get("mode")); err == nil {
		options.Mode = mode
	}
	if route := get("route"); route != "" {
		options.Route = events.Route(route)
	}
	if successStr := get("success"); successStr != "" {
		if success, err := strconv.ParseBool(successStr); err == nil {
			options.Success = &success
		}
	}
	if startTimeStr := get("start_time"); startTimeStr != "" {
		if startTime, err := time.Parse(time.RFC3339, startTimeStr); err == nil {
			options.StartTime = &startTime
		}
	}
	if endTimeStr := get("end_time"); endTimeStr != "" {
		if endTime, err := time.Parse(time.RFC3339, endTimeStr); err == nil {
			options.EndTime = &endTime
		}
	}

	return options, page, pageSize
}

func (s *Server) handleListInteractions(c *fiber.Ctx) error {
	if s.deps.Interactions == nil {
		return unavailable(c, "interactions")
	}

	options, page, pageSize := ListOptionsFromQuery(func(key string) string { return c.Query(key) })
	ctx := c.UserContext()

	total, err := s.deps.Interactions.Count(ctx, options)
	if err != nil {
		return s.storeError(c, err, "count")
	}

	list, err := s.deps.Interactions.List(ctx, options)
	if err != nil {
		return s.storeError(c, err, "list")
	}
	if list == nil {
		list = []*events.Interaction{}
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))

	logging.Sugar.Infow("Interactions API request",
		"endpoint", "list",
		"page", page,
		"page_size", pageSize,
		"total_results", total,
		"mode", options.Mode,
	)

	return c.JSON(ListInteractionsResponse{
		Interactions: list,
		Total:        total,
		Page:         page,
		PageSize:     pageSize,
		TotalPages:   totalPages,
	})
}

func (s *Server) handleGetInteraction(c *fiber.Ctx) error {
	if s.deps.Interactions == nil {
		return unavailable(c, "interactions")
	}

	id := c.Params("id")
	in, err := s.deps.Interactions.GetByUUID(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "interaction not found"})
		}
		return s.storeError(c, err, "get")
	}
	return c.JSON(in)
}

// storeError hides storage failures behind a 400 for bad filters and a 500 otherwise
func (s *Server) storeError(c *fiber.Ctx, err error, op string) error {
	if strings.Contains(err.Error(), "unsupported sort") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	logging.LogError(err, "Interactions store failed", zap.String("operation", op))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}
