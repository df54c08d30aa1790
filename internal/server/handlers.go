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
	"github.com/loqalabs/loqa-pi/internal/buttons"
	"github.com/loqalabs/loqa-pi/internal/controller"
	"github.com/loqalabs/loqa-pi/internal/events"
	"github.com/loqalabs/loqa-pi/internal/security"
	"go.uber.org/zap"
)

const maxMemoryResults = 20

func (s *Server) handleHealth(c *fiber.Ctx) error {
	status := "ok"
	resp := fiber.Map{"uptime_seconds": int64(time.Since(s.started).Seconds())}

	if s.deps.Tiers != nil {
		caps := s.deps.Tiers.GetCapabilities()
		resp["tier"] = caps.Tier
		if caps.Degraded {
			status = "degraded"
			resp["reason"] = caps.DegradationReason
		}
	}
	resp["status"] = status
	return c.JSON(resp)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := fiber.Map{"dashboard_clients": s.hub.ClientCount()}

	if s.deps.Controller != nil {
		resp["controller"] = s.deps.Controller.Status()
	}
	if s.deps.Display != nil {
		if frame, ok := s.deps.Display.Last(); ok {
			resp["display"] = frame
		}
	}
	if s.deps.Tiers != nil {
		resp["capabilities"] = s.deps.Tiers.GetCapabilities()
	}
	if s.deps.Config != nil {
		cfg := s.deps.Config.Snapshot()
		resp["config"] = fiber.Map{
			"reloads":       s.deps.Config.ReloadCount(),
			"llm_model":     cfg.LLM.Model,
			"temperature":   cfg.LLM.Temperature,
			"history_turns": cfg.Controller.HistoryTurns,
		}
	}
	return c.JSON(resp)
}

func (s *Server) handleMode(c *fiber.Ctx) error {
	if s.deps.Controller == nil {
		return unavailable(c, "controller")
	}

	mode, err := events.ParseMode(c.Params("mode"))
	if err != nil || mode == events.ModeBoot {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "mode must be chat or object",
		})
	}

	typ := events.TypeModeChat
	if mode == events.ModeObject {
		typ = events.TypeModeObject
	}

	if err := s.deps.Controller.Submit(events.New(typ, events.SourceHTTP)); err != nil {
		if errors.Is(err, controller.ErrQueueFull) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	logRequest(c, "mode", zap.String("mode", string(mode)))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"queued": typ})
}

func (s *Server) handleButton(c *fiber.Ctx) error {
	if s.deps.Buttons == nil {
		return unavailable(c, "buttons")
	}

	b, err := buttons.ParseButton(c.Params("button"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	e, err := buttons.ParseEdge(c.Params("edge"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	accepted := s.deps.Buttons.Dispatch(b, e, events.SourceHTTP)
	logRequest(c, "buttons", zap.String("button", string(b)), zap.String("edge", string(e)), zap.Bool("accepted", accepted))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"button":   b,
		"edge":     e,
		"accepted": accepted,
	})
}

func (s *Server) handleMemorySearch(c *fiber.Ctx) error {
	if s.deps.Memory == nil {
		return unavailable(c, "memory")
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "q is required"})
	}
	k := parseIntParam(c.Query("k"), 3)
	if k < 1 {
		k = 1
	}
	if k > maxMemoryResults {
		k = maxMemoryResults
	}

	entries, err := s.deps.Memory.Search(c.UserContext(), query, k)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "memory search failed"})
	}

	logRequest(c, "memory_search", zap.String("query", security.SanitizeLogInput(query)), zap.Int("results", len(entries)))
	return c.JSON(fiber.Map{"query": query, "results": entries})
}

// parseIntParam parses integer parameter with default value
func parseIntParam(param string, defaultValue int) int {
	if param == "" {
		return defaultValue
	}
	if value, err := strconv.Atoi(param); err == nil {
		return value
	}
	return defaultValue
}
