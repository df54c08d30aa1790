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
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/loqalabs/loqa-pi/internal/buttons"
	"github.com/loqalabs/loqa-pi/internal/config"
	"github.com/loqalabs/loqa-pi/internal/controller"
	"github.com/loqalabs/loqa-pi/internal/display"
	"github.com/loqalabs/loqa-pi/internal/events"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"github.com/loqalabs/loqa-pi/internal/memory"
	"github.com/loqalabs/loqa-pi/internal/storage"
	"github.com/loqalabs/loqa-pi/internal/tiers"
	"go.uber.org/zap"
)

// Controller is the event loop the HTTP surface feeds
type Controller interface {
	Submit(ev events.Event) error
	Status() controller.Status
}

// ButtonDispatcher routes virtual button edges
type ButtonDispatcher interface {
	Dispatch(b buttons.Button, e buttons.Edge, source string) bool
}

// InteractionStore reads persisted interactions
type InteractionStore interface {
	List(ctx context.Context, options storage.ListOptions) ([]*events.Interaction, error)
	Count(ctx context.Context, options storage.ListOptions) (int64, error)
	GetByUUID(ctx context.Context, uuid string) (*events.Interaction, error)
}

// MemorySearcher ranks chat memories
type MemorySearcher interface {
	Search(ctx context.Context, query string, k int) ([]memory.Entry, error)
}

// FrameSource exposes the last rendered display frame
type FrameSource interface {
	Last() (display.Frame, bool)
}

// CapabilitiesSource reports collaborator health
type CapabilitiesSource interface {
	GetCapabilities() tiers.SystemCapabilities
}

// ConfigSource reports the live configuration
type ConfigSource interface {
	Snapshot() *config.Config
	ReloadCount() uint32
}

// Deps are the components served over HTTP; nil ones answer 503
type Deps struct {
	Controller   Controller
	Buttons      ButtonDispatcher
	Interactions InteractionStore
	Memory       MemorySearcher
	Display      FrameSource
	Tiers        CapabilitiesSource
	Config       ConfigSource
}

// Server is the dashboard and control API
type Server struct {
	cfg     config.ServerConfig
	deps    Deps
	app     *fiber.App
	hub     *Hub
	started time.Time
}

// New builds the fiber app and its routes
func New(cfg config.ServerConfig, deps Deps) *Server {
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		hub:     NewHub("display"),
		started: time.Now(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "loqa-pi",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
	})
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/mode/:mode", s.handleMode)
	api.Post("/buttons/:button/:edge", s.handleButton)
	api.Get("/interactions", s.handleListInteractions)
	api.Get("/interactions/:id", s.handleGetInteraction)
	api.Get("/memory/search", s.handleMemorySearch)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/display", websocket.New(s.handleDisplayWS))

	s.app = app
	return s
}

// Hub returns the websocket hub so it can be registered as a display sink
func (s *Server) Hub() *Hub {
	return s.hub
}

// App exposes the fiber app for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run(ctx)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	errCh := make(chan error, 1)
	go func() {
		logging.Sugar.Infof("🌐 Dashboard listening on http://%s", addr)
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
		logging.LogError(err, "HTTP shutdown failed")
	}
	<-errCh
	return nil
}

func (s *Server) handleDisplayWS(c *websocket.Conn) {
	var initial []byte
	if s.deps.Display != nil {
		if frame, ok := s.deps.Display.Last(); ok {
			if data, err := json.Marshal(frame); err == nil {
				initial = data
			}
		}
	}
	s.hub.Serve(c, initial)
}

func unavailable(c *fiber.Ctx, what string) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": what + " not available",
	})
}

func logRequest(c *fiber.Ctx, endpoint string, fields ...zap.Field) {
	logging.Logger.Debug("API request", append([]zap.Field{
		zap.String("component", "server"),
		zap.String("endpoint", endpoint),
		zap.String("method", c.Method()),
	}, fields...)...)
}
