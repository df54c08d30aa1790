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

package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/loqalabs/loqa-pi/internal/logging"
	"github.com/loqalabs/loqa-pi/internal/tiers"
	googlegrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Services reported individually besides the overall "" entry
var Services = []string{"llm", "stt", "tts", "vision", "home", "nats"}

// HealthServer exposes grpc.health.v1 fed by the tiers detector
type HealthServer struct {
	addr   string
	server *googlegrpc.Server
	health *health.Server
}

// NewHealthServer creates a health server that will listen on addr
func NewHealthServer(addr string) *HealthServer {
	hs := &HealthServer{
		addr:   addr,
		server: googlegrpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(hs.server, hs.health)

	for _, name := range Services {
		hs.health.SetServingStatus(name, healthpb.HealthCheckResponse_UNKNOWN)
	}
	return hs
}

// Update maps probe results onto serving statuses
func (hs *HealthServer) Update(caps tiers.SystemCapabilities) {
	for _, name := range Services {
		status := healthpb.HealthCheckResponse_UNKNOWN
		if s, ok := caps.Services[name]; ok {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			if s.Available {
				status = healthpb.HealthCheckResponse_SERVING
			}
		}
		hs.health.SetServingStatus(name, status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if caps.Degraded {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.health.SetServingStatus("", overall)
}

// Check answers a health query in-process
func (hs *HealthServer) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := hs.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Run serves until ctx is cancelled
func (hs *HealthServer) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", hs.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", hs.addr, err)
	}
	return hs.Serve(ctx, lis)
}

// Serve serves on lis until ctx is cancelled
func (hs *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		hs.health.Shutdown()
		hs.server.GracefulStop()
	}()

	logging.Sugar.Infof("🩺 gRPC health listening on %s", lis.Addr())
	if err := hs.server.Serve(lis); err != nil && !errors.Is(err, googlegrpc.ErrServerStopped) {
		return fmt.Errorf("gRPC server failed: %w", err)
	}
	return nil
}
