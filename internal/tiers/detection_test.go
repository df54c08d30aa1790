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

package tiers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-pi/internal/config"
)

func up(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

func TestNewTierDetector(t *testing.T) {
	td := NewTierDetector(config.TiersConfig{})

	if td.detectionInterval != 30*time.Second {
		t.Errorf("detectionInterval = %v, want 30s", td.detectionInterval)
	}
	if td.healthTimeout != 3*time.Second {
		t.Errorf("healthTimeout = %v, want 3s", td.healthTimeout)
	}

	caps := td.GetCapabilities()
	if caps.Tier != TierBasic {
		t.Errorf("Initial tier = %v, want %v", caps.Tier, TierBasic)
	}
	if caps.Hardware.CPUCores != runtime.NumCPU() {
		t.Errorf("CPU cores = %d, want %d", caps.Hardware.CPUCores, runtime.NumCPU())
	}
	if caps.Hardware.Architecture != runtime.GOARCH || caps.Hardware.OS != runtime.GOOS {
		t.Errorf("unexpected hardware %+v", caps.Hardware)
	}
	if caps.Degraded {
		t.Error("Initial state should not be degraded")
	}
}

func TestHTTPProbe(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"not found still answers", http.StatusNotFound, false},
		{"server error", http.StatusInternalServerError, true},
		{"unavailable", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := HTTPProbe(server.URL + "/health")(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("probe error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := HTTPProbe("http://127.0.0.1:1/health")(context.Background()); err == nil {
		t.Error("expected error for unreachable service")
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name         string
		probes       []Probe
		wantTier     PerformanceTier
		wantDegraded bool
		wantReason   string
	}{
		{
			name:     "all up",
			probes:   []Probe{{"llm", true, up}, {"stt", true, up}, {"tts", false, up}},
			wantTier: TierStandard,
		},
		{
			name:         "llm down",
			probes:       []Probe{{"llm", true, down}, {"stt", true, up}},
			wantTier:     TierBasic,
			wantDegraded: true,
			wantReason:   "LLM unavailable",
		},
		{
			name:         "first required failure by name",
			probes:       []Probe{{"stt", true, down}, {"llm", true, down}},
			wantTier:     TierBasic,
			wantDegraded: true,
			wantReason:   "LLM unavailable",
		},
		{
			name:     "optional down",
			probes:   []Probe{{"llm", true, up}, {"nats", false, down}},
			wantTier: TierStandard,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			td := NewTierDetector(config.TiersConfig{ProbeTimeout: time.Second}, tt.probes...)
			caps := td.Detect(context.Background())

			wantTier := tt.wantTier
			if wantTier == TierStandard && runtime.NumCPU() >= SLARequirements[TierPro].MinCPUCores && allAvailable(caps) {
				wantTier = TierPro
			}
			if caps.Tier != wantTier {
				t.Errorf("Tier = %v, want %v", caps.Tier, wantTier)
			}
			if caps.Degraded != tt.wantDegraded || caps.DegradationReason != tt.wantReason {
				t.Errorf("degraded = %v %q, want %v %q", caps.Degraded, caps.DegradationReason, tt.wantDegraded, tt.wantReason)
			}
			if len(caps.Services) != len(tt.probes) {
				t.Errorf("services = %d, want %d", len(caps.Services), len(tt.probes))
			}
		})
	}
}

func allAvailable(caps SystemCapabilities) bool {
	for _, s := range caps.Services {
		if !s.Available {
			return false
		}
	}
	return true
}

func TestCheckDegradation_Slow(t *testing.T) {
	services := map[string]ServiceStatus{
		"llm": {Available: true, Required: true, Latency: 2500 * time.Millisecond},
		"tts": {Available: true, Required: false, Latency: 9 * time.Second},
	}

	degraded, reason := checkDegradation(services)
	if !degraded || reason != "LLM slow (2500ms)" {
		t.Errorf("got %v %q", degraded, reason)
	}
}

func TestDetermineTier(t *testing.T) {
	fast := ServiceStatus{Available: true, Required: true, Latency: 10 * time.Millisecond}
	slow := ServiceStatus{Available: true, Required: true, Latency: time.Second}

	if got := determineTier(map[string]ServiceStatus{"llm": fast}, HardwareInfo{CPUCores: 4}); got != TierPro {
		t.Errorf("fast quad core = %v, want pro", got)
	}
	if got := determineTier(map[string]ServiceStatus{"llm": fast}, HardwareInfo{CPUCores: 1}); got != TierStandard {
		t.Errorf("fast single core = %v, want standard", got)
	}
	if got := determineTier(map[string]ServiceStatus{"llm": slow}, HardwareInfo{CPUCores: 4}); got != TierStandard {
		t.Errorf("slow quad core = %v, want standard", got)
	}
}

func TestProbeTimeout(t *testing.T) {
	blocking := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	td := NewTierDetector(config.TiersConfig{ProbeTimeout: 20 * time.Millisecond}, Probe{"stt", true, blocking})

	start := time.Now()
	caps := td.Detect(context.Background())
	if time.Since(start) > time.Second {
		t.Error("probe timeout not applied")
	}
	if caps.Services["stt"].Available || !strings.Contains(caps.Services["stt"].Error, "deadline") {
		t.Errorf("unexpected status %+v", caps.Services["stt"])
	}
}

func TestCallbacks(t *testing.T) {
	var mu sync.Mutex
	llmUp := false
	check := func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if llmUp {
			return nil
		}
		return errors.New("down")
	}

	td := NewTierDetector(config.TiersConfig{}, Probe{"llm", true, check})

	var reasons []string
	var changes []PerformanceTier
	statuses, recoveries := 0, 0
	td.SetRecoveryCallback(func() { recoveries++ })
	td.SetDegradationCallback(func(reason string) { reasons = append(reasons, reason) })
	td.SetTierChangeCallback(func(_, tier PerformanceTier) { changes = append(changes, tier) })
	td.SetStatusCallback(func(SystemCapabilities) { statuses++ })

	td.Detect(context.Background())
	td.Detect(context.Background())
	if len(reasons) != 1 || reasons[0] != "LLM unavailable" {
		t.Errorf("degradation should be reported once, got %v", reasons)
	}
	if len(changes) != 0 {
		t.Errorf("tier stayed basic, got changes %v", changes)
	}
	if recoveries != 0 {
		t.Errorf("no recovery while degraded, got %d", recoveries)
	}

	mu.Lock()
	llmUp = true
	mu.Unlock()
	td.Detect(context.Background())

	if len(changes) != 1 || changes[0] == TierBasic {
		t.Errorf("expected one upgrade, got %v", changes)
	}
	td.Detect(context.Background())
	if recoveries != 1 {
		t.Errorf("recovery should be reported once, got %d", recoveries)
	}
	if statuses != 4 {
		t.Errorf("status callback calls = %d, want 4", statuses)
	}
	if td.GetTier() == TierBasic {
		t.Error("GetTier should reflect recovery")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	td := NewTierDetector(config.TiersConfig{ProbeInterval: 10 * time.Millisecond}, Probe{"llm", true, up})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- td.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	if td.GetCapabilities().LastDetected.IsZero() {
		t.Error("expected at least one detection")
	}
}

func TestGetCapabilitiesCopiesServices(t *testing.T) {
	td := NewTierDetector(config.TiersConfig{}, Probe{"llm", true, up})
	td.Detect(context.Background())

	caps := td.GetCapabilities()
	caps.Services["llm"] = ServiceStatus{}
	if !td.GetCapabilities().Services["llm"].Available {
		t.Error("GetCapabilities should return a copy")
	}
}
