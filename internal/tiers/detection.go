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
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-pi/internal/config"
	"github.com/loqalabs/loqa-pi/internal/logging"
)

type PerformanceTier string

const (
	TierBasic    PerformanceTier = "basic"    // A required collaborator is down
	TierStandard PerformanceTier = "standard" // Every required collaborator answers
	TierPro      PerformanceTier = "pro"      // Everything answers quickly on a multi-core board
)

// Probe checks one collaborator. Required probes degrade the assistant
// when they fail.
type Probe struct {
	Name     string
	Required bool
	Check    func(ctx context.Context) error
}

// ServiceStatus is the outcome of the last probe of a collaborator
type ServiceStatus struct {
	Available bool          `json:"available"`
	Required  bool          `json:"required"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
}

type HardwareInfo struct {
	CPUCores     int    `json:"cpu_cores"`
	Architecture string `json:"architecture"`
	OS           string `json:"os"`
}

type SystemCapabilities struct {
	Tier              PerformanceTier          `json:"tier"`
	Services          map[string]ServiceStatus `json:"services"`
	Hardware          HardwareInfo             `json:"hardware"`
	LastDetected      time.Time                `json:"last_detected"`
	Degraded          bool                     `json:"degraded"`
	DegradationReason string                   `json:"degradation_reason,omitempty"`
}

// SLA bounds per tier
var SLARequirements = map[PerformanceTier]struct {
	MaxLatency  time.Duration
	MinCPUCores int
}{
	TierStandard: {MaxLatency: 2 * time.Second, MinCPUCores: 1},
	TierPro:      {MaxLatency: 300 * time.Millisecond, MinCPUCores: 4},
}

// TierDetector periodically probes the collaborators of the pipeline
type TierDetector struct {
	mutex        sync.RWMutex
	capabilities SystemCapabilities

	probes []Probe

	detectionInterval time.Duration
	healthTimeout     time.Duration

	onTierChange  func(old, new PerformanceTier)
	onDegradation func(reason string)
	onRecovery    func()
	onStatus      func(SystemCapabilities)
}

// NewTierDetector creates a detector over probes
func NewTierDetector(cfg config.TiersConfig, probes ...Probe) *TierDetector {
	td := &TierDetector{
		probes:            probes,
		detectionInterval: cfg.ProbeInterval,
		healthTimeout:     cfg.ProbeTimeout,
	}
	if td.detectionInterval <= 0 {
		td.detectionInterval = 30 * time.Second
	}
	if td.healthTimeout <= 0 {
		td.healthTimeout = 3 * time.Second
	}

	td.capabilities = SystemCapabilities{
		Tier:         TierBasic,
		Services:     map[string]ServiceStatus{},
		Hardware:     detectHardware(),
		LastDetected: time.Now(),
	}
	return td
}

// HTTPProbe returns a check that GETs url and accepts any non-5xx answer
func HTTPProbe(url string) func(ctx context.Context) error {
	client := &http.Client{}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	}
}

// Run probes immediately and then every interval until ctx is cancelled
func (td *TierDetector) Run(ctx context.Context) error {
	td.Detect(ctx)

	ticker := time.NewTicker(td.detectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			td.Detect(ctx)
		}
	}
}

// Detect runs every probe once and updates the capabilities
func (td *TierDetector) Detect(ctx context.Context) SystemCapabilities {
	services := td.detectServiceAvailability(ctx)

	td.mutex.Lock()
	old := td.capabilities
	tier := determineTier(services, old.Hardware)
	degraded, reason := checkDegradation(services)
	td.capabilities = SystemCapabilities{
		Tier:              tier,
		Services:          services,
		Hardware:          old.Hardware,
		LastDetected:      time.Now(),
		Degraded:          degraded,
		DegradationReason: reason,
	}
	caps := td.capabilities
	onTierChange, onDegradation, onRecovery, onStatus := td.onTierChange, td.onDegradation, td.onRecovery, td.onStatus
	td.mutex.Unlock()

	logging.Sugar.Infow("Tier detection completed",
		"tier", tier,
		"degraded", degraded,
		"reason", reason,
		"services", summarize(services))

	if old.Tier != tier && onTierChange != nil {
		onTierChange(old.Tier, tier)
	}
	// Only report a degradation when it starts or its cause changes
	if degraded && (!old.Degraded || old.DegradationReason != reason) && onDegradation != nil {
		onDegradation(reason)
	}
	if old.Degraded && !degraded && onRecovery != nil {
		onRecovery()
	}
	if onStatus != nil {
		onStatus(caps)
	}
	return caps
}

func (td *TierDetector) detectServiceAvailability(ctx context.Context) map[string]ServiceStatus {
	services := make(map[string]ServiceStatus, len(td.probes))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, probe := range td.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, td.healthTimeout)
			defer cancel()

			start := time.Now()
			err := p.Check(probeCtx)
			status := ServiceStatus{
				Available: err == nil,
				Required:  p.Required,
				Latency:   time.Since(start),
			}
			if err != nil {
				status.Error = err.Error()
			}

			mu.Lock()
			services[p.Name] = status
			mu.Unlock()
		}(probe)
	}
	wg.Wait()
	return services
}

// determineTier calculates appropriate tier based on probe results
func determineTier(services map[string]ServiceStatus, hardware HardwareInfo) PerformanceTier {
	allUp := true
	var slowest time.Duration
	for _, s := range services {
		if !s.Available {
			if s.Required {
				return TierBasic
			}
			allUp = false
			continue
		}
		if s.Latency > slowest {
			slowest = s.Latency
		}
	}

	pro := SLARequirements[TierPro]
	if allUp && hardware.CPUCores >= pro.MinCPUCores && slowest <= pro.MaxLatency {
		return TierPro
	}
	return TierStandard
}

// checkDegradation names the first required collaborator that is down or
// too slow
func checkDegradation(services map[string]ServiceStatus) (bool, string) {
	names := sortedNames(services)

	for _, name := range names {
		if s := services[name]; s.Required && !s.Available {
			return true, strings.ToUpper(name) + " unavailable"
		}
	}

	limit := SLARequirements[TierStandard].MaxLatency
	for _, name := range names {
		if s := services[name]; s.Required && s.Latency > limit {
			return true, fmt.Sprintf("%s slow (%dms)", strings.ToUpper(name), s.Latency.Milliseconds())
		}
	}
	return false, ""
}

func sortedNames(services map[string]ServiceStatus) []string {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func summarize(services map[string]ServiceStatus) string {
	parts := make([]string, 0, len(services))
	for _, name := range sortedNames(services) {
		state := "up"
		if !services[name].Available {
			state = "down"
		}
		parts = append(parts, name+"="+state)
	}
	return strings.Join(parts, " ")
}

func detectHardware() HardwareInfo {
	return HardwareInfo{
		CPUCores:     runtime.NumCPU(),
		Architecture: runtime.GOARCH,
		OS:           runtime.GOOS,
	}
}

// GetCapabilities returns current system capabilities
func (td *TierDetector) GetCapabilities() SystemCapabilities {
	td.mutex.RLock()
	defer td.mutex.RUnlock()

	caps := td.capabilities
	caps.Services = make(map[string]ServiceStatus, len(td.capabilities.Services))
	for k, v := range td.capabilities.Services {
		caps.Services[k] = v
	}
	return caps
}

// GetTier returns current performance tier
func (td *TierDetector) GetTier() PerformanceTier {
	td.mutex.RLock()
	defer td.mutex.RUnlock()
	return td.capabilities.Tier
}

// SetTierChangeCallback sets callback for tier changes
func (td *TierDetector) SetTierChangeCallback(callback func(old, new PerformanceTier)) {
	td.mutex.Lock()
	td.onTierChange = callback
	td.mutex.Unlock()
}

// SetDegradationCallback sets callback for degradation events
func (td *TierDetector) SetDegradationCallback(callback func(reason string)) {
	td.mutex.Lock()
	td.onDegradation = callback
	td.mutex.Unlock()
}

// SetRecoveryCallback is called once a degradation clears
func (td *TierDetector) SetRecoveryCallback(callback func()) {
	td.mutex.Lock()
	td.onRecovery = callback
	td.mutex.Unlock()
}

// SetStatusCallback is called after every detection round
func (td *TierDetector) SetStatusCallback(callback func(SystemCapabilities)) {
	td.mutex.Lock()
	td.onStatus = callback
	td.mutex.Unlock()
}
