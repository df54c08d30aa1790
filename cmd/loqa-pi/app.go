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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/loqalabs/loqa-pi/internal/audio"
	"github.com/loqalabs/loqa-pi/internal/buttons"
	"github.com/loqalabs/loqa-pi/internal/config"
	"github.com/loqalabs/loqa-pi/internal/controller"
	"github.com/loqalabs/loqa-pi/internal/display"
	healthgrpc "github.com/loqalabs/loqa-pi/internal/grpc"
	"github.com/loqalabs/loqa-pi/internal/home"
	"github.com/loqalabs/loqa-pi/internal/llm"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"github.com/loqalabs/loqa-pi/internal/memory"
	"github.com/loqalabs/loqa-pi/internal/messaging"
	"github.com/loqalabs/loqa-pi/internal/server"
	"github.com/loqalabs/loqa-pi/internal/storage"
	"github.com/loqalabs/loqa-pi/internal/tiers"
	"github.com/loqalabs/loqa-pi/internal/vision"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const pruneInterval = time.Hour

// app owns every long-lived component of the assistant
type app struct {
	cfg        *config.Config
	configPath string
	stdin      io.Reader

	db         *storage.Database
	store      *storage.InteractionsStore
	nats       *messaging.NATSService
	display    *display.Manager
	ctrl       *controller.Controller
	dispatcher *buttons.Dispatcher
	http       *server.Server
	health     *healthgrpc.HealthServer
	tiers      *tiers.TierDetector
	watcher    *config.Watcher
	tts        llm.TextToSpeech

	closers []io.Closer
}

func newApp(cfg *config.Config, configPath string) (*app, error) {
	a := &app{cfg: cfg, configPath: configPath, stdin: os.Stdin}
	fs := afero.NewOsFs()

	db, err := storage.NewDatabase(storage.DatabaseConfig{Path: cfg.Storage.DBPath})
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db)
	a.store = storage.NewInteractionsStore(db)

	ollama := llm.NewOllamaClient(cfg.LLM)
	mem := memory.NewStore(db.DB(), ollama)

	var bus *messaging.NATSService
	if cfg.NATS.Enabled {
		bus = messaging.NewNATSService(cfg.NATS)
		if err := bus.Connect(); err != nil {
			a.Close()
			return nil, err
		}
		a.nats = bus
	}

	a.display = display.NewManager(cfg.Display)
	if bus != nil {
		a.display.AddSink(display.NewNATSSink(bus, cfg.Display.NATSSubject))
	}

	deps := controller.Deps{
		Display:  a.display,
		LLM:      ollama,
		Memory:   mem,
		Recorder: a.store,
		Fs:       fs,
	}
	if bus != nil {
		deps.Publisher = bus
	}

	a.wireAudio(fs, &deps, bus)
	a.wireVision(fs, &deps)
	if err := a.wireHome(&deps, bus); err != nil {
		a.Close()
		return nil, err
	}

	ctrl, err := controller.New(deps, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ctrl = ctrl
	a.dispatcher = buttons.NewDispatcher(ctrl, buttons.NewDebouncer(cfg.Buttons.Debounce, nil))

	a.health = healthgrpc.NewHealthServer(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	a.tiers = tiers.NewTierDetector(cfg.Tiers, a.probes(ollama, &deps, bus)...)
	a.tiers.SetStatusCallback(a.health.Update)
	a.tiers.SetDegradationCallback(ctrl.ReportDegradation)
	a.tiers.SetRecoveryCallback(func() { ctrl.ReportDegradation("") })
	a.tiers.SetTierChangeCallback(func(from, to tiers.PerformanceTier) {
		logging.Sugar.Infof("📶 Performance tier %s -> %s", from, to)
	})

	serverDeps := server.Deps{
		Controller:   ctrl,
		Buttons:      a.dispatcher,
		Interactions: a.store,
		Memory:       mem,
		Display:      a.display,
		Tiers:        a.tiers,
	}
	if configPath != "" {
		a.watcher = config.NewWatcher(configPath, cfg, func(cfg *config.Config, err error) {
			if err != nil {
				return
			}
			ctrl.ApplySettings(cfg.Reloadable())
		})
		serverDeps.Config = a.watcher
	}
	a.http = server.New(cfg.Server, serverDeps)
	a.display.AddSink(a.http.Hub())

	return a, nil
}

// wireAudio builds the microphone, VAD, speech-to-text and speaker. Missing
// hardware leaves the matching dependency nil so chat mode reports an error.
func (a *app) wireAudio(fs afero.Fs, deps *controller.Deps, bus *messaging.NATSService) {
	cfg := a.cfg

	src, err := audio.NewSource(fs, cfg.Audio.Input, cfg.Audio.SampleRate, cfg.Audio.FramesPerBuffer)
	if err != nil {
		logging.LogWarn("Microphone unavailable, chat capture disabled", zap.Error(err))
	} else {
		deps.Microphone = audio.NewRecorder(src, audio.RecorderConfig{
			SampleRate:  cfg.Audio.SampleRate,
			MaxDuration: cfg.Audio.MaxRecord,
		})
	}

	if cfg.Audio.VADEnabled {
		deps.VAD = audio.NewVAD(cfg.Audio.VADThreshold)
	}

	stt, err := llm.NewTranscriber(cfg.STT)
	if err != nil {
		logging.LogWarn("Speech-to-text unavailable", zap.String("backend", cfg.STT.Backend), zap.Error(err))
	} else {
		deps.Transcriber = stt
		a.closers = append(a.closers, stt)
	}

	var player audio.Player
	if cfg.Audio.Output == "nats" && bus != nil {
		player = messaging.NewAudioStreamPublisher(bus, "")
	} else {
		player, err = audio.NewPlayer(fs, cfg.Audio.Output, cfg.Audio.CaptureDir)
		if err != nil {
			logging.LogWarn("Audio output unavailable, replies will be silent", zap.Error(err))
			player = audio.NopPlayer{}
		}
	}

	tts, err := llm.NewTextToSpeech(cfg.TTS)
	if err != nil {
		logging.LogWarn("Text-to-speech unavailable", zap.String("backend", cfg.TTS.Backend), zap.Error(err))
		tts = nil
	}
	a.tts = tts
	speaker := llm.NewSpeaker(tts, player)
	deps.Speaker = speaker
	a.closers = append(a.closers, speaker)
}

func (a *app) wireVision(fs afero.Fs, deps *controller.Deps) {
	cam, err := vision.NewCamera(a.cfg.Vision, fs)
	if err != nil {
		logging.LogWarn("Camera unavailable, object mode disabled", zap.Error(err))
	} else {
		deps.Camera = cam
		a.closers = append(a.closers, cam)
	}

	det, err := vision.NewDetector(a.cfg.Vision)
	if err != nil {
		logging.LogWarn("Object detector unavailable, object mode disabled", zap.Error(err))
	} else {
		deps.Detector = det
		a.closers = append(a.closers, det)
	}
}

func (a *app) wireHome(deps *controller.Deps, bus *messaging.NATSService) error {
	if !a.cfg.Home.Enabled {
		return nil
	}

	var pub home.Publisher
	if bus != nil {
		pub = bus
	}
	backend, err := home.NewBackend(a.cfg.Home, pub)
	if err != nil {
		return err
	}
	deps.Home = home.NewHandler(backend)
	return nil
}

// probes lists the collaborators the tiers detector watches
func (a *app) probes(ollama *llm.OllamaClient, deps *controller.Deps, bus *messaging.NATSService) []tiers.Probe {
	probes := []tiers.Probe{{Name: "llm", Required: true, Check: ollama.TestConnection}}

	if client, ok := deps.Transcriber.(*llm.STTClient); ok {
		probes = append(probes, tiers.Probe{Name: "stt", Required: true, Check: client.HealthCheck})
	}
	if kokoro, ok := a.tts.(*llm.KokoroClient); ok {
		probes = append(probes, tiers.Probe{Name: "tts", Check: kokoro.HealthCheck})
	}
	if det, ok := deps.Detector.(*vision.HTTPDetector); ok {
		probes = append(probes, tiers.Probe{Name: "vision", Check: det.HealthCheck})
	}
	if a.cfg.Home.Enabled && a.cfg.Home.Backend == "homeassistant" {
		probes = append(probes, tiers.Probe{Name: "home", Check: tiers.HTTPProbe(a.cfg.Home.HAURL)})
	}
	if bus != nil {
		probes = append(probes, tiers.Probe{Name: "nats", Check: func(context.Context) error {
			if !bus.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}})
	}
	return probes
}

// Run supervises every component until ctx is cancelled or the controller stops
func (a *app) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return a.ctrl.Run(ctx)
	})
	g.Go(func() error { return a.http.Run(ctx) })
	g.Go(func() error { return a.health.Run(ctx) })
	g.Go(func() error { return a.tiers.Run(ctx) })
	g.Go(func() error { return a.prune(ctx) })

	if a.cfg.Buttons.Keyboard {
		kb := buttons.NewKeyboardSource(a.stdin, a.dispatcher)
		g.Go(func() error { return kb.Run(ctx) })
	}

	if a.nats != nil {
		sub, err := a.nats.SubscribeRaw(a.cfg.Buttons.NATSSubject, func(data []byte) {
			if err := a.dispatcher.HandleJSON(data, "nats"); err != nil {
				logging.LogWarn("Ignoring malformed button message", zap.Error(err))
			}
		})
		if err != nil {
			logging.LogWarn("Button subscription failed", zap.String("subject", a.cfg.Buttons.NATSSubject), zap.Error(err))
		} else {
			g.Go(func() error {
				<-ctx.Done()
				return sub.Unsubscribe()
			})
		}
	}

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(ctx) })
	}

	logging.Sugar.Infow("🚀 loqa-pi started",
		"http_port", a.cfg.Server.Port,
		"grpc_port", a.cfg.Server.GRPCPort,
		"db_path", a.cfg.Storage.DBPath,
		"nats", a.nats != nil,
	)

	return g.Wait()
}

// prune drops interactions older than the retention window
func (a *app) prune(ctx context.Context) error {
	if a.cfg.Storage.Retention <= 0 {
		return nil
	}

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		if _, err := a.store.Prune(ctx, time.Now().Add(-a.cfg.Storage.Retention)); err != nil && ctx.Err() == nil {
			logging.LogError(err, "Failed to prune interactions")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Close releases components in reverse order of creation
func (a *app) Close() {
	if a.nats != nil {
		a.nats.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			logging.LogWarn("Close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
