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

package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-pi/internal/config"
	"github.com/loqalabs/loqa-pi/internal/display"
	"github.com/loqalabs/loqa-pi/internal/events"
	"github.com/loqalabs/loqa-pi/internal/llm"
	"github.com/loqalabs/loqa-pi/internal/logging"
	"github.com/loqalabs/loqa-pi/internal/vision"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by Submit when the event queue has no room
	ErrQueueFull = errors.New("event queue full")
	// ErrBusy means a pipeline is already running
	ErrBusy = errors.New("pipeline already running")
	// ErrNoSpeech means the recorded clip held no voice
	ErrNoSpeech = errors.New("no speech detected")
)

// Display is the screen the controller drives
type Display interface {
	Show(s display.Screen)
	Message(text string)
	PowerOff()
	SetTexts(t display.StateTexts)
}

// Microphone captures push-to-talk clips
type Microphone interface {
	Start() error
	StopAndCollect(ctx context.Context) ([]int16, error)
	Cancel()
	Recording() bool
	SampleRate() int
}

// SpeechDetector decides whether a clip is worth transcribing
type SpeechDetector interface {
	HasSpeech(samples []int16) bool
}

// Transcriber turns a WAV clip into text
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Generator completes a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Memory retrieves and stores chat exchanges
type Memory interface {
	Retrieve(ctx context.Context, query string, k int) ([]string, error)
	Add(ctx context.Context, question, answer string) (string, error)
}

// Speaker voices a reply
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Camera takes a still
type Camera interface {
	Capture(ctx context.Context) (path string, jpeg []byte, err error)
}

// Detector finds objects in a still
type Detector interface {
	Detect(ctx context.Context, jpeg []byte) ([]vision.Detection, error)
}

// HomeHandler executes home automation phrases
type HomeHandler interface {
	Handle(ctx context.Context, text string) (reply string, handled bool, err error)
}

// Recorder persists finished interactions
type Recorder interface {
	Record(ctx context.Context, in *events.Interaction) error
}

// Publisher announces finished interactions
type Publisher interface {
	PublishInteraction(in *events.Interaction) error
}

// optionSetter is implemented by generators whose sampling options can be
// swapped at runtime
type optionSetter interface {
	SetOptions(cfg config.LLMConfig)
}

// Deps are the collaborators of the controller. Display is required; a nil
// collaborator makes the stage that needs it fail with a one-line error.
type Deps struct {
	Display     Display
	Microphone  Microphone
	VAD         SpeechDetector
	Transcriber Transcriber
	LLM         Generator
	Memory      Memory
	Speaker     Speaker
	Camera      Camera
	Detector    Detector
	Home        HomeHandler
	Recorder    Recorder
	Publisher   Publisher
	Fs          afero.Fs
}

// settings are the values ApplySettings may replace
type settings struct {
	systemPrompt string
	historyTurns int
}

// Controller is the mode state machine. One goroutine, Run, consumes the
// queue and is the only writer of the mode.
type Controller struct {
	deps  Deps
	queue chan events.Event

	voiceCommands  bool
	memoryEnabled  bool
	topK           int
	minConfidence  float64
	captureDir     string
	keepRecordings bool
	shutdownGrace  time.Duration

	mode atomic.Value // events.Mode
	busy atomic.Bool

	processed atomic.Uint64
	dropped   atomic.Uint64

	mu       sync.Mutex
	settings settings
	history  []llm.Turn
	lastErr  string

	pipelines sync.WaitGroup
}

// New builds a controller from its collaborators and configuration
func New(deps Deps, cfg *config.Config) (*Controller, error) {
	if deps.Display == nil {
		return nil, fmt.Errorf("controller needs a display")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}

	queueSize := cfg.Controller.QueueSize
	if queueSize <= 0 {
		queueSize = 32
	}

	c := &Controller{
		deps:           deps,
		queue:          make(chan events.Event, queueSize),
		voiceCommands:  cfg.Controller.VoiceCommands,
		memoryEnabled:  cfg.Memory.Enabled,
		topK:           cfg.Memory.TopK,
		minConfidence:  cfg.Vision.MinConfidence,
		captureDir:     cfg.Audio.CaptureDir,
		keepRecordings: cfg.Audio.KeepRecordings,
		shutdownGrace:  cfg.Controller.ShutdownGrace,
		settings: settings{
			systemPrompt: cfg.LLM.SystemPrompt,
			historyTurns: cfg.Controller.HistoryTurns,
		},
	}
	c.mode.Store(events.ModeBoot)
	return c, nil
}

// Mode returns the current mode snapshot
func (c *Controller) Mode() events.Mode {
	return c.mode.Load().(events.Mode)
}

// Submit enqueues an event without blocking
func (c *Controller) Submit(ev events.Event) error {
	if !ev.Type.Valid() {
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	select {
	case c.queue <- ev:
		return nil
	default:
		c.dropped.Add(1)
		logging.LogWarn("Event queue full, dropping event",
			zap.String("type", string(ev.Type)),
			zap.String("source", ev.Source),
		)
		return ErrQueueFull
	}
}

// OnModeButton translates a mode key press
func (c *Controller) OnModeButton(m events.Mode) {
	switch m {
	case events.ModeChat:
		_ = c.Submit(events.New(events.TypeModeChat, events.SourceGPIO))
	case events.ModeObject:
		_ = c.Submit(events.New(events.TypeModeObject, events.SourceGPIO))
	}
}

// OnActionPress translates an action key press for the current mode
func (c *Controller) OnActionPress() {
	switch c.Mode() {
	case events.ModeChat:
		_ = c.Submit(events.New(events.TypeChatPress, events.SourceGPIO))
	case events.ModeObject:
		_ = c.Submit(events.New(events.TypeObjectTrigger, events.SourceGPIO))
	}
}

// OnActionRelease translates an action key release; only chat mode cares
func (c *Controller) OnActionRelease() {
	if c.Mode() == events.ModeChat {
		_ = c.Submit(events.New(events.TypeChatRelease, events.SourceGPIO))
	}
}

// Run shows the boot screen and consumes events until ctx is cancelled or a
// shutdown event arrives. In-flight pipelines get the shutdown grace to
// finish before their context is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	pipeCtx, cancelPipes := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelPipes()

	c.deps.Display.Show(display.ScreenBoot)
	logging.Sugar.Infof("🚦 Controller started (queue capacity %d)", cap(c.queue))

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev := <-c.queue:
			if ev.Type == events.TypeShutdown {
				c.processed.Add(1)
				logging.Sugar.Infof("🛑 Shutdown requested by %s", ev.Source)
				break loop
			}
			c.handle(pipeCtx, ev)
			c.processed.Add(1)
		}
	}

	c.drain(cancelPipes)
	if c.deps.Microphone != nil && c.deps.Microphone.Recording() {
		c.deps.Microphone.Cancel()
	}
	c.deps.Display.PowerOff()
	logging.Sugar.Info("✅ Controller stopped")
	return nil
}

// drain waits for running pipelines, cancelling them once the grace expires
func (c *Controller) drain(cancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		c.pipelines.Wait()
		close(done)
	}()

	grace := c.shutdownGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		return
	case <-timer.C:
		logging.LogWarn("Pipeline still running after shutdown grace, cancelling",
			zap.Duration("grace", grace),
		)
		cancel()
	}
	<-done
}

// ApplySettings swaps the hot-reloadable configuration
func (c *Controller) ApplySettings(r config.Reloadable) {
	c.mu.Lock()
	c.settings.systemPrompt = r.LLM.SystemPrompt
	c.settings.historyTurns = r.HistoryTurns
	c.history = trimHistory(c.history, r.HistoryTurns)
	c.mu.Unlock()

	if setter, ok := c.deps.LLM.(optionSetter); ok {
		setter.SetOptions(r.LLM)
	}
	c.deps.Display.SetTexts(display.TextsFromConfig(r.Display))

	logging.Sugar.Infof("🔧 Applied reloaded settings (history %d turns)", r.HistoryTurns)
}

// ReportDegradation shows a degraded-collaborator line, or puts the idle
// screen back once reason is empty. A running pipeline or an open recording
// owns the screen, so nothing is drawn then.
func (c *Controller) ReportDegradation(reason string) {
	if c.busy.Load() || (c.deps.Microphone != nil && c.deps.Microphone.Recording()) {
		logging.Logger.Debug("Degradation change not shown while busy", zap.String("reason", reason))
		return
	}
	if reason == "" {
		c.showIdle()
		return
	}
	c.deps.Display.Message("Degraded: " + reason)
}

// Status is a point-in-time view of the controller
type Status struct {
	Mode          events.Mode `json:"mode"`
	Busy          bool        `json:"busy"`
	QueueDepth    int         `json:"queue_depth"`
	QueueCapacity int         `json:"queue_capacity"`
	Processed     uint64      `json:"processed"`
	Dropped       uint64      `json:"dropped"`
	LastError     string      `json:"last_error,omitempty"`
	HistoryLength int         `json:"history_length"`
}

// Status returns a snapshot of the controller state
func (c *Controller) Status() Status {
	c.mu.Lock()
	lastErr := c.lastErr
	historyLen := len(c.history)
	c.mu.Unlock()

	return Status{
		Mode:          c.Mode(),
		Busy:          c.busy.Load(),
		QueueDepth:    len(c.queue),
		QueueCapacity: cap(c.queue),
		Processed:     c.processed.Load(),
		Dropped:       c.dropped.Load(),
		LastError:     lastErr,
		HistoryLength: historyLen,
	}
}

// History returns a copy of the conversation so far
func (c *Controller) History() []llm.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Turn(nil), c.history...)
}

func (c *Controller) setLastError(err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
}
