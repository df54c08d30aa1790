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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-pi/internal/config"
	"github.com/loqalabs/loqa-pi/internal/display"
	"github.com/loqalabs/loqa-pi/internal/events"
	"github.com/loqalabs/loqa-pi/internal/llm"
	"github.com/loqalabs/loqa-pi/internal/vision"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeDisplay struct {
	mu    sync.Mutex
	log   []string
	texts []display.StateTexts
}

func (d *fakeDisplay) add(s string) {
	d.mu.Lock()
	d.log = append(d.log, s)
	d.mu.Unlock()
}

func (d *fakeDisplay) Show(s display.Screen) { d.add("show:" + string(s)) }
func (d *fakeDisplay) Message(text string)   { d.add("msg:" + text) }
func (d *fakeDisplay) PowerOff()             { d.add("off") }

func (d *fakeDisplay) SetTexts(t display.StateTexts) {
	d.mu.Lock()
	d.texts = append(d.texts, t)
	d.mu.Unlock()
}

func (d *fakeDisplay) Log() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.log...)
}

func (d *fakeDisplay) Last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.log) == 0 {
		return ""
	}
	return d.log[len(d.log)-1]
}

type fakeMic struct {
	mu        sync.Mutex
	samples   []int16
	startErr  error
	recording bool
	cancelled int
	starts    int
}

func (m *fakeMic) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.startErr != nil {
		return m.startErr
	}
	m.recording = true
	return nil
}

func (m *fakeMic) StopAndCollect(context.Context) ([]int16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recording = false
	return append([]int16(nil), m.samples...), nil
}

func (m *fakeMic) Cancel() {
	m.mu.Lock()
	m.recording = false
	m.cancelled++
	m.mu.Unlock()
}

func (m *fakeMic) Recording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording
}

func (m *fakeMic) Cancelled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled
}

func (m *fakeMic) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

func (m *fakeMic) SampleRate() int { return 16000 }

type fakeVAD bool

func (v fakeVAD) HasSpeech([]int16) bool { return bool(v) }

type fakeTranscriber struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, wav []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(wav) < 44 {
		return "", errors.New("not a wav")
	}
	return f.text, f.err
}

type fakeLLM struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
	options []config.LLMConfig
}

func (f *fakeLLM) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func (f *fakeLLM) SetOptions(cfg config.LLMConfig) {
	f.mu.Lock()
	f.options = append(f.options, cfg)
	f.mu.Unlock()
}

func (f *fakeLLM) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

type fakeMemory struct {
	mu    sync.Mutex
	docs  []string
	added []string
}

func (f *fakeMemory) Retrieve(context.Context, string, int) ([]string, error) {
	return f.docs, nil
}

func (f *fakeMemory) Add(_ context.Context, q, a string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, q+"|"+a)
	return "id", nil
}

type fakeSpeaker struct {
	mu      sync.Mutex
	spoken  []string
	entered chan struct{}
	block   chan struct{}
	ctxErr  error
}

func (s *fakeSpeaker) Speak(ctx context.Context, text string) error {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			s.mu.Lock()
			s.ctxErr = ctx.Err()
			s.mu.Unlock()
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()
	return nil
}

func (s *fakeSpeaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

type fakeCamera struct{}

func (fakeCamera) Capture(context.Context) (string, []byte, error) {
	return "/captures/capture_20260101_120000.jpg", []byte{0xff, 0xd8}, nil
}

type fakeDetector struct {
	mu    sync.Mutex
	dets  []vision.Detection
	calls int
}

func (f *fakeDetector) Detect(context.Context, []byte) ([]vision.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.dets, nil
}

type fakeHome struct {
	reply string
}

func (f fakeHome) Handle(_ context.Context, text string) (string, bool, error) {
	if strings.Contains(text, "turn on") {
		return f.reply, true, nil
	}
	return "", false, nil
}

type fakeRecorder struct {
	mu    sync.Mutex
	saved []*events.Interaction
}

func (r *fakeRecorder) Record(_ context.Context, in *events.Interaction) error {
	r.mu.Lock()
	r.saved = append(r.saved, in)
	r.mu.Unlock()
	return nil
}

func (r *fakeRecorder) Saved() []*events.Interaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*events.Interaction(nil), r.saved...)
}

type fakePublisher struct {
	mu    sync.Mutex
	count int
}

func (p *fakePublisher) PublishInteraction(*events.Interaction) error {
	p.mu.Lock()
	p.count++
	p.mu.Unlock()
	return errors.New("nats down")
}

type harness struct {
	c        *Controller
	display  *fakeDisplay
	mic      *fakeMic
	stt      *fakeTranscriber
	llm      *fakeLLM
	memory   *fakeMemory
	speaker  *fakeSpeaker
	detector *fakeDetector
	recorder *fakeRecorder
	fs       afero.Fs
	stop     func()
}

func newHarness(t *testing.T, mutate func(*Deps, *config.Config)) *harness {
	t.Helper()

	h := &harness{
		display:  &fakeDisplay{},
		mic:      &fakeMic{samples: make([]int16, 1600)},
		stt:      &fakeTranscriber{text: "what is the weather"},
		llm:      &fakeLLM{reply: "It looks sunny."},
		memory:   &fakeMemory{docs: []string{"Q: hi\nA: hello"}},
		speaker:  &fakeSpeaker{},
		detector: &fakeDetector{},
		recorder: &fakeRecorder{},
		fs:       afero.NewMemMapFs(),
	}

	deps := Deps{
		Display:     h.display,
		Microphone:  h.mic,
		Transcriber: h.stt,
		LLM:         h.llm,
		Memory:      h.memory,
		Speaker:     h.speaker,
		Camera:      fakeCamera{},
		Detector:    h.detector,
		Recorder:    h.recorder,
		Publisher:   &fakePublisher{},
		Fs:          h.fs,
	}
	cfg := config.Default()
	cfg.Audio.CaptureDir = "/audio"
	if mutate != nil {
		mutate(&deps, cfg)
	}

	c, err := New(deps, cfg)
	require.NoError(t, err)
	h.c = c

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	var once sync.Once
	h.stop = func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("controller did not stop")
			}
		})
	}
	t.Cleanup(h.stop)
	return h
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func (h *harness) enter(t *testing.T, m events.Mode) {
	t.Helper()
	h.c.OnModeButton(m)
	waitFor(t, func() bool { return h.c.Mode() == m }, "mode switch")
}

func (h *harness) talk(t *testing.T) {
	t.Helper()
	before := len(h.recorder.Saved())
	h.c.OnActionPress()
	waitFor(t, h.mic.Recording, "recording started")
	h.c.OnActionRelease()
	waitFor(t, func() bool { return len(h.recorder.Saved()) > before }, "interaction recorded")
}

func TestModeSwitchingAndShutdown(t *testing.T) {
	h := newHarness(t, nil)

	waitFor(t, func() bool { return h.display.Last() == "show:boot" }, "boot screen")
	h.enter(t, events.ModeChat)
	waitFor(t, func() bool { return h.display.Last() == "show:chat_idle" }, "chat idle")
	h.enter(t, events.ModeObject)
	waitFor(t, func() bool { return h.display.Last() == "show:object_idle" }, "object idle")

	require.NoError(t, h.c.Submit(events.New(events.TypeShutdown, events.SourceHTTP)))
	waitFor(t, func() bool { return h.display.Last() == "off" }, "display powered off")
	h.stop()
}

func TestActionIgnoredInBootMode(t *testing.T) {
	c, err := New(Deps{Display: &fakeDisplay{}}, config.Default())
	require.NoError(t, err)

	c.OnActionPress()
	c.OnActionRelease()
	assert.Zero(t, c.Status().QueueDepth)
	assert.Equal(t, events.ModeBoot, c.Mode())
}

func TestSubmitQueueFull(t *testing.T) {
	cfg := config.Default()
	cfg.Controller.QueueSize = 2
	c, err := New(Deps{Display: &fakeDisplay{}}, cfg)
	require.NoError(t, err)

	require.NoError(t, c.Submit(events.New(events.TypeModeChat, events.SourceHTTP)))
	require.NoError(t, c.Submit(events.New(events.TypeModeObject, events.SourceHTTP)))
	err = c.Submit(events.New(events.TypeModeChat, events.SourceHTTP))
	assert.ErrorIs(t, err, ErrQueueFull)

	st := c.Status()
	assert.Equal(t, 2, st.QueueDepth)
	assert.Equal(t, 2, st.QueueCapacity)
	assert.Equal(t, uint64(1), st.Dropped)

	assert.Error(t, c.Submit(events.Event{Type: "reboot"}))
}

func TestNewRequiresDisplay(t *testing.T) {
	_, err := New(Deps{}, nil)
	assert.Error(t, err)
}

func TestChatPipeline(t *testing.T) {
	h := newHarness(t, nil)
	h.enter(t, events.ModeChat)
	h.talk(t)

	waitFor(t, func() bool { return h.display.Last() == "show:chat_idle" }, "back to chat idle")
	log := h.display.Log()
	assert.Contains(t, log, "show:chat_listening")
	assert.Contains(t, log, "show:processing")

	prompts := h.llm.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Retrieved memory snippets:\nQ: hi\nA: hello")
	assert.True(t, strings.HasSuffix(prompts[0], "User: what is the weather\nAssistant:"))

	assert.Equal(t, []string{"It looks sunny."}, h.speaker.Spoken())
	assert.Equal(t, []llm.Turn{{User: "what is the weather", Assistant: "It looks sunny."}}, h.c.History())
	assert.Equal(t, []string{"what is the weather|It looks sunny."}, h.memory.added)

	saved := h.recorder.Saved()
	require.Len(t, saved, 1)
	in := saved[0]
	assert.True(t, in.Success)
	assert.Equal(t, events.RouteLLM, in.Route)
	assert.Equal(t, "what is the weather", in.Transcript)
	assert.Equal(t, 1, in.ContextCount)
	assert.Empty(t, in.AudioPath, "recordings are not kept by default")
	assert.InDelta(t, 0.1, in.AudioDuration, 1e-9)

	files, _ := afero.ReadDir(h.fs, "/audio")
	assert.Empty(t, files)
	assert.False(t, h.c.Status().Busy)
}

func TestChatHistoryIsCapped(t *testing.T) {
	h := newHarness(t, func(_ *Deps, cfg *config.Config) {
		cfg.Controller.HistoryTurns = 2
	})
	h.enter(t, events.ModeChat)
	for i := 0; i < 3; i++ {
		h.talk(t)
	}

	assert.Len(t, h.c.History(), 2)
	prompts := h.llm.Prompts()
	require.Len(t, prompts, 3)
	assert.Contains(t, prompts[2], "Conversation so far:\nUser: what is the weather\nAssistant: It looks sunny.")
}

func TestChatKeepsRecordings(t *testing.T) {
	h := newHarness(t, func(_ *Deps, cfg *config.Config) {
		cfg.Audio.KeepRecordings = true
	})
	h.enter(t, events.ModeChat)
	h.talk(t)

	in := h.recorder.Saved()[0]
	require.NotEmpty(t, in.AudioPath)
	assert.Contains(t, in.AudioPath, "chat_audio_")
	exists, err := afero.Exists(h.fs, in.AudioPath)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestChatNoSpeech(t *testing.T) {
	h := newHarness(t, func(d *Deps, _ *config.Config) {
		d.VAD = fakeVAD(false)
	})
	h.enter(t, events.ModeChat)
	h.talk(t)

	in := h.recorder.Saved()[0]
	assert.True(t, in.Success)
	assert.Equal(t, events.RouteNoSpeech, in.Route)
	assert.Zero(t, h.stt.calls)
	assert.Empty(t, h.llm.Prompts())
	waitFor(t, func() bool { return h.display.Last() == "show:chat_idle" }, "back to chat idle")
}

func TestChatEmptyTranscript(t *testing.T) {
	h := newHarness(t, nil)
	h.stt.text = "  "
	h.enter(t, events.ModeChat)
	h.talk(t)

	assert.Empty(t, h.llm.Prompts())
	assert.Empty(t, h.speaker.Spoken())
	waitFor(t, func() bool { return h.display.Last() == "show:chat_idle" }, "back to chat idle")
}

func TestChatErrorShowsMessage(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.err = errors.New("ollama unreachable")
	h.enter(t, events.ModeChat)
	h.talk(t)

	waitFor(t, func() bool { return h.display.Last() == "msg:Chat error." }, "chat error line")
	in := h.recorder.Saved()[0]
	assert.False(t, in.Success)
	assert.Contains(t, in.ErrorMessage, "ollama unreachable")
	assert.Contains(t, h.c.Status().LastError, "ollama unreachable")
	assert.Empty(t, h.c.History())
}

func TestMicError(t *testing.T) {
	h := newHarness(t, nil)
	h.mic.startErr = errors.New("no input device")
	h.enter(t, events.ModeChat)

	h.c.OnActionPress()
	waitFor(t, func() bool { return h.display.Last() == "msg:Mic error." }, "mic error line")
	assert.False(t, h.mic.Recording())
}

func TestModeSwitchCancelsRecording(t *testing.T) {
	h := newHarness(t, nil)
	h.enter(t, events.ModeChat)

	h.c.OnActionPress()
	waitFor(t, h.mic.Recording, "recording started")
	h.enter(t, events.ModeObject)

	assert.Equal(t, 1, h.mic.Cancelled())
	assert.False(t, h.mic.Recording())
	assert.Empty(t, h.recorder.Saved())
}

func TestVoiceCommandSwitchesMode(t *testing.T) {
	h := newHarness(t, nil)
	h.stt.text = "Switch to object mode, please."
	h.enter(t, events.ModeChat)
	h.talk(t)

	waitFor(t, func() bool { return h.c.Mode() == events.ModeObject }, "voice mode switch")
	assert.Empty(t, h.llm.Prompts())
	assert.Equal(t, []string{"Switching to object mode."}, h.speaker.Spoken())
	assert.Equal(t, events.RouteVoiceCommand, h.recorder.Saved()[0].Route)
}

func TestVoiceCommandsDisabled(t *testing.T) {
	h := newHarness(t, func(_ *Deps, cfg *config.Config) {
		cfg.Controller.VoiceCommands = false
	})
	h.stt.text = "object mode"
	h.enter(t, events.ModeChat)
	h.talk(t)

	assert.Equal(t, events.ModeChat, h.c.Mode())
	assert.Len(t, h.llm.Prompts(), 1)
}

func TestHomeCommandReplacesReply(t *testing.T) {
	h := newHarness(t, func(d *Deps, _ *config.Config) {
		d.Home = fakeHome{reply: "Turning on the light in the kitchen."}
	})
	h.stt.text = "turn on the kitchen light"
	h.enter(t, events.ModeChat)
	h.talk(t)

	assert.Empty(t, h.llm.Prompts())
	assert.Equal(t, []string{"Turning on the light in the kitchen."}, h.speaker.Spoken())
	assert.Equal(t, events.RouteHome, h.recorder.Saved()[0].Route)
}

func TestObjectPipeline(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.reply = "A cup sits next to a person."
	h.detector.dets = []vision.Detection{
		{Label: "person", Confidence: 0.8},
		{Label: "cup", Confidence: 0.9},
		{Label: "cup", Confidence: 0.7},
		{Label: "chair", Confidence: 0.1},
	}
	h.enter(t, events.ModeObject)

	h.c.OnActionPress()
	waitFor(t, func() bool { return len(h.recorder.Saved()) == 1 }, "interaction recorded")

	prompts := h.llm.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Detected labels: cup, person")
	assert.Contains(t, prompts[0], "Conversation so far:\n\n\nUser: You are summarizing visual detections")

	in := h.recorder.Saved()[0]
	assert.Equal(t, events.ModeObject, in.Mode)
	assert.Equal(t, []string{"cup", "person"}, in.Labels)
	assert.Equal(t, events.RouteDetection, in.Route)
	assert.Equal(t, []string{"A cup sits next to a person."}, h.speaker.Spoken())
	waitFor(t, func() bool { return h.display.Last() == "show:object_idle" }, "back to object idle")
	assert.Empty(t, h.c.History(), "summaries are not chat turns")
}

func TestObjectNoDetections(t *testing.T) {
	h := newHarness(t, nil)
	h.enter(t, events.ModeObject)

	h.c.OnActionPress()
	waitFor(t, func() bool { return len(h.recorder.Saved()) == 1 }, "interaction recorded")

	assert.Empty(t, h.llm.Prompts())
	assert.Equal(t, []string{vision.NoObjectsSentence}, h.speaker.Spoken())
}

func TestObjectErrorShowsMessage(t *testing.T) {
	h := newHarness(t, func(d *Deps, _ *config.Config) {
		d.Camera = nil
	})
	h.enter(t, events.ModeObject)

	h.c.OnActionPress()
	waitFor(t, func() bool { return h.display.Last() == "msg:Object error." }, "object error line")
}

func TestBusyGuardDropsSecondTrigger(t *testing.T) {
	h := newHarness(t, nil)
	h.speaker.entered = make(chan struct{}, 4)
	h.speaker.block = make(chan struct{})
	h.enter(t, events.ModeObject)

	h.c.OnActionPress()
	<-h.speaker.entered
	assert.True(t, h.c.Status().Busy)

	h.c.OnActionPress()
	waitFor(t, func() bool { return h.c.Status().Processed == 3 }, "second trigger consumed")

	close(h.speaker.block)
	waitFor(t, func() bool { return len(h.recorder.Saved()) == 1 }, "interaction recorded")

	h.detector.mu.Lock()
	calls := h.detector.calls
	h.detector.mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestChatPressIgnoredWhileObjectPipelineRuns(t *testing.T) {
	h := newHarness(t, nil)
	h.speaker.entered = make(chan struct{}, 4)
	h.speaker.block = make(chan struct{})
	h.enter(t, events.ModeObject)

	h.c.OnActionPress()
	<-h.speaker.entered
	h.enter(t, events.ModeChat)
	waitFor(t, func() bool { return h.c.Status().Processed == 3 }, "mode switch consumed")
	before := h.display.Log()

	h.c.OnActionPress()
	waitFor(t, func() bool { return h.c.Status().Processed == 4 }, "chat press consumed")

	assert.Zero(t, h.mic.Starts(), "microphone must not start while busy")
	assert.False(t, h.mic.Recording())
	assert.Equal(t, before, h.display.Log(), "display untouched by the ignored press")
	assert.NotContains(t, h.display.Log(), "show:chat_listening")

	close(h.speaker.block)
	waitFor(t, func() bool { return len(h.recorder.Saved()) == 1 }, "interaction recorded")
}

func TestReportDegradation(t *testing.T) {
	h := newHarness(t, nil)
	h.enter(t, events.ModeChat)
	waitFor(t, func() bool { return h.display.Last() == "show:chat_idle" }, "chat idle")

	h.c.ReportDegradation("LLM unavailable")
	assert.Equal(t, "msg:Degraded: LLM unavailable", h.display.Last())

	h.c.ReportDegradation("")
	assert.Equal(t, "show:chat_idle", h.display.Last(), "recovery restores the idle screen")

	h.c.OnActionPress()
	waitFor(t, h.mic.Recording, "recording started")
	waitFor(t, func() bool { return h.display.Last() == "show:chat_listening" }, "listening")

	h.c.ReportDegradation("STT unavailable")
	h.c.ReportDegradation("")
	assert.Equal(t, "show:chat_listening", h.display.Last(), "listening screen kept while recording")
	h.enter(t, events.ModeObject)
}

func TestReportDegradationSkippedWhileBusy(t *testing.T) {
	h := newHarness(t, nil)
	h.speaker.entered = make(chan struct{}, 1)
	h.speaker.block = make(chan struct{})
	h.enter(t, events.ModeObject)

	h.c.OnActionPress()
	<-h.speaker.entered
	before := h.display.Log()

	h.c.ReportDegradation("TTS unavailable")
	assert.Equal(t, before, h.display.Log())

	close(h.speaker.block)
	waitFor(t, func() bool { return len(h.recorder.Saved()) == 1 }, "interaction recorded")
}

func TestShutdownWaitsForPipeline(t *testing.T) {
	h := newHarness(t, nil)
	h.speaker.entered = make(chan struct{}, 1)
	h.speaker.block = make(chan struct{})
	h.enter(t, events.ModeObject)

	h.c.OnActionPress()
	<-h.speaker.entered

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(h.speaker.block)
	}()
	h.stop()

	require.Len(t, h.recorder.Saved(), 1)
	assert.True(t, h.recorder.Saved()[0].Success)
}

func TestShutdownGraceCancelsPipeline(t *testing.T) {
	h := newHarness(t, func(_ *Deps, cfg *config.Config) {
		cfg.Controller.ShutdownGrace = 30 * time.Millisecond
	})
	h.speaker.entered = make(chan struct{}, 1)
	h.speaker.block = make(chan struct{})
	h.enter(t, events.ModeObject)

	h.c.OnActionPress()
	<-h.speaker.entered
	h.stop()

	h.speaker.mu.Lock()
	ctxErr := h.speaker.ctxErr
	h.speaker.mu.Unlock()
	assert.ErrorIs(t, ctxErr, context.Canceled)
	require.Len(t, h.recorder.Saved(), 1)
	assert.False(t, h.recorder.Saved()[0].Success)
}

func TestApplySettings(t *testing.T) {
	h := newHarness(t, nil)
	h.enter(t, events.ModeChat)
	h.talk(t)
	h.talk(t)
	require.Len(t, h.c.History(), 2)

	cfg := config.Default()
	cfg.Controller.HistoryTurns = 1
	cfg.LLM.SystemPrompt = "Be brief."
	cfg.LLM.Temperature = 0.9
	cfg.Display.ChatIdle = "Hold K3"
	h.c.ApplySettings(cfg.Reloadable())

	assert.Len(t, h.c.History(), 1)
	require.Len(t, h.llm.options, 1)
	assert.Equal(t, 0.9, h.llm.options[0].Temperature)
	require.Len(t, h.display.texts, 1)
	assert.Equal(t, "Hold K3", h.display.texts[0].ChatIdle)

	h.talk(t)
	prompts := h.llm.Prompts()
	assert.True(t, strings.HasPrefix(prompts[len(prompts)-1], "Be brief."))
}

func TestMatchVoiceCommand(t *testing.T) {
	tests := []struct {
		text   string
		want   events.Mode
		wantOK bool
	}{
		{"switch to object mode", events.ModeObject, true},
		{"Object mode!", events.ModeObject, true},
		{"start detection", events.ModeObject, true},
		{"go back to chat mode", events.ModeChat, true},
		{"tell me a joke", "", false},
		{"chatmode", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := matchVoiceCommand(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTrimHistory(t *testing.T) {
	turns := []llm.Turn{{User: "1"}, {User: "2"}, {User: "3"}}

	assert.Equal(t, []llm.Turn{{User: "2"}, {User: "3"}}, trimHistory(turns, 2))
	assert.Len(t, trimHistory(turns, 5), 3)
	assert.Nil(t, trimHistory(turns, 0))
}
