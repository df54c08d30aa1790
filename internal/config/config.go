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

package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ConfigFileEnv names the optional YAML overlay file.
const ConfigFileEnv = "LOQA_PI_CONFIG"

// Config holds all configuration for loqa-pi
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Controller ControllerConfig `yaml:"controller"`
	Buttons    ButtonsConfig    `yaml:"buttons"`
	Display    DisplayConfig    `yaml:"display"`
	Audio      AudioConfig      `yaml:"audio"`
	STT        STTConfig        `yaml:"stt"`
	TTS        TTSConfig        `yaml:"tts"`
	LLM        LLMConfig        `yaml:"llm"`
	Memory     MemoryConfig     `yaml:"memory"`
	Vision     VisionConfig     `yaml:"vision"`
	Home       HomeConfig       `yaml:"home"`
	Storage    StorageConfig    `yaml:"storage"`
	Tiers      TiersConfig      `yaml:"tiers"`
	Logging    LoggingConfig    `yaml:"logging"`
	NATS       NATSConfig       `yaml:"nats"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	GRPCPort     int           `yaml:"grpc_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ControllerConfig holds event loop settings
type ControllerConfig struct {
	QueueSize     int           `yaml:"queue_size"`
	HistoryTurns  int           `yaml:"history_turns"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
	VoiceCommands bool          `yaml:"voice_commands"`
}

// ButtonsConfig holds the physical button layout and input sources
type ButtonsConfig struct {
	ChatPin     int           `yaml:"chat_pin"`
	ObjectPin   int           `yaml:"object_pin"`
	ActionPin   int           `yaml:"action_pin"`
	Debounce    time.Duration `yaml:"debounce"`
	Keyboard    bool          `yaml:"keyboard"`
	NATSSubject string        `yaml:"nats_subject"`
}

// DisplayConfig holds OLED geometry and state texts
type DisplayConfig struct {
	WrapWidth     int    `yaml:"wrap_width"`
	MaxLines      int    `yaml:"max_lines"`
	NATSSubject   string `yaml:"nats_subject"`
	Boot          string `yaml:"boot"`
	ChatIdle      string `yaml:"chat_idle"`
	ChatListening string `yaml:"chat_listening"`
	ObjectIdle    string `yaml:"object_idle"`
	Processing    string `yaml:"processing"`
}

// AudioConfig holds microphone capture settings
type AudioConfig struct {
	SampleRate      int           `yaml:"sample_rate"`
	Channels        int           `yaml:"channels"`
	FramesPerBuffer int           `yaml:"frames_per_buffer"`
	MaxRecord       time.Duration `yaml:"max_record"`
	CaptureDir      string        `yaml:"capture_dir"`
	VADEnabled      bool          `yaml:"vad_enabled"`
	VADThreshold    float64       `yaml:"vad_threshold"`
	KeepRecordings  bool          `yaml:"keep_recordings"`
	Input           string        `yaml:"input"`  // "portaudio", "silent" or "file:<path>"
	Output          string        `yaml:"output"` // "portaudio", "file", "nats" or "none"
}

// STTConfig holds Speech-to-Text service configuration
type STTConfig struct {
	Backend     string        `yaml:"backend"` // "rest" or "whisper"
	URL         string        `yaml:"url"`     // REST API URL for OpenAI-compatible STT service
	ModelPath   string        `yaml:"model_path"`
	Language    string        `yaml:"language"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// TTSConfig holds Text-to-Speech service configuration
type TTSConfig struct {
	Backend         string        `yaml:"backend"` // "piper", "kokoro" or "none"
	URL             string        `yaml:"url"`     // REST API URL for Kokoro-82M TTS service
	Voice           string        `yaml:"voice"`
	Speed           float32       `yaml:"speed"`
	ResponseFormat  string        `yaml:"response_format"`
	Normalize       bool          `yaml:"normalize"`
	MaxConcurrent   int           `yaml:"max_concurrent"`
	Timeout         time.Duration `yaml:"timeout"`
	PiperBinary     string        `yaml:"piper_binary"`
	PiperModel      string        `yaml:"piper_model"`
	PiperSampleRate int           `yaml:"piper_sample_rate"`
}

// DefaultSystemPrompt opens every chat prompt
const DefaultSystemPrompt = "You are an on-device multimodal assistant running entirely on a Raspberry Pi. " +
	"Use the retrieved chat memory when helpful, stay concise, and mention detection results when provided."

// LLMConfig holds Ollama generation settings
type LLMConfig struct {
	URL          string        `yaml:"url"`
	Model        string        `yaml:"model"`
	EmbedModel   string        `yaml:"embed_model"`
	SystemPrompt string        `yaml:"system_prompt"`
	Temperature  float64       `yaml:"temperature"`
	TopP         float64       `yaml:"top_p"`
	MaxTokens    int           `yaml:"max_tokens"`
	Stop         []string      `yaml:"stop"`
	Timeout      time.Duration `yaml:"timeout"`
}

// MemoryConfig holds retrieval settings
type MemoryConfig struct {
	Enabled bool `yaml:"enabled"`
	TopK    int  `yaml:"top_k"`
}

// VisionConfig holds camera and detector settings
type VisionConfig struct {
	Camera         string        `yaml:"camera"` // "command" or "opencv"
	CameraCommand  string        `yaml:"camera_command"`
	DeviceIndex    int           `yaml:"device_index"`
	Width          int           `yaml:"width"`
	Height         int           `yaml:"height"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	SaveDir        string        `yaml:"save_dir"`
	Detector       string        `yaml:"detector"` // "http" or "opencv"
	DetectorURL    string        `yaml:"detector_url"`
	ModelPath      string        `yaml:"model_path"`
	MinConfidence  float64       `yaml:"min_confidence"`
}

// HomeConfig holds home automation settings
type HomeConfig struct {
	Enabled bool          `yaml:"enabled"`
	Backend string        `yaml:"backend"` // "nats" or "homeassistant"
	HAURL   string        `yaml:"ha_url"`
	HAToken string        `yaml:"ha_token"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig holds the SQLite location and retention
type StorageConfig struct {
	DBPath    string        `yaml:"db_path"`
	Retention time.Duration `yaml:"retention"`
}

// TiersConfig holds collaborator probe settings
type TiersConfig struct {
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// NATSConfig holds NATS messaging configuration
type NATSConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	MaxReconnect  int           `yaml:"max_reconnect"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// Default returns the built-in configuration before any overlay or environment
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			GRPCPort:     50051,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Controller: ControllerConfig{
			QueueSize:     32,
			HistoryTurns:  6,
			ShutdownGrace: 5 * time.Second,
			VoiceCommands: true,
		},
		Buttons: ButtonsConfig{
			ChatPin:     17,
			ObjectPin:   27,
			ActionPin:   22,
			Debounce:    200 * time.Millisecond,
			NATSSubject: "loqa.pi.buttons",
		},
		Display: DisplayConfig{
			WrapWidth:     18,
			MaxLines:      8,
			NATSSubject:   "loqa.pi.display",
			Boot:          "Select Mode:\nK1 Chat Mode\nK2 Object Mode",
			ChatIdle:      "Chat Mode - Hold K3 to Speak",
			ChatListening: "Listening...\nRelease K3",
			ObjectIdle:    "Object Mode - Press K3 to Capture",
			Processing:    "Processing...",
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			Channels:        1,
			FramesPerBuffer: 1024,
			MaxRecord:       30 * time.Second,
			CaptureDir:      "./data/audio",
			VADEnabled:      true,
			VADThreshold:    1.5,
			Input:           "portaudio",
			Output:          "portaudio",
		},
		STT: STTConfig{
			Backend:   "rest",
			URL:       "http://localhost:8000",
			ModelPath: "./models/ggml-base.en.bin",
			Language:  "en",
			MaxTokens: 224,
			Timeout:   30 * time.Second,
		},
		TTS: TTSConfig{
			Backend:         "piper",
			URL:             "http://localhost:8880/v1",
			Voice:           "af_bella",
			Speed:           1.0,
			ResponseFormat:  "wav",
			Normalize:       true,
			MaxConcurrent:   2,
			Timeout:         20 * time.Second,
			PiperBinary:     "piper",
			PiperModel:      "./voices/en_US-amy-medium.onnx",
			PiperSampleRate: 22050,
		},
		LLM: LLMConfig{
			URL:          "http://localhost:11434",
			Model:        "llama3.2:1b",
			EmbedModel:   "nomic-embed-text",
			SystemPrompt: DefaultSystemPrompt,
			Temperature:  0.3,
			TopP:         0.9,
			MaxTokens:    512,
			Stop:         []string{"User:", "\nUser:"},
			Timeout:      120 * time.Second,
		},
		Memory: MemoryConfig{
			Enabled: true,
			TopK:    3,
		},
		Vision: VisionConfig{
			Camera:         "command",
			CameraCommand:  "rpicam-still",
			Width:          1280,
			Height:         720,
			CaptureTimeout: 10 * time.Second,
			SaveDir:        "./data/captures",
			Detector:       "http",
			DetectorURL:    "http://localhost:8090",
			ModelPath:      "./models/yolov8n.onnx",
			MinConfidence:  0.25,
		},
		Home: HomeConfig{
			Backend: "nats",
			HAURL:   "http://homeassistant.local:8123",
			Timeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			DBPath:    "./data/loqa-pi.db",
			Retention: 30 * 24 * time.Hour,
		},
		Tiers: TiersConfig{
			ProbeInterval: 30 * time.Second,
			ProbeTimeout:  3 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		NATS: NATSConfig{
			Enabled:       true,
			URL:           "nats://localhost:4222",
			MaxReconnect:  10,
			ReconnectWait: 2 * time.Second,
		},
	}
}

// Load loads configuration from defaults, the optional YAML overlay named by
// LOQA_PI_CONFIG, and environment variables, in that order
func Load() (*Config, error) {
	return LoadWithFile(os.Getenv(ConfigFileEnv))
}

// LoadWithFile is Load with an explicit overlay path. An empty path skips the overlay.
func LoadWithFile(path string) (*Config, error) {
	config := Default()

	if path != "" {
		if err := applyFile(config, path); err != nil {
			return nil, err
		}
	}

	config.applyEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnv overrides fields from the environment, keeping current values as fallbacks
func (c *Config) applyEnv() {
	c.Server.Host = getEnvString("LOQA_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("LOQA_PORT", c.Server.Port)
	c.Server.GRPCPort = getEnvInt("LOQA_GRPC_PORT", c.Server.GRPCPort)
	c.Server.ReadTimeout = getEnvDuration("LOQA_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("LOQA_WRITE_TIMEOUT", c.Server.WriteTimeout)

	c.Controller.QueueSize = getEnvInt("CONTROLLER_QUEUE_SIZE", c.Controller.QueueSize)
	c.Controller.HistoryTurns = getEnvInt("CONTROLLER_HISTORY_TURNS", c.Controller.HistoryTurns)
	c.Controller.ShutdownGrace = getEnvDuration("CONTROLLER_SHUTDOWN_GRACE", c.Controller.ShutdownGrace)
	c.Controller.VoiceCommands = getEnvBool("CONTROLLER_VOICE_COMMANDS", c.Controller.VoiceCommands)

	c.Buttons.ChatPin = getEnvInt("BUTTON_CHAT_PIN", c.Buttons.ChatPin)
	c.Buttons.ObjectPin = getEnvInt("BUTTON_OBJECT_PIN", c.Buttons.ObjectPin)
	c.Buttons.ActionPin = getEnvInt("BUTTON_ACTION_PIN", c.Buttons.ActionPin)
	c.Buttons.Debounce = getEnvDuration("BUTTON_DEBOUNCE", c.Buttons.Debounce)
	c.Buttons.Keyboard = getEnvBool("BUTTON_KEYBOARD", c.Buttons.Keyboard)
	c.Buttons.NATSSubject = getEnvString("BUTTON_NATS_SUBJECT", c.Buttons.NATSSubject)

	c.Display.WrapWidth = getEnvInt("DISPLAY_WRAP_WIDTH", c.Display.WrapWidth)
	c.Display.MaxLines = getEnvInt("DISPLAY_MAX_LINES", c.Display.MaxLines)
	c.Display.NATSSubject = getEnvString("DISPLAY_NATS_SUBJECT", c.Display.NATSSubject)

	c.Audio.SampleRate = getEnvInt("AUDIO_SAMPLE_RATE", c.Audio.SampleRate)
	c.Audio.FramesPerBuffer = getEnvInt("AUDIO_FRAMES_PER_BUFFER", c.Audio.FramesPerBuffer)
	c.Audio.MaxRecord = getEnvDuration("AUDIO_MAX_RECORD", c.Audio.MaxRecord)
	c.Audio.CaptureDir = getEnvString("AUDIO_CAPTURE_DIR", c.Audio.CaptureDir)
	c.Audio.VADEnabled = getEnvBool("AUDIO_VAD_ENABLED", c.Audio.VADEnabled)
	c.Audio.VADThreshold = getEnvFloat64("AUDIO_VAD_THRESHOLD", c.Audio.VADThreshold)
	c.Audio.KeepRecordings = getEnvBool("AUDIO_KEEP_RECORDINGS", c.Audio.KeepRecordings)
	c.Audio.Input = getEnvString("AUDIO_INPUT", c.Audio.Input)
	c.Audio.Output = getEnvString("AUDIO_OUTPUT", c.Audio.Output)

	c.STT.Backend = getEnvString("STT_BACKEND", c.STT.Backend)
	c.STT.URL = getEnvString("STT_URL", c.STT.URL)
	c.STT.ModelPath = getEnvString("STT_MODEL_PATH", c.STT.ModelPath)
	c.STT.Language = getEnvString("STT_LANGUAGE", c.STT.Language)
	c.STT.Temperature = getEnvFloat32("STT_TEMPERATURE", c.STT.Temperature)
	c.STT.MaxTokens = getEnvInt("STT_MAX_TOKENS", c.STT.MaxTokens)
	c.STT.Timeout = getEnvDuration("STT_TIMEOUT", c.STT.Timeout)

	c.TTS.Backend = getEnvString("TTS_BACKEND", c.TTS.Backend)
	c.TTS.URL = getEnvString("TTS_URL", c.TTS.URL)
	c.TTS.Voice = getEnvString("TTS_VOICE", c.TTS.Voice)
	c.TTS.Speed = getEnvFloat32("TTS_SPEED", c.TTS.Speed)
	c.TTS.ResponseFormat = getEnvString("TTS_FORMAT", c.TTS.ResponseFormat)
	c.TTS.Normalize = getEnvBool("TTS_NORMALIZE", c.TTS.Normalize)
	c.TTS.MaxConcurrent = getEnvInt("TTS_MAX_CONCURRENT", c.TTS.MaxConcurrent)
	c.TTS.Timeout = getEnvDuration("TTS_TIMEOUT", c.TTS.Timeout)
	c.TTS.PiperBinary = getEnvString("PIPER_BINARY", c.TTS.PiperBinary)
	c.TTS.PiperModel = getEnvString("PIPER_MODEL", c.TTS.PiperModel)
	c.TTS.PiperSampleRate = getEnvInt("PIPER_SAMPLE_RATE", c.TTS.PiperSampleRate)

	c.LLM.URL = getEnvString("OLLAMA_URL", c.LLM.URL)
	c.LLM.Model = getEnvString("OLLAMA_MODEL", c.LLM.Model)
	c.LLM.EmbedModel = getEnvString("OLLAMA_EMBED_MODEL", c.LLM.EmbedModel)
	c.LLM.SystemPrompt = getEnvString("LLM_SYSTEM_PROMPT", c.LLM.SystemPrompt)
	c.LLM.Temperature = getEnvFloat64("LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.TopP = getEnvFloat64("LLM_TOP_P", c.LLM.TopP)
	c.LLM.MaxTokens = getEnvInt("LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Timeout = getEnvDuration("LLM_TIMEOUT", c.LLM.Timeout)

	c.Memory.Enabled = getEnvBool("MEMORY_ENABLED", c.Memory.Enabled)
	c.Memory.TopK = getEnvInt("MEMORY_TOP_K", c.Memory.TopK)

	c.Vision.Camera = getEnvString("VISION_CAMERA", c.Vision.Camera)
	c.Vision.CameraCommand = getEnvString("VISION_CAMERA_COMMAND", c.Vision.CameraCommand)
	c.Vision.DeviceIndex = getEnvInt("VISION_DEVICE_INDEX", c.Vision.DeviceIndex)
	c.Vision.Width = getEnvInt("VISION_WIDTH", c.Vision.Width)
	c.Vision.Height = getEnvInt("VISION_HEIGHT", c.Vision.Height)
	c.Vision.CaptureTimeout = getEnvDuration("VISION_CAPTURE_TIMEOUT", c.Vision.CaptureTimeout)
	c.Vision.SaveDir = getEnvString("VISION_SAVE_DIR", c.Vision.SaveDir)
	c.Vision.Detector = getEnvString("VISION_DETECTOR", c.Vision.Detector)
	c.Vision.DetectorURL = getEnvString("VISION_DETECTOR_URL", c.Vision.DetectorURL)
	c.Vision.ModelPath = getEnvString("VISION_MODEL_PATH", c.Vision.ModelPath)
	c.Vision.MinConfidence = getEnvFloat64("VISION_MIN_CONFIDENCE", c.Vision.MinConfidence)

	c.Home.Enabled = getEnvBool("HOME_ENABLED", c.Home.Enabled)
	c.Home.Backend = getEnvString("HOME_BACKEND", c.Home.Backend)
	c.Home.HAURL = getEnvString("HOME_ASSISTANT_URL", c.Home.HAURL)
	c.Home.HAToken = getEnvString("HOME_ASSISTANT_TOKEN", c.Home.HAToken)
	c.Home.Timeout = getEnvDuration("HOME_TIMEOUT", c.Home.Timeout)

	c.Storage.DBPath = getEnvString("LOQA_DB_PATH", c.Storage.DBPath)
	c.Storage.Retention = getEnvDuration("LOQA_RETENTION", c.Storage.Retention)

	c.Tiers.ProbeInterval = getEnvDuration("TIERS_PROBE_INTERVAL", c.Tiers.ProbeInterval)
	c.Tiers.ProbeTimeout = getEnvDuration("TIERS_PROBE_TIMEOUT", c.Tiers.ProbeTimeout)

	c.Logging.Level = getEnvString("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnvString("LOG_FORMAT", c.Logging.Format)
	c.Logging.File = getEnvString("LOG_FILE", c.Logging.File)
	c.Logging.MaxSizeMB = getEnvInt("LOG_MAX_SIZE_MB", c.Logging.MaxSizeMB)
	c.Logging.MaxBackups = getEnvInt("LOG_MAX_BACKUPS", c.Logging.MaxBackups)
	c.Logging.MaxAgeDays = getEnvInt("LOG_MAX_AGE_DAYS", c.Logging.MaxAgeDays)

	c.NATS.Enabled = getEnvBool("NATS_ENABLED", c.NATS.Enabled)
	c.NATS.URL = getEnvString("NATS_URL", c.NATS.URL)
	c.NATS.MaxReconnect = getEnvInt("NATS_MAX_RECONNECT", c.NATS.MaxReconnect)
	c.NATS.ReconnectWait = getEnvDuration("NATS_RECONNECT_WAIT", c.NATS.ReconnectWait)
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.GRPCPort <= 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.Server.GRPCPort)
	}

	if c.Server.GRPCPort == c.Server.Port {
		return fmt.Errorf("server and gRPC ports must differ: %d", c.Server.Port)
	}

	if c.Controller.QueueSize <= 0 {
		return fmt.Errorf("controller queue size must be positive: %d", c.Controller.QueueSize)
	}

	if c.Controller.HistoryTurns < 0 {
		return fmt.Errorf("controller history turns must not be negative: %d", c.Controller.HistoryTurns)
	}

	pins := map[int]string{}
	for name, pin := range map[string]int{
		"chat":   c.Buttons.ChatPin,
		"object": c.Buttons.ObjectPin,
		"action": c.Buttons.ActionPin,
	} {
		if pin < 0 || pin > 27 {
			return fmt.Errorf("invalid %s button pin: %d", name, pin)
		}
		if other, dup := pins[pin]; dup {
			return fmt.Errorf("button pin %d assigned to both %s and %s", pin, other, name)
		}
		pins[pin] = name
	}

	if c.Display.WrapWidth <= 0 || c.Display.MaxLines <= 0 {
		return fmt.Errorf("display geometry must be positive: %dx%d", c.Display.WrapWidth, c.Display.MaxLines)
	}

	if c.Audio.SampleRate <= 0 || c.Audio.FramesPerBuffer <= 0 {
		return fmt.Errorf("invalid audio format: rate=%d frames=%d", c.Audio.SampleRate, c.Audio.FramesPerBuffer)
	}

	switch c.Audio.Output {
	case "portaudio", "file", "none":
	case "nats":
		if !c.NATS.Enabled {
			return fmt.Errorf("audio output nats requires NATS_ENABLED")
		}
	default:
		return fmt.Errorf("invalid audio output: %q", c.Audio.Output)
	}

	switch c.STT.Backend {
	case "rest":
		if err := validateURL("STT", c.STT.URL); err != nil {
			return err
		}
	case "whisper":
		if c.STT.ModelPath == "" {
			return fmt.Errorf("STT model path must be provided for whisper backend")
		}
	default:
		return fmt.Errorf("unknown STT backend: %q", c.STT.Backend)
	}

	switch c.TTS.Backend {
	case "piper":
		if c.TTS.PiperBinary == "" {
			return fmt.Errorf("piper binary must be provided")
		}
	case "kokoro":
		if err := validateURL("TTS", c.TTS.URL); err != nil {
			return err
		}
	case "none":
	default:
		return fmt.Errorf("unknown TTS backend: %q", c.TTS.Backend)
	}

	if c.TTS.MaxConcurrent <= 0 {
		return fmt.Errorf("TTS max concurrent must be positive: %d", c.TTS.MaxConcurrent)
	}

	if c.TTS.Speed <= 0 {
		return fmt.Errorf("TTS speed must be positive: %f", c.TTS.Speed)
	}

	if err := validateURL("LLM", c.LLM.URL); err != nil {
		return err
	}

	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM max tokens must be positive: %d", c.LLM.MaxTokens)
	}

	if c.Memory.TopK <= 0 {
		return fmt.Errorf("memory top_k must be positive: %d", c.Memory.TopK)
	}

	switch c.Vision.Detector {
	case "http":
		if err := validateURL("detector", c.Vision.DetectorURL); err != nil {
			return err
		}
	case "opencv":
	default:
		return fmt.Errorf("unknown vision detector: %q", c.Vision.Detector)
	}

	switch c.Vision.Camera {
	case "command", "opencv":
	default:
		return fmt.Errorf("unknown vision camera: %q", c.Vision.Camera)
	}

	if c.Home.Enabled {
		switch c.Home.Backend {
		case "nats":
		case "homeassistant":
			if err := validateURL("Home Assistant", c.Home.HAURL); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown home backend: %q", c.Home.Backend)
		}
	}

	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s URL must be provided", name)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid %s URL: %q", name, raw)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatValue)
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
