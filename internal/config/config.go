package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Config stores runtime configuration for the camera trigger service.
type Config struct {
	Deepgram    DeepgramConfig
	Audio       AudioConfig
	Camera      CameraConfig
	Upload      UploadConfig
	Trigger     TriggerConfig
	Pipeline    PipelineConfig
	Volume      VolumeConfig
	Recognition RecognitionConfig
	Rules       RulesConfig
	Ledger      LedgerConfig
	Control     ControlConfig
	Log         LogConfig
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	SmartFormat bool
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	ChunkSize       int
}

type CameraConfig struct {
	Command     string
	InputFormat string
	Device      string
	FrameDir    string
	JPEGQuality int
}

type UploadConfig struct {
	Endpoint string
	APIKey   string
	HTTP2    bool
	Timeout  time.Duration
}

type TriggerConfig struct {
	StartPhrases []string
	EndPhrases   []string
	Window       time.Duration
	MaxEntries   int
	ArmedTimeout time.Duration
}

type PipelineConfig struct {
	ShutterDelay time.Duration
	Cooldown     time.Duration
	CueFile      string
	CueCommand   string
}

type VolumeConfig struct {
	PactlCommand    string
	ReferenceVolume float64
	Debounce        time.Duration
	StartForeground bool
}

type RecognitionConfig struct {
	Language          string
	SilenceHintMS     int
	RestartDelay      time.Duration
	ErrorRestartDelay time.Duration
	RetryDelay        time.Duration
}

type RulesConfig struct {
	Path           string
	IterationLimit int
}

type LedgerConfig struct {
	Path string
}

type ControlConfig struct {
	Addr string
}

type LogConfig struct {
	Level string
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	cfg := Config{
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:  envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			SmartFormat: envOrDefaultBool("DEEPGRAM_SMART_FORMAT", false),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("SNAPWORD_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("SNAPWORD_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     envOrDefault("SNAPWORD_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:      envOrDefaultInt("SNAPWORD_SAMPLE_RATE", 16000),
			Channels:        envOrDefaultInt("SNAPWORD_CHANNELS", 1),
			ChunkSize:       envOrDefaultInt("SNAPWORD_AUDIO_CHUNK_SIZE", 3200),
		},
		Camera: CameraConfig{
			Command:     envOrDefault("SNAPWORD_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat: envOrDefault("SNAPWORD_CAMERA_INPUT_FORMAT", "v4l2"),
			Device:      envOrDefault("SNAPWORD_CAMERA_DEVICE", "/dev/video0"),
			FrameDir:    envOrDefault("SNAPWORD_FRAME_DIR", filepath.Join(os.TempDir(), "snapword", "frames")),
			JPEGQuality: envOrDefaultInt("SNAPWORD_JPEG_QUALITY", 30),
		},
		Upload: UploadConfig{
			Endpoint: strings.TrimSpace(os.Getenv("SNAPWORD_API_URL")),
			APIKey:   strings.TrimSpace(os.Getenv("SNAPWORD_API_KEY")),
			HTTP2:    envOrDefaultBool("SNAPWORD_HTTP2", false),
			Timeout:  envOrDefaultMillis("SNAPWORD_UPLOAD_TIMEOUT_MS", 0),
		},
		Trigger: TriggerConfig{
			StartPhrases: envList("SNAPWORD_START_PHRASES"),
			EndPhrases:   envList("SNAPWORD_END_PHRASES"),
			Window:       envOrDefaultMillis("SNAPWORD_WINDOW_MS", 20*time.Second),
			MaxEntries:   envOrDefaultInt("SNAPWORD_WINDOW_MAX_ENTRIES", 10),
			ArmedTimeout: envOrDefaultMillis("SNAPWORD_ARMED_TIMEOUT_MS", 0),
		},
		Pipeline: PipelineConfig{
			ShutterDelay: envOrDefaultMillis("SNAPWORD_SHUTTER_DELAY_MS", 500*time.Millisecond),
			Cooldown:     envOrDefaultMillis("SNAPWORD_COOLDOWN_MS", 3*time.Second),
			CueFile:      strings.TrimSpace(os.Getenv("SNAPWORD_CUE_FILE")),
			CueCommand:   envOrDefault("SNAPWORD_CUE_COMMAND", "paplay"),
		},
		Volume: VolumeConfig{
			PactlCommand:    envOrDefault("SNAPWORD_PACTL_COMMAND", "pactl"),
			ReferenceVolume: envOrDefaultFloat("SNAPWORD_REFERENCE_VOLUME", 0.70),
			Debounce:        envOrDefaultMillis("SNAPWORD_VOLUME_DEBOUNCE_MS", 150*time.Millisecond),
			StartForeground: envOrDefaultBool("SNAPWORD_START_FOREGROUND", true),
		},
		Recognition: RecognitionConfig{
			Language:          envOrDefault("SNAPWORD_LANGUAGE", "en-US"),
			SilenceHintMS:     envOrDefaultInt("SNAPWORD_SILENCE_HINT_MS", 10000),
			RestartDelay:      envOrDefaultMillis("SNAPWORD_RESTART_DELAY_MS", 100*time.Millisecond),
			ErrorRestartDelay: envOrDefaultMillis("SNAPWORD_ERROR_RESTART_DELAY_MS", time.Second),
			RetryDelay:        envOrDefaultMillis("SNAPWORD_RETRY_DELAY_MS", 2*time.Second),
		},
		Rules: RulesConfig{
			Path:           envOrDefault("SNAPWORD_PROMPT_RULES", filepath.Join(home, ".config", "snapword", "prompt.rules")),
			IterationLimit: envOrDefaultInt("SNAPWORD_RULE_ITERATION_LIMIT", 30),
		},
		Ledger: LedgerConfig{
			Path: envOrDefault("SNAPWORD_LEDGER_PATH", filepath.Join(home, ".local", "share", "snapword", "captures.sqlite")),
		},
		Control: ControlConfig{
			Addr: envOrDefault("SNAPWORD_CONTROL_ADDR", "127.0.0.1:8787"),
		},
		Log: LogConfig{
			Level: envOrDefault("SNAPWORD_LOG_LEVEL", "info"),
		},
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = 3200
	}
	if cfg.Trigger.MaxEntries <= 0 {
		cfg.Trigger.MaxEntries = 10
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	cfg.Ledger.Path = disabledAsEmpty(cfg.Ledger.Path)
	cfg.Control.Addr = disabledAsEmpty(cfg.Control.Addr)

	if cfg.Camera.JPEGQuality <= 0 || cfg.Camera.JPEGQuality > 100 {
		return Config{}, fmt.Errorf("SNAPWORD_JPEG_QUALITY must be within 1..100, got %d", cfg.Camera.JPEGQuality)
	}
	if cfg.Volume.ReferenceVolume <= 0 || cfg.Volume.ReferenceVolume > 1 {
		return Config{}, fmt.Errorf("SNAPWORD_REFERENCE_VOLUME must be within (0, 1], got %.2f", cfg.Volume.ReferenceVolume)
	}

	return cfg, nil
}

// disabledAsEmpty maps "off" to an empty value.
func disabledAsEmpty(value string) string {
	if strings.EqualFold(value, "off") {
		return ""
	}
	return value
}

// envList splits a |-separated variable, dropping blank entries.
func envList(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	return lo.FilterMap(strings.Split(value, "|"), func(item string, _ int) (string, bool) {
		item = strings.TrimSpace(item)
		return item, item != ""
	})
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// envOrDefaultMillis reads a non-negative millisecond count.
func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
