package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config stores runtime configuration for the record/convert/play loop.
type Config struct {
	Audio     AudioConfig     `toml:"audio"`
	Artifacts ArtifactsConfig `toml:"artifacts"`
	Session   SessionConfig   `toml:"session"`
	Log       LogConfig       `toml:"log"`
	Metrics   MetricsConfig   `toml:"metrics"`

	// Path is the config file that was applied, if any.
	Path string `toml:"-"`
}

type AudioConfig struct {
	FFmpegCommand  string `toml:"ffmpeg_command" validate:"required"`
	FFplayCommand  string `toml:"ffplay_command" validate:"required"`
	InputFormat    string `toml:"input_format" validate:"required"`
	InputDevice    string `toml:"input_device" validate:"required"`
	SampleRate     int    `toml:"sample_rate" validate:"oneof=8000 11025 16000 22050 24000 32000 44100 48000"`
	Channels       int    `toml:"channels" validate:"min=1,max=2"`
	FramesPerChunk int    `toml:"frames_per_chunk" validate:"min=64,max=16384"`
	Bitrate        string `toml:"bitrate" validate:"required"`

	// Output routing handed to the platform audio layer.
	AudioDriver      string `toml:"audio_driver"`
	DefaultToSpeaker bool   `toml:"default_to_speaker"`
	AllowBluetooth   bool   `toml:"allow_bluetooth"`
	MixWithOthers    bool   `toml:"mix_with_others"`
}

type ArtifactsConfig struct {
	Dir string `toml:"dir" validate:"required"`
}

type SessionConfig struct {
	CaptureQueue  int  `toml:"capture_queue" validate:"min=1,max=4096"`
	KeepArtifacts bool `toml:"keep_artifacts"`
}

type LogConfig struct {
	Level       string `toml:"level" validate:"oneof=debug info warn error"`
	Development bool   `toml:"development"`
}

type MetricsConfig struct {
	Addr string `toml:"addr" validate:"omitempty,hostname_port"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			FFmpegCommand:    "ffmpeg",
			FFplayCommand:    "ffplay",
			InputFormat:      "pulse",
			InputDevice:      "default",
			SampleRate:       44100,
			Channels:         1,
			FramesPerChunk:   1024,
			Bitrate:          "128k",
			DefaultToSpeaker: true,
			AllowBluetooth:   true,
		},
		Artifacts: ArtifactsConfig{
			Dir: filepath.Join(os.TempDir(), "audioloop"),
		},
		Session: SessionConfig{
			CaptureQueue: 64,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load resolves configuration from defaults, an optional TOML file and
// environment variables, in that order.
func Load() (Config, error) {
	cfg := Default()

	path, explicit := configFilePath()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
			}
			cfg.Path = path
		} else if explicit {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	clamp(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints declared on the config structs.
func Validate(cfg Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			return fmt.Errorf("invalid config: %s failed %q (value %v): %w", first.Namespace(), first.Tag(), first.Value(), err)
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Audio.FFmpegCommand = envOrDefault("AUDIOLOOP_FFMPEG_COMMAND", cfg.Audio.FFmpegCommand)
	cfg.Audio.FFplayCommand = envOrDefault("AUDIOLOOP_FFPLAY_COMMAND", cfg.Audio.FFplayCommand)
	cfg.Audio.InputFormat = envOrDefault("AUDIOLOOP_AUDIO_INPUT_FORMAT", cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = firstNonEmpty(
		os.Getenv("AUDIOLOOP_AUDIO_INPUT_DEVICE"),
		os.Getenv("PULSE_SOURCE"),
		cfg.Audio.InputDevice,
	)
	cfg.Audio.SampleRate = envOrDefaultInt("AUDIOLOOP_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = envOrDefaultInt("AUDIOLOOP_CHANNELS", cfg.Audio.Channels)
	cfg.Audio.FramesPerChunk = envOrDefaultInt("AUDIOLOOP_FRAMES_PER_CHUNK", cfg.Audio.FramesPerChunk)
	cfg.Audio.Bitrate = envOrDefault("AUDIOLOOP_AAC_BITRATE", cfg.Audio.Bitrate)
	cfg.Audio.AudioDriver = firstNonEmpty(
		os.Getenv("AUDIOLOOP_AUDIO_DRIVER"),
		os.Getenv("SDL_AUDIODRIVER"),
		cfg.Audio.AudioDriver,
	)
	cfg.Audio.DefaultToSpeaker = envOrDefaultBool("AUDIOLOOP_DEFAULT_TO_SPEAKER", cfg.Audio.DefaultToSpeaker)
	cfg.Audio.AllowBluetooth = envOrDefaultBool("AUDIOLOOP_ALLOW_BLUETOOTH", cfg.Audio.AllowBluetooth)
	cfg.Audio.MixWithOthers = envOrDefaultBool("AUDIOLOOP_MIX_WITH_OTHERS", cfg.Audio.MixWithOthers)

	cfg.Artifacts.Dir = expandTilde(envOrDefault("AUDIOLOOP_ARTIFACT_DIR", cfg.Artifacts.Dir))

	cfg.Session.CaptureQueue = envOrDefaultInt("AUDIOLOOP_CAPTURE_QUEUE", cfg.Session.CaptureQueue)
	cfg.Session.KeepArtifacts = envOrDefaultBool("AUDIOLOOP_KEEP_ARTIFACTS", cfg.Session.KeepArtifacts)

	cfg.Log.Level = strings.ToLower(envOrDefault("AUDIOLOOP_LOG_LEVEL", cfg.Log.Level))
	cfg.Log.Development = envOrDefaultBool("AUDIOLOOP_LOG_DEVELOPMENT", cfg.Log.Development)

	cfg.Metrics.Addr = envOrDefault("AUDIOLOOP_METRICS_ADDR", cfg.Metrics.Addr)
}

// clamp repairs values that are unset rather than invalid.
func clamp(cfg *Config) {
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 44100
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.FramesPerChunk <= 0 {
		cfg.Audio.FramesPerChunk = 1024
	}
	if cfg.Session.CaptureQueue <= 0 {
		cfg.Session.CaptureQueue = 64
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// configFilePath returns the config file location and whether it was
// requested explicitly.
func configFilePath() (string, bool) {
	if path := strings.TrimSpace(os.Getenv("AUDIOLOOP_CONFIG")); path != "" {
		return expandTilde(path), true
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "audioloop", "config.toml"), false
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(home, ".config", "audioloop", "config.toml"), false
}

func expandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
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
