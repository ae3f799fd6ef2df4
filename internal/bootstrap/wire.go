package bootstrap

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"audioloop/internal/artifact"
	"audioloop/internal/audio"
	"audioloop/internal/config"
	"audioloop/internal/ports"
	"audioloop/internal/telemetry"
	"audioloop/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Machine  *usecase.StateMachine
	Config   config.Config
	Logger   *zap.SugaredLogger
	Metrics  *telemetry.Metrics
	Registry *prometheus.Registry
}

// Build loads configuration and wires all backend dependencies.
func Build(eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return BuildWithConfig(cfg, eventSink)
}

// BuildWithConfig wires the runtime graph for an already loaded config.
func BuildWithConfig(cfg config.Config, eventSink ports.EventSink) (Services, error) {
	if err := config.Validate(cfg); err != nil {
		return Services{}, err
	}

	base, err := NewLogger(cfg.Log)
	if err != nil {
		return Services{}, err
	}
	logger := base.Sugar()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	machine := usecase.NewStateMachine(
		usecase.Dependencies{
			Input:      audio.NewFFMPEGCapture(cfg.Audio.FFmpegCommand),
			Store:      artifact.NewStore(logger.Named("artifact")),
			Paths:      artifact.NewPathProvider(cfg.Artifacts.Dir),
			Transcoder: audio.NewFFMPEGTranscoder(cfg.Audio.FFmpegCommand, cfg.Audio.Bitrate),
			Player:     audio.NewFFPlayPlayer(cfg.Audio.FFplayCommand, cfg.Audio.AudioDriver),
			Events:     eventSink,
			Telemetry:  metrics,
			Logger:     logger.Named("machine"),
		},
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				InputFormat:    cfg.Audio.InputFormat,
				InputDevice:    cfg.Audio.InputDevice,
				FramesPerChunk: cfg.Audio.FramesPerChunk,
			},
			CaptureQueue:  cfg.Session.CaptureQueue,
			KeepArtifacts: cfg.Session.KeepArtifacts,
		},
	)

	logger.Infow("audioloop configured",
		"configFile", cfg.Path,
		"artifactDir", cfg.Artifacts.Dir,
		"inputFormat", cfg.Audio.InputFormat,
		"inputDevice", cfg.Audio.InputDevice,
		"sampleRate", cfg.Audio.SampleRate,
		"channels", cfg.Audio.Channels,
		"audioDriver", cfg.Audio.AudioDriver,
		"defaultToSpeaker", cfg.Audio.DefaultToSpeaker,
		"allowBluetooth", cfg.Audio.AllowBluetooth,
		"mixWithOthers", cfg.Audio.MixWithOthers,
	)

	return Services{
		Machine:  machine,
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Registry: registry,
	}, nil
}

// NewLogger builds the process logger. Development mode switches to the
// console encoder with caller and stack traces on warnings.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
