package usecase

import (
	"time"

	"audioloop/internal/domain"
	"audioloop/internal/ports"
)

const (
	// DefaultFramesPerChunk is the fixed capture chunk size.
	DefaultFramesPerChunk = 1024
	defaultCaptureQueue   = 64
)

// Config controls capture and artifact behaviour.
type Config struct {
	Audio ports.AudioConfig
	// CaptureQueue bounds the chunks buffered between the audio reader and
	// the artifact writer.
	CaptureQueue int
	// KeepArtifacts disables removal of the previous cycle's artifacts.
	KeepArtifacts bool
}

func (c Config) withDefaults() Config {
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.FramesPerChunk <= 0 {
		c.Audio.FramesPerChunk = DefaultFramesPerChunk
	}
	if c.CaptureQueue <= 0 {
		c.CaptureQueue = defaultCaptureQueue
	}
	return c
}

type request struct {
	kind  requestKind
	reply chan reply
}

type reply struct {
	transition domain.Transition
	err        error
}

type nopEventSink struct{}

func (nopEventSink) SessionStateChanged(domain.Transition) {}
func (nopEventSink) SessionError(domain.ErrorCode, string) {}

type nopTelemetry struct{}

func (nopTelemetry) TransitionObserved(domain.Transition)                       {}
func (nopTelemetry) ConversionObserved(domain.ConversionOutcome, time.Duration) {}
func (nopTelemetry) CaptureChunkWritten(int)                                    {}
func (nopTelemetry) CaptureWriteFailed()                                        {}
