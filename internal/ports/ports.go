package ports

import (
	"context"
	"io"
	"time"

	"audioloop/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate     int
	Channels       int
	InputFormat    string
	InputDevice    string
	FramesPerChunk int
}

// BytesPerFrame is the size of one interleaved s16le frame.
func (c AudioConfig) BytesPerFrame() int {
	return c.Channels * 2
}

// ChunkBytes is the size of one capture chunk.
func (c AudioConfig) ChunkBytes() int {
	return c.FramesPerChunk * c.BytesPerFrame()
}

// InputStream is a live microphone stream of s16le PCM.
type InputStream interface {
	io.Reader
	Stop() error
}

// AudioInput acquires the hardware input. The returned stream is owned
// exclusively by the caller until Stop.
type AudioInput interface {
	Open(ctx context.Context, cfg AudioConfig) (InputStream, error)
}

// ArtifactWriter appends PCM chunks to a capture artifact.
type ArtifactWriter interface {
	Write(chunk []byte) (int, error)
	Close() error
}

// ArtifactStore creates and discards artifacts.
type ArtifactStore interface {
	Create(artifact domain.Artifact, cfg AudioConfig) (ArtifactWriter, error)
	Remove(artifact domain.Artifact) error
}

// PathProvider returns a unique, writable location for an artifact kind.
type PathProvider interface {
	Next(kind domain.ArtifactKind) (domain.Artifact, error)
}

// Transcoder converts a capture artifact into a playback artifact.
type Transcoder interface {
	Transcode(ctx context.Context, src domain.Artifact, dst domain.Artifact) error
}

// Playback is an active playback handle.
type Playback interface {
	// Done delivers exactly one value when playback reaches end of media.
	Done() <-chan error
	// Stop halts playback. It is safe to call Stop multiple times.
	Stop() error
}

// Player starts playback of a playback artifact.
type Player interface {
	Play(ctx context.Context, artifact domain.Artifact) (Playback, error)
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(transition domain.Transition)
	SessionError(code domain.ErrorCode, detail string)
}

// Telemetry records observability data for the workflow.
type Telemetry interface {
	TransitionObserved(transition domain.Transition)
	ConversionObserved(outcome domain.ConversionOutcome, duration time.Duration)
	CaptureChunkWritten(bytes int)
	CaptureWriteFailed()
}
