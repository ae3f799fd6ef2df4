package domain

import "time"

// RecordingState models the record → convert → play lifecycle.
type RecordingState string

const (
	StateIdle       RecordingState = "idle"
	StateRecording  RecordingState = "recording"
	StateStopped    RecordingState = "stopped"
	StateConverting RecordingState = "converting"
	StateConverted  RecordingState = "converted"
	StatePlaying    RecordingState = "playing"
)

// AllStates lists every state in workflow order.
var AllStates = []RecordingState{
	StateIdle,
	StateRecording,
	StateStopped,
	StateConverting,
	StateConverted,
	StatePlaying,
}

// StateReason provides a structured reason for state transitions.
type StateReason string

const (
	ReasonReady               StateReason = "ready"
	ReasonRecordingStarted    StateReason = "recording_started"
	ReasonRecordingStopped    StateReason = "recording_stopped"
	ReasonConversionStarted   StateReason = "conversion_started"
	ReasonConversionPending   StateReason = "conversion_pending"
	ReasonConversionSucceeded StateReason = "conversion_succeeded"
	ReasonConversionFailed    StateReason = "conversion_failed"
	ReasonConversionCancelled StateReason = "conversion_cancelled"
	ReasonPlaybackStarted     StateReason = "playback_started"
	ReasonPlaybackStopped     StateReason = "playback_stopped"
	ReasonPlaybackFinished    StateReason = "playback_finished"
	ReasonReset               StateReason = "reset"
	ReasonShutdown            StateReason = "shutdown"
)

// Transition is the value produced by one step of the state machine.
type Transition struct {
	From   RecordingState `json:"from"`
	To     RecordingState `json:"to"`
	Reason StateReason    `json:"reason"`
}

// Changed reports whether the transition moved to a different state.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// ErrorCode identifies non-fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup             ErrorCode = "startup"
	ErrorCodeSessionActivation   ErrorCode = "session_activation"
	ErrorCodeHardwareUnavailable ErrorCode = "hardware_unavailable"
	ErrorCodeCaptureWrite        ErrorCode = "capture_write"
	ErrorCodeCaptureStream       ErrorCode = "capture_stream"
	ErrorCodeCaptureStop         ErrorCode = "capture_stop"
	ErrorCodeConversion          ErrorCode = "conversion"
	ErrorCodePrecondition        ErrorCode = "precondition"
	ErrorCodePlayback            ErrorCode = "playback"
)

// ArtifactKind names the logical role of an artifact.
type ArtifactKind string

const (
	ArtifactCapture  ArtifactKind = "capture"
	ArtifactPlayback ArtifactKind = "playback"
)

// Format is the fixed encoding of an artifact.
type Format string

const (
	// FormatCapture is 16-bit little-endian PCM in a WAV container.
	FormatCapture Format = "wav"
	// FormatPlayback is AAC in an MPEG-4 audio container.
	FormatPlayback Format = "m4a"
)

// Extension returns the file extension including the leading dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// FormatFor returns the fixed format used for an artifact kind.
func FormatFor(kind ArtifactKind) Format {
	if kind == ArtifactPlayback {
		return FormatPlayback
	}
	return FormatCapture
}

// Artifact is an audio recording stored at a named location.
type Artifact struct {
	Kind   ArtifactKind `json:"kind"`
	Format Format       `json:"format"`
	Path   string       `json:"path"`
}

// IsZero reports whether the artifact is unset.
func (a Artifact) IsZero() bool {
	return a.Path == ""
}

// ConversionOutcome is the single result of a conversion task.
type ConversionOutcome string

const (
	OutcomeSucceeded ConversionOutcome = "succeeded"
	OutcomeFailed    ConversionOutcome = "failed"
	OutcomeCancelled ConversionOutcome = "cancelled"
)

// ConversionResult is delivered exactly once per conversion task.
type ConversionResult struct {
	TaskID      uint64            `json:"taskId"`
	Outcome     ConversionOutcome `json:"outcome"`
	Source      Artifact          `json:"source"`
	Destination Artifact          `json:"destination"`
	Duration    time.Duration     `json:"duration"`
	Err         error             `json:"-"`
}

// CaptureStats summarizes a finished capture session.
type CaptureStats struct {
	Chunks      int   `json:"chunks"`
	Bytes       int64 `json:"bytes"`
	WriteErrors int   `json:"writeErrors"`
}

// Status summarizes the current runtime status.
type Status struct {
	State      RecordingState `json:"state"`
	Converting bool           `json:"converting"`
	Capture    Artifact       `json:"capture"`
	Playback   Artifact       `json:"playback"`
	Message    string         `json:"message,omitempty"`
}
