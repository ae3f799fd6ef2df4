package domain

import (
	"errors"
	"fmt"
)

// ErrHardwareUnavailable indicates the input device could not be obtained at all.
var ErrHardwareUnavailable = errors.New("audio input hardware unavailable")

// ErrCaptureOverrun indicates a chunk was dropped because the writer fell behind.
var ErrCaptureOverrun = errors.New("capture writer overrun")

// ErrMachineStopped is returned when the state machine loop is not running.
var ErrMachineStopped = errors.New("state machine is not running")

// SessionActivationError reports that the capture session could not be opened.
type SessionActivationError struct {
	Err error
}

func (e *SessionActivationError) Error() string {
	return fmt.Sprintf("failed to activate capture session: %v", e.Err)
}

func (e *SessionActivationError) Unwrap() error { return e.Err }

// CaptureWriteError reports a chunk that failed to persist.
type CaptureWriteError struct {
	Chunk int
	Err   error
}

func (e *CaptureWriteError) Error() string {
	return fmt.Sprintf("failed to write capture chunk %d: %v", e.Chunk, e.Err)
}

func (e *CaptureWriteError) Unwrap() error { return e.Err }

// ConversionError reports a transcode that did not produce a usable artifact.
type ConversionError struct {
	Outcome ConversionOutcome
	Err     error
}

func (e *ConversionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("conversion %s", e.Outcome)
	}
	return fmt.Sprintf("conversion %s: %v", e.Outcome, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// PreconditionError reports an action requested without its predecessor artifact.
type PreconditionError struct {
	State   RecordingState
	Missing string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot leave %s: missing %s", e.State, e.Missing)
}

// ErrorCodeFor maps an error to the code reported on the event surface.
func ErrorCodeFor(err error) ErrorCode {
	var (
		activation   *SessionActivationError
		write        *CaptureWriteError
		conversion   *ConversionError
		precondition *PreconditionError
	)
	switch {
	case errors.Is(err, ErrHardwareUnavailable):
		return ErrorCodeHardwareUnavailable
	case errors.As(err, &activation):
		return ErrorCodeSessionActivation
	case errors.As(err, &write):
		return ErrorCodeCaptureWrite
	case errors.As(err, &conversion):
		return ErrorCodeConversion
	case errors.As(err, &precondition):
		return ErrorCodePrecondition
	default:
		return ErrorCodeStartup
	}
}
