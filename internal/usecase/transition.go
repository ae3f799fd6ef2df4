package usecase

import "audioloop/internal/domain"

// EventKind identifies the discrete inputs of the state machine.
type EventKind int

const (
	EventPrimary EventKind = iota
	EventConversionComplete
	EventPlaybackComplete
)

func (k EventKind) String() string {
	switch k {
	case EventPrimary:
		return "primary"
	case EventConversionComplete:
		return "conversion_complete"
	case EventPlaybackComplete:
		return "playback_complete"
	default:
		return "unknown"
	}
}

// Event is one input to the state machine. Next only reads Kind and Outcome;
// Result and PlaybackErr carry data for the side effects.
type Event struct {
	Kind        EventKind
	Outcome     domain.ConversionOutcome
	Result      domain.ConversionResult
	PlaybackErr error
}

func PrimaryTrigger() Event {
	return Event{Kind: EventPrimary}
}

func ConversionComplete(result domain.ConversionResult) Event {
	return Event{Kind: EventConversionComplete, Outcome: result.Outcome, Result: result}
}

func PlaybackComplete(err error) Event {
	return Event{Kind: EventPlaybackComplete, PlaybackErr: err}
}

// Effect describes the side effect a transition requires.
type Effect int

const (
	EffectNone Effect = iota
	EffectStartCapture
	EffectStopCapture
	EffectStartConversion
	EffectStartPlayback
	EffectStopPlayback
	EffectAcceptConversion
	EffectDiscardConversion
	EffectReleasePlayback
)

func (e Effect) String() string {
	switch e {
	case EffectNone:
		return "none"
	case EffectStartCapture:
		return "start_capture"
	case EffectStopCapture:
		return "stop_capture"
	case EffectStartConversion:
		return "start_conversion"
	case EffectStartPlayback:
		return "start_playback"
	case EffectStopPlayback:
		return "stop_playback"
	case EffectAcceptConversion:
		return "accept_conversion"
	case EffectDiscardConversion:
		return "discard_conversion"
	case EffectReleasePlayback:
		return "release_playback"
	default:
		return "unknown"
	}
}

// Step is the pure result of applying an event to a state.
type Step struct {
	Transition domain.Transition
	Effect     Effect
	// Handled is false when the event has no meaning in the current state.
	Handled bool
}

// Next is the transition function. It has no side effects.
func Next(state domain.RecordingState, event Event) Step {
	switch event.Kind {
	case EventPrimary:
		return nextPrimary(state)
	case EventConversionComplete:
		if state != domain.StateConverting {
			return unhandled(state)
		}
		switch event.Outcome {
		case domain.OutcomeSucceeded:
			return step(state, domain.StateConverted, domain.ReasonConversionSucceeded, EffectAcceptConversion)
		case domain.OutcomeCancelled:
			return step(state, domain.StateIdle, domain.ReasonConversionCancelled, EffectDiscardConversion)
		default:
			return step(state, domain.StateIdle, domain.ReasonConversionFailed, EffectDiscardConversion)
		}
	case EventPlaybackComplete:
		if state != domain.StatePlaying {
			return unhandled(state)
		}
		return step(state, domain.StateIdle, domain.ReasonPlaybackFinished, EffectReleasePlayback)
	default:
		return unhandled(state)
	}
}

func nextPrimary(state domain.RecordingState) Step {
	switch state {
	case domain.StateIdle:
		return step(state, domain.StateRecording, domain.ReasonRecordingStarted, EffectStartCapture)
	case domain.StateRecording:
		return step(state, domain.StateStopped, domain.ReasonRecordingStopped, EffectStopCapture)
	case domain.StateStopped:
		return step(state, domain.StateConverting, domain.ReasonConversionStarted, EffectStartConversion)
	case domain.StateConverting:
		// A second conversion must never start while one is in flight.
		return step(state, domain.StateConverting, domain.ReasonConversionPending, EffectNone)
	case domain.StateConverted:
		return step(state, domain.StatePlaying, domain.ReasonPlaybackStarted, EffectStartPlayback)
	case domain.StatePlaying:
		return step(state, domain.StateIdle, domain.ReasonPlaybackStopped, EffectStopPlayback)
	default:
		return unhandled(state)
	}
}

func step(from, to domain.RecordingState, reason domain.StateReason, effect Effect) Step {
	return Step{
		Transition: domain.Transition{From: from, To: to, Reason: reason},
		Effect:     effect,
		Handled:    true,
	}
}

func unhandled(state domain.RecordingState) Step {
	return Step{Transition: domain.Transition{From: state, To: state}}
}
