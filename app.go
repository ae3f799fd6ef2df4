package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"audioloop/internal/bootstrap"
	"audioloop/internal/config"
	"audioloop/internal/domain"
	"audioloop/internal/usecase"
)

const (
	eventState = "audioloop:state"
	eventError = "audioloop:error"
)

// StateView is what the frontend renders for a transition.
type StateView struct {
	State   domain.RecordingState `json:"state"`
	Label   string                `json:"label"`
	Reason  domain.StateReason    `json:"reason,omitempty"`
	Message string                `json:"message,omitempty"`
	// Busy disables the primary button while a conversion is running.
	Busy bool `json:"busy"`
}

// App is the Wails application root.
type App struct {
	ctx context.Context

	machine *usecase.StateMachine
	cfg     config.Config
	logger  *zap.SugaredLogger
	bootErr error

	cancel context.CancelFunc
	done   chan struct{}
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.machine = services.Machine
	a.logger = services.Logger

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go func() {
		defer close(a.done)
		if err := a.machine.Run(runCtx); err != nil {
			a.logger.Errorw("state machine exited", "error", err)
		}
	}()

	a.SessionStateChanged(domain.Transition{From: domain.StateIdle, To: domain.StateIdle, Reason: domain.ReasonReady})
}

func (a *App) shutdown(_ context.Context) {
	if a.cancel != nil {
		a.cancel()
		<-a.done
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// PrimaryAction advances the workflow by one step. Failed steps are reported
// through the error event and leave the rendered state unchanged.
func (a *App) PrimaryAction() (StateView, error) {
	if err := a.requireReady(); err != nil {
		return StateView{}, err
	}
	transition, err := a.machine.DispatchPrimaryAction(a.ctx)
	if err != nil {
		if errors.Is(err, domain.ErrMachineStopped) || errors.Is(err, context.Canceled) {
			return StateView{}, err
		}
		a.logger.Debugw("primary action rejected", "state", transition.To, "error", err)
	}
	return viewFor(transition), nil
}

// Reset discards the current cycle and returns to idle.
func (a *App) Reset() (StateView, error) {
	if err := a.requireReady(); err != nil {
		return StateView{}, err
	}
	transition, err := a.machine.Reset(a.ctx)
	if err != nil {
		return StateView{}, err
	}
	return viewFor(transition), nil
}

// GetStatus returns the current workflow status.
func (a *App) GetStatus() domain.Status {
	if a.machine == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.StateIdle, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.StateIdle}
	}
	status := a.machine.Status()
	status.Message = stateLabel(status.State)
	return status
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"configFile":       a.cfg.Path,
		"artifactDir":      a.cfg.Artifacts.Dir,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
		"sampleRate":       strconv.Itoa(a.cfg.Audio.SampleRate),
		"channels":         strconv.Itoa(a.cfg.Audio.Channels),
		"playbackFormat":   string(domain.FormatPlayback),
		"audioDriver":      a.cfg.Audio.AudioDriver,
		"defaultToSpeaker": strconv.FormatBool(a.cfg.Audio.DefaultToSpeaker),
		"allowBluetooth":   strconv.FormatBool(a.cfg.Audio.AllowBluetooth),
		"mixWithOthers":    strconv.FormatBool(a.cfg.Audio.MixWithOthers),
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.machine == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits workflow transitions to the frontend.
func (a *App) SessionStateChanged(transition domain.Transition) {
	if a.ctx == nil {
		return
	}
	view := viewFor(transition)
	runtime.EventsEmit(a.ctx, eventState, map[string]any{
		"from":    string(transition.From),
		"state":   string(view.State),
		"label":   view.Label,
		"reason":  string(view.Reason),
		"message": view.Message,
		"busy":    view.Busy,
	})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

// viewFor renders the state a transition produced.
func viewFor(transition domain.Transition) StateView {
	return StateView{
		State:   transition.To,
		Label:   stateLabel(transition.To),
		Reason:  transition.Reason,
		Message: reasonMessage(transition.Reason),
		Busy:    transition.To == domain.StateConverting,
	}
}

var stateLabels = map[domain.RecordingState]string{
	domain.StateIdle:       "Record",
	domain.StateRecording:  "Stop recording",
	domain.StateStopped:    "Convert",
	domain.StateConverting: "Converting",
	domain.StateConverted:  "Play",
	domain.StatePlaying:    "Stop playing",
}

func stateLabel(state domain.RecordingState) string {
	return stateLabels[state]
}

func reasonMessage(reason domain.StateReason) string {
	switch reason {
	case domain.ReasonReady:
		return "Ready"
	case domain.ReasonRecordingStarted:
		return "Recording"
	case domain.ReasonRecordingStopped:
		return "Recording saved"
	case domain.ReasonConversionStarted:
		return "Converting to AAC..."
	case domain.ReasonConversionPending:
		return "Conversion already in progress"
	case domain.ReasonConversionSucceeded:
		return "Ready to play"
	case domain.ReasonConversionFailed:
		return "Conversion failed"
	case domain.ReasonConversionCancelled:
		return "Conversion cancelled"
	case domain.ReasonPlaybackStarted:
		return "Playing"
	case domain.ReasonPlaybackStopped:
		return "Playback stopped"
	case domain.ReasonPlaybackFinished:
		return "Playback finished"
	case domain.ReasonReset:
		return "Recording discarded"
	case domain.ReasonShutdown:
		return "Shutting down"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeSessionActivation:
		return "Could not start recording"
	case domain.ErrorCodeHardwareUnavailable:
		return "Microphone unavailable"
	case domain.ErrorCodeCaptureWrite:
		return "Some audio could not be saved"
	case domain.ErrorCodeCaptureStream:
		return "Microphone stream interrupted"
	case domain.ErrorCodeCaptureStop:
		return "Recording did not stop cleanly"
	case domain.ErrorCodeConversion:
		return "Conversion failed"
	case domain.ErrorCodePrecondition:
		return "Nothing to continue with"
	case domain.ErrorCodePlayback:
		return "Playback issue"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
