package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"audioloop/internal/domain"
	"audioloop/internal/ports"
)

var ErrAlreadyRunning = errors.New("state machine is already running")

// Dependencies are the collaborators driven by the state machine.
type Dependencies struct {
	Input      ports.AudioInput
	Store      ports.ArtifactStore
	Paths      ports.PathProvider
	Transcoder ports.Transcoder
	Player     ports.Player
	Events     ports.EventSink
	Telemetry  ports.Telemetry
	Logger     *zap.SugaredLogger
}

type requestKind int

const (
	requestPrimary requestKind = iota
	requestReset
)

// StateMachine runs the record → convert → play workflow. All state is owned
// by the goroutine executing Run; every other method talks to it through
// channels or reads a published snapshot.
type StateMachine struct {
	input      ports.AudioInput
	store      ports.ArtifactStore
	paths      ports.PathProvider
	transcoder ports.Transcoder
	player     ports.Player
	events     ports.EventSink
	metrics    ports.Telemetry
	logger     *zap.SugaredLogger
	cfg        Config

	requests chan request
	running  atomic.Bool

	snapshotMu sync.RWMutex
	snapshot   domain.Status

	// Owned by Run.
	state            domain.RecordingState
	capture          *captureSession
	conversion       *conversionTask
	playback         *playbackSession
	captureArtifact  domain.Artifact
	playbackArtifact domain.Artifact
	nextID           uint64
}

func NewStateMachine(deps Dependencies, cfg Config) *StateMachine {
	if deps.Events == nil {
		deps.Events = nopEventSink{}
	}
	if deps.Telemetry == nil {
		deps.Telemetry = nopTelemetry{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	return &StateMachine{
		input:      deps.Input,
		store:      deps.Store,
		paths:      deps.Paths,
		transcoder: deps.Transcoder,
		player:     deps.Player,
		events:     deps.Events,
		metrics:    deps.Telemetry,
		logger:     deps.Logger,
		cfg:        cfg.withDefaults(),
		requests:   make(chan request),
		state:      domain.StateIdle,
		snapshot:   domain.Status{State: domain.StateIdle},
	}
}

// Run owns the machine state until ctx is cancelled. Live sessions are
// released before it returns.
func (m *StateMachine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.running.Store(false)

	m.logger.Infow("state machine started", "state", m.state)
	for {
		var conversionDone <-chan domain.ConversionResult
		if m.conversion != nil {
			conversionDone = m.conversion.Done()
		}
		var playbackDone <-chan error
		var playbackID uint64
		if m.playback != nil {
			playbackDone = m.playback.Done()
			playbackID = m.playback.id
		}

		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case req := <-m.requests:
			var r reply
			switch req.kind {
			case requestReset:
				r.transition = m.reset(domain.ReasonReset)
			default:
				r.transition, r.err = m.handlePrimary(ctx)
			}
			req.reply <- r
		case result, ok := <-conversionDone:
			if ok {
				m.onConversionComplete(result)
			}
		case err := <-playbackDone:
			m.onPlaybackComplete(playbackID, err)
		}
	}
}

// DispatchPrimaryAction applies the primary trigger and returns the
// transition actually taken. Recoverable failures are returned without
// changing state.
func (m *StateMachine) DispatchPrimaryAction(ctx context.Context) (domain.Transition, error) {
	return m.send(ctx, requestPrimary)
}

// Reset releases any live session and returns to idle. It is the way out of
// stopped when the capture artifact could not be finalized.
func (m *StateMachine) Reset(ctx context.Context) (domain.Transition, error) {
	return m.send(ctx, requestReset)
}

func (m *StateMachine) send(ctx context.Context, kind requestKind) (domain.Transition, error) {
	if !m.running.Load() {
		return domain.Transition{}, domain.ErrMachineStopped
	}
	req := request{kind: kind, reply: make(chan reply, 1)}
	select {
	case m.requests <- req:
	case <-ctx.Done():
		return domain.Transition{}, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.transition, r.err
	case <-ctx.Done():
		return domain.Transition{}, ctx.Err()
	}
}

// State returns the last committed state.
func (m *StateMachine) State() domain.RecordingState {
	return m.Status().State
}

// Status returns the last published status snapshot.
func (m *StateMachine) Status() domain.Status {
	m.snapshotMu.RLock()
	defer m.snapshotMu.RUnlock()
	return m.snapshot
}

func (m *StateMachine) handlePrimary(ctx context.Context) (domain.Transition, error) {
	step := Next(m.state, PrimaryTrigger())
	if !step.Handled {
		return step.Transition, nil
	}
	if step.Effect == EffectNone {
		m.logger.Debugw("primary action ignored", "state", m.state, "reason", step.Transition.Reason)
		return step.Transition, nil
	}

	if err := m.apply(ctx, step, PrimaryTrigger()); err != nil {
		m.reportError(step, err)
		return domain.Transition{From: m.state, To: m.state}, err
	}
	m.commit(step.Transition)
	return step.Transition, nil
}

// onConversionComplete handles the single result of the current conversion.
// Results from any other task are ignored.
func (m *StateMachine) onConversionComplete(result domain.ConversionResult) {
	if m.conversion == nil || m.conversion.id != result.TaskID {
		m.logger.Debugw("ignoring stale conversion result", "task", result.TaskID, "outcome", result.Outcome)
		return
	}
	m.conversion = nil
	m.observeConversion(result)

	event := ConversionComplete(result)
	step := Next(m.state, event)
	if !step.Handled {
		return
	}
	if err := m.apply(context.Background(), step, event); err != nil {
		m.reportError(step, err)
		return
	}
	m.commit(step.Transition)
}

// onPlaybackComplete handles natural end of media for the current playback.
func (m *StateMachine) onPlaybackComplete(id uint64, err error) {
	if m.playback == nil || m.playback.id != id {
		m.logger.Debugw("ignoring stale playback completion", "playback", id)
		return
	}
	event := PlaybackComplete(err)
	step := Next(m.state, event)
	if !step.Handled {
		return
	}
	if applyErr := m.apply(context.Background(), step, event); applyErr != nil {
		m.reportError(step, applyErr)
		return
	}
	m.commit(step.Transition)
}

// apply runs the side effect of a step. State is only committed when it
// returns nil.
func (m *StateMachine) apply(ctx context.Context, step Step, event Event) error {
	switch step.Effect {
	case EffectStartCapture:
		return m.startCapture(ctx)
	case EffectStopCapture:
		m.stopCapture()
		return nil
	case EffectStartConversion:
		return m.startConversion(ctx)
	case EffectStartPlayback:
		return m.startPlayback(ctx)
	case EffectStopPlayback:
		m.stopPlayback()
		return nil
	case EffectAcceptConversion:
		m.playbackArtifact = event.Result.Destination
		return nil
	case EffectDiscardConversion:
		m.discardConversion(event.Result)
		return nil
	case EffectReleasePlayback:
		m.releasePlayback(event.PlaybackErr)
		return nil
	case EffectNone:
		return nil
	default:
		return fmt.Errorf("unknown effect %s", step.Effect)
	}
}

func (m *StateMachine) startCapture(ctx context.Context) error {
	artifact, err := m.paths.Next(domain.ArtifactCapture)
	if err != nil {
		return &domain.SessionActivationError{Err: fmt.Errorf("allocate capture artifact: %w", err)}
	}

	session, err := startCapture(ctx, m.input, m.store, artifact, m.cfg, m.events, m.metrics, m.logger)
	if err != nil {
		return err
	}

	if !m.cfg.KeepArtifacts {
		m.removeArtifact(m.captureArtifact)
		m.removeArtifact(m.playbackArtifact)
	}
	m.captureArtifact = domain.Artifact{}
	m.playbackArtifact = domain.Artifact{}
	m.capture = session
	m.logger.Infow("capture started",
		"path", artifact.Path,
		"sampleRate", m.cfg.Audio.SampleRate,
		"channels", m.cfg.Audio.Channels,
		"framesPerChunk", m.cfg.Audio.FramesPerChunk,
	)
	return nil
}

// stopCapture always releases the input. An artifact that failed to finalize
// is removed so the next conversion reports a precondition error.
func (m *StateMachine) stopCapture() {
	session := m.capture
	m.capture = nil
	if session == nil {
		return
	}

	stats, err := session.stop()
	if err != nil {
		m.logger.Warnw("capture did not stop cleanly", "path", session.artifact.Path, "error", err)
		m.events.SessionError(domain.ErrorCodeCaptureStop, err.Error())
	}
	if streamErr := session.streamError(); streamErr != nil {
		m.logger.Warnw("capture stream ended early", "path", session.artifact.Path, "error", streamErr)
	}
	if session.finalized() {
		m.captureArtifact = session.artifact
	} else {
		m.removeArtifact(session.artifact)
	}
	m.logger.Infow("capture stopped",
		"path", session.artifact.Path,
		"chunks", stats.Chunks,
		"bytes", stats.Bytes,
		"writeErrors", stats.WriteErrors,
	)
}

func (m *StateMachine) startConversion(ctx context.Context) error {
	if m.captureArtifact.IsZero() {
		return &domain.PreconditionError{State: m.state, Missing: "capture artifact"}
	}
	if m.conversion != nil {
		return &domain.PreconditionError{State: m.state, Missing: "idle transcoder"}
	}

	destination, err := m.paths.Next(domain.ArtifactPlayback)
	if err != nil {
		return &domain.ConversionError{
			Outcome: domain.OutcomeFailed,
			Err:     fmt.Errorf("allocate playback artifact: %w", err),
		}
	}

	m.nextID++
	m.conversion = startConversion(ctx, m.nextID, m.transcoder, m.captureArtifact, destination)
	m.logger.Infow("conversion started",
		"task", m.conversion.id,
		"source", m.captureArtifact.Path,
		"destination", destination.Path,
		"startedAt", m.conversion.started.Format(time.RFC3339),
	)
	return nil
}

func (m *StateMachine) observeConversion(result domain.ConversionResult) {
	m.metrics.ConversionObserved(result.Outcome, result.Duration)
	m.logger.Infow("conversion finished",
		"task", result.TaskID,
		"outcome", result.Outcome,
		"seconds", result.Duration.Seconds(),
	)
}

func (m *StateMachine) discardConversion(result domain.ConversionResult) {
	m.removeArtifact(result.Destination)
	if result.Outcome == domain.OutcomeCancelled {
		return
	}
	detail := string(result.Outcome)
	if result.Err != nil {
		detail = result.Err.Error()
	}
	m.logger.Warnw("conversion did not produce a playback artifact", "task", result.TaskID, "error", result.Err)
	m.events.SessionError(domain.ErrorCodeConversion, detail)
}

func (m *StateMachine) startPlayback(ctx context.Context) error {
	if m.playbackArtifact.IsZero() {
		return &domain.PreconditionError{State: m.state, Missing: "playback artifact"}
	}

	m.nextID++
	session, err := startPlayback(ctx, m.nextID, m.player, m.playbackArtifact)
	if err != nil {
		return fmt.Errorf("start playback: %w", err)
	}
	m.playback = session
	m.logger.Infow("playback started", "path", session.artifact.Path)
	return nil
}

func (m *StateMachine) stopPlayback() {
	session := m.playback
	m.playback = nil
	if session == nil {
		return
	}
	if err := session.stop(); err != nil {
		m.logger.Warnw("playback did not stop cleanly", "path", session.artifact.Path, "error", err)
		m.events.SessionError(domain.ErrorCodePlayback, err.Error())
	}
	m.logger.Infow("playback stopped", "path", session.artifact.Path, "seconds", session.elapsed().Seconds())
}

func (m *StateMachine) releasePlayback(playErr error) {
	session := m.playback
	m.playback = nil
	if session == nil {
		return
	}
	_ = session.stop()
	if playErr != nil {
		m.logger.Warnw("playback ended with error", "path", session.artifact.Path, "error", playErr)
		m.events.SessionError(domain.ErrorCodePlayback, playErr.Error())
	}
	m.logger.Infow("playback finished", "path", session.artifact.Path, "seconds", session.elapsed().Seconds())
}

// reset releases everything that is live and returns to idle.
func (m *StateMachine) reset(reason domain.StateReason) domain.Transition {
	from := m.state
	if m.capture != nil {
		m.stopCapture()
	}
	if task := m.conversion; task != nil {
		m.conversion = nil
		task.Cancel()
		result := <-task.Done()
		m.observeConversion(result)
		if result.Outcome != domain.OutcomeSucceeded {
			m.removeArtifact(result.Destination)
		} else {
			m.playbackArtifact = result.Destination
		}
	}
	if m.playback != nil {
		m.stopPlayback()
	}
	if !m.cfg.KeepArtifacts {
		m.removeArtifact(m.captureArtifact)
		m.removeArtifact(m.playbackArtifact)
	}
	m.captureArtifact = domain.Artifact{}
	m.playbackArtifact = domain.Artifact{}

	t := domain.Transition{From: from, To: domain.StateIdle, Reason: reason}
	if t.Changed() {
		m.commit(t)
	} else {
		m.publish()
	}
	return t
}

func (m *StateMachine) shutdown() {
	t := m.reset(domain.ReasonShutdown)
	m.logger.Infow("state machine stopped", "from", t.From)
}

func (m *StateMachine) commit(t domain.Transition) {
	m.state = t.To
	m.publish()
	m.metrics.TransitionObserved(t)
	m.logger.Infow("state transition", "from", t.From, "to", t.To, "reason", t.Reason)
	m.events.SessionStateChanged(t)
}

func (m *StateMachine) publish() {
	status := domain.Status{
		State:      m.state,
		Converting: m.conversion != nil,
		Capture:    m.captureArtifact,
		Playback:   m.playbackArtifact,
	}
	if m.capture != nil {
		status.Capture = m.capture.artifact
	}
	m.snapshotMu.Lock()
	m.snapshot = status
	m.snapshotMu.Unlock()
}

func (m *StateMachine) reportError(step Step, err error) {
	code := domain.ErrorCodeFor(err)
	if code == domain.ErrorCodeStartup && step.Effect == EffectStartPlayback {
		code = domain.ErrorCodePlayback
	}
	m.logger.Errorw("transition aborted",
		"from", step.Transition.From,
		"to", step.Transition.To,
		"effect", step.Effect,
		"code", code,
		"error", err,
	)
	m.events.SessionError(code, err.Error())
}

func (m *StateMachine) removeArtifact(artifact domain.Artifact) {
	if artifact.IsZero() {
		return
	}
	if err := m.store.Remove(artifact); err != nil {
		m.logger.Warnw("failed to remove artifact", "path", artifact.Path, "error", err)
	}
}
