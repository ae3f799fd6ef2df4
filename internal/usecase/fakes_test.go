package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"audioloop/internal/domain"
	"audioloop/internal/ports"
)

// testConfig uses 4-frame mono chunks so each chunk is 8 bytes.
func testConfig() Config {
	return Config{
		Audio:        ports.AudioConfig{SampleRate: 16000, Channels: 1, FramesPerChunk: 4},
		CaptureQueue: 16,
	}
}

func chunk(b byte) []byte {
	return []byte{b, b, b, b, b, b, b, b}
}

type fakeAudioInput struct {
	mu      sync.Mutex
	streams []*fakeInputStream
	err     error
	calls   int
}

func (f *fakeAudioInput) Open(_ context.Context, _ ports.AudioConfig) (ports.InputStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	stream := newFakeInputStream()
	f.streams = append(f.streams, stream)
	return stream, nil
}

func (f *fakeAudioInput) last() *fakeInputStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

// fakeInputStream blocks in Read until a chunk is pushed or the stream stops.
type fakeInputStream struct {
	chunks    chan []byte
	stopped   chan struct{}
	stopOnce  sync.Once
	stopCalls atomic.Int32
	stopErr   error
	readErr   error
	pending   []byte
}

func newFakeInputStream() *fakeInputStream {
	return &fakeInputStream{
		chunks:  make(chan []byte, 64),
		stopped: make(chan struct{}),
	}
}

func (f *fakeInputStream) push(chunks ...[]byte) {
	for _, c := range chunks {
		f.chunks <- c
	}
}

func (f *fakeInputStream) Read(p []byte) (int, error) {
	if len(f.pending) > 0 {
		n := copy(p, f.pending)
		f.pending = f.pending[n:]
		return n, nil
	}
	select {
	case c := <-f.chunks:
		n := copy(p, c)
		f.pending = c[n:]
		return n, nil
	case <-f.stopped:
		if f.readErr != nil {
			return 0, f.readErr
		}
		return 0, io.EOF
	}
}

// fail ends the stream with err as if the device went away.
func (f *fakeInputStream) fail(err error) {
	f.readErr = err
	f.stopOnce.Do(func() { close(f.stopped) })
}

func (f *fakeInputStream) Stop() error {
	f.stopCalls.Add(1)
	f.stopOnce.Do(func() { close(f.stopped) })
	return f.stopErr
}

type fakeStore struct {
	mu        sync.Mutex
	writers   []*fakeWriter
	removed   []string
	createErr error
	failWrite map[int]bool
	closeErr  error
}

func (f *fakeStore) Create(artifact domain.Artifact, _ ports.AudioConfig) (ports.ArtifactWriter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	w := &fakeWriter{artifact: artifact, failWrite: f.failWrite, closeErr: f.closeErr}
	f.writers = append(f.writers, w)
	return w, nil
}

func (f *fakeStore) Remove(artifact domain.Artifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, artifact.Path)
	return nil
}

func (f *fakeStore) removedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

func (f *fakeStore) latestWriter() *fakeWriter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writers[len(f.writers)-1]
}

type fakeWriter struct {
	mu        sync.Mutex
	artifact  domain.Artifact
	data      []byte
	writes    int
	closed    int
	failWrite map[int]bool
	closeErr  error
}

func (f *fakeWriter) Write(chunk []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	index := f.writes
	f.writes++
	if f.failWrite[index] {
		return 0, errors.New("disk full")
	}
	f.data = append(f.data, chunk...)
	return len(chunk), nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.closeErr
}

func (f *fakeWriter) snapshot() ([]byte, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.data...), f.closed
}

type fakePaths struct {
	mu    sync.Mutex
	count int
	err   error
}

func (f *fakePaths) Next(kind domain.ArtifactKind) (domain.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Artifact{}, f.err
	}
	f.count++
	format := domain.FormatFor(kind)
	return domain.Artifact{
		Kind:   kind,
		Format: format,
		Path:   fmt.Sprintf("/artifacts/%s-%d%s", kind, f.count, format.Extension()),
	}, nil
}

// fakeTranscoder blocks each call until a result is released or ctx ends.
type fakeTranscoder struct {
	release chan error
	started chan domain.Artifact
	active  atomic.Int32
	peak    atomic.Int32
	calls   atomic.Int32
}

func newFakeTranscoder() *fakeTranscoder {
	return &fakeTranscoder{
		release: make(chan error, 4),
		started: make(chan domain.Artifact, 4),
	}
}

func (f *fakeTranscoder) Transcode(ctx context.Context, src domain.Artifact, _ domain.Artifact) error {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	f.started <- src
	select {
	case err := <-f.release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakePlayer struct {
	mu        sync.Mutex
	playbacks []*fakePlayback
	err       error
}

func (f *fakePlayer) Play(_ context.Context, artifact domain.Artifact) (ports.Playback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if artifact.Format != domain.FormatPlayback {
		return nil, fmt.Errorf("cannot play %s artifact", artifact.Format)
	}
	p := &fakePlayback{artifact: artifact, done: make(chan error, 1)}
	f.playbacks = append(f.playbacks, p)
	return p, nil
}

func (f *fakePlayer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.playbacks)
}

func (f *fakePlayer) last() *fakePlayback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playbacks[len(f.playbacks)-1]
}

type fakePlayback struct {
	artifact  domain.Artifact
	done      chan error
	stopCalls atomic.Int32
}

func (f *fakePlayback) Done() <-chan error { return f.done }

func (f *fakePlayback) Stop() error {
	f.stopCalls.Add(1)
	return nil
}

func (f *fakePlayback) finish(err error) {
	f.done <- err
}

type errorEvent struct {
	code   domain.ErrorCode
	detail string
}

type fakeEventSink struct {
	mu          sync.Mutex
	transitions []domain.Transition
	errors      []errorEvent
}

func (f *fakeEventSink) SessionStateChanged(t domain.Transition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, t)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errorEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotTransitions() []domain.Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Transition(nil), f.transitions...)
}

func (f *fakeEventSink) snapshotErrors() []errorEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]errorEvent(nil), f.errors...)
}

func (f *fakeEventSink) reasons() []domain.StateReason {
	var out []domain.StateReason
	for _, t := range f.snapshotTransitions() {
		out = append(out, t.Reason)
	}
	return out
}

type fakeTelemetry struct {
	mu          sync.Mutex
	transitions int
	outcomes    []domain.ConversionOutcome
	chunks      int
	writeErrors int
}

func (f *fakeTelemetry) TransitionObserved(domain.Transition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions++
}

func (f *fakeTelemetry) ConversionObserved(outcome domain.ConversionOutcome, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
}

func (f *fakeTelemetry) CaptureChunkWritten(int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks++
}

func (f *fakeTelemetry) CaptureWriteFailed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErrors++
}

type telemetrySnapshot struct {
	transitions int
	outcomes    []domain.ConversionOutcome
	chunks      int
	writeErrors int
}

func (f *fakeTelemetry) snapshot() telemetrySnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return telemetrySnapshot{
		transitions: f.transitions,
		outcomes:    append([]domain.ConversionOutcome(nil), f.outcomes...),
		chunks:      f.chunks,
		writeErrors: f.writeErrors,
	}
}

type harness struct {
	machine    *StateMachine
	input      *fakeAudioInput
	store      *fakeStore
	paths      *fakePaths
	transcoder *fakeTranscoder
	player     *fakePlayer
	events     *fakeEventSink
	metrics    *fakeTelemetry
	cancel     context.CancelFunc
	done       chan error
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		input:      &fakeAudioInput{},
		store:      &fakeStore{},
		paths:      &fakePaths{},
		transcoder: newFakeTranscoder(),
		player:     &fakePlayer{},
		events:     &fakeEventSink{},
		metrics:    &fakeTelemetry{},
	}
	h.machine = NewStateMachine(Dependencies{
		Input:      h.input,
		Store:      h.store,
		Paths:      h.paths,
		Transcoder: h.transcoder,
		Player:     h.player,
		Events:     h.events,
		Telemetry:  h.metrics,
		Logger:     zaptest.NewLogger(t).Sugar(),
	}, cfg)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() { h.done <- h.machine.Run(ctx) }()
	require.Eventually(t, h.machine.running.Load, time.Second, time.Millisecond)
	t.Cleanup(func() { h.stop(t) })
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	if h.cancel == nil {
		return
	}
	h.cancel()
	h.cancel = nil
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("state machine did not stop")
	}
}

func (h *harness) dispatch(t *testing.T) (domain.Transition, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.machine.DispatchPrimaryAction(ctx)
}

func (h *harness) mustDispatch(t *testing.T, want domain.RecordingState) domain.Transition {
	t.Helper()
	transition, err := h.dispatch(t)
	require.NoError(t, err)
	require.Equal(t, want, transition.To)
	return transition
}

func (h *harness) waitForState(t *testing.T, want domain.RecordingState) {
	t.Helper()
	require.Eventually(t, func() bool { return h.machine.State() == want }, 5*time.Second, time.Millisecond,
		"expected state %s, got %s", want, h.machine.State())
}

func (h *harness) waitForReasons(t *testing.T, want ...domain.StateReason) {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.events.reasons()) >= len(want) }, 5*time.Second, time.Millisecond)
	require.Equal(t, want, h.events.reasons())
}

// recordAndStop drives idle → recording → stopped with the given chunks.
func (h *harness) recordAndStop(t *testing.T, chunks ...[]byte) {
	t.Helper()
	h.mustDispatch(t, domain.StateRecording)
	h.input.last().push(chunks...)
	writer := h.store.latestWriter()
	want := 0
	for _, c := range chunks {
		want += len(c)
	}
	require.Eventually(t, func() bool {
		data, _ := writer.snapshot()
		return len(data) >= want
	}, 5*time.Second, time.Millisecond)
	h.mustDispatch(t, domain.StateStopped)
}
