package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"audioloop/internal/domain"
	"audioloop/internal/ports"
)

var testCaptureArtifact = domain.Artifact{Kind: domain.ArtifactCapture, Format: domain.FormatCapture, Path: "/capture.wav"}

func TestCaptureSessionWritesChunksInOrder(t *testing.T) {
	t.Parallel()

	input := &fakeAudioInput{}
	store := &fakeStore{}
	metrics := &fakeTelemetry{}
	session, err := startCapture(context.Background(), input, store, testCaptureArtifact, testConfig().withDefaults(),
		&fakeEventSink{}, metrics, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	// A partial trailing chunk is flushed when the input ends.
	input.last().push(chunk(1), chunk(2), []byte{3, 3, 3})
	writer := store.latestWriter()
	require.Eventually(t, func() bool {
		data, _ := writer.snapshot()
		return len(data) == 16
	}, 5*time.Second, time.Millisecond)

	stats, err := session.stop()
	require.NoError(t, err)
	assert.True(t, session.finalized())

	data, closed := writer.snapshot()
	want := append(append(chunk(1), chunk(2)...), 3, 3, 3)
	assert.Equal(t, want, data)
	assert.Equal(t, 1, closed)
	assert.Equal(t, domain.CaptureStats{Chunks: 3, Bytes: 19}, stats)

	again, err := session.stop()
	require.NoError(t, err)
	assert.Equal(t, stats, again)
	_, closed = writer.snapshot()
	assert.Equal(t, 1, closed)
}

func TestCaptureSessionOverrunDropsChunk(t *testing.T) {
	t.Parallel()

	input := &fakeAudioInput{}
	store := &fakeStore{}
	events := &fakeEventSink{}
	cfg := testConfig().withDefaults()
	cfg.CaptureQueue = 1

	blocked := make(chan struct{})
	session, err := startCapture(context.Background(), input, &blockingStore{fakeStore: store, release: blocked}, testCaptureArtifact, cfg,
		events, &fakeTelemetry{}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	input.last().push(chunk(1), chunk(2), chunk(3), chunk(4))
	require.Eventually(t, func() bool { return len(events.snapshotErrors()) > 0 }, 5*time.Second, time.Millisecond)
	close(blocked)

	stats, err := session.stop()
	require.NoError(t, err)
	assert.Positive(t, stats.WriteErrors)
	assert.Equal(t, 4, stats.Chunks+stats.WriteErrors)

	errs := events.snapshotErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, domain.ErrorCodeCaptureWrite, errs[0].code)
	assert.Contains(t, errs[0].detail, domain.ErrCaptureOverrun.Error())
}

func TestCaptureSessionStreamErrorIsReported(t *testing.T) {
	t.Parallel()

	input := &fakeAudioInput{}
	events := &fakeEventSink{}
	session, err := startCapture(context.Background(), input, &fakeStore{}, testCaptureArtifact, testConfig().withDefaults(),
		events, &fakeTelemetry{}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	stream := input.last()
	stream.fail(errors.New("device unplugged"))
	<-session.readerDone

	require.EqualError(t, session.streamError(), "device unplugged")
	errs := events.snapshotErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, domain.ErrorCodeCaptureStream, errs[0].code)

	_, err = session.stop()
	require.NoError(t, err)
}

// blockingStore hands out writers that hold every write until release closes.
type blockingStore struct {
	*fakeStore
	release chan struct{}
}

func (b *blockingStore) Create(artifact domain.Artifact, cfg ports.AudioConfig) (ports.ArtifactWriter, error) {
	w, err := b.fakeStore.Create(artifact, cfg)
	if err != nil {
		return nil, err
	}
	return &blockingWriter{ArtifactWriter: w, release: b.release}, nil
}

type blockingWriter struct {
	ports.ArtifactWriter
	release chan struct{}
}

func (b *blockingWriter) Write(chunk []byte) (int, error) {
	<-b.release
	return b.ArtifactWriter.Write(chunk)
}
