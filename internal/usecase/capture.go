package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"audioloop/internal/domain"
	"audioloop/internal/ports"
)

// captureSession owns the hardware input and the capture artifact between
// the recording_started and recording_stopped transitions.
type captureSession struct {
	artifact domain.Artifact
	input    ports.InputStream
	writer   ports.ArtifactWriter
	events   ports.EventSink
	metrics  ports.Telemetry
	logger   *zap.SugaredLogger

	queue      chan []byte
	readerDone chan struct{}
	writerDone chan struct{}
	stopping   atomic.Bool
	stopOnce   sync.Once

	mu          sync.Mutex
	stats       domain.CaptureStats
	streamErr   error
	stopErr     error
	finalizeErr error
}

func startCapture(
	ctx context.Context,
	input ports.AudioInput,
	store ports.ArtifactStore,
	artifact domain.Artifact,
	cfg Config,
	events ports.EventSink,
	metrics ports.Telemetry,
	logger *zap.SugaredLogger,
) (*captureSession, error) {
	writer, err := store.Create(artifact, cfg.Audio)
	if err != nil {
		return nil, &domain.SessionActivationError{Err: fmt.Errorf("create capture artifact: %w", err)}
	}

	stream, err := input.Open(ctx, cfg.Audio)
	if err != nil {
		_ = writer.Close()
		if removeErr := store.Remove(artifact); removeErr != nil {
			logger.Warnw("failed to remove capture artifact", "path", artifact.Path, "error", removeErr)
		}
		return nil, &domain.SessionActivationError{Err: err}
	}

	s := &captureSession{
		artifact:   artifact,
		input:      stream,
		writer:     writer,
		events:     events,
		metrics:    metrics,
		logger:     logger,
		queue:      make(chan []byte, cfg.CaptureQueue),
		readerDone: make(chan struct{}),
		writerDone: make(chan struct{}),
	}

	go s.read(cfg.Audio.ChunkBytes())
	go s.write()
	return s, nil
}

// read pulls fixed-size chunks off the input and hands them to the writer
// without ever waiting on disk I/O.
func (s *captureSession) read(chunkBytes int) {
	defer close(s.readerDone)
	defer close(s.queue)

	index := 0
	for {
		buf := make([]byte, chunkBytes)
		n, err := io.ReadFull(s.input, buf)
		if n > 0 {
			select {
			case s.queue <- buf[:n]:
			default:
				s.recordWriteError(&domain.CaptureWriteError{Chunk: index, Err: domain.ErrCaptureOverrun})
			}
			index++
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || s.stopping.Load() {
			return
		}
		s.mu.Lock()
		s.streamErr = err
		s.mu.Unlock()
		s.logger.Warnw("capture stream read failed", "path", s.artifact.Path, "error", err)
		s.events.SessionError(domain.ErrorCodeCaptureStream, err.Error())
		return
	}
}

func (s *captureSession) write() {
	defer close(s.writerDone)

	index := 0
	for chunk := range s.queue {
		if _, err := s.writer.Write(chunk); err != nil {
			s.recordWriteError(&domain.CaptureWriteError{Chunk: index, Err: err})
		} else {
			s.mu.Lock()
			s.stats.Chunks++
			s.stats.Bytes += int64(len(chunk))
			s.mu.Unlock()
			s.metrics.CaptureChunkWritten(len(chunk))
		}
		index++
	}
}

// recordWriteError keeps capture running; only the first failure of a
// session is surfaced to the event sink.
func (s *captureSession) recordWriteError(err *domain.CaptureWriteError) {
	s.mu.Lock()
	s.stats.WriteErrors++
	first := s.stats.WriteErrors == 1
	s.mu.Unlock()

	s.metrics.CaptureWriteFailed()
	s.logger.Warnw("capture chunk dropped", "path", s.artifact.Path, "chunk", err.Chunk, "error", err.Err)
	if first {
		s.events.SessionError(domain.ErrorCodeCaptureWrite, err.Error())
	}
}

// stop releases the input, drains queued chunks and finalizes the artifact.
// It is safe to call more than once; later calls return the first result.
func (s *captureSession) stop() (domain.CaptureStats, error) {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		var errs []error
		if err := s.input.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop input: %w", err))
		}
		<-s.readerDone
		<-s.writerDone
		finalizeErr := s.writer.Close()
		if finalizeErr != nil {
			errs = append(errs, fmt.Errorf("finalize capture artifact: %w", finalizeErr))
		}
		s.mu.Lock()
		s.stopErr = errors.Join(errs...)
		s.finalizeErr = finalizeErr
		s.mu.Unlock()
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, s.stopErr
}

// finalized reports whether the artifact was closed with a valid header.
// An input that failed to stop cleanly still leaves a usable artifact.
func (s *captureSession) finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalizeErr == nil
}

func (s *captureSession) streamError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamErr
}
