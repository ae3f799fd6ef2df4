package usecase

import (
	"context"
	"errors"
	"time"

	"audioloop/internal/domain"
	"audioloop/internal/ports"
)

// conversionTask transcodes one capture artifact off the control goroutine
// and delivers exactly one result.
type conversionTask struct {
	id          uint64
	source      domain.Artifact
	destination domain.Artifact
	started     time.Time
	cancel      context.CancelFunc
	result      chan domain.ConversionResult
}

func startConversion(
	ctx context.Context,
	id uint64,
	transcoder ports.Transcoder,
	source domain.Artifact,
	destination domain.Artifact,
) *conversionTask {
	taskCtx, cancel := context.WithCancel(ctx)
	t := &conversionTask{
		id:          id,
		source:      source,
		destination: destination,
		started:     time.Now(),
		cancel:      cancel,
		result:      make(chan domain.ConversionResult, 1),
	}

	go func() {
		defer cancel()
		err := transcoder.Transcode(taskCtx, source, destination)
		t.result <- t.resultFor(taskCtx, err, time.Since(t.started))
		close(t.result)
	}()
	return t
}

func (t *conversionTask) resultFor(ctx context.Context, err error, elapsed time.Duration) domain.ConversionResult {
	result := domain.ConversionResult{
		TaskID:      t.id,
		Outcome:     domain.OutcomeSucceeded,
		Source:      t.source,
		Destination: t.destination,
		Duration:    elapsed,
	}
	switch {
	case err == nil:
		return result
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		result.Outcome = domain.OutcomeCancelled
	default:
		result.Outcome = domain.OutcomeFailed
	}
	result.Err = &domain.ConversionError{Outcome: result.Outcome, Err: err}
	return result
}

// Done delivers the single result and is then closed.
func (t *conversionTask) Done() <-chan domain.ConversionResult {
	return t.result
}

func (t *conversionTask) Cancel() {
	t.cancel()
}
