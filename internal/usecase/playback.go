package usecase

import (
	"context"
	"time"

	"audioloop/internal/domain"
	"audioloop/internal/ports"
)

type playbackSession struct {
	id       uint64
	artifact domain.Artifact
	handle   ports.Playback
	started  time.Time
}

func startPlayback(ctx context.Context, id uint64, player ports.Player, artifact domain.Artifact) (*playbackSession, error) {
	handle, err := player.Play(ctx, artifact)
	if err != nil {
		return nil, err
	}
	return &playbackSession{
		id:       id,
		artifact: artifact,
		handle:   handle,
		started:  time.Now(),
	}, nil
}

func (p *playbackSession) Done() <-chan error {
	return p.handle.Done()
}

func (p *playbackSession) stop() error {
	return p.handle.Stop()
}

func (p *playbackSession) elapsed() time.Duration {
	return time.Since(p.started)
}
