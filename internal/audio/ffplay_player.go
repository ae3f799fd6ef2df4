package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"audioloop/internal/domain"
	"audioloop/internal/ports"
)

// FFPlayPlayer plays playback artifacts headlessly with ffplay.
type FFPlayPlayer struct {
	command     string
	audioDriver string
}

func NewFFPlayPlayer(command string, audioDriver string) *FFPlayPlayer {
	if command == "" {
		command = "ffplay"
	}
	return &FFPlayPlayer{command: command, audioDriver: audioDriver}
}

func (p *FFPlayPlayer) Play(ctx context.Context, a domain.Artifact) (ports.Playback, error) {
	if a.Format != domain.FormatPlayback {
		return nil, fmt.Errorf("cannot play %s artifact", a.Format)
	}
	if _, err := os.Stat(a.Path); err != nil {
		return nil, fmt.Errorf("playback artifact unavailable: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.command,
		"-nodisp",
		"-autoexit",
		"-hide_banner",
		"-loglevel", "warning",
		a.Path,
	)
	if p.audioDriver != "" {
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER="+p.audioDriver)
	}
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffplay: %w", err)
	}

	session := &ffplaySession{
		process: cmd.Process,
		exited:  make(chan error, 1),
		done:    make(chan error, 1),
	}
	go func() {
		err := cmd.Wait()
		if err != nil && stderr.Len() > 0 {
			err = fmt.Errorf("%w: %s", err, stringsTrimSpaceSafe(stderr.String()))
		}
		if !session.stopped.Load() {
			session.done <- err
		}
		session.exited <- err
		close(session.exited)
	}()

	return session, nil
}

type ffplaySession struct {
	process *os.Process
	exited  chan error
	done    chan error

	stopped  atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

func (s *ffplaySession) Done() <-chan error {
	return s.done
}

func (s *ffplaySession) Stop() error {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		err := interruptAndWait(s.process, s.exited)
		if err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.stopErr = err
		}
	})
	return s.stopErr
}
