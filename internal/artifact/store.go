package artifact

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"audioloop/internal/domain"
	"audioloop/internal/ports"
)

// Store implements ports.ArtifactStore on the local filesystem.
type Store struct {
	logger *zap.SugaredLogger
}

func NewStore(logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{logger: logger}
}

// Create opens a capture artifact for writing.
func (s *Store) Create(a domain.Artifact, cfg ports.AudioConfig) (ports.ArtifactWriter, error) {
	if a.Format != domain.FormatCapture {
		return nil, fmt.Errorf("cannot record into %s artifact", a.Format)
	}
	w, err := CreateWAV(a.Path, cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, err
	}
	s.logger.Debugw("capture artifact created", "path", a.Path, "sample_rate", cfg.SampleRate, "channels", cfg.Channels)
	return w, nil
}

// Remove deletes an artifact. Missing files are not an error.
func (s *Store) Remove(a domain.Artifact) error {
	if a.IsZero() {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s artifact: %w", a.Kind, err)
	}
	s.logger.Debugw("artifact removed", "path", a.Path, "kind", a.Kind)
	return nil
}
