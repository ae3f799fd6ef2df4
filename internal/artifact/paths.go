package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"audioloop/internal/domain"
)

const nameTimeLayout = "2006-01-02-15-04-05"

// PathProvider names artifacts inside a single directory. Names embed the
// creation time and a random suffix so two artifacts never share a path.
type PathProvider struct {
	dir   string
	now   func() time.Time
	newID func() string
}

func NewPathProvider(dir string) *PathProvider {
	return &PathProvider{
		dir:   dir,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Next returns a fresh artifact location for kind.
func (p *PathProvider) Next(kind domain.ArtifactKind) (domain.Artifact, error) {
	if kind != domain.ArtifactCapture && kind != domain.ArtifactPlayback {
		return domain.Artifact{}, fmt.Errorf("unknown artifact kind %q", kind)
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return domain.Artifact{}, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	format := domain.FormatFor(kind)
	id := strings.ReplaceAll(p.newID(), "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	name := fmt.Sprintf("recording-%s-%s%s", p.now().Format(nameTimeLayout), id, format.Extension())

	return domain.Artifact{
		Kind:   kind,
		Format: format,
		Path:   filepath.Join(p.dir, name),
	}, nil
}
