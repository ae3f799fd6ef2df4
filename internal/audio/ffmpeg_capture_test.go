package audio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"audioloop/internal/domain"
	"audioloop/internal/ports"
)

func TestFFMPEGCaptureOpenReadAndStop(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'hello'\nexec sleep 2\n")
	capture := NewFFMPEGCapture(script)

	session, err := capture.Open(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	buf := make([]byte, 8)
	n, readErr := session.Read(buf)
	if n <= 0 {
		t.Fatalf("expected audio bytes, got n=%d err=%v", n, readErr)
	}
	if !strings.Contains(string(buf[:n]), "hello") {
		t.Fatalf("unexpected bytes: %q", string(buf[:n]))
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
}

func TestFFMPEGCaptureOpenEarlyExitIsHardwareUnavailable(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'no such device' 1>&2\nexit 1\n")
	capture := NewFFMPEGCapture(script)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := capture.Open(ctx, ports.AudioConfig{})
	if err == nil {
		t.Fatalf("expected early exit error")
	}
	if !errors.Is(err, domain.ErrHardwareUnavailable) {
		t.Fatalf("expected hardware unavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "exited before capture started") || !strings.Contains(err.Error(), "no such device") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFFMPEGCaptureOpenMissingBinary(t *testing.T) {
	t.Parallel()

	capture := NewFFMPEGCapture(filepath.Join(t.TempDir(), "does-not-exist"))
	_, err := capture.Open(context.Background(), ports.AudioConfig{})
	if !errors.Is(err, domain.ErrHardwareUnavailable) {
		t.Fatalf("expected hardware unavailable, got %v", err)
	}
}

func TestNormalizeStopErrExitErrorIsIgnored(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-c", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := normalizeStopErr(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
}

func TestStringsTrimSpaceSafe(t *testing.T) {
	t.Parallel()

	if got := stringsTrimSpaceSafe("  hi\n"); got != "hi" {
		t.Fatalf("unexpected trim result: %q", got)
	}
}

func TestCheckCommand(t *testing.T) {
	t.Parallel()

	if _, err := CheckCommand("bash"); err != nil {
		t.Fatalf("expected bash to be found: %v", err)
	}
	if _, err := CheckCommand("audioloop-definitely-missing"); err == nil {
		t.Fatalf("expected missing command error")
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
