package audio

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

const stopGrace = 1200 * time.Millisecond

// CheckCommand reports whether an external audio tool is installed.
func CheckCommand(command string) (string, error) {
	path, err := exec.LookPath(command)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", command, err)
	}
	return path, nil
}

// lockedBuffer collects process stderr while the process is still writing to it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *lockedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// interruptAndWait asks the process to exit, killing it after the grace period.
// exited must yield the process's Wait result once and then be closed.
func interruptAndWait(process *os.Process, exited <-chan error) error {
	if process != nil {
		_ = process.Signal(os.Interrupt)
	}

	select {
	case err, ok := <-exited:
		if ok {
			return normalizeStopErr(err)
		}
		return nil
	case <-time.After(stopGrace):
		if process != nil {
			_ = process.Kill()
		}
		err, ok := <-exited
		if ok {
			return normalizeStopErr(err)
		}
		return nil
	}
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
