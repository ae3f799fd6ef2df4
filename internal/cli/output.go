package cli

import (
	"fmt"
	"io"
	"sync"

	"audioloop/internal/domain"
)

var stateLabels = map[domain.RecordingState]string{
	domain.StateIdle:       "Record",
	domain.StateRecording:  "Stop recording",
	domain.StateStopped:    "Convert",
	domain.StateConverting: "Converting",
	domain.StateConverted:  "Play",
	domain.StatePlaying:    "Stop playing",
}

// Formatter writes human-readable progress lines. It is safe for use from
// the state machine and the capture goroutines at the same time.
type Formatter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) printf(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintf(f.w, format, args...)
}

func (f *Formatter) Prompt(state domain.RecordingState) {
	if state == domain.StateConverting {
		f.printf("… converting, please wait\n")
		return
	}
	f.printf("[Enter] %s   [r] reset   [q] quit\n", stateLabels[state])
}

func (f *Formatter) Check(name string, ok bool, detail string) {
	mark := "ok  "
	if !ok {
		mark = "FAIL"
	}
	f.printf("%s %-18s %s\n", mark, name, detail)
}

func (f *Formatter) Info(msg string) {
	f.printf("%s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	f.printf("warning: %s\n", msg)
}

func (f *Formatter) Error(msg string) {
	f.printf("error: %s\n", msg)
}

// consoleSink renders machine events on the terminal.
type consoleSink struct {
	out *Formatter
}

func (s consoleSink) SessionStateChanged(t domain.Transition) {
	s.out.printf("%s → %s (%s)\n", t.From, t.To, t.Reason)
	s.out.Prompt(t.To)
}

func (s consoleSink) SessionError(code domain.ErrorCode, detail string) {
	s.out.Error(fmt.Sprintf("%s: %s", code, detail))
}
