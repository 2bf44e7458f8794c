package errorexplorer

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
)

// LogSource intercepts the standard library's default logger, the closest
// Go analog to patching the error-level console primitive. Start saves the
// currently-installed output writer and installs a tee: every log line is
// forwarded to the original writer first (observability is never silently
// swallowed), then treated as a fault. Stop restores the exact saved
// writer, even if it was the process default.
type LogSource struct {
	mu      sync.Mutex
	handler Handler
	started bool
	prev    io.Writer

	capturing atomic.Bool
}

// NewLogSource creates the source.
func NewLogSource() *LogSource {
	return &LogSource{}
}

// Start hooks the default logger's output. Idempotent.
func (s *LogSource) Start(handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.handler = handler
	s.prev = log.Writer()
	log.SetOutput(&logTee{source: s, original: s.prev})
	s.started = true
}

// Stop restores the previously-installed writer. Idempotent.
func (s *LogSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	log.SetOutput(s.prev)
	s.prev = nil
	s.handler = nil
	s.started = false
}

// CaptureArgs treats an explicit log call's arguments as a fault. If the
// first argument is error-shaped the fault is built from it; otherwise all
// arguments are joined into one message (strings verbatim, everything else
// best-effort-serialized) and the remaining arguments are scanned for an
// embedded error to recover its cause.
func (s *LogSource) CaptureArgs(args ...any) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler == nil || len(args) == 0 {
		return
	}

	if err, ok := args[0].(error); ok {
		handler(CapturedError{
			Message:       err.Error(),
			Name:          fmt.Sprintf("%T", err),
			Severity:      SeverityError,
			OriginalCause: err,
		})
		return
	}

	parts := make([]string, 0, len(args))
	var embedded error
	for i, arg := range args {
		switch v := arg.(type) {
		case string:
			parts = append(parts, v)
		case error:
			parts = append(parts, v.Error())
			if i > 0 && embedded == nil {
				embedded = v
			}
		default:
			if b, err := json.Marshal(v); err == nil {
				parts = append(parts, string(b))
			} else {
				parts = append(parts, fmt.Sprintf("%v", v))
			}
		}
	}

	captured := CapturedError{
		Message:  strings.Join(parts, " "),
		Name:     "ConsoleError",
		Severity: SeverityError,
	}
	if embedded != nil {
		captured.OriginalCause = embedded
	}
	handler(captured)
}

// captureLine converts one forwarded log line into a fault.
func (s *LogSource) captureLine(line string) {
	// A handler that itself logs must not recurse back in.
	if !s.capturing.CompareAndSwap(false, true) {
		return
	}
	defer s.capturing.Store(false)

	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler == nil {
		return
	}

	line = strings.TrimRight(line, "\n")
	if line == "" {
		return
	}

	handler(CapturedError{
		Message:  line,
		Name:     "LogError",
		Severity: SeverityError,
	})
}

// logTee forwards to the original writer first, then captures.
type logTee struct {
	source   *LogSource
	original io.Writer
}

func (t *logTee) Write(p []byte) (int, error) {
	var n int
	var err error
	if t.original != nil {
		n, err = t.original.Write(p)
	} else {
		n = len(p)
	}
	t.source.captureLine(string(p))
	return n, err
}
