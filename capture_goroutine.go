package errorexplorer

import (
	"runtime/debug"
	"sync"
)

// GoroutineSource captures panics escaping from goroutines spawned through
// its Go wrapper, the Go shape of an unhandled-rejection hook. The
// recovered value may be an error, a string, nil, or any other value;
// message and name extraction follow a fixed priority order over that
// variant.
type GoroutineSource struct {
	mu      sync.Mutex
	handler Handler
	started bool
}

// NewGoroutineSource creates the source.
func NewGoroutineSource() *GoroutineSource {
	return &GoroutineSource{}
}

// Start registers the handler. Idempotent.
func (s *GoroutineSource) Start(handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.handler = handler
	s.started = true
}

// Stop deregisters the handler. Idempotent.
func (s *GoroutineSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = nil
	s.started = false
}

// Go spawns fn on a new goroutine behind a recover barrier. A panic is
// captured and swallowed; the goroutine never takes down the host.
func (s *GoroutineSource) Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.capture(r, string(debug.Stack()))
			}
		}()
		fn()
	}()
}

// GoErr spawns fn and captures both panics and returned errors.
func (s *GoroutineSource) GoErr(fn func() error) {
	s.Go(func() {
		if err := fn(); err != nil {
			s.capture(err, "")
		}
	})
}

func (s *GoroutineSource) capture(recovered any, stack string) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler == nil {
		return
	}

	captured := CapturedError{
		Message:  messageFromValue(recovered),
		Name:     nameFromValue(recovered),
		Stack:    stack,
		Severity: SeverityError,
	}
	if err, ok := recovered.(error); ok {
		captured.OriginalCause = err
	}

	handler(captured)
}
