package errorexplorer

import (
	"runtime/debug"
	"sync"
)

// PanicSource captures panics at explicit call sites. Go has no global
// panic hook, so the runtime's "uncaught error" signal is exposed as a
// deferred Recover helper and a function wrapper instead of a patched
// global slot.
type PanicSource struct {
	mu      sync.Mutex
	handler Handler
	started bool

	// Repanic re-raises after capture, preserving crash semantics for
	// hosts that want the default handling to continue.
	Repanic bool
}

// NewPanicSource creates the source.
func NewPanicSource() *PanicSource {
	return &PanicSource{}
}

// Start registers the handler. Idempotent.
func (s *PanicSource) Start(handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.handler = handler
	s.started = true
}

// Stop deregisters the handler. Idempotent.
func (s *PanicSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = nil
	s.started = false
}

// Recover captures an in-flight panic. Use in a defer:
//
//	defer source.Recover()
//
// Returns the recovered value so callers can convert it to an error. When
// Repanic is set the panic is re-raised after capture so default handling
// continues.
func (s *PanicSource) Recover() any {
	r := recover()
	if r == nil {
		return nil
	}
	s.capture(r, string(debug.Stack()))
	if s.Repanic {
		panic(r)
	}
	return r
}

// WrapFunc runs fn with panic capture installed.
func (s *PanicSource) WrapFunc(fn func()) {
	defer s.Recover()
	fn()
}

// capture normalizes the recovered value. When it is a true error its
// message and type are preferred over raw text.
func (s *PanicSource) capture(recovered any, stack string) {
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
		Severity: SeverityCritical,
	}
	if err, ok := recovered.(error); ok {
		captured.OriginalCause = err
	}

	handler(captured)
}
