package errorexplorer

// Handler receives normalized faults from a capture source.
type Handler func(CapturedError)

// Source is an independent, restartable fault listener. Start installs the
// source's instrumentation and registers the handler; Stop removes it and
// restores whatever was installed before. Both are idempotent: a second
// Start is a no-op, as is Stop without Start. Sources that hook a global
// slot must chain to the previously-installed handler rather than replace
// it, and Stop must restore the exact saved reference.
type Source interface {
	Start(handler Handler)
	Stop()
}
