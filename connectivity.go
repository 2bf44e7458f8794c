package errorexplorer

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ProbeFunc checks whether the collector is reachable.
type ProbeFunc func(ctx context.Context) error

// ConnectivityMonitor is the pipeline's connectivity oracle. Transports
// mark it down on connection failures; while down, a background probe
// retries with exponential backoff until the collector answers again, then
// fires the registered restore callbacks (the offline queue's flush).
type ConnectivityMonitor struct {
	mu        sync.Mutex
	online    bool
	probing   bool
	listeners map[int]func()
	nextID    int
	probe     ProbeFunc
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewConnectivityMonitor creates a monitor that probes the given endpoint.
// The monitor starts in the online state.
func NewConnectivityMonitor(endpoint string, logger *zap.Logger) *ConnectivityMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &ConnectivityMonitor{
		online:    true,
		listeners: make(map[int]func()),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
	m.probe = func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
	return m
}

// SetProbe replaces the reachability check. Useful for hosts with their own
// connectivity signal.
func (m *ConnectivityMonitor) SetProbe(probe ProbeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probe = probe
}

// Online reports the last known connectivity state.
func (m *ConnectivityMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// MarkDown records that the network is known-down and starts the probe
// loop if one is not already running.
func (m *ConnectivityMonitor) MarkDown() {
	m.mu.Lock()
	if !m.online {
		startProbe := !m.probing
		m.probing = m.probing || startProbe
		m.mu.Unlock()
		if startProbe {
			m.startProbeLoop()
		}
		return
	}
	m.online = false
	startProbe := !m.probing
	m.probing = true
	m.mu.Unlock()

	m.logger.Warn("connectivity lost, events will be queued offline")
	if startProbe {
		m.startProbeLoop()
	}
}

// MarkUp records restored connectivity and fires the restore callbacks.
func (m *ConnectivityMonitor) MarkUp() {
	m.mu.Lock()
	if m.online {
		m.mu.Unlock()
		return
	}
	m.online = true
	callbacks := make([]func(), 0, len(m.listeners))
	for _, fn := range m.listeners {
		callbacks = append(callbacks, fn)
	}
	m.mu.Unlock()

	m.logger.Info("connectivity restored")
	for _, fn := range callbacks {
		fn()
	}
}

// OnRestore registers a callback fired when connectivity returns. The
// returned function detaches the listener.
func (m *ConnectivityMonitor) OnRestore(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// startProbeLoop retries the probe with exponential backoff until it
// succeeds or the monitor is closed.
func (m *ConnectivityMonitor) startProbeLoop() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			m.probing = false
			m.mu.Unlock()
		}()

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = time.Second
		policy.MaxInterval = time.Minute
		policy.MaxElapsedTime = 0

		err := backoff.Retry(func() error {
			m.mu.Lock()
			probe := m.probe
			m.mu.Unlock()

			probeCtx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
			defer cancel()
			if err := probe(probeCtx); err != nil {
				m.logger.Debug("connectivity probe failed", zap.Error(err))
				return err
			}
			return nil
		}, backoff.WithContext(policy, m.ctx))

		if err == nil {
			m.MarkUp()
		}
	}()
}

// Close stops the probe loop and drops all listeners.
func (m *ConnectivityMonitor) Close() {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = make(map[int]func())
}
