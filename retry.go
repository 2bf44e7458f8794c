package errorexplorer

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultMaxQueueSize = 100

// RetryManager owns the bounded in-memory queue of not-yet-delivered events
// and drains it sequentially against the transport with exponential backoff
// plus jitter. Strictly one send is in flight at a time, head-first, so
// delivery attempts keep enqueue order and outbound load stays bounded.
type RetryManager struct {
	mu       sync.Mutex
	queue    []*QueuedEvent
	draining bool

	config    RetryConfig
	transport *HTTPTransport
	offline   *OfflineQueue
	monitor   *ConnectivityMonitor
	logger    *zap.Logger
	metrics   *metricsCollector

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewRetryManager creates a retry manager. The offline queue is optional;
// when present and the monitor reports the network down, enqueued events
// are proxied into it instead of the in-memory queue.
func NewRetryManager(config RetryConfig, transport *HTTPTransport, monitor *ConnectivityMonitor, logger *zap.Logger, metrics *metricsCollector) *RetryManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &RetryManager{
		config:    config,
		transport: transport,
		monitor:   monitor,
		logger:    logger,
		metrics:   metrics,
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
	}
}

// SetOfflineQueue attaches the durable overflow queue.
func (rm *RetryManager) SetOfflineQueue(q *OfflineQueue) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.offline = q
}

// Enqueue appends the event and starts draining unless a drain is already
// running. When the network is known-down the event goes to the offline
// queue instead.
func (rm *RetryManager) Enqueue(event *ErrorEvent) {
	rm.mu.Lock()
	offline := rm.offline
	rm.mu.Unlock()

	if offline != nil && rm.monitor != nil && !rm.monitor.Online() {
		offline.Enqueue(event)
		return
	}

	rm.mu.Lock()
	if len(rm.queue) >= defaultMaxQueueSize {
		rm.mu.Unlock()
		rm.logger.Warn("retry queue is full, dropping event",
			zap.String("event_id", event.ID))
		rm.metrics.IncDroppedEvents()
		return
	}
	rm.queue = append(rm.queue, &QueuedEvent{
		Event:      event,
		EnqueuedAt: rm.now(),
	})
	start := !rm.draining
	rm.draining = true
	rm.mu.Unlock()

	if start {
		rm.wg.Add(1)
		go rm.drain()
	}
}

// QueueLen reports the number of events awaiting delivery.
func (rm *RetryManager) QueueLen() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.queue)
}

// drain processes the queue head-first until it empties. The head item is
// resolved (delivered or dropped) before the next is attempted; a failed
// item stays at the head and gets a fresh, larger backoff next iteration.
func (rm *RetryManager) drain() {
	defer rm.wg.Done()

	for {
		rm.mu.Lock()
		if len(rm.queue) == 0 {
			rm.draining = false
			rm.mu.Unlock()
			return
		}
		head := rm.queue[0]
		rm.mu.Unlock()

		if head.Retries >= rm.config.MaxRetries {
			rm.logger.Debug("event exceeded max retries, dropping",
				zap.String("event_id", head.Event.ID),
				zap.Int("retries", head.Retries))
			rm.metrics.IncDroppedEvents()
			rm.dequeue()
			continue
		}

		if !rm.sleep(rm.backoffFor(head.Retries)) {
			return
		}

		switch rm.transport.Send(rm.ctx, head.Event) {
		case SendSuccess:
			rm.metrics.IncSentEvents()
			rm.dequeue()

		case SendPermanent:
			// Retrying cannot help; drop without counting an attempt.
			rm.metrics.IncDroppedEvents()
			rm.dequeue()

		case SendTransient:
			if rm.divertOffline(head) {
				continue
			}
			head.Retries++
			rm.metrics.IncRetries()
			if head.Retries >= rm.config.MaxRetries {
				rm.logger.Debug("event failed after max retries, dropping",
					zap.String("event_id", head.Event.ID),
					zap.Int("retries", head.Retries))
				rm.metrics.IncDroppedEvents()
				rm.dequeue()
			}
		}

		select {
		case <-rm.ctx.Done():
			return
		default:
		}
	}
}

// divertOffline moves the head into the durable queue when the transport
// has marked the network down, so retries stop burning attempts against a
// dead link. Returns false when no offline queue is attached or the
// network still looks up.
func (rm *RetryManager) divertOffline(head *QueuedEvent) bool {
	rm.mu.Lock()
	offline := rm.offline
	rm.mu.Unlock()

	if offline == nil || rm.monitor == nil || rm.monitor.Online() {
		return false
	}
	offline.Enqueue(head.Event)
	rm.metrics.IncOfflineEvents()
	rm.dequeue()
	return true
}

func (rm *RetryManager) dequeue() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if len(rm.queue) > 0 {
		rm.queue = rm.queue[1:]
	}
}

// backoffFor computes base * 2^retries plus random jitter, capped at the
// configured maximum.
func (rm *RetryManager) backoffFor(retries int) time.Duration {
	delay := float64(rm.config.BaseBackoff) * math.Pow(2, float64(retries))
	if max := float64(rm.config.MaxBackoff); delay > max {
		delay = max
	}
	if rm.config.MaxJitter > 0 {
		delay += rand.Float64() * float64(rm.config.MaxJitter)
	}
	return time.Duration(delay)
}

// sleep waits for the backoff delay, returning false when the manager is
// shutting down.
func (rm *RetryManager) sleep(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-rm.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close stops draining. Events still queued are abandoned; telemetry loss
// on shutdown is acceptable.
func (rm *RetryManager) Close() {
	rm.cancel()
	rm.wg.Wait()
}
