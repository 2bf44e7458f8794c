package errorexplorer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Client is the pipeline instance: capture, enrichment, scrubbing, rate
// limiting and durable delivery hang off one Client. There are no ambient
// globals; hosts that want several pipelines create several clients.
//
// No public operation ever panics or returns an error into the host's call
// stack; a broken pipeline drops telemetry, never the host.
type Client struct {
	config    *Config
	logger    *zap.Logger
	ring      *BreadcrumbRing
	scrubber  *Scrubber
	limiter   *RateLimiter
	transport *HTTPTransport
	retryMgr  *RetryManager
	offline   *OfflineQueue
	monitor   *ConnectivityMonitor
	sessions  *SessionManager
	metrics   *metricsCollector

	panics     *PanicSource
	goroutines *GoroutineSource
	logs       *LogSource
	outbound   *HTTPSource

	mu        sync.RWMutex
	user      *UserContext
	tags      map[string]string
	extra     map[string]any
	closeOnce sync.Once

	startedAt time.Time
}

// NewClient builds a pipeline from resolved configuration. The logger is
// the debug surface; pass zap.NewNop() to silence diagnostics entirely.
func NewClient(config *Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.InitDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	transport, err := NewHTTPTransport(config, logger)
	if err != nil {
		return nil, err
	}

	metrics := newMetricsCollector()
	monitor := NewConnectivityMonitor(config.Endpoint, logger)
	transport.SetMonitor(monitor)
	ring := NewBreadcrumbRing(config.MaxBreadcrumbs)

	c := &Client{
		config:    config,
		logger:    logger,
		ring:      ring,
		scrubber:  NewScrubber(config.Scrub.ExtraFields...),
		limiter:   NewRateLimiter(config.RateLimit.MaxRequests, config.RateLimit.Window, logger),
		transport: transport,
		monitor:   monitor,
		metrics:   metrics,
		sessions:  NewSessionManager(config.Session.Timeout),
		tags:      make(map[string]string),
		extra:     make(map[string]any),
		startedAt: time.Now(),

		panics:     NewPanicSource(),
		goroutines: NewGoroutineSource(),
		logs:       NewLogSource(),
	}
	c.outbound = NewHTTPSource(ring)

	c.retryMgr = NewRetryManager(config.Retry, transport, monitor, logger, metrics)

	if config.Offline.Enabled {
		path := config.Offline.Path
		if path == "" {
			path = defaultOfflinePath()
		}
		c.offline = NewOfflineQueue(config.Offline.MaxSize, NewFileStore(path), monitor, logger)
		c.offline.SetSender(func(ctx context.Context, body json.RawMessage) bool {
			return transport.SendSerialized(ctx, "", body) == SendSuccess
		})
		c.retryMgr.SetOfflineQueue(c.offline)
	}

	c.startSources()

	logger.Info("error explorer client initialized",
		zap.String("project", config.Project),
		zap.String("environment", config.Environment),
		zap.Bool("signing", config.HMACSecret != ""),
		zap.Bool("offline", config.Offline.Enabled))

	return c, nil
}

// SetOfflineStore swaps the persistence collaborator. Must be called
// before any events are captured.
func (c *Client) SetOfflineStore(store Store) {
	if !c.config.Offline.Enabled {
		return
	}
	if c.offline != nil {
		c.offline.Close()
	}
	c.offline = NewOfflineQueue(c.config.Offline.MaxSize, store, c.monitor, c.logger)
	c.offline.SetSender(func(ctx context.Context, body json.RawMessage) bool {
		return c.transport.SendSerialized(ctx, "", body) == SendSuccess
	})
	c.retryMgr.SetOfflineQueue(c.offline)
}

func (c *Client) startSources() {
	handler := func(captured CapturedError) {
		c.CaptureError(captured)
	}
	if c.config.Capture.Panics {
		c.panics.Start(handler)
	}
	if c.config.Capture.Goroutines {
		c.goroutines.Start(handler)
	}
	if c.config.Capture.Logs {
		c.logs.Start(handler)
	}
	if c.config.Capture.OutboundHTTP {
		c.outbound.Start(nil)
	}
}

// Panics exposes the panic capture source (for defer client.Panics().Recover()).
func (c *Client) Panics() *PanicSource { return c.panics }

// Goroutines exposes the goroutine capture source.
func (c *Client) Goroutines() *GoroutineSource { return c.goroutines }

// Logs exposes the diagnostic-log capture source.
func (c *Client) Logs() *LogSource { return c.logs }

// Outbound exposes the outbound-request tracking source.
func (c *Client) Outbound() *HTTPSource { return c.outbound }

// Connectivity exposes the connectivity monitor so hosts can feed their own
// online/offline signal.
func (c *Client) Connectivity() *ConnectivityMonitor { return c.monitor }

// MetricsCollector returns the prometheus collector for registration in the
// host's registry.
func (c *Client) MetricsCollector() prometheus.Collector { return c.metrics }

// CaptureContext carries identity and metadata that applies to a single
// capture call only. Tags and Extra merge over the client-wide values and
// win on key collision; a non-nil User replaces the client-wide user for
// that event.
type CaptureContext struct {
	User  *UserContext
	Tags  map[string]string
	Extra map[string]any
}

// CaptureException reports an error you caught yourself.
func (c *Client) CaptureException(err error, contexts ...CaptureContext) string {
	if err == nil {
		return ""
	}
	return c.CaptureError(CapturedError{
		Message:       err.Error(),
		Name:          nameFromValue(err),
		Severity:      SeverityError,
		OriginalCause: err,
	}, contexts...)
}

// CaptureMessage reports a plain message at the given severity.
func (c *Client) CaptureMessage(message string, severity Severity, contexts ...CaptureContext) string {
	if severity == "" {
		severity = SeverityInfo
	}
	return c.CaptureError(CapturedError{
		Message:  message,
		Name:     "Message",
		Severity: severity,
	}, contexts...)
}

// CaptureError runs a normalized fault through the pipeline: build the
// event, scrub it, consult the rate limiter, hand off for delivery.
// Returns the event id, or "" when the event was not admitted.
func (c *Client) CaptureError(captured CapturedError, contexts ...CaptureContext) (eventID string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("capture pipeline panicked", zap.Any("recovered", r))
			eventID = ""
		}
	}()

	event := c.buildEvent(captured, contexts...)
	c.metrics.IncEventsBySeverity(event.Severity)

	event = c.scrubber.ScrubEvent(event)

	if !c.limiter.IsAllowed() {
		c.metrics.IncRateLimitedEvents()
		c.logger.Debug("event rejected by client-side rate limit",
			zap.String("event_id", event.ID))
		return ""
	}

	if c.offline != nil && !c.monitor.Online() {
		c.metrics.IncOfflineEvents()
	}
	c.retryMgr.Enqueue(event)
	return event.ID
}

// AddBreadcrumb records activity leading up to a potential fault.
func (c *Client) AddBreadcrumb(b Breadcrumb) {
	c.ring.Add(b)
}

// SetUser attaches user identity to subsequent events.
func (c *Client) SetUser(user UserContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = &user
}

// SetTags merges tags into the set attached to subsequent events.
func (c *Client) SetTags(tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range tags {
		c.tags[k] = v
	}
}

// SetExtra merges extra data into subsequent events.
func (c *Client) SetExtra(extra map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range extra {
		c.extra[k] = v
	}
}

// buildEvent assembles the outbound payload: identity, contexts, and a
// snapshot copy of the breadcrumb ring at capture time. Per-capture
// contexts layer over the client-wide values.
func (c *Client) buildEvent(captured CapturedError, contexts ...CaptureContext) *ErrorEvent {
	c.mu.RLock()
	user := c.user
	tags := make(map[string]string, len(c.tags))
	for k, v := range c.tags {
		tags[k] = v
	}
	extra := make(map[string]any, len(c.extra))
	for k, v := range c.extra {
		extra[k] = v
	}
	c.mu.RUnlock()

	for _, cc := range contexts {
		if cc.User != nil {
			u := *cc.User
			user = &u
		}
		for k, v := range cc.Tags {
			tags[k] = v
		}
		for k, v := range cc.Extra {
			extra[k] = v
		}
	}

	severity := captured.Severity
	if severity == "" {
		severity = SeverityError
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	hostname, _ := os.Hostname()

	event := &ErrorEvent{
		ID:            uuid.NewString(),
		Message:       captured.Message,
		ExceptionType: captured.Name,
		Severity:      severity,
		Timestamp:     time.Now(),
		Project:       c.config.Project,
		Environment:   c.config.Environment,
		Release:       c.config.Release,
		Stack:         captured.Stack,
		Filename:      captured.Filename,
		Line:          captured.Line,
		User:          user,
		Breadcrumbs:   c.ring.GetAll(),
		Tags:          tags,
		Extra:         extra,
		Server: &ServerContext{
			Hostname:   hostname,
			OS:         runtime.GOOS,
			Arch:       runtime.GOARCH,
			GoVersion:  runtime.Version(),
			NumCPU:     runtime.NumCPU(),
			Goroutines: runtime.NumGoroutine(),
		},
		Process: &ProcessContext{
			PID:         os.Getpid(),
			UptimeMs:    time.Since(c.startedAt).Milliseconds(),
			MemoryBytes: int64(memStats.Alloc),
		},
		SDK: SDKInfo{Name: sdkName, Version: sdkVersion},
	}

	if c.config.Session.Enabled {
		s := c.sessions.Current()
		event.Session = &SessionContext{
			ID:        s.ID,
			StartedAt: s.StartedAt,
			PageViews: s.PageViews,
		}
	}

	return event
}

// Flush blocks until the in-memory retry queue drains or the context
// expires, and triggers an offline flush when connectivity allows.
func (c *Client) Flush(ctx context.Context) {
	if c.offline != nil {
		c.offline.Flush(ctx)
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if c.retryMgr.QueueLen() == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close stops the capture sources (restoring whatever they hooked), halts
// delivery and releases resources. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.panics.Stop()
		c.goroutines.Stop()
		c.logs.Stop()
		c.outbound.Stop()

		if c.offline != nil {
			c.offline.Close()
		}
		c.retryMgr.Close()
		c.monitor.Close()
		_ = c.transport.Close()

		c.logger.Info("error explorer client closed")
	})
}

func defaultOfflinePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "error-explorer", "offline-queue.json")
}
