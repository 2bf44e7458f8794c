package errorexplorer

import (
	"net/http"
	"sync"
	"time"
)

const maxBreadcrumbURLLength = 200

// HTTPSource wraps the process-wide http.DefaultTransport to record a
// breadcrumb for every outbound request: method, truncated URL, host,
// status and duration. Outbound failures become warning-level breadcrumbs,
// never events. Start saves the previous RoundTripper and the wrapper
// always delegates to it, so other instrumentation layered on the same
// slot keeps working; Stop restores the exact saved reference.
type HTTPSource struct {
	mu       sync.Mutex
	ring     *BreadcrumbRing
	started  bool
	disabled bool
	prev     http.RoundTripper
	now      func() time.Time
}

// NewHTTPSource creates the source. Breadcrumbs go to the given ring.
func NewHTTPSource(ring *BreadcrumbRing) *HTTPSource {
	return &HTTPSource{ring: ring, now: time.Now}
}

// Start patches http.DefaultTransport. If patching fails (a host that
// forbids mutation of the default transport) the source degrades to a
// permanently-disabled no-op rather than panicking into the host.
// Idempotent. The handler is unused: this source never emits fatal events.
func (s *HTTPSource) Start(_ Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.disabled {
		return
	}

	defer func() {
		if recover() != nil {
			s.disabled = true
			s.started = false
		}
	}()

	s.prev = http.DefaultTransport
	http.DefaultTransport = &trackingRoundTripper{source: s, next: s.prev}
	s.started = true
}

// Stop restores the saved RoundTripper. Idempotent.
func (s *HTTPSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	http.DefaultTransport = s.prev
	s.prev = nil
	s.started = false
}

// WrapClient instruments a specific client instead of the global slot, for
// hosts that build their own clients.
func (s *HTTPSource) WrapClient(client *http.Client) {
	next := client.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	client.Transport = &trackingRoundTripper{source: s, next: next}
}

// record adds the breadcrumb for one completed (or failed) request.
func (s *HTTPSource) record(req *http.Request, status int, duration time.Duration, reqErr error) {
	url := req.URL.String()
	if len(url) > maxBreadcrumbURLLength {
		url = url[:maxBreadcrumbURLLength]
	}

	data := map[string]any{
		"method":      req.Method,
		"url":         url,
		"host":        req.URL.Host,
		"duration_ms": duration.Milliseconds(),
	}

	level := SeverityInfo
	message := req.Method + " " + url
	if reqErr != nil {
		level = SeverityWarning
		data["error"] = reqErr.Error()
	} else {
		data["status_code"] = status
		if status >= 400 {
			level = SeverityWarning
		}
	}

	s.ring.Add(Breadcrumb{
		Type:     "http",
		Category: "http.client",
		Message:  message,
		Level:    level,
		Data:     data,
	})
}

// trackingRoundTripper delegates to the saved transport first, then
// records the breadcrumb.
type trackingRoundTripper struct {
	source *HTTPSource
	next   http.RoundTripper
}

func (t *trackingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := t.source.now()
	resp, err := t.next.RoundTrip(req)
	duration := t.source.now().Sub(start)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	t.source.record(req, status, duration, err)

	return resp, err
}
