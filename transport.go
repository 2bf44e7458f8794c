package errorexplorer

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// TokenHeader carries the project auth token on every request.
const TokenHeader = "X-Error-Token"

// Outcome classifies a delivery attempt for the retry manager.
type Outcome int

const (
	// SendSuccess means the collector accepted the event.
	SendSuccess Outcome = iota
	// SendTransient means the attempt failed but is worth retrying
	// (timeout, connection error, 5xx, 429).
	SendTransient
	// SendPermanent means the collector rejected the event and a retry
	// cannot help (4xx other than 429).
	SendPermanent
)

// BeaconFunc is an optional fire-and-forget primary channel. It must not
// block and is expected to succeed even during process teardown. It cannot
// carry headers, so it is skipped whenever request signing is configured.
type BeaconFunc func(endpoint string, body []byte) bool

// HTTPTransport delivers serialized events to the collector. It never
// panics or returns errors past this boundary; every attempt resolves to
// an Outcome.
type HTTPTransport struct {
	config  *Config
	client  *http.Client
	signer  *Signer
	beacon  BeaconFunc
	monitor *ConnectivityMonitor
	logger  *zap.Logger
}

// NewHTTPTransport creates a transport from resolved configuration. A
// signer is attached when an HMAC secret is configured.
func NewHTTPTransport(config *Config, logger *zap.Logger) (*HTTPTransport, error) {
	httpTransport := &http.Transport{
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !config.Transport.SSLVerify,
		},
	}

	if config.Transport.Proxy != "" {
		proxyURL, err := url.Parse(config.Transport.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		httpTransport.Proxy = http.ProxyURL(proxyURL)
	}

	t := &HTTPTransport{
		config: config,
		client: &http.Client{Transport: httpTransport},
		logger: logger,
	}

	if config.HMACSecret != "" {
		t.signer = NewSigner(config.HMACSecret)
	}

	return t, nil
}

// SetBeacon installs a host-provided fire-and-forget channel.
func (t *HTTPTransport) SetBeacon(beacon BeaconFunc) {
	t.beacon = beacon
}

// SetMonitor attaches the connectivity oracle. Connection-level failures
// mark it down; confirmed deliveries mark it up.
func (t *HTTPTransport) SetMonitor(monitor *ConnectivityMonitor) {
	t.monitor = monitor
}

// Signer returns the configured signer, or nil when signing is disabled.
func (t *HTTPTransport) Signer() *Signer {
	return t.signer
}

// Send serializes the event once and attempts delivery. When no signer is
// configured the beacon channel is tried first; the confirmable HTTP path
// is the fallback (and the only path when signing, since the beacon cannot
// carry the signature headers).
func (t *HTTPTransport) Send(ctx context.Context, event *ErrorEvent) Outcome {
	body, err := json.Marshal(event)
	if err != nil {
		t.logger.Error("failed to serialize event",
			zap.String("event_id", event.ID),
			zap.Error(err))
		return SendPermanent
	}
	return t.SendSerialized(ctx, event.ID, body)
}

// SendSerialized delivers an already-serialized event body. Used by the
// offline queue, which persists events in wire form.
func (t *HTTPTransport) SendSerialized(ctx context.Context, eventID string, body []byte) Outcome {
	if t.signer == nil && t.beacon != nil {
		if t.tryBeacon(eventID, body) {
			return SendSuccess
		}
	}
	return t.sendHTTP(ctx, eventID, body)
}

// tryBeacon attempts the fire-and-forget channel, absorbing any panic from
// the host-provided function.
func (t *HTTPTransport) tryBeacon(eventID string, body []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Debug("beacon channel panicked",
				zap.String("event_id", eventID),
				zap.Any("recovered", r))
			ok = false
		}
	}()
	return t.beacon(t.config.Endpoint, body)
}

// sendHTTP performs the confirmable request with an explicit timeout and a
// cancellation signal tied to it. A cancelled or timed-out attempt is a
// transient failure, never re-raised.
func (t *HTTPTransport) sendHTTP(ctx context.Context, eventID string, body []byte) Outcome {
	ctx, cancel := context.WithTimeout(ctx, t.config.Transport.Timeout)
	defer cancel()

	req, err := t.createRequest(ctx, body)
	if err != nil {
		t.logger.Error("failed to create request",
			zap.String("event_id", eventID),
			zap.Error(err))
		return SendPermanent
	}

	resp, err := t.client.Do(req)
	if err != nil {
		// Timeouts and connection failures land here.
		t.logger.Warn("HTTP request failed",
			zap.String("event_id", eventID),
			zap.Error(err))
		if t.monitor != nil {
			t.monitor.MarkDown()
		}
		return SendTransient
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		t.logger.Debug("failed to read response body",
			zap.String("event_id", eventID),
			zap.Error(err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		t.logger.Debug("event sent",
			zap.String("event_id", eventID),
			zap.Int("status_code", resp.StatusCode))
		if t.monitor != nil {
			t.monitor.MarkUp()
		}
		return SendSuccess

	case resp.StatusCode == http.StatusTooManyRequests:
		t.logger.Warn("rate limited by collector",
			zap.String("event_id", eventID),
			zap.Duration("retry_after", retryAfterHint(resp.Header)))
		return SendTransient

	case resp.StatusCode >= 500:
		t.logger.Warn("collector error",
			zap.String("event_id", eventID),
			zap.Int("status_code", resp.StatusCode))
		return SendTransient

	default:
		// Other 4xx: the event itself is unacceptable, retrying cannot help.
		if t.config.Debug {
			t.logger.Error("event rejected",
				zap.String("event_id", eventID),
				zap.Int("status_code", resp.StatusCode),
				zap.ByteString("response", respBody))
		}
		return SendPermanent
	}
}

// createRequest builds the POST with the wire-contract headers: JSON
// content type, the auth token, signature headers when signing is enabled,
// and optional gzip compression.
func (t *HTTPTransport) createRequest(ctx context.Context, payload []byte) (*http.Request, error) {
	var body io.Reader = bytes.NewReader(payload)
	contentEncoding := ""

	if t.config.Transport.Compression {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(payload); err != nil {
			return nil, fmt.Errorf("failed to compress payload: %w", err)
		}
		if err := gz.Close(); err != nil {
			return nil, fmt.Errorf("failed to close gzip writer: %w", err)
		}
		body = &buf
		contentEncoding = "gzip"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", sdkName+"/"+sdkVersion)
	req.Header.Set(TokenHeader, t.config.Token)

	if contentEncoding != "" {
		req.Header.Set("Content-Encoding", contentEncoding)
	}

	// Signature covers the uncompressed body: "{timestamp}.{payload}".
	if t.signer != nil {
		for k, v := range t.signer.BuildHeaders(payload) {
			req.Header.Set(k, v)
		}
	}

	return req, nil
}

// Close releases idle connections.
func (t *HTTPTransport) Close() error {
	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	return nil
}

// retryAfterHint parses a Retry-After header for diagnostics. The value is
// logged only; server-imposed delays surface as transient failures and go
// through the normal backoff.
func retryAfterHint(headers http.Header) time.Duration {
	raw := headers.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if at, err := time.Parse(time.RFC1123, raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
