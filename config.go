package errorexplorer

import (
	"fmt"
	"net/url"
	"time"
)

const (
	sdkName    = "error-explorer-go"
	sdkVersion = "1.0.0"

	defaultMaxBreadcrumbs    = 30
	defaultMaxRetries        = 3
	defaultBaseBackoff       = 500 * time.Millisecond
	defaultMaxBackoff        = 30 * time.Second
	defaultMaxJitter         = time.Second
	defaultTimeout           = 10 * time.Second
	defaultOfflineMaxSize    = 50
	defaultRateLimitRequests = 10
	defaultRateLimitWindow   = 60 * time.Second
	defaultSessionTimeout    = 30 * time.Minute
)

// Config is the resolved SDK configuration handed to the pipeline.
type Config struct {
	// Collector endpoint URL (http/https).
	Endpoint string `mapstructure:"endpoint"`
	// Project auth token, sent on every request.
	Token string `mapstructure:"token"`
	// Project slug on the collector side.
	Project string `mapstructure:"project"`
	// Deployment environment (production, staging, ...).
	Environment string `mapstructure:"environment"`
	// Release identifier attached to events.
	Release string `mapstructure:"release"`
	// Optional HMAC secret; when set, requests carry signature headers.
	HMACSecret string `mapstructure:"hmac_secret"`
	// Debug surfaces pipeline diagnostics to the local logger.
	Debug bool `mapstructure:"debug"`

	// Breadcrumb ring capacity.
	MaxBreadcrumbs int `mapstructure:"max_breadcrumbs"`

	Transport TransportConfig `mapstructure:"transport"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Offline   OfflineConfig   `mapstructure:"offline"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Scrub     ScrubConfig     `mapstructure:"scrub"`
	Session   SessionConfig   `mapstructure:"session"`
}

// TransportConfig contains HTTP delivery settings.
type TransportConfig struct {
	// Confirmable request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// Enable gzip compression of request bodies.
	Compression bool `mapstructure:"compression"`
	// TLS certificate verification.
	SSLVerify bool `mapstructure:"ssl_verify"`
	// Optional outbound proxy URL.
	Proxy string `mapstructure:"proxy"`
}

// RetryConfig contains retry-with-backoff settings.
type RetryConfig struct {
	// Failed send attempts before an event is dropped.
	MaxRetries int `mapstructure:"max_retries"`
	// Base delay; actual delay is base * 2^retries plus jitter.
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	// Upper bound on any single backoff delay.
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
	// Upper bound on the random jitter added to each delay.
	MaxJitter time.Duration `mapstructure:"max_jitter"`
}

// OfflineConfig contains durable overflow queue settings.
type OfflineConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Maximum persisted events; older entries are evicted first.
	MaxSize int `mapstructure:"max_size"`
	// Path of the file-backed store. Ignored when a custom Store is set.
	Path string `mapstructure:"path"`
}

// RateLimitConfig contains client-side sliding-window throttle settings.
type RateLimitConfig struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

// CaptureConfig toggles the automatic capture sources.
type CaptureConfig struct {
	Panics       bool `mapstructure:"panics"`
	Goroutines   bool `mapstructure:"goroutines"`
	Logs         bool `mapstructure:"logs"`
	OutboundHTTP bool `mapstructure:"outbound_http"`
}

// ScrubConfig extends the data scrubber.
type ScrubConfig struct {
	// Extra field names redacted in addition to the built-in set.
	ExtraFields []string `mapstructure:"extra_fields"`
}

// SessionConfig controls session tracking.
type SessionConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Inactivity timeout after which a new session id is issued.
	Timeout time.Duration `mapstructure:"timeout"`
}

// InitDefaults initializes default configuration values.
func (cfg *Config) InitDefaults() {
	if cfg.MaxBreadcrumbs <= 0 {
		cfg.MaxBreadcrumbs = defaultMaxBreadcrumbs
	}
	if cfg.Transport.Timeout <= 0 {
		cfg.Transport.Timeout = defaultTimeout
	}
	if !cfg.Transport.Compression {
		cfg.Transport.Compression = true
	}
	if !cfg.Transport.SSLVerify {
		cfg.Transport.SSLVerify = true
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry.MaxRetries = defaultMaxRetries
	}
	if cfg.Retry.BaseBackoff <= 0 {
		cfg.Retry.BaseBackoff = defaultBaseBackoff
	}
	if cfg.Retry.MaxBackoff <= 0 {
		cfg.Retry.MaxBackoff = defaultMaxBackoff
	}
	if cfg.Retry.MaxJitter <= 0 {
		cfg.Retry.MaxJitter = defaultMaxJitter
	}
	if cfg.Offline.MaxSize <= 0 {
		cfg.Offline.MaxSize = defaultOfflineMaxSize
	}
	if cfg.RateLimit.MaxRequests <= 0 {
		cfg.RateLimit.MaxRequests = defaultRateLimitRequests
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = defaultRateLimitWindow
	}
	if cfg.Session.Timeout <= 0 {
		cfg.Session.Timeout = defaultSessionTimeout
	}
}

// Validate checks that the configuration can actually reach a collector.
func (cfg *Config) Validate() error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}

	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("the %q endpoint is invalid: %w", cfg.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("the scheme of the %q endpoint must be either \"http\" or \"https\"", cfg.Endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("the %q endpoint must contain a host", cfg.Endpoint)
	}

	if cfg.Token == "" {
		return fmt.Errorf("token is required")
	}

	if cfg.Transport.Proxy != "" {
		if _, err := url.Parse(cfg.Transport.Proxy); err != nil {
			return fmt.Errorf("invalid proxy URL: %w", err)
		}
	}

	return nil
}
