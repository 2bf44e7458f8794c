package errorexplorer

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"
)

const (
	// RedactedMarker replaces values held under sensitive keys.
	RedactedMarker = "[REDACTED]"
	// DepthLimitMarker replaces subtrees deeper than maxScrubDepth.
	DepthLimitMarker = "[DeepObject]"
	// UnserializableMarker replaces values that cannot round-trip through JSON.
	UnserializableMarker = "[Unserializable]"

	maxScrubDepth = 10
)

// defaultSensitiveFields are matched against lower-cased map keys. The list
// is heuristic policy, not a security boundary; hosts extend it via
// AddFields.
var defaultSensitiveFields = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"api-key",
	"access_token",
	"refresh_token",
	"authorization",
	"auth",
	"credential",
	"credentials",
	"credit_card",
	"card_number",
	"cardnumber",
	"cvv",
	"cvc",
	"ssn",
	"social_security",
	"private_key",
	"privatekey",
	"session_id",
	"sessionid",
	"cookie",
}

// Content patterns applied to string values under non-sensitive keys.
// Matched spans are replaced, the rest of the string is kept.
var contentPatterns = []*regexp.Regexp{
	// Card-number-shaped digit runs (13-19 digits, optional separators).
	regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`),
	// prefix_<20+ alnum> API key shapes (sk_live_..., ee_..., ghp_...).
	regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9]{1,10}_[a-zA-Z0-9]{20,}\b`),
	// Bearer tokens.
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-._~+/]+=*`),
}

// Scrubber redacts sensitive fields and content patterns from arbitrary
// structured data before transmission. Scrubbing always produces new values
// and is idempotent. Safe for concurrent use.
type Scrubber struct {
	mu       sync.RWMutex
	fields   map[string]struct{}
	patterns []*regexp.Regexp
}

// NewScrubber creates a scrubber with the default sensitive-field set plus
// any extra field names from configuration.
func NewScrubber(extraFields ...string) *Scrubber {
	s := &Scrubber{
		fields:   make(map[string]struct{}, len(defaultSensitiveFields)+len(extraFields)),
		patterns: contentPatterns,
	}
	for _, f := range defaultSensitiveFields {
		s.fields[strings.ToLower(f)] = struct{}{}
	}
	s.AddFields(extraFields...)
	return s
}

// AddFields extends the sensitive-field set at runtime.
func (s *Scrubber) AddFields(fields ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range fields {
		f = strings.TrimSpace(strings.ToLower(f))
		if f != "" {
			s.fields[f] = struct{}{}
		}
	}
}

// Scrub walks an arbitrary tree of maps, slices and primitives up to a
// fixed depth, replacing values under sensitive keys wholesale and masking
// content-pattern matches inside string values. The input is never mutated.
func (s *Scrubber) Scrub(value any) any {
	return s.scrubValue(value, 0)
}

func (s *Scrubber) scrubValue(value any, depth int) any {
	if depth > maxScrubDepth {
		return DepthLimitMarker
	}

	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return s.scrubString(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			if s.isSensitiveKey(key) {
				out[key] = RedactedMarker
			} else {
				out[key] = s.scrubValue(val, depth+1)
			}
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for key, val := range v {
			if s.isSensitiveKey(key) {
				out[key] = RedactedMarker
			} else {
				out[key] = s.scrubString(val)
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.scrubValue(item, depth+1)
		}
		return out
	case []string:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = s.scrubString(item)
		}
		return out
	case bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return v
	default:
		// Structs and other composites go through a JSON round-trip so
		// nested sensitive keys are still caught. Unserializable values
		// are replaced rather than failing the whole event.
		b, err := json.Marshal(v)
		if err != nil {
			return UnserializableMarker
		}
		var generic any
		if err := json.Unmarshal(b, &generic); err != nil {
			return UnserializableMarker
		}
		return s.scrubValue(generic, depth)
	}
}

// scrubString masks content-pattern matches inside a string value.
func (s *Scrubber) scrubString(v string) string {
	for _, p := range s.patterns {
		v = p.ReplaceAllString(v, RedactedMarker)
	}
	return v
}

func (s *Scrubber) isSensitiveKey(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.fields[strings.ToLower(key)]
	return ok
}

// ScrubEvent returns a scrubbed copy of the event. The original and its
// breadcrumb snapshot are left untouched.
func (s *Scrubber) ScrubEvent(event *ErrorEvent) *ErrorEvent {
	if event == nil {
		return nil
	}

	out := *event
	out.Message = s.scrubString(event.Message)
	out.Stack = s.scrubString(event.Stack)

	if event.Tags != nil {
		out.Tags = s.scrubValue(event.Tags, 0).(map[string]string)
	}
	if event.Extra != nil {
		out.Extra = s.scrubValue(event.Extra, 0).(map[string]any)
	}
	if event.Request != nil {
		req := *event.Request
		req.URL = s.scrubString(req.URL)
		req.Query = s.scrubString(req.Query)
		if req.Headers != nil {
			req.Headers = s.scrubValue(req.Headers, 0).(map[string]string)
		}
		out.Request = &req
	}
	if event.Breadcrumbs != nil {
		crumbs := make([]Breadcrumb, len(event.Breadcrumbs))
		for i, c := range event.Breadcrumbs {
			crumbs[i] = c
			crumbs[i].Message = s.scrubString(c.Message)
			if c.Data != nil {
				crumbs[i].Data = s.scrubValue(c.Data, 0).(map[string]any)
			}
		}
		out.Breadcrumbs = crumbs
	}

	return &out
}
