package errorexplorer

import (
	"encoding/json"
	"fmt"
	"time"
)

// Severity is the severity level attached to captured errors and events.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
	SeverityNotice   Severity = "notice"
	SeverityDebug    Severity = "debug"
)

// CapturedError is the normalized fault shape produced by capture sources.
// Immutable once constructed.
type CapturedError struct {
	Message       string   `json:"message"`
	Name          string   `json:"name"`
	Stack         string   `json:"stack,omitempty"`
	Filename      string   `json:"filename,omitempty"`
	Line          int      `json:"line,omitempty"`
	Column        int      `json:"column,omitempty"`
	Severity      Severity `json:"severity"`
	OriginalCause error    `json:"-"`
}

// UserContext identifies the user active when the fault occurred.
type UserContext struct {
	ID       string `json:"id,omitempty"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	IP       string `json:"ip,omitempty"`
}

// ServerContext describes the host runtime.
type ServerContext struct {
	Hostname   string `json:"hostname,omitempty"`
	OS         string `json:"os,omitempty"`
	Arch       string `json:"arch,omitempty"`
	GoVersion  string `json:"go_version,omitempty"`
	NumCPU     int    `json:"num_cpu,omitempty"`
	Goroutines int    `json:"goroutines,omitempty"`
}

// RequestContext describes an in-flight inbound request, if any.
type RequestContext struct {
	Method  string            `json:"method,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Query   string            `json:"query,omitempty"`
	IP      string            `json:"ip,omitempty"`
}

// SessionContext is the session snapshot embedded in an event.
type SessionContext struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	PageViews int       `json:"page_views"`
}

// ProcessContext describes the current process.
type ProcessContext struct {
	PID         int   `json:"pid,omitempty"`
	UptimeMs    int64 `json:"uptime_ms,omitempty"`
	MemoryBytes int64 `json:"memory_bytes,omitempty"`
}

// SDKInfo identifies the reporting SDK.
type SDKInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ErrorEvent is the outbound payload. Once built it is treated as an
// immutable value: scrubbing produces a new event rather than mutating in
// place, so the live breadcrumb ring is never aliased.
type ErrorEvent struct {
	ID            string            `json:"event_id"`
	Message       string            `json:"message"`
	ExceptionType string            `json:"exception_type,omitempty"`
	Severity      Severity          `json:"severity"`
	Timestamp     time.Time         `json:"timestamp"`
	Project       string            `json:"project,omitempty"`
	Environment   string            `json:"environment,omitempty"`
	Release       string            `json:"release,omitempty"`
	Stack         string            `json:"stack_trace,omitempty"`
	Filename      string            `json:"file,omitempty"`
	Line          int               `json:"line,omitempty"`
	User          *UserContext      `json:"user,omitempty"`
	Server        *ServerContext    `json:"server,omitempty"`
	Request       *RequestContext   `json:"request,omitempty"`
	Session       *SessionContext   `json:"session,omitempty"`
	Process       *ProcessContext   `json:"process,omitempty"`
	Breadcrumbs   []Breadcrumb      `json:"breadcrumbs,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
	Extra         map[string]any    `json:"extra,omitempty"`
	SDK           SDKInfo           `json:"sdk"`
}

// QueuedEvent is an event held by the retry manager. Retries counts failed
// send attempts so far.
type QueuedEvent struct {
	Event      *ErrorEvent
	Retries    int
	EnqueuedAt time.Time
}

// SendResult reports the outcome of a delivery attempt. Returned through the
// RPC surface so out-of-process hosts can observe per-event outcomes.
type SendResult struct {
	Success bool   `json:"success"`
	EventID string `json:"event_id"`
	Error   string `json:"error,omitempty"`
	Dropped bool   `json:"dropped,omitempty"`
}

const (
	fallbackMessage = "Unknown error"
	fallbackName    = "UnhandledPanic"
	nilValueMessage = "Unhandled panic with nil value"
)

// messageFromValue extracts a human-readable message from an arbitrary
// recovered value. Priority: error, string, nil sentinel, the value's own
// "message" field, best-effort serialization, fixed fallback.
func messageFromValue(v any) string {
	switch val := v.(type) {
	case nil:
		return nilValueMessage
	case error:
		return val.Error()
	case string:
		return val
	}

	if m, ok := messageField(v); ok {
		return m
	}
	if b, err := json.Marshal(v); err == nil {
		if s := string(b); s != "{}" && s != "null" && s != "" {
			return s
		}
	}
	if s := fmt.Sprintf("%v", v); s != "" {
		return s
	}
	return fallbackMessage
}

// nameFromValue mirrors messageFromValue's priority order for the error
// classification label.
func nameFromValue(v any) string {
	switch val := v.(type) {
	case nil:
		return fallbackName
	case error:
		return fmt.Sprintf("%T", val)
	case string:
		return fallbackName
	}

	if n, ok := nameField(v); ok {
		return n
	}
	return fmt.Sprintf("%T", v)
}

func messageField(v any) (string, bool) {
	switch m := v.(type) {
	case map[string]any:
		if msg, ok := m["message"].(string); ok && msg != "" {
			return msg, true
		}
	case map[string]string:
		if msg, ok := m["message"]; ok && msg != "" {
			return msg, true
		}
	}
	return "", false
}

func nameField(v any) (string, bool) {
	if m, ok := v.(map[string]any); ok {
		if n, ok := m["name"].(string); ok && n != "" {
			return n, true
		}
	}
	return "", false
}
