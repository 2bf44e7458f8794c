package errorexplorer

import (
	"sync"
	"time"
)

// Breadcrumb is a timestamped record of prior activity, kept to reconstruct
// the sequence of actions leading up to a fault.
type Breadcrumb struct {
	Type      string         `json:"type"`
	Category  string         `json:"category,omitempty"`
	Message   string         `json:"message,omitempty"`
	Level     Severity       `json:"level"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// BreadcrumbRing is a bounded, time-ordered log of breadcrumbs. Oldest
// entries are evicted from the front once capacity is reached; insertion
// never reorders. Safe for concurrent use.
type BreadcrumbRing struct {
	mu    sync.Mutex
	max   int
	items []Breadcrumb
	now   func() time.Time
}

// NewBreadcrumbRing creates a ring bounded to max entries. A non-positive
// max falls back to the default capacity.
func NewBreadcrumbRing(max int) *BreadcrumbRing {
	if max <= 0 {
		max = defaultMaxBreadcrumbs
	}
	return &BreadcrumbRing{
		max:   max,
		items: make([]Breadcrumb, 0, max),
		now:   time.Now,
	}
}

// Add appends a breadcrumb, stamping the capture time if the caller left
// Timestamp zero, and trims from the front when over capacity. The ring
// owns the breadcrumb after insertion.
func (r *BreadcrumbRing) Add(b Breadcrumb) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b.Timestamp.IsZero() {
		b.Timestamp = r.now()
	}
	if b.Level == "" {
		b.Level = SeverityInfo
	}
	b.Data = copyData(b.Data)

	r.items = append(r.items, b)
	if len(r.items) > r.max {
		r.items = r.items[len(r.items)-r.max:]
	}
}

// GetAll returns a copy of the ring's contents, oldest first. Mutating the
// returned slice never affects ring state.
func (r *BreadcrumbRing) GetAll() []Breadcrumb {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Breadcrumb, len(r.items))
	copy(out, r.items)
	for i := range out {
		out[i].Data = copyData(out[i].Data)
	}
	return out
}

// GetLast returns a copy of the most recent n breadcrumbs, oldest first.
func (r *BreadcrumbRing) GetLast(n int) []Breadcrumb {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 {
		return []Breadcrumb{}
	}
	if n > len(r.items) {
		n = len(r.items)
	}
	out := make([]Breadcrumb, n)
	copy(out, r.items[len(r.items)-n:])
	for i := range out {
		out[i].Data = copyData(out[i].Data)
	}
	return out
}

// copyData clones a breadcrumb's Data map so callers and the ring never
// share mutable state.
func copyData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

// Len reports the current number of breadcrumbs.
func (r *BreadcrumbRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Clear empties the ring without changing the configured capacity.
func (r *BreadcrumbRing) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = r.items[:0]
}

// Reinit resets capacity and clears content. Used when the pipeline is
// reconfigured.
func (r *BreadcrumbRing) Reinit(max int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if max <= 0 {
		max = defaultMaxBreadcrumbs
	}
	r.max = max
	r.items = make([]Breadcrumb, 0, max)
}
