package errorexplorer

import (
	"go.uber.org/zap"
)

// RPC provides the out-of-process submission surface: a host worker hands
// over captured errors and breadcrumbs, the plugin's pipeline does the
// scrubbing and delivery.
type RPC struct {
	plugin *Plugin
	logger *zap.Logger
}

// NewRPC creates a new RPC instance.
func NewRPC(plugin *Plugin, logger *zap.Logger) *RPC {
	return &RPC{
		plugin: plugin,
		logger: logger,
	}
}

// CaptureError submits a single captured error.
func (r *RPC) CaptureError(captured CapturedError, result *SendResult) error {
	if r.plugin.client == nil {
		*result = SendResult{Success: false, Error: "pipeline not running"}
		return nil
	}

	id := r.plugin.client.CaptureError(captured)
	if id == "" {
		*result = SendResult{Success: false, Dropped: true}
		return nil
	}

	r.logger.Debug("event queued via RPC", zap.String("event_id", id))
	*result = SendResult{Success: true, EventID: id}
	return nil
}

// CaptureBatch submits several captured errors, reporting per-event
// outcomes.
func (r *RPC) CaptureBatch(batch []CapturedError, result *[]SendResult) error {
	results := make([]SendResult, len(batch))
	for i, captured := range batch {
		if err := r.CaptureError(captured, &results[i]); err != nil {
			results[i] = SendResult{Success: false, Error: err.Error()}
		}
	}
	*result = results
	return nil
}

// AddBreadcrumb records a breadcrumb from the host worker.
func (r *RPC) AddBreadcrumb(b Breadcrumb, ok *bool) error {
	if r.plugin.client == nil {
		*ok = false
		return nil
	}
	r.plugin.client.AddBreadcrumb(b)
	*ok = true
	return nil
}
