package errorexplorer

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "error_explorer"

// metricsCollector implements prometheus.Collector for pipeline counters.
type metricsCollector struct {
	// Atomic counters for thread-safe metric updates
	sentEvents        *uint64 // Events accepted by the collector
	droppedEvents     *uint64 // Events dropped (retry cap, full queue, 4xx)
	rateLimitedEvents *uint64 // Events rejected by the client-side limiter
	offlineEvents     *uint64 // Events diverted to the offline queue
	totalRetries      *uint64 // Individual failed attempts that were retried

	sentEventsDesc        *prometheus.Desc
	droppedEventsDesc     *prometheus.Desc
	rateLimitedEventsDesc *prometheus.Desc
	offlineEventsDesc     *prometheus.Desc
	totalRetriesDesc      *prometheus.Desc

	// Vector metric for events by severity
	eventsBySeverity *prometheus.CounterVec
}

func newMetricsCollector() *metricsCollector {
	return &metricsCollector{
		sentEvents:        ptrTo(uint64(0)),
		droppedEvents:     ptrTo(uint64(0)),
		rateLimitedEvents: ptrTo(uint64(0)),
		offlineEvents:     ptrTo(uint64(0)),
		totalRetries:      ptrTo(uint64(0)),

		sentEventsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "sent_events_total"),
			"Total number of events accepted by the collector",
			nil, nil),

		droppedEventsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "dropped_events_total"),
			"Total number of events dropped after retries or rejection",
			nil, nil),

		rateLimitedEventsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "rate_limited_events_total"),
			"Total number of events rejected by the client-side rate limiter",
			nil, nil),

		offlineEventsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "offline_queued_events_total"),
			"Total number of events diverted to the offline queue",
			nil, nil),

		totalRetriesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "retries_total"),
			"Total number of retried delivery attempts",
			nil, nil),

		eventsBySeverity: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prometheus.BuildFQName(metricsNamespace, "", "events_by_severity_total"),
				Help: "Total number of captured events by severity",
			},
			[]string{"severity"}),
	}
}

// Public methods for updating metrics (called from business logic)

func (mc *metricsCollector) IncSentEvents() {
	atomic.AddUint64(mc.sentEvents, 1)
}

func (mc *metricsCollector) IncDroppedEvents() {
	atomic.AddUint64(mc.droppedEvents, 1)
}

func (mc *metricsCollector) IncRateLimitedEvents() {
	atomic.AddUint64(mc.rateLimitedEvents, 1)
}

func (mc *metricsCollector) IncOfflineEvents() {
	atomic.AddUint64(mc.offlineEvents, 1)
}

func (mc *metricsCollector) IncRetries() {
	atomic.AddUint64(mc.totalRetries, 1)
}

func (mc *metricsCollector) IncEventsBySeverity(severity Severity) {
	mc.eventsBySeverity.WithLabelValues(string(severity)).Inc()
}

// Implement prometheus.Collector interface

func (mc *metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- mc.sentEventsDesc
	ch <- mc.droppedEventsDesc
	ch <- mc.rateLimitedEventsDesc
	ch <- mc.offlineEventsDesc
	ch <- mc.totalRetriesDesc

	mc.eventsBySeverity.Describe(ch)
}

func (mc *metricsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(
		mc.sentEventsDesc,
		prometheus.CounterValue,
		float64(atomic.LoadUint64(mc.sentEvents)))

	ch <- prometheus.MustNewConstMetric(
		mc.droppedEventsDesc,
		prometheus.CounterValue,
		float64(atomic.LoadUint64(mc.droppedEvents)))

	ch <- prometheus.MustNewConstMetric(
		mc.rateLimitedEventsDesc,
		prometheus.CounterValue,
		float64(atomic.LoadUint64(mc.rateLimitedEvents)))

	ch <- prometheus.MustNewConstMetric(
		mc.offlineEventsDesc,
		prometheus.CounterValue,
		float64(atomic.LoadUint64(mc.offlineEvents)))

	ch <- prometheus.MustNewConstMetric(
		mc.totalRetriesDesc,
		prometheus.CounterValue,
		float64(atomic.LoadUint64(mc.totalRetries)))

	mc.eventsBySeverity.Collect(ch)
}

// Helper function for pointer creation
func ptrTo[T any](v T) *T {
	return &v
}
