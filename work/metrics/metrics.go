package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ChecksTotal counts completed stream probes by outcome ("ok" or "fail").
var ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "streamcheck_checks_total",
	Help: "Number of completed stream probes",
}, []string{"outcome"})

// CheckDuration observes wall-clock time of individual probes including retries.
var CheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "streamcheck_check_duration_seconds",
	Help:    "Duration of stream probes",
	Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
})

// RetriesTotal counts probe retry attempts beyond the first try.
var RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "streamcheck_retries_total",
	Help: "Number of probe retries performed",
})

// BatchesTotal counts batches processed by paginated validation runs.
var BatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "streamcheck_batches_total",
	Help: "Number of batches processed",
})

// ValidationsTotal counts deep content validations by result, with coalesced
// singleflight waiters excluded.
var ValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "streamcheck_validations_total",
	Help: "Number of deep content validations",
}, []string{"result"})

// FallbacksTotal counts fallback selection runs by outcome.
var FallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "streamcheck_fallbacks_total",
	Help: "Number of fallback selection runs",
}, []string{"outcome"})

// MonitorAlerts counts degradation alerts raised by monitoring sessions.
var MonitorAlerts = promauto.NewCounter(prometheus.CounterOpts{
	Name: "streamcheck_monitor_alerts_total",
	Help: "Number of stream degradation alerts raised",
})

// ActiveSessions tracks currently active monitoring sessions.
var ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "streamcheck_active_monitor_sessions",
	Help: "Number of active monitoring sessions",
})

// CacheEvents counts hits and misses per internal cache ("uid", "result").
var CacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "streamcheck_cache_events_total",
	Help: "Cache hits and misses",
}, []string{"cache", "event"})

// DroppedEvents counts notifications discarded because the event queue was full.
var DroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
	Name: "streamcheck_dropped_events_total",
	Help: "Number of notification events dropped",
})
