// Package metrics holds the prometheus collectors shared by groupctl and groupd.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultRegistry is the registry every collector below is registered with.
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		CallAttempts, CallTotal,
		OperationTotal, OperationDuration,
		CompensationTotal, RollbackPending,
		HostUp, HostRequests,
	)
}

// CallAttempts counts single HTTP attempts by classified reply.
var CallAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "groupsync_call_attempts_total",
		Help: "HTTP attempts against hosts, by classified reply.",
	},
	[]string{"operation", "reply"},
)

// CallTotal counts per-host calls after retries, by outcome.
var CallTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "groupsync_calls_total",
		Help: "Per-host calls after retries, by outcome.",
	},
	[]string{"operation", "outcome"},
)

// OperationTotal counts multi-host operations by result.
var OperationTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "groupsync_operations_total",
		Help: "Multi-host operations, by result.",
	},
	[]string{"operation", "result"}, // succeeded | failed | refused
)

// OperationDuration is the wall time of a multi-host operation.
var OperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "groupsync_operation_duration_seconds",
		Help:    "Wall time of multi-host operations in seconds.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// CompensationTotal counts compensation passes.
var CompensationTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "groupsync_compensations_total",
		Help: "Compensation passes, by result.",
	},
	[]string{"result"}, // clean | persisted
)

// RollbackPending is 1 while a rollback record is known to be stored.
var RollbackPending = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "groupsync_rollback_pending",
		Help: "1 when an unresolved rollback record is stored.",
	},
)

// HostUp is 1 for hosts whose last health probe succeeded.
var HostUp = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "groupsync_host_up",
		Help: "1 if the last health probe of the host succeeded, else 0.",
	},
	[]string{"host"},
)

// HostRequests counts requests served by the reference host.
var HostRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "groupd_requests_total",
		Help: "Group requests served, by method and status code.",
	},
	[]string{"method", "code"},
)

// WriteTextfile dumps the registry in the node_exporter textfile format.
// The file is replaced atomically.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, DefaultRegistry)
}
