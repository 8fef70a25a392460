package coordinator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/groupsync/internal/cluster"
	"github.com/dreamware/groupsync/internal/metrics"
)

const maxParallelProbes = 16

// HostHealth is the result of probing one host.
type HostHealth struct {
	Err     error
	Host    cluster.Host
	Latency time.Duration
}

// Healthy reports whether the probe succeeded.
func (h HostHealth) Healthy() bool { return h.Err == nil }

// HealthChecker probes the /health endpoint of every host in parallel.
// It is a preflight aid only: the coordinator never skips a host because
// a probe failed.
type HealthChecker struct {
	checkFunc func(ctx context.Context, host cluster.Host) error
	timeout   time.Duration
}

// NewHealthChecker returns a checker whose probes are bounded by timeout.
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	client := cluster.NewClient(timeout)
	return &HealthChecker{checkFunc: client.Health, timeout: timeout}
}

// SetCheckFunction replaces the probe. Tests use it to fake host replies.
func (h *HealthChecker) SetCheckFunction(fn func(ctx context.Context, host cluster.Host) error) {
	h.checkFunc = fn
}

// Check probes hosts concurrently, at most maxParallelProbes at a time, and
// returns results in host order.
func (h *HealthChecker) Check(ctx context.Context, hosts []cluster.Host) []HostHealth {
	results := make([]HostHealth, len(hosts))
	var g errgroup.Group
	g.SetLimit(maxParallelProbes)
	for i, host := range hosts {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			start := time.Now()
			err := h.checkFunc(ctx, host)
			results[i] = HostHealth{Host: host, Err: err, Latency: time.Since(start)}

			up := 0.0
			if err == nil {
				up = 1
			}
			metrics.HostUp.WithLabelValues(string(host)).Set(up)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
