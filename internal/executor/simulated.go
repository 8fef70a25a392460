package executor

import (
	"context"
	"math/rand"
	"sync"

	"github.com/dreamware/groupsync/internal/cluster"
	"github.com/dreamware/groupsync/internal/metrics"
)

// Simulated flips a coin for every call: Applied or Failed, with no
// network I/O, no retries and no delay.
type Simulated struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSimulated returns a Simulated executor seeded with seed.
func NewSimulated(seed int64) *Simulated {
	return &Simulated{rnd: rand.New(rand.NewSource(seed))}
}

// Execute implements Executor.
func (s *Simulated) Execute(_ context.Context, op cluster.Operation, _ cluster.Host, _ string) cluster.Outcome {
	s.mu.Lock()
	heads := s.rnd.Intn(2) == 0
	s.mu.Unlock()

	outcome := cluster.Failed
	if heads {
		outcome = cluster.Applied
	}
	metrics.CallTotal.WithLabelValues(op.String(), outcome.String()).Inc()
	return outcome
}
