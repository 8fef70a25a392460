package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/dreamware/groupsync/internal/cluster"
	"github.com/dreamware/groupsync/internal/executor"
	"github.com/dreamware/groupsync/internal/metrics"
	"github.com/dreamware/groupsync/internal/rollback"
)

// Coordinator applies group operations across an ordered host list and
// compensates partial failures. Hosts are contacted one at a time, in list
// order, for both forward application and compensation.
//
// A Coordinator exclusively owns its rollback store. Calls on one
// Coordinator are serialized; two Coordinators sharing a store are not
// supported.
type Coordinator struct {
	exec    executor.Executor
	store   rollback.Store
	logger  *slog.Logger
	observe func(State)
	hosts   []cluster.Host
	mu      sync.Mutex
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStateObserver registers fn to be called on every state transition.
func WithStateObserver(fn func(State)) Option {
	return func(c *Coordinator) { c.observe = fn }
}

// New returns a Coordinator for hosts. The host order is fixed for the
// lifetime of the Coordinator.
func New(hosts []cluster.Host, exec executor.Executor, store rollback.Store, opts ...Option) (*Coordinator, error) {
	if len(hosts) == 0 {
		return nil, errors.New("coordinator: no hosts")
	}
	if exec == nil || store == nil {
		return nil, errors.New("coordinator: executor and rollback store are required")
	}
	for _, h := range hosts {
		if err := rollback.CheckHost(h); err != nil {
			return nil, fmt.Errorf("coordinator: %w", err)
		}
	}
	c := &Coordinator{
		hosts:  slices.Clone(hosts),
		exec:   exec,
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Hosts returns a copy of the host list in contact order.
func (c *Coordinator) Hosts() []cluster.Host {
	return slices.Clone(c.hosts)
}

// ApplyCreate creates groupID on every host. Any pending rollback is
// resumed first; if it cannot be resolved the create is not attempted and
// the error wraps ErrResumePending.
func (c *Coordinator) ApplyCreate(ctx context.Context, groupID string) error {
	return c.apply(ctx, cluster.Create, groupID)
}

// ApplyDelete deletes groupID from every host, with the same resume and
// rollback rules as ApplyCreate.
func (c *Coordinator) ApplyDelete(ctx context.Context, groupID string) error {
	return c.apply(ctx, cluster.Delete, groupID)
}

// GetStatus reports, per host, whether groupID exists. A host that could
// not be reached after retries is reported as not existing.
func (c *Coordinator) GetStatus(ctx context.Context, groupID string) map[cluster.Host]bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.invocationLogger(cluster.Status, groupID)
	start := time.Now()

	status := make(map[cluster.Host]bool, len(c.hosts))
	for _, h := range c.hosts {
		outcome := c.exec.Execute(ctx, cluster.Status, h, groupID)
		if outcome == cluster.Failed {
			// TODO: surface unreachable hosts separately once callers can
			// handle a three-state status map.
			log.WarnContext(ctx, "status unknown, reporting group as absent", "host", string(h))
		}
		status[h] = outcome == cluster.Applied
	}

	metrics.OperationDuration.WithLabelValues(cluster.Status.String()).Observe(time.Since(start).Seconds())
	metrics.OperationTotal.WithLabelValues(cluster.Status.String(), "succeeded").Inc()
	return status
}

// Pending returns the stored rollback record, or nil if there is none.
func (c *Coordinator) Pending(ctx context.Context) (*rollback.Record, error) {
	return c.store.Load(ctx)
}

// Resume re-runs a stored rollback, if any. The record is removed before
// compensation starts and rewritten with the hosts that still fail.
// It returns nil when the store ends up empty.
func (c *Coordinator) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.logger.With("op_id", uuid.NewString(), "operation", "rollback")
	c.transition(log, StateResuming)
	defer c.transition(log, StateIdle)

	err := c.resume(ctx, log)
	result := "succeeded"
	if err != nil {
		result = "failed"
	}
	metrics.OperationTotal.WithLabelValues("rollback", result).Inc()
	return err
}

func (c *Coordinator) apply(ctx context.Context, op cluster.Operation, groupID string) error {
	inverse, ok := op.Inverse()
	if !ok {
		return fmt.Errorf("coordinator: %s cannot be applied", op)
	}
	// A group the rollback record cannot hold must never reach a host.
	if err := rollback.CheckGroupID(groupID); err != nil {
		metrics.OperationTotal.WithLabelValues(op.String(), "refused").Inc()
		return fmt.Errorf("%w: %w", ErrInvalidGroupID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.invocationLogger(op, groupID)
	start := time.Now()
	defer func() {
		metrics.OperationDuration.WithLabelValues(op.String()).Observe(time.Since(start).Seconds())
	}()
	defer c.transition(log, StateIdle)

	c.transition(log, StateResuming)
	if err := c.resume(ctx, log); err != nil {
		log.ErrorContext(ctx, "refusing operation while a rollback is pending", "error", err)
		metrics.OperationTotal.WithLabelValues(op.String(), "refused").Inc()
		return fmt.Errorf("%w: %w", ErrResumePending, err)
	}

	c.transition(log, StateApplying)
	succeeded := make([]cluster.Host, 0, len(c.hosts))
	for _, h := range c.hosts {
		if c.exec.Execute(ctx, op, h, groupID) != cluster.Failed {
			succeeded = append(succeeded, h)
			continue
		}

		log.InfoContext(ctx, "operation failed on host, rolling back",
			"host", string(h), "rollback_hosts", len(succeeded))
		metrics.OperationTotal.WithLabelValues(op.String(), "failed").Inc()

		c.transition(log, StateCompensating)
		stillFailing, err := c.compensate(ctx, log, inverse, groupID, succeeded)
		opErr := &OperationError{
			Operation:    op,
			GroupID:      groupID,
			FailedHost:   h,
			StillFailing: stillFailing,
		}
		switch {
		case err != nil:
			opErr.Err = fmt.Errorf("%w: %w", ErrCompensationFailed, err)
			c.transition(log, StateCompensationFailed)
		case len(stillFailing) > 0:
			opErr.Err = ErrCompensationFailed
			c.transition(log, StateCompensationFailed)
		default:
			opErr.Err = ErrOperationFailed
			c.transition(log, StateCompensated)
		}
		return opErr
	}

	c.transition(log, StateSucceeded)
	metrics.OperationTotal.WithLabelValues(op.String(), "succeeded").Inc()
	log.InfoContext(ctx, "operation applied on all hosts", "hosts", len(c.hosts))
	return nil
}

// resume consumes a stored record and compensates it. It must be called
// with c.mu held.
func (c *Coordinator) resume(ctx context.Context, log *slog.Logger) error {
	rec, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load rollback record: %w", err)
	}
	if rec == nil {
		metrics.RollbackPending.Set(0)
		log.DebugContext(ctx, "no pending rollback")
		return nil
	}

	// Once the record is consumed it must be rewritten whatever happens to
	// the caller's context.
	ctx = context.WithoutCancel(ctx)
	log = log.With("rollback_operation", rec.Operation.String(), "rollback_group", rec.GroupID)
	log.InfoContext(ctx, "resuming pending rollback", "hosts", hostStrings(rec.Hosts))

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear rollback record: %w", err)
	}

	stillFailing, err := c.compensate(ctx, log, rec.Operation, rec.GroupID, rec.Hosts)
	if err != nil {
		return &OperationError{
			Operation:    rec.Operation,
			GroupID:      rec.GroupID,
			StillFailing: stillFailing,
			Err:          fmt.Errorf("%w: %w", ErrCompensationFailed, err),
		}
	}
	if len(stillFailing) > 0 {
		return &OperationError{
			Operation:    rec.Operation,
			GroupID:      rec.GroupID,
			StillFailing: stillFailing,
			Err:          ErrCompensationFailed,
		}
	}
	metrics.RollbackPending.Set(0)
	log.InfoContext(ctx, "pending rollback resolved")
	return nil
}

// compensate applies op to hosts in the given order and persists the hosts
// that still fail. It ignores cancellation of ctx. A non-nil error means the
// record could not be stored; stillFailing is then the only account of
// those hosts.
func (c *Coordinator) compensate(ctx context.Context, log *slog.Logger, op cluster.Operation, groupID string, hosts []cluster.Host) (stillFailing []cluster.Host, err error) {
	ctx = context.WithoutCancel(ctx)
	for _, h := range hosts {
		if c.exec.Execute(ctx, op, h, groupID) == cluster.Failed {
			log.WarnContext(ctx, "rollback failed on host", "host", string(h), "rollback_operation", op.String())
			stillFailing = append(stillFailing, h)
		}
	}

	if len(stillFailing) == 0 {
		metrics.CompensationTotal.WithLabelValues("clean").Inc()
		log.InfoContext(ctx, "rollback completed", "hosts", len(hosts))
		return nil, nil
	}

	rec := &rollback.Record{Operation: op, GroupID: groupID, Hosts: stillFailing}
	if err := c.store.Save(ctx, rec); err != nil {
		log.ErrorContext(ctx, "could not store rollback record, hosts left inconsistent",
			"rollback_operation", op.String(), "hosts", hostStrings(stillFailing), "error", err)
		return stillFailing, fmt.Errorf("save rollback record: %w", err)
	}
	metrics.CompensationTotal.WithLabelValues("persisted").Inc()
	metrics.RollbackPending.Set(1)
	log.ErrorContext(ctx, "rollback incomplete, record stored for a later run",
		"rollback_operation", op.String(), "hosts", hostStrings(stillFailing))
	return stillFailing, nil
}

func (c *Coordinator) invocationLogger(op cluster.Operation, groupID string) *slog.Logger {
	return c.logger.With("op_id", uuid.NewString(), "operation", op.String(), "group", groupID)
}

func (c *Coordinator) transition(log *slog.Logger, s State) {
	log.Debug("state", "state", s.String())
	if c.observe != nil {
		c.observe(s)
	}
}

func hostStrings(hosts []cluster.Host) []string {
	out := make([]string, len(hosts))
	for i, h := range hosts {
		out[i] = string(h)
	}
	return out
}
