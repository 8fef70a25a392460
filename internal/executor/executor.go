package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	retry "github.com/avast/retry-go/v4"

	"github.com/dreamware/groupsync/internal/cluster"
	"github.com/dreamware/groupsync/internal/metrics"
)

// Executor performs one operation against one host and reports the outcome.
// Implementations never return errors: every failure ends up as
// cluster.Failed once the retry budget is spent.
type Executor interface {
	Execute(ctx context.Context, op cluster.Operation, host cluster.Host, groupID string) cluster.Outcome
}

// Caller performs a single attempt. *cluster.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, op cluster.Operation, host cluster.Host, groupID string) (cluster.Reply, error)
}

// Options configures the executor returned by New.
type Options struct {
	Simulate       bool          // bypass the network and return random outcomes
	MaxRetries     int           // attempts per call, at least 1
	RetryTimeout   time.Duration // delay before the first retry, doubled after each retry
	RequestTimeout time.Duration // deadline of a single attempt
}

// New builds a simulated executor when opts.Simulate is set and a retrying
// HTTP executor otherwise.
func New(opts Options, logger *slog.Logger) (Executor, error) {
	if opts.Simulate {
		return NewSimulated(time.Now().UnixNano()), nil
	}
	if opts.MaxRetries < 1 {
		return nil, fmt.Errorf("max retries must be at least 1, got %d", opts.MaxRetries)
	}
	if opts.RetryTimeout < 0 || opts.RequestTimeout <= 0 {
		return nil, fmt.Errorf("invalid timeouts: retry=%v request=%v", opts.RetryTimeout, opts.RequestTimeout)
	}
	client := cluster.NewClient(opts.RequestTimeout)
	return NewRetrying(client, opts.MaxRetries, opts.RetryTimeout, logger), nil
}

// Retrying drives a Caller with bounded retries and exponential backoff.
// The delay before attempt k+1 is retryTimeout * 2^(k-1); the first attempt
// is never delayed and no delay follows the last one.
type Retrying struct {
	caller       Caller
	logger       *slog.Logger
	timer        retry.Timer
	retryTimeout time.Duration
	maxRetries   int
}

// NewRetrying returns a Retrying executor. A nil logger discards output.
func NewRetrying(caller Caller, maxRetries int, retryTimeout time.Duration, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Retrying{
		caller:       caller,
		logger:       logger,
		retryTimeout: retryTimeout,
		maxRetries:   maxRetries,
	}
}

// SetTimer replaces the backoff timer. Tests use it to record delays
// without waiting.
func (r *Retrying) SetTimer(t retry.Timer) {
	r.timer = t
}

// Execute implements Executor.
func (r *Retrying) Execute(ctx context.Context, op cluster.Operation, host cluster.Host, groupID string) cluster.Outcome {
	outcome := r.execute(ctx, op, host, groupID)
	metrics.CallTotal.WithLabelValues(op.String(), outcome.String()).Inc()
	return outcome
}

func (r *Retrying) execute(ctx context.Context, op cluster.Operation, host cluster.Host, groupID string) cluster.Outcome {
	var (
		outcome = cluster.Failed
		attempt int
	)
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(r.maxRetries)),
		retry.LastErrorOnly(true),
		retry.DelayType(func(uint, error, *retry.Config) time.Duration {
			return r.retryTimeout << (attempt - 1)
		}),
		retry.OnRetry(func(_ uint, err error) {
			r.logger.InfoContext(ctx, "call attempt failed",
				"operation", op.String(),
				"host", string(host),
				"attempt", attempt,
				"max_attempts", r.maxRetries,
				"error", err)
		}),
	}
	if r.timer != nil {
		opts = append(opts, retry.WithTimer(r.timer))
	}

	err := retry.Do(func() error {
		attempt++
		reply, err := r.caller.Call(ctx, op, host, groupID)
		metrics.CallAttempts.WithLabelValues(op.String(), reply.String()).Inc()

		o, done := interpret(op, reply)
		if !done {
			if err == nil {
				err = fmt.Errorf("unexpected reply %s", reply)
			}
			return err
		}
		if reply == cluster.ReplyConflict {
			r.logger.InfoContext(ctx, "group already exists, moving on",
				"host", string(host), "group", groupID)
		}
		outcome = o
		return nil
	}, opts...)
	if err != nil {
		r.logger.InfoContext(ctx, "giving up on host",
			"operation", op.String(), "host", string(host), "attempts", attempt, "error", err)
		return cluster.Failed
	}
	return outcome
}

// interpret maps a reply to an outcome. done is false when the attempt
// should be retried.
func interpret(op cluster.Operation, reply cluster.Reply) (outcome cluster.Outcome, done bool) {
	switch op {
	case cluster.Create:
		if reply == cluster.ReplyOK || reply == cluster.ReplyConflict {
			return cluster.Applied, true
		}
	case cluster.Delete:
		if reply == cluster.ReplyOK {
			return cluster.Applied, true
		}
	case cluster.Status:
		switch reply {
		case cluster.ReplyOK:
			return cluster.Applied, true
		case cluster.ReplyNotFound:
			return cluster.NotFound, true
		}
	}
	return cluster.Failed, false
}
