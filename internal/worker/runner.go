// Package worker runs durable follow-up tasks (customer emails, deferred
// cancellations) enqueued in the same transaction as the order change.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/logger"
	"teahouse-backend/pkg/metrics"
)

const (
	defaultBatchSize    = 20
	defaultPollInterval = 2 * time.Second
	defaultMaxAttempts  = 8
	defaultLease        = 2 * time.Minute
	handlerTimeout      = 30 * time.Second
	retryBase           = 30 * time.Second
	maxRetryDelay       = 30 * time.Minute
	maxPollBackoff      = 30 * time.Second
	jitterWindow        = 250 * time.Millisecond
)

// Handler executes one task. Returning an error schedules a retry.
type Handler func(ctx context.Context, task domain.FollowUpTask) error

type Params struct {
	Tasks        domain.TaskRepository
	Handlers     map[string]Handler
	Metrics      *metrics.Storefront
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
	Lease        time.Duration
}

type Runner struct {
	tasks        domain.TaskRepository
	handlers     map[string]Handler
	metrics      *metrics.Storefront
	log          zerolog.Logger
	batchSize    int
	pollInterval time.Duration
	maxAttempts  int
	lease        time.Duration
	now          func() time.Time

	jitterMu sync.Mutex
	jitter   *rand.Rand
}

func New(p Params) (*Runner, error) {
	if p.Tasks == nil {
		return nil, errors.New("task repository is required")
	}
	if len(p.Handlers) == 0 {
		return nil, errors.New("at least one handler is required")
	}

	r := &Runner{
		tasks:        p.Tasks,
		handlers:     p.Handlers,
		metrics:      p.Metrics,
		log:          logger.Component("follow-up-worker"),
		batchSize:    p.BatchSize,
		pollInterval: p.PollInterval,
		maxAttempts:  p.MaxAttempts,
		lease:        p.Lease,
		now:          time.Now,
		jitter:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.pollInterval <= 0 {
		r.pollInterval = defaultPollInterval
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.lease <= 0 {
		r.lease = defaultLease
	}
	return r, nil
}

// Run polls until ctx is cancelled. Repository failures back the poll off
// exponentially; a full batch is followed by an immediate re-poll.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info().Dur("poll_interval", r.pollInterval).Int("batch_size", r.batchSize).Msg("worker started")
	backoff := r.pollInterval

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("worker stopped")
			return ctx.Err()
		default:
		}

		n, err := r.RunOnce(ctx)
		if err != nil {
			r.log.Error().Err(err).Msg("worker batch error")
			backoff = nextBackoff(backoff, r.pollInterval, maxPollBackoff)
			if err := sleep(ctx, r.withJitter(backoff)); err != nil {
				return err
			}
			continue
		}
		backoff = r.pollInterval

		if n >= r.batchSize {
			continue
		}
		if err := sleep(ctx, r.withJitter(r.pollInterval)); err != nil {
			return err
		}
	}
}

// RunOnce claims one batch and executes it. It reports how many tasks were claimed.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	due, err := r.tasks.ClaimDue(ctx, r.batchSize, r.now(), r.lease)
	if err != nil {
		return 0, fmt.Errorf("claim tasks: %w", err)
	}

	var errs error
	for _, task := range due {
		errs = multierr.Append(errs, r.execute(ctx, task))
	}
	return len(due), errs
}

// execute only returns an error when the task's outcome could not be recorded.
func (r *Runner) execute(ctx context.Context, task domain.FollowUpTask) error {
	log := r.log.With().
		Str("task_id", task.ID).
		Str("kind", task.Kind).
		Str("order_id", task.OrderID).
		Int("attempt", task.Attempts).
		Logger()

	handler, ok := r.handlers[task.Kind]
	if !ok {
		r.metrics.TaskOutcome(task.Kind, "dead")
		log.Error().Msg("no handler for task kind")
		return r.markDead(ctx, task, "no handler for kind "+task.Kind)
	}

	runErr := r.run(logger.NewContext(ctx, &log), handler, task)
	if runErr == nil {
		r.metrics.TaskOutcome(task.Kind, "done")
		log.Info().Msg("task done")
		if err := r.tasks.MarkDone(ctx, task.ID, r.now()); err != nil {
			return fmt.Errorf("mark done %s: %w", task.ID, err)
		}
		return nil
	}

	if task.Attempts >= r.maxAttempts {
		r.metrics.TaskOutcome(task.Kind, "dead")
		log.Error().Err(runErr).Msg("task failed permanently")
		return r.markDead(ctx, task, runErr.Error())
	}

	next := r.now().Add(r.withJitter(RetryDelay(task.Attempts)))
	r.metrics.TaskOutcome(task.Kind, "retry")
	log.Warn().Err(runErr).Time("next_attempt_at", next).Msg("task failed, will retry")
	if err := r.tasks.MarkRetry(ctx, task.ID, runErr.Error(), next); err != nil {
		return fmt.Errorf("mark retry %s: %w", task.ID, err)
	}
	return nil
}

func (r *Runner) run(ctx context.Context, handler Handler, task domain.FollowUpTask) (err error) {
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return handler(ctx, task)
}

func (r *Runner) markDead(ctx context.Context, task domain.FollowUpTask, reason string) error {
	if err := r.tasks.MarkDead(ctx, task.ID, reason); err != nil {
		return fmt.Errorf("mark dead %s: %w", task.ID, err)
	}
	return nil
}

// RetryDelay doubles from 30s per attempt, capped at 30 minutes.
func RetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := retryBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}

func (r *Runner) withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	r.jitterMu.Lock()
	defer r.jitterMu.Unlock()
	return d + time.Duration(r.jitter.Int63n(int64(jitterWindow)))
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
