// Package retry implements a generic exponential-backoff scheduler. It owns
// timing and cancellation only; callers decide what a retryable failure is.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harvestly/cart-engine/pkg/config"
	pkgerrors "github.com/harvestly/cart-engine/pkg/errors"
	"github.com/harvestly/cart-engine/pkg/logger"
)

const (
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 10 * time.Second
	defaultMaxAttempts = 3
	jitterRatio        = 0.2
)

// ErrCanceled reports that a pending retry was canceled before it ran,
// either by the owner shutting down or by a superseding operation on the
// same key.
var ErrCanceled = errors.New("retry: task canceled")

// Task describes one scheduled re-attempt, for observation and tests.
type Task struct {
	ID            uuid.UUID
	Key           string
	Attempt       int
	NextAttemptAt time.Time
	MaxAttempts   int
}

// Scheduler re-runs failed operations with capped exponential backoff and
// jitter. Tasks are keyed so a newer conflicting operation can cancel the
// older one's pending attempts.
type Scheduler struct {
	base        time.Duration
	max         time.Duration
	maxAttempts int
	logg        *logger.Logger

	mu      sync.Mutex
	pending map[string]map[uuid.UUID]chan struct{}
	jitter  *rand.Rand
}

func New(cfg config.RetryConfig, logg *logger.Logger) *Scheduler {
	base := cfg.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	max := cfg.MaxDelay
	if max <= 0 {
		max = defaultMaxDelay
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	return &Scheduler{
		base:        base,
		max:         max,
		maxAttempts: attempts,
		logg:        logg,
		pending:     make(map[string]map[uuid.UUID]chan struct{}),
		jitter:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// MaxAttempts exposes the configured attempt budget.
func (s *Scheduler) MaxAttempts() int {
	return s.maxAttempts
}

// Do runs fn up to MaxAttempts times, backing off between attempts. It stops
// early on success, on a non-retryable error, on context cancellation, or
// when Cancel is called for the task's key. The error from the final attempt
// is wrapped on exhaustion.
func (s *Scheduler) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	task := Task{ID: uuid.New(), Key: key, MaxAttempts: s.maxAttempts}
	cancelCh := s.register(task)
	defer s.unregister(task)

	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cancelCh:
			return ErrCanceled
		default:
		}

		// The first attempt runs immediately; backoff applies between
		// attempts.
		if attempt > 0 {
			delay := s.Delay(attempt - 1)
			task.Attempt = attempt
			task.NextAttemptAt = time.Now().Add(delay)
			if err := s.sleep(ctx, delay, cancelCh); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !pkgerrors.Retryable(err) {
			return err
		}
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"retry_key": key,
				"attempt":   attempt + 1,
				"budget":    s.maxAttempts,
			})
			s.logg.Warn(logCtx, "retry attempt failed")
		}
	}

	return fmt.Errorf("retry budget exhausted after %d attempts: %w", s.maxAttempts, lastErr)
}

// Cancel aborts every pending task registered under key. In-flight attempts
// already past their sleep are not interrupted.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.pending[key] {
		close(ch)
	}
	delete(s.pending, key)
}

// CancelAll aborts every pending task; used when the owning session shuts
// down.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, tasks := range s.pending {
		for _, ch := range tasks {
			close(ch)
		}
		delete(s.pending, key)
	}
}

// Delay computes the sleep before the given attempt: base × 2^attempt capped
// at max, plus jitter in [0, delay×0.2). Jitter keeps parallel sessions from
// retrying in lockstep.
func (s *Scheduler) Delay(attempt int) time.Duration {
	delay := s.base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= s.max {
			delay = s.max
			break
		}
	}
	window := int64(float64(delay) * jitterRatio)
	if window <= 0 {
		return delay
	}
	s.mu.Lock()
	jitter := time.Duration(s.jitter.Int63n(window))
	s.mu.Unlock()
	return delay + jitter
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration, cancelCh <-chan struct{}) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cancelCh:
			return ErrCanceled
		default:
			return nil
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-cancelCh:
		return ErrCanceled
	case <-timer.C:
		return nil
	}
}

func (s *Scheduler) register(task Task) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	tasks, ok := s.pending[task.Key]
	if !ok {
		tasks = make(map[uuid.UUID]chan struct{})
		s.pending[task.Key] = tasks
	}
	tasks[task.ID] = ch
	return ch
}

func (s *Scheduler) unregister(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, ok := s.pending[task.Key]
	if !ok {
		return
	}
	delete(tasks, task.ID)
	if len(tasks) == 0 {
		delete(s.pending, task.Key)
	}
}
