package coord

import (
	"context"

	"go.uber.org/zap"

	"github.com/nuvla/job-engine-sub001/errors"
	"github.com/nuvla/job-engine-sub001/internal/backoff"
	"github.com/nuvla/job-engine-sub001/logger"
)

// WithRetry wraps q so every lease it hands out retries Consume and Release
// with strategy until they succeed or ctx is done.
func WithRetry(q Queue, strategy backoff.Strategy, logger *zap.SugaredLogger) Queue {
	return &retryQueue{queue: q, strategy: strategy, logger: logger}
}

type retryQueue struct {
	queue    Queue
	strategy backoff.Strategy
	logger   *zap.SugaredLogger
}

func (q *retryQueue) Acquire(ctx context.Context) (Lease, error) {
	lease, err := q.queue.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &RetryingLease{Lease: lease, Strategy: q.strategy, Logger: q.logger}, nil
}

// RetryingLease retries the wrapped lease's Consume and Release. A false result
// is treated like an error. Neither operation is ever dropped while ctx lives.
type RetryingLease struct {
	Lease
	Strategy backoff.Strategy
	Logger   *zap.SugaredLogger
}

func (l *RetryingLease) Consume(ctx context.Context) (bool, error) {
	return l.retry(ctx, "consume", l.Lease.Consume)
}

func (l *RetryingLease) Release(ctx context.Context) (bool, error) {
	return l.retry(ctx, "release", l.Lease.Release)
}

func (l *RetryingLease) retry(ctx context.Context, op string, fn func(context.Context) (bool, error)) (bool, error) {
	for attempt := 1; ; attempt++ {
		ok, err := fn(ctx)
		if err == nil && ok {
			return true, nil
		}

		delay := l.Strategy.Delay(attempt)
		l.Logger.Warnw("Queue operation failed, retrying",
			logger.FieldOperation, op,
			logger.FieldJobID, string(l.ID()),
			logger.FieldAttempt, attempt,
			logger.FieldDelay, delay,
			logger.FieldError, err)

		if serr := backoff.Sleep(ctx, delay); serr != nil {
			return false, errors.Wrapf(serr, "queue %s abandoned after %d attempts", op, attempt)
		}
	}
}
