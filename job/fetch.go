package job

import (
	"context"
	"time"

	"github.com/nuvla/job-engine-sub001/errors"
	"github.com/nuvla/job-engine-sub001/internal/backoff"
	"github.com/nuvla/job-engine-sub001/resource"
)

// FetchOutcome tells the caller whether there is a job to act on.
type FetchOutcome int

const (
	// Found means the job resource was read.
	Found FetchOutcome = iota
	// Nonexistent means the job stayed invisible for the whole attempt budget.
	Nonexistent
)

func (o FetchOutcome) String() string {
	if o == Nonexistent {
		return "nonexistent"
	}
	return "found"
}

// Fetch reads a job, retrying up to attempts times delay apart. A 404 is
// treated as replication lag until the budget is spent, then reported as
// Nonexistent. Any other failure is retried within the same budget and then
// returned.
func Fetch(ctx context.Context, client resource.Client, id string, attempts int, delay time.Duration) (Job, FetchOutcome, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := client.Get(ctx, id)
		if err == nil {
			return FromResource(res), Found, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return Job{}, Found, errors.Wrapf(ctx.Err(), "fetch of %s interrupted", id)
		}
		if attempt == attempts {
			break
		}
		if err := backoff.Sleep(ctx, delay); err != nil {
			return Job{}, Found, errors.Wrapf(err, "fetch of %s interrupted", id)
		}
	}

	if resource.IsNotFound(lastErr) {
		return Job{ID: id}, Nonexistent, nil
	}
	return Job{}, Found, errors.Wrapf(lastErr, "failed to fetch job %s after %d attempts", id, attempts)
}
