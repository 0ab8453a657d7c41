package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/nuvla/job-engine-sub001/action"
	"github.com/nuvla/job-engine-sub001/bulk"
	"github.com/nuvla/job-engine-sub001/errors"
	"github.com/nuvla/job-engine-sub001/job"
	"github.com/nuvla/job-engine-sub001/resource"
)

// DefaultRetentionDays is how long finished jobs are kept.
const DefaultRetentionDays = 7

// AttrRetentionDays overrides the retention on a cleanup job.
const AttrRetentionDays = "retention-days"

// maxCleanupBatch bounds the number of jobs one cleanup run deletes.
const maxCleanupBatch = 10000

// Cleanup deletes finished jobs older than the retention period.
type Cleanup struct {
	c   *action.Context
	now func() time.Time
}

// NewCleanup builds the cleanup_jobs action.
func NewCleanup(c *action.Context) action.Action {
	return &Cleanup{c: c, now: time.Now}
}

func (a *Cleanup) Do(ctx context.Context) (int, error) {
	days := DefaultRetentionDays
	if v, ok := a.c.Job.Job().Resource().Int(AttrRetentionDays); ok && v > 0 {
		days = v
	}
	cutoff := a.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	runner := bulk.Direct{
		Query: func(ctx context.Context) ([]string, error) {
			return a.expired(ctx, cutoff)
		},
		Do:     a.delete,
		Logger: a.c.Logger,
	}
	ledger, err := runner.Run(ctx, a.c.Job)
	if err != nil {
		return 0, err
	}
	a.c.Logger.Infow("Cleanup finished",
		"retention_days", days,
		"deleted", len(ledger.Success),
		"failed", len(ledger.Failed))
	return 0, nil
}

func (a *Cleanup) expired(ctx context.Context, cutoff time.Time) ([]string, error) {
	filter := fmt.Sprintf("(%s='%s' or %s='%s') and %s<'%s'",
		job.AttrState, job.StateSuccess, job.AttrState, job.StateFailed,
		job.AttrUpdated, cutoff.Format(time.RFC3339))
	result, err := a.c.Client.Search(ctx, "job", resource.SearchOptions{
		Filter:  filter,
		Select:  job.AttrID,
		OrderBy: job.AttrUpdated + ":asc",
		Last:    maxCleanupBatch,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search expired jobs")
	}
	ids := make([]string, 0, len(result.Resources))
	for _, res := range result.Resources {
		ids = append(ids, res.ID())
	}
	return ids, nil
}

// delete treats a job that is already gone as deleted.
func (a *Cleanup) delete(ctx context.Context, id string) error {
	if err := a.c.Client.Delete(ctx, id); err != nil && !resource.IsNotFound(err) {
		return err
	}
	return nil
}
