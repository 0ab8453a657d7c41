package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nuvla/job-engine-sub001/action"
	"github.com/nuvla/job-engine-sub001/bulk"
	"github.com/nuvla/job-engine-sub001/errors"
	"github.com/nuvla/job-engine-sub001/job"
	"github.com/nuvla/job-engine-sub001/logger"
	"github.com/nuvla/job-engine-sub001/resource"
)

// AttrFilter narrows the jobs a bulk cancel stops.
const AttrFilter = "filter"

// BulkCancel stops every active job matching the bulk job's filter by
// creating one cancel_job child per target and following the children.
type BulkCancel struct {
	c    *action.Context
	poll time.Duration
}

// NewBulkCancel builds the bulk_cancel_jobs action.
func NewBulkCancel(c *action.Context) action.Action {
	return &BulkCancel{c: c, poll: bulk.DefaultPollInterval}
}

func (a *BulkCancel) Do(ctx context.Context) (int, error) {
	self := a.c.Job.Job()
	filter := strings.TrimSpace(self.Resource().String(AttrFilter))

	runner := bulk.Supervisor{
		Query: func(ctx context.Context) ([]string, error) {
			return a.active(ctx, self.ID, filter)
		},
		Create:       bulk.ChildCreator(a.c.Client, CancelJob, self.ID),
		Client:       a.c.Client,
		PollInterval: a.poll,
		Logger:       a.c.Logger,
	}
	ledger, err := runner.Run(ctx, a.c.Job)
	if err != nil {
		return 0, err
	}
	a.c.Logger.Infow("Bulk cancel finished",
		"cancelled", len(ledger.Success),
		"failed", len(ledger.Failed),
		logger.FieldTotal, len(ledger.All))
	return 0, nil
}

// active lists the queued or running jobs matching filter, other than the
// bulk job and its own children.
func (a *BulkCancel) active(ctx context.Context, self, filter string) ([]string, error) {
	query := fmt.Sprintf("(%s='%s' or %s='%s') and %s!='%s' and %s!='%s'",
		job.AttrState, job.StateQueued, job.AttrState, job.StateRunning,
		job.AttrID, self, job.AttrParentJob, self)
	if filter != "" {
		query += " and (" + filter + ")"
	}
	result, err := a.c.Client.Search(ctx, "job", resource.SearchOptions{
		Filter:  query,
		Select:  job.AttrID,
		OrderBy: job.AttrCreated + ":asc",
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search jobs to cancel")
	}
	ids := make([]string, 0, len(result.Resources))
	for _, res := range result.Resources {
		ids = append(ids, res.ID())
	}
	return ids, nil
}
