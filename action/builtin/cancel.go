package builtin

import (
	"context"
	"fmt"

	"github.com/nuvla/job-engine-sub001/action"
	"github.com/nuvla/job-engine-sub001/errors"
	"github.com/nuvla/job-engine-sub001/job"
	"github.com/nuvla/job-engine-sub001/resource"
)

// Cancel asks the target job to stop by moving it to STOPPING. The running
// action is not interrupted; it is expected to notice the state on its next
// update and wind down.
type Cancel struct {
	c *action.Context
}

// NewCancel builds the cancel_job action.
func NewCancel(c *action.Context) action.Action {
	return &Cancel{c: c}
}

func (a *Cancel) Do(ctx context.Context) (int, error) {
	target := a.c.Job.Job().TargetResource.Href
	if target == "" {
		return 0, errors.NewInvalidRequestError("cancel_job needs a target job")
	}

	res, err := a.c.Client.Get(ctx, target)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read job %s", target)
	}
	victim := job.FromResource(res)

	var msg string
	switch {
	case victim.State.IsFinal() || victim.State == job.StateStopped:
		msg = fmt.Sprintf("%s already %s", target, victim.State)
	case victim.State == job.StateStopping:
		msg = fmt.Sprintf("%s already stopping", target)
	default:
		if _, err := a.c.Client.Operation(ctx, target, "cancel", nil); err != nil {
			return 0, errors.Wrapf(err, "failed to cancel job %s", target)
		}
		msg = fmt.Sprintf("%s asked to stop", target)
		a.c.Logger.Infow("Job cancel requested", "target_job", target, "previous_state", victim.State)
	}

	if err := a.c.Job.AddAffectedResources(ctx, resource.Ref{Href: target}); err != nil {
		return 0, err
	}
	if err := a.c.Job.SetStatusMessage(ctx, msg); err != nil {
		return 0, err
	}
	return 0, nil
}
