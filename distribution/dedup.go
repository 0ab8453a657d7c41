package distribution

import (
	"context"
	"fmt"

	"github.com/nuvla/job-engine-sub001/errors"
	"github.com/nuvla/job-engine-sub001/job"
	"github.com/nuvla/job-engine-sub001/resource"
)

// ActiveJobExists reports whether a QUEUED or RUNNING job runs action on
// target. An empty target matches jobs of action regardless of target.
func ActiveJobExists(ctx context.Context, client resource.Client, action, target string) (bool, error) {
	filter := fmt.Sprintf("%s='%s'", job.AttrAction, action)
	if target != "" {
		filter += fmt.Sprintf(" and %s/href='%s'", job.AttrTargetResource, target)
	}
	filter += fmt.Sprintf(" and (%s='%s' or %s='%s')",
		job.AttrState, job.StateQueued, job.AttrState, job.StateRunning)

	result, err := client.Search(ctx, "job", resource.SearchOptions{
		Filter: filter,
		Select: job.AttrID,
		Last:   1,
	})
	if err != nil {
		return false, errors.Wrapf(err, "failed to look up active %s jobs", action)
	}
	return result.Count > 0, nil
}

// Dedup wraps emit so descriptors with an active equivalent job are skipped.
// A failed lookup emits anyway.
func Dedup(ctx context.Context, client resource.Client, emit func(Descriptor) error) func(Descriptor) error {
	return func(d Descriptor) error {
		exists, err := ActiveJobExists(ctx, client, d.Action, d.TargetResource)
		if err == nil && exists {
			return nil
		}
		return emit(d)
	}
}
