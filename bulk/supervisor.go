package bulk

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nuvla/job-engine-sub001/errors"
	"github.com/nuvla/job-engine-sub001/internal/backoff"
	"github.com/nuvla/job-engine-sub001/job"
	"github.com/nuvla/job-engine-sub001/logger"
	"github.com/nuvla/job-engine-sub001/resource"
)

// DefaultPollInterval paces child job polling.
const DefaultPollInterval = 10 * time.Second

// Supervisor fans out one child job per target and follows them to completion.
type Supervisor struct {
	// Query returns the target ids. It runs once per bulk job.
	Query func(ctx context.Context) ([]string, error)
	// Create makes the child job for a target and returns its id. A conflict
	// means the child already exists.
	Create func(ctx context.Context, target string) (string, error)
	Client resource.Client
	// PollInterval paces the search for finished children (default 10s).
	PollInterval time.Duration
	Logger       *zap.SugaredLogger
}

// ChildCreator returns a Supervisor.Create that adds a job running action on
// the target, with the bulk job as parent.
func ChildCreator(client resource.Client, action, parentID string) func(context.Context, string) (string, error) {
	return func(ctx context.Context, target string) (string, error) {
		return client.Add(ctx, "job", map[string]any{
			job.AttrAction:         action,
			job.AttrTargetResource: resource.Ref{Href: target},
			job.AttrParentJob:      parentID,
		})
	}
}

// Run creates missing children, then polls until every monitored child has
// reached 100% progress, classifying each by its return code. Progress is
// 100 × (1 − monitored/total). Running it on a complete bulk job is a no-op.
func (s Supervisor) Run(ctx context.Context, t Tracker) (*Ledger, error) {
	log := s.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	interval := s.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	snapshot := t.Job()
	parent := snapshot.ID
	ledger := LoadLedger(snapshot.StatusMessage)
	if ledger.Complete() {
		return ledger, nil
	}

	if !ledger.Started() {
		ids, err := s.Query(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to query bulk targets")
		}
		ledger.SetTargets(ids)
	}

	if err := s.bootstrap(ctx, parent, ledger, log); err != nil {
		return ledger, err
	}
	if err := persist(ctx, t, ledger, progressOf(ledger)); err != nil {
		return ledger, err
	}

	for len(ledger.MonitoredJobs) > 0 {
		if err := backoff.Sleep(ctx, interval); err != nil {
			return ledger, errors.Wrap(err, "bulk supervision interrupted")
		}
		changed, err := s.collect(ctx, parent, ledger)
		if err != nil {
			log.Warnw("Failed to poll child jobs", logger.FieldError, err)
			continue
		}
		if changed {
			if err := persist(ctx, t, ledger, progressOf(ledger)); err != nil {
				return ledger, err
			}
		}
	}

	log.Infow("Bulk supervision finished",
		"success", len(ledger.Success),
		"failed", len(ledger.Failed),
		logger.FieldTotal, len(ledger.All))
	return ledger, nil
}

// bootstrap makes sure every pending target has a monitored child.
func (s Supervisor) bootstrap(ctx context.Context, parent string, ledger *Ledger, log *zap.SugaredLogger) error {
	existing, err := s.children(ctx, parent)
	if err != nil {
		return err
	}

	for _, target := range ledger.Pending() {
		if childID, ok := existing[target]; ok {
			ledger.monitor(childID)
			continue
		}

		childID, err := s.Create(ctx, target)
		if resource.IsConflict(err) {
			childID, err = s.conflictingChild(ctx, parent, target, err)
		}
		if err != nil {
			log.Warnw("Failed to create child job", logger.FieldTarget, target, logger.FieldError, err)
			ledger.RecordFailure(target, err.Error())
			continue
		}
		ledger.monitor(childID)
	}
	return nil
}

// conflictingChild finds the child that made Create return 409.
func (s Supervisor) conflictingChild(ctx context.Context, parent, target string, conflict error) (string, error) {
	var remote *resource.RemoteError
	if errors.As(conflict, &remote) && remote.ResourceID != "" {
		return remote.ResourceID, nil
	}
	existing, err := s.children(ctx, parent)
	if err != nil {
		return "", err
	}
	if childID, ok := existing[target]; ok {
		return childID, nil
	}
	return "", conflict
}

// children maps target id to child job id for every child of parent.
func (s Supervisor) children(ctx context.Context, parent string) (map[string]string, error) {
	result, err := s.Client.Search(ctx, "job", resource.SearchOptions{
		Filter: fmt.Sprintf("%s='%s'", job.AttrParentJob, parent),
		Select: "id,target-resource",
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list child jobs of %s", parent)
	}
	out := make(map[string]string, len(result.Resources))
	for _, child := range result.Resources {
		if ref, ok := child.Ref(job.AttrTargetResource); ok {
			out[ref.Href] = child.ID()
		}
	}
	return out, nil
}

// collect moves finished monitored children into SUCCESS or FAILED.
func (s Supervisor) collect(ctx context.Context, parent string, ledger *Ledger) (bool, error) {
	result, err := s.Client.Search(ctx, "job", resource.SearchOptions{
		Filter: fmt.Sprintf("%s='%s' and %s=100", job.AttrParentJob, parent, job.AttrProgress),
		Select: "id,target-resource,return-code",
	})
	if err != nil {
		return false, errors.Wrapf(err, "failed to poll child jobs of %s", parent)
	}

	changed := false
	for _, res := range result.Resources {
		child := job.FromResource(res)
		if !contains(ledger.MonitoredJobs, child.ID) {
			continue
		}
		ledger.unmonitor(child.ID)
		changed = true

		target := child.TargetResource.Href
		if child.ReturnCode != nil && *child.ReturnCode == 0 {
			ledger.RecordSuccess(target)
		} else {
			ledger.RecordFailure(target, "")
		}
	}
	return changed, nil
}

func progressOf(ledger *Ledger) *int {
	total := len(ledger.All)
	progress := 100
	if total > 0 {
		progress = 100 * (total - len(ledger.MonitoredJobs)) / total
	}
	return &progress
}
