package bulk

import (
	"context"

	"go.uber.org/zap"

	"github.com/nuvla/job-engine-sub001/errors"
	"github.com/nuvla/job-engine-sub001/job"
	"github.com/nuvla/job-engine-sub001/logger"
)

// Tracker is the job a bulk operation reports to. *job.Proxy satisfies it.
type Tracker interface {
	Job() job.Job
	Update(ctx context.Context, edit job.Edit) error
}

// Direct performs an action on each target synchronously.
type Direct struct {
	// Query returns the target ids. It runs once per bulk job.
	Query func(ctx context.Context) ([]string, error)
	// Do acts on one target. An error or panic fails only that target.
	Do func(ctx context.Context, id string) error
	// FinalProgress is the progress reached when every target is done (default 100).
	FinalProgress int
	Logger        *zap.SugaredLogger
}

// Run processes every pending target, persisting the ledger and progress
// after each one. Targets already in SUCCESS or FAILED are skipped, so running
// a complete bulk job again changes nothing. The returned error is a query or
// update failure; per-target failures are in the ledger.
func (d Direct) Run(ctx context.Context, t Tracker) (*Ledger, error) {
	log := d.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	final := d.FinalProgress
	if final <= 0 || final > 100 {
		final = 100
	}

	snapshot := t.Job()
	ledger := LoadLedger(snapshot.StatusMessage)

	if !ledger.Started() {
		ids, err := d.Query(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to query bulk targets")
		}
		ledger.SetTargets(ids)
		if err := persist(ctx, t, ledger, nil); err != nil {
			return nil, err
		}
		log.Infow("Bulk targets captured", logger.FieldTotal, len(ledger.All))
	}

	pending := ledger.Pending()
	if len(pending) == 0 {
		return ledger, nil
	}

	current := snapshot.Progress
	for i, id := range pending {
		if err := safeDo(ctx, d.Do, id); err != nil {
			log.Warnw("Bulk item failed", logger.FieldTarget, id, logger.FieldError, err)
			ledger.RecordFailure(id, err.Error())
		} else {
			ledger.RecordSuccess(id)
		}

		progress := current + (final-current)*(i+1)/len(pending)
		if err := persist(ctx, t, ledger, &progress); err != nil {
			return ledger, err
		}
	}

	log.Infow("Bulk operation finished",
		"success", len(ledger.Success),
		"failed", len(ledger.Failed),
		logger.FieldTotal, len(ledger.All))
	return ledger, nil
}

func safeDo(ctx context.Context, do func(context.Context, string) error, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
		}
	}()
	return do(ctx, id)
}

func persist(ctx context.Context, t Tracker, ledger *Ledger, progress *int) error {
	msg, err := ledger.Encode()
	if err != nil {
		return err
	}
	edit := job.Edit{Progress: progress}.WithStatusMessage(msg)
	if err := t.Update(ctx, edit); err != nil {
		return errors.Wrapf(err, "failed to persist bulk ledger (%d/%d)", ledger.Processed(), len(ledger.All))
	}
	return nil
}
