package distribution

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nuvla/job-engine-sub001/internal/backoff"
	"github.com/nuvla/job-engine-sub001/logger"
	"github.com/nuvla/job-engine-sub001/resource"
)

// DefaultPublishBackoff is the pause after a failed job creation.
const DefaultPublishBackoff = time.Second

// Loop runs one distribution while its process holds leadership.
type Loop struct {
	Distribution Distribution
	Client       resource.Client
	Intervals    *Intervals
	// PublishBackoff paces retries after a failed publish (default 1s).
	PublishBackoff backoff.Strategy
	Logger         *zap.SugaredLogger
}

// Run generates and publishes batches until ctx is done, pausing the
// effective collect interval between batches. Generate and publish failures
// are logged; only ctx ends the loop.
func (l *Loop) Run(ctx context.Context) error {
	log := l.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.With(logger.FieldJobType, l.Distribution.Name())
	pause := l.PublishBackoff
	if pause == nil {
		pause = backoff.Constant{Interval: DefaultPublishBackoff}
	}

	log.Infow("Leading distribution")
	defer log.Infow("Distribution stopped")

	for {
		published, failed := 0, 0
		emit := func(d Descriptor) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := l.Client.Add(ctx, "job", d.Resource())
			if err != nil {
				failed++
				log.Warnw("Failed to publish job",
					logger.FieldAction, d.Action,
					logger.FieldTarget, d.TargetResource,
					logger.FieldError, err)
				return backoff.Sleep(ctx, pause.Delay(failed))
			}
			published++
			log.Debugw("Job published", logger.FieldJobID, id, logger.FieldAction, d.Action)
			return nil
		}

		if err := l.Distribution.Generate(ctx, emit); err != nil && ctx.Err() == nil {
			log.Warnw("Job generation failed", logger.FieldError, err)
		}
		interval := l.Intervals.For(l.Distribution.Name(), l.Distribution.CollectInterval())
		if published > 0 || failed > 0 {
			log.Infow("Distribution batch done",
				logger.FieldCount, published,
				"failed", failed,
				logger.FieldInterval, interval)
		}

		if err := backoff.Sleep(ctx, interval); err != nil {
			return nil
		}
	}
}
