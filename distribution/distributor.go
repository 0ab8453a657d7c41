package distribution

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nuvla/job-engine-sub001/coord"
	"github.com/nuvla/job-engine-sub001/errors"
	"github.com/nuvla/job-engine-sub001/logger"
	"github.com/nuvla/job-engine-sub001/resource"
)

// Distributor contends for leadership of each enabled distribution and runs
// its Loop while leading.
type Distributor struct {
	Elector       coord.Elector
	Client        resource.Client
	Distributions []Distribution
	// Exclude lists job-types this process never runs.
	Exclude   []string
	Intervals *Intervals
	Logger    *zap.SugaredLogger
}

// Enabled returns the distributions not excluded, dropping repeated names.
func (d *Distributor) Enabled() []Distribution {
	excluded := make(map[string]bool, len(d.Exclude))
	for _, name := range d.Exclude {
		excluded[name] = true
	}
	var out []Distribution
	seen := map[string]bool{}
	for _, dist := range d.Distributions {
		name := dist.Name()
		if excluded[name] || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, dist)
	}
	return out
}

// Run blocks until ctx is done. An election failure stops every
// distribution and is returned.
func (d *Distributor) Run(ctx context.Context) error {
	log := d.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	enabled := d.Enabled()
	if len(enabled) == 0 {
		return errors.New("no distribution enabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(enabled))
	for _, dist := range enabled {
		loop := &Loop{
			Distribution: dist,
			Client:       d.Client,
			Intervals:    d.Intervals,
			Logger:       log,
		}
		name := dist.Name()
		g.Go(func() error {
			log.Infow("Contending for leadership", logger.FieldJobType, name)
			if err := d.Elector.Campaign(gctx, name, loop.Run); err != nil {
				return errors.Wrapf(err, "election for %s failed", name)
			}
			return nil
		})
	}
	return g.Wait()
}
