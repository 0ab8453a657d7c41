// Package builtin holds the distributions every distributor ships with.
package builtin

import (
	"context"
	"time"

	"github.com/nuvla/job-engine-sub001/distribution"
	"github.com/nuvla/job-engine-sub001/resource"
)

// CleanupJobs is the job-type and action name of the job cleanup.
const CleanupJobs = "cleanup_jobs"

// Distributions lists the built-in distributions.
func Distributions(client resource.Client) []distribution.Distribution {
	return []distribution.Distribution{
		NewCleanupJobs(client),
	}
}

// Cleanup emits one cleanup_jobs job per interval unless one is still active.
type Cleanup struct {
	client resource.Client
}

func NewCleanupJobs(client resource.Client) *Cleanup {
	return &Cleanup{client: client}
}

func (c *Cleanup) Name() string { return CleanupJobs }

func (c *Cleanup) CollectInterval() time.Duration { return 24 * time.Hour }

func (c *Cleanup) Generate(ctx context.Context, emit func(distribution.Descriptor) error) error {
	return distribution.Dedup(ctx, c.client, emit)(distribution.Descriptor{
		Action:   CleanupJobs,
		Priority: 200,
	})
}
