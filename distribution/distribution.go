// Package distribution generates jobs. Each distribution (job-type) runs on
// exactly one distributor process at a time: the one holding that job-type's
// election token.
package distribution

import (
	"context"
	"time"

	"github.com/nuvla/job-engine-sub001/job"
	"github.com/nuvla/job-engine-sub001/resource"
)

// Descriptor describes a job to create.
type Descriptor struct {
	Action         string
	TargetResource string
	Priority       int
	ParentJob      string
	// Payload holds action specific attributes.
	Payload map[string]any
}

// Resource renders the descriptor as a job creation payload.
func (d Descriptor) Resource() map[string]any {
	out := make(map[string]any, len(d.Payload)+4)
	for k, v := range d.Payload {
		out[k] = v
	}
	out[job.AttrAction] = d.Action
	if d.TargetResource != "" {
		out[job.AttrTargetResource] = resource.Ref{Href: d.TargetResource}
	}
	if d.Priority != 0 {
		out[job.AttrPriority] = d.Priority
	}
	if d.ParentJob != "" {
		out[job.AttrParentJob] = d.ParentJob
	}
	return out
}

// Distribution produces the jobs of one job-type.
type Distribution interface {
	// Name is the job-type, used as the election name and for config overrides.
	Name() string
	// CollectInterval is the default pause between two Generate calls.
	CollectInterval() time.Duration
	// Generate emits one batch of descriptors. It stops early when emit
	// returns an error, which happens once ctx is done.
	Generate(ctx context.Context, emit func(Descriptor) error) error
}
