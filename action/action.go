// Package action defines the unit of work executors run for a job, and the
// registry that maps a job's action name to its implementation.
package action

import (
	"context"

	"go.uber.org/zap"

	"github.com/nuvla/job-engine-sub001/job"
	"github.com/nuvla/job-engine-sub001/resource"
)

// Action runs the work of one job.
//
// Do returns the job's return code (0 on success). A returned error marks the
// job FAILED with the error as its status message. Actions report progress and
// affected resources through Context.Job while they run.
//
// A job can be delivered again after an executor dies mid-run, so Do must be
// safe to resume; the bulk package covers the common fan-out case.
type Action interface {
	Do(ctx context.Context) (int, error)
}

// Func adapts a function to Action.
type Func func(ctx context.Context) (int, error)

// Do calls f.
func (f Func) Do(ctx context.Context) (int, error) {
	return f(ctx)
}

// Context is what an action is built with.
type Context struct {
	Job        *job.Proxy
	Client     resource.Client
	Logger     *zap.SugaredLogger
	EngineName string
}

// Constructor builds the action for one job.
type Constructor func(c *Context) Action

// Registration pairs an action name with its constructor.
type Registration struct {
	Name string
	New  Constructor
}
