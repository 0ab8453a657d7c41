package job

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nuvla/job-engine-sub001/coord"
	"github.com/nuvla/job-engine-sub001/errors"
	"github.com/nuvla/job-engine-sub001/logger"
	"github.com/nuvla/job-engine-sub001/resource"
)

// Options configures proxy construction.
type Options struct {
	FetchAttempts int           // default 10
	FetchDelay    time.Duration // default 1s
	EngineVersion string
	Logger        *zap.SugaredLogger
}

func (o Options) withDefaults() Options {
	if o.FetchAttempts <= 0 {
		o.FetchAttempts = 10
	}
	if o.FetchDelay < 0 {
		o.FetchDelay = 0
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	return o
}

// Proxy is the queue-aware view of a remote job. It is the only way an
// executor mutates a job: every successful edit refreshes the snapshot, a
// terminal state consumes the queue entry, and a failed edit releases it.
type Proxy struct {
	client resource.Client
	lease  coord.Lease // nil for jobs run outside the queue
	logger *zap.SugaredLogger

	mu          sync.Mutex
	job         Job
	nothingToDo bool
	disposed    bool // lease consumed or released
	released    bool
}

// NewProxy builds a proxy for a held queue entry and settles the entry when
// there is nothing to run: a job that never appears or is already terminal is
// consumed, a stale job is consumed, a job too new for this engine is
// released. An error means the job could not be read and the entry was
// released.
func NewProxy(ctx context.Context, client resource.Client, lease coord.Lease, opts Options) (*Proxy, error) {
	opts = opts.withDefaults()
	id := string(lease.ID())
	p := &Proxy{
		client: client,
		lease:  lease,
		logger: opts.Logger.With(logger.FieldJobID, id),
		job:    Job{ID: id},
	}

	j, outcome, err := Fetch(ctx, client, id, opts.FetchAttempts, opts.FetchDelay)
	if err != nil {
		p.release(ctx)
		return nil, err
	}

	switch {
	case outcome == Nonexistent:
		p.logger.Warnw("Job does not exist, dropping queue entry", logger.FieldAttempt, opts.FetchAttempts)
		p.nothingToDo = true
		p.consume(ctx)
		return p, nil
	case j.State.IsFinal():
		p.job = j
		p.logger.Warnw("Job already in final state, dropping queue entry", logger.FieldState, j.State)
		p.nothingToDo = true
		p.consume(ctx)
		return p, nil
	}

	p.job = j
	p.gate(ctx, opts.EngineVersion)
	return p, nil
}

// NewProxyForJob builds a proxy for a job id with no queue entry, as used by
// pull-mode execution. Nothing is consumed or released.
func NewProxyForJob(ctx context.Context, client resource.Client, id string, opts Options) (*Proxy, error) {
	opts = opts.withDefaults()
	p := &Proxy{
		client: client,
		logger: opts.Logger.With(logger.FieldJobID, id),
		job:    Job{ID: id},
	}

	j, outcome, err := Fetch(ctx, client, id, opts.FetchAttempts, opts.FetchDelay)
	if err != nil {
		return nil, err
	}
	if outcome == Nonexistent {
		return nil, errors.Wrapf(errors.ErrNonexistentJob, "job %s", id)
	}
	p.job = j
	if j.State.IsFinal() {
		p.logger.Warnw("Job already in final state", logger.FieldState, j.State)
		p.nothingToDo = true
		return p, nil
	}
	p.gate(ctx, opts.EngineVersion)
	return p, nil
}

func (p *Proxy) gate(ctx context.Context, engineVersion string) {
	switch CheckVersion(p.job.Version, engineVersion) {
	case Stale:
		p.logger.Warnw("Job version too old for this engine, dropping",
			logger.FieldVersion, p.job.Version, "engine_version", engineVersion)
		p.nothingToDo = true
		p.consume(ctx)
		return
	case TooNew:
		p.logger.Infow("Job version newer than this engine, releasing",
			logger.FieldVersion, p.job.Version, "engine_version", engineVersion)
		p.nothingToDo = true
		p.release(ctx)
		return
	}

	if p.job.State == StateRunning {
		p.logger.Warnw("Job already running, a previous executor may have died; proceeding")
	}
}

// Job returns the current snapshot.
func (p *Proxy) Job() Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.job
}

// ID returns the job id.
func (p *Proxy) ID() string {
	return p.Job().ID
}

// NothingToDo reports that construction settled the queue entry and there
// is nothing to execute.
func (p *Proxy) NothingToDo() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nothingToDo
}

// SetProgress sets progress. Values outside [0,100] are rejected; a value
// below the current progress is ignored.
func (p *Proxy) SetProgress(ctx context.Context, progress int) error {
	return p.Update(ctx, Edit{Progress: &progress})
}

// SetStatusMessage sets the status message.
func (p *Proxy) SetStatusMessage(ctx context.Context, msg string) error {
	return p.Update(ctx, Edit{StatusMessage: &msg})
}

// SetReturnCode sets the return code.
func (p *Proxy) SetReturnCode(ctx context.Context, code int) error {
	return p.Update(ctx, Edit{ReturnCode: &code})
}

// SetState sets the state. Undefined states are rejected.
func (p *Proxy) SetState(ctx context.Context, state State) error {
	return p.Update(ctx, Edit{State: &state})
}

// AddAffectedResources appends references, keeping the set ordered and free of duplicates.
func (p *Proxy) AddAffectedResources(ctx context.Context, refs ...resource.Ref) error {
	return p.Update(ctx, Edit{AffectedResources: refs})
}

// Update applies an edit to the remote job. Invalid input returns an error
// marked errors.ErrInvalidRequest and leaves the lease alone. A remote failure
// releases the lease and returns an error marked errors.ErrUpdateFailed; the
// caller must abandon the current execution.
func (p *Proxy) Update(ctx context.Context, edit Edit) error {
	if err := edit.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	current := p.job
	released := p.released
	p.mu.Unlock()

	if released {
		return errors.Wrapf(errors.ErrUpdateFailed, "job %s: queue entry already released", current.ID)
	}

	partial := edit.partial(current)
	if len(partial) == 0 {
		return nil
	}

	res, err := p.client.Edit(ctx, current.ID, partial)
	if err != nil {
		p.logger.Errorw("Failed to update job, releasing queue entry", logger.FieldError, err)
		p.release(ctx)
		return errors.Wrapf(errors.Mark(err, errors.ErrUpdateFailed), "failed to update job %s", current.ID)
	}

	var updated Job
	if res.ID() == "" {
		updated = current.merged(partial)
	} else {
		updated = FromResource(res)
	}

	p.mu.Lock()
	p.job = updated
	p.mu.Unlock()

	if updated.State.IsFinal() {
		p.consume(ctx)
	}
	return nil
}

func (p *Proxy) consume(ctx context.Context) {
	if !p.dispose() {
		return
	}
	if _, err := p.lease.Consume(ctx); err != nil {
		p.logger.Errorw("Failed to consume queue entry", logger.FieldError, err)
	}
}

func (p *Proxy) release(ctx context.Context) {
	if !p.dispose() {
		return
	}
	p.mu.Lock()
	p.released = true
	p.mu.Unlock()
	if _, err := p.lease.Release(ctx); err != nil {
		p.logger.Errorw("Failed to release queue entry", logger.FieldError, err)
	}
}

// dispose marks the lease settled and reports whether the caller should act on it.
func (p *Proxy) dispose() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lease == nil || p.disposed {
		return false
	}
	p.disposed = true
	return true
}
