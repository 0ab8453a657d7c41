// Package executor runs jobs from the shared queue on a fixed pool of workers.
package executor

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nuvla/job-engine-sub001/action"
	"github.com/nuvla/job-engine-sub001/coord"
	"github.com/nuvla/job-engine-sub001/errors"
	"github.com/nuvla/job-engine-sub001/internal/backoff"
	"github.com/nuvla/job-engine-sub001/job"
	"github.com/nuvla/job-engine-sub001/logger"
	"github.com/nuvla/job-engine-sub001/resource"
)

// Config controls the worker pool.
type Config struct {
	Workers       int           // default 1
	FetchAttempts int           // job fetch attempts, default 10
	FetchDelay    time.Duration // pause between fetch attempts
	EngineVersion string        // compared against each job's version
	EngineName    string        // handed to actions
	// RequeueDelay is how long a released entry is held back before it
	// returns to the queue (default backoff.QueueJitter).
	RequeueDelay backoff.Strategy
}

// Executor pulls jobs from the queue and runs their actions.
type Executor struct {
	queue    coord.Queue
	client   resource.Client
	registry *action.Registry
	cfg      Config
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	active   int
	deferred sync.WaitGroup
}

// New builds an executor. The registry must be complete before Run.
func New(queue coord.Queue, client resource.Client, registry *action.Registry, cfg Config, log *zap.SugaredLogger) *Executor {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.RequeueDelay == nil {
		cfg.RequeueDelay = backoff.QueueJitter
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Executor{
		queue:    queue,
		client:   client,
		registry: registry,
		cfg:      cfg,
		logger:   log,
	}
}

// Run starts the workers and blocks until ctx is done and every worker has
// finished its current job. A queue failure other than cancellation stops all
// workers and is returned.
func (e *Executor) Run(ctx context.Context) error {
	if warning := memoryPressure(e.cfg.Workers); warning != "" {
		e.logger.Warnw("Memory pressure warning", "warning", warning, "workers", e.cfg.Workers)
	}
	e.logger.Infow("Executor started", "workers", e.cfg.Workers, "actions", e.registry.Names())

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < e.cfg.Workers; i++ {
		g.Go(func() error {
			return e.worker(gctx, i)
		})
	}
	err := g.Wait()
	e.deferred.Wait()
	e.logger.Infow("Executor stopped")
	return err
}

// Active returns the number of workers currently running a job.
func (e *Executor) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Executor) worker(ctx context.Context, id int) error {
	log := e.logger.With(logger.FieldWorkerID, id)
	for ctx.Err() == nil {
		lease, err := e.queue.Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Errorw("Queue acquire failed", logger.FieldError, err)
			return errors.Wrapf(err, "worker %d: failed to acquire job", id)
		}
		// the job in hand is finished even when shutdown starts meanwhile
		e.process(context.WithoutCancel(ctx), &deferredLease{Lease: lease, exec: e, shutdown: ctx, log: log}, log)
	}
	return nil
}

// deferredLease holds a released entry back for a pause, so its worker moves
// on to the entries behind it instead of taking the same one straight back.
type deferredLease struct {
	coord.Lease
	exec     *Executor
	shutdown context.Context
	log      *zap.SugaredLogger
	once     sync.Once
}

func (l *deferredLease) Release(context.Context) (bool, error) {
	l.once.Do(func() { l.exec.requeue(l.shutdown, l.Lease, l.log) })
	return true, nil
}

// requeue releases lease after the requeue delay, or at once when ctx ends.
func (e *Executor) requeue(ctx context.Context, lease coord.Lease, log *zap.SugaredLogger) {
	delay := e.cfg.RequeueDelay.Delay(1)
	e.deferred.Add(1)
	go func() {
		defer e.deferred.Done()
		_ = backoff.Sleep(ctx, delay)
		if _, err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.Errorw("Failed to release queue entry",
				logger.FieldJobID, string(lease.ID()),
				logger.FieldError, err)
		}
	}()
}

func (e *Executor) process(ctx context.Context, lease coord.Lease, log *zap.SugaredLogger) {
	e.mu.Lock()
	e.active++
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.active--
		e.mu.Unlock()
	}()

	proxy, err := job.NewProxy(ctx, e.client, lease, e.proxyOptions(log))
	if err != nil {
		log.Warnw("Failed to load job, released", logger.FieldJobID, string(lease.ID()), logger.FieldError, err)
		return
	}
	if proxy.NothingToDo() {
		return
	}
	if err := e.execute(ctx, proxy, log); err != nil {
		e.logOutcomeError(proxy, log, err)
	}
}

// RunOne executes a single job by id without going through the queue.
func (e *Executor) RunOne(ctx context.Context, id string) error {
	log := e.logger.With(logger.FieldJobID, id)
	proxy, err := job.NewProxyForJob(ctx, e.client, id, e.proxyOptions(log))
	if err != nil {
		return err
	}
	if proxy.NothingToDo() {
		log.Infow("Nothing to do for job", logger.FieldState, proxy.Job().State)
		return nil
	}
	return e.execute(ctx, proxy, log)
}

func (e *Executor) proxyOptions(log *zap.SugaredLogger) job.Options {
	return job.Options{
		FetchAttempts: e.cfg.FetchAttempts,
		FetchDelay:    e.cfg.FetchDelay,
		EngineVersion: e.cfg.EngineVersion,
		Logger:        log,
	}
}

// execute runs the job's action and records how it ended.
func (e *Executor) execute(ctx context.Context, proxy *job.Proxy, log *zap.SugaredLogger) error {
	j := proxy.Job()
	log = log.With(logger.FieldJobID, j.ID, logger.FieldAction, j.Action)

	if err := proxy.SetState(ctx, job.StateRunning); err != nil {
		return err
	}

	ctor, ok := e.registry.Lookup(j.Action)
	if !ok {
		log.Warnw("Action not implemented, dropping job")
		msg := fmt.Sprintf("not implemented action %q", j.Action)
		return proxy.Update(ctx, job.Finish(job.StateFailed).WithStatusMessage(msg))
	}

	start := time.Now()
	code, err := run(ctx, ctor, &action.Context{
		Job:        proxy,
		Client:     e.client,
		Logger:     log,
		EngineName: e.cfg.EngineName,
	})
	if errors.IsUpdateFailed(err) {
		return err
	}
	if err != nil {
		log.Warnw("Action failed", logger.FieldError, err, "duration", time.Since(start))
		return proxy.Update(ctx, job.Finish(job.StateFailed).WithStatusMessage(describe(err)))
	}

	log.Infow("Action finished", logger.FieldReturnCode, code, "duration", time.Since(start))
	return proxy.Update(ctx, job.Finish(job.StateSuccess).WithReturnCode(code))
}

// run builds and runs an action, turning a panic into an error.
func run(ctx context.Context, ctor action.Constructor, c *action.Context) (code int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
		}
	}()
	return ctor(c).Do(ctx)
}

// describe renders an action error as "<cause type>: <message>", naming the
// innermost cause that is not plumbing from the errors packages.
func describe(err error) string {
	name := "error"
	for cause := err; cause != nil; cause = errors.UnwrapOnce(cause) {
		if !plumbing(cause) {
			name = fmt.Sprintf("%T", cause)
		}
	}
	return name + ": " + err.Error()
}

func plumbing(err error) bool {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	pkg := t.PkgPath()
	return pkg == "errors" || pkg == "fmt" || strings.HasPrefix(pkg, "github.com/cockroachdb/errors")
}

func (e *Executor) logOutcomeError(proxy *job.Proxy, log *zap.SugaredLogger, err error) {
	fields := []interface{}{logger.FieldJobID, proxy.ID(), logger.FieldError, err}
	if errors.IsUpdateFailed(err) {
		log.Warnw("Job update failed, entry released for retry", fields...)
		return
	}
	log.Errorw("Failed to record job outcome", fields...)
}
