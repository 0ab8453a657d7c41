// Package engine composes the process runtime shared by distributor and
// executor processes: configuration, Resource API client, coordination
// service clients and logging.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/nuvla/job-engine-sub001/action"
	"github.com/nuvla/job-engine-sub001/config"
	"github.com/nuvla/job-engine-sub001/coord"
	"github.com/nuvla/job-engine-sub001/distribution"
	"github.com/nuvla/job-engine-sub001/errors"
	"github.com/nuvla/job-engine-sub001/executor"
	"github.com/nuvla/job-engine-sub001/internal/backoff"
	"github.com/nuvla/job-engine-sub001/internal/httpclient"
	"github.com/nuvla/job-engine-sub001/resource"
	"github.com/nuvla/job-engine-sub001/version"
)

// Runtime is what every engine process holds.
type Runtime struct {
	// Identity names this process in elections and logs.
	Identity  string
	Config    *config.Config
	Client    resource.Client
	Queue     coord.Queue
	Elector   coord.Elector
	Intervals *distribution.Intervals
	Logger    *zap.SugaredLogger

	closers []func() error
}

// New connects to the Resource API and the coordination service. Any
// failure here is a startup failure.
func New(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*Runtime, error) {
	api, err := NewClient(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	etcd, err := coord.Dial(ctx, cfg.Coord.Hosts, time.Duration(cfg.Coord.DialTimeoutSeconds)*time.Second, log)
	if err != nil {
		return nil, err
	}
	rt, err := connect(cfg, api, etcd, log)
	if err != nil {
		etcd.Close()
		return nil, err
	}
	return rt, nil
}

// NewClient builds the Resource API client and logs in when an API key is
// configured.
func NewClient(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*resource.HTTPClient, error) {
	httpClient, err := httpclient.New(httpclient.Options{
		Timeout:  time.Duration(cfg.API.TimeoutSeconds) * time.Second,
		Workers:  cfg.Executor.Workers,
		Insecure: cfg.API.Insecure,
	})
	if err != nil {
		return nil, err
	}
	api := resource.NewHTTPClient(resource.HTTPConfig{
		Endpoint:          cfg.API.Endpoint,
		HTTP:              httpClient,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		UserAgent:         version.UserAgent(),
		Logger:            log.Named("api"),
	})
	if cfg.API.Key == "" {
		log.Warnw("No API key configured, running unauthenticated", "endpoint", cfg.API.Endpoint)
		return api, nil
	}
	if err := api.Login(ctx, cfg.API.Key, cfg.API.Secret); err != nil {
		return nil, errors.Wrapf(err, "cannot authenticate to %s", cfg.API.Endpoint)
	}
	return api, nil
}

func connect(cfg *config.Config, api resource.Client, etcd *clientv3.Client, log *zap.SugaredLogger) (*Runtime, error) {
	identity := Identity(cfg.Name)
	queue, err := coord.NewEtcdQueue(etcd, cfg.Coord.Prefix, cfg.Coord.SessionTTLSeconds, log.Named("queue"))
	if err != nil {
		return nil, err
	}
	elector := coord.NewEtcdElector(etcd, cfg.Coord.Prefix, cfg.Coord.SessionTTLSeconds, identity, log.Named("election"))

	rt := Compose(cfg, api, queue, elector, log)
	rt.Identity = identity
	rt.closers = append(rt.closers, queue.Close, etcd.Close)
	return rt, nil
}

// Compose assembles a runtime from ready collaborators. The queue is
// wrapped so consume and release are retried with jitter.
func Compose(cfg *config.Config, client resource.Client, queue coord.Queue, elector coord.Elector, log *zap.SugaredLogger) *Runtime {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Runtime{
		Identity:  cfg.Name,
		Config:    cfg,
		Client:    client,
		Queue:     coord.WithRetry(queue, backoff.QueueJitter, log.Named("queue")),
		Elector:   elector,
		Intervals: distribution.NewIntervals(cfg.Distributor.Intervals),
		Logger:    log,
	}
}

// Standalone assembles a runtime without a coordination service, for
// running single jobs by id.
func Standalone(cfg *config.Config, client resource.Client, log *zap.SugaredLogger) *Runtime {
	return Compose(cfg, client, coord.NewMemoryQueue(), coord.NewMemoryElector(), log)
}

// Identity returns a process identity unique within a fleet sharing name.
func Identity(name string) string {
	return name + "-" + uuid.NewString()[:8]
}

// Executor builds the worker pool for this runtime.
func (r *Runtime) Executor(registry *action.Registry) *executor.Executor {
	return executor.New(r.Queue, r.Client, registry, executor.Config{
		Workers:       r.Config.Executor.Workers,
		FetchAttempts: r.Config.Executor.FetchAttempts,
		FetchDelay:    time.Duration(r.Config.Executor.FetchDelayMS) * time.Millisecond,
		EngineVersion: version.Engine(),
		EngineName:    r.Config.Name,
	}, r.Logger.Named("executor"))
}

// Distributor builds the distributor for this runtime.
func (r *Runtime) Distributor(dists []distribution.Distribution) *distribution.Distributor {
	return &distribution.Distributor{
		Elector:       r.Elector,
		Client:        r.Client,
		Distributions: dists,
		Exclude:       r.Config.Distributor.Exclude,
		Intervals:     r.Intervals,
		Logger:        r.Logger.Named("distributor"),
	}
}

// Reload applies the parts of cfg that can change while running.
func (r *Runtime) Reload(cfg *config.Config) error {
	r.Intervals.Set(cfg.Distributor.Intervals)
	r.Logger.Infow("Distribution intervals reloaded", "intervals", cfg.Distributor.Intervals)
	return nil
}

// Close releases coordination sessions and connections.
func (r *Runtime) Close() error {
	var errs []error
	for _, closeFn := range r.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
