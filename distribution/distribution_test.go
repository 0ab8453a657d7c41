package distribution

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuvla/job-engine-sub001/coord"
	"github.com/nuvla/job-engine-sub001/errors"
	"github.com/nuvla/job-engine-sub001/internal/backoff"
	enginetest "github.com/nuvla/job-engine-sub001/internal/testing"
	"github.com/nuvla/job-engine-sub001/resource"
	"github.com/nuvla/job-engine-sub001/resource/resourcetest"
)

type fakeDistribution struct {
	name     string
	interval time.Duration
	batch    []Descriptor
	err      error
	calls    atomic.Int32
}

func (f *fakeDistribution) Name() string                   { return f.name }
func (f *fakeDistribution) CollectInterval() time.Duration { return f.interval }

func (f *fakeDistribution) Generate(_ context.Context, emit func(Descriptor) error) error {
	f.calls.Add(1)
	for _, d := range f.batch {
		if err := emit(d); err != nil {
			return err
		}
	}
	return f.err
}

func TestDescriptorResource(t *testing.T) {
	d := Descriptor{
		Action:         "start_deployment",
		TargetResource: "deployment/1",
		Priority:       50,
		ParentJob:      "job/parent",
		Payload:        map[string]any{"action": "overridden", "retention-days": 3},
	}
	res := d.Resource()
	assert.Equal(t, "start_deployment", res["action"])
	assert.Equal(t, resource.Ref{Href: "deployment/1"}, res["target-resource"])
	assert.Equal(t, 50, res["priority"])
	assert.Equal(t, "job/parent", res["parent-job"])
	assert.Equal(t, 3, res["retention-days"])

	bare := Descriptor{Action: "cleanup_jobs"}.Resource()
	assert.Equal(t, map[string]any{"action": "cleanup_jobs"}, bare)
}

func TestIntervals(t *testing.T) {
	var none *Intervals
	assert.Equal(t, time.Minute, none.For("x", time.Minute))

	i := NewIntervals(map[string]int{"a": 30, "b": 0})
	assert.Equal(t, 30*time.Second, i.For("a", time.Hour))
	assert.Equal(t, time.Hour, i.For("b", time.Hour))

	i.Set(map[string]int{"b": 5})
	assert.Equal(t, time.Hour, i.For("a", time.Hour))
	assert.Equal(t, 5*time.Second, i.For("b", time.Hour))
}

func TestActiveJobExists(t *testing.T) {
	server := resourcetest.New()
	server.Put(resource.Resource{"id": "job/1", "action": "start", "state": "RUNNING",
		"target-resource": map[string]any{"href": "deployment/1"}})
	server.Put(resource.Resource{"id": "job/2", "action": "start", "state": "SUCCESS",
		"target-resource": map[string]any{"href": "deployment/2"}})
	ctx := context.Background()

	cases := []struct {
		action, target string
		want           bool
	}{
		{"start", "deployment/1", true},
		{"start", "deployment/2", false},
		{"start", "deployment/3", false},
		{"stop", "deployment/1", false},
		{"start", "", true},
	}
	for _, tc := range cases {
		got, err := ActiveJobExists(ctx, server, tc.action, tc.target)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s %s", tc.action, tc.target)
	}
}

func TestDedupSkipsActive(t *testing.T) {
	server := resourcetest.New()
	server.Put(resource.Resource{"id": "job/1", "action": "start", "state": "QUEUED",
		"target-resource": map[string]any{"href": "deployment/1"}})

	var emitted []string
	emit := Dedup(context.Background(), server, func(d Descriptor) error {
		emitted = append(emitted, d.TargetResource)
		return nil
	})
	require.NoError(t, emit(Descriptor{Action: "start", TargetResource: "deployment/1"}))
	require.NoError(t, emit(Descriptor{Action: "start", TargetResource: "deployment/2"}))
	assert.Equal(t, []string{"deployment/2"}, emitted)
}

func TestLoopPublishesBatches(t *testing.T) {
	server := resourcetest.New()
	dist := &fakeDistribution{
		name:     "start",
		interval: time.Millisecond,
		batch: []Descriptor{
			{Action: "start", TargetResource: "deployment/1"},
			{Action: "start", TargetResource: "deployment/2"},
		},
	}
	loop := &Loop{Distribution: dist, Client: server, Logger: enginetest.NewLogger(t)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return server.AddCount("job") >= 6 }, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, dist.calls.Load(), int32(3))
}

func TestLoopSurvivesPublishAndGenerateFailures(t *testing.T) {
	server := resourcetest.New()
	var attempts atomic.Int32
	server.ConflictOn(func(string, map[string]any) (string, bool) {
		return "", attempts.Add(1) <= 2
	})
	dist := &fakeDistribution{
		name:     "start",
		interval: time.Millisecond,
		batch:    []Descriptor{{Action: "start"}},
		err:      errors.New("generator hiccup"),
	}
	loop := &Loop{
		Distribution:   dist,
		Client:         server,
		PublishBackoff: backoff.Constant{Interval: time.Millisecond},
		Logger:         enginetest.NewLogger(t),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return server.AddCount("job") >= 2 }, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestLoopStopsDuringPause(t *testing.T) {
	server := resourcetest.New()
	dist := &fakeDistribution{name: "slow", interval: time.Hour}
	loop := &Loop{
		Distribution: dist,
		Client:       server,
		Intervals:    NewIntervals(map[string]int{"slow": 3600}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return dist.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop while pausing")
	}
}

func TestDistributorRunsEnabledDistributions(t *testing.T) {
	server := resourcetest.New()
	elector := coord.NewMemoryElector()
	a := &fakeDistribution{name: "a", interval: time.Hour}
	b := &fakeDistribution{name: "b", interval: time.Hour}
	excluded := &fakeDistribution{name: "c", interval: time.Hour}
	d := &Distributor{
		Elector:       elector,
		Client:        server,
		Distributions: []Distribution{a, b, excluded, &fakeDistribution{name: "a"}},
		Exclude:       []string{"c"},
		Logger:        enginetest.NewLogger(t),
	}

	names := []string{}
	for _, dist := range d.Enabled() {
		names = append(names, dist.Name())
	}
	assert.Equal(t, []string{"a", "b"}, names)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		return elector.Leading("a") && elector.Leading("b") && a.calls.Load() == 1 && b.calls.Load() == 1
	}, 5*time.Second, time.Millisecond)
	assert.False(t, elector.Leading("c"))
	assert.Zero(t, excluded.calls.Load())

	// losing leadership puts the process back into contention, and it wins again
	elector.Revoke("a")
	require.Eventually(t, func() bool { return a.calls.Load() == 2 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, int32(1), b.calls.Load())

	cancel()
	require.NoError(t, <-done)
}

func TestDistributorNothingEnabled(t *testing.T) {
	d := &Distributor{
		Elector:       coord.NewMemoryElector(),
		Distributions: []Distribution{&fakeDistribution{name: "a"}},
		Exclude:       []string{"a"},
	}
	require.Error(t, d.Run(context.Background()))
}

type failingElector struct{}

func (failingElector) Campaign(context.Context, string, func(context.Context) error) error {
	return errors.New("session lost")
}

func TestDistributorElectionFailureIsFatal(t *testing.T) {
	d := &Distributor{
		Elector:       failingElector{},
		Distributions: []Distribution{&fakeDistribution{name: "a"}, &fakeDistribution{name: "b"}},
	}
	err := d.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session lost")
}
