package job

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nuvla/job-engine-sub001/coord"
	"github.com/nuvla/job-engine-sub001/errors"
	"github.com/nuvla/job-engine-sub001/resource"
	"github.com/nuvla/job-engine-sub001/resource/resourcetest"
)

// recordingLease counts queue dispositions.
type recordingLease struct {
	id       string
	consumes int
	releases int
}

func (l *recordingLease) ID() []byte { return []byte(l.id) }

func (l *recordingLease) Consume(context.Context) (bool, error) {
	l.consumes++
	return true, nil
}

func (l *recordingLease) Release(context.Context) (bool, error) {
	l.releases++
	return true, nil
}

func testOptions(t *testing.T, engine string) Options {
	return Options{
		FetchAttempts: 3,
		FetchDelay:    0,
		EngineVersion: engine,
		Logger:        zaptest.NewLogger(t).Sugar(),
	}
}

func putJob(server *resourcetest.Server, id string, attrs map[string]any) {
	doc := resource.Resource{
		"id":              id,
		"action":          "start_deployment",
		"state":           "QUEUED",
		"progress":        0,
		"target-resource": map[string]any{"href": "deployment/1"},
	}
	for k, v := range attrs {
		doc[k] = v
	}
	server.Put(doc)
}

func TestVersionGate(t *testing.T) {
	tests := []struct {
		name        string
		jobVersion  any
		engine      string
		nothingToDo bool
		consumes    int
		releases    int
	}{
		{"stale full version", "1.2.3", "3.2.1", true, 1, 0},
		{"stale major only", "1", "3.2.1", true, 1, 0},
		{"equal", "7.6.5", "7.6.5", false, 0, 0},
		{"too new", "0.0.2", "0.0.1", true, 0, 1},
		{"missing vs 2.0.0", nil, "2.0.0", true, 1, 0},
		{"missing vs 0.0.1", nil, "0.0.1", false, 0, 0},
		{"missing vs 1.0.0", nil, "1.0.0", false, 0, 0},
		{"missing vs 1.2.3", nil, "1.2.3", false, 0, 0},
		{"numeric version", float64(2), "2.0.0", false, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := resourcetest.New()
			attrs := map[string]any{}
			if tt.jobVersion != nil {
				attrs["version"] = tt.jobVersion
			}
			putJob(server, "job/1", attrs)
			lease := &recordingLease{id: "job/1"}

			p, err := NewProxy(context.Background(), server, lease, testOptions(t, tt.engine))
			require.NoError(t, err)

			assert.Equal(t, tt.nothingToDo, p.NothingToDo())
			assert.Equal(t, tt.consumes, lease.consumes)
			assert.Equal(t, tt.releases, lease.releases)
			assert.Empty(t, server.Edits("job/1"), "gate never edits the job")
		})
	}
}

func TestNonexistentJobIsConsumed(t *testing.T) {
	server := resourcetest.New()
	lease := &recordingLease{id: "job/ghost"}

	p, err := NewProxy(context.Background(), server, lease, testOptions(t, "1.0.0"))
	require.NoError(t, err)

	assert.True(t, p.NothingToDo())
	assert.Equal(t, 1, lease.consumes)
	assert.Equal(t, 0, lease.releases)
	assert.Equal(t, 3, server.GetCount("job/ghost"), "whole attempt budget is spent")
}

func TestFetchToleratesPropagationLag(t *testing.T) {
	server := resourcetest.New()
	putJob(server, "job/1", nil)
	server.NotFoundFor("job/1", 2)
	lease := &recordingLease{id: "job/1"}

	p, err := NewProxy(context.Background(), server, lease, testOptions(t, "1.0.0"))
	require.NoError(t, err)
	assert.False(t, p.NothingToDo())
	assert.Equal(t, "start_deployment", p.Job().Action)
	assert.Equal(t, 0, lease.consumes+lease.releases)
}

func TestFetchFailureReleases(t *testing.T) {
	server := resourcetest.New()
	putJob(server, "job/1", nil)
	unavailable := resource.NewRemoteError(503, "unavailable", "")
	server.FailGets("job/1", unavailable, unavailable, unavailable)
	lease := &recordingLease{id: "job/1"}

	_, err := NewProxy(context.Background(), server, lease, testOptions(t, "1.0.0"))
	require.Error(t, err)
	assert.Equal(t, 503, resource.StatusOf(err))
	assert.Equal(t, 1, lease.releases)
	assert.Equal(t, 0, lease.consumes)
}

func TestFinalJobIsConsumed(t *testing.T) {
	for _, state := range []State{StateSuccess, StateFailed} {
		t.Run(string(state), func(t *testing.T) {
			server := resourcetest.New()
			putJob(server, "job/1", map[string]any{"state": string(state)})
			lease := &recordingLease{id: "job/1"}

			p, err := NewProxy(context.Background(), server, lease, testOptions(t, "1.0.0"))
			require.NoError(t, err)
			assert.True(t, p.NothingToDo())
			assert.Equal(t, 1, lease.consumes)
		})
	}
}

func TestRunningJobProceeds(t *testing.T) {
	server := resourcetest.New()
	putJob(server, "job/1", map[string]any{"state": "RUNNING", "progress": 30})
	lease := &recordingLease{id: "job/1"}

	p, err := NewProxy(context.Background(), server, lease, testOptions(t, "1.0.0"))
	require.NoError(t, err)
	assert.False(t, p.NothingToDo())
	assert.Equal(t, 30, p.Job().Progress)
}

func newRunnableProxy(t *testing.T) (*Proxy, *resourcetest.Server, *recordingLease) {
	t.Helper()
	server := resourcetest.New()
	putJob(server, "job/1", nil)
	lease := &recordingLease{id: "job/1"}
	p, err := NewProxy(context.Background(), server, lease, testOptions(t, "1.0.0"))
	require.NoError(t, err)
	require.False(t, p.NothingToDo())
	return p, server, lease
}

func TestSetProgressValidation(t *testing.T) {
	p, server, lease := newRunnableProxy(t)
	ctx := context.Background()

	for _, bad := range []int{-1, 101} {
		err := p.SetProgress(ctx, bad)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	}
	assert.Empty(t, server.Edits("job/1"))
	assert.Equal(t, 0, lease.releases, "invalid input does not give the job away")

	require.NoError(t, p.SetProgress(ctx, 40))
	require.NoError(t, p.SetProgress(ctx, 20), "regression is ignored")
	assert.Equal(t, 40, p.Job().Progress)
	assert.Len(t, server.Edits("job/1"), 1)
}

func TestSetStateValidation(t *testing.T) {
	p, server, _ := newRunnableProxy(t)

	err := p.SetState(context.Background(), State("EXPLODED"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	assert.Empty(t, server.Edits("job/1"))
}

func TestTerminalUpdateConsumes(t *testing.T) {
	p, server, lease := newRunnableProxy(t)
	ctx := context.Background()

	require.NoError(t, p.SetState(ctx, StateRunning))
	assert.Equal(t, 0, lease.consumes)

	require.NoError(t, p.Update(ctx, Finish(StateSuccess).WithReturnCode(0)))
	assert.Equal(t, 1, lease.consumes)

	snapshot := p.Job()
	assert.Equal(t, StateSuccess, snapshot.State)
	require.NotNil(t, snapshot.ReturnCode)
	assert.Equal(t, 0, *snapshot.ReturnCode)

	doc, _ := server.Doc("job/1")
	assert.Equal(t, "SUCCESS", doc.String("state"))
}

func TestUpdateFailureReleases(t *testing.T) {
	p, server, lease := newRunnableProxy(t)
	ctx := context.Background()
	server.FailEdits("job/1", resource.NewRemoteError(500, "boom", "job/1"))

	err := p.SetStatusMessage(ctx, "working")
	require.Error(t, err)
	assert.True(t, errors.IsUpdateFailed(err))
	assert.Equal(t, 500, resource.StatusOf(err))
	assert.Equal(t, 1, lease.releases)

	// the entry may belong to another worker now
	err = p.SetProgress(ctx, 50)
	assert.True(t, errors.IsUpdateFailed(err))
	assert.Empty(t, server.Edits("job/1"))
	assert.Equal(t, 1, lease.releases)
	assert.Equal(t, 0, lease.consumes)
}

func TestAddAffectedResourcesDeduplicates(t *testing.T) {
	p, server, _ := newRunnableProxy(t)
	ctx := context.Background()

	require.NoError(t, p.AddAffectedResources(ctx, resource.Ref{Href: "deployment/1"}, resource.Ref{Href: "nuvlabox/2"}))
	require.NoError(t, p.AddAffectedResources(ctx, resource.Ref{Href: "nuvlabox/2"}))
	require.NoError(t, p.AddAffectedResources(ctx, resource.Ref{Href: "nuvlabox/2"}, resource.Ref{Href: "credential/3"}))

	assert.Equal(t, []resource.Ref{
		{Href: "deployment/1"}, {Href: "nuvlabox/2"}, {Href: "credential/3"},
	}, p.Job().AffectedResources)
	assert.Len(t, server.Edits("job/1"), 2, "an edit that adds nothing is skipped")

	err := p.AddAffectedResources(ctx, resource.Ref{})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestRedeliveryRecordsOneTerminalTransition(t *testing.T) {
	server := resourcetest.New()
	putJob(server, "job/1", nil)
	queue := coord.NewMemoryQueue()
	queue.Put("job/1", 0)
	queue.Put("job/1", 0)
	ctx := context.Background()

	first, err := queue.Acquire(ctx)
	require.NoError(t, err)
	second, err := queue.Acquire(ctx)
	require.NoError(t, err)

	p1, err := NewProxy(ctx, server, first, testOptions(t, "1.0.0"))
	require.NoError(t, err)
	require.False(t, p1.NothingToDo())
	require.NoError(t, p1.SetState(ctx, StateRunning))
	require.NoError(t, p1.SetState(ctx, StateSuccess))

	p2, err := NewProxy(ctx, server, second, testOptions(t, "1.0.0"))
	require.NoError(t, err)
	assert.True(t, p2.NothingToDo())

	terminal := 0
	for _, edit := range server.Edits("job/1") {
		if s, ok := edit["state"].(string); ok && State(s).IsFinal() {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal)
	assert.Equal(t, 0, queue.Len())
	consumes, releases := queue.Stats()
	assert.Equal(t, 2, consumes)
	assert.Equal(t, 0, releases)
}

func TestNewProxyForJob(t *testing.T) {
	server := resourcetest.New()
	putJob(server, "job/pull", map[string]any{"execution-mode": "pull"})

	p, err := NewProxyForJob(context.Background(), server, "job/pull", testOptions(t, "1.0.0"))
	require.NoError(t, err)
	assert.False(t, p.NothingToDo())
	assert.Equal(t, ExecutionModePull, p.Job().ExecutionMode)
	require.NoError(t, p.SetState(context.Background(), StateSuccess))

	_, err = NewProxyForJob(context.Background(), server, "job/missing", testOptions(t, "1.0.0"))
	assert.True(t, errors.Is(err, errors.ErrNonexistentJob))
}
