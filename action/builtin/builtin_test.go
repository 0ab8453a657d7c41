package builtin

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuvla/job-engine-sub001/action"
	"github.com/nuvla/job-engine-sub001/bulk"
	enginetest "github.com/nuvla/job-engine-sub001/internal/testing"
	"github.com/nuvla/job-engine-sub001/job"
	"github.com/nuvla/job-engine-sub001/resource"
	"github.com/nuvla/job-engine-sub001/resource/resourcetest"
)

func actionContext(t *testing.T, server *resourcetest.Server, doc resource.Resource) *action.Context {
	t.Helper()
	server.Put(doc)
	log := enginetest.NewLogger(t)
	p, err := job.NewProxyForJob(context.Background(), server, doc.ID(), job.Options{FetchAttempts: 1, Logger: log})
	require.NoError(t, err)
	return &action.Context{Job: p, Client: server, Logger: log, EngineName: "test-engine"}
}

func TestRegistrations(t *testing.T) {
	reg := action.NewRegistry(enginetest.NewLogger(t), Registrations()...)
	assert.Equal(t, []string{BulkCancelJobs, CancelJob, CleanupJobs}, reg.Names())
}

func TestCancelRunningJob(t *testing.T) {
	server := resourcetest.New()
	server.Put(resource.Resource{"id": "job/victim", "action": "long_op", "state": "RUNNING"})
	c := actionContext(t, server, resource.Resource{
		"id": "job/cancel", "action": CancelJob, "state": "RUNNING",
		"target-resource": map[string]any{"href": "job/victim"},
	})

	code, err := NewCancel(c).Do(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	victim, _ := server.Doc("job/victim")
	assert.Equal(t, "STOPPING", victim["state"])
	snapshot := c.Job.Job()
	assert.Equal(t, []resource.Ref{{Href: "job/victim"}}, snapshot.AffectedResources)
	assert.Equal(t, "job/victim asked to stop", snapshot.StatusMessage)
}

func TestCancelLeavesFinishedJobs(t *testing.T) {
	for _, state := range []string{"SUCCESS", "FAILED", "STOPPED", "STOPPING"} {
		t.Run(state, func(t *testing.T) {
			server := resourcetest.New()
			server.Put(resource.Resource{"id": "job/victim", "state": state})
			c := actionContext(t, server, resource.Resource{
				"id": "job/cancel", "action": CancelJob, "state": "RUNNING",
				"target-resource": map[string]any{"href": "job/victim"},
			})

			_, err := NewCancel(c).Do(context.Background())
			require.NoError(t, err)
			victim, _ := server.Doc("job/victim")
			assert.Equal(t, state, victim["state"])
			assert.Empty(t, server.Edits("job/victim"))
		})
	}
}

func TestCancelWithoutTarget(t *testing.T) {
	server := resourcetest.New()
	c := actionContext(t, server, resource.Resource{"id": "job/cancel", "action": CancelJob, "state": "RUNNING"})
	_, err := NewCancel(c).Do(context.Background())
	require.Error(t, err)
}

func TestCancelMissingTarget(t *testing.T) {
	server := resourcetest.New()
	c := actionContext(t, server, resource.Resource{
		"id": "job/cancel", "action": CancelJob, "state": "RUNNING",
		"target-resource": map[string]any{"href": "job/gone"},
	})
	_, err := NewCancel(c).Do(context.Background())
	require.Error(t, err)
	assert.True(t, resource.IsNotFound(err))
}

func TestCleanupDeletesExpiredFinishedJobs(t *testing.T) {
	server := resourcetest.New()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	old := now.Add(-30 * 24 * time.Hour).Format(time.RFC3339Nano)
	recent := now.Add(-time.Hour).Format(time.RFC3339Nano)

	for i, state := range []string{"SUCCESS", "FAILED", "SUCCESS"} {
		server.Put(resource.Resource{"id": fmt.Sprintf("job/old-%d", i), "state": state, "updated": old})
	}
	server.Put(resource.Resource{"id": "job/recent", "state": "SUCCESS", "updated": recent})
	server.Put(resource.Resource{"id": "job/old-running", "state": "RUNNING", "updated": old})

	c := actionContext(t, server, resource.Resource{
		"id": "job/cleanup", "action": CleanupJobs, "state": "RUNNING", "updated": old,
	})
	cleanup := NewCleanup(c).(*Cleanup)
	cleanup.now = func() time.Time { return now }

	code, err := cleanup.Do(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	for i := 0; i < 3; i++ {
		_, exists := server.Doc(fmt.Sprintf("job/old-%d", i))
		assert.False(t, exists)
	}
	for _, id := range []string{"job/recent", "job/old-running", "job/cleanup"} {
		_, exists := server.Doc(id)
		assert.True(t, exists, id)
	}
	assert.Equal(t, 100, c.Job.Job().Progress)
}

func TestCleanupRetentionOverrideAndPartialFailure(t *testing.T) {
	server := resourcetest.New()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	threeDays := now.Add(-3 * 24 * time.Hour).Format(time.RFC3339Nano)
	server.Put(resource.Resource{"id": "job/a", "state": "SUCCESS", "updated": threeDays})
	server.Put(resource.Resource{"id": "job/b", "state": "FAILED", "updated": threeDays})
	server.FailDelete("job/b", resource.NewRemoteError(403, "not allowed", "job/b"))

	c := actionContext(t, server, resource.Resource{
		"id": "job/cleanup", "action": CleanupJobs, "state": "RUNNING", AttrRetentionDays: 2,
	})
	cleanup := NewCleanup(c).(*Cleanup)
	cleanup.now = func() time.Time { return now }

	_, err := cleanup.Do(context.Background())
	require.NoError(t, err)

	_, aExists := server.Doc("job/a")
	assert.False(t, aExists)
	_, bExists := server.Doc("job/b")
	assert.True(t, bExists)
	assert.Contains(t, c.Job.Job().StatusMessage, `"FAILED":["job/b"]`)
}

func TestBulkCancelSupervisesChildren(t *testing.T) {
	server := resourcetest.New()
	server.Put(resource.Resource{"id": "job/a", "action": "deploy", "state": "RUNNING"})
	server.Put(resource.Resource{"id": "job/b", "action": "deploy", "state": "QUEUED"})
	server.Put(resource.Resource{"id": "job/c", "action": "other", "state": "RUNNING"})
	server.Put(resource.Resource{"id": "job/d", "action": "deploy", "state": "SUCCESS"})
	server.OnAdd(func(id string, doc resource.Resource) {
		ref, _ := doc.Ref("target-resource")
		code := 0
		if ref.Href == "job/b" {
			code = 1
		}
		_, err := server.Edit(context.Background(), id, map[string]any{
			"state": "SUCCESS", "progress": 100, "return-code": code,
		})
		assert.NoError(t, err)
	})

	c := actionContext(t, server, resource.Resource{
		"id": "job/bulk", "action": BulkCancelJobs, "state": "RUNNING",
		"filter": "action='deploy'",
	})
	code, err := (&BulkCancel{c: c, poll: time.Millisecond}).Do(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	assert.Equal(t, 2, server.AddCount("job"))
	ledger := bulk.LoadLedger(c.Job.Job().StatusMessage)
	assert.Equal(t, []string{"job/a"}, ledger.Success)
	assert.Equal(t, []string{"job/b"}, ledger.Failed)
	assert.Empty(t, ledger.MonitoredJobs)
	assert.Equal(t, 100, c.Job.Job().Progress)
}
