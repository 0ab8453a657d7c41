package testing

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/nuvla/job-engine-sub001/coord"
	"github.com/nuvla/job-engine-sub001/resource"
	"github.com/nuvla/job-engine-sub001/resource/resourcetest"
)

// NewLogger returns a sugared logger that writes through t.
func NewLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	return zaptest.NewLogger(t).Sugar()
}

// QueuedServer returns a fake Resource API whose created jobs are put on an
// in-memory queue, the way the real server enqueues on job creation.
func QueuedServer(t *testing.T) (*resourcetest.Server, *coord.MemoryQueue) {
	t.Helper()
	server := resourcetest.New()
	queue := coord.NewMemoryQueue()
	server.OnAdd(func(id string, doc resource.Resource) {
		if doc.String("resource-type") != "job" {
			return
		}
		priority, _ := doc.Int("priority")
		queue.Put(id, priority)
	})
	return server, queue
}

// PutJob stores a job document with the given attributes and enqueues it.
func PutJob(server *resourcetest.Server, queue *coord.MemoryQueue, id, action string, attrs map[string]any) {
	doc := resource.Resource{
		"id":       id,
		"action":   action,
		"state":    "QUEUED",
		"progress": 0,
	}
	for k, v := range attrs {
		doc[k] = v
	}
	server.Put(doc)
	priority, _ := doc.Int("priority")
	queue.Put(id, priority)
}
