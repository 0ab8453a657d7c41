// Package job holds the job value, its version gate and the queue-aware
// proxy through which executors mutate remote job resources.
package job

import (
	"strconv"
	"time"

	"github.com/nuvla/job-engine-sub001/resource"
)

// Resource API attribute names of a job.
const (
	AttrID                = "id"
	AttrAction            = "action"
	AttrTargetResource    = "target-resource"
	AttrState             = "state"
	AttrProgress          = "progress"
	AttrReturnCode        = "return-code"
	AttrStatusMessage     = "status-message"
	AttrAffectedResources = "affected-resources"
	AttrVersion           = "version"
	AttrExecutionMode     = "execution-mode"
	AttrParentJob         = "parent-job"
	AttrPriority          = "priority"
	AttrCreated           = "created"
	AttrUpdated           = "updated"
)

// ExecutionModePull marks jobs that are run on demand with run-job rather
// than through the shared queue.
const ExecutionModePull = "pull"

// Job is an immutable snapshot of a remote job resource.
type Job struct {
	ID                string
	Action            string
	TargetResource    resource.Ref
	State             State
	Progress          int
	ReturnCode        *int
	StatusMessage     string
	AffectedResources []resource.Ref
	Version           string
	ExecutionMode     string
	ParentJob         string
	Priority          int
	Created           time.Time
	Updated           time.Time

	raw resource.Resource
}

// FromResource decodes a job resource.
func FromResource(res resource.Resource) Job {
	j := Job{
		ID:                res.ID(),
		Action:            res.String(AttrAction),
		State:             State(res.String(AttrState)),
		StatusMessage:     res.String(AttrStatusMessage),
		AffectedResources: res.Refs(AttrAffectedResources),
		Version:           scalar(res[AttrVersion]),
		ExecutionMode:     res.String(AttrExecutionMode),
		ParentJob:         res.String(AttrParentJob),
		Created:           timestamp(res.String(AttrCreated)),
		Updated:           timestamp(res.String(AttrUpdated)),
		raw:               copyResource(res),
	}
	j.TargetResource, _ = res.Ref(AttrTargetResource)
	j.Progress, _ = res.Int(AttrProgress)
	j.Priority, _ = res.Int(AttrPriority)
	if code, ok := res.Int(AttrReturnCode); ok {
		j.ReturnCode = &code
	}
	return j
}

// Attr returns any raw attribute, e.g. action specific payload keys.
func (j Job) Attr(key string) any {
	return j.raw[key]
}

// Resource returns a copy of the underlying document.
func (j Job) Resource() resource.Resource {
	return copyResource(j.raw)
}

// merged returns the snapshot with a partial edit applied locally.
func (j Job) merged(partial map[string]any) Job {
	res := copyResource(j.raw)
	if res == nil {
		res = resource.Resource{AttrID: j.ID}
	}
	for k, v := range partial {
		res[k] = v
	}
	return FromResource(res)
}

func copyResource(res resource.Resource) resource.Resource {
	if res == nil {
		return nil
	}
	out := make(resource.Resource, len(res))
	for k, v := range res {
		out[k] = v
	}
	return out
}

// scalar renders a string or number attribute as a string.
func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return ""
	}
}

func timestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
