package job

import (
	"github.com/nuvla/job-engine-sub001/errors"
	"github.com/nuvla/job-engine-sub001/resource"
)

// Edit is a partial job update. Nil fields are left untouched.
type Edit struct {
	State             *State
	Progress          *int
	ReturnCode        *int
	StatusMessage     *string
	AffectedResources []resource.Ref // merged into the existing set
}

// Finish returns the edit that moves a job to state at 100% progress.
func Finish(state State) Edit {
	progress := 100
	return Edit{State: &state, Progress: &progress}
}

// WithStatusMessage returns e with the status message set.
func (e Edit) WithStatusMessage(msg string) Edit {
	e.StatusMessage = &msg
	return e
}

// WithReturnCode returns e with the return code set.
func (e Edit) WithReturnCode(code int) Edit {
	e.ReturnCode = &code
	return e
}

// Validate rejects undefined states and progress outside [0,100].
func (e Edit) Validate() error {
	if e.State != nil && !e.State.IsValid() {
		return errors.NewInvalidRequestError("invalid job state %q", string(*e.State))
	}
	if e.Progress != nil && (*e.Progress < 0 || *e.Progress > 100) {
		return errors.NewInvalidRequestError("progress %d outside [0,100]", *e.Progress)
	}
	for _, ref := range e.AffectedResources {
		if ref.Href == "" {
			return errors.NewInvalidRequestError("affected resource without href")
		}
	}
	return nil
}

// partial renders the edit against the current snapshot. Progress never
// regresses and affected resources are only sent when the set grows.
func (e Edit) partial(current Job) map[string]any {
	out := map[string]any{}
	if e.State != nil {
		out[AttrState] = string(*e.State)
	}
	if e.Progress != nil && *e.Progress > current.Progress {
		out[AttrProgress] = *e.Progress
	}
	if e.ReturnCode != nil {
		out[AttrReturnCode] = *e.ReturnCode
	}
	if e.StatusMessage != nil {
		out[AttrStatusMessage] = *e.StatusMessage
	}
	if len(e.AffectedResources) > 0 {
		merged, grew := mergeRefs(current.AffectedResources, e.AffectedResources)
		if grew {
			out[AttrAffectedResources] = merged
		}
	}
	return out
}

func mergeRefs(existing, added []resource.Ref) ([]resource.Ref, bool) {
	seen := make(map[string]bool, len(existing)+len(added))
	out := make([]resource.Ref, 0, len(existing)+len(added))
	for _, ref := range existing {
		if !seen[ref.Href] {
			seen[ref.Href] = true
			out = append(out, ref)
		}
	}
	grew := false
	for _, ref := range added {
		if !seen[ref.Href] {
			seen[ref.Href] = true
			out = append(out, ref)
			grew = true
		}
	}
	return out, grew
}
