package job

// State is the lifecycle state of a job.
type State string

const (
	StateQueued   State = "QUEUED"
	StateRunning  State = "RUNNING"
	StateSuccess  State = "SUCCESS"
	StateFailed   State = "FAILED"
	StateStopping State = "STOPPING"
	StateStopped  State = "STOPPED"
)

// States lists every defined state.
var States = []State{StateQueued, StateRunning, StateSuccess, StateFailed, StateStopping, StateStopped}

// IsValid reports whether s is one of the defined states.
func (s State) IsValid() bool {
	for _, known := range States {
		if s == known {
			return true
		}
	}
	return false
}

// IsFinal reports whether s is terminal. A job reaches a terminal state once.
func (s State) IsFinal() bool {
	return s == StateSuccess || s == StateFailed
}

func (s State) String() string { return string(s) }
