// Package bulk runs fan-out operations over many target resources so that a
// restarted job resumes where the previous attempt stopped. The result ledger
// is persisted in the bulk job's status-message after every step.
package bulk

import (
	"encoding/json"
	"strings"

	"github.com/nuvla/job-engine-sub001/errors"
)

// Ledger records which targets of a bulk job are done and how they ended.
type Ledger struct {
	BootstrapExceptions map[string]string `json:"bootstrap-exceptions"`
	Success             []string          `json:"SUCCESS"`
	Failed              []string          `json:"FAILED"`
	All                 []string          `json:"ALL"`
	MonitoredJobs       []string          `json:"monitored_jobs,omitempty"`
}

// NewLedger returns a ledger with no targets yet.
func NewLedger() *Ledger {
	return &Ledger{
		BootstrapExceptions: map[string]string{},
		Success:             []string{},
		Failed:              []string{},
	}
}

// LoadLedger decodes a ledger from a status message. Anything that is not a
// ledger (empty, free text) yields a new one.
func LoadLedger(statusMessage string) *Ledger {
	l := NewLedger()
	msg := strings.TrimSpace(statusMessage)
	if !strings.HasPrefix(msg, "{") {
		return l
	}
	var decoded Ledger
	if err := json.Unmarshal([]byte(msg), &decoded); err != nil {
		return l
	}
	if decoded.BootstrapExceptions == nil {
		decoded.BootstrapExceptions = map[string]string{}
	}
	if decoded.Success == nil {
		decoded.Success = []string{}
	}
	if decoded.Failed == nil {
		decoded.Failed = []string{}
	}
	return &decoded
}

// Encode renders the ledger for the status message.
func (l *Ledger) Encode() (string, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode bulk ledger")
	}
	return string(data), nil
}

// Started reports whether the target set has been captured.
func (l *Ledger) Started() bool {
	return l.All != nil
}

// SetTargets captures the target set, dropping duplicates and keeping order.
func (l *Ledger) SetTargets(ids []string) {
	l.All = dedupe(ids)
}

// Done reports whether id already has an outcome.
func (l *Ledger) Done(id string) bool {
	return contains(l.Success, id) || contains(l.Failed, id)
}

// RecordSuccess files id under SUCCESS unless it already has an outcome.
func (l *Ledger) RecordSuccess(id string) bool {
	if l.Done(id) {
		return false
	}
	l.Success = append(l.Success, id)
	return true
}

// RecordFailure files id under FAILED unless it already has an outcome. A
// non-empty reason is kept under bootstrap-exceptions.
func (l *Ledger) RecordFailure(id, reason string) bool {
	if l.Done(id) {
		return false
	}
	l.Failed = append(l.Failed, id)
	if reason != "" {
		l.BootstrapExceptions[id] = reason
	}
	return true
}

// Processed is the number of targets with an outcome.
func (l *Ledger) Processed() int {
	return len(l.Success) + len(l.Failed)
}

// Pending lists targets without an outcome, in target order.
func (l *Ledger) Pending() []string {
	var out []string
	for _, id := range l.All {
		if !l.Done(id) {
			out = append(out, id)
		}
	}
	return out
}

// Complete reports whether every target has an outcome and nothing is monitored.
func (l *Ledger) Complete() bool {
	return l.Started() && len(l.Pending()) == 0 && len(l.MonitoredJobs) == 0
}

func (l *Ledger) monitor(childID string) {
	if childID != "" && !contains(l.MonitoredJobs, childID) {
		l.MonitoredJobs = append(l.MonitoredJobs, childID)
	}
}

func (l *Ledger) unmonitor(childID string) {
	out := l.MonitoredJobs[:0]
	for _, id := range l.MonitoredJobs {
		if id != childID {
			out = append(out, id)
		}
	}
	l.MonitoredJobs = out
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
