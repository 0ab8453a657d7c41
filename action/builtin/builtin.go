// Package builtin holds the actions every engine ships with.
package builtin

import "github.com/nuvla/job-engine-sub001/action"

// Action names.
const (
	BulkCancelJobs = "bulk_cancel_jobs"
	CancelJob      = "cancel_job"
	CleanupJobs    = "cleanup_jobs"
)

// Registrations lists the built-in actions for action.NewRegistry.
func Registrations() []action.Registration {
	return []action.Registration{
		{Name: BulkCancelJobs, New: NewBulkCancel},
		{Name: CancelJob, New: NewCancel},
		{Name: CleanupJobs, New: NewCleanup},
	}
}
