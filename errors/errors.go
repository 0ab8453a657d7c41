// Package errors is the engine's error vocabulary: github.com/cockroachdb/errors
// for construction and inspection, plus the sentinels components classify on.
//
//	if err := client.Edit(ctx, id, partial); err != nil {
//	    return errors.Wrapf(errors.Mark(err, errors.ErrUpdateFailed), "failed to update %s", id)
//	}
//
// Marks survive wrapping, so errors.Is(err, errors.ErrUpdateFailed) holds however
// many layers of context a caller adds.
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

var (
	New   = crdb.New
	Newf  = crdb.Newf
	Wrap  = crdb.Wrap
	Wrapf = crdb.Wrapf
	Mark  = crdb.Mark
	Join  = crdb.Join

	WithDetail    = crdb.WithDetail
	GetAllDetails = crdb.GetAllDetails

	Is         = crdb.Is
	As         = crdb.As
	UnwrapOnce = crdb.UnwrapOnce
)

var (
	// Resource API outcomes, see resource.RemoteError.
	ErrNotFound     = New("not found")
	ErrConflict     = New("resource conflict")
	ErrUnauthorized = New("unauthorized")

	ErrInvalidRequest = New("invalid request")

	// ErrNonexistentJob: a queued id could not be read within the fetch budget.
	ErrNonexistentJob = New("nonexistent job")

	// ErrUpdateFailed: a job change was not persisted and its queue entry was
	// released. The current execution attempt is over.
	ErrUpdateFailed = New("job update failed")
)

func IsNotFoundError(err error) bool { return err != nil && Is(err, ErrNotFound) }

func IsConflictError(err error) bool { return err != nil && Is(err, ErrConflict) }

func IsUpdateFailed(err error) bool { return err != nil && Is(err, ErrUpdateFailed) }

// NewInvalidRequestError formats a message marked with ErrInvalidRequest.
func NewInvalidRequestError(format string, args ...any) error {
	return Mark(Newf(format, args...), ErrInvalidRequest)
}
