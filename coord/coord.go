// Package coord adapts the coordination service: a locking job queue that
// hands each entry to at most one holder at a time, and per job-type leader
// election.
package coord

import (
	"context"

	"github.com/nuvla/job-engine-sub001/errors"
)

// ErrSessionExpired means the coordination session backing held entries or
// leadership is gone. It is fatal to the owning process.
var ErrSessionExpired = errors.New("coordination session expired")

// Queue hands out queue entries under mutual exclusion. Delivery is at least
// once: an entry held by a crashed process becomes available again once its
// lease lapses.
type Queue interface {
	// Acquire blocks until an entry is held or ctx is done.
	Acquire(ctx context.Context) (Lease, error)
}

// Lease is a held queue entry.
type Lease interface {
	// ID is the entry payload, the id of the queued job.
	ID() []byte
	// Consume removes the entry for good. false means try again.
	Consume(ctx context.Context) (bool, error)
	// Release returns the entry for another holder. false means try again.
	Release(ctx context.Context) (bool, error)
}

// Elector runs a routine only while holding the election token for a name.
type Elector interface {
	// Campaign blocks contending for name's token. lead runs while the token is
	// held and its context is cancelled when leadership is lost, after which
	// Campaign contends again. Campaign returns nil once ctx is done, or the
	// error of a failed campaign or of lead.
	Campaign(ctx context.Context, name string, lead func(ctx context.Context) error) error
}
