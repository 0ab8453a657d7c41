package resource

import (
	"fmt"
	"net/http"

	"github.com/nuvla/job-engine-sub001/errors"
)

// RemoteError is a failure reported by the Resource API.
type RemoteError struct {
	Status     int    `json:"status"`
	Message    string `json:"message"`
	ResourceID string `json:"resource-id,omitempty"`
}

func (e *RemoteError) Error() string {
	if e.ResourceID != "" {
		return fmt.Sprintf("remote error %d (%s): %s", e.Status, e.ResourceID, e.Message)
	}
	return fmt.Sprintf("remote error %d: %s", e.Status, e.Message)
}

// NewRemoteError builds a RemoteError marked with the matching engine sentinel,
// so callers can use errors.Is(err, errors.ErrNotFound) as well as IsNotFound.
func NewRemoteError(status int, message, resourceID string) error {
	err := error(&RemoteError{Status: status, Message: message, ResourceID: resourceID})
	switch status {
	case http.StatusNotFound:
		return errors.Mark(err, errors.ErrNotFound)
	case http.StatusConflict:
		return errors.Mark(err, errors.ErrConflict)
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.Mark(err, errors.ErrUnauthorized)
	case http.StatusBadRequest:
		return errors.Mark(err, errors.ErrInvalidRequest)
	default:
		return err
	}
}

// StatusOf returns the status of the first RemoteError in err's chain, or 0.
func StatusOf(err error) int {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Status
	}
	return 0
}

// IsNotFound reports a 404 from the Resource API.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// IsConflict reports a 409 ("already exists") from the Resource API.
func IsConflict(err error) bool {
	return StatusOf(err) == http.StatusConflict
}
