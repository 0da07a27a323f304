package session

import (
	"errors"
	"fmt"
)

var (
	ErrEngineUnavailable = errors.New("session engine unavailable")
	ErrSessionClosed     = errors.New("session closed")
)

// CreationError wraps a failure to start a browser session. Creation
// failures are retryable at the orchestrator level.
type CreationError struct {
	Channel string
	Err     error
}

func (e *CreationError) Error() string {
	if e.Channel != "" && e.Channel != "direct" {
		return fmt.Sprintf("session creation failed (channel %s): %v", e.Channel, e.Err)
	}
	return fmt.Sprintf("session creation failed: %v", e.Err)
}

func (e *CreationError) Unwrap() error {
	return e.Err
}

// NewCreationError wraps err as a session creation failure.
func NewCreationError(channel string, err error) *CreationError {
	return &CreationError{Channel: channel, Err: err}
}

// IsCreationError reports whether err is a session creation failure.
func IsCreationError(err error) bool {
	var ce *CreationError
	return errors.As(err, &ce)
}
