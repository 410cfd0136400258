package engine

import (
	"errors"
	"fmt"

	"github.com/kayz/scribe/internal/session"
)

// ErrSessionNotFound is returned for operations on an unknown session key.
// The turn handler reacts by starting a fresh session.
var ErrSessionNotFound = session.ErrNotFound

// ErrNotCollecting is returned when an answer arrives for a session that is
// not in the data-collection phase.
var ErrNotCollecting = errors.New("session is not collecting data")

// ValidationError rejects a user answer. It is conversational: the caller
// re-asks the same question with Reason attached.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid answer for %s: %s", e.Key, e.Reason)
}

// RuleExecutionError is a failed generation rule. It never crosses the render
// boundary; Render turns it into an inline marker.
type RuleExecutionError struct {
	Target string
	Marker string
	Err    error
}

func (e *RuleExecutionError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.Target, e.Err)
}

func (e *RuleExecutionError) Unwrap() error {
	return e.Err
}
