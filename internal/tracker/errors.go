package tracker

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a job id is unknown to the tracker.
var ErrNotFound = errors.New("job not found in tracker")

// ErrDuplicate is returned when creating a record whose job id already exists.
var ErrDuplicate = errors.New("job already tracked")

// InvalidTransitionError reports an attempt to move a record against the
// lifecycle state machine. This is an invariant violation, not an expected
// runtime condition.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}
