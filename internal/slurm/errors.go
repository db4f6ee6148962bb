package slurm

import (
	"errors"
	"fmt"
)

// ErrJobUnknown means neither the controller nor accounting knows the job id.
var ErrJobUnknown = errors.New("job unknown to scheduler")

// SubmissionError reports a failed sbatch invocation. Resubmission is a new
// explicit action; nothing here is retried automatically.
type SubmissionError struct {
	Reason string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed: %s", e.Reason)
}

// SubmissionParseError reports sbatch output that did not contain the
// expected job id line.
type SubmissionParseError struct {
	Output string
}

func (e *SubmissionParseError) Error() string {
	return fmt.Sprintf("could not parse job id from sbatch output: %q", e.Output)
}

// QueryError reports a transient failure talking to the scheduler. Callers
// may retry; no job state should be assumed from it.
type QueryError struct {
	JobID  string
	Reason string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("scheduler query for job %s failed: %s", e.JobID, e.Reason)
}
