package tracker

import (
	"fmt"
	"time"
)

// Kind classifies what a tracked job is doing on the cluster.
type Kind string

const (
	KindService   Kind = "SERVICE"
	KindBenchmark Kind = "BENCHMARK"
	KindMonitor   Kind = "MONITOR"
)

// Status represents the lifecycle state of a tracked job.
type Status string

const (
	StatusSubmitted Status = "SUBMITTED" // accepted by the scheduler, not yet queued/seen
	StatusPending   Status = "PENDING"   // waiting in the scheduler queue
	StatusRunning   Status = "RUNNING"   // executing on an assigned node
	StatusCompleted Status = "COMPLETED" // finished successfully
	StatusFailed    Status = "FAILED"    // finished unsuccessfully
	StatusCancelled Status = "CANCELLED" // explicitly cancelled
	StatusUnknown   Status = "UNKNOWN"   // reconciliation could not classify the state
)

// JobRecord is the durable representation of one scheduler submission.
// The scheduler assigns JobID; this tool never invents identifiers.
type JobRecord struct {
	JobID       string                 `json:"job_id"`
	Kind        Kind                   `json:"kind"`
	Name        string                 `json:"name"`
	Status      Status                 `json:"status"`
	Node        string                 `json:"node,omitempty"`
	SubmitTime  time.Time              `json:"submit_time"`
	Config      map[string]interface{} `json:"config"`
	ParentJobID string                 `json:"parent_job_id,omitempty"`
	Health      string                 `json:"health,omitempty"`
}

// NewRecord builds a SUBMITTED record, enforcing kind-specific parent rules:
// benchmarks and monitors always target a service job, services never do.
func NewRecord(jobID string, kind Kind, name string, config map[string]interface{}, parentJobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job record requires a scheduler-assigned job id")
	}
	switch kind {
	case KindService:
		if parentJobID != "" {
			return nil, fmt.Errorf("service job %s must not have a parent job", jobID)
		}
	case KindBenchmark, KindMonitor:
		if parentJobID == "" {
			return nil, fmt.Errorf("%s job %s requires a parent service job id", kind, jobID)
		}
	default:
		return nil, fmt.Errorf("unknown job kind: %s", kind)
	}

	return &JobRecord{
		JobID:       jobID,
		Kind:        kind,
		Name:        name,
		Status:      StatusSubmitted,
		SubmitTime:  time.Now().UTC(),
		Config:      config,
		ParentJobID: parentJobID,
	}, nil
}

// Clone returns a deep copy so callers can never mutate stored state through
// a returned record.
func (r *JobRecord) Clone() *JobRecord {
	c := *r
	if r.Config != nil {
		c.Config = make(map[string]interface{}, len(r.Config))
		for k, v := range r.Config {
			c.Config[k] = v
		}
	}
	return &c
}

// validTransitions maps from-state to allowed to-states. Progress through the
// lifecycle is one-way; UNKNOWN is the only state a record may leave in any
// direction, since it means a reconciliation failed to classify the job.
var validTransitions = map[Status]map[Status]bool{
	StatusSubmitted: {
		StatusPending:   true,
		StatusRunning:   true, // short queue waits can skip the PENDING poll window
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
		StatusUnknown:   true,
	},
	StatusPending: {
		StatusRunning:   true,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
		StatusUnknown:   true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
		StatusUnknown:   true,
	},
	StatusUnknown: {
		StatusSubmitted: true,
		StatusPending:   true,
		StatusRunning:   true,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	// Terminal states
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// ValidateTransition checks if a state transition is allowed. Transitions to
// the same state are permitted so reconciliation stays idempotent.
func ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	allowed, ok := validTransitions[from]
	if !ok {
		return &InvalidTransitionError{From: from, To: to}
	}
	if !allowed[to] {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// IsTerminal returns true if no further transitions are allowed from state.
func IsTerminal(state Status) bool {
	return state == StatusCompleted || state == StatusFailed || state == StatusCancelled
}

// IsActive returns true while the scheduler still owns the job.
func IsActive(state Status) bool {
	return state == StatusSubmitted || state == StatusPending || state == StatusRunning
}
