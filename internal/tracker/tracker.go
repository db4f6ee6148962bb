package tracker

import (
	"fmt"
	"sort"
)

// Tracker is the persistent registry of every job this tool has submitted.
// All reads and writes of the backing store go through here; components never
// touch the store file directly.
type Tracker struct {
	backend Backend
}

// New creates a tracker over the given storage backend.
func New(backend Backend) *Tracker {
	return &Tracker{backend: backend}
}

// Create registers a new record. The job id must not already be tracked.
func (t *Tracker) Create(rec *JobRecord) error {
	if rec == nil || rec.JobID == "" {
		return fmt.Errorf("cannot track a record without a job id")
	}
	return t.backend.Update(func(jobs map[string]*JobRecord) error {
		if _, exists := jobs[rec.JobID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicate, rec.JobID)
		}
		jobs[rec.JobID] = rec.Clone()
		return nil
	})
}

// Get returns a copy of the record for jobID.
func (t *Tracker) Get(jobID string) (*JobRecord, error) {
	var rec *JobRecord
	err := t.backend.View(func(jobs map[string]*JobRecord) error {
		found, ok := jobs[jobID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		rec = found.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Patch describes a partial update. Only non-nil fields are applied.
type Patch struct {
	Status *Status
	Node   *string
	Health *string
}

// Update applies a partial patch to the record for jobID. Status changes are
// validated against the lifecycle state machine. The updated record is
// returned.
func (t *Tracker) Update(jobID string, patch Patch) (*JobRecord, error) {
	var updated *JobRecord
	err := t.backend.Update(func(jobs map[string]*JobRecord) error {
		rec, ok := jobs[jobID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		if patch.Status != nil {
			if err := ValidateTransition(rec.Status, *patch.Status); err != nil {
				return err
			}
			rec.Status = *patch.Status
		}
		if patch.Node != nil {
			rec.Node = *patch.Node
		}
		if patch.Health != nil {
			rec.Health = *patch.Health
		}
		updated = rec.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Kind        Kind
	Status      Status
	ParentJobID string
}

func (f Filter) matches(rec *JobRecord) bool {
	if f.Kind != "" && rec.Kind != f.Kind {
		return false
	}
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.ParentJobID != "" && rec.ParentJobID != f.ParentJobID {
		return false
	}
	return true
}

// List returns copies of all matching records, oldest submission first.
func (t *Tracker) List(filter Filter) ([]*JobRecord, error) {
	var out []*JobRecord
	err := t.backend.View(func(jobs map[string]*JobRecord) error {
		for _, rec := range jobs {
			if filter.matches(rec) {
				out = append(out, rec.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmitTime.Equal(out[j].SubmitTime) {
			return out[i].JobID < out[j].JobID
		}
		return out[i].SubmitTime.Before(out[j].SubmitTime)
	})
	return out, nil
}
