package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aifactory/aifctl/internal/health"
	"github.com/aifactory/aifctl/internal/logging"
	"github.com/aifactory/aifctl/internal/retry"
	"github.com/aifactory/aifctl/internal/slurm"
	"github.com/aifactory/aifctl/internal/tracker"
)

// StateSource answers live state queries for a job id. *slurm.Client is the
// production implementation.
type StateSource interface {
	Info(ctx context.Context, jobID string) (*slurm.JobInfo, error)
}

// Health values recorded on a job after its first node assignment.
const (
	HealthOK      = "ok"
	HealthUnknown = "unknown"
)

// Reconciler refreshes tracked job records from the scheduler's live state.
type Reconciler struct {
	tracker     *tracker.Tracker
	source      StateSource
	checker     health.Checker
	healthRetry retry.Config
	log         *logging.Logger
}

// New creates a reconciler. checker may be nil to disable health probing.
func New(t *tracker.Tracker, source StateSource, checker health.Checker, healthRetry retry.Config, log *logging.Logger) *Reconciler {
	return &Reconciler{
		tracker:     t,
		source:      source,
		checker:     checker,
		healthRetry: healthRetry,
		log:         log,
	}
}

// stateTable maps Slurm state tokens to tracker statuses. Tokens not listed
// map to UNKNOWN: an unrecognized state still describes an existing job, so
// reconciliation never fails on it.
var stateTable = map[string]tracker.Status{
	"PENDING":       tracker.StatusPending,
	"CONFIGURING":   tracker.StatusPending,
	"REQUEUED":      tracker.StatusPending,
	"SUSPENDED":     tracker.StatusPending,
	"RUNNING":       tracker.StatusRunning,
	"COMPLETING":    tracker.StatusRunning,
	"COMPLETED":     tracker.StatusCompleted,
	"FAILED":        tracker.StatusFailed,
	"TIMEOUT":       tracker.StatusFailed,
	"OUT_OF_MEMORY": tracker.StatusFailed,
	"NODE_FAIL":     tracker.StatusFailed,
	"BOOT_FAIL":     tracker.StatusFailed,
	"DEADLINE":      tracker.StatusFailed,
	"PREEMPTED":     tracker.StatusFailed,
	"CANCELLED":     tracker.StatusCancelled,
}

// MapState translates a raw scheduler state token into the internal status.
func MapState(token string) tracker.Status {
	if s, ok := stateTable[token]; ok {
		return s
	}
	return tracker.StatusUnknown
}

// Reconcile refreshes one record from the scheduler. With no change in
// external state it performs no store write and returns the record as-is.
func (r *Reconciler) Reconcile(ctx context.Context, jobID string) (*tracker.JobRecord, error) {
	rec, err := r.tracker.Get(jobID)
	if err != nil {
		return nil, err
	}

	// Terminal records are history; nothing external can change them.
	if tracker.IsTerminal(rec.Status) {
		return rec, nil
	}

	info, err := r.source.Info(ctx, jobID)
	if err != nil {
		if errors.Is(err, slurm.ErrJobUnknown) {
			// Previously known, now absent everywhere, and no exit record to
			// classify it with.
			return r.applyStatus(rec, tracker.StatusUnknown, "", "")
		}
		return nil, &Error{JobID: jobID, Err: err}
	}

	status := MapState(info.State)

	node := ""
	if rec.Node == "" && info.Node != "" {
		node = info.Node
	}

	healthState := ""
	if node != "" && status == tracker.StatusRunning {
		healthState = r.checkHealth(ctx, rec, info.Node)
	}

	return r.applyStatus(rec, status, node, healthState)
}

// applyStatus writes only actual changes, keeping repeated reconciliation
// byte-identical when nothing moved.
func (r *Reconciler) applyStatus(rec *tracker.JobRecord, status tracker.Status, node, healthState string) (*tracker.JobRecord, error) {
	patch := tracker.Patch{}
	changed := false
	if status != rec.Status {
		patch.Status = &status
		changed = true
	}
	if node != "" && node != rec.Node {
		patch.Node = &node
		changed = true
	}
	if healthState != "" && healthState != rec.Health {
		patch.Health = &healthState
		changed = true
	}
	if !changed {
		return rec, nil
	}
	return r.tracker.Update(rec.JobID, patch)
}

// checkHealth runs the one-shot health probe for a service that just got its
// node. Failures are warnings, never a status change: the service may
// legitimately still be starting.
func (r *Reconciler) checkHealth(ctx context.Context, rec *tracker.JobRecord, node string) string {
	if r.checker == nil || rec.Kind != tracker.KindService {
		return ""
	}

	err := retry.DoNotify(ctx, r.healthRetry, func() error {
		return r.checker.Check(ctx, rec.Name, node)
	}, func(attempt int, err error) {
		if r.log != nil {
			r.log.Warn("Health check failed, will retry", map[string]interface{}{
				"job_id":  rec.JobID,
				"service": rec.Name,
				"node":    node,
				"attempt": attempt + 1,
				"error":   err.Error(),
			})
		}
	})
	if err != nil {
		if r.log != nil {
			r.log.Warn("Health check gave up, marking health unknown", map[string]interface{}{
				"job_id":  rec.JobID,
				"service": rec.Name,
				"node":    node,
			})
		}
		return HealthUnknown
	}
	return HealthOK
}

// ReconcileAll refreshes every non-terminal record. Individual failures are
// collected, not fatal to the batch.
func (r *Reconciler) ReconcileAll(ctx context.Context) ([]*tracker.JobRecord, error) {
	records, err := r.tracker.List(tracker.Filter{})
	if err != nil {
		return nil, err
	}

	var out []*tracker.JobRecord
	var errs []error
	for _, rec := range records {
		if tracker.IsTerminal(rec.Status) {
			out = append(out, rec)
			continue
		}
		updated, err := r.Reconcile(ctx, rec.JobID)
		if err != nil {
			errs = append(errs, err)
			out = append(out, rec)
			continue
		}
		out = append(out, updated)
	}
	return out, errors.Join(errs...)
}

// WaitForNode polls until the job is running with an assigned node, then
// returns the node name. The caller bounds the wait with timeout.
func (r *Reconciler) WaitForNode(ctx context.Context, jobID string, timeout, interval time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		rec, err := r.Reconcile(ctx, jobID)
		if err != nil {
			var rerr *Error
			// Transient query failures keep the poll alive.
			if !errors.As(err, &rerr) {
				return "", err
			}
			if r.log != nil {
				r.log.Warn("Reconcile failed while waiting for node", map[string]interface{}{
					"job_id": jobID,
					"error":  err.Error(),
				})
			}
		} else {
			if rec.Status == tracker.StatusRunning && rec.Node != "" {
				return rec.Node, nil
			}
			if tracker.IsTerminal(rec.Status) {
				return "", fmt.Errorf("job %s reached %s before getting a node", jobID, rec.Status)
			}
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("timed out waiting for job %s to start", jobID)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Error reports a transient reconciliation failure. The record is left
// unchanged; retrying is safe.
type Error struct {
	JobID string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("reconcile job %s: %v", e.JobID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
