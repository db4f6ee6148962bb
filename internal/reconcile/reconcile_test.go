package reconcile

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/aifactory/aifctl/internal/retry"
	"github.com/aifactory/aifctl/internal/slurm"
	"github.com/aifactory/aifctl/internal/tracker"
)

// fakeSource serves canned scheduler answers per job id.
type fakeSource struct {
	infos map[string]*slurm.JobInfo
	errs  map[string]error
	calls int
}

func (f *fakeSource) Info(_ context.Context, jobID string) (*slurm.JobInfo, error) {
	f.calls++
	if err, ok := f.errs[jobID]; ok {
		return nil, err
	}
	if info, ok := f.infos[jobID]; ok {
		return info, nil
	}
	return nil, errors.New("unexpected Info call for " + jobID)
}

// fakeChecker counts checks and fails a configured number of times first.
type fakeChecker struct {
	failures int
	calls    int
}

func (f *fakeChecker) Check(_ context.Context, _, _ string) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func noDelayRetry(maxRetries int) retry.Config {
	return retry.Config{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Multiplier:     1,
	}
}

func newTestTracker(t *testing.T, jobID string, kind tracker.Kind, parent string) *tracker.Tracker {
	t.Helper()
	tr := tracker.New(tracker.NewMemoryBackend())
	rec, err := tracker.NewRecord(jobID, kind, "ollama", nil, parent)
	if err != nil {
		t.Fatalf("NewRecord failed: %v", err)
	}
	if err := tr.Create(rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return tr
}

func TestMapState(t *testing.T) {
	cases := map[string]tracker.Status{
		"PENDING":       tracker.StatusPending,
		"CONFIGURING":   tracker.StatusPending,
		"RUNNING":       tracker.StatusRunning,
		"COMPLETING":    tracker.StatusRunning,
		"COMPLETED":     tracker.StatusCompleted,
		"TIMEOUT":       tracker.StatusFailed,
		"OUT_OF_MEMORY": tracker.StatusFailed,
		"CANCELLED":     tracker.StatusCancelled,
		"SPECIAL_EXIT":  tracker.StatusUnknown,
	}
	for token, want := range cases {
		if got := MapState(token); got != want {
			t.Errorf("MapState(%s) = %s, want %s", token, got, want)
		}
	}
}

func TestReconcilePendingToRunningWithHealth(t *testing.T) {
	tr := newTestTracker(t, "1", tracker.KindService, "")
	source := &fakeSource{infos: map[string]*slurm.JobInfo{
		"1": {JobID: "1", State: "RUNNING", Node: "mel2095"},
	}}
	checker := &fakeChecker{}

	r := New(tr, source, checker, noDelayRetry(2), nil)
	rec, err := r.Reconcile(context.Background(), "1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if rec.Status != tracker.StatusRunning || rec.Node != "mel2095" {
		t.Errorf("Unexpected record: %+v", rec)
	}
	if rec.Health != HealthOK {
		t.Errorf("Expected health ok, got %q", rec.Health)
	}
	if checker.calls != 1 {
		t.Errorf("Expected exactly one health check, got %d", checker.calls)
	}
}

func TestReconcileHealthChecksOnlyOnNodeDiscovery(t *testing.T) {
	tr := newTestTracker(t, "1", tracker.KindService, "")
	source := &fakeSource{infos: map[string]*slurm.JobInfo{
		"1": {JobID: "1", State: "RUNNING", Node: "mel2095"},
	}}
	checker := &fakeChecker{}
	r := New(tr, source, checker, noDelayRetry(2), nil)

	for i := 0; i < 3; i++ {
		if _, err := r.Reconcile(context.Background(), "1"); err != nil {
			t.Fatalf("Reconcile %d failed: %v", i, err)
		}
	}
	if checker.calls != 1 {
		t.Errorf("Health probe ran %d times, want once", checker.calls)
	}
}

func TestReconcileHealthRetriesThenGivesUp(t *testing.T) {
	tr := newTestTracker(t, "1", tracker.KindService, "")
	source := &fakeSource{infos: map[string]*slurm.JobInfo{
		"1": {JobID: "1", State: "RUNNING", Node: "mel2095"},
	}}
	checker := &fakeChecker{failures: 10}
	r := New(tr, source, checker, noDelayRetry(2), nil)

	rec, err := r.Reconcile(context.Background(), "1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	// A failing probe never blocks the status update.
	if rec.Status != tracker.StatusRunning {
		t.Errorf("Status should be RUNNING despite failing probe, got %s", rec.Status)
	}
	if rec.Health != HealthUnknown {
		t.Errorf("Expected health unknown, got %q", rec.Health)
	}
	if checker.calls != 3 {
		t.Errorf("Expected 3 probe attempts (1 + 2 retries), got %d", checker.calls)
	}
}

func TestReconcileNoProbeForBenchmarks(t *testing.T) {
	tr := tracker.New(tracker.NewMemoryBackend())
	svc, _ := tracker.NewRecord("1", tracker.KindService, "ollama", nil, "")
	if err := tr.Create(svc); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	bench, _ := tracker.NewRecord("2", tracker.KindBenchmark, "ollama_latency", nil, "1")
	if err := tr.Create(bench); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	source := &fakeSource{infos: map[string]*slurm.JobInfo{
		"2": {JobID: "2", State: "RUNNING", Node: "mel2096"},
	}}
	checker := &fakeChecker{}
	r := New(tr, source, checker, noDelayRetry(2), nil)

	if _, err := r.Reconcile(context.Background(), "2"); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if checker.calls != 0 {
		t.Errorf("Benchmark jobs must not be health probed, got %d calls", checker.calls)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	tr := newTestTracker(t, "1", tracker.KindService, "")
	source := &fakeSource{infos: map[string]*slurm.JobInfo{
		"1": {JobID: "1", State: "PENDING"},
	}}
	r := New(tr, source, nil, noDelayRetry(0), nil)

	first, err := r.Reconcile(context.Background(), "1")
	if err != nil {
		t.Fatalf("First reconcile failed: %v", err)
	}
	second, err := r.Reconcile(context.Background(), "1")
	if err != nil {
		t.Fatalf("Second reconcile failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Repeated reconcile changed the record:\n first  %+v\n second %+v", first, second)
	}
}

func TestReconcileTerminalRecordSkipsScheduler(t *testing.T) {
	tr := newTestTracker(t, "1", tracker.KindService, "")
	done := tracker.StatusCompleted
	if _, err := tr.Update("1", tracker.Patch{Status: &done}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	source := &fakeSource{}
	r := New(tr, source, nil, noDelayRetry(0), nil)

	rec, err := r.Reconcile(context.Background(), "1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if rec.Status != tracker.StatusCompleted {
		t.Errorf("Terminal status changed: %s", rec.Status)
	}
	if source.calls != 0 {
		t.Errorf("Scheduler queried for a terminal record %d times", source.calls)
	}
}

func TestReconcileJobUnknownBecomesUnknown(t *testing.T) {
	tr := newTestTracker(t, "1", tracker.KindService, "")
	source := &fakeSource{errs: map[string]error{"1": slurm.ErrJobUnknown}}
	r := New(tr, source, nil, noDelayRetry(0), nil)

	rec, err := r.Reconcile(context.Background(), "1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if rec.Status != tracker.StatusUnknown {
		t.Errorf("Expected UNKNOWN for departed job, got %s", rec.Status)
	}
}

func TestReconcileQueryErrorLeavesRecordUntouched(t *testing.T) {
	tr := newTestTracker(t, "1", tracker.KindService, "")
	source := &fakeSource{errs: map[string]error{
		"1": &slurm.QueryError{JobID: "1", Reason: "socket timed out"},
	}}
	r := New(tr, source, nil, noDelayRetry(0), nil)

	_, err := r.Reconcile(context.Background(), "1")
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("Expected reconcile.Error, got %v", err)
	}

	rec, err := tr.Get("1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.Status != tracker.StatusSubmitted {
		t.Errorf("Record changed on transient failure: %s", rec.Status)
	}
}

func TestReconcileAllCollectsErrors(t *testing.T) {
	tr := tracker.New(tracker.NewMemoryBackend())
	for _, id := range []string{"1", "2"} {
		rec, _ := tracker.NewRecord(id, tracker.KindService, "ollama", nil, "")
		if err := tr.Create(rec); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	source := &fakeSource{
		infos: map[string]*slurm.JobInfo{"1": {JobID: "1", State: "RUNNING", Node: "mel1"}},
		errs:  map[string]error{"2": &slurm.QueryError{JobID: "2", Reason: "down"}},
	}
	r := New(tr, source, nil, noDelayRetry(0), nil)

	records, err := r.ReconcileAll(context.Background())
	if err == nil {
		t.Error("Expected aggregated error from failing record")
	}
	if len(records) != 2 {
		t.Fatalf("Expected both records back, got %d", len(records))
	}

	rec1, _ := tr.Get("1")
	if rec1.Status != tracker.StatusRunning {
		t.Errorf("Healthy record not updated: %s", rec1.Status)
	}
}

func TestWaitForNode(t *testing.T) {
	tr := newTestTracker(t, "1", tracker.KindService, "")
	source := &fakeSource{infos: map[string]*slurm.JobInfo{
		"1": {JobID: "1", State: "RUNNING", Node: "mel2095"},
	}}
	r := New(tr, source, nil, noDelayRetry(0), nil)

	node, err := r.WaitForNode(context.Background(), "1", time.Second, time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForNode failed: %v", err)
	}
	if node != "mel2095" {
		t.Errorf("Expected mel2095, got %q", node)
	}
}

func TestWaitForNodeTerminalJob(t *testing.T) {
	tr := newTestTracker(t, "1", tracker.KindService, "")
	source := &fakeSource{infos: map[string]*slurm.JobInfo{
		"1": {JobID: "1", State: "FAILED"},
	}}
	r := New(tr, source, nil, noDelayRetry(0), nil)

	if _, err := r.WaitForNode(context.Background(), "1", time.Second, time.Millisecond); err == nil {
		t.Error("Expected error for job that failed before running")
	}
}
