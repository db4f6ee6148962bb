package tracker

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func newTestRecord(t *testing.T, jobID string, kind Kind, parent string) *JobRecord {
	t.Helper()
	rec, err := NewRecord(jobID, kind, "ollama", map[string]interface{}{
		"partition": "gpu",
		"requests":  50,
	}, parent)
	if err != nil {
		t.Fatalf("NewRecord failed: %v", err)
	}
	return rec
}

func TestCreateAndGet(t *testing.T) {
	tr := New(NewMemoryBackend())

	rec := newTestRecord(t, "12345", KindService, "")
	if err := tr.Create(rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := tr.Get("12345")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusSubmitted {
		t.Errorf("Expected status SUBMITTED, got %s", got.Status)
	}
	if !reflect.DeepEqual(got.Config, rec.Config) {
		t.Errorf("Config mutated: got %v, want %v", got.Config, rec.Config)
	}
}

func TestCreateDuplicate(t *testing.T) {
	tr := New(NewMemoryBackend())

	if err := tr.Create(newTestRecord(t, "1", KindService, "")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	err := tr.Create(newTestRecord(t, "1", KindService, ""))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	tr := New(NewMemoryBackend())
	if _, err := tr.Get("999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestNewRecordParentRules(t *testing.T) {
	if _, err := NewRecord("1", KindService, "ollama", nil, "2"); err == nil {
		t.Error("Expected error for service with parent")
	}
	if _, err := NewRecord("1", KindBenchmark, "ollama_latency", nil, ""); err == nil {
		t.Error("Expected error for benchmark without parent")
	}
	if _, err := NewRecord("1", KindMonitor, "ollama", nil, ""); err == nil {
		t.Error("Expected error for monitor without parent")
	}
	if _, err := NewRecord("1", KindBenchmark, "ollama_latency", nil, "2"); err != nil {
		t.Errorf("Benchmark with parent should be valid: %v", err)
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	tr := New(NewMemoryBackend())
	if err := tr.Create(newTestRecord(t, "1", KindService, "")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for _, status := range []Status{StatusPending, StatusRunning, StatusCompleted} {
		s := status
		if _, err := tr.Update("1", Patch{Status: &s}); err != nil {
			t.Fatalf("Transition to %s failed: %v", s, err)
		}
	}

	// Terminal to non-terminal must fail.
	pending := StatusPending
	_, err := tr.Update("1", Patch{Status: &pending})
	var inv *InvalidTransitionError
	if !errors.As(err, &inv) {
		t.Fatalf("Expected InvalidTransitionError, got %v", err)
	}
	if inv.From != StatusCompleted || inv.To != StatusPending {
		t.Errorf("Unexpected transition error content: %v", inv)
	}
}

func TestUnknownTransitionsAreOpen(t *testing.T) {
	tr := New(NewMemoryBackend())
	if err := tr.Create(newTestRecord(t, "1", KindService, "")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	unknown := StatusUnknown
	if _, err := tr.Update("1", Patch{Status: &unknown}); err != nil {
		t.Fatalf("Transition to UNKNOWN failed: %v", err)
	}
	running := StatusRunning
	if _, err := tr.Update("1", Patch{Status: &running}); err != nil {
		t.Fatalf("UNKNOWN to RUNNING should succeed: %v", err)
	}
}

func TestUpdatePartialPatch(t *testing.T) {
	tr := New(NewMemoryBackend())
	if err := tr.Create(newTestRecord(t, "1", KindService, "")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	node := "mel1234"
	updated, err := tr.Update("1", Patch{Node: &node})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Node != "mel1234" {
		t.Errorf("Expected node mel1234, got %q", updated.Node)
	}
	if updated.Status != StatusSubmitted {
		t.Errorf("Status changed by node-only patch: %s", updated.Status)
	}
}

func TestListFilters(t *testing.T) {
	tr := New(NewMemoryBackend())
	svc := newTestRecord(t, "100", KindService, "")
	if err := tr.Create(svc); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	bench := newTestRecord(t, "101", KindBenchmark, "100")
	if err := tr.Create(bench); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	mon := newTestRecord(t, "102", KindMonitor, "100")
	if err := tr.Create(mon); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	all, err := tr.List(Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(all))
	}

	services, _ := tr.List(Filter{Kind: KindService})
	if len(services) != 1 || services[0].JobID != "100" {
		t.Errorf("Kind filter wrong: %v", services)
	}

	children, _ := tr.List(Filter{ParentJobID: "100"})
	if len(children) != 2 {
		t.Errorf("Expected 2 children of 100, got %d", len(children))
	}
}

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	backend, err := NewFileBackend(path, nil)
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}
	tr := New(backend)

	if err := tr.Create(newTestRecord(t, "42", KindService, "")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// A second backend over the same path simulates a new process.
	backend2, err := NewFileBackend(path, nil)
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}
	got, err := New(backend2).Get("42")
	if err != nil {
		t.Fatalf("Get from second backend failed: %v", err)
	}
	if got.Name != "ollama" || got.Status != StatusSubmitted {
		t.Errorf("Record did not survive the process boundary: %+v", got)
	}
}

func TestFileBackendMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	backend, err := NewFileBackend(path, nil)
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}

	records, err := New(backend).List(Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected empty registry, got %d records", len(records))
	}
}

func TestFileBackendCorruptedFileReinitializes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	backend, err := NewFileBackend(path, nil)
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}
	tr := New(backend)

	records, err := tr.List(Filter{})
	if err != nil {
		t.Fatalf("List on corrupted store failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected empty registry after corruption, got %d", len(records))
	}

	// The store must be usable again.
	if err := tr.Create(newTestRecord(t, "7", KindService, "")); err != nil {
		t.Fatalf("Create after corruption failed: %v", err)
	}
	if _, err := tr.Get("7"); err != nil {
		t.Fatalf("Get after reinit failed: %v", err)
	}
}

func TestConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")

	// Two trackers over the same file stand in for two CLI processes.
	b1, _ := NewFileBackend(path, nil)
	b2, _ := NewFileBackend(path, nil)
	tr1 := New(b1)
	tr2 := New(b2)

	if err := tr1.Create(newTestRecord(t, "1", KindService, "")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := tr2.Create(newTestRecord(t, "2", KindService, "")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	node := "node-a"
	if _, err := tr1.Update("1", Patch{Node: &node}); err != nil {
		t.Fatalf("Update from first tracker failed: %v", err)
	}
	pending := StatusPending
	if _, err := tr2.Update("2", Patch{Status: &pending}); err != nil {
		t.Fatalf("Update from second tracker failed: %v", err)
	}

	records, err := tr1.List(Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("A write was lost: %d records", len(records))
	}
	got1, _ := tr1.Get("1")
	got2, _ := tr1.Get("2")
	if got1.Node != "node-a" {
		t.Errorf("First write lost: %+v", got1)
	}
	if got2.Status != StatusPending {
		t.Errorf("Second write lost: %+v", got2)
	}
}
