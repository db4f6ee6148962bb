package bench

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aifactory/aifctl/internal/recipe"
	"github.com/aifactory/aifctl/internal/reconcile"
	"github.com/aifactory/aifctl/internal/retry"
	"github.com/aifactory/aifctl/internal/slurm"
	"github.com/aifactory/aifctl/internal/submit"
	"github.com/aifactory/aifctl/internal/tracker"
)

const testBenchRecipes = `ollama_latency:
  description: Latency benchmark
  script: run_ollama_latency.sh
  defaults:
    requests: 50
    concurrency: 1
  required: []
`

// fakeSource serves scheduler state for WaitForNode.
type fakeSource struct {
	info *slurm.JobInfo
}

func (f *fakeSource) Info(_ context.Context, jobID string) (*slurm.JobInfo, error) {
	if f.info == nil {
		return nil, errors.New("unexpected Info call")
	}
	return f.info, nil
}

type fakeScheduler struct {
	jobID string
	req   slurm.SubmitRequest
}

func (f *fakeScheduler) Submit(_ context.Context, req slurm.SubmitRequest) (string, error) {
	f.req = req
	return f.jobID, nil
}

func retryNone() retry.Config {
	return retry.Config{MaxRetries: 0, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}
}

func newTestManager(t *testing.T, source *fakeSource) (*Manager, *tracker.Tracker, *fakeScheduler) {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "benchmark_recipes.yaml"), []byte(testBenchRecipes), 0o644); err != nil {
		t.Fatalf("Failed to write recipes: %v", err)
	}
	recipes, err := recipe.Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tr := tracker.New(tracker.NewMemoryBackend())
	sched := &fakeScheduler{jobID: "20001"}
	submitter := submit.New(sched, tr, "/opt/aif/scripts", "", nil)
	reconciler := reconcile.New(tr, source, nil, retryNone(), nil)

	m := NewManager(recipes, submitter, tr, reconciler, "/results/benchmarks",
		time.Second, time.Millisecond, nil)
	return m, tr, sched
}

func createService(t *testing.T, tr *tracker.Tracker, jobID, node string) {
	t.Helper()
	rec, err := tracker.NewRecord(jobID, tracker.KindService, "ollama", nil, "")
	if err != nil {
		t.Fatalf("NewRecord failed: %v", err)
	}
	if err := tr.Create(rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if node != "" {
		running := tracker.StatusRunning
		if _, err := tr.Update(jobID, tracker.Patch{Status: &running, Node: &node}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}
}

func TestRunTargetsServiceNode(t *testing.T) {
	m, tr, sched := newTestManager(t, &fakeSource{})
	createService(t, tr, "12345", "mel2095")

	rec, err := m.Run(context.Background(), "ollama_latency", "12345", map[string]string{"requests": "100"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rec.Kind != tracker.KindBenchmark || rec.ParentJobID != "12345" {
		t.Errorf("Unexpected record: %+v", rec)
	}

	if sched.req.Env["AIF_TARGET_HOST"] != "mel2095" {
		t.Errorf("Target host not injected: %v", sched.req.Env)
	}
	if sched.req.Env["AIF_REQUESTS"] != "100" {
		t.Errorf("Override not passed through: %v", sched.req.Env)
	}
	// The result file embeds the service job id, not the benchmark's own.
	result := sched.req.Env["AIF_RESULT_FILE"]
	if !strings.Contains(result, "ollama_latency_12345_") || !strings.HasSuffix(result, ".json") {
		t.Errorf("Result file name wrong: %s", result)
	}
}

func TestRunWaitsForPendingService(t *testing.T) {
	source := &fakeSource{info: &slurm.JobInfo{JobID: "12345", State: "RUNNING", Node: "mel2096"}}
	m, tr, sched := newTestManager(t, source)
	createService(t, tr, "12345", "")

	if _, err := m.Run(context.Background(), "ollama_latency", "12345", nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sched.req.Env["AIF_TARGET_HOST"] != "mel2096" {
		t.Errorf("Node from wait not used: %v", sched.req.Env)
	}
}

func TestRunRejectsNonServiceParent(t *testing.T) {
	m, tr, _ := newTestManager(t, &fakeSource{})
	createService(t, tr, "12345", "mel2095")

	bench, _ := tracker.NewRecord("20000", tracker.KindBenchmark, "ollama_latency", nil, "12345")
	if err := tr.Create(bench); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := m.Run(context.Background(), "ollama_latency", "20000", nil); err == nil {
		t.Error("Expected error for benchmark targeting a benchmark")
	}
}

func TestRunUnknownParent(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeSource{})

	if _, err := m.Run(context.Background(), "ollama_latency", "404", nil); !errors.Is(err, tracker.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
