package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/aifactory/aifctl/internal/logging"
	"github.com/aifactory/aifctl/internal/recipe"
	"github.com/aifactory/aifctl/internal/reconcile"
	"github.com/aifactory/aifctl/internal/results"
	"github.com/aifactory/aifctl/internal/submit"
	"github.com/aifactory/aifctl/internal/tracker"
)

// Manager runs benchmark jobs against deployed services.
type Manager struct {
	recipes      *recipe.Store
	submitter    *submit.Submitter
	tracker      *tracker.Tracker
	reconciler   *reconcile.Reconciler
	benchmarkDir string
	waitTimeout  time.Duration
	pollInterval time.Duration
	log          *logging.Logger
}

// NewManager creates a benchmark manager.
func NewManager(recipes *recipe.Store, submitter *submit.Submitter, t *tracker.Tracker, r *reconcile.Reconciler, benchmarkDir string, waitTimeout, pollInterval time.Duration, log *logging.Logger) *Manager {
	return &Manager{
		recipes:      recipes,
		submitter:    submitter,
		tracker:      t,
		reconciler:   r,
		benchmarkDir: benchmarkDir,
		waitTimeout:  waitTimeout,
		pollInterval: pollInterval,
		log:          log,
	}
}

// Run submits a benchmark job targeting the service job parentJobID. The
// target must be a tracked service; it must be running with an assigned node
// before the benchmark launches.
func (m *Manager) Run(ctx context.Context, name, parentJobID string, overrides map[string]string) (*tracker.JobRecord, error) {
	parent, err := m.tracker.Get(parentJobID)
	if err != nil {
		return nil, err
	}
	if parent.Kind != tracker.KindService {
		return nil, fmt.Errorf("job %s is a %s, benchmarks target services", parentJobID, parent.Kind)
	}

	r, err := m.recipes.Lookup(recipe.KindBenchmark, name)
	if err != nil {
		return nil, err
	}
	resolved, err := m.recipes.Resolve(recipe.KindBenchmark, name, overrides)
	if err != nil {
		return nil, err
	}

	node := parent.Node
	if node == "" {
		node, err = m.reconciler.WaitForNode(ctx, parentJobID, m.waitTimeout, m.pollInterval)
		if err != nil {
			return nil, fmt.Errorf("target service never reached a node: %w", err)
		}
	}

	// The benchmark script reads its target and result destination from the
	// environment. Result files embed the service job id so the correlator
	// groups them under the service.
	resolved["target_host"] = node
	resolved["result_file"] = results.ArtifactPath(m.benchmarkDir, name, parentJobID, tracker.KindBenchmark, time.Now())

	return m.submitter.Submit(ctx, tracker.KindBenchmark, name, r.Script, resolved, parentJobID)
}

// Recipes lists the available benchmark recipes.
func (m *Manager) Recipes() []*recipe.Recipe {
	return m.recipes.All(recipe.KindBenchmark)
}
