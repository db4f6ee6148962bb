package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aifactory/aifctl/internal/logging"
	"github.com/aifactory/aifctl/internal/recipe"
	"github.com/aifactory/aifctl/internal/slurm"
	"github.com/aifactory/aifctl/internal/submit"
	"github.com/aifactory/aifctl/internal/tracker"
)

// Manager deploys and manages long-running services on the cluster.
type Manager struct {
	recipes   *recipe.Store
	submitter *submit.Submitter
	tracker   *tracker.Tracker
	client    *slurm.Client
	logDir    string
	log       *logging.Logger
}

// NewManager creates a service manager.
func NewManager(recipes *recipe.Store, submitter *submit.Submitter, t *tracker.Tracker, client *slurm.Client, logDir string, log *logging.Logger) *Manager {
	return &Manager{
		recipes:   recipes,
		submitter: submitter,
		tracker:   t,
		client:    client,
		logDir:    logDir,
		log:       log,
	}
}

// Start resolves the service recipe, submits it, and registers the record.
func (m *Manager) Start(ctx context.Context, name string, overrides map[string]string) (*tracker.JobRecord, error) {
	r, err := m.recipes.Lookup(recipe.KindService, name)
	if err != nil {
		return nil, err
	}
	resolved, err := m.recipes.Resolve(recipe.KindService, name, overrides)
	if err != nil {
		return nil, err
	}
	return m.submitter.Submit(ctx, tracker.KindService, name, r.Script, resolved, "")
}

// Stop cancels the job and marks its record CANCELLED. A job that finished
// on its own while we were cancelling is fine; the next reconcile reveals
// the true terminal status.
func (m *Manager) Stop(ctx context.Context, jobID string) (*tracker.JobRecord, error) {
	rec, err := m.tracker.Get(jobID)
	if err != nil {
		return nil, err
	}
	if tracker.IsTerminal(rec.Status) {
		return rec, nil
	}

	if err := m.client.Cancel(ctx, jobID); err != nil {
		return nil, err
	}

	cancelled := tracker.StatusCancelled
	updated, err := m.tracker.Update(jobID, tracker.Patch{Status: &cancelled})
	if err != nil {
		// Lost the race against the job's own completion.
		var inv *tracker.InvalidTransitionError
		if errors.As(err, &inv) {
			return m.tracker.Get(jobID)
		}
		return nil, err
	}
	return updated, nil
}

// Recipes lists the available service recipes.
func (m *Manager) Recipes() []*recipe.Recipe {
	return m.recipes.All(recipe.KindService)
}

// Queue returns the scheduler's raw queue listing for the current user.
func (m *Manager) Queue(ctx context.Context) (string, error) {
	return m.client.Queue(ctx)
}

// Logs reads the scheduler output file for a tracked job.
func (m *Manager) Logs(jobID string) (string, error) {
	rec, err := m.tracker.Get(jobID)
	if err != nil {
		return "", err
	}

	path := filepath.Join(m.logDir, fmt.Sprintf("%s-%s.out", rec.Name, rec.JobID))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no log file yet for job %s (expected %s)", jobID, path)
		}
		return "", err
	}
	return string(data), nil
}
