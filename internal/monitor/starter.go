package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/aifactory/aifctl/internal/logging"
	"github.com/aifactory/aifctl/internal/reconcile"
	"github.com/aifactory/aifctl/internal/results"
	"github.com/aifactory/aifctl/internal/submit"
	"github.com/aifactory/aifctl/internal/tracker"
)

// monitorScript is the fixed wrapper script that runs `aifctl monitor run`
// inside the batch job. It reads its parameters from the AIF_* environment.
const monitorScript = "run_monitor.sh"

// Spec carries the scheduler directives and loop parameters for one monitor
// submission.
type Spec struct {
	Partition string
	TimeLimit string
	Duration  time.Duration
	Interval  time.Duration
}

// Starter submits monitor jobs against running services.
type Starter struct {
	submitter     *submit.Submitter
	tracker       *tracker.Tracker
	reconciler    *reconcile.Reconciler
	monitoringDir string
	waitTimeout   time.Duration
	pollInterval  time.Duration
	log           *logging.Logger
}

// NewStarter creates a monitor starter.
func NewStarter(s *submit.Submitter, t *tracker.Tracker, r *reconcile.Reconciler, monitoringDir string, waitTimeout, pollInterval time.Duration, log *logging.Logger) *Starter {
	return &Starter{
		submitter:     s,
		tracker:       t,
		reconciler:    r,
		monitoringDir: monitoringDir,
		waitTimeout:   waitTimeout,
		pollInterval:  pollInterval,
		log:           log,
	}
}

// Start submits a monitor job for the service job parentJobID. Like
// benchmarks, monitors require a running target with an assigned node, and
// their artifacts embed the service job id.
func (s *Starter) Start(ctx context.Context, serviceName, parentJobID string, spec Spec) (*tracker.JobRecord, error) {
	parent, err := s.tracker.Get(parentJobID)
	if err != nil {
		return nil, err
	}
	if parent.Kind != tracker.KindService {
		return nil, fmt.Errorf("job %s is a %s, monitors target services", parentJobID, parent.Kind)
	}

	node := parent.Node
	if node == "" {
		node, err = s.reconciler.WaitForNode(ctx, parentJobID, s.waitTimeout, s.pollInterval)
		if err != nil {
			return nil, fmt.Errorf("target service never reached a node: %w", err)
		}
	}

	config := map[string]interface{}{
		"service":     serviceName,
		"target_host": node,
		"duration":    spec.Duration.String(),
		"interval":    spec.Interval.String(),
		"result_file": results.ArtifactPath(s.monitoringDir, serviceName, parentJobID, tracker.KindMonitor, time.Now()),
	}
	if spec.Partition != "" {
		config[submit.KeyPartition] = spec.Partition
	}
	if spec.TimeLimit != "" {
		config[submit.KeyTimeLimit] = spec.TimeLimit
	}

	return s.submitter.Submit(ctx, tracker.KindMonitor, serviceName, monitorScript, config, parentJobID)
}
