package submit

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aifactory/aifctl/internal/logging"
	"github.com/aifactory/aifctl/internal/slurm"
	"github.com/aifactory/aifctl/internal/tracker"
)

// Keys in a resolved config that become scheduler directives instead of
// environment variables.
const (
	KeyPartition = "partition"
	KeyTimeLimit = "time_limit"
	KeyNodes     = "nodes"
	KeyAccount   = "account"
)

// Scheduler is the submission half of the scheduler interface.
type Scheduler interface {
	Submit(ctx context.Context, req slurm.SubmitRequest) (string, error)
}

// Submitter turns resolved parameter sets into scheduler submissions and
// registers the resulting job records. A caller that gets a record back is
// guaranteed the tracker knows the job id.
type Submitter struct {
	scheduler  Scheduler
	tracker    *tracker.Tracker
	scriptsDir string
	logDir     string
	log        *logging.Logger
}

// New creates a submitter.
func New(scheduler Scheduler, t *tracker.Tracker, scriptsDir, logDir string, log *logging.Logger) *Submitter {
	return &Submitter{
		scheduler:  scheduler,
		tracker:    t,
		scriptsDir: scriptsDir,
		logDir:     logDir,
		log:        log,
	}
}

// Submit launches script with the resolved config and registers a SUBMITTED
// record. Directive keys become sbatch flags; every other config key is
// exported to the job environment as AIF_<KEY>.
func (s *Submitter) Submit(ctx context.Context, kind tracker.Kind, name, script string, config map[string]interface{}, parentJobID string) (*tracker.JobRecord, error) {
	req := s.buildRequest(name, script, config)

	jobID, err := s.scheduler.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	rec, err := tracker.NewRecord(jobID, kind, name, config, parentJobID)
	if err != nil {
		return nil, err
	}
	if err := s.tracker.Create(rec); err != nil {
		// The job is already launched; losing its record would orphan it.
		if s.log != nil {
			s.log.Error("Submitted job could not be registered", map[string]interface{}{
				"job_id": jobID,
				"error":  err.Error(),
			})
		}
		return nil, fmt.Errorf("job %s submitted but not registered: %w", jobID, err)
	}

	if s.log != nil {
		s.log.Info("Job submitted", map[string]interface{}{
			"job_id": jobID,
			"kind":   string(kind),
			"name":   name,
		})
	}
	return rec, nil
}

func (s *Submitter) buildRequest(name, script string, config map[string]interface{}) slurm.SubmitRequest {
	req := slurm.SubmitRequest{
		JobName: "aif-" + name,
		Script:  script,
		Env:     make(map[string]string),
	}
	if !filepath.IsAbs(req.Script) {
		req.Script = filepath.Join(s.scriptsDir, script)
	}
	if s.logDir != "" {
		// %j expands to the job id on the scheduler side.
		req.Output = filepath.Join(s.logDir, name+"-%j.out")
	}

	for key, value := range config {
		switch key {
		case KeyPartition:
			req.Partition = asString(value)
		case KeyTimeLimit:
			req.TimeLimit = asString(value)
		case KeyNodes:
			req.Nodes = asInt(value)
		case KeyAccount:
			req.Account = asString(value)
		default:
			req.Env[envName(key)] = asString(value)
		}
	}
	return req
}

// envName maps a config key to its job environment variable.
func envName(key string) string {
	return "AIF_" + strings.ToUpper(key)
}

func asString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
