package slurm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
)

// Runner executes an external scheduler command and returns its stdout.
// Production uses the local sbatch/scontrol/scancel binaries; tests inject a
// fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands on the local host.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return stdout.String(), fmt.Errorf("%s: %s", name, msg)
	}
	return stdout.String(), nil
}

// Client is the narrow command interface to the Slurm scheduler. Everything
// the tool knows about Slurm's output formats is in this package.
type Client struct {
	runner Runner
}

// NewClient creates a client over the given runner.
func NewClient(runner Runner) *Client {
	return &Client{runner: runner}
}

// SubmitRequest carries the scheduler directives and environment for one
// sbatch invocation.
type SubmitRequest struct {
	JobName   string
	Script    string
	Partition string
	TimeLimit string
	Nodes     int
	Account   string
	Output    string
	Env       map[string]string
}

// Submit runs sbatch and returns the scheduler-assigned job id.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.Script == "" {
		return "", &SubmissionError{Reason: "no script to submit"}
	}

	var args []string
	if req.JobName != "" {
		args = append(args, "--job-name="+req.JobName)
	}
	if req.Partition != "" {
		args = append(args, "--partition="+req.Partition)
	}
	if req.TimeLimit != "" {
		args = append(args, "--time="+req.TimeLimit)
	}
	if req.Nodes > 0 {
		args = append(args, "--nodes="+strconv.Itoa(req.Nodes))
	}
	if req.Account != "" {
		args = append(args, "--account="+req.Account)
	}
	if req.Output != "" {
		args = append(args, "--output="+req.Output)
	}
	if len(req.Env) > 0 {
		keys := make([]string, 0, len(req.Env))
		for k := range req.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		export := make([]string, 0, len(keys)+1)
		export = append(export, "ALL")
		for _, k := range keys {
			export = append(export, k+"="+req.Env[k])
		}
		args = append(args, "--export="+strings.Join(export, ","))
	}
	args = append(args, req.Script)

	out, err := c.runner.Run(ctx, "sbatch", args...)
	if err != nil {
		return "", &SubmissionError{Reason: err.Error()}
	}

	jobID, err := ParseSubmitOutput(out)
	if err != nil {
		return "", err
	}
	return jobID, nil
}

// JobInfo is the one-line view of a job's live state.
type JobInfo struct {
	JobID    string
	State    string // raw Slurm state token, e.g. RUNNING, PENDING, COMPLETED
	Node     string // assigned node list, empty until running
	ExitCode string // raw Slurm exit code, e.g. "0:0", set for departed jobs
}

// Info queries the live scheduler state for a job. scontrol answers for
// queued and running jobs; once a job has left the controller's memory,
// sacct's accounting record answers instead. A job unknown to both returns
// ErrJobUnknown.
func (c *Client) Info(ctx context.Context, jobID string) (*JobInfo, error) {
	out, err := c.runner.Run(ctx, "scontrol", "show", "job", jobID)
	if err == nil {
		return parseScontrolJob(jobID, out)
	}
	if !isInvalidJobErr(err) {
		return nil, &QueryError{JobID: jobID, Reason: err.Error()}
	}
	return c.infoFromAccounting(ctx, jobID)
}

func (c *Client) infoFromAccounting(ctx context.Context, jobID string) (*JobInfo, error) {
	out, err := c.runner.Run(ctx, "sacct", "-j", jobID, "-n", "-P", "-X", "-o", "State,ExitCode,NodeList")
	if err != nil {
		return nil, &QueryError{JobID: jobID, Reason: err.Error()}
	}
	info, ok := parseSacctLine(jobID, out)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobUnknown, jobID)
	}
	return info, nil
}

// Cancel sends a termination request for the job. Cancelling a job that has
// already finished is not an error.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	if _, err := c.runner.Run(ctx, "scancel", jobID); err != nil {
		if isInvalidJobErr(err) {
			return nil
		}
		return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}
	return nil
}

// Queue returns the raw squeue listing for the current user.
func (c *Client) Queue(ctx context.Context) (string, error) {
	out, err := c.runner.Run(ctx, "squeue", "--me")
	if err != nil {
		return "", fmt.Errorf("failed to list jobs: %w", err)
	}
	return out, nil
}
