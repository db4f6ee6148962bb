package slurm

import (
	"regexp"
	"strings"
)

// submitPattern is the single extraction point for sbatch's success output.
// Slurm has printed this exact line for decades, but if the format ever
// changes this is the only place to touch.
var submitPattern = regexp.MustCompile(`Submitted batch job (\d+)`)

// ParseSubmitOutput extracts the assigned job id from sbatch stdout.
func ParseSubmitOutput(out string) (string, error) {
	m := submitPattern.FindStringSubmatch(out)
	if m == nil {
		return "", &SubmissionParseError{Output: strings.TrimSpace(out)}
	}
	return m[1], nil
}

// parseScontrolJob parses `scontrol show job` output, a whitespace-separated
// list of KEY=VALUE tokens.
func parseScontrolJob(jobID, out string) (*JobInfo, error) {
	fields := make(map[string]string)
	for _, tok := range strings.Fields(out) {
		if i := strings.Index(tok, "="); i > 0 {
			fields[tok[:i]] = tok[i+1:]
		}
	}

	state := fields["JobState"]
	if state == "" {
		return nil, &QueryError{JobID: jobID, Reason: "no JobState in scontrol output"}
	}

	node := fields["NodeList"]
	if node == "(null)" {
		node = ""
	}

	return &JobInfo{
		JobID:    jobID,
		State:    state,
		Node:     node,
		ExitCode: fields["ExitCode"],
	}, nil
}

// parseSacctLine parses one pipe-separated sacct record: State|ExitCode|NodeList.
// sacct state tokens can carry a trailing cause, e.g. "CANCELLED by 1234".
func parseSacctLine(jobID, out string) (*JobInfo, bool) {
	line := strings.TrimSpace(out)
	if line == "" {
		return nil, false
	}
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	parts := strings.Split(line, "|")
	if len(parts) < 2 {
		return nil, false
	}

	state := strings.Fields(parts[0])
	if len(state) == 0 {
		return nil, false
	}

	info := &JobInfo{
		JobID:    jobID,
		State:    state[0],
		ExitCode: strings.TrimSpace(parts[1]),
	}
	if len(parts) > 2 {
		node := strings.TrimSpace(parts[2])
		if node != "None assigned" {
			info.Node = node
		}
	}
	return info, true
}

// isInvalidJobErr recognizes the scheduler's "no such job" answers, which
// mean the job has departed rather than that the query failed.
func isInvalidJobErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "invalid job id") ||
		strings.Contains(msg, "unknown job") ||
		strings.Contains(msg, "already completing or completed")
}
