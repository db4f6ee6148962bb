package results

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aifactory/aifctl/internal/tracker"
)

// timestampLayout is the fixed format embedded in artifact file names.
const timestampLayout = "20060102-150405"

// Artifact is a discovered result file. Contents are opaque; everything here
// is parsed from the file name.
type Artifact struct {
	Path      string       `json:"path"`
	Name      string       `json:"name"` // benchmark or service name
	JobID     string       `json:"job_id"`
	Kind      tracker.Kind `json:"kind"` // BENCHMARK or MONITOR
	Timestamp time.Time    `json:"timestamp"`
}

// Correlator locates result artifacts on disk and associates them with the
// jobs that produced them.
type Correlator struct {
	benchmarkDir  string
	monitoringDir string
}

// New creates a correlator over the two fixed result locations.
func New(benchmarkDir, monitoringDir string) *Correlator {
	return &Correlator{benchmarkDir: benchmarkDir, monitoringDir: monitoringDir}
}

// Find returns all artifacts for jobID, oldest first. Files whose names do
// not parse are skipped; a best-effort listing beats failing the whole scan
// on one bad file.
func (c *Correlator) Find(jobID string) ([]Artifact, error) {
	all, err := c.scan()
	if err != nil {
		return nil, err
	}
	var out []Artifact
	for _, a := range all {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	return out, nil
}

// Summarize groups a job's artifacts by kind.
func (c *Correlator) Summarize(jobID string) (map[tracker.Kind][]Artifact, error) {
	found, err := c.Find(jobID)
	if err != nil {
		return nil, err
	}
	out := make(map[tracker.Kind][]Artifact)
	for _, a := range found {
		out[a.Kind] = append(out[a.Kind], a)
	}
	return out, nil
}

// List returns every artifact in both result locations, oldest first.
func (c *Correlator) List() ([]Artifact, error) {
	return c.scan()
}

func (c *Correlator) scan() ([]Artifact, error) {
	var out []Artifact
	dirs := []struct {
		path string
		kind tracker.Kind
	}{
		{c.benchmarkDir, tracker.KindBenchmark},
		{c.monitoringDir, tracker.KindMonitor},
	}
	for _, d := range dirs {
		entries, err := os.ReadDir(d.path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			a, ok := parseName(e.Name(), d.kind)
			if !ok {
				continue
			}
			a.Path = filepath.Join(d.path, e.Name())
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Path < out[j].Path
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// parseName decodes {name}_{job_id}_{timestamp}.json, with monitoring files
// shaped {service}_monitor_{job_id}_{timestamp}.json. The name itself may
// contain underscores, so job id and timestamp are taken from the right.
func parseName(filename string, kind tracker.Kind) (Artifact, bool) {
	base, ok := strings.CutSuffix(filename, ".json")
	if !ok {
		return Artifact{}, false
	}

	parts := strings.Split(base, "_")
	if len(parts) < 3 {
		return Artifact{}, false
	}

	ts, err := time.Parse(timestampLayout, parts[len(parts)-1])
	if err != nil {
		return Artifact{}, false
	}

	jobID := parts[len(parts)-2]
	if jobID == "" || strings.Trim(jobID, "0123456789") != "" {
		return Artifact{}, false
	}

	name := strings.Join(parts[:len(parts)-2], "_")
	if name == "" {
		return Artifact{}, false
	}
	if kind == tracker.KindMonitor {
		// Monitoring files carry a _monitor marker after the service name.
		service, ok := strings.CutSuffix(name, "_monitor")
		if !ok {
			return Artifact{}, false
		}
		name = service
	}

	return Artifact{
		Name:      name,
		JobID:     jobID,
		Kind:      kind,
		Timestamp: ts,
	}, true
}

// ArtifactPath builds the canonical artifact path for a new result file.
func ArtifactPath(dir, name, jobID string, kind tracker.Kind, now time.Time) string {
	base := name
	if kind == tracker.KindMonitor {
		base = name + "_monitor"
	}
	return filepath.Join(dir, base+"_"+jobID+"_"+now.Format(timestampLayout)+".json")
}
