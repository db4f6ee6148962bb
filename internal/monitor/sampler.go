package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/aifactory/aifctl/internal/logging"
	"github.com/aifactory/aifctl/internal/retry"
)

// serviceEndpoints maps a service name to its metrics endpoint on a node.
// Services without an endpoint get system metrics only.
var serviceEndpoints = map[string]string{
	"ollama": "http://%s:11434/metrics",
	"chroma": "http://%s:8000/metrics",
}

// SystemMetrics is one snapshot of host-level resource usage.
type SystemMetrics struct {
	CPUUsage       float64 `json:"cpu_usage"`
	MemoryUsage    float64 `json:"memory_usage"`
	DiskReadBytes  uint64  `json:"disk_read_bytes"`
	DiskWriteBytes uint64  `json:"disk_write_bytes"`
	NetSentBytes   uint64  `json:"net_sent_bytes"`
	NetRecvBytes   uint64  `json:"net_recv_bytes"`
}

// Sample is one timestamped collection cycle.
type Sample struct {
	Timestamp time.Time          `json:"timestamp"`
	System    SystemMetrics      `json:"system"`
	GPU       map[string]float64 `json:"gpu,omitempty"`
	Service   map[string]float64 `json:"service,omitempty"`
	Errors    []string           `json:"errors,omitempty"`
}

// Sampler collects metrics for a service on a poll loop and writes the
// samples to a monitoring artifact.
type Sampler struct {
	Service    string
	Node       string
	Interval   time.Duration
	Duration   time.Duration
	OutputPath string

	client    *http.Client
	scrapeTry retry.Config
	log       *logging.Logger
}

// NewSampler creates a sampler for service running on node.
func NewSampler(service, node string, interval, duration time.Duration, outputPath string, log *logging.Logger) *Sampler {
	return &Sampler{
		Service:    service,
		Node:       node,
		Interval:   interval,
		Duration:   duration,
		OutputPath: outputPath,
		client:     &http.Client{Timeout: 5 * time.Second},
		scrapeTry: retry.Config{
			MaxRetries:     2,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Multiplier:     2.0,
		},
		log: log,
	}
}

// Run executes the poll loop until the duration elapses or ctx is cancelled.
// Cancellation is cooperative, checked each interval; whatever was collected
// is saved on every exit path.
func (s *Sampler) Run(ctx context.Context) error {
	deadline := time.Now().Add(s.Duration)
	var samples []Sample

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		samples = append(samples, s.collect(ctx))

		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			if s.log != nil {
				s.log.Info("Monitor cancelled, saving collected samples", map[string]interface{}{
					"samples": len(samples),
				})
			}
			return s.save(samples)
		case <-ticker.C:
		}
	}

	if s.log != nil {
		s.log.Info("Monitor finished", map[string]interface{}{
			"samples": len(samples),
			"output":  s.OutputPath,
		})
	}
	return s.save(samples)
}

func (s *Sampler) collect(ctx context.Context) Sample {
	sample := Sample{Timestamp: time.Now().UTC()}

	sample.System, sample.Errors = collectSystem()

	if gpu, err := collectGPU(ctx); err == nil && len(gpu) > 0 {
		sample.GPU = gpu
	}

	if svc, err := s.collectService(ctx); err != nil {
		sample.Errors = append(sample.Errors, err.Error())
	} else {
		sample.Service = svc
	}

	return sample
}

func collectSystem() (SystemMetrics, []string) {
	var m SystemMetrics
	var errs []string

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		m.CPUUsage = pct[0]
	} else if err != nil {
		errs = append(errs, "cpu: "+err.Error())
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		m.MemoryUsage = vm.UsedPercent
	} else {
		errs = append(errs, "mem: "+err.Error())
	}

	if counters, err := disk.IOCounters(); err == nil {
		for _, c := range counters {
			m.DiskReadBytes += c.ReadBytes
			m.DiskWriteBytes += c.WriteBytes
		}
	}

	if counters, err := gnet.IOCounters(false); err == nil && len(counters) > 0 {
		m.NetSentBytes = counters[0].BytesSent
		m.NetRecvBytes = counters[0].BytesRecv
	}

	return m, errs
}

// collectGPU shells out to nvidia-smi; nodes without a GPU simply contribute
// nothing.
func collectGPU(ctx context.Context) (map[string]float64, error) {
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=utilization.gpu,memory.used,memory.total",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		return nil, err
	}

	return parseGPUQuery(out)
}

// parseGPUQuery reads nvidia-smi csv output, one line per GPU. Utilization is
// averaged across GPUs, memory is summed.
func parseGPUQuery(out []byte) (map[string]float64, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")

	var util, memUsed, memTotal float64
	count := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 3 {
			return nil, fmt.Errorf("unexpected nvidia-smi output: %q", line)
		}
		vals := make([]float64, 3)
		for i := range vals {
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		util += vals[0]
		memUsed += vals[1]
		memTotal += vals[2]
		count++
	}
	if count == 0 {
		return nil, fmt.Errorf("unexpected nvidia-smi output")
	}

	return map[string]float64{
		"gpu_count":     float64(count),
		"gpu_util":      util / float64(count),
		"gpu_mem_used":  memUsed,
		"gpu_mem_total": memTotal,
	}, nil
}

// collectService scrapes the service's Prometheus endpoint and flattens it
// to name -> value. Transient scrape failures are retried; anything
// non-retryable fails the cycle immediately and shows up in the sample's
// error list.
func (s *Sampler) collectService(ctx context.Context) (map[string]float64, error) {
	pattern, ok := serviceEndpoints[s.Service]
	if !ok {
		return nil, nil
	}
	url := fmt.Sprintf(pattern, s.Node)

	var metrics map[string]float64
	var permanent error
	err := retry.Do(ctx, s.scrapeTry, func() error {
		m, err := s.scrapeOnce(ctx, url)
		if err == nil {
			metrics = m
			return nil
		}
		if !retry.IsRetryable(err) {
			permanent = err
			return nil
		}
		if s.log != nil {
			s.log.Warn("Metrics scrape failed, retrying", map[string]interface{}{
				"url":   url,
				"error": err.Error(),
			})
		}
		return err
	})
	if permanent != nil {
		return nil, permanent
	}
	if err != nil {
		return nil, err
	}
	return metrics, nil
}

func (s *Sampler) scrapeOnce(ctx context.Context, url string) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape %s: status %d", url, resp.StatusCode)
	}

	metrics, err := flattenPromText(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse metrics from %s: %w", url, err)
	}
	return metrics, nil
}

// flattenPromText reduces a Prometheus text exposition to name -> value,
// taking the first sample of each family. Histograms and summaries are
// skipped; the monitor records simple time series only.
func flattenPromText(r io.Reader) (map[string]float64, error) {
	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, err
	}

	metrics := make(map[string]float64, len(families))
	for name, family := range families {
		if len(family.Metric) == 0 {
			continue
		}
		m := family.Metric[0]
		switch {
		case m.Gauge != nil:
			metrics[name] = m.Gauge.GetValue()
		case m.Counter != nil:
			metrics[name] = m.Counter.GetValue()
		case m.Untyped != nil:
			metrics[name] = m.Untyped.GetValue()
		}
	}
	return metrics, nil
}

func (s *Sampler) save(samples []Sample) error {
	if err := os.MkdirAll(filepath.Dir(s.OutputPath), 0755); err != nil {
		return fmt.Errorf("failed to create monitoring directory: %w", err)
	}
	data, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode samples: %w", err)
	}
	if err := os.WriteFile(s.OutputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write monitoring artifact: %w", err)
	}
	return nil
}
