package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aifactory/aifctl/internal/results"
	"github.com/aifactory/aifctl/internal/tracker"
)

// jobsCollector exports tracker state as Prometheus gauges on scrape.
type jobsCollector struct {
	tracker    *tracker.Tracker
	correlator *results.Correlator

	jobsDesc      *prometheus.Desc
	artifactsDesc *prometheus.Desc
}

func newJobsCollector(t *tracker.Tracker, c *results.Correlator) *jobsCollector {
	return &jobsCollector{
		tracker:    t,
		correlator: c,
		jobsDesc: prometheus.NewDesc(
			"aifctl_jobs",
			"Number of tracked jobs by kind and status",
			[]string{"kind", "status"}, nil,
		),
		artifactsDesc: prometheus.NewDesc(
			"aifctl_result_artifacts",
			"Number of discovered result artifacts by kind",
			[]string{"kind"}, nil,
		),
	}
}

func (c *jobsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobsDesc
	ch <- c.artifactsDesc
}

func (c *jobsCollector) Collect(ch chan<- prometheus.Metric) {
	records, err := c.tracker.List(tracker.Filter{})
	if err == nil {
		type key struct {
			kind   tracker.Kind
			status tracker.Status
		}
		counts := make(map[key]int)
		for _, rec := range records {
			counts[key{rec.Kind, rec.Status}]++
		}
		for k, n := range counts {
			ch <- prometheus.MustNewConstMetric(c.jobsDesc, prometheus.GaugeValue,
				float64(n), string(k.kind), string(k.status))
		}
	}

	artifacts, err := c.correlator.List()
	if err == nil {
		counts := make(map[tracker.Kind]int)
		for _, a := range artifacts {
			counts[a.Kind]++
		}
		for kind, n := range counts {
			ch <- prometheus.MustNewConstMetric(c.artifactsDesc, prometheus.GaugeValue,
				float64(n), string(kind))
		}
	}
}
