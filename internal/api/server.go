package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aifactory/aifctl/internal/logging"
	"github.com/aifactory/aifctl/internal/results"
	"github.com/aifactory/aifctl/internal/tracker"
)

// Server is a read-only HTTP view over the job registry and result
// artifacts, plus a Prometheus metrics endpoint. It never mutates anything:
// all writes stay behind the CLI.
type Server struct {
	tracker    *tracker.Tracker
	correlator *results.Correlator
	log        *logging.Logger
	addr       string
}

// NewServer creates a status API server.
func NewServer(t *tracker.Tracker, c *results.Correlator, addr string, log *logging.Logger) *Server {
	return &Server{tracker: t, correlator: c, addr: addr, log: log}
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	registry := prometheus.NewRegistry()
	registry.MustRegister(newJobsCollector(s.tracker, s.correlator))

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/jobs", s.handleListJobs).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/jobs/{id}/artifacts", s.handleJobArtifacts).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	if s.log != nil {
		s.log.Info("Status API listening", map[string]interface{}{"addr": s.addr})
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := tracker.Filter{
		Kind:        tracker.Kind(q.Get("kind")),
		Status:      tracker.Status(q.Get("status")),
		ParentJobID: q.Get("parent"),
	}

	records, err := s.tracker.List(filter)
	if err != nil {
		s.error(w, http.StatusInternalServerError, err)
		return
	}
	if records == nil {
		records = []*tracker.JobRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.tracker.Get(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, tracker.ErrNotFound) {
			s.error(w, http.StatusNotFound, err)
			return
		}
		s.error(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleJobArtifacts(w http.ResponseWriter, r *http.Request) {
	artifacts, err := s.correlator.Find(mux.Vars(r)["id"])
	if err != nil {
		s.error(w, http.StatusInternalServerError, err)
		return
	}
	if artifacts == nil {
		artifacts = []results.Artifact{}
	}
	writeJSON(w, http.StatusOK, artifacts)
}

func (s *Server) error(w http.ResponseWriter, status int, err error) {
	if s.log != nil && status >= 500 {
		s.log.Error("API request failed", map[string]interface{}{"error": err.Error()})
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
