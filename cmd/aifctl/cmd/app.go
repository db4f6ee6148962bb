package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aifactory/aifctl/internal/bench"
	"github.com/aifactory/aifctl/internal/config"
	"github.com/aifactory/aifctl/internal/deploy"
	"github.com/aifactory/aifctl/internal/health"
	"github.com/aifactory/aifctl/internal/logging"
	"github.com/aifactory/aifctl/internal/monitor"
	"github.com/aifactory/aifctl/internal/recipe"
	"github.com/aifactory/aifctl/internal/reconcile"
	"github.com/aifactory/aifctl/internal/results"
	"github.com/aifactory/aifctl/internal/retry"
	"github.com/aifactory/aifctl/internal/slurm"
	"github.com/aifactory/aifctl/internal/submit"
	"github.com/aifactory/aifctl/internal/tracker"
)

// app wires the components for one CLI invocation. Everything hangs off the
// loaded config; nothing is a process-wide singleton.
type app struct {
	cfg        *config.Config
	log        *logging.Logger
	recipes    *recipe.Store
	tracker    *tracker.Tracker
	client     *slurm.Client
	submitter  *submit.Submitter
	reconciler *reconcile.Reconciler
	correlator *results.Correlator
	services   *deploy.Manager
	benchmarks *bench.Manager
	monitors   *monitor.Starter
}

// newApp builds the component graph from configuration.
func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	log := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogJSON)

	recipes, err := recipe.Load(cfg.RecipesDir)
	if err != nil {
		return nil, err
	}

	backend, err := tracker.NewFileBackend(cfg.JobStorePath(), log)
	if err != nil {
		return nil, err
	}
	t := tracker.New(backend)

	client := slurm.NewClient(slurm.ExecRunner{})
	submitter := submit.New(client, t, cfg.ScriptsDir, cfg.LogDir, log)

	checker := health.NewRegistry(cfg.HealthTimeout)
	reconciler := reconcile.New(t, client, checker, retry.Config{
		MaxRetries:     cfg.HealthRetries,
		InitialBackoff: cfg.HealthInitialBackoff,
		MaxBackoff:     cfg.HealthMaxBackoff,
		Multiplier:     2.0,
	}, log)

	correlator := results.New(cfg.BenchmarkResultsDir(), cfg.MonitoringResultsDir())

	return &app{
		cfg:        cfg,
		log:        log,
		recipes:    recipes,
		tracker:    t,
		client:     client,
		submitter:  submitter,
		reconciler: reconciler,
		correlator: correlator,
		services:   deploy.NewManager(recipes, submitter, t, client, cfg.LogDir, log),
		benchmarks: bench.NewManager(recipes, submitter, t, reconciler, cfg.BenchmarkResultsDir(), cfg.NodeWaitTimeout, cfg.PollInterval, log),
		monitors:   monitor.NewStarter(submitter, t, reconciler, cfg.MonitoringResultsDir(), cfg.NodeWaitTimeout, cfg.PollInterval, log),
	}, nil
}

// parseOverrides turns repeated --override KEY=VALUE flags into a map.
func parseOverrides(raw []string) (map[string]string, error) {
	overrides := make(map[string]string, len(raw))
	for _, item := range raw {
		key, value, ok := cutKeyValue(item)
		if !ok {
			return nil, fmt.Errorf("invalid override %q, use KEY=VALUE", item)
		}
		overrides[key] = value
	}
	return overrides, nil
}

func cutKeyValue(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			if i == 0 {
				return "", "", false
			}
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
