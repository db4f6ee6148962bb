package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/aifactory/aifctl/internal/logging"
	"github.com/aifactory/aifctl/internal/monitor"
	"github.com/aifactory/aifctl/internal/tracker"
)

var (
	monitorJobID     string
	monitorDuration  time.Duration
	monitorInterval  time.Duration
	monitorPartition string
	monitorTimeLimit string

	// monitor run flags
	monitorRunService string
	monitorRunNode    string
	monitorRunOutput  string
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor deployed services",
}

var monitorStartCmd = &cobra.Command{
	Use:   "start <service>",
	Short: "Submit a monitoring job for a running service",
	Long: `Submit a Slurm job that samples system and service metrics for the service
identified by --job-id, writing the samples to the monitoring results
directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runMonitorStart,
}

var monitorRunCmd = &cobra.Command{
	Use:    "run",
	Short:  "Run the monitoring loop in the current process",
	Hidden: true, // invoked by the monitor batch script, not by hand
	RunE:   runMonitorRun,
}

var monitorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked monitor jobs",
	Args:  cobra.NoArgs,
	RunE:  runMonitorList,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.AddCommand(monitorStartCmd)
	monitorCmd.AddCommand(monitorRunCmd)
	monitorCmd.AddCommand(monitorListCmd)

	monitorStartCmd.Flags().StringVar(&monitorJobID, "job-id", "", "service job ID to monitor (required)")
	monitorStartCmd.Flags().DurationVar(&monitorDuration, "duration", 0, "how long to monitor (default from config)")
	monitorStartCmd.Flags().DurationVar(&monitorInterval, "interval", 0, "sampling interval (default from config)")
	monitorStartCmd.Flags().StringVar(&monitorPartition, "partition", "", "partition for the monitor job")
	monitorStartCmd.Flags().StringVar(&monitorTimeLimit, "time-limit", "", "time limit for the monitor job")
	monitorStartCmd.MarkFlagRequired("job-id")

	monitorRunCmd.Flags().StringVar(&monitorRunService, "service", "", "service name")
	monitorRunCmd.Flags().StringVar(&monitorRunNode, "node", "", "node the service runs on")
	monitorRunCmd.Flags().DurationVar(&monitorDuration, "duration", 5*time.Minute, "how long to monitor")
	monitorRunCmd.Flags().DurationVar(&monitorInterval, "interval", 5*time.Second, "sampling interval")
	monitorRunCmd.Flags().StringVar(&monitorRunOutput, "output", "", "output artifact path")
	monitorRunCmd.MarkFlagRequired("service")
	monitorRunCmd.MarkFlagRequired("node")
	monitorRunCmd.MarkFlagRequired("output")
}

func runMonitorStart(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	duration := monitorDuration
	if duration == 0 {
		duration = a.cfg.MonitorDuration
	}
	interval := monitorInterval
	if interval == 0 {
		interval = a.cfg.MonitorInterval
	}

	rec, err := a.monitors.Start(cmd.Context(), args[0], monitorJobID, monitor.Spec{
		Partition: monitorPartition,
		TimeLimit: monitorTimeLimit,
		Duration:  duration,
		Interval:  interval,
	})
	if err != nil {
		return err
	}

	if isJSONOutput() {
		return printJSON(rec)
	}
	fmt.Printf("Monitor for %q submitted as job %s against service job %s\n", rec.Name, rec.JobID, rec.ParentJobID)
	printRecordTable(rec)
	return nil
}

func runMonitorRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	log, err := logging.NewFileLogger(a.cfg.LogDir, "monitor-"+monitorRunService, logging.ParseLevel(a.cfg.LogLevel), a.cfg.LogJSON)
	if err != nil {
		log = a.log
	} else {
		defer log.Close()
	}

	// SIGTERM is how the scheduler asks a job to wind down; treat it as
	// cooperative cancellation so collected samples still get saved.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sampler := monitor.NewSampler(monitorRunService, monitorRunNode, monitorInterval, monitorDuration, monitorRunOutput, log)
	return sampler.Run(ctx)
}

func runMonitorList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	records, err := a.tracker.List(tracker.Filter{Kind: tracker.KindMonitor})
	if err != nil {
		return err
	}

	if isJSONOutput() {
		return printJSON(records)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Job ID", "Service", "Status", "Parent Job", "Submitted")
	for _, rec := range records {
		table.Append(rec.JobID, rec.Name, string(rec.Status), rec.ParentJobID, rec.SubmitTime.Format("2006-01-02 15:04:05"))
	}
	table.Render()
	return nil
}
