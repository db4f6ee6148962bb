package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/aifactory/aifctl/internal/tracker"
)

var (
	jobsKindFilter   string
	jobsStatusFilter string
)

// jobsCmd represents the jobs command
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect tracked jobs",
	Long:  `Commands for listing, refreshing, and summarizing the jobs this tool has submitted.`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked jobs",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one tracked job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

var jobsReconcileCmd = &cobra.Command{
	Use:   "reconcile [job-id]",
	Short: "Refresh job state from the scheduler",
	Long:  `Query Slurm for the current state of one job, or of every non-terminal job when no id is given, and update the tracked records.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJobsReconcile,
}

var jobsSummaryCmd = &cobra.Command{
	Use:   "summary <job-id>",
	Short: "Show a job's record and its result artifacts",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsSummary,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsReconcileCmd)
	jobsCmd.AddCommand(jobsSummaryCmd)

	jobsListCmd.Flags().StringVar(&jobsKindFilter, "kind", "", "filter by kind (SERVICE, BENCHMARK, MONITOR)")
	jobsListCmd.Flags().StringVar(&jobsStatusFilter, "status", "", "filter by status")
}

func runJobsList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	records, err := a.tracker.List(tracker.Filter{
		Kind:   tracker.Kind(jobsKindFilter),
		Status: tracker.Status(jobsStatusFilter),
	})
	if err != nil {
		return err
	}

	if isJSONOutput() {
		return printJSON(records)
	}
	printRecordsTable(records)
	return nil
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	rec, err := a.tracker.Get(args[0])
	if err != nil {
		return err
	}

	if isJSONOutput() {
		return printJSON(rec)
	}
	printRecordTable(rec)
	return nil
}

func runJobsReconcile(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		rec, err := a.reconciler.Reconcile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if isJSONOutput() {
			return printJSON(rec)
		}
		printRecordTable(rec)
		return nil
	}

	records, err := a.reconciler.ReconcileAll(cmd.Context())
	if err != nil {
		// Partial failures still produced refreshed records; show them.
		a.log.Warn("Some jobs failed to reconcile", map[string]interface{}{"error": err.Error()})
	}
	if isJSONOutput() {
		return printJSON(records)
	}
	printRecordsTable(records)
	return nil
}

func runJobsSummary(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	jobID := args[0]

	rec, err := a.tracker.Get(jobID)
	if err != nil {
		return err
	}
	summary, err := a.correlator.Summarize(jobID)
	if err != nil {
		return err
	}

	if isJSONOutput() {
		return printJSON(map[string]interface{}{
			"job":       rec,
			"artifacts": summary,
		})
	}

	printRecordTable(rec)

	total := 0
	for _, artifacts := range summary {
		total += len(artifacts)
	}
	if total == 0 {
		fmt.Printf("\nNo result artifacts found for job %s\n", jobID)
		return nil
	}

	fmt.Printf("\nResult artifacts (%d):\n", total)
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Kind", "Name", "Timestamp", "Path")
	for _, kind := range []tracker.Kind{tracker.KindBenchmark, tracker.KindMonitor} {
		for _, a := range summary[kind] {
			table.Append(string(a.Kind), a.Name, a.Timestamp.Format("2006-01-02 15:04:05"), a.Path)
		}
	}
	table.Render()
	return nil
}

// printRecordsTable renders records one row each.
func printRecordsTable(records []*tracker.JobRecord) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Job ID", "Kind", "Name", "Status", "Node", "Parent", "Submitted")
	for _, rec := range records {
		node := rec.Node
		if node == "" {
			node = "-"
		}
		parent := rec.ParentJobID
		if parent == "" {
			parent = "-"
		}
		table.Append(rec.JobID, string(rec.Kind), rec.Name, string(rec.Status), node, parent, rec.SubmitTime.Format("2006-01-02 15:04:05"))
	}
	table.Render()
}
