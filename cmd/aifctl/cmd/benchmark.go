package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	benchmarkJobID     string
	benchmarkOverrides []string
)

// benchmarkCmd represents the benchmark command
var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Run benchmarks against deployed services",
}

var benchmarkRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run a benchmark against a service job",
	Long: `Resolve the named benchmark recipe and submit it as a Slurm job targeting
the service identified by --job-id. The target's node is injected into the
benchmark's environment.`,
	Args: cobra.ExactArgs(1),
	RunE: runBenchmarkRun,
}

var benchmarkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available benchmark recipes",
	Args:  cobra.NoArgs,
	RunE:  runBenchmarkList,
}

var benchmarkResultsCmd = &cobra.Command{
	Use:   "results <file>",
	Short: "Show the contents of a benchmark result file",
	Args:  cobra.ExactArgs(1),
	RunE:  runBenchmarkResults,
}

func init() {
	rootCmd.AddCommand(benchmarkCmd)
	benchmarkCmd.AddCommand(benchmarkRunCmd)
	benchmarkCmd.AddCommand(benchmarkListCmd)
	benchmarkCmd.AddCommand(benchmarkResultsCmd)

	benchmarkRunCmd.Flags().StringVar(&benchmarkJobID, "job-id", "", "service job ID to benchmark (required)")
	benchmarkRunCmd.Flags().StringArrayVar(&benchmarkOverrides, "override", nil, "override a recipe default (KEY=VALUE, repeatable)")
	benchmarkRunCmd.MarkFlagRequired("job-id")
}

func runBenchmarkRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	overrides, err := parseOverrides(benchmarkOverrides)
	if err != nil {
		return err
	}

	rec, err := a.benchmarks.Run(cmd.Context(), args[0], benchmarkJobID, overrides)
	if err != nil {
		return err
	}

	if isJSONOutput() {
		return printJSON(rec)
	}
	fmt.Printf("Benchmark %q submitted as job %s against service job %s\n", rec.Name, rec.JobID, rec.ParentJobID)
	printRecordTable(rec)
	return nil
}

func runBenchmarkList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	recipes := a.benchmarks.Recipes()
	if isJSONOutput() {
		return printJSON(recipes)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Name", "Script", "Description")
	for _, r := range recipes {
		table.Append(r.Name, r.Script, r.Description)
	}
	table.Render()
	return nil
}

func runBenchmarkResults(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	// Artifact contents are opaque payload; pretty-print if valid JSON,
	// otherwise show them raw.
	var payload interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		fmt.Print(string(data))
		return nil
	}
	return printJSON(payload)
}
