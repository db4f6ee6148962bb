package cmd

import (
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/aifactory/aifctl/internal/tracker"
)

var resultsKindFilter string

// resultsCmd represents the results command
var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Browse result artifacts",
}

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all discovered result artifacts",
	Args:  cobra.NoArgs,
	RunE:  runResultsList,
}

var resultsShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Show the contents of a result artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runBenchmarkResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.AddCommand(resultsListCmd)
	resultsCmd.AddCommand(resultsShowCmd)

	resultsListCmd.Flags().StringVar(&resultsKindFilter, "kind", "", "filter by kind (BENCHMARK, MONITOR)")
}

func runResultsList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	artifacts, err := a.correlator.List()
	if err != nil {
		return err
	}

	if resultsKindFilter != "" {
		filtered := artifacts[:0]
		for _, art := range artifacts {
			if art.Kind == tracker.Kind(resultsKindFilter) {
				filtered = append(filtered, art)
			}
		}
		artifacts = filtered
	}

	if isJSONOutput() {
		return printJSON(artifacts)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Kind", "Name", "Job ID", "Timestamp", "Path")
	for _, art := range artifacts {
		table.Append(string(art.Kind), art.Name, art.JobID, art.Timestamp.Format("2006-01-02 15:04:05"), art.Path)
	}
	table.Render()
	return nil
}
