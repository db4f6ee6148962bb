package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "aifctl",
	Short: "Manage services, benchmarks, and monitoring on a Slurm cluster",
	Long: `aifctl deploys long-running services (inference servers, databases) as
Slurm jobs, launches benchmark and monitoring jobs against them, tracks every
submission across invocations, and correlates result files back to the jobs
that produced them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs the CLI
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.aifctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
}

// isJSONOutput returns true if JSON output is requested
func isJSONOutput() bool {
	return outputFormat == "json"
}
