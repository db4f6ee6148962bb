package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/aifactory/aifctl/internal/tracker"
)

var serviceOverrides []string

// serviceCmd represents the service command
var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage long-running services",
	Long:  `Commands for deploying and managing services (inference servers, databases) as Slurm jobs.`,
}

var serviceStartCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "Start a service",
	Long:  `Resolve the named service recipe, submit it to Slurm, and track the job.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runServiceStart,
}

var serviceStopCmd = &cobra.Command{
	Use:   "stop <job-id>",
	Short: "Stop a running service",
	Args:  cobra.ExactArgs(1),
	RunE:  runServiceStop,
}

var serviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available service recipes",
	Args:  cobra.NoArgs,
	RunE:  runServiceList,
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the scheduler queue for the current user",
	Args:  cobra.NoArgs,
	RunE:  runServiceStatus,
}

var serviceCheckCmd = &cobra.Command{
	Use:   "check <job-id>",
	Short: "Refresh and show the state of a tracked job",
	Args:  cobra.ExactArgs(1),
	RunE:  runServiceCheck,
}

var serviceLogsCmd = &cobra.Command{
	Use:   "logs <job-id>",
	Short: "Show the scheduler output for a tracked job",
	Args:  cobra.ExactArgs(1),
	RunE:  runServiceLogs,
}

func init() {
	rootCmd.AddCommand(serviceCmd)
	serviceCmd.AddCommand(serviceStartCmd)
	serviceCmd.AddCommand(serviceStopCmd)
	serviceCmd.AddCommand(serviceListCmd)
	serviceCmd.AddCommand(serviceStatusCmd)
	serviceCmd.AddCommand(serviceCheckCmd)
	serviceCmd.AddCommand(serviceLogsCmd)

	serviceStartCmd.Flags().StringArrayVar(&serviceOverrides, "override", nil, "override a recipe default (KEY=VALUE, repeatable)")
}

func runServiceStart(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	overrides, err := parseOverrides(serviceOverrides)
	if err != nil {
		return err
	}

	rec, err := a.services.Start(cmd.Context(), args[0], overrides)
	if err != nil {
		return err
	}

	if isJSONOutput() {
		return printJSON(rec)
	}
	fmt.Printf("Service %q submitted as job %s\n", rec.Name, rec.JobID)
	printRecordTable(rec)
	return nil
}

func runServiceStop(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	rec, err := a.services.Stop(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if isJSONOutput() {
		return printJSON(rec)
	}
	fmt.Printf("Job %s is now %s\n", rec.JobID, rec.Status)
	return nil
}

func runServiceList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	recipes := a.services.Recipes()
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

func runServiceStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	out, err := a.services.Queue(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func runServiceCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

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

func runServiceLogs(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	out, err := a.services.Logs(args[0])
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// printRecordTable renders one record as a field/value table.
func printRecordTable(rec *tracker.JobRecord) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("Job ID", rec.JobID)
	table.Append("Kind", string(rec.Kind))
	table.Append("Name", rec.Name)
	table.Append("Status", string(rec.Status))
	if rec.Node != "" {
		table.Append("Node", rec.Node)
	}
	if rec.Health != "" {
		table.Append("Health", rec.Health)
	}
	if rec.ParentJobID != "" {
		table.Append("Parent Job", rec.ParentJobID)
	}
	table.Append("Submitted", rec.SubmitTime.Format("2006-01-02 15:04:05"))
	table.Render()
}
