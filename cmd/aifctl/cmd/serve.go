package cmd

import (
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aifactory/aifctl/internal/api"
)

var serveListenAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a read-only status API with Prometheus metrics",
	Long: `Expose the job registry and result artifacts over HTTP for dashboards and
scrapers. The API is read-only; all mutations go through the CLI.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveListenAddr, "listen", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	addr := serveListenAddr
	if addr == "" {
		addr = a.cfg.ListenAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(a.tracker, a.correlator, addr, a.log)
	if err := server.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
