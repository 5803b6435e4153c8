package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/groupfit/server/internal/app/runtime"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Start the API server with the configured store, token revocation
backend and housekeeping schedule. The server shuts down gracefully on
SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		application, err := runtime.NewApplication(cfg, log)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runErr := application.Run(ctx)
		log.Info("Shutting down...")
		if err := application.Shutdown(context.Background()); err != nil {
			log.WithError(err).Warn("shutdown error")
		}
		return runErr
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides GROUPFIT_HTTP_ADDR)")
	rootCmd.AddCommand(serveCmd)
}
