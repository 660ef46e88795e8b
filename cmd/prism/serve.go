package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/echolabsdev/prism-sub001/config"
	"github.com/echolabsdev/prism-sub001/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve an OpenAI-compatible chat completions API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), func(cfg *config.Config) bool { return cfg.Server.Persist })
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck // Nothing left to do on shutdown errors

		addr := serveAddr
		if addr == "" {
			addr = a.cfg.Server.Addr
		}

		srv := server.New(server.Config{
			Models: a.cfg.ModelIDs(a.providers),
			Logger: logger,
		}, a.crew)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		serverErr := make(chan error, 1)
		go func() {
			serverErr <- srv.ServeTCP(addr)
		}()

		select {
		case sig := <-sigChan:
			logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return <-serverErr
		case err := <-serverErr:
			return err
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (default from config, localhost:8080)")
}
