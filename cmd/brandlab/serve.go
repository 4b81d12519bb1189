package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	httpadapter "github.com/PabloGalante/brandlab/internal/adapters/http"
	"github.com/PabloGalante/brandlab/internal/observability"
)

const shutdownGrace = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the exploration HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		observability.Configure(os.Stdout, cfg.LogLevel)
		log := observability.WithFields("mode", cfg.Mode, "storage", cfg.StorageBackend, "llm", cfg.LLMBackend)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdownTracing, err := observability.SetupTracing(ctx, "brandlab", cfg.OTELEndpoint)
		if err != nil {
			return err
		}
		defer func() { _ = shutdownTracing(context.Background()) }()

		app, err := newApplication(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := app.Close(); err != nil {
				log.Error("closing storage", "error", err)
			}
		}()

		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           httpadapter.NewServer(app.svc, app.registry),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("brandlab API listening", "addr", srv.Addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown", "error", err)
		}
		// app.Close waits for running reports before the stores go away.
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "", "HTTP listen port")
	serveCmd.Flags().Bool("seed-demo", true, "load the demo items into the store")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("seed-demo", serveCmd.Flags().Lookup("seed-demo"))

	rootCmd.AddCommand(serveCmd)
}
