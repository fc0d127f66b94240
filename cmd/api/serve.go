package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"eigentask/backend/internal/app"
	"eigentask/backend/internal/config"
	"eigentask/backend/internal/database"

	"github.com/spf13/cobra"
)

func serveCmd(configPath *string) *cobra.Command {
	var autoMigrate bool
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfigFile(*configPath)
			if err != nil {
				return err
			}

			application, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := application.Close(); err != nil {
					log.Printf("Error closing resources: %v", err)
				}
			}()

			if autoMigrate {
				if err := database.Migrate(application.Pool.DB); err != nil {
					return fmt.Errorf("failed to migrate database: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, application.Router, shutdownTimeout)
		},
	}

	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", true, "Create or update tables before serving")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second, "Grace period for in-flight requests")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, handler http.Handler, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s (%s)", server.Addr, cfg.Server.Environment)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
