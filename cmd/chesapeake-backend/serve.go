package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chesapeake-backend/internal/config"
	"chesapeake-backend/internal/logging"
	"chesapeake-backend/internal/server"
	"chesapeake-backend/internal/tracing"
	"chesapeake-backend/internal/usecase"
)

func serveCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.Env, "env", cfg.Env, "environment name (dev, prod)")
	cmd.Flags().IntVar(&cfg.Port, "port", cfg.Port, "HTTP listen port")
	cmd.Flags().BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "JSON logs")
	cmd.Flags().StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "Postgres DSN; empty uses the in-memory store")
	return cmd
}

func runServe(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log, err := logging.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	shutdownTracing, err := tracing.Init("chesapeake-backend", cfg.TracingEndpoint)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	ctx, cancel := startupContext()
	a, err := buildApp(ctx, cfg, log)
	cancel()
	if err != nil {
		return err
	}
	defer a.Close(log)

	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(cfg, server.Deps{
		Reconciler: a.recon,
		Provider:   a.provider,
		Backfill:   a.backfill,
		Auth: &usecase.AdminAuthService{
			Password:  cfg.AdminPassword,
			JWTSecret: cfg.JWTSecret,
		},
		Cache: a.cache,
		DB:    a.db,
		Log:   log,
	})

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Info("chesapeake-backend started", describe(cfg)...)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-quit:
	}

	log.Info("Shutting down server...")
	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	log.Info("Server exited")
	return nil
}
