package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/api"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
	cmd.Flags().StringVarP(&c.port, "port", "p", "", "listen port, overrides PORT")
	return cmd
}

func (c *cli) serve(ctx context.Context) error {
	cfg, logger := c.cfg, c.logger

	repo, closeRepo, err := cfg.BuildRepository(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeRepo(); err != nil {
			logger.Error("Failed to close repository", "err", err)
		}
	}()

	uploads, err := cfg.BuildBlobStore(ctx, cfg.Media.UploadBackend)
	if err != nil {
		return fmt.Errorf("failed to build upload store: %w", err)
	}
	service, err := cfg.BuildService(repo, uploads, logger)
	if err != nil {
		return fmt.Errorf("failed to build content service: %w", err)
	}
	authService, err := cfg.BuildAuthService(repo, logger)
	if err != nil {
		return fmt.Errorf("failed to build auth service: %w", err)
	}
	urls, err := cfg.BuildURLStrategy(uploads)
	if err != nil {
		return fmt.Errorf("failed to build media URL strategy: %w", err)
	}

	opts := []api.Option{
		api.WithURLStrategy(urls),
		api.WithPinger(repo),
		api.WithLogger(logger),
		api.WithMaxUploadBytes(cfg.Content.MaxUploadBytes),
		api.WithCORSOrigins(cfg.CORSAllowedOrigins),
	}
	if !cfg.UploadsAreRemote() {
		opts = append(opts, api.WithMediaStore(uploads))
	}
	server, err := api.New(service, authService, opts...)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		dbType, _ := cfg.DatabaseType()
		logger.Info("Starting server", "addr", httpServer.Addr, "environment", cfg.Environment,
			"database", dbType, "uploads", cfg.Media.UploadBackend)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exited")
	return nil
}
