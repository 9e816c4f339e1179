package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/reader/api"
	"github.com/use-agent/reader/cache"
	"github.com/use-agent/reader/scraper"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("host") {
				a.cfg.Server.Host, _ = flags.GetString("host")
			}
			if flags.Changed("port") {
				a.cfg.Server.Port, _ = flags.GetInt("port")
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), a)
		},
	}
	cmd.Flags().String("host", "", "listen address")
	cmd.Flags().Int("port", 0, "listen port")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	slog.Info("reader starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"engines", cfg.Engine.Order,
		"poolSize", cfg.Pool.Size,
	)

	sc, err := scraper.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialise scraper: %w", err)
	}
	defer sc.Close()

	cc := cache.New(cfg.Cache.MaxEntries)
	defer cc.Stop()

	router := api.NewRouter(sc, cfg, cc, time.Now())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	// Give in-flight requests 5 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// sc.Close() runs via defer: drains the session pool, then the browser.
	slog.Info("reader stopped")
	return nil
}
