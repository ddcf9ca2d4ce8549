package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mosaicdb/mosaicdb/internal/config"
	"github.com/mosaicdb/mosaicdb/internal/engine"
	"github.com/mosaicdb/mosaicdb/internal/httpapi"
	"github.com/mosaicdb/mosaicdb/internal/logging"
	"github.com/mosaicdb/mosaicdb/internal/output"
)

func newServeCmd() *cobra.Command {
	var configPath string
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP coordinator",
		Long: `Start the coordinator's HTTP surface: vector and hybrid search,
SQL query and analytics dispatch, shard listing, and metrics.

Serves until interrupted (SIGINT/SIGTERM), then shuts down gracefully.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd, configPath, listenAddr)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file (defaults are used if omitted)")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "Override the configured listen address")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, configPath, listenAddr string) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}

	logCfg := logging.DefaultConfig()
	if cfg.Server.LogLevel != "" {
		logCfg.Level = cfg.Server.LogLevel
	}
	if cfg.Server.LogFile != "" {
		logCfg.FilePath = cfg.Server.LogFile
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logger)

	eng, err := engine.New(cfg, engine.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			slog.Error("engine close failed", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: httpapi.NewServer(eng),
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		out.Status("", fmt.Sprintf("Listening on %s", cfg.Server.ListenAddr))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		out.Status("", "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	}
}
