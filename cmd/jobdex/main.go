package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/jobdex/internal/config"
	logpkg "github.com/kailas-cloud/jobdex/internal/logger"
	"github.com/kailas-cloud/jobdex/internal/schedule"
	chiTransport "github.com/kailas-cloud/jobdex/internal/transport/chi"
	"github.com/kailas-cloud/jobdex/internal/version"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "jobdex",
		Short:        "Job posting search and ranking engine",
		Version:      version.String(),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to config file (default: config/$ENV.yaml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and the ingestion schedule",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "ingest",
			Short: "Run one ingestion and print its summary",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runIngest(cmd.Context(), configPath, cmd.OutOrStdout())
			},
		},
	)
	return root
}

func loadConfig(env, path string) (config.Config, error) {
	if path != "" {
		return config.LoadFile(path) //nolint:wrapcheck // already annotated by config
	}
	return config.Load(env) //nolint:wrapcheck // already annotated by config
}

func bootstrap(ctx context.Context, configPath string) (*app, error) {
	env := config.GetEnv()

	cfg, err := loadConfig(env, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Starting jobdex",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("mode", string(cfg.ParsedMode())),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	a, err := buildApp(ctx, &cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func runServe(ctx context.Context, configPath string) error {
	a, err := bootstrap(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger
	cfg := a.cfg

	sched, err := schedule.New(cfg.Ingestion.Schedule, a.ingestion, logger)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	server := chiTransport.NewServer(a.search, a.ingestion, a.health, a.limits, logger)
	handler := chiTransport.NewRouter(server, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	runCtx, stopRuns := context.WithCancel(context.Background())
	defer stopRuns()
	sched.Start(runCtx)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-quit:
		logger.Info("Received shutdown signal")
	case err := <-serveErr:
		logger.Error("HTTP server error", zap.Error(err))
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	stopRuns()
	sched.Stop()

	logger.Info("Server stopped gracefully")
	return nil
}

func runIngest(ctx context.Context, configPath string, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	sum, runErr := a.ingestion.Run(logpkg.WithFields(ctx, a.logger, zap.String("trigger", "cli")))

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if runErr != nil {
		return fmt.Errorf("ingestion: %w", runErr)
	}
	return nil
}
