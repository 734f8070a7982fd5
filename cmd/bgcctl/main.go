// Command bgcctl drives the ocean biogeochemistry data pipeline: extracting
// provider files into the standard storage format, comparing saved
// observations against simulation grids, and generating mock fixtures.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/ocean-bgc-etl/internal/config"
	"github.com/couchcryptid/ocean-bgc-etl/internal/observability"
	"github.com/couchcryptid/ocean-bgc-etl/internal/pipeline"
)

var (
	configPath  string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:           "bgcctl",
	Short:         "Ocean biogeochemistry observation pipeline",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Load provider files, aggregate and save observations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, metrics, err := setup()
		if err != nil {
			return err
		}
		defer maybeServeMetrics(logger)()

		st, err := pipeline.New(cfg, logger, metrics).RunExtract(cmd.Context())
		if err != nil {
			return err
		}
		logger.Info("extraction complete", "rows", st.NumRows(), "saving_dir", cfg.SavingDir)
		return nil
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare saved observations against simulation grids",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, metrics, err := setup()
		if err != nil {
			return err
		}
		defer maybeServeMetrics(logger)()

		result, err := pipeline.New(cfg, logger, metrics).RunCompare(cmd.Context())
		if err != nil {
			return err
		}
		logger.Info("comparison complete",
			"rows", result.Observations.NumRows(),
			"saving_dir", cfg.SavingDir,
		)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "settings.toml", "path to the settings file")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address during the run")
	rootCmd.AddCommand(extractCmd, compareCmd, genmockCmd)
}

func setup() (*config.Config, *slog.Logger, *observability.Metrics, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := observability.NewLogger(cfg)
	return cfg, logger, observability.NewMetrics(), nil
}

// maybeServeMetrics starts the metrics server when an address is set and
// returns the matching shutdown func.
func maybeServeMetrics(logger *slog.Logger) func() {
	if metricsAddr == "" {
		return func() {}
	}
	srv := observability.NewServer(metricsAddr, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
