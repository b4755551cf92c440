package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/alanyoungcy/kalshiscan/internal/app"
	"github.com/alanyoungcy/kalshiscan/internal/config"
)

// runCmd starts the scan loop.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the market scanner loop",
	Long: `Run starts the scanner: poll the Kalshi markets API on an interval,
persist snapshots, detect volume, price, and spread-compression spikes, and
send alerts through the configured notifiers. Runs until interrupted.

Detection thresholds and the scan interval can be overridden per run:

  kalshiscan run --interval 30s --volume-threshold 2.5`,
	RunE: runScanner,
}

var (
	runInterval        time.Duration
	runVolumeThreshold float64
	runPriceThreshold  float64
	runPriceWindow     int
	runSpreadThreshold float64
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().DurationVar(&runInterval, "interval", time.Minute, "scan interval")
	runCmd.Flags().Float64Var(&runVolumeThreshold, "volume-threshold", 2.0, "volume spike threshold in standard deviations")
	runCmd.Flags().Float64Var(&runPriceThreshold, "price-threshold", 0.10, "price move threshold in dollars")
	runCmd.Flags().IntVar(&runPriceWindow, "price-window", 5, "price move lookback window in minutes")
	runCmd.Flags().Float64Var(&runSpreadThreshold, "spread-threshold", 0.5, "spread compression threshold as a fraction of the average")
}

func runScanner(cmd *cobra.Command, args []string) error {
	// Bootstrap text logger so failures before the config is known stay
	// readable on a terminal.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}
	applyScannerFlags(cmd.Flags(), cfg)

	// Re-create the logger at the configured level and format.
	logger = slog.New(newLogHandler(os.Stdout, parseLevel(cfg.Log.Level), cfg.Log.Format))
	slog.SetDefault(logger)

	// Validation errors carry their own remediation hints, e.g. which
	// environment variable sets a missing credential.
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Debug("active configuration", slog.Any("config", config.RedactedConfig(cfg)))
	logger.Info("kalshi scanner starting",
		slog.String("config", configPath),
		slog.String("storage", cfg.Storage.Driver),
		slog.Duration("interval", cfg.Scanner.Interval.Duration),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("scanner shut down gracefully")
		} else {
			logger.Error("scanner exited with error", slog.String("error", err.Error()))
			return err
		}
	}

	logger.Info("kalshi scanner stopped")
	return nil
}

// applyScannerFlags overrides config values with flags the user set
// explicitly. Flag defaults never stomp values from the config file.
func applyScannerFlags(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("interval") {
		cfg.Scanner.Interval.Duration = runInterval
	}
	if flags.Changed("volume-threshold") {
		cfg.Scanner.VolumeStdThreshold = runVolumeThreshold
	}
	if flags.Changed("price-threshold") {
		cfg.Scanner.PriceSpikeThreshold = runPriceThreshold
	}
	if flags.Changed("price-window") {
		cfg.Scanner.PriceWindowMinutes = runPriceWindow
	}
	if flags.Changed("spread-threshold") {
		cfg.Scanner.SpreadCompressionThreshold = runSpreadThreshold
	}
}
