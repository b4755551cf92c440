// Command kalshiscan scans Kalshi prediction markets for unusual activity.
// The run subcommand starts the polling scanner; the remaining subcommands
// are one-shot helpers for inspecting the market universe, stored snapshot
// history, and scanner state.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/kalshiscan/internal/app"
	"github.com/alanyoungcy/kalshiscan/internal/config"
)

var configPath string

// rootCmd is the base command for the kalshiscan CLI.
var rootCmd = &cobra.Command{
	Use:   "kalshiscan",
	Short: "Kalshi market activity scanner",
	Long: `kalshiscan polls the Kalshi markets API on an interval, stores bounded
per-market snapshot history, and flags unusual activity: volume spikes,
sharp price moves, and bid/ask spread compression.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newCLIApp builds an App for the one-shot subcommands. Logs go to stderr at
// warn level so tables written to stdout stay clean. Config is loaded but not
// validated; each subcommand only touches the dependencies it needs, and a
// missing credential or address surfaces as an error from that dependency.
func newCLIApp() (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	logger := slog.New(newLogHandler(os.Stderr, slog.LevelWarn, cfg.Log.Format))
	slog.SetDefault(logger)
	return app.New(cfg, logger), nil
}

// parseLevel maps a config log level string to a slog level, defaulting to info.
func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogHandler builds a slog handler in the configured output format.
func newLogHandler(w io.Writer, level slog.Level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// formatCents renders a price in cents as dollars, or N/A when the market has
// no quote on that side.
func formatCents(v *int64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("$%.2f", float64(*v)/100)
}
