package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
	"github.com/alanyoungcy/kalshiscan/internal/platform/kalshi"
)

// watchCmd tails live ticker updates over the Kalshi WebSocket feed.
var watchCmd = &cobra.Command{
	Use:   "watch <ticker> [ticker...]",
	Short: "Stream live ticker updates",
	Long: `Subscribe to the Kalshi WebSocket ticker feed for the given markets and
print each update until interrupted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	application, err := newCLIApp()
	if err != nil {
		return err
	}

	tickers := make([]string, len(args))
	for i, a := range args {
		tickers[i] = strings.ToUpper(a)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("watching %s (ctrl-c to stop)\n", strings.Join(tickers, ", "))
	return application.WatchTickers(ctx, tickers, printTickerUpdate)
}

func printTickerUpdate(u kalshi.TickerUpdate) {
	ts := u.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	fmt.Printf("%s  %-24s last %-7s bid %-7s ask %-7s vol %s\n",
		ts.Local().Format("15:04:05"),
		u.Ticker,
		formatCents(u.Price),
		formatCents(u.YesBid),
		formatCents(u.YesAsk),
		domain.GroupInt(u.Volume),
	)
}
