package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

// spikesCmd prints spike events recorded by a running scanner.
var spikesCmd = &cobra.Command{
	Use:   "spikes",
	Short: "Show recent spike events",
	Long: `Read recent spike events from Redis, newest first. With --follow,
subscribe to the live feed instead and print events as they arrive until
interrupted. Requires the scanner to be running with redis configured.`,
	RunE: runSpikes,
}

var (
	spikesLimit  int
	spikesFollow bool
)

func init() {
	rootCmd.AddCommand(spikesCmd)

	spikesCmd.Flags().IntVar(&spikesLimit, "limit", 20, "maximum events to show")
	spikesCmd.Flags().BoolVar(&spikesFollow, "follow", false, "subscribe to the live feed")
}

func runSpikes(cmd *cobra.Command, args []string) error {
	application, err := newCLIApp()
	if err != nil {
		return err
	}

	if spikesFollow {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Println("following spike events (ctrl-c to stop)")
		return application.FollowSpikes(ctx, printSpikeLine)
	}

	events, err := application.RecentSpikes(cmd.Context(), spikesLimit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("no spike events recorded")
		return nil
	}
	for _, ev := range events {
		printSpikeLine(ev)
	}
	return nil
}

func printSpikeLine(ev domain.SpikeEvent) {
	var change string
	if ev.Kind == domain.SpikeVolume {
		change = fmt.Sprintf("%s -> %s",
			domain.GroupInt(int64(ev.PreviousValue)),
			domain.GroupInt(int64(ev.CurrentValue)))
	} else {
		change = fmt.Sprintf("$%.2f -> $%.2f", ev.PreviousValue, ev.CurrentValue)
	}
	fmt.Printf("%s  %-18s  %-24s  %s\n",
		ev.Timestamp.Local().Format("2006-01-02 15:04:05"),
		ev.Kind,
		ev.Ticker,
		change,
	)
}
