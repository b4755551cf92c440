package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

// statusCmd shows the last scan cycle recorded in Redis.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last scan cycle",
	Long: `Read the stats of the most recent scan cycle from Redis. Requires the
scanner to be running with redis configured.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	application, err := newCLIApp()
	if err != nil {
		return err
	}

	stats, err := application.ReadState(cmd.Context())
	if errors.Is(err, domain.ErrNotFound) {
		fmt.Println("no recent cycle recorded (is the scanner running?)")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("last cycle: %s (%s ago)\n",
		stats.StartedAt.Local().Format(time.RFC3339),
		time.Since(stats.StartedAt).Round(time.Second),
	)
	fmt.Printf("duration:   %s\n", stats.Duration.Round(time.Millisecond))
	fmt.Printf("markets:    %d\n", stats.Markets)
	fmt.Printf("snapshots:  %d\n", stats.Snapshots)
	fmt.Printf("pruned:     %d\n", stats.Pruned)
	fmt.Printf("spikes:     %d\n", stats.Spikes)
	if stats.Error != "" {
		fmt.Printf("error:      %s\n", stats.Error)
	}
	return nil
}
