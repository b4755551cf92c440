package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

// historyCmd shows stored snapshot history for one market.
var historyCmd = &cobra.Command{
	Use:   "history <ticker>",
	Short: "Show stored snapshot history for a market",
	Long: `Print the stored snapshots for a market, newest first, followed by the
volume and price change over the span shown.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum snapshots to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	application, err := newCLIApp()
	if err != nil {
		return err
	}

	ticker := strings.ToUpper(args[0])
	meta, snaps, err := application.MarketHistory(cmd.Context(), ticker, historyLimit)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Printf("no stored history for %s\n", ticker)
		return nil
	}

	if meta.Title != "" {
		fmt.Printf("%s: %s\n", meta.Ticker, meta.Title)
		if meta.Subtitle != "" {
			fmt.Println(meta.Subtitle)
		}
		if meta.URL != "" {
			fmt.Println(meta.URL)
		}
		fmt.Println()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CAPTURED\tVOLUME\tLAST\tBID\tASK\tOI")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.CapturedAt.Local().Format("2006-01-02 15:04:05"),
			domain.GroupInt(s.Volume),
			formatCents(s.LastPrice),
			formatCents(s.YesBid),
			formatCents(s.YesAsk),
			domain.GroupInt(s.OpenInterest),
		)
	}
	w.Flush()

	if len(snaps) < 2 {
		fmt.Printf("\n1 snapshot stored\n")
		return nil
	}

	// Snapshots are newest first; compare the ends of the span.
	newest, oldest := snaps[0], snaps[len(snaps)-1]
	span := newest.CapturedAt.Sub(oldest.CapturedAt).Round(time.Second)
	fmt.Printf("\n%d snapshots over %s\n", len(snaps), span)
	fmt.Printf("volume change: %s\n", signedGroup(newest.Volume-oldest.Volume))
	if newest.LastPrice != nil && oldest.LastPrice != nil {
		delta := float64(*newest.LastPrice-*oldest.LastPrice) / 100
		fmt.Printf("price change:  %+.2f (%s to %s)\n",
			delta, formatCents(oldest.LastPrice), formatCents(newest.LastPrice))
	}
	return nil
}

// signedGroup formats a delta with an explicit sign, e.g. "+1,234".
func signedGroup(n int64) string {
	if n >= 0 {
		return "+" + domain.GroupInt(n)
	}
	return domain.GroupInt(n)
}
