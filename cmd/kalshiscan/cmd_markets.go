package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

// marketsCmd lists the current open-market universe.
var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "List open markets by volume",
	Long: `Fetch the current open-market universe from the Kalshi API and print it
as a table sorted by volume, highest first.`,
	RunE: runMarkets,
}

func init() {
	rootCmd.AddCommand(marketsCmd)
}

func runMarkets(cmd *cobra.Command, args []string) error {
	application, err := newCLIApp()
	if err != nil {
		return err
	}

	markets, err := application.FetchMarkets(cmd.Context())
	if err != nil {
		return err
	}

	sort.Slice(markets, func(i, j int) bool {
		return markets[i].Volume > markets[j].Volume
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TICKER\tVOLUME\tLAST\tBID\tASK")
	for _, m := range markets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			m.Ticker,
			domain.GroupInt(m.Volume),
			formatCents(m.LastPrice),
			formatCents(m.YesBid),
			formatCents(m.YesAsk),
		)
	}
	w.Flush()

	fmt.Printf("\n%d open markets\n", len(markets))
	return nil
}
