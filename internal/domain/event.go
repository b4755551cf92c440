package domain

import (
	"fmt"
	"strings"
	"time"
)

// SpikeKind tags the detection check that produced an event.
type SpikeKind string

const (
	SpikeVolume SpikeKind = "volume_spike"
	SpikePrice  SpikeKind = "price_spike"
	SpikeSpread SpikeKind = "spread_compression"
)

// Title returns the kind as display words, e.g. "Volume Spike".
func (k SpikeKind) Title() string {
	words := strings.Split(string(k), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// VolumeDetails carries the statistics behind a volume spike.
type VolumeDetails struct {
	ZScore float64 `json:"z_score"`
	Stdev  float64 `json:"stdev"`
}

// PriceDetails carries the window and direction of a price spike.
type PriceDetails struct {
	WindowMinutes int    `json:"window_minutes"`
	Direction     string `json:"direction"` // "up" or "down"
}

// SpreadDetails carries the quote pair behind a spread compression, in dollars.
type SpreadDetails struct {
	YesBid           float64 `json:"yes_bid"`
	YesAsk           float64 `json:"yes_ask"`
	CompressionRatio float64 `json:"compression_ratio"`
}

// SpikeEvent is one detected activity spike. Exactly one of the detail
// pointers is set, matching Kind. Events are created by the detector and
// consumed once by the alert fan-out; they are never mutated.
//
// The numeric slots are kind-dependent: for volume events they hold contract
// counts and the mean delta, for price and spread events dollar amounts.
type SpikeEvent struct {
	ID            string    `json:"id"`
	Kind          SpikeKind `json:"kind"`
	Ticker        string    `json:"ticker"`
	Title         string    `json:"title"`
	Subtitle      string    `json:"subtitle,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	CurrentValue  float64   `json:"current_value"`
	PreviousValue float64   `json:"previous_value"`
	AverageValue  float64   `json:"average_value"`
	Threshold     float64   `json:"threshold"`
	URL           string    `json:"url"`

	Volume *VolumeDetails `json:"volume,omitempty"`
	Price  *PriceDetails  `json:"price,omitempty"`
	Spread *SpreadDetails `json:"spread,omitempty"`
}

// FormatMessage renders the event as the multi-line console block.
func (e SpikeEvent) FormatMessage() string {
	rule := strings.Repeat("=", 60)
	var b strings.Builder

	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "[%s] %s\n",
		strings.ToUpper(strings.ReplaceAll(string(e.Kind), "_", " ")),
		e.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "Market: %s\n", e.Title)
	if e.Subtitle != "" {
		fmt.Fprintf(&b, "        %s\n", e.Subtitle)
	}
	fmt.Fprintf(&b, "Ticker: %s\n", e.Ticker)
	fmt.Fprintf(&b, "Link: %s\n", e.URL)
	fmt.Fprintln(&b)

	switch e.Kind {
	case SpikeVolume:
		fmt.Fprintf(&b, "Current Volume: %s\n", GroupInt(int64(e.CurrentValue)))
		fmt.Fprintf(&b, "Previous Volume: %s\n", GroupInt(int64(e.PreviousValue)))
		fmt.Fprintf(&b, "Volume Change: +%s\n", GroupInt(int64(e.CurrentValue-e.PreviousValue)))
		fmt.Fprintf(&b, "Avg Rate of Change: %.1f\n", e.AverageValue)
		fmt.Fprintf(&b, "Threshold (std devs): %.1f\n", e.Threshold)
	case SpikePrice:
		window := 0
		if e.Price != nil {
			window = e.Price.WindowMinutes
		}
		fmt.Fprintf(&b, "Current Price: $%.2f\n", e.CurrentValue)
		fmt.Fprintf(&b, "Price %d min ago: $%.2f\n", window, e.PreviousValue)
		fmt.Fprintf(&b, "Price Change: $%+.2f\n", e.CurrentValue-e.PreviousValue)
		fmt.Fprintf(&b, "Threshold: $%.2f\n", e.Threshold)
	case SpikeSpread:
		fmt.Fprintf(&b, "Current Spread: $%.2f\n", e.CurrentValue)
		fmt.Fprintf(&b, "Average Spread: $%.2f\n", e.AverageValue)
		if e.AverageValue != 0 {
			fmt.Fprintf(&b, "Compression: %.1f%%\n", (1-e.CurrentValue/e.AverageValue)*100)
		}
		if e.Spread != nil {
			fmt.Fprintf(&b, "Yes Bid: $%.2f\n", e.Spread.YesBid)
			fmt.Fprintf(&b, "Yes Ask: $%.2f\n", e.Spread.YesAsk)
		}
	}

	b.WriteString(rule)
	return b.String()
}

// GroupInt formats n with thousands separators, e.g. 1234567 -> "1,234,567".
func GroupInt(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}
