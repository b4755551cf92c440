package domain

import "time"

// Market is one Kalshi market as observed in a single poll cycle. Prices are
// integer cents; a nil pointer means the exchange did not report the field.
// Instances are built fresh each cycle and never retained past it.
type Market struct {
	Ticker       string
	Title        string
	Subtitle     string
	Status       string
	Volume       int64
	OpenInterest int64
	LastPrice    *int64
	YesBid       *int64
	YesAsk       *int64
	URL          string
}

// Snapshot is an immutable point-in-time capture of a market, keyed by ticker
// and capture time. Snapshots are created once per market per cycle and are
// removed only by pruning. The JSON form is the archive line format.
type Snapshot struct {
	Ticker       string    `json:"ticker"`
	CapturedAt   time.Time `json:"captured_at"`
	Volume       int64     `json:"volume"`
	OpenInterest int64     `json:"open_interest"`
	LastPrice    *int64    `json:"last_price,omitempty"`
	YesBid       *int64    `json:"yes_bid,omitempty"`
	YesAsk       *int64    `json:"yes_ask,omitempty"`
}

// Snapshot projects the market into a stored snapshot at the given capture time.
func (m Market) Snapshot(at time.Time) Snapshot {
	return Snapshot{
		Ticker:       m.Ticker,
		CapturedAt:   at,
		Volume:       m.Volume,
		OpenInterest: m.OpenInterest,
		LastPrice:    m.LastPrice,
		YesBid:       m.YesBid,
		YesAsk:       m.YesAsk,
	}
}

// MarketMetadata is the slowly-changing descriptive record for a ticker,
// upserted every cycle so display commands work without hitting the API.
type MarketMetadata struct {
	Ticker    string
	Title     string
	Subtitle  string
	URL       string
	UpdatedAt time.Time
}

// CycleStats summarizes one completed poll cycle for status reporting.
type CycleStats struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Markets   int           `json:"markets"`
	Snapshots int           `json:"snapshots"`
	Pruned    int64         `json:"pruned"`
	Spikes    int           `json:"spikes"`
	Error     string        `json:"error,omitempty"`
}
