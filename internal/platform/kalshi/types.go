package kalshi

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

// KalshiMarket represents a market as returned by the Kalshi REST API.
// Price fields are integer cents. They are pointers because the API omits
// them for markets with no trades or an empty book.
type KalshiMarket struct {
	Ticker       string `json:"ticker"`
	EventTicker  string `json:"event_ticker"`
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle"`
	Status       string `json:"status"` // "open", "closed", "settled"
	YesBid       *int64 `json:"yes_bid"`
	YesAsk       *int64 `json:"yes_ask"`
	LastPrice    *int64 `json:"last_price"`
	Volume       int64  `json:"volume"`
	Volume24H    int64  `json:"volume_24h"`
	OpenInterest int64  `json:"open_interest"`
	CloseTime    string `json:"close_time"`
}

// ToMarket converts the API payload into the domain representation.
func (m KalshiMarket) ToMarket() domain.Market {
	return domain.Market{
		Ticker:       m.Ticker,
		Title:        m.Title,
		Subtitle:     m.Subtitle,
		Status:       m.Status,
		Volume:       m.Volume,
		OpenInterest: m.OpenInterest,
		LastPrice:    m.LastPrice,
		YesBid:       m.YesBid,
		YesAsk:       m.YesAsk,
		URL:          MarketURL(m.Ticker),
	}
}

// MarketURL returns the public web page for a market ticker.
func MarketURL(ticker string) string {
	return "https://kalshi.com/markets/" + strings.ToLower(ticker)
}

// KalshiErrorResponse represents a Kalshi API error response.
type KalshiErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --------------------------------------------------------------------------
// Kalshi WebSocket DTOs
// --------------------------------------------------------------------------

// KalshiWSMessage is the envelope for Kalshi WebSocket messages.
type KalshiWSMessage struct {
	Type string          `json:"type"` // "ticker", "subscribed", "error", etc.
	Msg  json.RawMessage `json:"msg"`
	SID  int64           `json:"sid"`
}

// KalshiWSTicker is the ticker-channel payload received via WebSocket.
type KalshiWSTicker struct {
	Ticker       string `json:"market_ticker"`
	Price        *int64 `json:"price"`
	YesBid       *int64 `json:"yes_bid"`
	YesAsk       *int64 `json:"yes_ask"`
	Volume       int64  `json:"volume"`
	OpenInterest int64  `json:"open_interest"`
	TS           int64  `json:"ts"`
}

// KalshiWSSubscribeCmd is the command sent to subscribe to Kalshi WebSocket channels.
type KalshiWSSubscribeCmd struct {
	ID     int64                   `json:"id"`
	Cmd    string                  `json:"cmd"` // "subscribe" or "unsubscribe"
	Params KalshiWSSubscribeParams `json:"params"`
}

// KalshiWSSubscribeParams defines the subscription parameters.
type KalshiWSSubscribeParams struct {
	Channels []string `json:"channels"` // e.g. ["ticker"]
	Tickers  []string `json:"market_tickers"`
}

// --------------------------------------------------------------------------
// Conversion helpers
// --------------------------------------------------------------------------

// TickerUpdate is a real-time quote change for a single market.
type TickerUpdate struct {
	Ticker       string
	Price        *int64
	YesBid       *int64
	YesAsk       *int64
	Volume       int64
	OpenInterest int64
	Time         time.Time
}

// ToUpdate converts the wire payload to a TickerUpdate. Time stays zero when
// the feed omits ts.
func (t *KalshiWSTicker) ToUpdate() TickerUpdate {
	u := TickerUpdate{
		Ticker:       t.Ticker,
		Price:        t.Price,
		YesBid:       t.YesBid,
		YesAsk:       t.YesAsk,
		Volume:       t.Volume,
		OpenInterest: t.OpenInterest,
	}
	if t.TS > 0 {
		u.Time = time.Unix(t.TS, 0).UTC()
	}
	return u
}
