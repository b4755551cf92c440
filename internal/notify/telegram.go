package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

// TelegramSender delivers spike events via the Telegram Bot API.
type TelegramSender struct {
	token  string
	chatID string
	client *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID. It uses a default HTTP client with a 10-second timeout.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the event digest to the configured Telegram chat using the
// sendMessage API with HTML formatting.
func (t *TelegramSender) Send(ctx context.Context, ev domain.SpikeEvent) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)

	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       telegramText(ev),
		"parse_mode": "HTML",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

// telegramText renders the event as a Telegram HTML digest. Market-supplied
// strings are escaped; the stat lines mirror the Discord embed fields.
func telegramText(ev domain.SpikeEvent) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<b>%s %s</b>\n", kindEmoji(ev.Kind), html.EscapeString(ev.Kind.Title()))
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(ev.Title))
	if ev.Subtitle != "" {
		fmt.Fprintf(&b, "%s\n", html.EscapeString(ev.Subtitle))
	}
	fmt.Fprintf(&b, "Ticker: %s\n\n", html.EscapeString(ev.Ticker))

	switch ev.Kind {
	case domain.SpikeVolume:
		fmt.Fprintf(&b, "Current Volume: %s\n", domain.GroupInt(int64(ev.CurrentValue)))
		fmt.Fprintf(&b, "Previous Volume: %s\n", domain.GroupInt(int64(ev.PreviousValue)))
		fmt.Fprintf(&b, "Volume Change: +%s\n", domain.GroupInt(int64(ev.CurrentValue-ev.PreviousValue)))
		fmt.Fprintf(&b, "Avg Rate of Change: %.1f\n", ev.AverageValue)
	case domain.SpikePrice:
		window := 0
		if ev.Price != nil {
			window = ev.Price.WindowMinutes
		}
		fmt.Fprintf(&b, "Current Price: $%.2f\n", ev.CurrentValue)
		fmt.Fprintf(&b, "Price %d min ago: $%.2f\n", window, ev.PreviousValue)
		fmt.Fprintf(&b, "Change: $%.2f\n", math.Abs(ev.CurrentValue-ev.PreviousValue))
	case domain.SpikeSpread:
		fmt.Fprintf(&b, "Current Spread: $%.2f\n", ev.CurrentValue)
		fmt.Fprintf(&b, "Average Spread: $%.2f\n", ev.AverageValue)
		if ev.AverageValue != 0 {
			fmt.Fprintf(&b, "Compression: %.1f%%\n", (1-ev.CurrentValue/ev.AverageValue)*100)
		}
		if ev.Spread != nil {
			fmt.Fprintf(&b, "Bid/Ask: $%.2f / $%.2f\n", ev.Spread.YesBid, ev.Spread.YesAsk)
		}
	}

	fmt.Fprintf(&b, "\n<a href=%q>View Market</a>", ev.URL)
	return b.String()
}
