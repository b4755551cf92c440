package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

// DiscordSender delivers spike events to a Discord webhook as rich embeds.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL. It uses a
// default HTTP client with a 10-second timeout.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbedFooter struct {
	Text string `json:"text"`
}

type discordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Color       int                 `json:"color"`
	Fields      []discordEmbedField `json:"fields"`
	Timestamp   string              `json:"timestamp"`
	Footer      discordEmbedFooter  `json:"footer"`
}

type discordPayload struct {
	Content string         `json:"content"`
	Embeds  []discordEmbed `json:"embeds"`
}

// Send posts the event to the Discord webhook.
func (d *DiscordSender) Send(ctx context.Context, ev domain.SpikeEvent) error {
	payload := discordPayload{
		Content: fmt.Sprintf("[View Market](%s)", ev.URL),
		Embeds:  []discordEmbed{buildEmbed(ev)},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}

// buildEmbed renders the event as one Discord embed: emoji-tagged title,
// bolded market name, kind-specific stat fields, and the ticker footer.
func buildEmbed(ev domain.SpikeEvent) discordEmbed {
	desc := fmt.Sprintf("**%s**", ev.Title)
	if ev.Subtitle != "" {
		desc += "\n" + ev.Subtitle
	}
	return discordEmbed{
		Title:       fmt.Sprintf("%s %s", kindEmoji(ev.Kind), ev.Kind.Title()),
		Description: desc,
		Color:       kindColor(ev.Kind),
		Fields:      embedFields(ev),
		Timestamp:   ev.Timestamp.UTC().Format(time.RFC3339),
		Footer:      discordEmbedFooter{Text: "Ticker: " + ev.Ticker},
	}
}

func kindEmoji(kind domain.SpikeKind) string {
	switch kind {
	case domain.SpikeVolume:
		return "\U0001F4C8" // chart increasing
	case domain.SpikePrice:
		return "\U0001F4B0" // money bag
	case domain.SpikeSpread:
		return "\U0001F3AF" // direct hit
	default:
		return "⚠️" // warning
	}
}

func kindColor(kind domain.SpikeKind) int {
	switch kind {
	case domain.SpikeVolume:
		return 0x00FF00
	case domain.SpikePrice:
		return 0xFFAA00
	case domain.SpikeSpread:
		return 0x0099FF
	default:
		return 0xFFFFFF
	}
}

func embedFields(ev domain.SpikeEvent) []discordEmbedField {
	switch ev.Kind {
	case domain.SpikeVolume:
		return []discordEmbedField{
			{Name: "Current Volume", Value: domain.GroupInt(int64(ev.CurrentValue)), Inline: true},
			{Name: "Previous Volume", Value: domain.GroupInt(int64(ev.PreviousValue)), Inline: true},
			{Name: "Volume Change", Value: "+" + domain.GroupInt(int64(ev.CurrentValue-ev.PreviousValue)), Inline: true},
			{Name: "Avg Rate of Change", Value: fmt.Sprintf("%.1f", ev.AverageValue), Inline: true},
		}
	case domain.SpikePrice:
		window := 0
		arrow := "⬇️" // down arrow
		if ev.Price != nil {
			window = ev.Price.WindowMinutes
			if ev.Price.Direction == "up" {
				arrow = "⬆️" // up arrow
			}
		}
		return []discordEmbedField{
			{Name: "Current Price", Value: fmt.Sprintf("$%.2f", ev.CurrentValue), Inline: true},
			{Name: fmt.Sprintf("Price %d min ago", window), Value: fmt.Sprintf("$%.2f", ev.PreviousValue), Inline: true},
			{Name: "Change", Value: fmt.Sprintf("%s $%.2f", arrow, math.Abs(ev.CurrentValue-ev.PreviousValue)), Inline: true},
		}
	case domain.SpikeSpread:
		compression := "n/a"
		if ev.AverageValue != 0 {
			compression = fmt.Sprintf("%.1f%%", (1-ev.CurrentValue/ev.AverageValue)*100)
		}
		var bid, ask float64
		if ev.Spread != nil {
			bid, ask = ev.Spread.YesBid, ev.Spread.YesAsk
		}
		return []discordEmbedField{
			{Name: "Current Spread", Value: fmt.Sprintf("$%.2f", ev.CurrentValue), Inline: true},
			{Name: "Average Spread", Value: fmt.Sprintf("$%.2f", ev.AverageValue), Inline: true},
			{Name: "Compression", Value: compression, Inline: true},
			{Name: "Bid/Ask", Value: fmt.Sprintf("$%.2f / $%.2f", bid, ask), Inline: true},
		}
	default:
		return nil
	}
}
