package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

// captureDiscord sends ev to a webhook backed by a test server and returns the
// decoded payload.
func captureDiscord(t *testing.T, ev domain.SpikeEvent) discordPayload {
	t.Helper()

	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewDiscordSender(srv.URL).Send(context.Background(), ev); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(got.Embeds) != 1 {
		t.Fatalf("payload carried %d embeds, want 1", len(got.Embeds))
	}
	return got
}

func TestDiscordVolumeEmbed(t *testing.T) {
	got := captureDiscord(t, volumeEvent())

	if want := "[View Market](https://kalshi.com/markets/kxtest)"; got.Content != want {
		t.Errorf("content = %q, want %q", got.Content, want)
	}

	e := got.Embeds[0]
	if want := "\U0001F4C8 Volume Spike"; e.Title != want {
		t.Errorf("title = %q, want %q", e.Title, want)
	}
	if e.Color != 0x00FF00 {
		t.Errorf("color = %#x, want 0x00ff00", e.Color)
	}
	if want := "**Will it rain tomorrow?**\nYes"; e.Description != want {
		t.Errorf("description = %q, want %q", e.Description, want)
	}
	if want := "2025-06-15T12:00:00Z"; e.Timestamp != want {
		t.Errorf("timestamp = %q, want %q", e.Timestamp, want)
	}
	if want := "Ticker: KXTEST"; e.Footer.Text != want {
		t.Errorf("footer = %q, want %q", e.Footer.Text, want)
	}

	if len(e.Fields) != 4 {
		t.Fatalf("embed carried %d fields, want 4", len(e.Fields))
	}
	wantFields := []discordEmbedField{
		{Name: "Current Volume", Value: "1,200", Inline: true},
		{Name: "Previous Volume", Value: "1,000", Inline: true},
		{Name: "Volume Change", Value: "+200", Inline: true},
		{Name: "Avg Rate of Change", Value: "50.0", Inline: true},
	}
	for i, want := range wantFields {
		if e.Fields[i] != want {
			t.Errorf("field %d = %+v, want %+v", i, e.Fields[i], want)
		}
	}
}

func TestDiscordPriceEmbed(t *testing.T) {
	got := captureDiscord(t, priceEvent())

	e := got.Embeds[0]
	if want := "\U0001F4B0 Price Spike"; e.Title != want {
		t.Errorf("title = %q, want %q", e.Title, want)
	}
	if e.Color != 0xFFAA00 {
		t.Errorf("color = %#x, want 0xffaa00", e.Color)
	}
	// No subtitle: description is just the bolded title.
	if want := "**Will it rain tomorrow?**"; e.Description != want {
		t.Errorf("description = %q, want %q", e.Description, want)
	}

	if len(e.Fields) != 3 {
		t.Fatalf("embed carried %d fields, want 3", len(e.Fields))
	}
	if want := "Price 5 min ago"; e.Fields[1].Name != want {
		t.Errorf("field 1 name = %q, want %q", e.Fields[1].Name, want)
	}
	if want := "$1.30"; e.Fields[1].Value != want {
		t.Errorf("field 1 value = %q, want %q", e.Fields[1].Value, want)
	}
	if want := "⬆️ $0.20"; e.Fields[2].Value != want {
		t.Errorf("change field = %q, want %q", e.Fields[2].Value, want)
	}
}

func TestDiscordSpreadEmbed(t *testing.T) {
	got := captureDiscord(t, spreadEvent())

	e := got.Embeds[0]
	if want := "\U0001F3AF Spread Compression"; e.Title != want {
		t.Errorf("title = %q, want %q", e.Title, want)
	}
	if e.Color != 0x0099FF {
		t.Errorf("color = %#x, want 0x0099ff", e.Color)
	}

	if len(e.Fields) != 4 {
		t.Fatalf("embed carried %d fields, want 4", len(e.Fields))
	}
	wantValues := []string{"$0.02", "$0.06", "66.7%", "$0.48 / $0.50"}
	for i, want := range wantValues {
		if e.Fields[i].Value != want {
			t.Errorf("field %d (%s) = %q, want %q", i, e.Fields[i].Name, e.Fields[i].Value, want)
		}
	}
}

func TestDiscordErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), volumeEvent())
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "unexpected status 400") {
		t.Errorf("error = %v, want mention of unexpected status 400", err)
	}
}
