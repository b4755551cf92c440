package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

var testEventTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func volumeEvent() domain.SpikeEvent {
	return domain.SpikeEvent{
		ID:            "ev-vol",
		Kind:          domain.SpikeVolume,
		Ticker:        "KXTEST",
		Title:         "Will it rain tomorrow?",
		Subtitle:      "Yes",
		Timestamp:     testEventTime,
		CurrentValue:  1200,
		PreviousValue: 1000,
		AverageValue:  50,
		Threshold:     2,
		URL:           "https://kalshi.com/markets/kxtest",
		Volume:        &domain.VolumeDetails{ZScore: 7.5, Stdev: 20},
	}
}

func priceEvent() domain.SpikeEvent {
	return domain.SpikeEvent{
		ID:            "ev-price",
		Kind:          domain.SpikePrice,
		Ticker:        "KXTEST",
		Title:         "Will it rain tomorrow?",
		Timestamp:     testEventTime,
		CurrentValue:  1.50,
		PreviousValue: 1.30,
		AverageValue:  1.30,
		Threshold:     0.10,
		URL:           "https://kalshi.com/markets/kxtest",
		Price:         &domain.PriceDetails{WindowMinutes: 5, Direction: "up"},
	}
}

func spreadEvent() domain.SpikeEvent {
	return domain.SpikeEvent{
		ID:            "ev-spread",
		Kind:          domain.SpikeSpread,
		Ticker:        "KXTEST",
		Title:         "Will it rain tomorrow?",
		Timestamp:     testEventTime,
		CurrentValue:  0.02,
		PreviousValue: 0.05,
		AverageValue:  0.06,
		Threshold:     0.5,
		URL:           "https://kalshi.com/markets/kxtest",
		Spread:        &domain.SpreadDetails{YesBid: 0.48, YesAsk: 0.50, CompressionRatio: 1.0 / 3.0},
	}
}

type recordSender struct {
	name   string
	events []domain.SpikeEvent
	err    error
}

func (r *recordSender) Send(_ context.Context, ev domain.SpikeEvent) error {
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishFansOut(t *testing.T) {
	a := &recordSender{name: "a"}
	b := &recordSender{name: "b"}
	n := NewNotifier([]Sender{a, b}, discardLogger())

	n.Publish(context.Background(), volumeEvent())

	for _, s := range []*recordSender{a, b} {
		if len(s.events) != 1 {
			t.Fatalf("sender %s received %d events, want 1", s.name, len(s.events))
		}
		if s.events[0].ID != "ev-vol" {
			t.Errorf("sender %s received event %q, want ev-vol", s.name, s.events[0].ID)
		}
	}
}

func TestPublishContinuesPastFailure(t *testing.T) {
	broken := &recordSender{name: "broken", err: errors.New("webhook down")}
	ok := &recordSender{name: "ok"}
	n := NewNotifier([]Sender{broken, ok}, discardLogger())

	n.Publish(context.Background(), priceEvent())

	if len(ok.events) != 1 {
		t.Fatalf("healthy sender received %d events, want 1", len(ok.events))
	}
}

func TestPublishNoSenders(t *testing.T) {
	n := NewNotifier(nil, discardLogger())
	n.Publish(context.Background(), spreadEvent())
}

func TestConsoleSenderWritesBlock(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleSender(&buf)

	if err := c.Send(context.Background(), volumeEvent()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"[VOLUME SPIKE]",
		"Market: Will it rain tomorrow?",
		"Ticker: KXTEST",
		"Current Volume: 1,200",
		"Volume Change: +200",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q:\n%s", want, out)
		}
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("console output should end with a newline")
	}
	if c.Name() != "console" {
		t.Errorf("Name() = %q, want console", c.Name())
	}
}
