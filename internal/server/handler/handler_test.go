package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler(discardLogger())
	rec := httptest.NewRecorder()

	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" || body["service"] != "kalshiscan" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["uptime_seconds"].(float64); !ok {
		t.Errorf("uptime_seconds = %v, want a number", body["uptime_seconds"])
	}
}

type fakeCycles struct {
	stats domain.CycleStats
	ok    bool
}

func (f *fakeCycles) LastCycle() (domain.CycleStats, bool) { return f.stats, f.ok }

func TestGetStatusBeforeFirstCycle(t *testing.T) {
	h := NewStatusHandler(&fakeCycles{}, time.Minute, time.Now().Add(-90*time.Second))
	rec := httptest.NewRecorder()

	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	body := decodeBody(t, rec)
	if body["status"] != "running" {
		t.Errorf("status = %v, want running", body["status"])
	}
	if body["scan_interval"] != "1m0s" {
		t.Errorf("scan_interval = %v, want 1m0s", body["scan_interval"])
	}
	if body["last_cycle"] != nil {
		t.Errorf("last_cycle = %v, want null", body["last_cycle"])
	}
	if uptime, ok := body["uptime_seconds"].(float64); !ok || uptime < 89 {
		t.Errorf("uptime_seconds = %v, want >= 89", body["uptime_seconds"])
	}
}

func TestGetStatusWithLastCycle(t *testing.T) {
	cycles := &fakeCycles{
		stats: domain.CycleStats{Markets: 5, Snapshots: 5, Spikes: 2},
		ok:    true,
	}
	h := NewStatusHandler(cycles, time.Minute, time.Now())
	rec := httptest.NewRecorder()

	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	body := decodeBody(t, rec)
	last, ok := body["last_cycle"].(map[string]any)
	if !ok {
		t.Fatalf("last_cycle = %v, want an object", body["last_cycle"])
	}
	if last["markets"] != float64(5) || last["spikes"] != float64(2) {
		t.Errorf("last_cycle = %v", last)
	}
}

type fakeEvents struct {
	events   []domain.SpikeEvent
	err      error
	askedFor int
}

func (f *fakeEvents) Recent(_ context.Context, count int) ([]domain.SpikeEvent, error) {
	f.askedFor = count
	return f.events, f.err
}

func TestListRecentSpikes(t *testing.T) {
	events := &fakeEvents{events: []domain.SpikeEvent{
		{ID: "ev-2", Kind: domain.SpikePrice, Ticker: "KXB"},
		{ID: "ev-1", Kind: domain.SpikeVolume, Ticker: "KXA"},
	}}
	h := NewSpikesHandler(events, discardLogger())
	rec := httptest.NewRecorder()

	h.ListRecent(rec, httptest.NewRequest(http.MethodGet, "/api/spikes?limit=10", nil))

	if events.askedFor != 10 {
		t.Errorf("asked source for %d events, want 10", events.askedFor)
	}
	body := decodeBody(t, rec)
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}
	spikes, ok := body["spikes"].([]any)
	if !ok || len(spikes) != 2 {
		t.Fatalf("spikes = %v, want 2 entries", body["spikes"])
	}
	first := spikes[0].(map[string]any)
	if first["id"] != "ev-2" || first["ticker"] != "KXB" {
		t.Errorf("first spike = %v, want ev-2/KXB first (newest first)", first)
	}
}

func TestListRecentSpikesEmpty(t *testing.T) {
	h := NewSpikesHandler(&fakeEvents{}, discardLogger())
	rec := httptest.NewRecorder()

	h.ListRecent(rec, httptest.NewRequest(http.MethodGet, "/api/spikes", nil))

	if !strings.Contains(rec.Body.String(), `"spikes":[]`) {
		t.Errorf("body = %s, want an empty array rather than null", rec.Body.String())
	}
}

func TestListRecentSpikesError(t *testing.T) {
	h := NewSpikesHandler(&fakeEvents{err: errors.New("redis: read spike stream: down")}, discardLogger())
	rec := httptest.NewRecorder()

	h.ListRecent(rec, httptest.NewRequest(http.MethodGet, "/api/spikes", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] == "" {
		t.Errorf("body = %v, want an error message", body)
	}
}

func TestParseLimitDefaultsAndCap(t *testing.T) {
	if got := parseLimit(httptest.NewRequest(http.MethodGet, "/", nil), 50, 500); got != 50 {
		t.Errorf("default limit = %d, want 50", got)
	}
	if got := parseLimit(httptest.NewRequest(http.MethodGet, "/?limit=9999", nil), 50, 500); got != 500 {
		t.Errorf("capped limit = %d, want 500", got)
	}
	if got := parseLimit(httptest.NewRequest(http.MethodGet, "/?limit=abc", nil), 50, 500); got != 50 {
		t.Errorf("junk limit = %d, want the default 50", got)
	}
}
