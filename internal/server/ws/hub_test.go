package ws

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

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode envelope %s: %v", data, err)
	}
	return env.Type, env.Payload
}

func TestHubBroadcastsSpikeToClient(t *testing.T) {
	hub := NewHub(discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The first frame is the connection status envelope; once it arrives the
	// client is registered with the hub.
	typ, payload := readEnvelope(t, conn)
	if typ != "status" {
		t.Fatalf("first envelope type = %q, want status", typ)
	}
	var status struct {
		Connected bool `json:"connected"`
	}
	if err := json.Unmarshal(payload, &status); err != nil || !status.Connected {
		t.Fatalf("status payload = %s", payload)
	}

	ev := domain.SpikeEvent{
		ID:     "ev-1",
		Kind:   domain.SpikePrice,
		Ticker: "KXTEST",
		Title:  "Will it rain tomorrow?",
	}
	if err := hub.Send(ctx, ev); err != nil {
		t.Fatalf("Send: %v", err)
	}

	typ, payload = readEnvelope(t, conn)
	if typ != "spike" {
		t.Fatalf("envelope type = %q, want spike", typ)
	}
	var got domain.SpikeEvent
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("decode spike payload: %v", err)
	}
	if got.ID != "ev-1" || got.Ticker != "KXTEST" {
		t.Errorf("spike payload = %+v", got)
	}
}

func TestHubReplaysBacklogToNewClient(t *testing.T) {
	hub := NewHub(discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// Broadcast before anyone is connected; the hub should remember.
	for _, id := range []string{"ev-1", "ev-2"} {
		ev := domain.SpikeEvent{ID: id, Kind: domain.SpikeVolume, Ticker: "KXLATE"}
		if err := hub.Send(ctx, ev); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	// The hub loop applies broadcasts asynchronously; redial until the
	// status frame reports the full backlog.
	var conn *websocket.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		var err error
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		_, payload := readEnvelope(t, conn)
		var status struct {
			Backlog int `json:"backlog"`
		}
		if err := json.Unmarshal(payload, &status); err != nil {
			t.Fatalf("decode status payload: %v", err)
		}
		if status.Backlog == 2 {
			break
		}
		conn.Close()
		if time.Now().After(deadline) {
			t.Fatalf("backlog = %d, want 2", status.Backlog)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer conn.Close()

	for i, want := range []string{"ev-1", "ev-2"} {
		typ, payload := readEnvelope(t, conn)
		if typ != "spike" {
			t.Fatalf("replay frame %d type = %q, want spike", i, typ)
		}
		var got domain.SpikeEvent
		if err := json.Unmarshal(payload, &got); err != nil {
			t.Fatalf("decode replayed spike: %v", err)
		}
		if got.ID != want {
			t.Errorf("replay frame %d ID = %q, want %q", i, got.ID, want)
		}
	}
}

func TestHubSendWithoutClients(t *testing.T) {
	hub := NewHub(discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	ev := domain.SpikeEvent{ID: "ev-1", Kind: domain.SpikeVolume, Ticker: "KXA"}
	if err := hub.Send(context.Background(), ev); err != nil {
		t.Errorf("Send with no clients = %v, want nil", err)
	}
}

func TestHubRunStopsOnCancel(t *testing.T) {
	hub := NewHub(discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- hub.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
