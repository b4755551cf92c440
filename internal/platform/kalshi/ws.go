package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// wsWriteWait bounds every write to the peer.
	wsWriteWait = 10 * time.Second

	// wsPongWait is how long a connection may go without a pong before the
	// read deadline kills it.
	wsPongWait = 30 * time.Second

	// wsPingPeriod spaces keepalive pings. Must be less than wsPongWait.
	wsPingPeriod = (wsPongWait * 9) / 10

	// wsBackoffMin and wsBackoffMax bound the redial delay after a
	// connection failure.
	wsBackoffMin = 2 * time.Second
	wsBackoffMax = 60 * time.Second

	wsHandshakeTimeout = 15 * time.Second
)

// TickerHandler is called for every ticker update received via WebSocket.
type TickerHandler func(TickerUpdate)

// WSClient streams real-time Kalshi market quotes over the trade API
// WebSocket. Register handlers with OnTicker, then call Watch; the client
// owns the connection for the duration of the call, redialing with backoff
// and replaying the subscription whenever the connection drops.
type WSClient struct {
	wsURL  string
	tokens *TokenCache

	backoffMin time.Duration
	backoffMax time.Duration

	handlerMu sync.RWMutex
	handlers  []TickerHandler

	// nextID sequences subscribe commands. Only the Watch goroutine sends.
	nextID int64
}

// NewWSClient creates a Kalshi WebSocket client for the given endpoint,
// e.g. "wss://api.elections.kalshi.com/trade-api/ws/v2". tokens supplies the
// bearer token for the handshake; it may be nil for endpoints that accept
// unauthenticated connections.
func NewWSClient(wsURL string, tokens *TokenCache) *WSClient {
	return &WSClient{
		wsURL:      wsURL,
		tokens:     tokens,
		backoffMin: wsBackoffMin,
		backoffMax: wsBackoffMax,
	}
}

// OnTicker registers a handler that is called for every ticker update.
// Handlers run on the read goroutine; a slow handler stalls the feed.
func (w *WSClient) OnTicker(handler func(TickerUpdate)) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Watch subscribes to ticker updates for the given markets and dispatches
// them to registered handlers until ctx is cancelled. Connection failures
// are retried with exponential backoff; cancellation returns nil.
func (w *WSClient) Watch(ctx context.Context, tickers []string) error {
	if len(tickers) == 0 {
		return fmt.Errorf("kalshi/ws: no tickers to watch")
	}

	backoff := w.backoffMin
	for {
		started := time.Now()
		err := w.runConn(ctx, tickers)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && time.Since(started) > wsPongWait {
			// The connection held for a while; start the backoff over.
			backoff = w.backoffMin
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > w.backoffMax {
			backoff = w.backoffMax
		}
	}
}

// runConn dials, subscribes, and pumps messages until the connection fails
// or ctx is cancelled.
func (w *WSClient) runConn(ctx context.Context, tickers []string) error {
	conn, err := w.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Closing the connection is the only way to unblock ReadMessage when
	// the context ends.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteWait))
		conn.Close()
	})
	defer stop()

	if err := w.subscribe(conn, tickers); err != nil {
		return err
	}

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go pingConn(pingCtx, conn)

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("kalshi/ws: read: %w", err)
		}
		w.dispatch(msg)
	}
}

// dial opens the WebSocket connection, attaching a bearer token when a
// token cache is present. A 401 handshake response invalidates the cached
// token so the next attempt logs in again.
func (w *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if w.tokens != nil {
		token, err := w.tokens.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("kalshi/ws: acquire token: %w", err)
		}
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, w.wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized && w.tokens != nil {
			w.tokens.Invalidate()
		}
		return nil, fmt.Errorf("kalshi/ws: dial %s: %w", w.wsURL, err)
	}
	return conn, nil
}

// subscribe sends one subscribe command for the ticker channel.
func (w *WSClient) subscribe(conn *websocket.Conn, tickers []string) error {
	w.nextID++
	cmd := KalshiWSSubscribeCmd{
		ID:  w.nextID,
		Cmd: "subscribe",
		Params: KalshiWSSubscribeParams{
			Channels: []string{"ticker"},
			Tickers:  tickers,
		},
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("kalshi/ws: marshal subscribe: %w", err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("kalshi/ws: subscribe: %w", err)
	}
	return nil
}

// dispatch decodes one envelope and fans ticker updates out to handlers.
// Messages of other types (subscription acks, errors) are skipped.
func (w *WSClient) dispatch(raw []byte) {
	var envelope KalshiWSMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}

	switch envelope.Type {
	case "ticker", "ticker_v2":
		var tick KalshiWSTicker
		if err := json.Unmarshal(envelope.Msg, &tick); err != nil {
			return
		}
		update := tick.ToUpdate()

		w.handlerMu.RLock()
		handlers := w.handlers
		w.handlerMu.RUnlock()

		for _, h := range handlers {
			h(update)
		}
	}
}

// pingConn keeps one connection alive until its context ends or a write
// fails.
func pingConn(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
