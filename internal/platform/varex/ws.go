package varex

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/optfolio/optfolio/internal/domain"
)

const (
	wsWriteWait         = 10 * time.Second
	wsPongWait          = 30 * time.Second
	wsPingPeriod        = (wsPongWait * 9) / 10
	wsReconnectDelay    = 2 * time.Second
	wsMaxReconnectDelay = 60 * time.Second
)

// QuoteHandler is called for every quote tick received on the stream.
type QuoteHandler func(domain.Quote)

// WSClient streams live bid/ask quotes from the Varex quote channel. The
// mark-price refresher consumes these ticks so positions track the market
// without polling the REST API.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// writeMu serializes frame writes; gorilla/websocket allows only one
	// concurrent writer per connection.
	writeMu sync.Mutex

	// Tracked subscriptions for reconnection.
	subscribedSymbols []string
	cmdID             int64

	quoteHandlers []QuoteHandler
	handlerMu     sync.RWMutex

	done chan struct{}
}

// NewWSClient creates a quote-stream client for the given websocket endpoint,
// e.g. "wss://pricing.varex.internal/v1/stream/quotes".
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// Connect establishes the websocket connection and starts the read and ping
// loops. Previously tracked symbol subscriptions are restored.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("varex/ws: client is closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("varex/ws: connect: %w", err)
	}

	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	if len(w.subscribedSymbols) > 0 {
		if err := w.sendSubscribe(w.subscribedSymbols); err != nil {
			return fmt.Errorf("varex/ws: restore subscriptions: %w", err)
		}
	}
	return nil
}

// Subscribe subscribes to quote ticks for the given option symbols.
func (w *WSClient) Subscribe(ctx context.Context, symbols []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("varex/ws: not connected")
	}

	if err := w.sendSubscribe(symbols); err != nil {
		return fmt.Errorf("varex/ws: subscribe: %w", err)
	}

	existing := make(map[string]struct{}, len(w.subscribedSymbols))
	for _, s := range w.subscribedSymbols {
		existing[s] = struct{}{}
	}
	for _, s := range symbols {
		if _, ok := existing[s]; !ok {
			w.subscribedSymbols = append(w.subscribedSymbols, s)
		}
	}
	return nil
}

// OnQuote registers a handler invoked for every quote tick.
func (w *WSClient) OnQuote(handler QuoteHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.quoteHandlers = append(w.quoteHandlers, handler)
}

// Close shuts down the websocket connection.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.writeMessage(w.conn,
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}
	return nil
}

// writeMessage sends one frame under the write mutex.
func (w *WSClient) writeMessage(conn *websocket.Conn, messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(messageType, data)
}

// sendSubscribe sends a subscribe command. Caller must hold w.mu.
func (w *WSClient) sendSubscribe(symbols []string) error {
	w.cmdID++

	cmd := struct {
		ID      int64    `json:"id"`
		Cmd     string   `json:"cmd"`
		Symbols []string `json:"symbols"`
	}{
		ID:      w.cmdID,
		Cmd:     "subscribe",
		Symbols: symbols,
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	return w.writeMessage(w.conn, websocket.TextMessage, data)
}

// readLoop reads quote ticks and dispatches them to handlers; on disconnect
// it attempts reconnection with backoff.
func (w *WSClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			w.reconnect()
			return
		}

		w.handleMessage(message)
	}
}

func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

			if conn == nil {
				return
			}

			if err := w.writeMessage(conn, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (w *WSClient) handleMessage(raw []byte) {
	var tick quoteTick
	if err := json.Unmarshal(raw, &tick); err != nil {
		return
	}
	if tick.Symbol == "" {
		return
	}

	quote := domain.Quote{
		Symbol: tick.Symbol,
		Bid:    tick.Bid,
		Ask:    tick.Ask,
		At:     time.Now().UTC(),
	}

	w.handlerMu.RLock()
	handlers := w.quoteHandlers
	w.handlerMu.RUnlock()

	for _, h := range handlers {
		h(quote)
	}
}

// reconnect re-establishes the connection with exponential backoff. Closing
// the client aborts the backoff wait immediately.
func (w *WSClient) reconnect() {
	delay := wsReconnectDelay

	for {
		timer := time.NewTimer(delay)
		select {
		case <-w.done:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > wsMaxReconnectDelay {
			delay = wsMaxReconnectDelay
		}
	}
}
