// Package feed streams external reference prices over WebSocket. The
// simulation treats the feed as advisory: it seeds start prices and lets
// scenarios correlate with a real market, but a dead feed never stalls the
// engine.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/perpstack/simcore/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second

	handshakeTimeout = 15 * time.Second
)

// ReferencePrice is one upstream quote.
type ReferencePrice struct {
	Symbol      string `json:"symbol"`
	PriceE6     int64  `json:"price_e6"`
	TimestampMs int64  `json:"ts_ms"`
}

// PriceHandler is invoked for every quote the stream delivers.
type PriceHandler func(price ReferencePrice)

type subscribeCommand struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// ReferenceFeed maintains a WebSocket subscription to the reference price
// endpoint, reconnecting with exponential backoff on disconnect.
type ReferenceFeed struct {
	wsURL   string
	symbols []string
	onPrice PriceHandler
	logger  *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewReferenceFeed creates a feed for the given symbols. The handler runs on
// the read loop goroutine and must not block.
func NewReferenceFeed(wsURL string, symbols []string, onPrice PriceHandler, logger *slog.Logger) *ReferenceFeed {
	return &ReferenceFeed{
		wsURL:   wsURL,
		symbols: symbols,
		onPrice: onPrice,
		logger:  logger.With(slog.String("component", "reference_feed")),
		done:    make(chan struct{}),
	}
}

// Run connects and consumes quotes until the context is cancelled or Close is
// called. Disconnects trigger reconnection with capped exponential backoff.
func (f *ReferenceFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		return nil
	}

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("reference feed disconnected, reconnecting",
			slog.Duration("delay", delay),
			slog.Any("error", err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *ReferenceFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	cmd := subscribeCommand{Type: "subscribe", Symbols: f.symbols}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("reference feed subscribed", slog.Int("symbols", len(f.symbols)))

	// Ping loop keeps the connection alive; closing stop tears it down.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}

		var price ReferencePrice
		if err := json.Unmarshal(payload, &price); err != nil {
			f.logger.Warn("skipping malformed quote", slog.Any("error", err))
			continue
		}
		if price.PriceE6 <= 0 {
			continue
		}
		if f.onPrice != nil {
			f.onPrice(price)
		}
	}
}

// Close stops the feed permanently.
func (f *ReferenceFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

// CachedReference holds the last known quote per symbol so downstream readers
// survive upstream outages. Latest never fails once a symbol has been seen;
// it only reports staleness.
type CachedReference struct {
	mu       sync.RWMutex
	latest   map[string]ReferencePrice
	seenAt   map[string]time.Time
	staleAge time.Duration
}

// NewCachedReference creates a cache that flags quotes older than staleAge.
func NewCachedReference(staleAge time.Duration) *CachedReference {
	return &CachedReference{
		latest:   make(map[string]ReferencePrice),
		seenAt:   make(map[string]time.Time),
		staleAge: staleAge,
	}
}

// Accept is the PriceHandler to wire into a ReferenceFeed.
func (c *CachedReference) Accept(price ReferencePrice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest[price.Symbol] = price
	c.seenAt[price.Symbol] = time.Now()
}

// Latest returns the newest quote for a symbol and whether it is stale. It
// fails with ErrUpstreamFeedUnavailable only when the symbol has never been
// quoted.
func (c *CachedReference) Latest(symbol string) (ReferencePrice, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.latest[symbol]
	if !ok {
		return ReferencePrice{}, false, fmt.Errorf("%w: no quote for %s",
			domain.ErrUpstreamFeedUnavailable, symbol)
	}
	stale := c.staleAge > 0 && time.Since(c.seenAt[symbol]) > c.staleAge
	return price, stale, nil
}
