package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpstack/simcore/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// quoteServer upgrades one connection, reads the subscribe command, and
// streams the given quotes before closing.
func quoteServer(t *testing.T, quotes []ReferencePrice) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var cmd subscribeCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		if cmd.Type != "subscribe" || len(cmd.Symbols) == 0 {
			return
		}
		for _, q := range quotes {
			if err := conn.WriteJSON(q); err != nil {
				return
			}
		}
		// Give the client a moment to drain before the connection drops.
		time.Sleep(50 * time.Millisecond)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestReferenceFeedDeliversQuotes(t *testing.T) {
	quotes := []ReferencePrice{
		{Symbol: "BTC", PriceE6: 65_000_000_000, TimestampMs: 1},
		{Symbol: "BTC", PriceE6: 65_100_000_000, TimestampMs: 2},
		{Symbol: "BTC", PriceE6: 0, TimestampMs: 3}, // must be skipped
	}
	srv := quoteServer(t, quotes)
	defer srv.Close()

	var mu sync.Mutex
	var got []ReferencePrice
	feed := NewReferenceFeed(wsURL(srv), []string{"BTC"}, func(p ReferencePrice) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() {
		time.Sleep(300 * time.Millisecond)
		feed.Close()
	}()
	_ = feed.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2, "non-positive quotes are dropped")
	assert.Equal(t, int64(65_000_000_000), got[0].PriceE6)
	assert.Equal(t, int64(65_100_000_000), got[1].PriceE6)
}

func TestReferenceFeedNoSymbolsExitsCleanly(t *testing.T) {
	feed := NewReferenceFeed("ws://unused", nil, nil, testLogger())
	require.NoError(t, feed.Run(context.Background()))
}

func TestCachedReferenceHoldsLastKnown(t *testing.T) {
	cache := NewCachedReference(10 * time.Millisecond)

	_, _, err := cache.Latest("BTC")
	require.ErrorIs(t, err, domain.ErrUpstreamFeedUnavailable)

	cache.Accept(ReferencePrice{Symbol: "BTC", PriceE6: 65_000_000_000, TimestampMs: 1})
	price, stale, err := cache.Latest("BTC")
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, int64(65_000_000_000), price.PriceE6)

	// The value survives going stale; only the flag changes.
	time.Sleep(20 * time.Millisecond)
	price, stale, err = cache.Latest("BTC")
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, int64(65_000_000_000), price.PriceE6)
}

func TestCachedReferenceWiredToFeed(t *testing.T) {
	srv := quoteServer(t, []ReferencePrice{
		{Symbol: "ETH", PriceE6: 3_200_000_000, TimestampMs: 1},
	})
	defer srv.Close()

	cache := NewCachedReference(time.Minute)
	feed := NewReferenceFeed(wsURL(srv), []string{"ETH"}, cache.Accept, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() {
		time.Sleep(300 * time.Millisecond)
		feed.Close()
	}()
	_ = feed.Run(ctx)

	price, stale, err := cache.Latest("ETH")
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, int64(3_200_000_000), price.PriceE6)
}
