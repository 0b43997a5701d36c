package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/perpstack/simcore/internal/domain"
)

// PriceCache mirrors the latest price per session in a Redis hash at
// "sim:price:{sessionID}" with fields "price_e6", "ts_ms", and "model".
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(sessionID string) string {
	return "sim:price:" + sessionID
}

// SetLatest stores the most recent sample for its session.
func (pc *PriceCache) SetLatest(ctx context.Context, sample domain.PriceSample) error {
	fields := map[string]interface{}{
		"price_e6": strconv.FormatInt(sample.PriceE6, 10),
		"ts_ms":    strconv.FormatInt(sample.TimestampMs, 10),
		"model":    string(sample.Model),
	}
	if err := pc.rdb.HSet(ctx, priceKey(sample.SourceSessionID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set latest price %s: %w", sample.SourceSessionID, err)
	}
	return nil
}

// GetLatest retrieves the most recent sample for a session. It returns
// domain.ErrNotFound when the session has no cached price.
func (pc *PriceCache) GetLatest(ctx context.Context, sessionID string) (domain.PriceSample, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(sessionID)).Result()
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("redis: get latest price %s: %w", sessionID, err)
	}
	if len(vals) == 0 {
		return domain.PriceSample{}, domain.ErrNotFound
	}

	price, err := strconv.ParseInt(vals["price_e6"], 10, 64)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("redis: parse price for %s: %w", sessionID, err)
	}
	ts, err := strconv.ParseInt(vals["ts_ms"], 10, 64)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("redis: parse timestamp for %s: %w", sessionID, err)
	}

	return domain.PriceSample{
		PriceE6:         price,
		TimestampMs:     ts,
		Model:           domain.PriceModelKind(vals["model"]),
		SourceSessionID: sessionID,
	}, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
