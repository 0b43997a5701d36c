package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/perpstack/simcore/internal/domain"
)

// priceChannel is the pub/sub channel external listeners subscribe to.
const priceChannel = "sim:prices"

type wireSample struct {
	SessionID   string `json:"session_id"`
	PriceE6     int64  `json:"price_e6"`
	TimestampMs int64  `json:"ts_ms"`
	Model       string `json:"model"`
}

// Publisher fans price samples out over Redis pub/sub. Publish is fire and
// forget from the caller's point of view; Redis buffers per subscriber.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher creates a Publisher backed by the given Client.
func NewPublisher(c *Client) *Publisher {
	return &Publisher{rdb: c.Underlying()}
}

// Publish sends one sample to the price channel.
func (p *Publisher) Publish(ctx context.Context, sample domain.PriceSample) error {
	payload, err := json.Marshal(wireSample{
		SessionID:   sample.SourceSessionID,
		PriceE6:     sample.PriceE6,
		TimestampMs: sample.TimestampMs,
		Model:       string(sample.Model),
	})
	if err != nil {
		return fmt.Errorf("redis: marshal price sample: %w", err)
	}
	if err := p.rdb.Publish(ctx, priceChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish price sample: %w", err)
	}
	return nil
}

var _ domain.PricePublisher = (*Publisher)(nil)
