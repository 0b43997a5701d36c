package domain

import (
	"context"
	"time"
)

// SessionStore is the passive record sink for session rows.
type SessionStore interface {
	Upsert(ctx context.Context, rec SessionRecord) error
	GetByID(ctx context.Context, sessionID string) (SessionRecord, error)
}

// TickStore persists price samples. Implementations batch internally.
type TickStore interface {
	InsertBatch(ctx context.Context, samples []PriceSample) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]PriceSample, error)
}

// TradeLogStore persists trade execution outcomes.
type TradeLogStore interface {
	Insert(ctx context.Context, rec TradeRecord) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]TradeRecord, error)
}

// PriceCache mirrors the latest price per session for cheap cross-process
// reads (status endpoints, dashboards).
type PriceCache interface {
	SetLatest(ctx context.Context, sample PriceSample) error
	GetLatest(ctx context.Context, sessionID string) (PriceSample, error)
}

// PricePublisher fans price samples out to external listeners (transport
// layer). Publish must never block the caller for long; implementations drop
// rather than stall.
type PricePublisher interface {
	Publish(ctx context.Context, sample PriceSample) error
}

// SessionLocker provides best-effort cross-process exclusivity for the
// session slot. Acquire returns ErrLockHeld when another process holds the
// slot, and an unlock function otherwise.
type SessionLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
