// Package memory provides in-process implementations of the record sinks.
// They back tests and the default CLI configuration where no Postgres or
// Redis endpoint is wired.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/perpstack/simcore/internal/domain"
)

// SessionStore keeps session rows in a map.
type SessionStore struct {
	mu   sync.RWMutex
	rows map[string]domain.SessionRecord
}

func NewSessionStore() *SessionStore {
	return &SessionStore{rows: make(map[string]domain.SessionRecord)}
}

func (s *SessionStore) Upsert(_ context.Context, rec domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[rec.SessionID] = rec
	return nil
}

func (s *SessionStore) GetByID(_ context.Context, sessionID string) (domain.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rows[sessionID]
	if !ok {
		return domain.SessionRecord{}, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	return rec, nil
}

// TickStore appends price samples grouped by session.
type TickStore struct {
	mu   sync.RWMutex
	rows map[string][]domain.PriceSample
}

func NewTickStore() *TickStore {
	return &TickStore{rows: make(map[string][]domain.PriceSample)}
}

func (s *TickStore) InsertBatch(_ context.Context, samples []domain.PriceSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sample := range samples {
		s.rows[sample.SourceSessionID] = append(s.rows[sample.SourceSessionID], sample)
	}
	return nil
}

func (s *TickStore) ListBySession(_ context.Context, sessionID string, limit int) ([]domain.PriceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.rows[sessionID]
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	out := make([]domain.PriceSample, len(rows))
	copy(out, rows)
	return out, nil
}

// TradeLogStore appends trade outcomes grouped by session.
type TradeLogStore struct {
	mu   sync.RWMutex
	rows map[string][]domain.TradeRecord
}

func NewTradeLogStore() *TradeLogStore {
	return &TradeLogStore{rows: make(map[string][]domain.TradeRecord)}
}

func (s *TradeLogStore) Insert(_ context.Context, rec domain.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[rec.SessionID] = append(s.rows[rec.SessionID], rec)
	return nil
}

func (s *TradeLogStore) ListBySession(_ context.Context, sessionID string, limit int) ([]domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.rows[sessionID]
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	out := make([]domain.TradeRecord, len(rows))
	copy(out, rows)
	return out, nil
}

// PriceCache keeps the latest sample per session.
type PriceCache struct {
	mu     sync.RWMutex
	latest map[string]domain.PriceSample
}

func NewPriceCache() *PriceCache {
	return &PriceCache{latest: make(map[string]domain.PriceSample)}
}

func (c *PriceCache) SetLatest(_ context.Context, sample domain.PriceSample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest[sample.SourceSessionID] = sample
	return nil
}

func (c *PriceCache) GetLatest(_ context.Context, sessionID string) (domain.PriceSample, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sample, ok := c.latest[sessionID]
	if !ok {
		return domain.PriceSample{}, fmt.Errorf("%w: no price for session %s", domain.ErrNotFound, sessionID)
	}
	return sample, nil
}

// SessionLocker is a single-process lock with the cross-process interface
// shape, used by tests and lockerless deployments.
type SessionLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewSessionLocker() *SessionLocker {
	return &SessionLocker{held: make(map[string]bool)}
}

func (l *SessionLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, fmt.Errorf("%w: %s", domain.ErrLockHeld, key)
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

var (
	_ domain.SessionStore  = (*SessionStore)(nil)
	_ domain.TickStore     = (*TickStore)(nil)
	_ domain.TradeLogStore = (*TradeLogStore)(nil)
	_ domain.PriceCache    = (*PriceCache)(nil)
	_ domain.SessionLocker = (*SessionLocker)(nil)
)
