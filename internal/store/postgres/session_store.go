package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/perpstack/simcore/internal/domain"
)

// SessionStore implements domain.SessionStore on the sim_sessions table.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a SessionStore backed by the given connection pool.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Upsert inserts or replaces the session row.
func (s *SessionStore) Upsert(ctx context.Context, rec domain.SessionRecord) error {
	const query = `
		INSERT INTO sim_sessions (
			session_id, status, model, scenario,
			start_price_e6, last_price_e6, updates_count,
			started_at, stopped_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO UPDATE SET
			status = EXCLUDED.status,
			model = EXCLUDED.model,
			scenario = EXCLUDED.scenario,
			last_price_e6 = EXCLUDED.last_price_e6,
			updates_count = EXCLUDED.updates_count,
			stopped_at = EXCLUDED.stopped_at`

	_, err := s.pool.Exec(ctx, query,
		rec.SessionID, string(rec.Status), string(rec.Model), rec.Scenario,
		rec.StartPriceE6, rec.LastPriceE6, rec.UpdatesCount,
		rec.StartedAt, rec.StoppedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert session %s: %w", rec.SessionID, err)
	}
	return nil
}

// GetByID returns one session row, or domain.ErrNotFound.
func (s *SessionStore) GetByID(ctx context.Context, sessionID string) (domain.SessionRecord, error) {
	const query = `
		SELECT session_id, status, model, scenario,
			start_price_e6, last_price_e6, updates_count,
			started_at, stopped_at
		FROM sim_sessions WHERE session_id = $1`

	var rec domain.SessionRecord
	err := s.pool.QueryRow(ctx, query, sessionID).Scan(
		&rec.SessionID, &rec.Status, &rec.Model, &rec.Scenario,
		&rec.StartPriceE6, &rec.LastPriceE6, &rec.UpdatesCount,
		&rec.StartedAt, &rec.StoppedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SessionRecord{}, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	if err != nil {
		return domain.SessionRecord{}, fmt.Errorf("postgres: get session %s: %w", sessionID, err)
	}
	return rec, nil
}

var _ domain.SessionStore = (*SessionStore)(nil)
