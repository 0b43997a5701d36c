package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/perpstack/simcore/internal/domain"
)

// TradeLogStore implements domain.TradeLogStore on the sim_trades table.
type TradeLogStore struct {
	pool *pgxpool.Pool
}

// NewTradeLogStore creates a TradeLogStore backed by the given connection pool.
func NewTradeLogStore(pool *pgxpool.Pool) *TradeLogStore {
	return &TradeLogStore{pool: pool}
}

// Insert appends one trade outcome. Replayed intent ids are skipped.
func (s *TradeLogStore) Insert(ctx context.Context, rec domain.TradeRecord) error {
	const query = `
		INSERT INTO sim_trades (
			id, session_id, market_id, agent_name, intent_kind,
			size, price_e6, success, error, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.SessionID, rec.MarketID, rec.AgentName, string(rec.IntentKind),
		rec.Size, rec.PriceE6, rec.Success, rec.Error, rec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", rec.ID, err)
	}
	return nil
}

// ListBySession returns up to limit trades in execution order. limit <= 0
// returns everything.
func (s *TradeLogStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.TradeRecord, error) {
	query := `
		SELECT id, session_id, market_id, agent_name, intent_kind,
			size, price_e6, success, error, executed_at
		FROM sim_trades WHERE session_id = $1
		ORDER BY executed_at`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var recs []domain.TradeRecord
	for rows.Next() {
		var rec domain.TradeRecord
		if err := rows.Scan(
			&rec.ID, &rec.SessionID, &rec.MarketID, &rec.AgentName, &rec.IntentKind,
			&rec.Size, &rec.PriceE6, &rec.Success, &rec.Error, &rec.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trades for %s: %w", sessionID, err)
	}
	return recs, nil
}

var _ domain.TradeLogStore = (*TradeLogStore)(nil)
