package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/perpstack/simcore/internal/domain"
)

// TickStore implements domain.TickStore on the sim_ticks table.
type TickStore struct {
	pool *pgxpool.Pool
}

// NewTickStore creates a TickStore backed by the given connection pool.
func NewTickStore(pool *pgxpool.Pool) *TickStore {
	return &TickStore{pool: pool}
}

// InsertBatch appends price samples using a pgx Batch.
func (s *TickStore) InsertBatch(ctx context.Context, samples []domain.PriceSample) error {
	if len(samples) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO sim_ticks (session_id, price_e6, ts_ms, model)
		VALUES ($1, $2, $3, $4)`
	for _, sample := range samples {
		batch.Queue(query,
			sample.SourceSessionID, sample.PriceE6, sample.TimestampMs, string(sample.Model))
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range samples {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert tick batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListBySession returns up to limit of the most recent samples in ascending
// timestamp order. limit <= 0 returns everything.
func (s *TickStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.PriceSample, error) {
	query := `
		SELECT session_id, price_e6, ts_ms, model
		FROM sim_ticks WHERE session_id = $1
		ORDER BY ts_ms DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ticks for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var samples []domain.PriceSample
	for rows.Next() {
		var sample domain.PriceSample
		if err := rows.Scan(&sample.SourceSessionID, &sample.PriceE6, &sample.TimestampMs, &sample.Model); err != nil {
			return nil, fmt.Errorf("postgres: scan tick: %w", err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list ticks for %s: %w", sessionID, err)
	}

	// The query walks the index newest-first; callers expect chronological.
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, nil
}

var _ domain.TickStore = (*TickStore)(nil)
