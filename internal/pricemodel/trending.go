package pricemodel

import (
	"math/rand"

	"github.com/perpstack/simcore/internal/domain"
)

// trending applies a fixed signed drift per tick with an optional gaussian
// noise overlay.
type trending struct {
	params domain.TrendingParams
	rng    *rand.Rand
}

func (m *trending) Kind() domain.PriceModelKind { return domain.ModelTrending }

func (m *trending) Next(prevE6 int64, _ int64) int64 {
	next := float64(prevE6) + float64(m.params.DriftE6PerTick)
	if m.params.NoiseVolatility > 0 {
		next += float64(prevE6) * m.params.NoiseVolatility * m.rng.NormFloat64()
	}
	return clampE6(next, m.params.Bounds)
}
