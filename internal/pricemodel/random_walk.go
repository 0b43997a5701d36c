package pricemodel

import (
	"math/rand"

	"github.com/perpstack/simcore/internal/domain"
)

// randomWalk applies a gaussian multiplicative step:
// next = prev * (1 + N(0, volatility)).
type randomWalk struct {
	params domain.RandomWalkParams
	rng    *rand.Rand
}

func (m *randomWalk) Kind() domain.PriceModelKind { return domain.ModelRandomWalk }

func (m *randomWalk) Next(prevE6 int64, _ int64) int64 {
	shock := m.params.Volatility * m.rng.NormFloat64()
	next := float64(prevE6) * (1 + shock)
	return clampE6(next, m.params.Bounds)
}
