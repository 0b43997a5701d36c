package pricemodel

import (
	"math/rand"

	"github.com/perpstack/simcore/internal/domain"
)

// meanRevert pulls the price toward a configured mean at revertSpeed per tick
// with a gaussian noise overlay proportional to the current price.
type meanRevert struct {
	params domain.MeanRevertParams
	rng    *rand.Rand
}

func (m *meanRevert) Kind() domain.PriceModelKind { return domain.ModelMeanRevert }

func (m *meanRevert) Next(prevE6 int64, _ int64) int64 {
	prev := float64(prevE6)
	pull := m.params.RevertSpeed * (float64(m.params.MeanPriceE6) - prev)
	noise := prev * m.params.NoiseVolatility * m.rng.NormFloat64()
	return clampE6(prev+pull+noise, m.params.Bounds)
}
