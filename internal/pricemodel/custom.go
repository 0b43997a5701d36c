package pricemodel

import "github.com/perpstack/simcore/internal/domain"

// custom delegates to a caller-supplied step function. The engine treats the
// function opaquely; only the shared bounds clamp is applied on top.
type custom struct {
	params domain.CustomParams
}

func (m *custom) Kind() domain.PriceModelKind { return domain.ModelCustom }

func (m *custom) Next(prevE6 int64, elapsedTicks int64) int64 {
	next := m.params.Step(prevE6, elapsedTicks)
	return clampE6(float64(next), m.params.Bounds)
}
