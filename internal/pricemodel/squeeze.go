package pricemodel

import "github.com/perpstack/simcore/internal/domain"

// squeeze is the multiplicative mirror of crash: the price climbs toward
// base*(1+magnitude) over the squeeze window, then optionally decays back
// toward the pre-squeeze price.
type squeeze struct {
	params        domain.SqueezeParams
	durationTicks int64
	baseE6        int64
}

func (m *squeeze) Kind() domain.PriceModelKind { return domain.ModelSqueeze }

func (m *squeeze) Next(prevE6 int64, elapsedTicks int64) int64 {
	if m.baseE6 == 0 {
		m.baseE6 = prevE6
	}
	prev := float64(prevE6)

	if elapsedTicks < m.durationTicks {
		target := float64(m.baseE6) * (1 + m.params.SqueezeMagnitude)
		remaining := m.durationTicks - elapsedTicks
		next := prev + (target-prev)/float64(remaining)
		return clampE6(next, m.params.Bounds)
	}

	if m.params.RecoverySpeed > 0 {
		next := prev + (float64(m.baseE6)-prev)*m.params.RecoverySpeed
		return clampE6(next, m.params.Bounds)
	}
	return clampE6(prev, m.params.Bounds)
}
