package pricemodel

import "github.com/perpstack/simcore/internal/domain"

// crash decays the price toward base*(1-magnitude) over the crash window,
// then optionally recovers toward the pre-crash price. The pre-crash base is
// captured on the first tick after activation.
type crash struct {
	params        domain.CrashParams
	durationTicks int64
	baseE6        int64
}

func (m *crash) Kind() domain.PriceModelKind { return domain.ModelCrash }

func (m *crash) Next(prevE6 int64, elapsedTicks int64) int64 {
	if m.baseE6 == 0 {
		m.baseE6 = prevE6
	}
	prev := float64(prevE6)

	if elapsedTicks < m.durationTicks {
		target := float64(m.baseE6) * (1 - m.params.CrashMagnitude)
		remaining := m.durationTicks - elapsedTicks
		// Linear close-out of the remaining gap so the target is hit exactly
		// when the window ends.
		next := prev - (prev-target)/float64(remaining)
		return clampE6(next, m.params.Bounds)
	}

	if m.params.RecoverySpeed > 0 {
		next := prev + (float64(m.baseE6)-prev)*m.params.RecoverySpeed
		return clampE6(next, m.params.Bounds)
	}
	return clampE6(prev, m.params.Bounds)
}
