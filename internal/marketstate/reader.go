// Package marketstate exposes read-only account and pool state to strategies
// that decide on more than price alone. The real reader lives with the
// settlement-layer integration; this package defines the interface point and
// a deterministic simulated proxy for when that integration is absent.
package marketstate

import (
	"hash/fnv"
	"math/rand"
	"sync"
)

// Account is a point-in-time view of one margin account.
type Account struct {
	Index        int
	Health       float64 // < 1.0 means undercollateralized
	PositionSize int64   // signed
}

// Reader provides snapshot accessors. Implementations must be non-blocking:
// strategies call these on the tick path.
type Reader interface {
	// Accounts returns the current account health snapshot.
	Accounts() []Account
	// Utilization returns pool utilization in [0, 1].
	Utilization() float64
}

// SeedFromName derives a stable PRNG seed from an agent or session name.
func SeedFromName(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

// SimReader is a seeded pseudo-random proxy used when no settlement-layer
// reader is configured. Identical seeds reproduce identical sequences.
type SimReader struct {
	mu       sync.Mutex
	rng      *rand.Rand
	accounts []Account
	util     float64
	// unhealthyRate is the probability per Advance that an account dips
	// below health 1.0.
	unhealthyRate float64
}

// SimOption tweaks the simulated proxy.
type SimOption func(*SimReader)

// WithAccounts sets how many synthetic accounts the proxy tracks.
func WithAccounts(n int) SimOption {
	return func(s *SimReader) {
		s.accounts = make([]Account, n)
	}
}

// WithUnhealthyRate sets the per-step probability of an account turning
// liquidatable.
func WithUnhealthyRate(rate float64) SimOption {
	return func(s *SimReader) {
		s.unhealthyRate = rate
	}
}

// NewSimReader creates a deterministic proxy with the given seed.
func NewSimReader(seed int64, opts ...SimOption) *SimReader {
	s := &SimReader{
		rng:           rand.New(rand.NewSource(seed)),
		accounts:      make([]Account, 8),
		unhealthyRate: 0.05,
	}
	for _, opt := range opts {
		opt(s)
	}
	for i := range s.accounts {
		s.accounts[i] = Account{Index: i, Health: 1.5}
	}
	s.util = 0.5 + 0.5*s.rng.Float64()
	return s
}

// Advance mutates the synthetic state one step. Callers typically invoke it
// once per price tick.
func (s *SimReader) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Utilization drifts inside [0.5, 1.0) so the proxy never reports the
	// low-utilization regime unless explicitly configured.
	s.util = 0.5 + 0.5*s.rng.Float64()

	for i := range s.accounts {
		a := &s.accounts[i]
		if s.rng.Float64() < s.unhealthyRate {
			a.Health = 0.5 + 0.4*s.rng.Float64()
			a.PositionSize = int64(s.rng.Intn(2000) - 1000)
		} else {
			a.Health = 1.1 + s.rng.Float64()
			a.PositionSize = int64(s.rng.Intn(2000) - 1000)
		}
	}
}

// Accounts implements Reader.
func (s *SimReader) Accounts() []Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Account, len(s.accounts))
	copy(out, s.accounts)
	return out
}

// Utilization implements Reader.
func (s *SimReader) Utilization() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.util
}

// StaticReader returns fixed values; used by tests to pin strategy inputs.
type StaticReader struct {
	Accts []Account
	Util  float64
}

// Accounts implements Reader.
func (r *StaticReader) Accounts() []Account { return r.Accts }

// Utilization implements Reader.
func (r *StaticReader) Utilization() float64 { return r.Util }

var (
	_ Reader = (*SimReader)(nil)
	_ Reader = (*StaticReader)(nil)
)
