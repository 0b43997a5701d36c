// Package executor bridges agent intents to a settlement submitter,
// retrying transient failures with a bounded backoff and recording every
// outcome to the trade log when one is wired.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/perpstack/simcore/internal/domain"
)

// Submitter performs a single submission attempt.
type Submitter interface {
	Submit(ctx context.Context, intent domain.TradeIntent) error
}

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 100 * time.Millisecond
)

// Config wires an Executor.
type Config struct {
	Submitter Submitter
	Logger    *slog.Logger
	// Trades, when set, receives one record per executed intent.
	Trades domain.TradeLogStore
	// MaxAttempts bounds submission attempts per intent.
	MaxAttempts int
	// RetryBackoff is the initial wait between attempts; it doubles each retry.
	RetryBackoff time.Duration
}

// Executor owns retry policy and trade logging. Safe for concurrent use.
type Executor struct {
	submitter Submitter
	logger    *slog.Logger
	trades    domain.TradeLogStore
	attempts  int
	backoff   time.Duration

	sessionID atomic.Value // string
}

// New builds an executor around the given submitter.
func New(cfg Config) (*Executor, error) {
	if cfg.Submitter == nil {
		return nil, fmt.Errorf("%w: executor requires a submitter", domain.ErrInvalidConfig)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	e := &Executor{
		submitter: cfg.Submitter,
		logger:    cfg.Logger.With(slog.String("component", "executor")),
		trades:    cfg.Trades,
		attempts:  cfg.MaxAttempts,
		backoff:   cfg.RetryBackoff,
	}
	e.sessionID.Store("")
	return e, nil
}

// SetSession tags subsequent trade records with the session id.
func (e *Executor) SetSession(id string) {
	e.sessionID.Store(id)
}

// Execute submits one intent, retrying transient failures. It reports
// (false, error wrapping ErrExecutorFailure) once attempts are exhausted.
// The signature matches what the fleet expects from its executor.
func (e *Executor) Execute(ctx context.Context, intent domain.TradeIntent) (bool, error) {
	var lastErr error
	wait := e.backoff

	for attempt := 1; attempt <= e.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		lastErr = e.submitter.Submit(ctx, intent)
		if lastErr == nil {
			e.record(ctx, intent, true, "")
			return true, nil
		}
		e.logger.Warn("submission attempt failed",
			slog.String("intent_id", intent.ID),
			slog.Int("attempt", attempt),
			slog.Any("error", lastErr))

		if attempt == e.attempts {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
		case <-time.After(wait):
			wait *= 2
			continue
		}
		break
	}

	err := fmt.Errorf("%w: intent %s after %d attempts: %v",
		domain.ErrExecutorFailure, intent.ID, e.attempts, lastErr)
	e.record(ctx, intent, false, lastErr.Error())
	return false, err
}

func (e *Executor) record(ctx context.Context, intent domain.TradeIntent, success bool, errMsg string) {
	if e.trades == nil {
		return
	}
	rec := domain.TradeRecord{
		ID:         intent.ID,
		SessionID:  e.sessionID.Load().(string),
		MarketID:   intent.TargetMarketID,
		AgentName:  intent.OriginatingAgent,
		IntentKind: intent.Kind,
		Size:       intent.Size,
		PriceE6:    intent.PriceE6,
		Success:    success,
		Error:      errMsg,
		ExecutedAt: time.Now().UTC(),
	}
	if err := e.trades.Insert(context.WithoutCancel(ctx), rec); err != nil {
		e.logger.Warn("trade log insert failed",
			slog.String("intent_id", intent.ID),
			slog.Any("error", err))
	}
}

// SimSubmitter accepts every intent with an optional seeded failure rate.
// It stands in for the settlement layer in local runs and tests.
type SimSubmitter struct {
	mu          sync.Mutex
	rng         *rand.Rand
	failureRate float64
	submitted   int64
}

// NewSimSubmitter creates a deterministic submitter. failureRate in [0, 1]
// is the per-attempt probability of a simulated rejection.
func NewSimSubmitter(seed int64, failureRate float64) *SimSubmitter {
	return &SimSubmitter{
		rng:         rand.New(rand.NewSource(seed)),
		failureRate: failureRate,
	}
}

func (s *SimSubmitter) Submit(_ context.Context, intent domain.TradeIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failureRate > 0 && s.rng.Float64() < s.failureRate {
		return fmt.Errorf("simulated rejection of intent %s", intent.ID)
	}
	s.submitted++
	return nil
}

// Submitted reports how many intents were accepted.
func (s *SimSubmitter) Submitted() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}

var _ Submitter = (*SimSubmitter)(nil)
