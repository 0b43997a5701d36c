// Package engine implements the price-generation session: a single recurring
// tick that advances the active model and fans samples out to subscribers.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/perpstack/simcore/internal/domain"
	"github.com/perpstack/simcore/internal/pricemodel"
	"github.com/perpstack/simcore/internal/scenario"
)

const (
	// MinIntervalMs is the enforced tick floor; anything faster is clamped to
	// avoid runaway timers.
	MinIntervalMs     = 100
	defaultIntervalMs = 1000

	// defaultSubscriberBuffer bounds each subscriber queue. A full queue drops
	// the sample for that subscriber; the timer never waits.
	defaultSubscriberBuffer = 64
)

// Config describes one price-generation session.
type Config struct {
	SessionID    string
	Model        domain.PriceModelKind
	Params       domain.ModelParams
	StartPriceE6 int64
	IntervalMs   int64
	// Seed makes the session reproducible. Nil draws a seed from the clock.
	Seed *int64
	// MaxUpdates is a hard cap on ticks; the engine stops itself when reached.
	// Zero means unlimited.
	MaxUpdates int64
}

func (c Config) validate() error {
	if c.SessionID == "" {
		return fmt.Errorf("%w: session id is required", domain.ErrInvalidConfig)
	}
	if c.StartPriceE6 <= 0 {
		return fmt.Errorf("%w: start price must be > 0", domain.ErrInvalidConfig)
	}
	if !domain.KnownModel(c.Model) {
		return fmt.Errorf("%w: unknown model %q", domain.ErrInvalidConfig, c.Model)
	}
	if c.Params == nil {
		return fmt.Errorf("%w: model params are required", domain.ErrInvalidConfig)
	}
	if c.Params.Kind() != c.Model {
		return fmt.Errorf("%w: params kind %q does not match model %q",
			domain.ErrInvalidConfig, c.Params.Kind(), c.Model)
	}
	return nil
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan domain.PriceSample
	closed bool
}

// send delivers the sample without blocking. It reports false when the queue
// was full. Sends after close are no-ops, so a cancel racing a publish can
// never panic the tick.
func (s *subscriber) send(sample domain.PriceSample) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- sample:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Engine owns one session's price state. The zero value is not usable; use
// New. All exported methods are safe for concurrent use.
type Engine struct {
	catalog *scenario.Catalog
	logger  *slog.Logger

	mu         sync.Mutex
	running    bool
	sessionID  string
	modelKind  domain.PriceModelKind
	model      pricemodel.Model
	modelTicks int64
	rng        *rand.Rand
	intervalMs int64
	maxUpdates int64

	// Base model (from Start) restored when a time-bounded scenario expires.
	baseKind   domain.PriceModelKind
	baseParams domain.ModelParams

	scenarioName     string
	scenarioDeadline time.Time

	currentE6    int64
	startE6      int64
	updates      int64
	startedAt    time.Time
	lastUpdateAt time.Time

	subs      map[int]*subscriber
	nextSubID int
	dropped   int64

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an idle engine bound to a scenario catalog.
func New(catalog *scenario.Catalog, logger *slog.Logger) *Engine {
	return &Engine{
		catalog: catalog,
		logger:  logger.With(slog.String("component", "price_engine")),
		subs:    make(map[int]*subscriber),
	}
}

// Start initializes session state and begins ticking at the configured
// interval. It fails with ErrAlreadyRunning when a session is active on this
// instance.
func (e *Engine) Start(ctx context.Context, cfg Config) (domain.EngineSnapshot, error) {
	if err := cfg.validate(); err != nil {
		return domain.EngineSnapshot{}, err
	}

	intervalMs := cfg.IntervalMs
	if intervalMs <= 0 {
		intervalMs = defaultIntervalMs
	}
	if intervalMs < MinIntervalMs {
		intervalMs = MinIntervalMs
	}

	seed := time.Now().UnixNano()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	rng := rand.New(rand.NewSource(seed))

	model, err := pricemodel.New(cfg.Params, pricemodel.Options{RNG: rng, TickIntervalMs: intervalMs})
	if err != nil {
		return domain.EngineSnapshot{}, err
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return domain.EngineSnapshot{}, domain.ErrAlreadyRunning
	}
	now := time.Now().UTC()
	e.running = true
	e.sessionID = cfg.SessionID
	e.modelKind = cfg.Model
	e.model = model
	e.modelTicks = 0
	e.rng = rng
	e.intervalMs = intervalMs
	e.maxUpdates = cfg.MaxUpdates
	e.baseKind = cfg.Model
	e.baseParams = cfg.Params
	e.scenarioName = ""
	e.scenarioDeadline = time.Time{}
	e.currentE6 = cfg.StartPriceE6
	e.startE6 = cfg.StartPriceE6
	e.updates = 0
	e.startedAt = now
	e.lastUpdateAt = time.Time{}
	snap := e.snapshotLocked()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()

	go e.run(runCtx, time.Duration(intervalMs)*time.Millisecond, done)

	e.logger.Info("session started",
		slog.String("session_id", cfg.SessionID),
		slog.String("model", string(cfg.Model)),
		slog.Int64("start_price_e6", cfg.StartPriceE6),
		slog.Int64("interval_ms", intervalMs),
	)
	return snap, nil
}

func (e *Engine) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.Tick() {
				return
			}
		}
	}
}

// Tick advances the price one step and publishes the sample. It returns false
// once the engine is no longer running (stopped or hard cap reached).
// Exported so tests can drive the engine deterministically without the timer.
func (e *Engine) Tick() bool {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return false
	}

	now := time.Now().UTC()
	if e.scenarioName != "" && !e.scenarioDeadline.IsZero() && now.After(e.scenarioDeadline) {
		e.revertScenarioLocked()
	}

	next := e.model.Next(e.currentE6, e.modelTicks)
	e.modelTicks++
	e.currentE6 = next
	e.updates++
	e.lastUpdateAt = now

	sample := domain.PriceSample{
		PriceE6:         next,
		TimestampMs:     now.UnixMilli(),
		Model:           e.modelKind,
		SourceSessionID: e.sessionID,
	}

	targets := make([]*subscriber, 0, len(e.subs))
	for _, s := range e.subs {
		targets = append(targets, s)
	}

	capped := e.maxUpdates > 0 && e.updates >= e.maxUpdates
	e.mu.Unlock()

	for _, s := range targets {
		if !s.send(sample) {
			// Slow subscriber: drop rather than stall the timer.
			e.mu.Lock()
			e.dropped++
			e.mu.Unlock()
		}
	}

	if capped {
		// Called from the run goroutine, so mark stopped without waiting on
		// the loop itself.
		e.mu.Lock()
		if e.running {
			e.running = false
			if e.cancel != nil {
				e.cancel()
			}
			e.cancel = nil
			e.done = nil
		}
		updates := e.updates
		e.mu.Unlock()
		e.logger.Info("hard update cap reached, stopping",
			slog.String("session_id", sample.SourceSessionID),
			slog.Int64("updates", updates),
		)
		return false
	}
	return true
}

// TriggerScenario atomically swaps the active model and parameters to the
// named catalog preset. Session identity, start time, and the update counter
// are preserved. Fails with ErrUnknownScenario for names not in the catalog
// and ErrNotRunning when idle.
func (e *Engine) TriggerScenario(name string) (domain.ScenarioEcho, error) {
	def, err := e.catalog.Lookup(name)
	if err != nil {
		return domain.ScenarioEcho{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return domain.ScenarioEcho{}, domain.ErrNotRunning
	}

	model, err := pricemodel.New(def.Params, pricemodel.Options{RNG: e.rng, TickIntervalMs: e.intervalMs})
	if err != nil {
		return domain.ScenarioEcho{}, err
	}

	now := time.Now().UTC()
	e.model = model
	e.modelKind = def.Model
	e.modelTicks = 0
	e.scenarioName = def.Name
	if def.DurationMs > 0 {
		e.scenarioDeadline = now.Add(time.Duration(def.DurationMs) * time.Millisecond)
	} else {
		e.scenarioDeadline = time.Time{}
	}

	e.logger.Info("scenario triggered",
		slog.String("session_id", e.sessionID),
		slog.String("scenario", def.Name),
		slog.String("model", string(def.Model)),
	)
	return domain.ScenarioEcho{
		SessionID: e.sessionID,
		Scenario:  def.Name,
		Model:     def.Model,
		AppliedAt: now,
	}, nil
}

// revertScenarioLocked restores the base model once a time-bounded scenario
// expires. Caller holds e.mu.
func (e *Engine) revertScenarioLocked() {
	model, err := pricemodel.New(e.baseParams, pricemodel.Options{RNG: e.rng, TickIntervalMs: e.intervalMs})
	if err != nil {
		// Base params were validated at Start; keep the current model.
		e.logger.Error("scenario revert failed", slog.String("error", err.Error()))
		return
	}
	e.logger.Info("scenario expired, reverting to base model",
		slog.String("session_id", e.sessionID),
		slog.String("scenario", e.scenarioName),
		slog.String("model", string(e.baseKind)),
	)
	e.model = model
	e.modelKind = e.baseKind
	e.modelTicks = 0
	e.scenarioName = ""
	e.scenarioDeadline = time.Time{}
}

// Stop cancels the timer and returns the final snapshot. Stopping an idle
// engine is a no-op that returns the last known state.
func (e *Engine) Stop() domain.EngineSnapshot {
	e.mu.Lock()
	if !e.running {
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap
	}
	e.running = false
	cancel := e.cancel
	done := e.done
	e.cancel = nil
	e.done = nil
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	e.logger.Info("session stopped",
		slog.String("session_id", snap.SessionID),
		slog.Int64("updates", snap.UpdatesCount),
		slog.Duration("elapsed", snap.Elapsed()),
	)
	return snap
}

// Subscribe registers a bounded-queue listener for price samples. The
// returned cancel function removes the subscription and closes the channel.
// buffer <= 0 uses the default.
func (e *Engine) Subscribe(buffer int) (<-chan domain.PriceSample, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	sub := &subscriber{ch: make(chan domain.PriceSample, buffer)}

	e.mu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subs[id] = sub
	e.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
			sub.close()
		})
	}
	return sub.ch, cancel
}

// Snapshot returns a read-only copy of the engine state.
func (e *Engine) Snapshot() domain.EngineSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// UpdatesCount returns the number of ticks published so far.
func (e *Engine) UpdatesCount() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updates
}

// ActiveScenario returns the name of the currently applied scenario, empty
// when the session runs on its base model.
func (e *Engine) ActiveScenario() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scenarioName
}

// DroppedSamples reports how many samples were discarded because a subscriber
// queue was full.
func (e *Engine) DroppedSamples() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

func (e *Engine) snapshotLocked() domain.EngineSnapshot {
	return domain.EngineSnapshot{
		SessionID:      e.sessionID,
		Running:        e.running,
		Model:          e.modelKind,
		CurrentPriceE6: e.currentE6,
		StartPriceE6:   e.startE6,
		UpdatesCount:   e.updates,
		StartedAt:      e.startedAt,
		LastUpdateAt:   e.lastUpdateAt,
	}
}
