// Package fleet owns the collection of trading agents for a session. It
// consumes the engine's price stream, fans each sample out to every agent,
// and pushes the resulting intents through the injected executor without
// ever blocking the stream on execution latency.
package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/perpstack/simcore/internal/agent"
	"github.com/perpstack/simcore/internal/domain"
	"github.com/perpstack/simcore/internal/marketstate"
)

// ExecuteFunc submits a single intent to the settlement layer and reports
// whether it was applied. An error describes a submission failure, not a
// rejected trade.
type ExecuteFunc func(ctx context.Context, intent domain.TradeIntent) (bool, error)

const (
	defaultHistorySize    = 100
	defaultExecTimeout    = 5 * time.Second
	defaultExecConcurrent = 16
)

// Config wires a fleet's collaborators.
type Config struct {
	Executor ExecuteFunc
	Logger   *slog.Logger
	// Reader is shared by all agents that inspect account or pool state.
	// Nil gets each agent its own name-seeded simulated proxy.
	Reader marketstate.Reader
	// HistorySize bounds the rolling price history handed to agents.
	HistorySize int
	// ExecTimeout bounds a single intent submission.
	ExecTimeout time.Duration
	// MaxConcurrentExec caps in-flight submissions.
	MaxConcurrentExec int
}

type member struct {
	strat agent.Strategy
	cfg   domain.BotConfig
}

// Fleet fans price samples out to its agents and routes intents to the
// executor. All exported methods are safe for concurrent use.
type Fleet struct {
	logger  *slog.Logger
	execute ExecuteFunc
	reader  marketstate.Reader
	timeout time.Duration
	maxExec int
	histCap int

	mu      sync.Mutex
	bots    []*member
	history []domain.PriceSample
	running bool
	gen     uint64
	dropped int64
	group   *errgroup.Group
}

// New builds an empty fleet. Bots are added with AddBot.
func New(cfg Config) (*Fleet, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("%w: fleet requires an executor", domain.ErrInvalidConfig)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = defaultExecTimeout
	}
	if cfg.MaxConcurrentExec <= 0 {
		cfg.MaxConcurrentExec = defaultExecConcurrent
	}
	f := &Fleet{
		logger:  cfg.Logger.With(slog.String("component", "fleet")),
		execute: cfg.Executor,
		reader:  cfg.Reader,
		timeout: cfg.ExecTimeout,
		maxExec: cfg.MaxConcurrentExec,
		histCap: cfg.HistorySize,
	}
	return f, nil
}

// AddBot registers and, if the fleet is running, immediately starts a new
// agent. Names must be unique within the fleet.
func (f *Fleet) AddBot(cfg domain.BotConfig) error {
	strat, err := agent.New(cfg, agent.Deps{Reader: f.reader, Logger: f.logger})
	if err != nil {
		return err
	}

	f.mu.Lock()
	for _, m := range f.bots {
		if m.cfg.Name == cfg.Name {
			f.mu.Unlock()
			return fmt.Errorf("%w: duplicate bot name %q", domain.ErrInvalidConfig, cfg.Name)
		}
	}
	m := &member{strat: strat, cfg: cfg}
	f.bots = append(f.bots, m)

	// A bot joining mid-session is primed with the rolling history so it can
	// act on the current price instead of waiting for the next tick.
	var history []domain.PriceSample
	var group *errgroup.Group
	gen := f.gen
	if f.running {
		strat.Start()
		if len(f.history) > 0 {
			history = make([]domain.PriceSample, len(f.history))
			copy(history, f.history)
			group = f.group
		}
	}
	f.mu.Unlock()

	if len(history) > 0 {
		if intent := strat.Decide(history[len(history)-1], history); intent != nil {
			f.submit(context.Background(), group, m, gen, *intent)
		}
	}
	f.logger.Info("bot added", slog.String("bot", cfg.Name), slog.String("type", string(cfg.Type)))
	return nil
}

// RemoveBot stops and removes the named agent. In-flight executions for the
// removed agent complete but no longer touch its counters.
func (f *Fleet) RemoveBot(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.bots {
		if m.cfg.Name == name {
			m.strat.Stop()
			f.bots = append(f.bots[:i], f.bots[i+1:]...)
			f.gen++
			f.logger.Info("bot removed", slog.String("bot", name))
			return nil
		}
	}
	return fmt.Errorf("%w: bot %q", domain.ErrNotFound, name)
}

// Start begins accepting samples and starts every registered agent.
func (f *Fleet) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return domain.ErrAlreadyRunning
	}
	f.running = true
	f.group = &errgroup.Group{}
	f.group.SetLimit(f.maxExec)
	for _, m := range f.bots {
		m.strat.Start()
	}
	f.logger.Info("fleet started", slog.Int("bots", len(f.bots)))
	return nil
}

// Stop halts every agent and waits for in-flight executions to drain.
func (f *Fleet) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	group := f.group
	f.group = nil
	for _, m := range f.bots {
		m.strat.Stop()
	}
	f.mu.Unlock()

	if group != nil {
		_ = group.Wait()
	}
	f.logger.Info("fleet stopped")
}

// Run consumes a price subscription until the context is cancelled or the
// channel closes. Samples are processed strictly in arrival order.
func (f *Fleet) Run(ctx context.Context, samples <-chan domain.PriceSample) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-samples:
			if !ok {
				return
			}
			f.HandleSample(ctx, sample)
		}
	}
}

// HandleSample validates one price sample, updates the rolling history, and
// fans the sample out to every running agent. Invalid samples are dropped and
// counted; agents never see them.
func (f *Fleet) HandleSample(ctx context.Context, sample domain.PriceSample) {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	if !sample.Valid() {
		f.dropped++
		f.mu.Unlock()
		f.logger.Warn("dropping invalid price sample",
			slog.Int64("price_e6", sample.PriceE6),
			slog.Int64("ts_ms", sample.TimestampMs))
		return
	}

	f.history = append(f.history, sample)
	if len(f.history) > f.histCap {
		f.history = f.history[len(f.history)-f.histCap:]
	}
	history := make([]domain.PriceSample, len(f.history))
	copy(history, f.history)

	if sim, ok := f.reader.(*marketstate.SimReader); ok && sim != nil {
		sim.Advance()
	}

	members := make([]*member, len(f.bots))
	copy(members, f.bots)
	gen := f.gen
	group := f.group
	f.mu.Unlock()

	for _, m := range members {
		intent := m.strat.Decide(sample, history)
		if intent == nil {
			continue
		}
		f.submit(ctx, group, m, gen, *intent)
	}
}

// submit dispatches one intent on the bounded group. The outcome is applied
// to the agent's counters only if the fleet generation is unchanged, so
// results arriving after RemoveBot are discarded. Stop drains the group, so
// its in-flight outcomes still land.
func (f *Fleet) submit(ctx context.Context, group *errgroup.Group, m *member, gen uint64, intent domain.TradeIntent) {
	if group == nil {
		return
	}
	group.Go(func() error {
		execCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		ok, err := f.execute(execCtx, intent)
		if err != nil {
			f.logger.Warn("intent execution failed",
				slog.String("bot", m.cfg.Name),
				slog.String("intent_id", intent.ID),
				slog.Any("error", err))
			ok = false
		}

		f.mu.Lock()
		stale := f.gen != gen
		f.mu.Unlock()
		if !stale {
			m.strat.RecordOutcome(ok)
		}
		return nil
	})
}

// TriggerWhale arms the named whale agent. Returns ErrNotFound for unknown
// names and ErrInvalidConfig when the agent is not a whale.
func (f *Fleet) TriggerWhale(name string, manipulate bool) error {
	f.mu.Lock()
	var target agent.Strategy
	for _, m := range f.bots {
		if m.cfg.Name == name {
			target = m.strat
			break
		}
	}
	f.mu.Unlock()

	if target == nil {
		return fmt.Errorf("%w: bot %q", domain.ErrNotFound, name)
	}
	trigger, ok := target.(interface{ Trigger(bool) })
	if !ok {
		return fmt.Errorf("%w: bot %q is not a whale", domain.ErrInvalidConfig, name)
	}
	trigger.Trigger(manipulate)
	return nil
}

// Snapshot returns a point-in-time summary of the fleet.
func (f *Fleet) Snapshot() domain.FleetSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := domain.FleetSnapshot{
		Running:             f.running,
		Bots:                make([]domain.BotState, 0, len(f.bots)),
		DroppedPriceSamples: f.dropped,
	}
	for _, m := range f.bots {
		st := m.strat.State()
		snap.Bots = append(snap.Bots, st)
		snap.TotalTradesExecuted += st.TradesExecuted
		snap.TotalTradesFailed += st.TradesFailed
		if st.LastTradeAt.After(snap.LastTradeAt) {
			snap.LastTradeAt = st.LastTradeAt
		}
	}
	return snap
}
