// Package app provides the top-level lifecycle for the simulator. It wires
// together stores, caches, the trade executor, the optional reference feed,
// and the session manager, then runs one session from the configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/perpstack/simcore/internal/config"
	"github.com/perpstack/simcore/internal/executor"
	"github.com/perpstack/simcore/internal/feed"
	"github.com/perpstack/simcore/internal/marketstate"
	"github.com/perpstack/simcore/internal/session"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, launches the configured session, and blocks
// until the context is cancelled or the engine reaches its update cap.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting simulator",
		slog.String("model", a.cfg.Engine.Model),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	exec, err := executor.New(executor.Config{
		Submitter:    executor.NewSimSubmitter(a.cfg.Executor.SimSeed, a.cfg.Executor.SimFailureRate),
		Logger:       a.logger,
		Trades:       deps.Trades,
		MaxAttempts:  a.cfg.Executor.MaxAttempts,
		RetryBackoff: time.Duration(a.cfg.Executor.RetryBackoffMs) * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("app: executor: %w", err)
	}

	// One simulated market-state proxy shared by the whole fleet, advanced by
	// the fleet once per tick. A per-agent fallback would never advance.
	readerSeed := a.cfg.Engine.Seed
	if readerSeed == 0 {
		readerSeed = time.Now().UnixNano()
	}
	reader := marketstate.NewSimReader(readerSeed)

	mgr, err := session.NewManager(session.ManagerConfig{
		Logger:      a.logger,
		Executor:    exec.Execute,
		Locker:      deps.Locker,
		LockTTL:     lockTTL(a.cfg),
		Sinks:       deps.Sinks,
		Reader:      reader,
		HistorySize: a.cfg.Session.HistorySize,
	})
	if err != nil {
		return fmt.Errorf("app: session manager: %w", err)
	}

	var cached *feed.CachedReference
	if a.cfg.Feed.Enabled {
		cached = a.startFeed(ctx)
	}

	startPriceE6 := a.cfg.Engine.StartPriceE6
	if cached != nil && a.cfg.Feed.StartPriceSymbol != "" {
		startPriceE6 = referenceStartPrice(ctx, cached, a.cfg.Feed.StartPriceSymbol,
			startPriceE6, referenceQuoteWait, a.logger)
	}

	params, err := a.cfg.Engine.ModelParams()
	if err != nil {
		return fmt.Errorf("app: engine params: %w", err)
	}
	req := session.StartRequest{
		Model:        params.Kind(),
		Params:       params,
		StartPriceE6: startPriceE6,
		IntervalMs:   a.cfg.Engine.IntervalMs,
		MaxUpdates:   a.cfg.Engine.MaxUpdates,
		Bots:         a.cfg.Bots,
	}
	if a.cfg.Engine.Seed != 0 {
		seed := a.cfg.Engine.Seed
		req.Seed = &seed
	}

	snap, err := mgr.Start(ctx, req)
	if err != nil {
		return fmt.Errorf("app: start session: %w", err)
	}
	exec.SetSession(snap.SessionID)
	a.logger.InfoContext(ctx, "session running",
		slog.String("session_id", snap.SessionID),
		slog.Int("bots", len(a.cfg.Bots)),
	)

	<-ctx.Done()

	// The signal context is already cancelled; tear down with a fresh one.
	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer stopCancel()
	if final, stopErr := mgr.Stop(stopCtx); stopErr != nil {
		a.logger.Error("session stop failed", slog.String("error", stopErr.Error()))
	} else {
		a.logger.Info("session stopped",
			slog.String("session_id", final.SessionID),
			slog.Int64("updates", final.Engine.UpdatesCount),
			slog.Int64("final_price_e6", final.Engine.CurrentPriceE6),
		)
	}

	return ctx.Err()
}

// referenceQuoteWait bounds how long startup waits for a first reference
// quote before falling back to the configured start price.
const referenceQuoteWait = 5 * time.Second

// startFeed launches the external reference price stream and returns the
// cache its quotes land in.
func (a *App) startFeed(ctx context.Context) *feed.CachedReference {
	staleAfter := time.Duration(a.cfg.Feed.StaleAfterMs) * time.Millisecond
	cached := feed.NewCachedReference(staleAfter)
	rf := feed.NewReferenceFeed(a.cfg.Feed.WsURL, a.cfg.Feed.Symbols, cached.Accept, a.logger)

	feedCtx, feedCancel := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		if err := rf.Run(feedCtx); err != nil && feedCtx.Err() == nil {
			a.logger.Warn("reference feed exited", slog.String("error", err.Error()))
		}
	}()
	a.closers = append(a.closers, func() {
		feedCancel()
		rf.Close()
	})
	return cached
}

// referenceStartPrice waits up to wait for a reference quote and returns its
// price. A stale quote still counts: the last known value beats the static
// fallback. Only a feed that never produced a quote falls back.
func referenceStartPrice(ctx context.Context, cached *feed.CachedReference, symbol string, fallbackE6 int64, wait time.Duration, logger *slog.Logger) int64 {
	deadline := time.Now().Add(wait)
	for {
		quote, stale, err := cached.Latest(symbol)
		if err == nil {
			logger.Info("seeding start price from reference quote",
				slog.String("symbol", symbol),
				slog.Int64("price_e6", quote.PriceE6),
				slog.Bool("stale", stale),
			)
			return quote.PriceE6
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			logger.Warn("reference quote unavailable, using configured start price",
				slog.String("symbol", symbol),
				slog.Int64("price_e6", fallbackE6),
			)
			return fallbackE6
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down simulator")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
