// Package session coordinates the price engine, the agent fleet, and the
// record sinks under a single lifecycle with at most one active session per
// manager. The manager is an explicit object; callers construct one and pass
// it where it is needed.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/perpstack/simcore/internal/domain"
	"github.com/perpstack/simcore/internal/engine"
	"github.com/perpstack/simcore/internal/fleet"
	"github.com/perpstack/simcore/internal/marketstate"
	"github.com/perpstack/simcore/internal/scenario"
)

const (
	defaultLockTTL = 30 * time.Second
	// sessionLockKey is the single cross-process slot name.
	sessionLockKey = "simcore:session"

	fleetSubscriberBuffer    = 256
	recorderSubscriberBuffer = 256
)

// ManagerConfig wires a Manager's collaborators. Executor is required; the
// rest degrade gracefully when absent.
type ManagerConfig struct {
	Catalog  *scenario.Catalog
	Logger   *slog.Logger
	Executor fleet.ExecuteFunc
	// Locker, when set, guards the session slot across processes.
	Locker  domain.SessionLocker
	LockTTL time.Duration
	Sinks   Sinks
	// Reader is shared with all agents. Nil gives each agent a simulated one.
	Reader marketstate.Reader
	// HistorySize bounds the rolling price history handed to agents. Zero
	// takes the fleet default.
	HistorySize int
}

// StartRequest describes one session to launch.
type StartRequest struct {
	// SessionID is optional; empty draws a fresh UUID. Supplying the id of a
	// session started elsewhere lets this instance resume acting for it.
	SessionID    string
	Model        domain.PriceModelKind
	Params       domain.ModelParams
	StartPriceE6 int64
	IntervalMs   int64
	Seed         *int64
	MaxUpdates   int64
	Bots         []domain.BotConfig
	// Executor, when set, carries the session's own submission authority and
	// overrides the manager-wide executor for this session's fleet.
	Executor fleet.ExecuteFunc
}

type activeSession struct {
	sessionID string
	fleet     *fleet.Fleet
	cancel    context.CancelFunc
	unlock    func()
	startedAt time.Time
}

// Manager owns the session lifecycle. All exported methods are safe for
// concurrent use.
type Manager struct {
	catalog  *scenario.Catalog
	logger   *slog.Logger
	executor fleet.ExecuteFunc
	locker   domain.SessionLocker
	lockTTL  time.Duration
	sinks    Sinks
	reader   marketstate.Reader
	histSize int

	engine *engine.Engine

	mu      sync.Mutex
	active  *activeSession
	last    *domain.SessionSnapshot
	stopped time.Time
}

// NewManager builds an idle manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("%w: manager requires an executor", domain.ErrInvalidConfig)
	}
	if cfg.Catalog == nil {
		cfg.Catalog = scenario.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	return &Manager{
		catalog:  cfg.Catalog,
		logger:   cfg.Logger.With(slog.String("component", "session_manager")),
		executor: cfg.Executor,
		locker:   cfg.Locker,
		lockTTL:  cfg.LockTTL,
		sinks:    cfg.Sinks,
		reader:   cfg.Reader,
		histSize: cfg.HistorySize,
		engine:   engine.New(cfg.Catalog, cfg.Logger),
	}, nil
}

// Start launches a session: engine first, then the fleet and record sinks on
// their own subscriptions. Fails with ErrAlreadyRunning when this manager or
// (via the locker) another process already holds the slot.
func (m *Manager) Start(ctx context.Context, req StartRequest) (domain.SessionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("%w: session %s is active",
			domain.ErrAlreadyRunning, m.active.sessionID)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	unlock := func() {}
	if m.locker != nil {
		var err error
		unlock, err = m.locker.Acquire(ctx, sessionLockKey, m.lockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return domain.SessionSnapshot{}, fmt.Errorf("%w: session slot held elsewhere: %v",
					domain.ErrAlreadyRunning, err)
			}
			return domain.SessionSnapshot{}, fmt.Errorf("acquire session lock: %w", err)
		}
	}

	engineSnap, err := m.engine.Start(ctx, engine.Config{
		SessionID:    sessionID,
		Model:        req.Model,
		Params:       req.Params,
		StartPriceE6: req.StartPriceE6,
		IntervalMs:   req.IntervalMs,
		Seed:         req.Seed,
		MaxUpdates:   req.MaxUpdates,
	})
	if err != nil {
		unlock()
		return domain.SessionSnapshot{}, err
	}

	execute := m.executor
	if req.Executor != nil {
		execute = req.Executor
	}
	flt, err := fleet.New(fleet.Config{
		Executor:    execute,
		Logger:      m.logger,
		Reader:      m.reader,
		HistorySize: m.histSize,
	})
	if err == nil {
		for _, bot := range req.Bots {
			if err = flt.AddBot(bot); err != nil {
				break
			}
		}
	}
	if err != nil {
		m.engine.Stop()
		unlock()
		return domain.SessionSnapshot{}, err
	}
	if err := flt.Start(); err != nil {
		m.engine.Stop()
		unlock()
		return domain.SessionSnapshot{}, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	fleetCh, fleetCancel := m.engine.Subscribe(fleetSubscriberBuffer)
	go func() {
		defer fleetCancel()
		flt.Run(runCtx, fleetCh)
	}()

	rec := newRecorder(m.sinks, m.logger)
	if !m.sinks.empty() {
		recCh, recCancel := m.engine.Subscribe(recorderSubscriberBuffer)
		go func() {
			defer recCancel()
			rec.run(runCtx, recCh)
		}()
	}
	rec.upsertSession(ctx, domain.SessionRecord{
		SessionID:    sessionID,
		Status:       domain.SessionRunning,
		Model:        req.Model,
		StartPriceE6: req.StartPriceE6,
		LastPriceE6:  req.StartPriceE6,
		StartedAt:    engineSnap.StartedAt,
	})

	m.active = &activeSession{
		sessionID: sessionID,
		fleet:     flt,
		cancel:    cancel,
		unlock:    unlock,
		startedAt: engineSnap.StartedAt,
	}
	m.logger.Info("session launched",
		slog.String("session_id", sessionID),
		slog.String("model", string(req.Model)),
		slog.Int("bots", len(req.Bots)))

	return m.snapshotLocked(), nil
}

// Stop tears the active session down in reverse order: fleet first so no
// intent outlives the engine, then the engine, then the record sinks.
func (m *Manager) Stop(ctx context.Context) (domain.SessionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return domain.SessionSnapshot{}, domain.ErrNotRunning
	}
	active := m.active

	active.fleet.Stop()
	engineSnap := m.engine.Stop()
	active.cancel()
	active.unlock()

	now := time.Now().UTC()
	rec := newRecorder(m.sinks, m.logger)
	rec.upsertSession(ctx, domain.SessionRecord{
		SessionID:    active.sessionID,
		Status:       domain.SessionStopped,
		Model:        engineSnap.Model,
		StartPriceE6: engineSnap.StartPriceE6,
		LastPriceE6:  engineSnap.CurrentPriceE6,
		UpdatesCount: engineSnap.UpdatesCount,
		StartedAt:    engineSnap.StartedAt,
		StoppedAt:    &now,
	})

	m.stopped = now
	snap := m.snapshotLocked()
	snap.Status = domain.SessionStopped
	snap.StoppedAt = now
	m.active = nil
	m.last = &snap

	m.logger.Info("session stopped",
		slog.String("session_id", active.sessionID),
		slog.Int64("updates", engineSnap.UpdatesCount))
	return snap, nil
}

// GetState reports the active session, or the last completed one when idle.
// A manager that never ran a session returns ErrNotRunning.
func (m *Manager) GetState(ctx context.Context) (domain.SessionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		if m.last != nil {
			return *m.last, nil
		}
		return domain.SessionSnapshot{}, domain.ErrNotRunning
	}
	return m.snapshotLocked(), nil
}

// TriggerScenario switches the running session's price model to the named
// catalog entry.
func (m *Manager) TriggerScenario(ctx context.Context, name string) (domain.ScenarioEcho, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return domain.ScenarioEcho{}, domain.ErrNotRunning
	}
	echo, err := m.engine.TriggerScenario(name)
	if err != nil {
		return domain.ScenarioEcho{}, err
	}
	m.logger.Info("scenario triggered",
		slog.String("session_id", echo.SessionID),
		slog.String("scenario", name))
	return echo, nil
}

// TriggerWhale arms a whale agent in the running fleet.
func (m *Manager) TriggerWhale(name string, manipulate bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return domain.ErrNotRunning
	}
	return m.active.fleet.TriggerWhale(name, manipulate)
}

// AddBot registers an additional agent on the running fleet.
func (m *Manager) AddBot(cfg domain.BotConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return domain.ErrNotRunning
	}
	return m.active.fleet.AddBot(cfg)
}

// RemoveBot withdraws an agent from the running fleet.
func (m *Manager) RemoveBot(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return domain.ErrNotRunning
	}
	return m.active.fleet.RemoveBot(name)
}

// Scenarios lists the catalog entries available to TriggerScenario.
func (m *Manager) Scenarios() []domain.ScenarioDefinition {
	return m.catalog.List()
}

// snapshotLocked assembles the composite view. Caller holds the lock.
func (m *Manager) snapshotLocked() domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		Engine: m.engine.Snapshot(),
	}
	snap.SessionID = snap.Engine.SessionID
	snap.Scenario = m.engine.ActiveScenario()
	snap.StartedAt = snap.Engine.StartedAt
	if m.active != nil {
		fleetSnap := m.active.fleet.Snapshot()
		snap.Fleet = &fleetSnap
		snap.Status = domain.SessionRunning
		if !snap.Engine.Running {
			// The engine hit its update cap and stopped itself.
			snap.Status = domain.SessionStopped
		}
	} else {
		snap.Status = domain.SessionStopped
		snap.StoppedAt = m.stopped
	}
	return snap
}
