package domain

import "time"

// SessionStatus is the lifecycle state of a simulation session.
type SessionStatus string

const (
	SessionRunning SessionStatus = "running"
	SessionStopped SessionStatus = "stopped"
)

// FleetSnapshot is a read-only summary of fleet activity.
type FleetSnapshot struct {
	Running             bool
	Bots                []BotState
	TotalTradesExecuted int64
	TotalTradesFailed   int64
	DroppedPriceSamples int64
	LastTradeAt         time.Time
}

// SessionSnapshot is an immutable view of the current session, safe to
// serialize across a process boundary.
type SessionSnapshot struct {
	SessionID string
	Status    SessionStatus
	Scenario  string
	Engine    EngineSnapshot
	Fleet     *FleetSnapshot
	StartedAt time.Time
	StoppedAt time.Time
}

// SessionRecord is the persisted form of a session for the record sink.
type SessionRecord struct {
	SessionID    string
	Status       SessionStatus
	Model        PriceModelKind
	Scenario     string
	StartPriceE6 int64
	LastPriceE6  int64
	UpdatesCount int64
	StartedAt    time.Time
	StoppedAt    *time.Time
}

// TradeRecord is the persisted outcome of an executed (or failed) intent.
type TradeRecord struct {
	ID         string
	SessionID  string
	MarketID   string
	AgentName  string
	IntentKind IntentKind
	Size       int64
	PriceE6    int64
	Success    bool
	Error      string
	ExecutedAt time.Time
}
