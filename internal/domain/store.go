package domain

import (
	"context"
	"time"
)

// ---------------------------------------------------------------------------
// Storage interfaces. Each sink only requires the methods the engine
// actually calls; implementations live in internal/store,
// internal/cache, and internal/blob.
// ---------------------------------------------------------------------------

// RecordStore persists closed trade records.
type RecordStore interface {
	InsertRecords(ctx context.Context, records []TradeRecord) error
	ListByRun(ctx context.Context, runID string) ([]TradeRecord, error)
}

// EventStore persists governance events.
type EventStore interface {
	InsertEvents(ctx context.Context, runID string, events []GovernanceEvent) error
}

// RunSummary is the aggregate cached per run.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	FinishedAt time.Time `json:"finished_at"`
	Trades     int       `json:"trades"`
	Wins       int       `json:"wins"`
	TotalR     float64   `json:"total_r"`
	Lockouts   int       `json:"lockouts"`
}

// RunCache caches run summaries and guards against concurrent duplicate runs.
type RunCache interface {
	PutSummary(ctx context.Context, s RunSummary) error
	GetSummary(ctx context.Context, runID string) (RunSummary, error)
}

// ResultArchiver uploads a full result set to durable blob storage.
type ResultArchiver interface {
	ArchiveRun(ctx context.Context, rs ResultSet) error
}

// ---------------------------------------------------------------------------
// Collaborator interfaces. Both are optional; absence degrades gracefully
// (probability below threshold, context never excluded).
// ---------------------------------------------------------------------------

// TradeGlance is the read-only view of an open trade handed to the extension
// model. The risk engine never exposes its mutable state.
type TradeGlance struct {
	Instrument    string
	Tactic        string
	Direction     Direction
	BarsHeld      int
	MaxFavorableR float64
	CurrentR      float64
	State         AuctionState
}

// ExtensionModel scores the probability, in [0,1], that an open trade's move
// extends further. Produced by an external model; consumed only as a gate for
// phase-3 runner activation.
type ExtensionModel interface {
	ExtensionProbability(glance TradeGlance) float64
}

// ContextFilter excludes statistically poor contexts from signal acceptance.
type ContextFilter interface {
	Excluded(sig ContextSignature) bool
}

// ExposureController is the single cross-instrument synchronization point for
// parallel runs. It sees only trades already open elsewhere, never future
// bars. Implementations must be safe for concurrent use.
type ExposureController interface {
	AllowOpen(instrument string, ts time.Time, dir Direction) bool
	NotifyOpen(instrument string, ts time.Time, dir Direction)
	NotifyClose(instrument string, ts time.Time)
}
