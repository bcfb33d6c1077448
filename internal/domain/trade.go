package domain

import "time"

// RiskPhase tags the stop-evolution phase of an open trade.
type RiskPhase int

const (
	Phase1 RiskPhase = iota + 1 // entry: fixed statistical stop
	Phase2                      // structural ratchet after phase2_trigger_r
	Phase3                      // optional runner behind a trailing stop
)

func (p RiskPhase) String() string {
	switch p {
	case Phase2:
		return "PHASE2"
	case Phase3:
		return "PHASE3"
	default:
		return "PHASE1"
	}
}

// ExitReason explains why a trade (or a partial) closed. Reasons are mutually
// exclusive and exhaustive; a trade record carries exactly one.
type ExitReason int

const (
	ExitStop ExitReason = iota
	ExitTarget
	ExitSalvage
	ExitTime
	ExitEndOfSession
	ExitGovernance
)

func (r ExitReason) String() string {
	switch r {
	case ExitTarget:
		return "TARGET"
	case ExitSalvage:
		return "SALVAGE"
	case ExitTime:
		return "TIME"
	case ExitEndOfSession:
		return "END_OF_SESSION"
	case ExitGovernance:
		return "GOVERNANCE"
	default:
		return "STOP"
	}
}

// PartialFill records one ladder rung filled during the trade's life.
type PartialFill struct {
	Time     time.Time
	Price    float64
	Fraction float64
	Phase    RiskPhase
	R        float64
}

// TradeRecord is the immutable record of a closed trade, the primary output
// consumed by external analytics.
type TradeRecord struct {
	ID          string
	RunID       string
	Instrument  string
	Tactic      string
	SessionDate time.Time

	Direction  Direction
	EntryTime  time.Time
	EntryPrice float64
	ExitTime   time.Time
	ExitPrice  float64
	ExitReason ExitReason

	RealizedR     float64 // size-fraction-weighted across partials and final exit
	MaxFavorableR float64
	MaxAdverseR   float64

	SizeFraction float64
	Partials     []PartialFill
	Salvaged     bool

	StateAtEntry AuctionState
	Confidence   float64
}

// Win reports whether the trade realized a positive R.
func (t TradeRecord) Win() bool { return t.RealizedR > 0 }

// FullStop reports whether the trade died at the initial stop with no
// partials banked. Governance counts only these toward the consecutive-loss
// lockout streak.
func (t TradeRecord) FullStop() bool {
	return t.ExitReason == ExitStop && len(t.Partials) == 0 && t.RealizedR <= -1+1e-9
}
