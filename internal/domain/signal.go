package domain

import "time"

// Direction is the trade side.
type Direction int

const (
	Long Direction = iota
	Short
)

func (d Direction) String() string {
	if d == Short {
		return "SHORT"
	}
	return "LONG"
}

// Sign returns +1 for long, -1 for short. Risk arithmetic is written once in
// terms of Sign instead of branching per side.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// TrailMode selects how the phase-3 runner (or tighter phase-2 trail) moves
// the stop.
type TrailMode int

const (
	TrailVolatility TrailMode = iota // volatility envelope below the close
	TrailStructural                  // structural pivot (swing low/high)
	TrailBest                        // the more favorable of the two
)

func (m TrailMode) String() string {
	switch m {
	case TrailStructural:
		return "structural"
	case TrailBest:
		return "best"
	default:
		return "volatility"
	}
}

// ExitMode describes the tactic's preferred exit handling for a trade.
type ExitMode struct {
	Trail       TrailMode
	MaxHoldBars int  // 0 disables the TIME exit
	AllowRunner bool // whether phase 3 may ever be entered
}

// TargetLevel is one rung of a profit-target ladder.
type TargetLevel struct {
	Price    float64
	Fraction float64 // slice of the original size closed at this rung
}

// TradeSignal is a candidate trade emitted by a tactic. It is immutable after
// creation: the arbitrator accepts or rejects it as a whole.
type TradeSignal struct {
	ID           string // UUID
	Tactic       string // tactic identifier, used for the deterministic tiebreak
	Instrument   string
	Direction    Direction
	Entry        float64
	InitialStop  float64
	Targets      []TargetLevel // ordered, fractions sum to <= 1
	Exit         ExitMode
	SizeFraction float64 // proposed size as fraction of full unit size
	State        StateClassification
	Anchor       float64 // structural anchor for the phase-2 stop ratchet
	Reason       string
	CreatedAt    time.Time
}

// InitialRisk returns the entry-to-stop distance. A non-positive value means
// the stop is on the wrong side of the entry and the signal is invalid.
func (s TradeSignal) InitialRisk() float64 {
	return (s.Entry - s.InitialStop) * s.Direction.Sign()
}

// TargetFractionSum returns the total ladder fraction.
func (s TradeSignal) TargetFractionSum() float64 {
	var sum float64
	for _, t := range s.Targets {
		sum += t.Fraction
	}
	return sum
}

// Validate rejects structurally broken signals before trade creation: stop on
// the wrong side of entry, zero initial risk, or a ladder exceeding the full
// size. Rejection is logged by the arbitrator and is not fatal to the run.
func (s TradeSignal) Validate() error {
	if s.InitialRisk() <= 0 {
		return ErrInvalidRiskConfig
	}
	if s.SizeFraction <= 0 || s.SizeFraction > 1 {
		return ErrInvalidRiskConfig
	}
	if s.TargetFractionSum() > 1+1e-9 {
		return ErrInvalidRiskConfig
	}
	for _, t := range s.Targets {
		if (t.Price-s.Entry)*s.Direction.Sign() <= 0 || t.Fraction <= 0 {
			return ErrInvalidRiskConfig
		}
	}
	return nil
}

// ContextSignature identifies the market context a signal was generated in.
// It is the key consumed by the external context-exclusion filter.
type ContextSignature struct {
	Instrument string
	Tactic     string
	State      AuctionState
	Gap        GapClass
}
