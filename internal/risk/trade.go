// Package risk owns every open trade from acceptance to close: stop-price
// evolution through the phase machine, the salvage abort, partial target
// fills, and the conversion into an immutable trade record. No other
// component mutates an ActiveTrade.
package risk

import (
	"math"
	"time"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

// ActiveTrade is the single owned record of one open trade. It is created by
// Engine.Open, mutated once per bar by Engine.UpdateBar, and destroyed (turned
// into a domain.TradeRecord) on exit.
type ActiveTrade struct {
	ID     string
	Signal domain.TradeSignal

	EntryTime  time.Time
	EntryPrice float64
	Risk       float64 // initial entry-to-stop distance, the R unit

	Stop  float64
	Phase domain.RiskPhase

	Remaining  float64 // fraction of the trade still open, starts at 1
	Partials   []domain.PartialFill
	nextTarget int

	MFE float64 // max favorable excursion, R
	MAE float64 // max adverse excursion, R

	BarsHeld      int
	barsSincePeak int
	breakevenSet  bool
	salvaged      bool

	// Rolling bar extremes for the structural pivot trail.
	lows  []float64
	highs []float64
}

// dir is shorthand for the trade's direction sign.
func (t *ActiveTrade) dir() float64 { return t.Signal.Direction.Sign() }

// rOf converts a price to an R-multiple relative to entry and initial risk.
func (t *ActiveTrade) rOf(price float64) float64 {
	return (price - t.EntryPrice) * t.dir() / t.Risk
}

// priceAtR converts an R-multiple back to a price.
func (t *ActiveTrade) priceAtR(r float64) float64 {
	return t.EntryPrice + r*t.Risk*t.dir()
}

// ratchet tightens the stop, never loosening it: for longs the stop only
// rises, for shorts it only falls. This is the PHASE2+ monotonicity
// invariant.
func (t *ActiveTrade) ratchet(candidate float64) {
	if t.Signal.Direction == domain.Long {
		t.Stop = math.Max(t.Stop, candidate)
	} else {
		t.Stop = math.Min(t.Stop, candidate)
	}
}

// observeExtremes folds the bar's high/low into MFE/MAE and the pivot
// window, and advances the since-peak counter.
func (t *ActiveTrade) observeExtremes(bar domain.Bar, pivotLookback int) {
	var favR, advR float64
	if t.Signal.Direction == domain.Long {
		favR = t.rOf(bar.High)
		advR = t.rOf(bar.Low)
	} else {
		favR = t.rOf(bar.Low)
		advR = t.rOf(bar.High)
	}

	if favR > t.MFE {
		t.MFE = favR
		t.barsSincePeak = 0
	} else {
		t.barsSincePeak++
	}
	if advR < t.MAE {
		t.MAE = advR
	}

	t.lows = append(t.lows, bar.Low)
	t.highs = append(t.highs, bar.High)
	if len(t.lows) > pivotLookback {
		t.lows = t.lows[1:]
		t.highs = t.highs[1:]
	}
}

// pivot returns the structural trail candidate: the extreme of the lookback
// window on the protective side.
func (t *ActiveTrade) pivot() float64 {
	if len(t.lows) == 0 {
		return t.Stop
	}
	if t.Signal.Direction == domain.Long {
		p := math.Inf(1)
		for _, l := range t.lows {
			p = math.Min(p, l)
		}
		return p
	}
	p := math.Inf(-1)
	for _, h := range t.highs {
		p = math.Max(p, h)
	}
	return p
}

// glance builds the read-only view handed to the extension model.
func (t *ActiveTrade) glance(currentR float64, state domain.AuctionState) domain.TradeGlance {
	return domain.TradeGlance{
		Instrument:    t.Signal.Instrument,
		Tactic:        t.Signal.Tactic,
		Direction:     t.Signal.Direction,
		BarsHeld:      t.BarsHeld,
		MaxFavorableR: t.MFE,
		CurrentR:      currentR,
		State:         state,
	}
}

// record converts the closed trade into its immutable record. Run and
// session identifiers are stamped by the caller that owns them.
func (t *ActiveTrade) record(exitTime time.Time, exitPrice float64, reason domain.ExitReason) domain.TradeRecord {
	realized := t.Remaining * t.rOf(exitPrice)
	for _, p := range t.Partials {
		realized += p.Fraction * p.R
	}
	return domain.TradeRecord{
		ID:            t.ID,
		Instrument:    t.Signal.Instrument,
		Tactic:        t.Signal.Tactic,
		Direction:     t.Signal.Direction,
		EntryTime:     t.EntryTime,
		EntryPrice:    t.EntryPrice,
		ExitTime:      exitTime,
		ExitPrice:     exitPrice,
		ExitReason:    reason,
		RealizedR:     realized,
		MaxFavorableR: t.MFE,
		MaxAdverseR:   t.MAE,
		SizeFraction:  t.Signal.SizeFraction,
		Partials:      t.Partials,
		Salvaged:      reason == domain.ExitSalvage,
		StateAtEntry:  t.Signal.State.State,
		Confidence:    t.Signal.State.Confidence,
	}
}
