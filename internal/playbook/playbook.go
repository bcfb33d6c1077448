// Package playbook contains the tactic modules that propose trade signals,
// the registry that orders them, and the arbitrator that resolves competing
// candidates into at most one accepted signal per bar.
package playbook

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/config"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

// signalNamespace seeds deterministic signal IDs: replaying the same bars and
// configuration reproduces byte-identical signal and trade identifiers.
var signalNamespace = uuid.MustParse("7e1b9a52-8c04-4f7e-9b63-2f63d10d2ab4")

// Context is the per-bar view handed to tactics once the primary range has
// finalized. It is read-only; tactics never mutate shared state through it.
type Context struct {
	Info     domain.SessionInfo
	Bar      domain.Bar
	BarIndex int

	Range   domain.OpeningRange
	Metrics domain.AuctionMetrics
	Class   domain.StateClassification

	// RecentVol is the trailing per-bar return volatility as a fraction of
	// the primary range width, feeding the adaptive entry buffer.
	RecentVol float64
}

// Tactic is the shared capability set of all playbook modules. A tactic may
// emit zero, one, or (rarely) competing signals for a bar; it must never use
// information from future bars. Tactics are instantiated fresh per session,
// so internal state (e.g. failed-breakout memory) resets at session start.
type Tactic interface {
	Name() string
	IsEligible(ctx Context) bool
	GenerateSignals(ctx Context) []domain.TradeSignal
	PreferredExit(ctx Context) domain.ExitMode
	// Repeatable reports whether the tactic overrides the default
	// one-shot-per-session rule.
	Repeatable() bool
}

// entryBuffer computes the adaptive breakout buffer, as a fraction of the
// primary range width: base + alpha*recentVol + beta*rotations, clamped.
func entryBuffer(tc config.TacticConfig, ctx Context) float64 {
	buf := tc.BufferBase + tc.VolAlpha*ctx.RecentVol + tc.RotBeta*float64(ctx.Metrics.RotationCount)
	return math.Min(math.Max(buf, tc.BufferMin), tc.BufferMax)
}

// ladder converts the configured R-multiple rungs into absolute prices for
// the given entry and initial risk.
func ladder(tc config.TacticConfig, entry, risk float64, dir domain.Direction) []domain.TargetLevel {
	targets := make([]domain.TargetLevel, 0, len(tc.TargetRs))
	for i, r := range tc.TargetRs {
		targets = append(targets, domain.TargetLevel{
			Price:    entry + r*risk*dir.Sign(),
			Fraction: tc.TargetFractions[i],
		})
	}
	return targets
}

// signalID builds the deterministic identifier for a signal.
func signalID(ctx Context, tactic string, dir domain.Direction) string {
	seed := fmt.Sprintf("%s|%s|%s|%s", ctx.Info.Instrument, tactic, dir, ctx.Bar.Ts.UTC().Format("2006-01-02T15:04:05"))
	return uuid.NewSHA1(signalNamespace, []byte(seed)).String()
}

// exitMode builds the ExitMode from tactic config.
func exitMode(tc config.TacticConfig) domain.ExitMode {
	return domain.ExitMode{
		Trail:       domain.TrailBest,
		MaxHoldBars: tc.MaxHoldBars,
		AllowRunner: tc.AllowRunner,
	}
}
