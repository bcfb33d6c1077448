package playbook

import (
	"fmt"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/config"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

// Breakout is the trend opening-range breakout tactic: it triggers when price
// pushes a buffered distance beyond the primary range boundary in an
// initiative (or tight compression) session, trading with the break.
type Breakout struct {
	cfg      config.TacticConfig
	maxCompW float64
}

// NewBreakout creates the breakout tactic.
func NewBreakout(cfg config.TacticConfig, compressionMaxWidthATR float64) *Breakout {
	return &Breakout{cfg: cfg, maxCompW: compressionMaxWidthATR}
}

func (b *Breakout) Name() string     { return "orb_breakout" }
func (b *Breakout) Repeatable() bool { return b.cfg.Repeatable }

// IsEligible gates the tactic on posture: INITIATIVE sessions always qualify;
// COMPRESSION qualifies only when the range is tight enough that a break
// carries energy.
func (b *Breakout) IsEligible(ctx Context) bool {
	if !ctx.Range.PrimaryDone || !ctx.Range.Valid {
		return false
	}
	switch ctx.Class.State {
	case domain.StateInitiative:
		return true
	case domain.StateCompression:
		return ctx.Range.WidthATR <= b.maxCompW
	}
	return false
}

// GenerateSignals emits a long signal when the bar trades through the upper
// trigger, a short when it trades through the lower one. Both can fire on a
// single wide bar; the arbitrator picks at most one.
func (b *Breakout) GenerateSignals(ctx Context) []domain.TradeSignal {
	width := ctx.Range.PrimaryWidth()
	if width <= 0 {
		return nil
	}
	buf := entryBuffer(b.cfg, ctx) * width
	risk := b.cfg.StopWidthR * width

	var out []domain.TradeSignal

	upper := ctx.Range.PrimaryHigh + buf
	if ctx.Bar.High >= upper {
		out = append(out, b.signal(ctx, domain.Long, upper, risk))
	}

	lower := ctx.Range.PrimaryLow - buf
	if ctx.Bar.Low <= lower {
		out = append(out, b.signal(ctx, domain.Short, lower, risk))
	}
	return out
}

func (b *Breakout) signal(ctx Context, dir domain.Direction, entry, risk float64) domain.TradeSignal {
	// The broken boundary becomes the structural anchor for the phase-2
	// ratchet.
	anchor := ctx.Range.PrimaryHigh
	if dir == domain.Short {
		anchor = ctx.Range.PrimaryLow
	}
	return domain.TradeSignal{
		ID:           signalID(ctx, b.Name(), dir),
		Tactic:       b.Name(),
		Instrument:   ctx.Info.Instrument,
		Direction:    dir,
		Entry:        entry,
		InitialStop:  entry - risk*dir.Sign(),
		Targets:      ladder(b.cfg, entry, risk, dir),
		Exit:         b.PreferredExit(ctx),
		SizeFraction: 1.0,
		State:        ctx.Class,
		Anchor:       anchor,
		Reason:       fmt.Sprintf("range break %s in %s", dir, ctx.Class.State),
		CreatedAt:    ctx.Bar.Ts,
	}
}

// PreferredExit lets breakout trades run: the runner phase stays available.
func (b *Breakout) PreferredExit(Context) domain.ExitMode { return exitMode(b.cfg) }
