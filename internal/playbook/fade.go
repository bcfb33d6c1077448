package playbook

import (
	"fmt"
	"math"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/config"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

// Fade is the failure-fade tactic: it waits for price to poke beyond a range
// boundary and then close back inside, and trades against the failed
// extension toward the opposite side of the range.
type Fade struct {
	cfg config.TacticConfig

	// Failed-extension memory, per session (tactics are rebuilt each
	// session): extremes reached beyond each boundary.
	brokeHigh   bool
	brokeLow    bool
	highExtreme float64
	lowExtreme  float64
}

// NewFade creates the failure-fade tactic.
func NewFade(cfg config.TacticConfig) *Fade {
	return &Fade{cfg: cfg, highExtreme: math.Inf(-1), lowExtreme: math.Inf(1)}
}

func (f *Fade) Name() string     { return "failure_fade" }
func (f *Fade) Repeatable() bool { return f.cfg.Repeatable }

// IsEligible requires a valid range and a posture where failed extensions
// have edge: gap-reversion or balanced sessions.
func (f *Fade) IsEligible(ctx Context) bool {
	if !ctx.Range.PrimaryDone || !ctx.Range.Valid {
		return false
	}
	switch ctx.Class.State {
	case domain.StateGapReversion, domain.StateBalanced, domain.StateInventoryFix:
		return true
	}
	return false
}

// GenerateSignals records boundary pokes and fires when a poked bar closes
// back inside the range: evidence the extension failed.
func (f *Fade) GenerateSignals(ctx Context) []domain.TradeSignal {
	width := ctx.Range.PrimaryWidth()
	if width <= 0 {
		return nil
	}
	buf := entryBuffer(f.cfg, ctx) * width
	bar := ctx.Bar

	if bar.High >= ctx.Range.PrimaryHigh+buf {
		f.brokeHigh = true
		f.highExtreme = math.Max(f.highExtreme, bar.High)
	}
	if bar.Low <= ctx.Range.PrimaryLow-buf {
		f.brokeLow = true
		f.lowExtreme = math.Min(f.lowExtreme, bar.Low)
	}

	var out []domain.TradeSignal

	// Failed upside extension: short back toward the range.
	if f.brokeHigh && bar.Close < ctx.Range.PrimaryHigh {
		entry := bar.Close
		stop := f.highExtreme + buf
		if stop > entry {
			out = append(out, f.signal(ctx, domain.Short, entry, stop))
		}
		f.brokeHigh = false
		f.highExtreme = math.Inf(-1)
	}

	// Failed downside extension: long back toward the range.
	if f.brokeLow && bar.Close > ctx.Range.PrimaryLow {
		entry := bar.Close
		stop := f.lowExtreme - buf
		if stop < entry {
			out = append(out, f.signal(ctx, domain.Long, entry, stop))
		}
		f.brokeLow = false
		f.lowExtreme = math.Inf(1)
	}
	return out
}

func (f *Fade) signal(ctx Context, dir domain.Direction, entry, stop float64) domain.TradeSignal {
	risk := (entry - stop) * dir.Sign()
	// The violated boundary anchors the phase-2 ratchet once the fade works.
	anchor := ctx.Range.PrimaryHigh
	if dir == domain.Long {
		anchor = ctx.Range.PrimaryLow
	}
	return domain.TradeSignal{
		ID:           signalID(ctx, f.Name(), dir),
		Tactic:       f.Name(),
		Instrument:   ctx.Info.Instrument,
		Direction:    dir,
		Entry:        entry,
		InitialStop:  stop,
		Targets:      ladder(f.cfg, entry, risk, dir),
		Exit:         f.PreferredExit(ctx),
		SizeFraction: 1.0,
		State:        ctx.Class,
		Anchor:       anchor,
		Reason:       fmt.Sprintf("failed extension fade %s in %s", dir, ctx.Class.State),
		CreatedAt:    ctx.Bar.Ts,
	}
}

// PreferredExit keeps fades short-leashed: no runner phase regardless of the
// configured default, since the trade thesis is a finite rotation.
func (f *Fade) PreferredExit(Context) domain.ExitMode {
	m := exitMode(f.cfg)
	m.AllowRunner = false
	m.Trail = domain.TrailStructural
	return m
}
