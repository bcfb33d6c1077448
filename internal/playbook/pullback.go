package playbook

import (
	"fmt"
	"math"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/config"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

// Pullback is the pullback-continuation tactic: after an initiative session
// establishes itself beyond a range boundary, it buys (sells) the first
// retest of that boundary, joining the drive at a better price than the
// breakout chase.
type Pullback struct {
	cfg config.TacticConfig

	// Per-session continuation memory.
	establishedLong  bool
	establishedShort bool
	pullbackLow      float64
	pullbackHigh     float64
}

// NewPullback creates the pullback-continuation tactic.
func NewPullback(cfg config.TacticConfig) *Pullback {
	return &Pullback{cfg: cfg, pullbackLow: math.Inf(1), pullbackHigh: math.Inf(-1)}
}

func (p *Pullback) Name() string     { return "pullback_go" }
func (p *Pullback) Repeatable() bool { return p.cfg.Repeatable }

// IsEligible requires an initiative posture and a valid range; a pullback in
// a rotational session is just rotation.
func (p *Pullback) IsEligible(ctx Context) bool {
	return ctx.Range.PrimaryDone && ctx.Range.Valid && ctx.Class.State == domain.StateInitiative
}

// GenerateSignals tracks the establish-then-retest sequence: a close beyond
// the boundary arms the direction; a later bar that tags the boundary and
// closes back in the drive direction fires the continuation entry.
func (p *Pullback) GenerateSignals(ctx Context) []domain.TradeSignal {
	width := ctx.Range.PrimaryWidth()
	if width <= 0 {
		return nil
	}
	bar := ctx.Bar

	var out []domain.TradeSignal

	if p.establishedLong && bar.Low <= ctx.Range.PrimaryHigh {
		p.pullbackLow = math.Min(p.pullbackLow, bar.Low)
		if bar.Close > ctx.Range.PrimaryHigh {
			entry := bar.Close
			stop := p.pullbackLow - p.cfg.BufferBase*width
			if stop < entry && !p.deepIntoOpen(ctx.Range, domain.Long) {
				out = append(out, p.signal(ctx, domain.Long, entry, stop))
			}
			p.establishedLong = false
			p.pullbackLow = math.Inf(1)
		}
	}

	if p.establishedShort && bar.High >= ctx.Range.PrimaryLow {
		p.pullbackHigh = math.Max(p.pullbackHigh, bar.High)
		if bar.Close < ctx.Range.PrimaryLow {
			entry := bar.Close
			stop := p.pullbackHigh + p.cfg.BufferBase*width
			if stop > entry && !p.deepIntoOpen(ctx.Range, domain.Short) {
				out = append(out, p.signal(ctx, domain.Short, entry, stop))
			}
			p.establishedShort = false
			p.pullbackHigh = math.Inf(-1)
		}
	}

	// Arm after the retest check so the establishing bar cannot double as
	// its own retest.
	if bar.Close > ctx.Range.PrimaryHigh {
		p.establishedLong = true
	}
	if bar.Close < ctx.Range.PrimaryLow {
		p.establishedShort = true
	}
	return out
}

// deepIntoOpen reports whether the retest collapsed back into the opening
// congestion marked by the micro range. A drive that gives back that much is
// failing, not pulling back.
func (p *Pullback) deepIntoOpen(r domain.OpeningRange, dir domain.Direction) bool {
	if !r.MicroDone {
		return false
	}
	if dir == domain.Long {
		return p.pullbackLow <= r.MicroHigh
	}
	return p.pullbackHigh >= r.MicroLow
}

func (p *Pullback) signal(ctx Context, dir domain.Direction, entry, stop float64) domain.TradeSignal {
	risk := (entry - stop) * dir.Sign()
	anchor := ctx.Range.PrimaryHigh
	if dir == domain.Short {
		anchor = ctx.Range.PrimaryLow
	}
	return domain.TradeSignal{
		ID:           signalID(ctx, p.Name(), dir),
		Tactic:       p.Name(),
		Instrument:   ctx.Info.Instrument,
		Direction:    dir,
		Entry:        entry,
		InitialStop:  stop,
		Targets:      ladder(p.cfg, entry, risk, dir),
		Exit:         p.PreferredExit(ctx),
		SizeFraction: 1.0,
		State:        ctx.Class,
		Anchor:       anchor,
		Reason:       fmt.Sprintf("pullback continuation %s", dir),
		CreatedAt:    ctx.Bar.Ts,
	}
}

// PreferredExit mirrors the breakout exit: continuation trades may run.
func (p *Pullback) PreferredExit(Context) domain.ExitMode { return exitMode(p.cfg) }
