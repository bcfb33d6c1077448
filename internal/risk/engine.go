package risk

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/config"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

// Engine applies the per-bar stop evolution to open trades. It is a pure
// state machine over ActiveTrade: no clocks, no I/O, one Update per bar in
// feed order.
type Engine struct {
	cfg    config.RiskConfig
	model  domain.ExtensionModel
	logger *slog.Logger
}

// NewEngine builds an engine. The extension model may be nil, in which case
// the runner phase is never entered and trades stay on the tight trail.
func NewEngine(cfg config.RiskConfig, model domain.ExtensionModel, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		model:  model,
		logger: logger.With(slog.String("component", "risk")),
	}
}

// Open admits an arbitrated signal and returns the owned trade record for it.
func (e *Engine) Open(sig domain.TradeSignal) (*ActiveTrade, error) {
	if err := sig.Validate(); err != nil {
		return nil, fmt.Errorf("risk: open %s: %w", sig.Tactic, err)
	}
	t := &ActiveTrade{
		ID:         sig.ID,
		Signal:     sig,
		EntryTime:  sig.CreatedAt,
		EntryPrice: sig.Entry,
		Risk:       sig.InitialRisk(),
		Stop:       sig.InitialStop,
		Phase:      domain.Phase1,
		Remaining:  1,
	}
	e.logger.Info("trade opened",
		slog.String("trade_id", t.ID),
		slog.String("instrument", sig.Instrument),
		slog.String("tactic", sig.Tactic),
		slog.String("direction", sig.Direction.String()),
		slog.Float64("entry", sig.Entry),
		slog.Float64("stop", sig.InitialStop),
	)
	return t, nil
}

// UpdateBar advances the trade through one completed bar. Per-bar order:
// excursion bookkeeping, breakeven ratchet, salvage check, phase
// transitions, fills against the current stop, time stop, then trail
// updates. Trail candidates reference the bar close and therefore only arm
// on the next bar; a bar that already tagged the stop exits at the stop.
// A non-nil record means the trade is closed.
func (e *Engine) UpdateBar(t *ActiveTrade, bar domain.Bar, state domain.AuctionState) *domain.TradeRecord {
	t.BarsHeld++
	t.observeExtremes(bar, e.cfg.PivotLookbackBars)

	// The stop that can fill this bar is the one that stood at bar open.
	// Ratchets below are driven by this bar's excursion and arm next bar.
	stopPrice := t.Stop
	stopTagged := e.stopHit(t, bar, stopPrice)

	if !t.breakevenSet && t.MFE >= e.cfg.BreakevenTriggerR {
		t.ratchet(t.priceAtR(e.cfg.BreakevenBufferR))
		t.breakevenSet = true
		e.logger.Debug("stop moved to breakeven",
			slog.String("trade_id", t.ID),
			slog.Float64("stop", t.Stop),
		)
	}

	if !stopTagged {
		if rec, ok := e.checkSalvage(t, bar); ok {
			return rec
		}
	}

	e.advancePhase(t, bar, state)

	if stopTagged {
		rec := t.record(bar.Ts, stopPrice, domain.ExitStop)
		e.logExit(t, rec)
		return &rec
	}
	if rec := e.fillTargets(t, bar); rec != nil {
		return rec
	}

	if t.Signal.Exit.MaxHoldBars > 0 && t.BarsHeld >= t.Signal.Exit.MaxHoldBars {
		rec := t.record(bar.Ts, bar.Close, domain.ExitTime)
		e.logExit(t, rec)
		return &rec
	}

	e.updateTrail(t, bar)
	return nil
}

// ForceClose flattens the trade at the given price, used for end-of-session
// and governance flattens.
func (e *Engine) ForceClose(t *ActiveTrade, ts time.Time, price float64, reason domain.ExitReason) domain.TradeRecord {
	rec := t.record(ts, price, reason)
	e.logExit(t, rec)
	return rec
}

func (e *Engine) stopHit(t *ActiveTrade, bar domain.Bar, stop float64) bool {
	if t.Signal.Direction == domain.Long {
		return bar.Low <= stop
	}
	return bar.High >= stop
}

// checkSalvage aborts a trade that reached the salvage trigger and then gave
// back most of its excursion without reclaiming it within the confirmation
// window. The exit fills at the bar close, which is always better than the
// full stop the abort pre-empts.
func (e *Engine) checkSalvage(t *ActiveTrade, bar domain.Bar) (*domain.TradeRecord, bool) {
	if t.MFE < e.cfg.SalvageTriggerR {
		return nil, false
	}
	closeR := t.rOf(bar.Close)
	if closeR >= t.MFE*e.cfg.SalvageReclaimFrac {
		// Price reclaimed enough of the give-back, restart confirmation.
		t.barsSincePeak = 0
		return nil, false
	}
	retrace := (t.MFE - closeR) / t.MFE
	if retrace < e.cfg.SalvageRetrace || t.barsSincePeak < e.cfg.SalvageConfirmBars {
		return nil, false
	}
	t.salvaged = true
	rec := t.record(bar.Ts, bar.Close, domain.ExitSalvage)
	e.logExit(t, rec)
	return &rec, true
}

// advancePhase runs the PHASE1 -> PHASE2 -> PHASE3 transitions. Promotion to
// the runner phase requires both the excursion trigger and the extension
// model's consent; a denied runner keeps the trade in PHASE2 on the tight
// trail.
func (e *Engine) advancePhase(t *ActiveTrade, bar domain.Bar, state domain.AuctionState) {
	if t.Phase == domain.Phase1 && t.MFE >= e.cfg.Phase2TriggerR {
		t.Phase = domain.Phase2
		t.ratchet(t.Signal.Anchor)
		e.logger.Debug("trade advanced to phase 2",
			slog.String("trade_id", t.ID),
			slog.Float64("stop", t.Stop),
		)
	}
	if t.Phase == domain.Phase2 && t.Signal.Exit.AllowRunner && t.MFE >= e.cfg.RunnerTriggerR {
		prob := 0.0
		if e.model != nil {
			prob = e.model.ExtensionProbability(t.glance(t.rOf(bar.Close), state))
		}
		if prob >= e.cfg.RunnerProbMin {
			t.Phase = domain.Phase3
			e.logger.Debug("trade advanced to runner phase",
				slog.String("trade_id", t.ID),
				slog.Float64("extension_prob", prob),
			)
		}
	}
}

// fillTargets fills every untouched target the bar reached, in ladder order.
// The caller has already established the stop was not tagged this bar.
func (e *Engine) fillTargets(t *ActiveTrade, bar domain.Bar) *domain.TradeRecord {
	for t.nextTarget < len(t.Signal.Targets) {
		tgt := t.Signal.Targets[t.nextTarget]
		touched := (t.Signal.Direction == domain.Long && bar.High >= tgt.Price) ||
			(t.Signal.Direction == domain.Short && bar.Low <= tgt.Price)
		if !touched {
			break
		}
		t.Partials = append(t.Partials, domain.PartialFill{
			Time:     bar.Ts,
			Price:    tgt.Price,
			Fraction: tgt.Fraction,
			Phase:    t.Phase,
			R:        t.rOf(tgt.Price),
		})
		t.Remaining -= tgt.Fraction
		t.nextTarget++
		e.logger.Debug("partial target filled",
			slog.String("trade_id", t.ID),
			slog.Float64("price", tgt.Price),
			slog.Float64("remaining", t.Remaining),
		)
		if t.Remaining <= 1e-9 {
			rec := t.record(bar.Ts, tgt.Price, domain.ExitTarget)
			e.logExit(t, rec)
			return &rec
		}
	}
	return nil
}

// updateTrail tightens the stop from the bar close according to the phase
// and the signal's trail mode. Candidates on the wrong side of the current
// stop are discarded by the ratchet.
func (e *Engine) updateTrail(t *ActiveTrade, bar domain.Bar) {
	closeR := t.rOf(bar.Close)
	switch {
	case t.Phase == domain.Phase3:
		t.ratchet(e.trailCandidate(t, closeR))
	case t.Phase == domain.Phase2 && t.Signal.Exit.AllowRunner && t.MFE >= e.cfg.RunnerTriggerR:
		// Runner denied: hold the remainder on the tight trail.
		t.ratchet(t.priceAtR(closeR - e.cfg.TrailTightR))
	}
}

func (e *Engine) trailCandidate(t *ActiveTrade, closeR float64) float64 {
	envelope := t.priceAtR(closeR - e.cfg.TrailEnvelopeR)
	switch t.Signal.Exit.Trail {
	case domain.TrailVolatility:
		return envelope
	case domain.TrailStructural:
		return t.pivot()
	default: // TrailBest
		if t.Signal.Direction == domain.Long {
			if p := t.pivot(); p > envelope {
				return p
			}
			return envelope
		}
		if p := t.pivot(); p < envelope {
			return p
		}
		return envelope
	}
}

func (e *Engine) logExit(t *ActiveTrade, rec domain.TradeRecord) {
	e.logger.Info("trade closed",
		slog.String("trade_id", t.ID),
		slog.String("instrument", rec.Instrument),
		slog.String("reason", rec.ExitReason.String()),
		slog.Float64("realized_r", rec.RealizedR),
		slog.Int("bars_held", t.BarsHeld),
	)
}
