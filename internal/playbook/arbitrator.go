package playbook

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/config"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

// Gate is the governance surface the arbitrator consults before accepting any
// candidate. Implemented by governance.Manager.
type Gate interface {
	CanEmitSignal(ts time.Time) (bool, string)
}

// Rejection pairs a rejected candidate with the reason, for the event log.
type Rejection struct {
	Signal domain.TradeSignal
	Reason string
}

// Decision is the arbitration outcome for one bar: at most one accepted
// signal and the full rejection list.
type Decision struct {
	Accepted *domain.TradeSignal
	Rejected []Rejection
}

// Arbitrator resolves competing candidate signals for one instrument on one
// bar. The tie-break policy is deterministic and documented: governance
// first, then classification confidence, then lexicographic tactic id.
type Arbitrator struct {
	cfg    config.ArbiterConfig
	gate   Gate
	filter domain.ContextFilter // nil means nothing is excluded
	logger *slog.Logger
}

// NewArbitrator creates an Arbitrator. filter may be nil; absence degrades to
// "not excluded".
func NewArbitrator(cfg config.ArbiterConfig, gate Gate, filter domain.ContextFilter, logger *slog.Logger) *Arbitrator {
	return &Arbitrator{
		cfg:    cfg,
		gate:   gate,
		filter: filter,
		logger: logger.With(slog.String("component", "arbitrator")),
	}
}

// Arbitrate selects at most one candidate. openTrades is the count of trades
// currently open for the instrument; while one is open new signals are
// suppressed, never queued.
func (a *Arbitrator) Arbitrate(ts time.Time, openTrades int, candidates []domain.TradeSignal) Decision {
	var d Decision
	if len(candidates) == 0 {
		return d
	}

	rejectAll := func(reason string) Decision {
		for _, c := range candidates {
			d.Rejected = append(d.Rejected, Rejection{Signal: c, Reason: reason})
		}
		return d
	}

	if openTrades >= a.cfg.MaxConcurrentTrades {
		return rejectAll("trade already open")
	}
	if ok, reason := a.gate.CanEmitSignal(ts); !ok {
		return rejectAll("governance: " + reason)
	}

	// Per-candidate filters: structural validity and context exclusion.
	viable := make([]domain.TradeSignal, 0, len(candidates))
	for _, c := range candidates {
		if err := c.Validate(); err != nil {
			a.logger.Warn("rejecting invalid signal",
				slog.String("tactic", c.Tactic),
				slog.String("signal_id", c.ID),
				slog.String("error", err.Error()),
			)
			d.Rejected = append(d.Rejected, Rejection{Signal: c, Reason: "invalid risk configuration"})
			continue
		}
		if c.State.Confidence < a.cfg.MinConfidence {
			d.Rejected = append(d.Rejected, Rejection{Signal: c, Reason: fmt.Sprintf("confidence %.2f below floor %.2f", c.State.Confidence, a.cfg.MinConfidence)})
			continue
		}
		if a.filter != nil && a.filter.Excluded(domain.ContextSignature{
			Instrument: c.Instrument,
			Tactic:     c.Tactic,
			State:      c.State.State,
			Gap:        c.State.Gap,
		}) {
			d.Rejected = append(d.Rejected, Rejection{Signal: c, Reason: "context excluded"})
			continue
		}
		viable = append(viable, c)
	}
	if len(viable) == 0 {
		return d
	}

	// Rank: higher confidence first, then lexicographic tactic id, then
	// direction as a last deterministic key for a tactic emitting both sides.
	sort.SliceStable(viable, func(i, j int) bool {
		if viable[i].State.Confidence != viable[j].State.Confidence {
			return viable[i].State.Confidence > viable[j].State.Confidence
		}
		if viable[i].Tactic != viable[j].Tactic {
			return viable[i].Tactic < viable[j].Tactic
		}
		return viable[i].Direction < viable[j].Direction
	})

	accepted := viable[0]
	a.shade(&accepted)
	for _, c := range viable[1:] {
		d.Rejected = append(d.Rejected, Rejection{Signal: c, Reason: "lost arbitration to " + accepted.Tactic})
	}
	d.Accepted = &accepted
	return d
}

// shade shrinks the accepted size proportionally when classification
// confidence is below the shading threshold. Policy lives here, not in the
// classifier.
func (a *Arbitrator) shade(sig *domain.TradeSignal) {
	if a.cfg.ShadeBelow <= 0 || sig.State.Confidence >= a.cfg.ShadeBelow {
		return
	}
	factor := sig.State.Confidence / a.cfg.ShadeBelow
	sig.SizeFraction *= factor
	a.logger.Debug("size shaded by confidence",
		slog.String("tactic", sig.Tactic),
		slog.Float64("confidence", sig.State.Confidence),
		slog.Float64("size_fraction", sig.SizeFraction),
	)
}
