// Package engine drives the bar-by-bar simulation: one session runner per
// trading day wires the range builder, metrics, classifier, playbooks,
// arbitrator, risk engine, and governance into the fixed per-bar order, and
// the Runner fans instrument simulations out across goroutines.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/auction"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/config"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/governance"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/playbook"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/risk"
)

// recentVolWindow is the trailing bar count feeding the adaptive entry
// buffer.
const recentVolWindow = 5

// sessionResult carries everything one session produced.
type sessionResult struct {
	Records []domain.TradeRecord
	Events  []domain.GovernanceEvent
	Status  domain.SessionStatus
}

// sessionRunner simulates a single session for a single instrument. It is
// built fresh per session so tactic state and classification never leak
// across days.
type sessionRunner struct {
	cfg      *config.Config
	runID    string
	session  domain.Session
	gov      *governance.Manager
	risk     *risk.Engine
	registry *playbook.Registry
	arb      *playbook.Arbitrator
	exposure domain.ExposureController
	logger   *slog.Logger
}

func newSessionRunner(
	cfg *config.Config,
	runID string,
	session domain.Session,
	gov *governance.Manager,
	riskEngine *risk.Engine,
	filter domain.ContextFilter,
	exposure domain.ExposureController,
	logger *slog.Logger,
) *sessionRunner {
	l := logger.With(
		slog.String("component", "session"),
		slog.String("instrument", session.Info.Instrument),
		slog.String("date", session.Info.Date.Format("2006-01-02")),
	)
	return &sessionRunner{
		cfg:      cfg,
		runID:    runID,
		session:  session,
		gov:      gov,
		risk:     riskEngine,
		registry: playbook.NewRegistry(cfg.Playbook, l),
		arb:      playbook.NewArbitrator(cfg.Arbiter, gov, filter, l),
		exposure: exposure,
		logger:   l,
	}
}

// run walks the session's bars in order. The per-bar sequence is fixed:
// range and metric updates, classification on primary finalize, open-trade
// risk update, then signal generation and arbitration. A bar never both
// opens a trade and closes it through the risk engine; entries are admitted
// against the bar that triggered them and managed from the next bar on.
func (s *sessionRunner) run(ctx context.Context) (sessionResult, error) {
	info := s.session.Info
	// A loss streak carries across days; daily counters and lockout do not.
	s.gov.NewDay(info.Open)

	rb := auction.NewRangeBuilder(s.cfg.Range, info, s.logger)
	ma := auction.NewMetricsAggregator(s.cfg.Auction, info)

	var (
		res        sessionResult
		class      domain.StateClassification
		classified bool
		metrics    domain.AuctionMetrics
		open       *risk.ActiveTrade
		fired      = map[string]bool{}
		ranges     []float64
	)
	res.Status = domain.SessionStatus{
		Instrument: info.Instrument,
		Date:       info.Date,
		Tradeable:  true,
	}

	finish := func(rec domain.TradeRecord) {
		rec.RunID = s.runID
		rec.SessionDate = info.Date
		res.Records = append(res.Records, rec)
		s.gov.RegisterTradeOutcome(rec)
		s.exposure.NotifyClose(info.Instrument, rec.ExitTime)
		open = nil
	}

	for i, bar := range s.session.Bars {
		if err := ctx.Err(); err != nil {
			return res, domain.ErrContextDone
		}

		if !classified {
			primaryDone, err := rb.FinalizeIfDue(bar.Ts)
			if err != nil {
				return s.skipSession(res, bar, err), nil
			}
			if primaryDone {
				metrics = ma.Freeze()
				class = auction.Classify(s.cfg.Auction, metrics, rb.Range())
				classified = true
				s.logger.Info("session classified",
					slog.String("state", class.State.String()),
					slog.Float64("confidence", class.Confidence),
					slog.String("reason", class.Reason),
				)
			} else {
				rb.Update(bar)
				ma.Update(bar)
				continue
			}
		}

		ranges = append(ranges, bar.Range())
		if len(ranges) > recentVolWindow {
			ranges = ranges[1:]
		}

		if open != nil {
			if rec := s.risk.UpdateBar(open, bar, class.State); rec != nil {
				finish(*rec)
			}
		}
		if open != nil && s.gov.LockedOut() && s.gov.FlattenOnLockout() {
			rec := s.risk.ForceClose(open, bar.Ts, bar.Close, domain.ExitGovernance)
			res.Events = append(res.Events, domain.GovernanceEvent{
				Ts:         bar.Ts,
				Instrument: info.Instrument,
				Kind:       domain.EventForcedFlatten,
				Detail:     "flattened on lockout",
			})
			finish(rec)
		}

		if open != nil {
			continue
		}

		pctx := playbook.Context{
			Info:      info,
			Bar:       bar,
			BarIndex:  i,
			Range:     rb.Range(),
			Metrics:   metrics,
			Class:     class,
			RecentVol: s.recentVol(ranges, rb.Range()),
		}
		candidates := s.collectCandidates(pctx, fired)
		decision := s.arb.Arbitrate(bar.Ts, 0, candidates)
		for _, rej := range decision.Rejected {
			res.Events = append(res.Events, domain.GovernanceEvent{
				Ts:         bar.Ts,
				Instrument: info.Instrument,
				Kind:       domain.EventSignalReject,
				Detail:     fmt.Sprintf("%s: %s", rej.Signal.Tactic, rej.Reason),
			})
		}
		if decision.Accepted == nil {
			continue
		}

		sig := *decision.Accepted
		if !s.exposure.AllowOpen(info.Instrument, bar.Ts, sig.Direction) {
			res.Events = append(res.Events, domain.GovernanceEvent{
				Ts:         bar.Ts,
				Instrument: info.Instrument,
				Kind:       domain.EventSignalReject,
				Detail:     fmt.Sprintf("%s: portfolio exposure", sig.Tactic),
			})
			continue
		}
		trade, err := s.risk.Open(sig)
		if err != nil {
			s.logger.Error("signal rejected by risk engine", slog.String("error", err.Error()))
			continue
		}
		fired[sig.Tactic] = true
		s.gov.RegisterSignal()
		s.exposure.NotifyOpen(info.Instrument, bar.Ts, sig.Direction)
		open = trade
	}

	if open != nil {
		last := s.session.Bars[len(s.session.Bars)-1]
		finish(s.risk.ForceClose(open, last.Ts, last.Close, domain.ExitEndOfSession))
	}

	res.Events = append(res.Events, s.gov.DrainEvents()...)
	return res, nil
}

// collectCandidates asks every eligible tactic for signals, honoring the
// one-shot-per-session rule.
func (s *sessionRunner) collectCandidates(pctx playbook.Context, fired map[string]bool) []domain.TradeSignal {
	var candidates []domain.TradeSignal
	for _, t := range s.registry.Tactics() {
		if fired[t.Name()] && !t.Repeatable() {
			continue
		}
		if !t.IsEligible(pctx) {
			continue
		}
		candidates = append(candidates, t.GenerateSignals(pctx)...)
	}
	return candidates
}

// recentVol normalizes the trailing mean bar range by the primary width.
func (s *sessionRunner) recentVol(ranges []float64, r domain.OpeningRange) float64 {
	width := r.PrimaryWidth()
	if len(ranges) == 0 || width <= 0 {
		return 0
	}
	sum := 0.0
	for _, v := range ranges {
		sum += v
	}
	return sum / float64(len(ranges)) / width
}

// skipSession marks the day untradeable after a range construction failure.
func (s *sessionRunner) skipSession(res sessionResult, bar domain.Bar, err error) sessionResult {
	reason := err.Error()
	if errors.Is(err, domain.ErrInvalidRangeState) {
		reason = "opening range window expired without bars"
	}
	s.logger.Warn("session skipped", slog.String("reason", reason))
	res.Status.Tradeable = false
	res.Status.Reason = reason
	res.Events = append(res.Events, domain.GovernanceEvent{
		Ts:         bar.Ts,
		Instrument: s.session.Info.Instrument,
		Kind:       domain.EventSessionSkip,
		Detail:     reason,
	})
	return res
}
