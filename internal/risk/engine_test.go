package risk

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/config"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRiskConfig() config.RiskConfig {
	return config.Defaults().Risk
}

type fixedModel struct{ prob float64 }

func (m fixedModel) ExtensionProbability(domain.TradeGlance) float64 { return m.prob }

var sessionOpen = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

func bar(i int, o, h, l, c float64) domain.Bar {
	return domain.Bar{
		Ts:     sessionOpen.Add(time.Duration(i) * time.Minute),
		Open:   o,
		High:   h,
		Low:    l,
		Close:  c,
		Volume: 1000,
	}
}

func longSignal(allowRunner bool, targets []domain.TargetLevel) domain.TradeSignal {
	return domain.TradeSignal{
		ID:          "t-1",
		Tactic:      "orb_breakout",
		Instrument:  "ESH4",
		Direction:   domain.Long,
		Entry:       100,
		InitialStop: 99,
		Targets:     targets,
		Exit: domain.ExitMode{
			Trail:       domain.TrailBest,
			AllowRunner: allowRunner,
		},
		SizeFraction: 1,
		State:        domain.StateClassification{State: domain.StateInitiative, Confidence: 0.8},
		Anchor:       99.5,
		CreatedAt:    sessionOpen.Add(20 * time.Minute),
	}
}

func mustOpen(t *testing.T, e *Engine, sig domain.TradeSignal) *ActiveTrade {
	t.Helper()
	tr, err := e.Open(sig)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return tr
}

func TestSalvageAbortsFadedWinner(t *testing.T) {
	e := NewEngine(testRiskConfig(), nil, testLogger())
	tr := mustOpen(t, e, longSignal(false, []domain.TargetLevel{{Price: 102, Fraction: 0.5}}))

	// Run to +1.5R, then fade back to +0.3R and sit there.
	if rec := e.UpdateBar(tr, bar(21, 100, 100.6, 99.9, 100.5), domain.StateInitiative); rec != nil {
		t.Fatalf("closed early: %v", rec.ExitReason)
	}
	if tr.Phase != domain.Phase2 {
		t.Fatalf("Phase = %v, want PHASE2", tr.Phase)
	}
	if rec := e.UpdateBar(tr, bar(22, 100.5, 101.5, 100.4, 101.4), domain.StateInitiative); rec != nil {
		t.Fatalf("closed at peak: %v", rec.ExitReason)
	}
	if !tr.breakevenSet || tr.Stop != 100.05 {
		t.Fatalf("Stop = %v after peak, want breakeven 100.05", tr.Stop)
	}
	if rec := e.UpdateBar(tr, bar(23, 101.4, 101.4, 100.25, 100.3), domain.StateInitiative); rec != nil {
		t.Fatalf("salvage fired before confirmation: %v", rec.ExitReason)
	}
	rec := e.UpdateBar(tr, bar(24, 100.3, 100.35, 100.2, 100.3), domain.StateInitiative)
	if rec == nil {
		t.Fatal("expected salvage exit")
	}
	if rec.ExitReason != domain.ExitSalvage {
		t.Fatalf("ExitReason = %v, want SALVAGE", rec.ExitReason)
	}
	if !rec.Salvaged {
		t.Fatal("record not flagged salvaged")
	}
	if math.Abs(rec.RealizedR-0.3) > 1e-9 {
		t.Fatalf("RealizedR = %v, want 0.3", rec.RealizedR)
	}
	if math.Abs(rec.MaxFavorableR-1.5) > 1e-9 {
		t.Fatalf("MaxFavorableR = %v, want 1.5", rec.MaxFavorableR)
	}
}

func TestSalvageReclaimRestartsConfirmation(t *testing.T) {
	e := NewEngine(testRiskConfig(), nil, testLogger())
	tr := mustOpen(t, e, longSignal(false, []domain.TargetLevel{{Price: 103, Fraction: 0.5}}))

	e.UpdateBar(tr, bar(21, 100, 101.5, 99.9, 101.4), domain.StateInitiative)
	// Retrace, then reclaim above half the peak before confirmation elapses.
	e.UpdateBar(tr, bar(22, 101.4, 101.4, 100.25, 100.3), domain.StateInitiative)
	if rec := e.UpdateBar(tr, bar(23, 100.3, 101.0, 100.3, 100.9), domain.StateInitiative); rec != nil {
		t.Fatalf("salvage fired through a reclaim bar: %v", rec.ExitReason)
	}
	if tr.barsSincePeak != 0 {
		t.Fatalf("barsSincePeak = %d after reclaim, want 0", tr.barsSincePeak)
	}
}

func TestStopBeforeTargetSameBar(t *testing.T) {
	e := NewEngine(testRiskConfig(), nil, testLogger())
	tr := mustOpen(t, e, longSignal(false, []domain.TargetLevel{{Price: 101, Fraction: 1}}))

	// One bar sweeps both the stop and the target: the stop fills.
	rec := e.UpdateBar(tr, bar(21, 100, 101.2, 98.9, 100.8), domain.StateInitiative)
	if rec == nil {
		t.Fatal("expected stop exit")
	}
	if rec.ExitReason != domain.ExitStop {
		t.Fatalf("ExitReason = %v, want STOP", rec.ExitReason)
	}
	if math.Abs(rec.RealizedR-(-1)) > 1e-9 {
		t.Fatalf("RealizedR = %v, want -1", rec.RealizedR)
	}
	if len(rec.Partials) != 0 {
		t.Fatalf("got %d partials on a swept bar, want 0", len(rec.Partials))
	}
}

func TestPartialLadderAccounting(t *testing.T) {
	e := NewEngine(testRiskConfig(), nil, testLogger())
	tr := mustOpen(t, e, longSignal(false, []domain.TargetLevel{
		{Price: 101, Fraction: 0.5},
		{Price: 102, Fraction: 0.25},
	}))

	if rec := e.UpdateBar(tr, bar(21, 100, 101.1, 99.9, 101.0), domain.StateInitiative); rec != nil {
		t.Fatalf("closed on first partial: %v", rec.ExitReason)
	}
	if len(tr.Partials) != 1 || tr.Remaining != 0.5 {
		t.Fatalf("after first target: partials=%d remaining=%v", len(tr.Partials), tr.Remaining)
	}
	if rec := e.UpdateBar(tr, bar(22, 101, 102.2, 100.9, 102.0), domain.StateInitiative); rec != nil {
		t.Fatalf("closed on second partial: %v", rec.ExitReason)
	}
	if len(tr.Partials) != 2 || tr.Remaining != 0.25 {
		t.Fatalf("after second target: partials=%d remaining=%v", len(tr.Partials), tr.Remaining)
	}
	// Remainder stops out at breakeven.
	rec := e.UpdateBar(tr, bar(23, 102, 102.1, 100.0, 100.1), domain.StateInitiative)
	if rec == nil || rec.ExitReason != domain.ExitStop {
		t.Fatalf("expected breakeven stop exit, got %+v", rec)
	}
	want := 0.5*1 + 0.25*2 + 0.25*0.05
	if math.Abs(rec.RealizedR-want) > 1e-9 {
		t.Fatalf("RealizedR = %v, want %v", rec.RealizedR, want)
	}
}

func TestRunnerGateDeniedKeepsTightTrail(t *testing.T) {
	e := NewEngine(testRiskConfig(), fixedModel{prob: 0.4}, testLogger())
	tr := mustOpen(t, e, longSignal(true, []domain.TargetLevel{{Price: 105, Fraction: 0.5}}))

	e.UpdateBar(tr, bar(21, 100, 101.3, 99.9, 101.2), domain.StateInitiative)
	if tr.Phase != domain.Phase2 {
		t.Fatalf("Phase = %v with denied runner, want PHASE2", tr.Phase)
	}
	// Tight trail follows the close at TrailTightR distance.
	want := 101.2 - 0.45
	if math.Abs(tr.Stop-want) > 1e-9 {
		t.Fatalf("Stop = %v, want tight trail %v", tr.Stop, want)
	}
}

func TestRunnerGateGrantedEntersPhase3(t *testing.T) {
	e := NewEngine(testRiskConfig(), fixedModel{prob: 0.9}, testLogger())
	tr := mustOpen(t, e, longSignal(true, []domain.TargetLevel{{Price: 105, Fraction: 0.5}}))

	e.UpdateBar(tr, bar(21, 100, 101.3, 99.9, 101.2), domain.StateInitiative)
	if tr.Phase != domain.Phase3 {
		t.Fatalf("Phase = %v, want PHASE3", tr.Phase)
	}
	// The envelope trails TrailEnvelopeR behind the close; structural pivot
	// is still the bar low, so best-of picks the higher of the two.
	envelope := 101.2 - 0.75
	if math.Abs(tr.Stop-envelope) > 1e-9 {
		t.Fatalf("Stop = %v, want envelope %v", tr.Stop, envelope)
	}
}

func TestStopNeverLoosens(t *testing.T) {
	e := NewEngine(testRiskConfig(), fixedModel{prob: 0.9}, testLogger())
	tr := mustOpen(t, e, longSignal(true, []domain.TargetLevel{{Price: 110, Fraction: 0.5}}))

	bars := []domain.Bar{
		bar(21, 100, 100.6, 99.9, 100.5),
		bar(22, 100.5, 101.4, 100.3, 101.3),
		bar(23, 101.3, 102.0, 101.1, 101.8),
		bar(24, 101.8, 102.5, 101.5, 101.6),
		bar(25, 101.6, 102.2, 101.4, 102.1),
	}
	prev := tr.Stop
	for _, b := range bars {
		if rec := e.UpdateBar(tr, b, domain.StateInitiative); rec != nil {
			break
		}
		if tr.Signal.Direction == domain.Long && tr.Stop < prev {
			t.Fatalf("stop loosened from %v to %v at %v", prev, tr.Stop, b.Ts)
		}
		prev = tr.Stop
	}
}

func TestShortStopAndTarget(t *testing.T) {
	e := NewEngine(testRiskConfig(), nil, testLogger())
	sig := longSignal(false, nil)
	sig.Direction = domain.Short
	sig.InitialStop = 101
	sig.Anchor = 100.5
	sig.Targets = []domain.TargetLevel{{Price: 99, Fraction: 1}}
	tr := mustOpen(t, e, sig)

	rec := e.UpdateBar(tr, bar(21, 100, 100.4, 98.9, 99.1), domain.StateInitiative)
	if rec == nil || rec.ExitReason != domain.ExitTarget {
		t.Fatalf("expected short target exit, got %+v", rec)
	}
	if math.Abs(rec.RealizedR-1) > 1e-9 {
		t.Fatalf("RealizedR = %v, want 1", rec.RealizedR)
	}
}

func TestTimeStopClosesAtBarClose(t *testing.T) {
	e := NewEngine(testRiskConfig(), nil, testLogger())
	sig := longSignal(false, []domain.TargetLevel{{Price: 105, Fraction: 0.5}})
	sig.Exit.MaxHoldBars = 2
	tr := mustOpen(t, e, sig)

	if rec := e.UpdateBar(tr, bar(21, 100, 100.3, 99.9, 100.2), domain.StateInitiative); rec != nil {
		t.Fatalf("closed before hold limit: %v", rec.ExitReason)
	}
	rec := e.UpdateBar(tr, bar(22, 100.2, 100.4, 100.1, 100.25), domain.StateInitiative)
	if rec == nil || rec.ExitReason != domain.ExitTime {
		t.Fatalf("expected time exit, got %+v", rec)
	}
	if math.Abs(rec.ExitPrice-100.25) > 1e-9 {
		t.Fatalf("ExitPrice = %v, want bar close", rec.ExitPrice)
	}
}

func TestForceCloseCarriesReason(t *testing.T) {
	e := NewEngine(testRiskConfig(), nil, testLogger())
	tr := mustOpen(t, e, longSignal(false, nil))
	e.UpdateBar(tr, bar(21, 100, 100.5, 99.8, 100.4), domain.StateInitiative)

	rec := e.ForceClose(tr, sessionOpen.Add(30*time.Minute), 100.4, domain.ExitEndOfSession)
	if rec.ExitReason != domain.ExitEndOfSession {
		t.Fatalf("ExitReason = %v, want END_OF_SESSION", rec.ExitReason)
	}
	if math.Abs(rec.RealizedR-0.4) > 1e-9 {
		t.Fatalf("RealizedR = %v, want 0.4", rec.RealizedR)
	}
}
