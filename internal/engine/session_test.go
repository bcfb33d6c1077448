package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/config"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/governance"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/risk"
)

var testOpen = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testInfo() domain.SessionInfo {
	return domain.SessionInfo{
		Instrument:    "ESH4",
		Date:          time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		Open:          testOpen,
		Close:         testOpen.Add(390 * time.Minute),
		PriorHigh:     5010,
		PriorLow:      4990,
		PriorClose:    5000,
		OvernightMid:  5001,
		ATR:           25,
		RefVolumeMean: 1000,
		RefVolumeStd:  200,
	}
}

func minuteBar(i int, o, h, l, c, v float64) domain.Bar {
	return domain.Bar{
		Ts:     testOpen.Add(time.Duration(i) * time.Minute),
		Open:   o,
		High:   h,
		Low:    l,
		Close:  c,
		Volume: v,
	}
}

// initiativeBars builds a monotone opening drive on heavy volume, a breakout
// bar right after the primary window freezes, and a follow-through leg that
// reaches both targets before the session ends.
func initiativeBars() []domain.Bar {
	bars := make([]domain.Bar, 0, 19)
	for i := 0; i < 15; i++ {
		o := 5000 + 0.3*float64(i)
		bars = append(bars, minuteBar(i, o, o+0.4, o-0.1, o+0.3, 1400))
	}
	bars = append(bars,
		minuteBar(15, 5004.5, 5008, 5004.3, 5007.5, 1400),
		minuteBar(16, 5007.5, 5009, 5007, 5008.5, 1300),
		minuteBar(17, 5008.5, 5011.2, 5008.2, 5011, 1300),
		minuteBar(18, 5011, 5011.5, 5009.5, 5010, 1200),
	)
	return bars
}

func runSession(t *testing.T, session domain.Session) sessionResult {
	return runSessionCfg(t, config.Defaults(), session)
}

func runSessionCfg(t *testing.T, cfg config.Config, session domain.Session) sessionResult {
	t.Helper()
	logger := testLogger()
	gov := governance.NewManager(cfg.Governance, session.Info.Instrument, logger)
	riskEngine := risk.NewEngine(cfg.Risk, PosteriorExtensionModel(), logger)
	sr := newSessionRunner(&cfg, "run-1", session, gov, riskEngine, PermissiveFilter(), NewPortfolioExposure(0), logger)

	res, err := sr.run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return res
}

func TestSessionBreakoutLifecycle(t *testing.T) {
	res := runSession(t, domain.Session{Info: testInfo(), Bars: initiativeBars()})

	if !res.Status.Tradeable {
		t.Fatalf("session untradeable: %s", res.Status.Reason)
	}
	if len(res.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(res.Records))
	}
	rec := res.Records[0]
	if rec.Tactic != "orb_breakout" {
		t.Fatalf("Tactic = %s", rec.Tactic)
	}
	if rec.StateAtEntry != domain.StateInitiative {
		t.Fatalf("StateAtEntry = %v, want INITIATIVE", rec.StateAtEntry)
	}
	if rec.Direction != domain.Long {
		t.Fatalf("Direction = %v, want long", rec.Direction)
	}
	if !rec.EntryTime.Equal(testOpen.Add(15 * time.Minute)) {
		t.Fatalf("EntryTime = %v, want the breakout bar", rec.EntryTime)
	}
	if len(rec.Partials) != 2 {
		t.Fatalf("got %d partials, want both ladder rungs", len(rec.Partials))
	}
	if rec.ExitReason != domain.ExitEndOfSession {
		t.Fatalf("ExitReason = %v, want END_OF_SESSION for the runner remainder", rec.ExitReason)
	}
	if !rec.ExitTime.Equal(testOpen.Add(18 * time.Minute)) {
		t.Fatalf("ExitTime = %v, want the final bar", rec.ExitTime)
	}
	if rec.RealizedR < 1.2 || rec.RealizedR > 1.6 {
		t.Fatalf("RealizedR = %v, want the banked ladder plus remainder", rec.RealizedR)
	}
	if rec.RunID != "run-1" {
		t.Fatalf("RunID = %s", rec.RunID)
	}
}

func TestSessionNoSignalsBeforeClassification(t *testing.T) {
	// Stop the feed inside the primary window: nothing may trade.
	bars := initiativeBars()[:10]
	res := runSession(t, domain.Session{Info: testInfo(), Bars: bars})

	if len(res.Records) != 0 {
		t.Fatalf("got %d records from an unclassified session", len(res.Records))
	}
	if !res.Status.Tradeable {
		t.Fatal("short session wrongly marked untradeable")
	}
}

func TestSessionSkippedWhenRangeWindowEmpty(t *testing.T) {
	// First bar arrives after the micro window already expired.
	bars := []domain.Bar{minuteBar(20, 5000, 5001, 4999, 5000.5, 1000)}
	res := runSession(t, domain.Session{Info: testInfo(), Bars: bars})

	if res.Status.Tradeable {
		t.Fatal("expected untradeable status")
	}
	if len(res.Records) != 0 {
		t.Fatal("skipped session produced records")
	}
	var skipped bool
	for _, ev := range res.Events {
		if ev.Kind == domain.EventSessionSkip {
			skipped = true
		}
	}
	if !skipped {
		t.Fatal("no session_skip event")
	}
}

func TestSessionOneShotPerTactic(t *testing.T) {
	// After the breakout trade closes at end of session there is no second
	// entry even though later bars poke the trigger again; with a mid-session
	// stop the tactic still stays spent.
	bars := initiativeBars()
	// Drive the open trade into its stop, then break out again.
	bars = append(bars[:16],
		minuteBar(16, 5007.5, 5007.6, 5003.0, 5003.2, 1300),
		minuteBar(17, 5003.2, 5009.5, 5003.0, 5009.0, 1300),
		minuteBar(18, 5009, 5009.2, 5008, 5008.5, 1200),
	)
	cfg := config.Defaults()
	cfg.Playbook.Fade.Enabled = false
	cfg.Playbook.Pullback.Enabled = false
	res := runSessionCfg(t, cfg, domain.Session{Info: testInfo(), Bars: bars})

	if len(res.Records) != 1 {
		t.Fatalf("got %d records, want the tactic spent after its first shot", len(res.Records))
	}
	if res.Records[0].ExitReason != domain.ExitStop {
		t.Fatalf("ExitReason = %v, want STOP", res.Records[0].ExitReason)
	}
}

func TestPortfolioExposureCap(t *testing.T) {
	p := NewPortfolioExposure(1)
	now := time.Now()

	if !p.AllowOpen("ESH4", now, domain.Long) {
		t.Fatal("first open denied")
	}
	p.NotifyOpen("ESH4", now, domain.Long)
	if p.AllowOpen("NQH4", now, domain.Short) {
		t.Fatal("cap not enforced")
	}
	p.NotifyClose("ESH4", now)
	if !p.AllowOpen("NQH4", now, domain.Short) {
		t.Fatal("slot not released on close")
	}
}
