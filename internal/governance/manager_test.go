package governance

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/config"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

var open = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

func newTestManager(cfg config.GovernanceConfig) *Manager {
	m := NewManager(cfg, "ESH4", slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.NewSession(open)
	return m
}

func fullStop(at time.Time) domain.TradeRecord {
	return domain.TradeRecord{
		Instrument: "ESH4",
		ExitTime:   at,
		ExitReason: domain.ExitStop,
		RealizedR:  -1,
	}
}

func TestLockoutAfterConsecutiveFullStops(t *testing.T) {
	m := newTestManager(config.Defaults().Governance)

	m.RegisterTradeOutcome(fullStop(open.Add(30 * time.Minute)))
	if ok, _ := m.CanEmitSignal(open.Add(35 * time.Minute)); !ok {
		t.Fatal("locked out after a single loss")
	}
	m.RegisterTradeOutcome(fullStop(open.Add(60 * time.Minute)))

	ok, reason := m.CanEmitSignal(open.Add(65 * time.Minute))
	if ok {
		t.Fatal("expected lockout after two consecutive full stops")
	}
	if reason != "Consecutive losses: 2" {
		t.Fatalf("reason = %q", reason)
	}
	if !m.LockedOut() {
		t.Fatal("LockedOut() = false")
	}

	var sawLockout bool
	for _, ev := range m.DrainEvents() {
		if ev.Kind == domain.EventLockout {
			sawLockout = true
		}
	}
	if !sawLockout {
		t.Fatal("no lockout event recorded")
	}
}

func TestWinnerResetsLossStreak(t *testing.T) {
	m := newTestManager(config.Defaults().Governance)

	m.RegisterTradeOutcome(fullStop(open.Add(30 * time.Minute)))
	m.RegisterTradeOutcome(domain.TradeRecord{
		ExitTime:   open.Add(50 * time.Minute),
		ExitReason: domain.ExitTarget,
		RealizedR:  1.5,
	})
	m.RegisterTradeOutcome(fullStop(open.Add(80 * time.Minute)))

	if ok, _ := m.CanEmitSignal(open.Add(85 * time.Minute)); !ok {
		t.Fatal("streak not reset by intervening winner")
	}
}

func TestSalvageDoesNotExtendStreak(t *testing.T) {
	m := newTestManager(config.Defaults().Governance)

	m.RegisterTradeOutcome(fullStop(open.Add(30 * time.Minute)))
	m.RegisterTradeOutcome(domain.TradeRecord{
		ExitTime:   open.Add(50 * time.Minute),
		ExitReason: domain.ExitSalvage,
		RealizedR:  0.3,
		Salvaged:   true,
	})
	m.RegisterTradeOutcome(fullStop(open.Add(80 * time.Minute)))

	if ok, _ := m.CanEmitSignal(open.Add(85 * time.Minute)); !ok {
		t.Fatal("salvage exit treated as a full stop")
	}
}

func TestLosingScratchLeavesStreakUntouched(t *testing.T) {
	m := newTestManager(config.Defaults().Governance)

	m.RegisterTradeOutcome(fullStop(open.Add(30 * time.Minute)))
	m.RegisterTradeOutcome(domain.TradeRecord{
		ExitTime:   open.Add(50 * time.Minute),
		ExitReason: domain.ExitTime,
		RealizedR:  -0.2,
	})
	m.RegisterTradeOutcome(fullStop(open.Add(80 * time.Minute)))

	// The scratch neither extended nor reset the streak; the second full
	// stop makes it two and engages the lockout.
	if !m.LockedOut() {
		t.Fatal("losing scratch must not reset the loss streak")
	}
}

func TestDailySignalCap(t *testing.T) {
	cfg := config.Defaults().Governance
	cfg.DailySignalCap = 3
	m := newTestManager(cfg)

	for i := 0; i < 3; i++ {
		if ok, _ := m.CanEmitSignal(open.Add(time.Duration(i+1) * 10 * time.Minute)); !ok {
			t.Fatalf("signal %d denied under the cap", i+1)
		}
		m.RegisterSignal()
	}
	ok, reason := m.CanEmitSignal(open.Add(40 * time.Minute))
	if ok {
		t.Fatal("fourth signal admitted past the cap")
	}
	if !strings.Contains(reason, "cap") {
		t.Fatalf("reason = %q", reason)
	}
}

func TestEntryCutoff(t *testing.T) {
	cfg := config.Defaults().Governance
	cfg.CutoffMinutes = 210
	m := newTestManager(cfg)

	if ok, _ := m.CanEmitSignal(open.Add(209 * time.Minute)); !ok {
		t.Fatal("denied inside the entry window")
	}
	if ok, _ := m.CanEmitSignal(open.Add(210 * time.Minute)); ok {
		t.Fatal("admitted at the cutoff")
	}
}

func TestNewDayPreservesLossStreak(t *testing.T) {
	m := newTestManager(config.Defaults().Governance)
	m.RegisterTradeOutcome(fullStop(open.Add(30 * time.Minute)))
	m.RegisterTradeOutcome(fullStop(open.Add(60 * time.Minute)))
	if !m.LockedOut() {
		t.Fatal("expected lockout")
	}

	nextOpen := open.Add(24 * time.Hour)
	m.NewDay(nextOpen)
	if m.LockedOut() {
		t.Fatal("lockout carried into a new day")
	}
	if ok, _ := m.CanEmitSignal(nextOpen.Add(5 * time.Minute)); !ok {
		t.Fatal("fresh day denied")
	}

	// One more full stop re-arms the lockout immediately off the carried streak.
	m.RegisterTradeOutcome(fullStop(nextOpen.Add(30 * time.Minute)))
	if !m.LockedOut() {
		t.Fatal("carried streak did not re-arm lockout")
	}
}

func TestNewSessionClearsLockout(t *testing.T) {
	m := newTestManager(config.Defaults().Governance)
	m.RegisterTradeOutcome(fullStop(open.Add(30 * time.Minute)))
	m.RegisterTradeOutcome(fullStop(open.Add(60 * time.Minute)))
	if !m.LockedOut() {
		t.Fatal("expected lockout")
	}

	nextOpen := open.Add(24 * time.Hour)
	m.NewSession(nextOpen)
	if m.LockedOut() {
		t.Fatal("lockout carried into a new session")
	}
	if ok, _ := m.CanEmitSignal(nextOpen.Add(5 * time.Minute)); !ok {
		t.Fatal("fresh session denied")
	}
}
