// Package governance enforces the daily discipline rules: the signal cap,
// the consecutive-loss lockout, and the late-session entry cutoff. The
// manager sits in front of the arbitrator as its admission gate.
package governance

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/config"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

// Manager tracks per-day counters and decides whether new signals may be
// emitted. It is not safe for concurrent use; each instrument run owns one.
type Manager struct {
	cfg        config.GovernanceConfig
	logger     *slog.Logger
	instrument string

	sessionOpen time.Time
	signalCount int
	lossStreak  int
	lockedOut   bool

	events []domain.GovernanceEvent
}

func NewManager(cfg config.GovernanceConfig, instrument string, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "governance"), slog.String("instrument", instrument)),
		instrument: instrument,
	}
}

// CanEmitSignal reports whether a new signal may be admitted at ts, with a
// human-readable reason on denial. Denials are recorded as events.
func (m *Manager) CanEmitSignal(ts time.Time) (bool, string) {
	if m.lockedOut {
		return false, m.deny(ts, domain.EventLockout, fmt.Sprintf("Consecutive losses: %d", m.lossStreak))
	}
	if m.cfg.DailySignalCap > 0 && m.signalCount >= m.cfg.DailySignalCap {
		return false, m.deny(ts, domain.EventCapHit, fmt.Sprintf("Daily signal cap reached: %d", m.cfg.DailySignalCap))
	}
	if m.cfg.CutoffMinutes > 0 && !m.sessionOpen.IsZero() {
		cutoff := m.sessionOpen.Add(time.Duration(m.cfg.CutoffMinutes) * time.Minute)
		if !ts.Before(cutoff) {
			return false, m.deny(ts, domain.EventCutoff, fmt.Sprintf("Entry cutoff passed at %s", cutoff.Format("15:04")))
		}
	}
	return true, ""
}

// RegisterSignal counts an accepted signal against the daily cap.
func (m *Manager) RegisterSignal() {
	m.signalCount++
}

// RegisterTradeOutcome folds a closed trade into the loss streak. Only full
// stops extend the streak and only wins reset it; a losing scratch, salvage,
// or time exit leaves the counter untouched.
func (m *Manager) RegisterTradeOutcome(rec domain.TradeRecord) {
	if !rec.FullStop() {
		if rec.Win() {
			m.lossStreak = 0
		}
		return
	}
	m.lossStreak++
	if m.cfg.LockoutAfterLosses > 0 && m.lossStreak >= m.cfg.LockoutAfterLosses && !m.lockedOut {
		m.lockedOut = true
		m.events = append(m.events, domain.GovernanceEvent{
			Ts:         rec.ExitTime,
			Instrument: m.instrument,
			Kind:       domain.EventLockout,
			Detail:     fmt.Sprintf("Consecutive losses: %d", m.lossStreak),
		})
		m.logger.Warn("lockout engaged", slog.Int("loss_streak", m.lossStreak))
	}
}

// LockedOut reports whether the lockout is active. Combined with the
// flatten-on-lockout setting it forces open trades closed.
func (m *Manager) LockedOut() bool { return m.lockedOut }

// FlattenOnLockout reports whether an active lockout must also close the
// open trade rather than only blocking new entries.
func (m *Manager) FlattenOnLockout() bool { return m.cfg.FlattenOnLockout }

// NewDay resets the daily counters and the lockout flag for a fresh trading
// day. The consecutive-loss streak carries across day boundaries; only a
// winner or a full session reset clears it.
func (m *Manager) NewDay(open time.Time) {
	m.sessionOpen = open
	m.signalCount = 0
	m.lockedOut = false
}

// NewSession clears everything, including the loss streak. Used when an
// instrument run starts over rather than rolling to the next day.
func (m *Manager) NewSession(open time.Time) {
	m.NewDay(open)
	m.lossStreak = 0
	m.events = nil
}

// DrainEvents returns and clears the events accumulated this session.
func (m *Manager) DrainEvents() []domain.GovernanceEvent {
	ev := m.events
	m.events = nil
	return ev
}

func (m *Manager) deny(ts time.Time, kind domain.GovernanceEventKind, reason string) string {
	m.events = append(m.events, domain.GovernanceEvent{
		Ts:         ts,
		Instrument: m.instrument,
		Kind:       domain.EventSignalReject,
		Detail:     string(kind) + ": " + reason,
	})
	return reason
}
