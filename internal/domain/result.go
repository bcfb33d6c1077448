package domain

import "time"

// GovernanceEventKind enumerates the governance event log entries.
type GovernanceEventKind string

const (
	EventLockout       GovernanceEventKind = "lockout"
	EventCapHit        GovernanceEventKind = "cap_hit"
	EventForcedFlatten GovernanceEventKind = "forced_flatten"
	EventCutoff        GovernanceEventKind = "cutoff"
	EventSessionSkip   GovernanceEventKind = "session_skip"
	EventSignalReject  GovernanceEventKind = "signal_reject"
)

// GovernanceEvent is one entry in the structured governance event log.
type GovernanceEvent struct {
	Ts         time.Time
	Instrument string
	Kind       GovernanceEventKind
	Detail     string
}

// EquityPoint is one point of the bar-indexed cumulative-R equity curve.
// Points are appended only when a trade closes or partially fills, keyed by
// the bar timestamp at which the R change realized.
type EquityPoint struct {
	Ts   time.Time
	CumR float64
}

// SessionStatus flags a session's tradeability outcome; skipped sessions are
// reported, not fatal.
type SessionStatus struct {
	Instrument string
	Date       time.Time
	Tradeable  bool
	Reason     string
}

// ResultSet is the complete output of one simulation run.
type ResultSet struct {
	RunID     string
	StartedAt time.Time

	Records  []TradeRecord
	Equity   []EquityPoint
	Events   []GovernanceEvent
	Sessions []SessionStatus
}

// TotalR returns the final cumulative R of the run.
func (rs ResultSet) TotalR() float64 {
	if len(rs.Equity) == 0 {
		return 0
	}
	return rs.Equity[len(rs.Equity)-1].CumR
}

// Wins returns the number of positive-R records.
func (rs ResultSet) Wins() int {
	n := 0
	for _, r := range rs.Records {
		if r.Win() {
			n++
		}
	}
	return n
}
