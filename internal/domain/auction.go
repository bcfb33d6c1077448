package domain

import "time"

// AuctionState is the discrete early-session market posture. The set is
// closed; classification rules are evaluated in priority order (first match
// wins) by the auction classifier.
type AuctionState int

const (
	StateMixed AuctionState = iota
	StateInitiative
	StateBalanced
	StateCompression
	StateGapReversion
	StateInventoryFix
)

// String returns the canonical upper-snake name used in records and logs.
func (s AuctionState) String() string {
	switch s {
	case StateInitiative:
		return "INITIATIVE"
	case StateBalanced:
		return "BALANCED"
	case StateCompression:
		return "COMPRESSION"
	case StateGapReversion:
		return "GAP_REVERSION"
	case StateInventoryFix:
		return "INVENTORY_FIX"
	default:
		return "MIXED"
	}
}

// GapClass buckets the opening gap against the prior session close.
type GapClass int

const (
	GapNone GapClass = iota
	GapSmallUp
	GapSmallDown
	GapLargeUp
	GapLargeDown
)

func (g GapClass) String() string {
	switch g {
	case GapSmallUp:
		return "SMALL_UP"
	case GapSmallDown:
		return "SMALL_DOWN"
	case GapLargeUp:
		return "LARGE_UP"
	case GapLargeDown:
		return "LARGE_DOWN"
	default:
		return "NONE"
	}
}

// Large reports whether the gap is in one of the large buckets.
func (g GapClass) Large() bool { return g == GapLargeUp || g == GapLargeDown }

// AuctionMetrics are the early-session features derived from the same bars
// that build the opening range. They are frozen at primary-range
// finalization and never revised (no lookahead).
type AuctionMetrics struct {
	DriveEnergy   float64 // net directional displacement over total path, [0,1]
	RotationCount int     // crossings of the developing range midpoint
	VolumeZ       float64 // early volume vs. reference mean, in std devs
	PathEntropy   float64 // dispersion of signed bar returns, [0,1]
	Gap           GapClass
	GapSize       float64 // signed gap in prior-range units
	GapExtended   bool    // price extended away from the gap
	GapRetraced   bool    // price traded back inside the prior session range
	OvernightBias float64 // open distance from overnight mid in prior-range units
	OpenReversion bool    // opening drive pointed back toward the overnight mid
	Frozen        bool
}

// OpeningRange is the dual early-session range: a short micro window and an
// adaptive primary window. Each side is mutated bar-by-bar until its end time
// and then frozen for the remainder of the session.
type OpeningRange struct {
	MicroHigh float64
	MicroLow  float64
	MicroEnd  time.Time
	MicroDone bool

	PrimaryHigh float64
	PrimaryLow  float64
	PrimaryEnd  time.Time
	PrimaryDone bool

	// WidthATR is the primary width normalized by session ATR, set at
	// finalization. Valid is false when the width falls outside the
	// configured bound; invalid ranges suppress signal generation.
	WidthATR float64
	Valid    bool

	BarCount int
}

// PrimaryWidth returns the primary range height.
func (r OpeningRange) PrimaryWidth() float64 { return r.PrimaryHigh - r.PrimaryLow }

// PrimaryMid returns the midpoint of the primary range.
func (r OpeningRange) PrimaryMid() float64 { return (r.PrimaryHigh + r.PrimaryLow) / 2 }

// StateClassification is the classifier output: the matched state, a
// confidence in [0,1] derived from distance-to-threshold margins, and the
// contributing reason for audit. Gap carries the session's gap bucket so
// downstream context filters can key on it.
type StateClassification struct {
	State      AuctionState
	Gap        GapClass
	Confidence float64
	Reason     string
}
