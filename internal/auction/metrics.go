package auction

import (
	"math"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/config"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

// MetricsAggregator derives the auction features from the same early-session
// bars that build the opening range. Freeze() is called exactly once, when
// the primary range finalizes; afterwards updates are ignored.
type MetricsAggregator struct {
	cfg  config.AuctionConfig
	info domain.SessionInfo

	m domain.AuctionMetrics

	firstOpen float64
	lastClose float64
	prevClose float64
	pathSum   float64 // sum of |close-to-close| moves
	ups       int
	downs     int
	flats     int
	volSum    float64
	barCount  int

	// rotation tracking: side of the developing range midpoint
	hi, lo   float64
	lastSide int

	retraced bool // price traded back inside the prior session range after a gap
}

// NewMetricsAggregator creates an aggregator for one session.
func NewMetricsAggregator(cfg config.AuctionConfig, info domain.SessionInfo) *MetricsAggregator {
	return &MetricsAggregator{
		cfg:  cfg,
		info: info,
		hi:   math.Inf(-1),
		lo:   math.Inf(1),
	}
}

// Update folds one bar into the running features. Bars after Freeze() are
// ignored; the metrics belong to the opening window only.
func (a *MetricsAggregator) Update(bar domain.Bar) {
	if a.m.Frozen {
		return
	}

	if a.barCount == 0 {
		a.firstOpen = bar.Open
		a.prevClose = bar.Close
		a.classifyGap(bar.Open)
	} else {
		move := bar.Close - a.prevClose
		a.pathSum += math.Abs(move)
		switch {
		case move > 0:
			a.ups++
		case move < 0:
			a.downs++
		default:
			a.flats++
		}
		a.prevClose = bar.Close
	}

	a.lastClose = bar.Close
	a.volSum += bar.Volume
	a.barCount++

	a.hi = math.Max(a.hi, bar.High)
	a.lo = math.Min(a.lo, bar.Low)
	a.trackRotation(bar.Close)
	a.trackGapExtension(bar)
}

// trackRotation counts crossings of the developing range midpoint.
func (a *MetricsAggregator) trackRotation(close float64) {
	mid := (a.hi + a.lo) / 2
	side := 0
	switch {
	case close > mid:
		side = 1
	case close < mid:
		side = -1
	}
	if side != 0 && a.lastSide != 0 && side != a.lastSide {
		a.m.RotationCount++
	}
	if side != 0 {
		a.lastSide = side
	}
}

// trackGapExtension records whether post-open trade retraced into the prior
// session's range (gap failure evidence) or kept extending away from it.
func (a *MetricsAggregator) trackGapExtension(bar domain.Bar) {
	switch a.m.Gap {
	case domain.GapLargeUp, domain.GapSmallUp:
		if bar.Low <= a.info.PriorHigh {
			a.retraced = true
		}
	case domain.GapLargeDown, domain.GapSmallDown:
		if bar.High >= a.info.PriorLow {
			a.retraced = true
		}
	}
}

// classifyGap buckets the opening gap in prior-range units.
func (a *MetricsAggregator) classifyGap(open float64) {
	priorRange := a.info.PriorHigh - a.info.PriorLow
	if priorRange <= 0 {
		return
	}
	a.m.GapSize = (open - a.info.PriorClose) / priorRange
	abs := math.Abs(a.m.GapSize)
	switch {
	case abs >= a.cfg.LargeGap && a.m.GapSize > 0:
		a.m.Gap = domain.GapLargeUp
	case abs >= a.cfg.LargeGap:
		a.m.Gap = domain.GapLargeDown
	case abs >= a.cfg.SmallGap && a.m.GapSize > 0:
		a.m.Gap = domain.GapSmallUp
	case abs >= a.cfg.SmallGap:
		a.m.Gap = domain.GapSmallDown
	}

	if priorRange > 0 {
		a.m.OvernightBias = (open - a.info.OvernightMid) / priorRange
	}
}

// Freeze computes the derived features and marks the metrics immutable.
func (a *MetricsAggregator) Freeze() domain.AuctionMetrics {
	if a.m.Frozen {
		return a.m
	}

	if a.pathSum > 0 {
		a.m.DriveEnergy = math.Abs(a.lastClose-a.firstOpen) / a.pathSum
		if a.m.DriveEnergy > 1 {
			a.m.DriveEnergy = 1
		}
	}

	if a.info.RefVolumeStd > 0 && a.barCount > 0 {
		meanVol := a.volSum / float64(a.barCount)
		a.m.VolumeZ = (meanVol - a.info.RefVolumeMean) / a.info.RefVolumeStd
	}

	a.m.PathEntropy = ternaryEntropy(a.ups, a.downs, a.flats)
	a.m.GapRetraced = a.retraced
	a.m.GapExtended = !a.retraced && a.extendedFromOpen()

	// Opening drive counts as reversion when it points back toward the
	// overnight mean from the session open.
	netMove := a.lastClose - a.firstOpen
	openAboveMid := a.firstOpen > a.info.OvernightMid
	a.m.OpenReversion = (openAboveMid && netMove < 0) || (!openAboveMid && netMove > 0)

	a.m.Frozen = true
	return a.m
}

// Metrics returns the current (possibly unfrozen) metrics snapshot.
func (a *MetricsAggregator) Metrics() domain.AuctionMetrics { return a.m }

// extendedFromOpen reports whether the session closed the opening window
// further from the prior close than it opened, in the gap direction.
func (a *MetricsAggregator) extendedFromOpen() bool {
	switch a.m.Gap {
	case domain.GapLargeUp, domain.GapSmallUp:
		return a.lastClose > a.firstOpen
	case domain.GapLargeDown, domain.GapSmallDown:
		return a.lastClose < a.firstOpen
	}
	return false
}

// ternaryEntropy returns the normalized Shannon entropy of the up/down/flat
// bar distribution, in [0,1]. Low entropy means a one-sided path.
func ternaryEntropy(ups, downs, flats int) float64 {
	total := ups + downs + flats
	if total == 0 {
		return 0
	}
	var h float64
	for _, n := range []int{ups, downs, flats} {
		if n == 0 {
			continue
		}
		p := float64(n) / float64(total)
		h -= p * math.Log(p)
	}
	return h / math.Log(3)
}
