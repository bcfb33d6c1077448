// Package domain holds the core value types of the opening-range breakout
// simulator: bars, sessions, ranges, auction metrics, signals, trades, and
// the narrow interfaces implemented by the storage and collaborator layers.
package domain

import (
	"fmt"
	"time"
)

// Bar is a single OHLCV bar. Bars are immutable once observed; the engine
// borrows them read-only and never retains a pointer past the current step.
type Bar struct {
	Ts     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Validate checks the internal consistency of a single bar. It does not check
// ordering against neighbouring bars; see Session.Validate for that.
func (b Bar) Validate() error {
	if b.Ts.IsZero() {
		return fmt.Errorf("bar: zero timestamp")
	}
	if b.High < b.Low {
		return fmt.Errorf("bar %s: high %.6f below low %.6f", b.Ts.Format(time.RFC3339), b.High, b.Low)
	}
	if b.Open > b.High || b.Open < b.Low {
		return fmt.Errorf("bar %s: open %.6f outside [low, high]", b.Ts.Format(time.RFC3339), b.Open)
	}
	if b.Close > b.High || b.Close < b.Low {
		return fmt.Errorf("bar %s: close %.6f outside [low, high]", b.Ts.Format(time.RFC3339), b.Close)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s: negative volume %.2f", b.Ts.Format(time.RFC3339), b.Volume)
	}
	return nil
}

// Range returns high minus low.
func (b Bar) Range() float64 { return b.High - b.Low }

// SessionInfo carries the session boundary metadata supplied by the caller
// alongside the bar sequence: clock boundaries and prior-session reference
// levels used by the gap and overnight-inventory features.
type SessionInfo struct {
	Instrument string
	Date       time.Time // session date, midnight in the session's zone
	Open       time.Time
	Close      time.Time

	PriorHigh    float64
	PriorLow     float64
	PriorClose   float64
	OvernightMid float64

	// ATR is the caller-supplied daily average true range used to normalize
	// opening-range width. Zero disables width validation.
	ATR float64

	// RefVolumeMean / RefVolumeStd are the caller-supplied per-bar volume
	// statistics for the early-session window, used for the volume-deviation
	// feature. A zero std disables the feature (volume_z reads as 0).
	RefVolumeMean float64
	RefVolumeStd  float64
}

// Session is one instrument-session worth of bars plus its metadata.
type Session struct {
	Info SessionInfo
	Bars []Bar
}

// Validate enforces the data-integrity contract: every bar internally
// consistent and timestamps strictly non-decreasing. A violation is fatal for
// the instrument's run.
func (s Session) Validate() error {
	var prev time.Time
	for i, b := range s.Bars {
		if err := b.Validate(); err != nil {
			return &DataIntegrityError{Instrument: s.Info.Instrument, BarIndex: i, Reason: err.Error()}
		}
		if i > 0 && b.Ts.Before(prev) {
			return &DataIntegrityError{
				Instrument: s.Info.Instrument,
				BarIndex:   i,
				Reason:     fmt.Sprintf("non-monotonic timestamp %s after %s", b.Ts.Format(time.RFC3339), prev.Format(time.RFC3339)),
			}
		}
		prev = b.Ts
	}
	return nil
}
