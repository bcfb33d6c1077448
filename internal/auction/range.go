// Package auction builds the opening range, aggregates early-session auction
// metrics, and classifies the session's market posture. All computation is
// strictly causal: every value is derived only from bars already observed.
package auction

import (
	"log/slog"
	"math"
	"time"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/config"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

// perBarATRFrac is the share of the daily ATR a typical early-session bar
// covers; it normalizes the first bar's range into the volatility ratio that
// sizes the primary window.
const perBarATRFrac = 0.02

// RangeBuilder accumulates the dual opening range for one session. The
// primary window's duration is adaptive: it is decided exactly once, at the
// first update, from the bars available at that moment, and never revised.
type RangeBuilder struct {
	cfg    config.RangeConfig
	info   domain.SessionInfo
	r      domain.OpeningRange
	logger *slog.Logger

	durationSet bool
}

// NewRangeBuilder creates a RangeBuilder for the given session. Window end
// times are anchored to the session open; the primary end is provisional
// until the first bar fixes the adaptive duration.
func NewRangeBuilder(cfg config.RangeConfig, info domain.SessionInfo, logger *slog.Logger) *RangeBuilder {
	return &RangeBuilder{
		cfg:  cfg,
		info: info,
		r: domain.OpeningRange{
			MicroHigh:   math.Inf(-1),
			MicroLow:    math.Inf(1),
			PrimaryHigh: math.Inf(-1),
			PrimaryLow:  math.Inf(1),
			MicroEnd:    info.Open.Add(time.Duration(cfg.MicroMinutes) * time.Minute),
			PrimaryEnd:  info.Open.Add(time.Duration(cfg.PrimaryBaseMinutes) * time.Minute),
		},
		logger: logger.With(slog.String("component", "range_builder"), slog.String("instrument", info.Instrument)),
	}
}

// Update extends the running high/low of whichever windows are still open.
// Bars at or after a window's end time do not extend that window.
func (b *RangeBuilder) Update(bar domain.Bar) {
	if !b.durationSet {
		b.decidePrimaryDuration(bar)
	}

	if !b.r.MicroDone && bar.Ts.Before(b.r.MicroEnd) {
		b.r.MicroHigh = math.Max(b.r.MicroHigh, bar.High)
		b.r.MicroLow = math.Min(b.r.MicroLow, bar.Low)
	}
	if !b.r.PrimaryDone && bar.Ts.Before(b.r.PrimaryEnd) {
		b.r.PrimaryHigh = math.Max(b.r.PrimaryHigh, bar.High)
		b.r.PrimaryLow = math.Min(b.r.PrimaryLow, bar.Low)
		b.r.BarCount++
	}
}

// decidePrimaryDuration fixes the adaptive primary window from the first
// observed bar's volatility relative to the session ATR. No lookahead: only
// the bar in hand contributes.
func (b *RangeBuilder) decidePrimaryDuration(bar domain.Bar) {
	b.durationSet = true

	minutes := b.cfg.PrimaryBaseMinutes
	if b.info.ATR > 0 {
		ratio := bar.Range() / (b.info.ATR * perBarATRFrac)
		switch {
		case ratio < b.cfg.LowVolRatio:
			minutes = b.cfg.PrimaryMinMinutes
		case ratio > b.cfg.HighVolRatio:
			minutes = b.cfg.PrimaryMaxMinutes
		}
		if minutes != b.cfg.PrimaryBaseMinutes {
			b.logger.Debug("adaptive primary window",
				slog.Float64("vol_ratio", ratio),
				slog.Int("minutes", minutes),
			)
		}
	}
	b.r.PrimaryEnd = b.info.Open.Add(time.Duration(minutes) * time.Minute)
}

// FinalizeIfDue freezes any window whose end time has been reached, provided
// it observed at least one bar. It returns domain.ErrInvalidRangeState when a
// window expires without data; the caller marks the session untradeable.
// The boolean result is true on the update that finalizes the primary window.
func (b *RangeBuilder) FinalizeIfDue(ts time.Time) (primaryJustDone bool, err error) {
	if !b.r.MicroDone && !ts.Before(b.r.MicroEnd) {
		if math.IsInf(b.r.MicroLow, 1) {
			return false, domain.ErrInvalidRangeState
		}
		b.r.MicroDone = true
	}
	if !b.r.PrimaryDone && b.durationSet && !ts.Before(b.r.PrimaryEnd) {
		if b.r.BarCount == 0 {
			return false, domain.ErrInvalidRangeState
		}
		b.r.PrimaryDone = true
		b.validateWidth()
		b.logger.Debug("primary range finalized",
			slog.Float64("high", b.r.PrimaryHigh),
			slog.Float64("low", b.r.PrimaryLow),
			slog.Float64("width_atr", b.r.WidthATR),
			slog.Bool("valid", b.r.Valid),
		)
		return true, nil
	}
	return false, nil
}

// validateWidth computes the ATR-normalized width and the validity flag. A
// zero session ATR disables the bound check.
func (b *RangeBuilder) validateWidth() {
	if b.info.ATR <= 0 {
		b.r.WidthATR = 0
		b.r.Valid = true
		return
	}
	b.r.WidthATR = b.r.PrimaryWidth() / b.info.ATR
	b.r.Valid = b.r.WidthATR >= b.cfg.MinWidthATR && b.r.WidthATR <= b.cfg.MaxWidthATR
}

// Range returns a copy of the current range state.
func (b *RangeBuilder) Range() domain.OpeningRange { return b.r }
