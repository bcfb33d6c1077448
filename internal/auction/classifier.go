package auction

import (
	"fmt"
	"math"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/config"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

// confidenceSlope controls how fast confidence saturates as the matched
// rule's inputs move away from their thresholds.
const confidenceSlope = 4.0

// Classify maps frozen auction metrics and the finalized opening range to a
// market-posture state. Rules are evaluated in priority order and the first
// match wins; the remainder falls through to MIXED.
//
// Classify is a pure function: stateless, side-effect-free, and trivially
// testable against fixed metric vectors.
func Classify(cfg config.AuctionConfig, m domain.AuctionMetrics, r domain.OpeningRange) domain.StateClassification {
	// Rule 1, INITIATIVE: strong one-sided drive on real volume.
	if m.DriveEnergy >= cfg.DriveThreshold && m.RotationCount <= cfg.RotationMax && m.VolumeZ >= cfg.VolumeZMin {
		margins := []float64{
			margin(m.DriveEnergy, cfg.DriveThreshold),
			marginInt(cfg.RotationMax, m.RotationCount),
			margin(m.VolumeZ, cfg.VolumeZMin),
		}
		return result(domain.StateInitiative, m.Gap, margins,
			fmt.Sprintf("drive %.2f >= %.2f, rotations %d <= %d, volume_z %.2f >= %.2f",
				m.DriveEnergy, cfg.DriveThreshold, m.RotationCount, cfg.RotationMax, m.VolumeZ, cfg.VolumeZMin))
	}

	// Rule 2, COMPRESSION: narrow range with a low-entropy path.
	if r.WidthATR <= cfg.CompressionWidth && m.PathEntropy <= cfg.CompressionEntropy {
		margins := []float64{
			marginBelow(r.WidthATR, cfg.CompressionWidth),
			marginBelow(m.PathEntropy, cfg.CompressionEntropy),
		}
		return result(domain.StateCompression, m.Gap, margins,
			fmt.Sprintf("width_atr %.2f <= %.2f, entropy %.2f <= %.2f",
				r.WidthATR, cfg.CompressionWidth, m.PathEntropy, cfg.CompressionEntropy))
	}

	// Rule 3, GAP_REVERSION: a large gap whose extension failed, evidenced by
	// price trading back inside the prior session's range. A gap that merely
	// stalled without retracing is not reversion evidence.
	if math.Abs(m.GapSize) >= cfg.LargeGap && m.GapRetraced {
		margins := []float64{margin(math.Abs(m.GapSize), cfg.LargeGap)}
		return result(domain.StateGapReversion, m.Gap, margins,
			fmt.Sprintf("gap %.2f (|gap| >= %.2f) retraced into prior range", m.GapSize, cfg.LargeGap))
	}

	// Rule 4, BALANCED: rotational trade on unremarkable volume.
	if m.RotationCount >= cfg.BalanceRotationMin && math.Abs(m.VolumeZ) <= cfg.BalanceVolumeZBand {
		margins := []float64{
			marginInt(m.RotationCount, cfg.BalanceRotationMin),
			marginBelow(math.Abs(m.VolumeZ), cfg.BalanceVolumeZBand),
		}
		return result(domain.StateBalanced, m.Gap, margins,
			fmt.Sprintf("rotations %d >= %d, |volume_z| %.2f <= %.2f",
				m.RotationCount, cfg.BalanceRotationMin, math.Abs(m.VolumeZ), cfg.BalanceVolumeZBand))
	}

	// Rule 5, INVENTORY_FIX: extreme overnight inventory unwinding.
	if math.Abs(m.OvernightBias) >= cfg.InventoryExtreme && m.OpenReversion {
		margins := []float64{margin(math.Abs(m.OvernightBias), cfg.InventoryExtreme)}
		return result(domain.StateInventoryFix, m.Gap, margins,
			fmt.Sprintf("overnight bias %.2f with open reversion", m.OvernightBias))
	}

	return domain.StateClassification{
		State:      domain.StateMixed,
		Gap:        m.Gap,
		Confidence: 0.5,
		Reason:     "no posture rule matched",
	}
}

// result builds a classification whose confidence reflects the tightest
// threshold margin of the matched rule: values near a boundary score near
// 0.5, values deep inside the rule approach 1.
func result(state domain.AuctionState, gap domain.GapClass, margins []float64, reason string) domain.StateClassification {
	m := math.Inf(1)
	for _, v := range margins {
		if v < m {
			m = v
		}
	}
	conf := 1.0 / (1.0 + math.Exp(-confidenceSlope*m))
	return domain.StateClassification{State: state, Gap: gap, Confidence: conf, Reason: reason}
}

// margin is the normalized distance of value above its floor threshold.
func margin(value, threshold float64) float64 {
	if threshold == 0 {
		return value
	}
	return (value - threshold) / math.Abs(threshold)
}

// marginBelow is the normalized distance of value below its ceiling.
func marginBelow(value, ceiling float64) float64 {
	if ceiling == 0 {
		return -value
	}
	return (ceiling - value) / math.Abs(ceiling)
}

// marginInt is margin for integer counts, normalized by the threshold with a
// floor of one to avoid division blowups at small thresholds.
func marginInt(larger, smaller int) float64 {
	den := larger
	if den < 1 {
		den = 1
	}
	return float64(larger-smaller) / float64(den)
}
