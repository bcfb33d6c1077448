package auction

import (
	"testing"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/config"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

func testAuctionConfig() config.AuctionConfig {
	return config.AuctionConfig{
		DriveThreshold:     0.55,
		RotationMax:        2,
		VolumeZMin:         1.0,
		CompressionWidth:   0.18,
		CompressionEntropy: 0.45,
		SmallGap:           0.10,
		LargeGap:           0.35,
		BalanceRotationMin: 4,
		BalanceVolumeZBand: 0.75,
		InventoryExtreme:   0.60,
	}
}

func TestClassifyInitiative(t *testing.T) {
	cfg := testAuctionConfig()
	m := domain.AuctionMetrics{DriveEnergy: 0.75, RotationCount: 1, VolumeZ: 1.5, Frozen: true}
	r := domain.OpeningRange{WidthATR: 0.5, Valid: true}

	got := Classify(cfg, m, r)
	if got.State != domain.StateInitiative {
		t.Fatalf("state = %s, want INITIATIVE", got.State)
	}
	if got.Confidence <= 0.5 {
		t.Fatalf("confidence = %.3f, want > 0.5", got.Confidence)
	}
	if got.Reason == "" {
		t.Fatal("expected a contributing reason")
	}
}

func TestClassifyConfidenceShrinksNearBoundary(t *testing.T) {
	cfg := testAuctionConfig()
	r := domain.OpeningRange{WidthATR: 0.5}

	deep := Classify(cfg, domain.AuctionMetrics{DriveEnergy: 0.95, RotationCount: 0, VolumeZ: 3.0}, r)
	edge := Classify(cfg, domain.AuctionMetrics{DriveEnergy: 0.56, RotationCount: 2, VolumeZ: 1.01}, r)

	if deep.State != domain.StateInitiative || edge.State != domain.StateInitiative {
		t.Fatalf("both inputs should classify INITIATIVE, got %s / %s", deep.State, edge.State)
	}
	if edge.Confidence >= deep.Confidence {
		t.Fatalf("boundary confidence %.3f should be below deep confidence %.3f", edge.Confidence, deep.Confidence)
	}
}

func TestClassifyPriorityOrder(t *testing.T) {
	cfg := testAuctionConfig()

	// Metrics satisfying both INITIATIVE and COMPRESSION must resolve to
	// INITIATIVE (rule 1 outranks rule 2).
	m := domain.AuctionMetrics{DriveEnergy: 0.8, RotationCount: 0, VolumeZ: 1.5, PathEntropy: 0.1}
	r := domain.OpeningRange{WidthATR: 0.1}
	if got := Classify(cfg, m, r); got.State != domain.StateInitiative {
		t.Fatalf("state = %s, want INITIATIVE to win the priority tie", got.State)
	}
}

func TestClassifyGapReversion(t *testing.T) {
	cfg := testAuctionConfig()
	m := domain.AuctionMetrics{Gap: domain.GapLargeDown, GapSize: -0.5, GapRetraced: true, VolumeZ: 0.9, RotationCount: 1}
	r := domain.OpeningRange{WidthATR: 0.4}
	got := Classify(cfg, m, r)
	if got.State != domain.StateGapReversion {
		t.Fatalf("state = %s, want GAP_REVERSION", got.State)
	}
	if got.Gap != domain.GapLargeDown {
		t.Fatalf("classification gap = %s, want LARGE_DOWN", got.Gap)
	}

	// A gap that merely stalled, neither retracing nor extending, is not
	// reversion evidence.
	m.GapRetraced = false
	if got := Classify(cfg, m, r); got.State == domain.StateGapReversion {
		t.Fatal("non-retraced gap must not classify GAP_REVERSION")
	}

	// Nor is a gap that extended away.
	m.GapExtended = true
	if got := Classify(cfg, m, r); got.State == domain.StateGapReversion {
		t.Fatal("extended gap must not classify GAP_REVERSION")
	}
}

func TestClassifyBalancedAndInventory(t *testing.T) {
	cfg := testAuctionConfig()
	r := domain.OpeningRange{WidthATR: 0.4}

	bal := Classify(cfg, domain.AuctionMetrics{RotationCount: 6, VolumeZ: 0.2, PathEntropy: 0.9}, r)
	if bal.State != domain.StateBalanced {
		t.Fatalf("state = %s, want BALANCED", bal.State)
	}

	inv := Classify(cfg, domain.AuctionMetrics{
		RotationCount: 1, VolumeZ: -1.2, PathEntropy: 0.9,
		OvernightBias: 0.8, OpenReversion: true,
	}, r)
	if inv.State != domain.StateInventoryFix {
		t.Fatalf("state = %s, want INVENTORY_FIX", inv.State)
	}
}

func TestClassifyMixedFallthrough(t *testing.T) {
	cfg := testAuctionConfig()
	m := domain.AuctionMetrics{DriveEnergy: 0.2, RotationCount: 3, VolumeZ: 2.5, PathEntropy: 0.9}
	r := domain.OpeningRange{WidthATR: 0.5}

	got := Classify(cfg, m, r)
	if got.State != domain.StateMixed {
		t.Fatalf("state = %s, want MIXED", got.State)
	}
	if got.Confidence != 0.5 {
		t.Fatalf("mixed confidence = %.3f, want 0.5", got.Confidence)
	}
}
