package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/config"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/feed"
)

func writeFeedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	var b strings.Builder
	b.WriteString("ts,open,high,low,close,volume\n")
	for _, bar := range initiativeBars() {
		fmt.Fprintf(&b, "%s,%g,%g,%g,%g,%g\n",
			bar.Ts.Format(time.RFC3339), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
	}
	if err := os.WriteFile(filepath.Join(dir, "ESH4_bars.csv"), []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	sessions := "open,close,prior_high,prior_low,prior_close,overnight_mid,atr,ref_volume_mean,ref_volume_std\n" +
		"2024-03-04T09:30:00Z,2024-03-04T16:00:00Z,5010,4990,5000,5001,25,1000,200\n"
	if err := os.WriteFile(filepath.Join(dir, "ESH4_sessions.csv"), []byte(sessions), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func testRunnerConfig(dir string) *config.Config {
	cfg := config.Defaults()
	cfg.Feed.Dir = dir
	cfg.Feed.Instruments = []string{"ESH4"}
	cfg.Engine.RunKey = "replay-check"
	return &cfg
}

func TestRunnerEndToEnd(t *testing.T) {
	cfg := testRunnerConfig(writeFeedDir(t))
	logger := testLogger()
	r := NewRunner(cfg, feed.NewLoader(cfg.Feed, logger), nil, nil, nil, logger)

	rs, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rs.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(rs.Records))
	}
	if len(rs.Sessions) != 1 || !rs.Sessions[0].Tradeable {
		t.Fatalf("sessions = %+v", rs.Sessions)
	}
	rec := rs.Records[0]
	if want := len(rec.Partials) + 1; len(rs.Equity) != want {
		t.Fatalf("equity points = %d, want %d (one per partial fill plus the exit)", len(rs.Equity), want)
	}
	if got := rs.Equity[0].Ts; !got.Equal(rec.Partials[0].Time) {
		t.Fatalf("first equity point at %v, want the first partial fill %v", got, rec.Partials[0].Time)
	}
	if rs.Equity[0].CumR != rec.Partials[0].Fraction*rec.Partials[0].R*rec.SizeFraction {
		t.Fatalf("first equity point %v does not match the banked partial", rs.Equity[0].CumR)
	}
	if tail := rs.Equity[len(rs.Equity)-1]; tail.CumR != rs.TotalR() {
		t.Fatalf("equity end %v != total %v", tail.CumR, rs.TotalR())
	}
	if rs.Records[0].RunID != rs.RunID {
		t.Fatal("record not stamped with the run id")
	}
}

func TestRunnerReplayIsByteIdentical(t *testing.T) {
	dir := writeFeedDir(t)

	run := func() (string, []string, float64) {
		cfg := testRunnerConfig(dir)
		logger := testLogger()
		r := NewRunner(cfg, feed.NewLoader(cfg.Feed, logger), nil, nil, nil, logger)
		rs, err := r.Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		ids := make([]string, 0, len(rs.Records))
		for _, rec := range rs.Records {
			ids = append(ids, rec.ID)
		}
		return rs.RunID, ids, rs.TotalR()
	}

	runID1, ids1, total1 := run()
	runID2, ids2, total2 := run()

	if runID1 != runID2 {
		t.Fatalf("run ids differ: %s vs %s", runID1, runID2)
	}
	if total1 != total2 {
		t.Fatalf("totals differ: %v vs %v", total1, total2)
	}
	if len(ids1) != len(ids2) {
		t.Fatalf("record counts differ: %d vs %d", len(ids1), len(ids2))
	}
	for i := range ids1 {
		if ids1[i] != ids2[i] {
			t.Fatalf("record %d id differs: %s vs %s", i, ids1[i], ids2[i])
		}
	}
}

func TestRunnerCancelledContext(t *testing.T) {
	cfg := testRunnerConfig(writeFeedDir(t))
	logger := testLogger()
	r := NewRunner(cfg, feed.NewLoader(cfg.Feed, logger), nil, nil, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Run(ctx); err == nil {
		t.Fatal("expected an error from a cancelled context")
	}
}
