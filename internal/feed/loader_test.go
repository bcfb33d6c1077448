package feed

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/config"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const sessionsCSV = `open,close,prior_high,prior_low,prior_close,overnight_mid,atr,ref_volume_mean,ref_volume_std
2024-03-04T09:30:00Z,2024-03-04T16:00:00Z,5010,4990,5000,5001,25,1000,200
2024-03-05T09:30:00Z,2024-03-05T16:00:00Z,5020,5000,5015,5012,25,1000,200
`

const barsCSV = `ts,open,high,low,close,volume
2024-03-04T09:30:00Z,5000,5004,4999,5003,1200
2024-03-04T09:31:00Z,5003,5006,5002,5005,1100
2024-03-05T09:30:00Z,5015,5018,5014,5017,900
2024-03-04T08:00:00Z,4990,4991,4989,4990,100
`

func newTestLoader(dir string) *Loader {
	return NewLoader(
		config.FeedConfig{Dir: dir, Instruments: []string{"ESH4"}},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestLoadInstrumentBucketsBarsBySession(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ESH4_sessions.csv", sessionsCSV)
	writeFile(t, dir, "ESH4_bars.csv", barsCSV)

	sessions, err := newTestLoader(dir).LoadInstrument("ESH4")
	if err != nil {
		t.Fatalf("LoadInstrument: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if len(sessions[0].Bars) != 2 {
		t.Fatalf("first session has %d bars, want 2 (pre-open bar must be dropped)", len(sessions[0].Bars))
	}
	if len(sessions[1].Bars) != 1 {
		t.Fatalf("second session has %d bars, want 1", len(sessions[1].Bars))
	}
	if sessions[0].Info.ATR != 25 {
		t.Fatalf("ATR = %v, want 25", sessions[0].Info.ATR)
	}
	if !sessions[0].Info.Date.Before(sessions[1].Info.Date) {
		t.Fatal("sessions out of date order")
	}
}

func TestLoadInstrumentSkipsEmptySession(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ESH4_sessions.csv", sessionsCSV)
	writeFile(t, dir, "ESH4_bars.csv", `ts,open,high,low,close,volume
2024-03-04T09:30:00Z,5000,5004,4999,5003,1200
`)

	sessions, err := newTestLoader(dir).LoadInstrument("ESH4")
	if err != nil {
		t.Fatalf("LoadInstrument: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want the empty one skipped", len(sessions))
	}
}

func TestLoadInstrumentRejectsCorruptBar(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ESH4_sessions.csv", sessionsCSV)
	// High below low.
	writeFile(t, dir, "ESH4_bars.csv", `ts,open,high,low,close,volume
2024-03-04T09:30:00Z,5000,4999,5004,5003,1200
`)

	_, err := newTestLoader(dir).LoadInstrument("ESH4")
	if err == nil {
		t.Fatal("expected a data integrity error")
	}
	var die *domain.DataIntegrityError
	if !errors.As(err, &die) {
		t.Fatalf("error type = %T (%v), want DataIntegrityError", err, err)
	}
}

func TestLoadInstrumentMissingFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ESH4_sessions.csv", sessionsCSV)

	_, err := newTestLoader(dir).LoadInstrument("ESH4")
	if err == nil {
		t.Fatal("expected an error for a missing bars file")
	}
}

func TestLoadInstrumentRejectsBadSessionWindow(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ESH4_sessions.csv", `open,close,prior_high,prior_low,prior_close,overnight_mid,atr,ref_volume_mean,ref_volume_std
2024-03-04T16:00:00Z,2024-03-04T09:30:00Z,5010,4990,5000,5001,25,1000,200
`)
	writeFile(t, dir, "ESH4_bars.csv", barsCSV)

	_, err := newTestLoader(dir).LoadInstrument("ESH4")
	if err == nil {
		t.Fatal("expected an error for close before open")
	}
}
