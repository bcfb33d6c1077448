// Package feed loads historical minute bars and session metadata from disk.
// Each instrument contributes two CSV files under the feed directory:
// <instrument>_bars.csv with ts,open,high,low,close,volume rows and
// <instrument>_sessions.csv with one row of session metadata per trading day.
package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/config"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

// Loader reads and validates instrument data files.
type Loader struct {
	cfg    config.FeedConfig
	logger *slog.Logger
}

func NewLoader(cfg config.FeedConfig, logger *slog.Logger) *Loader {
	return &Loader{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "feed")),
	}
}

// Instruments returns the configured instrument list.
func (l *Loader) Instruments() []string { return l.cfg.Instruments }

// LoadInstrument reads the bar and session files for one instrument and
// returns its sessions in date order. Bars are bucketed into the session
// whose open/close window contains them; bars outside every window are
// dropped. Sessions that end up with no bars are omitted with a warning so
// a data gap skips a day instead of failing the run.
func (l *Loader) LoadInstrument(instrument string) ([]domain.Session, error) {
	infos, err := l.readSessions(instrument)
	if err != nil {
		return nil, err
	}
	bars, err := l.readBars(instrument)
	if err != nil {
		return nil, err
	}

	sessions := make([]domain.Session, 0, len(infos))
	for _, info := range infos {
		s := domain.Session{Info: info}
		for _, b := range bars {
			if !b.Ts.Before(info.Open) && b.Ts.Before(info.Close) {
				s.Bars = append(s.Bars, b)
			}
		}
		if len(s.Bars) == 0 {
			l.logger.Warn("session has no bars, skipping",
				slog.String("instrument", instrument),
				slog.String("date", info.Date.Format("2006-01-02")),
			)
			continue
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("feed: validate %s %s: %w", instrument, info.Date.Format("2006-01-02"), err)
		}
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Info.Date.Before(sessions[j].Info.Date)
	})

	l.logger.Info("instrument loaded",
		slog.String("instrument", instrument),
		slog.Int("sessions", len(sessions)),
		slog.Int("bars", len(bars)),
	)
	return sessions, nil
}

func (l *Loader) readBars(instrument string) ([]domain.Bar, error) {
	path := filepath.Join(l.cfg.Dir, instrument+"_bars.csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: open bars: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 6

	var bars []domain.Bar
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("feed: read %s: %w", path, err)
		}
		line++
		if line == 1 && rec[0] == "ts" {
			continue
		}
		bar, err := parseBar(rec)
		if err != nil {
			return nil, fmt.Errorf("feed: %s line %d: %w", path, line, err)
		}
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Ts.Before(bars[j].Ts) })
	return bars, nil
}

func (l *Loader) readSessions(instrument string) ([]domain.SessionInfo, error) {
	path := filepath.Join(l.cfg.Dir, instrument+"_sessions.csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: open sessions: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 9

	var infos []domain.SessionInfo
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("feed: read %s: %w", path, err)
		}
		line++
		if line == 1 && rec[0] == "open" {
			continue
		}
		info, err := parseSessionInfo(instrument, rec)
		if err != nil {
			return nil, fmt.Errorf("feed: %s line %d: %w", path, line, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func parseBar(rec []string) (domain.Bar, error) {
	ts, err := time.Parse(time.RFC3339, rec[0])
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parse ts %q: %w", rec[0], err)
	}
	vals, err := parseFloats(rec[1:6])
	if err != nil {
		return domain.Bar{}, err
	}
	return domain.Bar{
		Ts:     ts,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

// Session rows: open,close,prior_high,prior_low,prior_close,overnight_mid,
// atr,ref_volume_mean,ref_volume_std.
func parseSessionInfo(instrument string, rec []string) (domain.SessionInfo, error) {
	open, err := time.Parse(time.RFC3339, rec[0])
	if err != nil {
		return domain.SessionInfo{}, fmt.Errorf("parse open %q: %w", rec[0], err)
	}
	close_, err := time.Parse(time.RFC3339, rec[1])
	if err != nil {
		return domain.SessionInfo{}, fmt.Errorf("parse close %q: %w", rec[1], err)
	}
	if !close_.After(open) {
		return domain.SessionInfo{}, fmt.Errorf("session close %s not after open %s", rec[1], rec[0])
	}
	vals, err := parseFloats(rec[2:9])
	if err != nil {
		return domain.SessionInfo{}, err
	}
	return domain.SessionInfo{
		Instrument:    instrument,
		Date:          time.Date(open.Year(), open.Month(), open.Day(), 0, 0, 0, 0, time.UTC),
		Open:          open,
		Close:         close_,
		PriorHigh:     vals[0],
		PriorLow:      vals[1],
		PriorClose:    vals[2],
		OvernightMid:  vals[3],
		ATR:           vals[4],
		RefVolumeMean: vals[5],
		RefVolumeStd:  vals[6],
	}, nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", f, err)
		}
		out[i] = v
	}
	return out, nil
}
