package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

// runLockTTL bounds how long a crashed process can block a keyed replay.
const runLockTTL = 30 * time.Minute

// SimulateMode runs the simulation and reports the summary without touching
// any persistence backend.
func (a *App) SimulateMode(ctx context.Context, deps *Dependencies) error {
	rs, err := a.simulate(ctx, deps)
	if err != nil {
		return err
	}
	a.report(ctx, deps, rs)
	return nil
}

// PersistMode runs the simulation and writes records and events to the
// database, plus the run summary to the cache when available.
func (a *App) PersistMode(ctx context.Context, deps *Dependencies) error {
	rs, err := a.simulate(ctx, deps)
	if err != nil {
		return err
	}
	if err := a.persist(ctx, deps, rs); err != nil {
		return err
	}
	a.report(ctx, deps, rs)
	return nil
}

// ArchiveMode runs the simulation, persists it, and uploads the full result
// set to object storage.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	rs, err := a.simulate(ctx, deps)
	if err != nil {
		return err
	}
	if err := a.persist(ctx, deps, rs); err != nil {
		return err
	}
	if err := deps.Archiver.ArchiveRun(ctx, *rs); err != nil {
		return fmt.Errorf("app: archive run %s: %w", rs.RunID, err)
	}
	a.logger.InfoContext(ctx, "run archived", slog.String("run_id", rs.RunID))
	a.report(ctx, deps, rs)
	return nil
}

// simulate executes the run, holding the replay lock when a keyed run can
// collide with another process.
func (a *App) simulate(ctx context.Context, deps *Dependencies) (*domain.ResultSet, error) {
	if deps.RunLock != nil && a.cfg.Engine.RunKey != "" {
		unlock, err := deps.RunLock.Acquire(ctx, a.cfg.Engine.RunKey, runLockTTL)
		if err != nil {
			return nil, fmt.Errorf("app: run lock: %w", err)
		}
		defer unlock()
	}

	rs, err := deps.Runner.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: run: %w", err)
	}
	return rs, nil
}

// persist writes the run to the configured database and cache.
func (a *App) persist(ctx context.Context, deps *Dependencies, rs *domain.ResultSet) error {
	if err := deps.RecordStore.InsertRecords(ctx, rs.Records); err != nil {
		return fmt.Errorf("app: persist records: %w", err)
	}
	if err := deps.EventStore.InsertEvents(ctx, rs.RunID, rs.Events); err != nil {
		return fmt.Errorf("app: persist events: %w", err)
	}

	if deps.RunCache != nil {
		lockouts := 0
		for _, ev := range rs.Events {
			if ev.Kind == domain.EventLockout {
				lockouts++
			}
		}
		summary := domain.RunSummary{
			RunID:      rs.RunID,
			FinishedAt: time.Now().UTC(),
			Trades:     len(rs.Records),
			Wins:       rs.Wins(),
			TotalR:     rs.TotalR(),
			Lockouts:   lockouts,
		}
		if err := deps.RunCache.PutSummary(ctx, summary); err != nil {
			// The cache is advisory, the database already has the run.
			a.logger.WarnContext(ctx, "summary cache write failed", slog.String("error", err.Error()))
		}
	}

	a.logger.InfoContext(ctx, "run persisted",
		slog.String("run_id", rs.RunID),
		slog.Int("records", len(rs.Records)),
		slog.Int("events", len(rs.Events)),
	)
	return nil
}

// report logs the run summary and pushes notifications.
func (a *App) report(ctx context.Context, deps *Dependencies, rs *domain.ResultSet) {
	a.logger.InfoContext(ctx, "run summary",
		slog.String("run_id", rs.RunID),
		slog.Int("trades", len(rs.Records)),
		slog.Int("wins", rs.Wins()),
		slog.Float64("total_r", rs.TotalR()),
		slog.Int("sessions", len(rs.Sessions)),
	)

	for _, ev := range rs.Events {
		if ev.Kind != domain.EventLockout {
			continue
		}
		if err := deps.Notifier.Lockout(ctx, ev); err != nil {
			a.logger.WarnContext(ctx, "lockout notification failed", slog.String("error", err.Error()))
		}
	}

	if err := deps.Notifier.RunFinished(ctx, *rs); err != nil {
		a.logger.WarnContext(ctx, "run notification failed", slog.String("error", err.Error()))
	}
}
