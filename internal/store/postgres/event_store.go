package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// InsertEvents appends a run's governance events.
func (s *EventStore) InsertEvents(ctx context.Context, runID string, events []domain.GovernanceEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO governance_events (run_id, ts, instrument, kind, detail)
		VALUES ($1, $2, $3, $4, $5)`
	for _, ev := range events {
		batch.Queue(query, runID, ev.Ts, ev.Instrument, string(ev.Kind), ev.Detail)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert event batch item %d: %w", i, err)
		}
	}
	return nil
}
