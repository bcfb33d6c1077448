package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

// RecordStore implements domain.RecordStore using PostgreSQL.
type RecordStore struct {
	pool *pgxpool.Pool
}

// NewRecordStore creates a RecordStore backed by the given connection pool.
func NewRecordStore(pool *pgxpool.Pool) *RecordStore {
	return &RecordStore{pool: pool}
}

const recordSelectCols = `id, run_id, instrument, tactic, session_date, direction,
	entry_time, entry_price, exit_time, exit_price, exit_reason,
	realized_r, max_favorable_r, max_adverse_r, size_fraction,
	partials, salvaged, state_at_entry, confidence`

// InsertRecords inserts closed trade records using a pgx batch. Replays of
// the same run produce identical primary keys and are skipped via ON
// CONFLICT DO NOTHING.
func (s *RecordStore) InsertRecords(ctx context.Context, records []domain.TradeRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO trade_records (
			id, run_id, instrument, tactic, session_date, direction,
			entry_time, entry_price, exit_time, exit_price, exit_reason,
			realized_r, max_favorable_r, max_adverse_r, size_fraction,
			partials, salvaged, state_at_entry, confidence
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18, $19
		) ON CONFLICT (run_id, id) DO NOTHING`

	for i, r := range records {
		partials, err := json.Marshal(r.Partials)
		if err != nil {
			return fmt.Errorf("postgres: marshal partials for record %d: %w", i, err)
		}
		batch.Queue(query,
			r.ID, r.RunID, r.Instrument, r.Tactic, r.SessionDate, r.Direction.String(),
			r.EntryTime, r.EntryPrice, r.ExitTime, r.ExitPrice, r.ExitReason.String(),
			r.RealizedR, r.MaxFavorableR, r.MaxAdverseR, r.SizeFraction,
			partials, r.Salvaged, r.StateAtEntry.String(), r.Confidence,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert record batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByRun returns a run's records in exit-time order.
func (s *RecordStore) ListByRun(ctx context.Context, runID string) ([]domain.TradeRecord, error) {
	query := `SELECT ` + recordSelectCols + ` FROM trade_records WHERE run_id = $1 ORDER BY exit_time ASC, id ASC`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list records by run: %w", err)
	}
	defer rows.Close()

	var records []domain.TradeRecord
	for rows.Next() {
		var (
			r         domain.TradeRecord
			direction string
			reason    string
			state     string
			partials  []byte
		)
		if err := rows.Scan(
			&r.ID, &r.RunID, &r.Instrument, &r.Tactic, &r.SessionDate, &direction,
			&r.EntryTime, &r.EntryPrice, &r.ExitTime, &r.ExitPrice, &reason,
			&r.RealizedR, &r.MaxFavorableR, &r.MaxAdverseR, &r.SizeFraction,
			&partials, &r.Salvaged, &state, &r.Confidence,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan record: %w", err)
		}
		if err := json.Unmarshal(partials, &r.Partials); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal partials: %w", err)
		}
		r.Direction = parseDirection(direction)
		r.ExitReason = parseExitReason(reason)
		r.StateAtEntry = parseAuctionState(state)
		records = append(records, r)
	}
	return records, rows.Err()
}

func parseDirection(s string) domain.Direction {
	if s == "SHORT" {
		return domain.Short
	}
	return domain.Long
}

func parseExitReason(s string) domain.ExitReason {
	switch s {
	case "TARGET":
		return domain.ExitTarget
	case "SALVAGE":
		return domain.ExitSalvage
	case "TIME":
		return domain.ExitTime
	case "END_OF_SESSION":
		return domain.ExitEndOfSession
	case "GOVERNANCE":
		return domain.ExitGovernance
	default:
		return domain.ExitStop
	}
}

func parseAuctionState(s string) domain.AuctionState {
	switch s {
	case "INITIATIVE":
		return domain.StateInitiative
	case "BALANCED":
		return domain.StateBalanced
	case "COMPRESSION":
		return domain.StateCompression
	case "GAP_REVERSION":
		return domain.StateGapReversion
	case "INVENTORY_FIX":
		return domain.StateInventoryFix
	default:
		return domain.StateMixed
	}
}
