package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pump-cycle-bot/internal/domain"
	"pump-cycle-bot/internal/storage"
)

// ProfitStore implements storage.ProfitStore using PostgreSQL.
type ProfitStore struct {
	pool *Pool
}

// NewProfitStore creates a new ProfitStore.
func NewProfitStore(pool *Pool) *ProfitStore {
	return &ProfitStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ProfitStore = (*ProfitStore)(nil)

const profitColumns = `
	entry_id, session_id, cycle_id, token_address,
	profit_lamports, initial_balance, final_balance,
	reason, recorded_at
`

// Insert adds a record. Returns ErrDuplicateKey if entry_id exists.
func (s *ProfitStore) Insert(ctx context.Context, r *domain.ProfitRecord) error {
	if r == nil || r.EntryID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO profit_entries (` + profitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		r.EntryID, r.SessionID, int64(r.CycleID), r.TokenAddress,
		r.Profit, int64(r.InitialBalance), int64(r.FinalBalance),
		string(r.Reason), r.Timestamp.UTC(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert profit entry: %w", err)
	}
	return nil
}

// GetBySession retrieves all records of a session, ordered by cycle id ASC.
func (s *ProfitStore) GetBySession(ctx context.Context, sessionID string) ([]*domain.ProfitRecord, error) {
	query := `
		SELECT ` + profitColumns + `
		FROM profit_entries
		WHERE session_id = $1
		ORDER BY cycle_id ASC, entry_id ASC
	`

	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get profit entries by session: %w", err)
	}
	defer rows.Close()

	return scanProfitRecords(rows)
}

// GetByTimeRange retrieves records with timestamp in [start, end], ordered by timestamp ASC.
func (s *ProfitStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.ProfitRecord, error) {
	query := `
		SELECT ` + profitColumns + `
		FROM profit_entries
		WHERE recorded_at >= $1 AND recorded_at <= $2
		ORDER BY recorded_at ASC, entry_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("get profit entries by time range: %w", err)
	}
	defer rows.Close()

	return scanProfitRecords(rows)
}

// Total returns the sum of all recorded profits.
func (s *ProfitStore) Total(ctx context.Context) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(profit_lamports), 0)::BIGINT FROM profit_entries`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum profit entries: %w", err)
	}
	return total, nil
}

// scanProfitRecords scans multiple rows into a slice of ProfitRecord.
func scanProfitRecords(rows pgx.Rows) ([]*domain.ProfitRecord, error) {
	var records []*domain.ProfitRecord

	for rows.Next() {
		var (
			r                       domain.ProfitRecord
			cycleID, initial, final int64
			reason                  string
		)
		err := rows.Scan(
			&r.EntryID, &r.SessionID, &cycleID, &r.TokenAddress,
			&r.Profit, &initial, &final,
			&reason, &r.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan profit entry row: %w", err)
		}
		r.CycleID = uint64(cycleID)
		r.InitialBalance = uint64(initial)
		r.FinalBalance = uint64(final)
		r.Reason = domain.LiquidationReason(reason)
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profit entry rows: %w", err)
	}

	return records, nil
}
