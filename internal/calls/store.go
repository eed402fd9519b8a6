package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"autodialer/pkg/utils"

	"github.com/google/uuid"
)

// Store is the persistence contract for call records.
//
// Update and Get report a missing record as (.., false, nil): callers treat
// out-of-band deletion as a benign no-op, never an error.
type Store interface {
	Create(ctx context.Context, number, message string) (Record, error)
	Get(ctx context.Context, id string) (Record, bool, error)
	Update(ctx context.Context, id string, status Status, fields UpdateFields) (bool, error)

	// Read-only views for the dashboard and CSV export.
	All(ctx context.Context) ([]Record, error)
	Snapshot(ctx context.Context, limit int) (DashboardSnapshot, error)

	// ResetStale fails records left in_progress by an earlier process exit.
	ResetStale(ctx context.Context) (int64, error)
}

// DashboardSnapshot is a consistent view of recent history plus per-status totals.
type DashboardSnapshot struct {
	Recent []Record       `json:"recent"`
	Counts map[Status]int `json:"counts"`
	Total  int            `json:"total"`
}

const staleErrorDetail = "call interrupted by process restart"

// PostgresStore persists call records in Postgres.
//
// Assumed table:
//
//	CREATE TABLE call_logs (
//	  id               TEXT PRIMARY KEY,
//	  number           TEXT NOT NULL,
//	  message          TEXT NOT NULL DEFAULT '',
//	  status           TEXT NOT NULL,
//	  duration_seconds INT,
//	  error_detail     TEXT,
//	  provider_call_id TEXT,
//	  created_at       TIMESTAMPTZ NOT NULL,
//	  updated_at       TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

func (s *PostgresStore) Create(ctx context.Context, number, message string) (Record, error) {
	now := s.clock().UTC()
	r := Record{
		ID:        uuid.NewString(),
		Number:    number,
		Message:   message,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	const q = `
INSERT INTO call_logs (id, number, message, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
	if _, err := s.db.ExecContext(ctx, q, r.ID, r.Number, r.Message, r.Status, r.CreatedAt, r.UpdatedAt); err != nil {
		return Record{}, err
	}
	return r, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, bool, error) {
	const q = `
SELECT id, number, message, status, duration_seconds, error_detail, provider_call_id, created_at, updated_at
FROM call_logs
WHERE id = $1
`
	var r Record
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&r.ID,
		&r.Number,
		&r.Message,
		&r.Status,
		&r.DurationSeconds,
		&r.ErrorDetail,
		&r.ProviderCallID,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return r, true, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, status Status, fields UpdateFields) (bool, error) {
	const q = `
UPDATE call_logs
SET status = $2,
    duration_seconds = COALESCE($3, duration_seconds),
    error_detail     = COALESCE($4, error_detail),
    provider_call_id = COALESCE($5, provider_call_id),
    updated_at       = $6
WHERE id = $1
`
	res, err := s.db.ExecContext(ctx, q,
		id,
		status,
		fields.DurationSeconds,
		fields.ErrorDetail,
		fields.ProviderCallID,
		s.clock().UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PostgresStore) All(ctx context.Context) ([]Record, error) {
	const q = `
SELECT id, number, message, status, duration_seconds, error_detail, provider_call_id, created_at, updated_at
FROM call_logs
ORDER BY created_at DESC
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Snapshot reads the recent records and per-status counts inside one
// read-only transaction so the dashboard never shows totals that disagree
// with the listed rows.
func (s *PostgresStore) Snapshot(ctx context.Context, limit int) (DashboardSnapshot, error) {
	if limit <= 0 {
		limit = 25
	}

	out := DashboardSnapshot{Counts: map[Status]int{}}
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx *sql.Tx) error {
		const recentQ = `
SELECT id, number, message, status, duration_seconds, error_detail, provider_call_id, created_at, updated_at
FROM call_logs
ORDER BY created_at DESC
LIMIT $1
`
		rows, err := tx.QueryContext(ctx, recentQ, limit)
		if err != nil {
			return err
		}
		recent, err := scanRecords(rows)
		rows.Close()
		if err != nil {
			return err
		}
		out.Recent = recent

		const countQ = `
SELECT status, COUNT(*)
FROM call_logs
GROUP BY status
`
		crows, err := tx.QueryContext(ctx, countQ)
		if err != nil {
			return err
		}
		defer crows.Close()
		for crows.Next() {
			var st Status
			var n int
			if err := crows.Scan(&st, &n); err != nil {
				return err
			}
			out.Counts[st] = n
			out.Total += n
		}
		return crows.Err()
	})
	if err != nil {
		return DashboardSnapshot{}, err
	}
	return out, nil
}

func (s *PostgresStore) ResetStale(ctx context.Context) (int64, error) {
	const q = `
UPDATE call_logs
SET status = $1, error_detail = $2, updated_at = $3
WHERE status = $4
`
	res, err := s.db.ExecContext(ctx, q, StatusFailed, staleErrorDetail, s.clock().UTC(), StatusInProgress)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.ID,
			&r.Number,
			&r.Message,
			&r.Status,
			&r.DurationSeconds,
			&r.ErrorDetail,
			&r.ProviderCallID,
			&r.CreatedAt,
			&r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
