package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Store persists an audit trail of pipeline runs in Postgres. The pipeline
// itself never depends on it; a write failure is logged by the caller and the
// request still succeeds.
type Store struct {
	DB *sql.DB
}

// ValidationRecord is one audited pipeline run.
type ValidationRecord struct {
	ID           string    `json:"id"`
	Fingerprint  string    `json:"fingerprint"`
	IsValid      bool      `json:"is_valid"`
	ErrorCount   int       `json:"error_count"`
	FlightNumber *string   `json:"flight_number,omitempty"`
	Verified     *bool     `json:"verified,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// RecordValidation inserts one audit row and returns its id.
func (s *Store) RecordValidation(ctx context.Context, rec ValidationRecord) (string, error) {
	id := uuid.NewString()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO validations (id, fingerprint, is_valid, error_count, flight_number, verified, duration_ms, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())`,
		id, rec.Fingerprint, rec.IsValid, rec.ErrorCount, rec.FlightNumber, rec.Verified, rec.DurationMS)
	if err != nil {
		return "", err
	}
	return id, nil
}

// RecentValidations lists the newest audit rows, most recent first.
func (s *Store) RecentValidations(ctx context.Context, limit int) ([]ValidationRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, fingerprint, is_valid, error_count, flight_number, verified, duration_ms, created_at
		 FROM validations ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ValidationRecord
	for rows.Next() {
		var rec ValidationRecord
		if err := rows.Scan(&rec.ID, &rec.Fingerprint, &rec.IsValid, &rec.ErrorCount, &rec.FlightNumber, &rec.Verified, &rec.DurationMS, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
