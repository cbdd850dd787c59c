package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	consumption "tariffwatch/internal/consumption/domain"
)

const defaultReadingsTable = "meter_readings"

// ReadingRepository reads and writes meter history in Postgres.
type ReadingRepository struct {
	db    *sql.DB
	table string
}

// Option configures the repository.
type Option func(*ReadingRepository)

// WithTable overrides the readings table name.
func WithTable(table string) Option {
	return func(r *ReadingRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewReadingRepository constructs a repository.
func NewReadingRepository(db *sql.DB, opts ...Option) *ReadingRepository {
	r := &ReadingRepository{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadingsBetween returns readings in [from, to] plus the last one before
// from, ordered by time.
func (r *ReadingRepository) ReadingsBetween(ctx context.Context, meterID string, from, to time.Time) ([]consumption.MeterReading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if meterID == "" {
		return nil, errors.New("reading repo: empty meter id")
	}
	query := fmt.Sprintf(`
SELECT read_at, value FROM (
	(SELECT read_at, value FROM %[1]s
	 WHERE meter_id = $1 AND read_at < $2
	 ORDER BY read_at DESC LIMIT 1)
	UNION ALL
	(SELECT read_at, value FROM %[1]s
	 WHERE meter_id = $1 AND read_at >= $2 AND read_at <= $3)
) r
ORDER BY read_at`, r.table)

	rows, err := r.db.QueryContext(ctx, query, meterID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []consumption.MeterReading
	for rows.Next() {
		var reading consumption.MeterReading
		if err := rows.Scan(&reading.At, &reading.Value); err != nil {
			return nil, err
		}
		reading.At = reading.At.UTC()
		out = append(out, reading)
	}
	return out, rows.Err()
}

// Append upserts readings by (meter_id, read_at).
func (r *ReadingRepository) Append(ctx context.Context, meterID string, readings []consumption.MeterReading) error {
	if r == nil || r.db == nil {
		return errors.New("reading repo: nil db")
	}
	if meterID == "" {
		return errors.New("reading repo: empty meter id")
	}
	if len(readings) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (meter_id, read_at, value)
VALUES ($1, $2, $3)
ON CONFLICT (meter_id, read_at)
DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, r.table)
	for _, reading := range readings {
		if _, err := tx.ExecContext(ctx, query, meterID, reading.At.UTC(), reading.Value); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Count returns the number of stored readings.
func (r *ReadingRepository) Count(ctx context.Context) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("reading repo: nil db")
	}
	var count int64
	err := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", r.table)).Scan(&count)
	return count, err
}
