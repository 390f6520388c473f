package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/baalimago/chatmux/internal/ratelimit"
	_ "modernc.org/sqlite"
)

type DB struct {
	db *sql.DB
}

// NewDB opens the sqlite database at dsn, for example ':memory:' or a file
// path.
func NewDB(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One writer at a time, and every ':memory:' connection is its own db
	db.SetMaxOpenConns(1)
	return &DB{db: db}, nil
}

func (d *DB) EnsureUsageTable(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS usage_record (
		user_id       TEXT    NOT NULL,
		model_id      TEXT    NOT NULL,
		request_count INTEGER NOT NULL,
		reset_time    BIGINT  NOT NULL,
		PRIMARY KEY (user_id, model_id)
	)`)
	return err
}

func (d *DB) Increment(ctx context.Context, key ratelimit.Key, now time.Time, window time.Duration) (ratelimit.UsageRecord, error) {
	stmt := `INSERT INTO usage_record (user_id, model_id, request_count, reset_time)
	         VALUES (?1, ?2, 1, ?3)
	         ON CONFLICT (user_id, model_id) DO UPDATE SET
	           request_count = CASE WHEN usage_record.reset_time <= ?4 THEN 1 ELSE usage_record.request_count + 1 END,
	           reset_time    = CASE WHEN usage_record.reset_time <= ?4 THEN excluded.reset_time ELSE usage_record.reset_time END
	         RETURNING request_count, reset_time`
	var count int
	var resetMs int64
	err := d.db.QueryRowContext(ctx, stmt, key.UserID, key.ModelID, now.Add(window).UnixMilli(), now.UnixMilli()).
		Scan(&count, &resetMs)
	if err != nil {
		return ratelimit.UsageRecord{}, err
	}
	return ratelimit.UsageRecord{Count: count, ResetTime: time.UnixMilli(resetMs).UTC()}, nil
}

func (d *DB) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM usage_record WHERE reset_time <= ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (d *DB) Close() error {
	return d.db.Close()
}
