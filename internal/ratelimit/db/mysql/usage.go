package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/baalimago/chatmux/internal/ratelimit"
	"github.com/go-sql-driver/mysql"
)

type DB struct {
	db *sql.DB
}

func NewDB(dsn string) (*DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mysql dsn: %w", err)
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql connector: %w", err)
	}
	return &DB{db: sql.OpenDB(connector)}, nil
}

func (d *DB) EnsureUsageTable(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS usage_record (
		user_id       VARCHAR(255) NOT NULL,
		model_id      VARCHAR(255) NOT NULL,
		request_count INT          NOT NULL,
		reset_time    BIGINT       NOT NULL,
		PRIMARY KEY (user_id, model_id)
	)`)
	return err
}

// Increment upserts and reads back within one transaction, the row stays
// locked in between. request_count is assigned before reset_time so both
// conditions see the old reset_time.
func (d *DB) Increment(ctx context.Context, key ratelimit.Key, now time.Time, window time.Duration) (ratelimit.UsageRecord, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return ratelimit.UsageRecord{}, err
	}
	defer tx.Rollback()

	nowMs := now.UnixMilli()
	_, err = tx.ExecContext(ctx, `INSERT INTO usage_record (user_id, model_id, request_count, reset_time)
	         VALUES (?, ?, 1, ?)
	         ON DUPLICATE KEY UPDATE
	           request_count = IF(reset_time <= ?, 1, request_count + 1),
	           reset_time    = IF(reset_time <= ?, VALUES(reset_time), reset_time)`,
		key.UserID, key.ModelID, now.Add(window).UnixMilli(), nowMs, nowMs)
	if err != nil {
		return ratelimit.UsageRecord{}, err
	}
	var count int
	var resetMs int64
	err = tx.QueryRowContext(ctx, `SELECT request_count, reset_time FROM usage_record WHERE user_id = ? AND model_id = ?`,
		key.UserID, key.ModelID).Scan(&count, &resetMs)
	if err != nil {
		return ratelimit.UsageRecord{}, err
	}
	if err := tx.Commit(); err != nil {
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
