// Package db opens the networked usage counter stores.
package db

import (
	"context"
	"fmt"

	"github.com/baalimago/chatmux/internal/ratelimit"
	"github.com/baalimago/chatmux/internal/ratelimit/db/mysql"
	"github.com/baalimago/chatmux/internal/ratelimit/db/postgres"
	"github.com/baalimago/chatmux/internal/ratelimit/db/sqlite"
)

// Store is a CounterStore backed by a database connection.
type Store interface {
	ratelimit.CounterStore
	ratelimit.Sweeper
	EnsureUsageTable(ctx context.Context) error
	Close() error
}

// NewStore opens the store of driver and creates the usage table if
// missing. Driver is one of sqlite, postgres or mysql.
func NewStore(ctx context.Context, driver, dsn string) (Store, error) {
	var s Store
	var err error
	switch driver {
	case "sqlite":
		s, err = sqlite.NewDB(dsn)
	case "postgres":
		s, err = postgres.NewDB(dsn)
	case "mysql":
		s, err = mysql.NewDB(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver: '%v'", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.EnsureUsageTable(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to ensure usage table: %w", err)
	}
	return s, nil
}
