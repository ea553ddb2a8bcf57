package server

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/safebite/safebite-api/auth"
)

// OpenDB connects to driver ("sqlite" or "postgres") and applies the
// embedded migrations.
func OpenDB(ctx context.Context, driver, dsn string) (*bun.DB, error) {
	var db *bun.DB

	switch driver {
	case "sqlite":
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// sqlite serializes writers; one connection avoids SQLITE_BUSY
		// and keeps in-memory databases alive.
		sqldb.SetMaxOpenConns(1)
		sqldb.SetConnMaxLifetime(0)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case "postgres":
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	if err := auth.Migrate(ctx, db.DB, driver); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
