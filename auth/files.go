package auth

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// goose keeps its base FS and dialect in package globals.
var migrateMu sync.Mutex

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// Migrate applies the embedded migrations for dialect, "sqlite" or
// "postgres".
func Migrate(ctx context.Context, db *sql.DB, dialect string) error {
	var gooseDialect string
	switch dialect {
	case "sqlite":
		gooseDialect = "sqlite3"
	case "postgres":
		gooseDialect = "postgres"
	default:
		return fmt.Errorf("unsupported migration dialect %q", dialect)
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "data/sql/migrations/"+dialect); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
