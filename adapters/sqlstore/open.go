package sqlstore

import (
	"context"

	"chatintent/internal/config"
	"chatintent/internal/errors"
	"chatintent/internal/migration"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Open connects to the run registry described by cfg and runs migrations.
// Driver "none" is rejected here; callers skip the registry instead.
func Open(ctx context.Context, cfg config.StorageConfig) (*sqlx.DB, error) {
	var driverName string
	switch cfg.Driver {
	case "sqlite":
		driverName = "sqlite"
	case "postgres":
		driverName = "postgres"
	default:
		return nil, errors.Configuration("unsupported storage driver %q", cfg.Driver)
	}

	db, err := sqlx.ConnectContext(ctx, driverName, cfg.DSN)
	if err != nil {
		return nil, errors.DatabaseError("failed to connect to run registry", err)
	}

	if cfg.Driver == "sqlite" {
		// sqlite serializes writers; one connection also keeps in-memory
		// databases alive for the life of the pool
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, errors.DatabaseError("failed to enable foreign keys", err)
		}
	}

	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
