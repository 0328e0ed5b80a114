package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	// database/sql drivers: "pgx" for postgres, "sqlite" for local files
	// and in-memory stores.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config selects the store engine. Driver is "postgres" (DSN is a pgx URL)
// or "sqlite" (DSN is a file path or ":memory:").
type Config struct {
	Driver      string
	DSN         string
	MaxConns    int
	DialTimeout time.Duration
}

// Open connects, configures the pool, and pings within DialTimeout.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 10
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}

	driverName := ""
	switch cfg.Driver {
	case DriverPostgres:
		driverName = "pgx"
	case DriverSQLite:
		driverName = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported db driver: %q", cfg.Driver)
	}

	logger.Info("connecting to database", "driver", cfg.Driver)
	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		logger.Error("failed to open database", "driver", cfg.Driver, "error", err)
		return nil, err
	}

	if cfg.Driver == DriverSQLite {
		// SQLite is a single-writer engine, and pooled connections would
		// each see a distinct ":memory:" database. One connection keeps
		// the foreign_keys pragma effective for every statement too.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		logger.Error("database ping failed", "driver", cfg.Driver, "error", err)
		_ = db.Close()
		return nil, err
	}

	if cfg.Driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	logger.Info("successfully connected to database")
	return db, nil
}

// Migrate applies the schema. Statements are written once with portable
// SQL and a per-driver id column clause.
func Migrate(ctx context.Context, db *sql.DB, driver string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	idCol := "INTEGER PRIMARY KEY AUTOINCREMENT"
	ts := "TIMESTAMP DEFAULT CURRENT_TIMESTAMP"
	if driver == DriverPostgres {
		idCol = "BIGSERIAL PRIMARY KEY"
		ts = "TIMESTAMPTZ NOT NULL DEFAULT now()"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS employees (
			id %s,
			name TEXT NOT NULL,
			created_at %s
		)`, idCol, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS receipt_types (
			id %s,
			name TEXT NOT NULL,
			description TEXT,
			created_at %s
		)`, idCol, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS receipt_fields (
			id %s,
			receipt_type_id BIGINT NOT NULL REFERENCES receipt_types(id),
			field_name TEXT NOT NULL,
			field_description TEXT,
			is_required BOOLEAN NOT NULL DEFAULT false,
			created_at %s
		)`, idCol, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS receipts (
			id %s,
			image_path TEXT NOT NULL,
			receipt_type_id BIGINT NOT NULL REFERENCES receipt_types(id),
			data TEXT,
			employee_id BIGINT REFERENCES employees(id),
			created_at %s
		)`, idCol, ts),
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			logger.Error("migration statement failed", "error", err,
				"stmt", strings.Fields(stmt)[5])
			return fmt.Errorf("migrate: %w", err)
		}
	}
	logger.Info("database schema up to date")
	return nil
}
