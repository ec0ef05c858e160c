package persistence

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/spec-kit/sla-ticket-service/internal/config"
)

// SQLite wraps a local database used when STORE_DRIVER=sqlite.
type SQLite struct {
	DB *sqlx.DB
}

// sqliteMigration holds a single schema migration with its target version.
type sqliteMigration struct {
	version int
	sql     string
}

// sqliteMigrations must be listed in ascending version order.
var sqliteMigrations = []sqliteMigration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS customers (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	email          TEXT NOT NULL DEFAULT '',
	aws_account_id TEXT UNIQUE,
	created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tickets (
	id                     TEXT PRIMARY KEY,
	customer_id            TEXT NOT NULL,
	title                  TEXT NOT NULL,
	description            TEXT NOT NULL DEFAULT '',
	priority               TEXT NOT NULL,
	status                 TEXT NOT NULL DEFAULT 'new',
	source                 TEXT NOT NULL DEFAULT 'web',
	assigned_to            TEXT,
	external_case_ref      TEXT,
	external_case_status   TEXT NOT NULL DEFAULT '',
	external_case_subject  TEXT NOT NULL DEFAULT '',
	external_case_severity TEXT NOT NULL DEFAULT '',
	external_event_ref     TEXT UNIQUE,
	sla_due_at             DATETIME NOT NULL,
	created_at             DATETIME NOT NULL,
	updated_at             DATETIME NOT NULL,
	resolved_at            DATETIME,
	closed_at              DATETIME
);

CREATE INDEX IF NOT EXISTS ix_tickets_status_due ON tickets(status, sla_due_at);
CREATE INDEX IF NOT EXISTS ix_tickets_external_case_ref ON tickets(external_case_ref);

CREATE TABLE IF NOT EXISTS ticket_comments (
	id                TEXT PRIMARY KEY,
	ticket_id         TEXT NOT NULL REFERENCES tickets(id),
	author_id         TEXT,
	content           TEXT NOT NULL,
	is_internal       INTEGER NOT NULL DEFAULT 0,
	external_comm_ref TEXT,
	created_at        DATETIME NOT NULL,
	UNIQUE (ticket_id, external_comm_ref)
);

CREATE TABLE IF NOT EXISTS sla_config (
	priority              TEXT PRIMARY KEY,
	response_time_minutes INTEGER NOT NULL,
	resolution_time_hours INTEGER NOT NULL,
	description           TEXT NOT NULL DEFAULT '',
	updated_at            DATETIME NOT NULL
);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS ticket_history (
	id          TEXT PRIMARY KEY,
	ticket_id   TEXT NOT NULL REFERENCES tickets(id),
	actor       TEXT NOT NULL,
	change_type TEXT NOT NULL,
	old_value   TEXT NOT NULL DEFAULT '',
	new_value   TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS ix_ticket_history_ticket ON ticket_history(ticket_id, created_at);
`,
	},
}

// NewSQLite opens (or creates) the database at cfg.Path, enables WAL and
// foreign keys, and applies pending migrations.
func NewSQLite(ctx context.Context, cfg config.SQLiteConfig, logger *zap.Logger) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection: SQLite allows a single writer, and ":memory:" databases
	// are per-connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLite{DB: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("opened sqlite store", zap.String("path", cfg.Path))
	return s, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Ping verifies the database handle.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *SQLite) migrate(ctx context.Context) error {
	current := 0

	var tableCount int
	if err := s.DB.GetContext(ctx, &tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'"); err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := s.DB.GetContext(ctx, &current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range sqliteMigrations {
		if m.version <= current {
			continue
		}
		tx, err := s.DB.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
	}
	return nil
}
