package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:sebserver.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/sebserver?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// one writer; keeps in-memory databases alive across pooled connections
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS lms_setups (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  institution_id INTEGER NOT NULL,
  name TEXT NOT NULL,
  lms_type TEXT NOT NULL,
  lms_url TEXT NOT NULL DEFAULT '',
  lms_client_id TEXT NOT NULL DEFAULT '',     -- sealed
  lms_client_secret TEXT NOT NULL DEFAULT '', -- sealed
  lms_access_token TEXT NOT NULL DEFAULT '',  -- sealed
  active INTEGER NOT NULL DEFAULT 0,
  version INTEGER NOT NULL DEFAULT 1,
  updated_at INTEGER NOT NULL,
  UNIQUE (institution_id, name)
);

CREATE TABLE IF NOT EXISTS exams (
  id TEXT PRIMARY KEY,
  institution_id INTEGER NOT NULL,
  lms_setup_id INTEGER NOT NULL REFERENCES lms_setups(id),
  external_id TEXT NOT NULL,
  name TEXT NOT NULL,
  type TEXT NOT NULL,
  status TEXT NOT NULL,
  active INTEGER NOT NULL DEFAULT 0,
  owner TEXT NOT NULL DEFAULT '',
  supporter TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  UNIQUE (lms_setup_id, external_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  institution_id INTEGER NOT NULL DEFAULT 0,
  typ TEXT NOT NULL,    -- IMPORT, RESTRICTION_PUSH, ...
  entity TEXT NOT NULL, -- EXAM, LMS_SETUP
  key TEXT NOT NULL,    -- entity id
  actor TEXT NOT NULL DEFAULT '',
  data TEXT NOT NULL,   -- JSON payload
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS lms_setups (
  id BIGSERIAL PRIMARY KEY,
  institution_id BIGINT NOT NULL,
  name TEXT NOT NULL,
  lms_type TEXT NOT NULL,
  lms_url TEXT NOT NULL DEFAULT '',
  lms_client_id TEXT NOT NULL DEFAULT '',
  lms_client_secret TEXT NOT NULL DEFAULT '',
  lms_access_token TEXT NOT NULL DEFAULT '',
  active BOOLEAN NOT NULL DEFAULT FALSE,
  version BIGINT NOT NULL DEFAULT 1,
  updated_at BIGINT NOT NULL,
  UNIQUE (institution_id, name)
);

CREATE TABLE IF NOT EXISTS exams (
  id TEXT PRIMARY KEY,
  institution_id BIGINT NOT NULL,
  lms_setup_id BIGINT NOT NULL REFERENCES lms_setups(id),
  external_id TEXT NOT NULL,
  name TEXT NOT NULL,
  type TEXT NOT NULL,
  status TEXT NOT NULL,
  active BOOLEAN NOT NULL DEFAULT FALSE,
  owner TEXT NOT NULL DEFAULT '',
  supporter TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL,
  UNIQUE (lms_setup_id, external_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  institution_id BIGINT NOT NULL DEFAULT 0,
  typ TEXT NOT NULL,
  entity TEXT NOT NULL,
  key TEXT NOT NULL,
  actor TEXT NOT NULL DEFAULT '',
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
