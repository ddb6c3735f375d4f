// Package store provides the SQLite-backed plan store.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS plans (
	owner_address             TEXT PRIMARY KEY,
	owner_email               TEXT NOT NULL DEFAULT '',
	check_in_interval_seconds INTEGER NOT NULL,
	last_check_in_at          INTEGER NOT NULL,
	is_claim_initiated        INTEGER NOT NULL DEFAULT 0,
	version                   INTEGER NOT NULL DEFAULT 1,
	created_at                INTEGER NOT NULL,
	updated_at                INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plans_owner_email ON plans(owner_email);
CREATE INDEX IF NOT EXISTS idx_plans_unclaimed ON plans(is_claim_initiated);

CREATE TABLE IF NOT EXISTS inheritors (
	owner_address         TEXT NOT NULL REFERENCES plans(owner_address),
	idx                   INTEGER NOT NULL,
	address               TEXT NOT NULL,
	share_percentage      INTEGER NOT NULL,
	name                  TEXT NOT NULL DEFAULT '',
	email                 TEXT NOT NULL DEFAULT '',
	phone                 TEXT NOT NULL DEFAULT '',
	secret_question       TEXT NOT NULL DEFAULT '',
	secret_answer_hash    TEXT NOT NULL DEFAULT '',
	share_secret_question INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (owner_address, idx)
);

CREATE TABLE IF NOT EXISTS tokens (
	owner_address TEXT NOT NULL REFERENCES plans(owner_address),
	position      INTEGER NOT NULL,
	address       TEXT NOT NULL,
	type          TEXT NOT NULL,
	PRIMARY KEY (owner_address, address)
);

CREATE TABLE IF NOT EXISTS activities (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL UNIQUE,
	owner_address TEXT NOT NULL,
	type          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	metadata      TEXT NOT NULL DEFAULT '{}',
	created_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activities_owner ON activities(owner_address, seq);

CREATE TABLE IF NOT EXISTS check_ins (
	seq                INTEGER PRIMARY KEY AUTOINCREMENT,
	id                 TEXT NOT NULL UNIQUE,
	owner_address      TEXT NOT NULL,
	created_at         INTEGER NOT NULL,
	seconds_since_last INTEGER NOT NULL,
	timeliness_percent INTEGER NOT NULL,
	triggered_by       TEXT NOT NULL DEFAULT '',
	note               TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_check_ins_owner ON check_ins(owner_address, seq);
`

// DB wraps a sql.DB with plan-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
//
// The pool is limited to one connection so every write transaction is
// serialized; per-owner check-in and claim updates rely on that.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database connection.
func (db *DB) Ping() error {
	return db.conn.Ping()
}
