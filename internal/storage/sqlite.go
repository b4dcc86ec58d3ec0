package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// sqliteSchema bootstraps the same tables as
// migrations/postgres/000001_init.up.sql, adapted to SQLite's type
// affinities (TEXT for UUIDs, DATETIME for timestamps, INTEGER for
// booleans and BIGINTs, REAL for doubles). It is
// applied directly rather than through golang-migrate: migrate's sqlite3
// driver requires the cgo-based mattn/go-sqlite3, which conflicts with
// the pure-Go modernc.org/sqlite driver this backend is chosen for.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS connections (
	id               TEXT PRIMARY KEY,
	peer_address     TEXT NOT NULL,
	protocol         TEXT NOT NULL,
	state            TEXT NOT NULL,
	created_at       DATETIME NOT NULL,
	last_activity    DATETIME NOT NULL,
	user_agent       TEXT NOT NULL DEFAULT '',
	extranonce1      TEXT NOT NULL DEFAULT '',
	extranonce2_size INTEGER NOT NULL DEFAULT 4,
	error_reason     TEXT NOT NULL DEFAULT '',
	total_shares     INTEGER NOT NULL DEFAULT 0,
	valid_shares     INTEGER NOT NULL DEFAULT 0,
	invalid_shares   INTEGER NOT NULL DEFAULT 0,
	blocks_found     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS shares (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	connection_id      TEXT NOT NULL REFERENCES connections(id) ON DELETE CASCADE,
	job_id             TEXT NOT NULL,
	extranonce2        TEXT NOT NULL,
	ntime              INTEGER NOT NULL,
	nonce              INTEGER NOT NULL,
	claimed_difficulty REAL NOT NULL,
	is_valid           INTEGER NOT NULL,
	winning_block_hash TEXT NOT NULL DEFAULT '',
	worker_name        TEXT NOT NULL DEFAULT '',
	submitted_at       DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_shares_connection_id ON shares(connection_id);

CREATE TABLE IF NOT EXISTS work_templates (
	id            TEXT PRIMARY KEY,
	previous_hash TEXT NOT NULL,
	difficulty    REAL NOT NULL,
	bits          INTEGER NOT NULL,
	version       INTEGER NOT NULL,
	ntime         INTEGER NOT NULL,
	height        INTEGER NOT NULL,
	created_at    DATETIME NOT NULL,
	expires_at    DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_work_templates_expires_at ON work_templates(expires_at);

CREATE TABLE IF NOT EXISTS alerts (
	id          TEXT PRIMARY KEY,
	level       TEXT NOT NULL,
	title       TEXT NOT NULL,
	message     TEXT NOT NULL,
	component   TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	resolved_at DATETIME
);

CREATE TABLE IF NOT EXISTS performance_metrics (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	cpu_percent      REAL NOT NULL,
	mem_used_bytes   INTEGER NOT NULL,
	mem_total_bytes  INTEGER NOT NULL,
	net_rx_bytes     INTEGER NOT NULL,
	net_tx_bytes     INTEGER NOT NULL,
	disk_used_bytes  INTEGER NOT NULL,
	disk_total_bytes INTEGER NOT NULL,
	open_connections INTEGER NOT NULL,
	db_connections   INTEGER NOT NULL,
	ts               DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_performance_metrics_ts ON performance_metrics(ts);

CREATE TABLE IF NOT EXISTS config_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	config_raw  TEXT NOT NULL,
	applied_at  DATETIME NOT NULL,
	applied_by  TEXT NOT NULL DEFAULT ''
);
`

// NewSQLiteStore opens a SQLite-backed Store at path (use ":memory:" for
// an ephemeral database) and applies the bootstrap schema.
func NewSQLiteStore(path string) (*SQLStore, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serialises writers; avoid SQLITE_BUSY under concurrent access

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: bootstrap sqlite schema: %w", err)
	}

	return newSQLStore(db, "sqlite"), nil
}
