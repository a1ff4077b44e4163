// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code and works everywhere Go works.
//
// TRANSACTIONS:
// Every repository method that issues more than one write runs inside
// withTx, so a failure halfway leaves nothing behind. The pool is limited to
// one connection: SQLite serialises writers anyway, and a ":memory:"
// database only exists on the connection that created it.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// BLANK IMPORT:
	// The sqlite package's init() registers a database/sql driver named "sqlite".
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements every repository
// interface declared in internal/repository.
type DB struct {
	conn *sql.DB
}

// querier is what *sql.DB and *sql.Tx have in common. Helpers that can run
// either inside or outside a transaction accept it.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens the database at dbPath (":memory:" for tests) and runs migrations.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in flight.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite (for backwards compatibility).
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping is used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	for i, stmt := range schema {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("applying schema step %d: %w", i+1, err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id           TEXT PRIMARY KEY,
		email        TEXT NOT NULL UNIQUE,
		google_sub   TEXT NOT NULL UNIQUE,
		country_code TEXT NOT NULL DEFAULT '',
		created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_country ON users(country_code)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		token_hash TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at)`,

	`CREATE TABLE IF NOT EXISTS profiles (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		display_name TEXT NOT NULL DEFAULT '',
		avatar_url   TEXT NOT NULL DEFAULT '',
		bio          TEXT NOT NULL DEFAULT '',
		birthdate    TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS persons (
		id         TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL UNIQUE REFERENCES profiles(id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS interests (
		profile_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		name       TEXT NOT NULL,
		PRIMARY KEY (profile_id, name)
	)`,

	`CREATE TABLE IF NOT EXISTS user_persons (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		person_id  TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
		status     TEXT NOT NULL CHECK (status IN ('pending', 'accepted')),
		created_at DATETIME NOT NULL,
		UNIQUE (user_id, person_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_persons_person ON user_persons(person_id, status)`,

	`CREATE TABLE IF NOT EXISTS wishlists (
		id              TEXT PRIMARY KEY,
		profile_id      TEXT REFERENCES profiles(id) ON DELETE SET NULL,
		created_by      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name            TEXT NOT NULL,
		is_custom       INTEGER NOT NULL DEFAULT 0,
		shared_with_all INTEGER NOT NULL DEFAULT 0,
		deleted         INTEGER NOT NULL DEFAULT 0,
		created_at      DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_wishlists_profile ON wishlists(profile_id)`,
	`CREATE INDEX IF NOT EXISTS idx_wishlists_creator ON wishlists(created_by)`,

	`CREATE TABLE IF NOT EXISTS wishlist_shares (
		wishlist_id TEXT NOT NULL REFERENCES wishlists(id) ON DELETE CASCADE,
		user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (wishlist_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS wishlist_items (
		id             TEXT PRIMARY KEY,
		wishlist_id    TEXT NOT NULL REFERENCES wishlists(id) ON DELETE CASCADE,
		name           TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		price          TEXT,
		currency       TEXT NOT NULL DEFAULT '',
		photo_url      TEXT NOT NULL DEFAULT '',
		url            TEXT NOT NULL DEFAULT '',
		deleted        INTEGER NOT NULL DEFAULT 0,
		checked_off_by TEXT REFERENCES users(id) ON DELETE SET NULL,
		modified_at    DATETIME,
		created_at     DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_items_wishlist ON wishlist_items(wishlist_id)`,
	`CREATE INDEX IF NOT EXISTS idx_items_claimant ON wishlist_items(checked_off_by)`,

	`CREATE TABLE IF NOT EXISTS wishlist_views (
		wishlist_id TEXT NOT NULL REFERENCES wishlists(id) ON DELETE CASCADE,
		user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		viewed_at   DATETIME NOT NULL,
		PRIMARY KEY (wishlist_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS comments (
		id          TEXT PRIMARY KEY,
		wishlist_id TEXT NOT NULL REFERENCES wishlists(id) ON DELETE CASCADE,
		user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		text        TEXT NOT NULL,
		created_at  DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_wishlist ON comments(wishlist_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS calendar_events (
		id              TEXT PRIMARY KEY,
		profile_id      TEXT REFERENCES profiles(id) ON DELETE CASCADE,
		user_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name            TEXT NOT NULL,
		date            TEXT NOT NULL,
		automatic_event TEXT NOT NULL DEFAULT '',
		notified_at     DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_user ON calendar_events(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_events_auto ON calendar_events(automatic_event, profile_id)`,

	`CREATE TABLE IF NOT EXISTS event_notifications (
		event_id    TEXT NOT NULL REFERENCES calendar_events(id) ON DELETE CASCADE,
		days_before INTEGER NOT NULL CHECK (days_before > 0),
		PRIMARY KEY (event_id, days_before)
	)`,

	`CREATE TABLE IF NOT EXISTS global_events (
		id           TEXT PRIMARY KEY,
		country_code TEXT NOT NULL,
		name         TEXT NOT NULL,
		month        INTEGER NOT NULL,
		day          INTEGER,
		weekday      INTEGER,
		nth          INTEGER,
		days_before  INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_global_events_country ON global_events(country_code)`,

	`CREATE TABLE IF NOT EXISTS notification_deliveries (
		delivery_key TEXT NOT NULL,
		user_id      TEXT NOT NULL,
		day          TEXT NOT NULL,
		PRIMARY KEY (delivery_key, user_id, day)
	)`,
}
