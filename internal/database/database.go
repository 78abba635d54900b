package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jredh-dev/foodloop/pkg/models"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS owners (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL DEFAULT '',
	city       TEXT NOT NULL DEFAULT '',
	pincode    TEXT NOT NULL DEFAULT '',
	contact    TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_owners_pincode ON owners(pincode);

CREATE TABLE IF NOT EXISTS foods (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	name            TEXT NOT NULL,
	name_key        TEXT NOT NULL UNIQUE,
	quantity        TEXT NOT NULL,
	best_before     DATETIME NOT NULL,
	expires_at      DATETIME NOT NULL,
	status          TEXT NOT NULL DEFAULT 'Selling',
	is_refrigerated BOOLEAN NOT NULL DEFAULT 0,
	version         INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_foods_status ON foods(status);

CREATE TABLE IF NOT EXISTS inventory_items (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id   TEXT NOT NULL,
	food_id    INTEGER NOT NULL REFERENCES foods(id),
	created_at DATETIME NOT NULL,
	UNIQUE (owner_id, food_id)
);

CREATE INDEX IF NOT EXISTS idx_inventory_items_owner_id ON inventory_items(owner_id);

-- inventory_item_id carries no foreign key: removing a link leaves its
-- claims in place, and claims are never deleted.
CREATE TABLE IF NOT EXISTS food_requests (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	inventory_item_id INTEGER NOT NULL,
	requester_id      TEXT NOT NULL,
	quantity          TEXT NOT NULL,
	pickup_date       DATETIME,
	notes             TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'pending',
	created_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_food_requests_item_id   ON food_requests(inventory_item_id);
CREATE INDEX IF NOT EXISTS idx_food_requests_requester ON food_requests(requester_id);
`

// Open creates or opens the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer: a transaction holds the only connection, so every
	// read-modify-write of a food row is serialized.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close shuts down the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Queries runs statements either directly on the pool or inside a transaction.
type Queries struct {
	q querier
}

// Queries returns a handle for statements outside any transaction.
func (db *DB) Queries() *Queries {
	return &Queries{q: db.conn}
}

// WithTx runs fn in a single transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Queries{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", mapConstraint(err))
	}
	return nil
}

// mapConstraint turns uniqueness violations into models.ErrConflict.
func mapConstraint(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", models.ErrConflict, err)
	}
	return err
}
