package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// MaxAttached is SQLite's default limit on databases attached to one
// connection
const MaxAttached = 10

// PragmaLegacyAlterTable keeps ALTER TABLE ... RENAME from rewriting
// references in triggers and views while a table is being rebuilt.
const PragmaLegacyAlterTable = "PRAGMA legacy_alter_table = ON"

// SQLiteClient manages one connection to a SQLite database file.
//
// The pool is capped at a single connection so that pragmas and ATTACH
// aliases apply to every statement issued through the client.
type SQLiteClient struct {
	db   *sql.DB
	path string
}

// NewSQLiteClient opens an existing SQLite database. busyTimeout is the
// lock-wait timeout applied to the connection; extra pragmas run after it.
func NewSQLiteClient(ctx context.Context, path string, busyTimeout time.Duration, pragmas ...string) (*SQLiteClient, error) {
	// sql.Open would silently create a missing file
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat database %s: %w", path, err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	all := append([]string{fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds())}, pragmas...)
	for _, pragma := range all {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}

	return &SQLiteClient{db: db, path: path}, nil
}

// Close closes the database connection
func (c *SQLiteClient) Close() error {
	return c.db.Close()
}

// GetDB returns the underlying database handle
func (c *SQLiteClient) GetDB() *sql.DB {
	return c.db
}

// Path returns the database file path
func (c *SQLiteClient) Path() string {
	return c.path
}

// Conn pins the client's single connection for exclusive use.
// The caller must close the returned connection.
func (c *SQLiteClient) Conn(ctx context.Context) (*sql.Conn, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection to %s: %w", c.path, err)
	}
	return conn, nil
}

// QuoteIdent quotes a SQLite identifier
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteIdents quotes each name and joins them with ", "
func QuoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = QuoteIdent(name)
	}
	return strings.Join(quoted, ", ")
}
