package report

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// dialect holds what differs between database/sql backends
type dialect struct {
	driver      string
	createTable string
}

var mysqlDialect = dialect{
	driver: "mysql",
	createTable: `CREATE TABLE IF NOT EXISTS ` + ExceptionsTable + ` (
		run_id      CHAR(36) NOT NULL,
		reference   TEXT NOT NULL,
		source      TEXT NOT NULL,
		outcome     VARCHAR(32) NOT NULL,
		reason      TEXT NOT NULL,
		detail      TEXT NOT NULL,
		excluded    BOOLEAN NOT NULL,
		recorded_at DATETIME(6) NOT NULL
	)`,
}

var sqliteDialect = dialect{
	driver: "sqlite3",
	createTable: `CREATE TABLE IF NOT EXISTS ` + ExceptionsTable + ` (
		run_id      TEXT NOT NULL,
		reference   TEXT NOT NULL,
		source      TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		reason      TEXT NOT NULL,
		detail      TEXT NOT NULL DEFAULT '',
		excluded    BOOLEAN NOT NULL,
		recorded_at TIMESTAMP NOT NULL
	)`,
}

// SQLSink writes exception records through database/sql (MySQL, SQLite)
type SQLSink struct {
	db      *sql.DB
	dialect dialect
}

// NewSQLSink opens the database and makes sure the exceptions table exists
func NewSQLSink(ctx context.Context, d dialect, connString string) (*SQLSink, error) {
	db, err := sql.Open(d.driver, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, d.createTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create %s: %w", ExceptionsTable, err)
	}

	return &SQLSink{db: db, dialect: d}, nil
}

// Write inserts every exception of the report in one transaction
func (s *SQLSink) Write(ctx context.Context, r *Report) error {
	if len(r.Exceptions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+ExceptionsTable+`
		(run_id, reference, source, outcome, reason, detail, excluded, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range rows(r) {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("failed to insert exception for %v: %w", row[2], err)
		}
	}

	return tx.Commit()
}

// Close closes the database connection
func (s *SQLSink) Close(context.Context) error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *SQLSink) GetDB() *sql.DB {
	return s.db
}
