package report

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const postgresCreateTable = `CREATE TABLE IF NOT EXISTS ` + ExceptionsTable + ` (
	run_id      UUID NOT NULL,
	reference   TEXT NOT NULL,
	source      TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	reason      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	excluded    BOOLEAN NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
)`

// PostgresSink writes exception records to PostgreSQL
type PostgresSink struct {
	conn *pgx.Conn
}

// NewPostgresSink connects and makes sure the exceptions table exists
func NewPostgresSink(ctx context.Context, connString string) (*PostgresSink, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := conn.Exec(ctx, postgresCreateTable); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("failed to create %s: %w", ExceptionsTable, err)
	}

	return &PostgresSink{conn: conn}, nil
}

// Write inserts every exception of the report in one transaction
func (s *PostgresSink) Write(ctx context.Context, r *Report) error {
	if len(r.Exceptions) == 0 {
		return nil
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, row := range rows(r) {
		batch.Queue(`INSERT INTO `+ExceptionsTable+`
			(run_id, reference, source, outcome, reason, detail, excluded, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, row...)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert exceptions: %w", err)
	}

	return tx.Commit(ctx)
}

// Close closes the database connection
func (s *PostgresSink) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

// GetConnection returns the underlying connection
func (s *PostgresSink) GetConnection() *pgx.Conn {
	return s.conn
}
