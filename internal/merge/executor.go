package merge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/tordrt/megamerge/internal/db"
	"github.com/tordrt/megamerge/internal/schema"
)

// SourceResult describes what happened to one source during the merge
type SourceResult struct {
	Source   string
	Batch    int
	Position int
	Alias    string

	Attached  bool
	AttachErr error

	// MergedTables lists the tables whose insert was committed, one commit each
	MergedTables []string
	Failures     []error

	Deleted   bool
	DeleteErr error
}

// Executor copies rows from batches of attached sources into the target
type Executor struct {
	target                string
	tables                []string
	filter                schema.Filter
	batchSize             int
	timeout               time.Duration
	deleteOnAttachFailure bool
	remove                func(string) error
	progress              Progress
	logger                *zap.Logger
}

// NewExecutor creates an executor that merges the reference tables into
// the reference database
func NewExecutor(reference *Reference, s Settings) *Executor {
	s = s.withDefaults()
	return &Executor{
		target:                reference.Path,
		tables:                append([]string(nil), reference.Tables...),
		filter:                s.Filter,
		batchSize:             s.BatchSize,
		timeout:               s.MergeTimeout,
		deleteOnAttachFailure: s.DeleteOnAttachFailure,
		remove:                s.Remove,
		progress:              s.Progress,
		logger:                s.Logger,
	}
}

// Run processes batches in order. It stops if the target database cannot be
// opened or ctx is cancelled; per-source and per-table failures are recorded
// in the results. After a cancellation no further source is attached or
// deleted, and ctx.Err() is returned.
func (e *Executor) Run(ctx context.Context, batches [][]string) ([]SourceResult, error) {
	total := 0
	for _, b := range batches {
		total += len(b)
	}

	e.progress.Start(total)
	defer e.progress.Stop()

	var results []SourceResult
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		e.logger.Info("Processing batch",
			zap.Int("batch", i+1),
			zap.Int("batches", len(batches)),
			zap.Int("size", len(batch)))

		batchResults, err := e.runBatch(ctx, i, batch)
		results = append(results, batchResults...)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (e *Executor) runBatch(ctx context.Context, index int, batch []string) ([]SourceResult, error) {
	if limit := min(e.batchSize, db.MaxAttached); len(batch) > limit {
		return nil, fmt.Errorf("batch %d has %d sources, limit is %d", index, len(batch), limit)
	}

	client, err := db.NewSQLiteClient(ctx, e.target, e.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open target database: %w", err)
	}
	defer func() { _ = client.Close() }()

	conn, err := client.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	results := make([]SourceResult, 0, len(batch))
	for pos, source := range batch {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("Merge interrupted, remaining databases are kept",
				zap.Int("batch", index),
				zap.Int("kept", len(batch)-pos))
			return results, err
		}
		results = append(results, e.mergeSource(ctx, conn, index, pos, source))
		e.progress.Incr()
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (e *Executor) mergeSource(ctx context.Context, conn *sql.Conn, batch, pos int, source string) SourceResult {
	res := SourceResult{
		Source:   source,
		Batch:    batch,
		Position: pos,
		Alias:    Alias(batch, pos),
	}

	if err := e.attach(ctx, conn, source, res.Alias); err != nil {
		res.AttachErr = err
		e.logger.Error("Failed to attach database",
			zap.String("database", source),
			zap.String("alias", res.Alias),
			zap.Error(err),
			zap.Stack("trace"))
	} else {
		res.Attached = true
		e.logger.Info("Attached database",
			zap.String("database", source),
			zap.Int("batch", batch),
			zap.Int("position", pos),
			zap.String("alias", res.Alias))

		in := db.NewIntrospector(conn, e.target, e.filter)
		present, listErr := e.sourceTables(ctx, in, res.Alias)
		for _, table := range e.tables {
			var err error
			switch {
			case listErr != nil:
				err = &TableMergeError{Source: source, Table: table, Err: listErr}
			case !present[table]:
				err = &TableMergeError{Source: source, Table: table,
					Err: fmt.Errorf("%s.%s: %w", res.Alias, table, db.ErrTableNotFound)}
			default:
				err = e.mergeTable(ctx, conn, in, source, res.Alias, table)
			}
			if err != nil {
				res.Failures = append(res.Failures, err)
				e.logger.Error("Failed to merge table",
					zap.String("database", source),
					zap.String("table", table),
					zap.Error(err),
					zap.Stack("trace"))
				continue
			}
			res.MergedTables = append(res.MergedTables, table)
		}

		// Detach even when interrupted so the alias does not outlive the source
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), "DETACH DATABASE "+db.QuoteIdent(res.Alias)); err != nil {
			e.logger.Warn("Failed to detach database",
				zap.String("database", source),
				zap.String("alias", res.Alias),
				zap.Error(err))
		}
	}

	// An interrupted source may not have been copied
	if err := ctx.Err(); err != nil {
		e.logger.Warn("Merge interrupted, keeping database",
			zap.String("database", source),
			zap.Error(err))
		return res
	}

	// Table failures do not keep a source on disk; a failed attach does
	// unless explicitly configured otherwise.
	if !res.Attached && !e.deleteOnAttachFailure {
		e.logger.Warn("Keeping database that could not be attached", zap.String("database", source))
		return res
	}

	if err := e.remove(source); err != nil {
		res.DeleteErr = err
		e.logger.Error("Failed to delete merged database",
			zap.String("database", source),
			zap.Error(err))
		return res
	}
	res.Deleted = true
	e.logger.Debug("Deleted merged database", zap.String("database", source))
	return res
}

// sourceTables lists the tables of an attached source
func (e *Executor) sourceTables(ctx context.Context, in *db.Introspector, alias string) (map[string]bool, error) {
	tables, err := in.InSchema(alias).ListTables(ctx)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(tables))
	for _, t := range tables {
		present[t] = true
	}
	return present, nil
}

func (e *Executor) attach(ctx context.Context, conn *sql.Conn, source, alias string) error {
	// ATTACH creates missing files instead of failing
	if _, err := os.Stat(source); err != nil {
		return &AttachError{Source: source, Alias: alias, Err: err}
	}
	if _, err := conn.ExecContext(ctx, "ATTACH DATABASE ? AS "+db.QuoteIdent(alias), source); err != nil {
		return &AttachError{Source: source, Alias: alias, Err: err}
	}
	return nil
}

// mergeTable copies every row of alias.table into main.table, restricted to
// the target's non-identity columns, and commits.
func (e *Executor) mergeTable(ctx context.Context, conn *sql.Conn, in *db.Introspector, source, alias, table string) error {
	fail := func(err error) error {
		return &TableMergeError{Source: source, Table: table, Err: err}
	}

	columns, err := in.ListColumns(ctx, table)
	if err != nil {
		return fail(err)
	}
	if len(columns) == 0 {
		return fail(errors.New("no non-identity columns"))
	}

	names := db.QuoteIdents(schema.Names(columns))
	query := fmt.Sprintf("INSERT INTO %s.%s (%s) SELECT %s FROM %s.%s",
		db.QuoteIdent(db.MainSchema), db.QuoteIdent(table), names,
		names, db.QuoteIdent(alias), db.QuoteIdent(table))

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fail(err)
	}

	result, err := tx.ExecContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return fail(err)
	}

	if err := tx.Commit(); err != nil {
		return fail(err)
	}

	rows, _ := result.RowsAffected()
	e.logger.Debug("Merged table",
		zap.String("database", source),
		zap.String("table", table),
		zap.Int64("rows", rows))
	return nil
}
