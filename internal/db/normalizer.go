package db

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tordrt/megamerge/internal/schema"
)

// Normalizer rebuilds tables of a source database without column
// constraints and without identity columns
type Normalizer struct {
	client *SQLiteClient
	filter schema.Filter
	logger *zap.Logger
}

// NewNormalizer creates a normalizer over an open source client.
// The client should have been opened with PragmaLegacyAlterTable.
func NewNormalizer(client *SQLiteClient, filter schema.Filter, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		client: client,
		filter: filter,
		logger: logger,
	}
}

// ShadowName returns the temporary name a table is rebuilt under
func ShadowName(table string) string {
	return "_" + table
}

// Normalize rewrites each table in turn. A failing table does not stop the
// others; one error per failed table is returned.
func (n *Normalizer) Normalize(ctx context.Context, tables []string) []error {
	var failures []error
	for _, table := range tables {
		if err := n.NormalizeTable(ctx, table); err != nil {
			failures = append(failures, err)
		}
	}
	return failures
}

// NormalizeTable replaces table with a constraint-free copy holding only its
// non-identity columns. The rewrite runs in one transaction and is rolled
// back on any failure.
func (n *Normalizer) NormalizeTable(ctx context.Context, table string) (err error) {
	path := n.client.Path()
	fail := func(step string, cause error) error {
		return &NormalizeError{Path: path, Table: table, Step: step, Err: cause}
	}

	tx, err := n.client.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return fail("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	in := NewIntrospector(tx, path, n.filter)
	columns, err := in.ListColumns(ctx, table)
	if err != nil {
		return fail("introspect", err)
	}
	if len(columns) == 0 {
		return fail("introspect", fmt.Errorf("no non-identity columns"))
	}
	constraints, err := in.ListConstraints(ctx, table)
	if err != nil {
		return fail("introspect", err)
	}

	shadow := ShadowName(table)
	names := QuoteIdents(schema.Names(columns))

	statements := []struct {
		step  string
		query string
	}{
		{"create", fmt.Sprintf("CREATE TABLE %s (%s)", QuoteIdent(shadow), columnDefinitions(columns))},
		{"copy", fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", QuoteIdent(shadow), names, names, QuoteIdent(table))},
		{"drop", fmt.Sprintf("DROP TABLE %s", QuoteIdent(table))},
		{"rename", fmt.Sprintf("ALTER TABLE %s RENAME TO %s", QuoteIdent(shadow), QuoteIdent(table))},
	}

	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt.query); err != nil {
			return fail(stmt.step, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fail("commit", err)
	}

	n.logger.Debug("Normalized table",
		zap.String("database", path),
		zap.String("table", table),
		zap.Int("columns", len(columns)),
		zap.Int("stripped_constraints", constraints.Count()))
	return nil
}

// columnDefinitions renders "name type" pairs. Columns declared without a
// type are rendered by name alone.
func columnDefinitions(columns []schema.Column) string {
	defs := make([]string, len(columns))
	for i, col := range columns {
		if col.Type == "" {
			defs[i] = QuoteIdent(col.Name)
			continue
		}
		defs[i] = QuoteIdent(col.Name) + " " + col.Type
	}
	return strings.Join(defs, ", ")
}
