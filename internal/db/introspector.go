package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tordrt/megamerge/internal/schema"
)

// MainSchema is the schema name of the database a connection was opened on
const MainSchema = "main"

// ErrTableNotFound is returned when the catalog has no columns for a table
var ErrTableNotFound = errors.New("table not found")

// Queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Introspector reads table and column metadata over an open connection
type Introspector struct {
	q      Queryer
	path   string
	schema string
	filter schema.Filter
}

// NewIntrospector creates an introspector for the main schema of q.
// path is only used in error messages.
func NewIntrospector(q Queryer, path string, filter schema.Filter) *Introspector {
	return &Introspector{
		q:      q,
		path:   path,
		schema: MainSchema,
		filter: filter,
	}
}

// InSchema returns a copy that reads an attached schema instead
func (i *Introspector) InSchema(name string) *Introspector {
	c := *i
	c.schema = name
	return &c
}

// ExtractSchema returns every kept table with its columns split into
// non-identity and identity ones and its declared constraints, in catalog
// order
func (i *Introspector) ExtractSchema(ctx context.Context) (*schema.Schema, error) {
	tableNames, err := i.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	tables := make([]schema.Table, 0, len(tableNames))
	for _, name := range tableNames {
		columns, err := i.listAllColumns(ctx, name)
		if err != nil {
			return nil, err
		}
		constraints, err := i.ListConstraints(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, schema.Table{
			Name:        name,
			Columns:     i.filter.Columns(columns),
			Identity:    i.filter.IdentityColumns(columns),
			Constraints: constraints,
		})
	}

	return &schema.Schema{Tables: tables}, nil
}

// ListTables returns the table names that survive the excluded-name filter,
// in catalog order
func (i *Introspector) ListTables(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT name FROM %s.sqlite_master WHERE type = 'table'", QuoteIdent(i.schema))

	rows, err := i.q.QueryContext(ctx, query)
	if err != nil {
		return nil, &IntrospectionError{Path: i.path, Err: err}
	}
	defer rows.Close()

	var tableList []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, &IntrospectionError{Path: i.path, Err: err}
		}
		if !i.filter.KeepTable(tableName) {
			continue
		}
		tableList = append(tableList, tableName)
	}

	if err := rows.Err(); err != nil {
		return nil, &IntrospectionError{Path: i.path, Err: err}
	}
	return tableList, nil
}

// ListColumns returns the non-identity columns of a table in ordinal order
func (i *Introspector) ListColumns(ctx context.Context, tableName string) ([]schema.Column, error) {
	columns, err := i.listAllColumns(ctx, tableName)
	if err != nil {
		return nil, err
	}
	return i.filter.Columns(columns), nil
}

func (i *Introspector) listAllColumns(ctx context.Context, tableName string) ([]schema.Column, error) {
	query := "SELECT cid, name, type FROM pragma_table_info(?, ?) ORDER BY cid"

	rows, err := i.q.QueryContext(ctx, query, tableName, i.schema)
	if err != nil {
		return nil, &IntrospectionError{Path: i.path, Table: tableName, Err: err}
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var col schema.Column
		if err := rows.Scan(&col.Position, &col.Name, &col.Type); err != nil {
			return nil, &IntrospectionError{Path: i.path, Table: tableName, Err: err}
		}
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, &IntrospectionError{Path: i.path, Table: tableName, Err: err}
	}

	// Every SQLite table has at least one column
	if len(columns) == 0 {
		return nil, &IntrospectionError{Path: i.path, Table: tableName, Err: ErrTableNotFound}
	}
	return columns, nil
}
