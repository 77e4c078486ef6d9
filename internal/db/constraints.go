package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tordrt/megamerge/internal/schema"
)

// ListConstraints reads the declared constraints of a table: primary key,
// NOT NULL columns, defaults, indexes and foreign keys.
func (i *Introspector) ListConstraints(ctx context.Context, tableName string) (schema.Constraints, error) {
	var c schema.Constraints

	if err := i.extractColumnConstraints(ctx, tableName, &c); err != nil {
		return c, err
	}

	indexes, err := i.extractIndexes(ctx, tableName)
	if err != nil {
		return c, err
	}
	c.Indexes = indexes

	foreignKeys, err := i.extractForeignKeys(ctx, tableName)
	if err != nil {
		return c, err
	}
	c.ForeignKeys = foreignKeys

	return c, nil
}

// extractColumnConstraints fills the primary key, NOT NULL and default lists
func (i *Introspector) extractColumnConstraints(ctx context.Context, tableName string, c *schema.Constraints) error {
	query := "SELECT name, \"notnull\", dflt_value, pk FROM pragma_table_info(?, ?) ORDER BY cid"

	rows, err := i.q.QueryContext(ctx, query, tableName, i.schema)
	if err != nil {
		return &IntrospectionError{Path: i.path, Table: tableName, Err: err}
	}
	defer rows.Close()

	type pkColumn struct {
		name  string
		order int
	}
	var pk []pkColumn

	for rows.Next() {
		var name string
		var notNull, pkOrder int
		var defaultValue sql.NullString

		if err := rows.Scan(&name, &notNull, &defaultValue, &pkOrder); err != nil {
			return &IntrospectionError{Path: i.path, Table: tableName, Err: err}
		}

		if pkOrder > 0 {
			pk = append(pk, pkColumn{name: name, order: pkOrder})
		}
		if notNull == 1 {
			c.NotNull = append(c.NotNull, name)
		}
		if defaultValue.Valid {
			c.Defaults = append(c.Defaults, schema.Default{Column: name, Value: defaultValue.String})
		}
	}
	if err := rows.Err(); err != nil {
		return &IntrospectionError{Path: i.path, Table: tableName, Err: err}
	}

	// pk holds the 1-based position within the key
	c.PrimaryKey = make([]string, len(pk))
	for _, col := range pk {
		if col.order <= len(pk) {
			c.PrimaryKey[col.order-1] = col.name
		}
	}
	if len(c.PrimaryKey) == 0 {
		c.PrimaryKey = nil
	}
	return nil
}

// extractIndexes lists every index of a table with its columns
func (i *Introspector) extractIndexes(ctx context.Context, tableName string) ([]schema.Index, error) {
	query := "SELECT name, \"unique\" FROM pragma_index_list(?, ?) ORDER BY seq"

	rows, err := i.q.QueryContext(ctx, query, tableName, i.schema)
	if err != nil {
		return nil, &IntrospectionError{Path: i.path, Table: tableName, Err: err}
	}

	// Collect names first: a single-connection pool cannot serve the nested
	// index_info queries while these rows are open
	var indexes []schema.Index
	for rows.Next() {
		var idx schema.Index
		var unique int
		if err := rows.Scan(&idx.Name, &unique); err != nil {
			rows.Close()
			return nil, &IntrospectionError{Path: i.path, Table: tableName, Err: err}
		}
		idx.IsUnique = unique == 1
		indexes = append(indexes, idx)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, &IntrospectionError{Path: i.path, Table: tableName, Err: err}
	}

	for n := range indexes {
		columns, err := i.indexColumns(ctx, tableName, indexes[n].Name)
		if err != nil {
			return nil, err
		}
		indexes[n].Columns = columns
	}
	return indexes, nil
}

func (i *Introspector) indexColumns(ctx context.Context, tableName, indexName string) ([]string, error) {
	query := "SELECT name FROM pragma_index_info(?, ?) ORDER BY seqno"

	rows, err := i.q.QueryContext(ctx, query, indexName, i.schema)
	if err != nil {
		return nil, &IntrospectionError{Path: i.path, Table: tableName, Err: fmt.Errorf("index %s: %w", indexName, err)}
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		// NULL for expression columns
		var colName sql.NullString
		if err := rows.Scan(&colName); err != nil {
			return nil, &IntrospectionError{Path: i.path, Table: tableName, Err: err}
		}
		if colName.Valid {
			columns = append(columns, colName.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &IntrospectionError{Path: i.path, Table: tableName, Err: err}
	}
	return columns, nil
}

// extractForeignKeys lists the referencing columns of a table
func (i *Introspector) extractForeignKeys(ctx context.Context, tableName string) ([]schema.ForeignKey, error) {
	query := "SELECT \"table\", \"from\", \"to\" FROM pragma_foreign_key_list(?, ?) ORDER BY id, seq"

	rows, err := i.q.QueryContext(ctx, query, tableName, i.schema)
	if err != nil {
		return nil, &IntrospectionError{Path: i.path, Table: tableName, Err: err}
	}
	defer rows.Close()

	var keys []schema.ForeignKey
	for rows.Next() {
		var fk schema.ForeignKey
		// "to" is NULL when the parent's primary key is implied
		var to sql.NullString
		if err := rows.Scan(&fk.TargetTable, &fk.Column, &to); err != nil {
			return nil, &IntrospectionError{Path: i.path, Table: tableName, Err: err}
		}
		fk.TargetColumn = to.String
		keys = append(keys, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, &IntrospectionError{Path: i.path, Table: tableName, Err: err}
	}
	return keys, nil
}
