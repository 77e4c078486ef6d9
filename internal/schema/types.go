package schema

import "strings"

// Schema represents the mergeable shape of a database
type Schema struct {
	Tables []Table
}

// Table represents a database table
type Table struct {
	Name    string
	Columns []Column

	// Identity holds the columns the filter excluded from Columns
	Identity []Column

	// Constraints lists what normalization strips from the table
	Constraints Constraints
}

// Constraints collects the declared constraints of a table
type Constraints struct {
	PrimaryKey  []string
	NotNull     []string
	Defaults    []Default
	Indexes     []Index
	ForeignKeys []ForeignKey
}

// Default is a column default expression
type Default struct {
	Column string
	Value  string
}

// Index represents a database index, including the automatic ones that back
// UNIQUE and PRIMARY KEY constraints
type Index struct {
	Name     string
	Columns  []string
	IsUnique bool
}

// ForeignKey represents one referencing column
type ForeignKey struct {
	Column       string
	TargetTable  string
	TargetColumn string
}

// Count returns the number of declared constraints. A composite primary key
// counts once.
func (c Constraints) Count() int {
	n := len(c.NotNull) + len(c.Defaults) + len(c.Indexes) + len(c.ForeignKeys)
	if len(c.PrimaryKey) > 0 {
		n++
	}
	return n
}

// Empty reports whether the table declares no constraint at all
func (c Constraints) Empty() bool {
	return c.Count() == 0
}

// Column represents a table column as reported by the catalog
type Column struct {
	Name     string
	Type     string
	Position int
}

// Names returns the column names in catalog order
func Names(columns []Column) []string {
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = col.Name
	}
	return names
}

// Filter decides which tables and columns take part in a merge.
//
// Both checks are plain substring matches. A column named "valid" or
// "identifier" is an identity column under the default "id"/"ID" rule.
type Filter struct {
	// ExcludedTableSubstrings drops any table whose name contains one of them.
	ExcludedTableSubstrings []string

	// IdentitySubstrings marks a column as an identity column when its name
	// contains one of them. Matching is case-sensitive.
	IdentitySubstrings []string
}

// DefaultFilter returns the filter used when nothing is configured
func DefaultFilter() Filter {
	return Filter{
		ExcludedTableSubstrings: []string{"sqlite_"},
		IdentitySubstrings:      []string{"id", "ID"},
	}
}

// KeepTable reports whether a table belongs to the working table set
func (f Filter) KeepTable(name string) bool {
	return !containsAny(name, f.ExcludedTableSubstrings)
}

// IsIdentity reports whether a column is excluded from copying and comparison
func (f Filter) IsIdentity(column string) bool {
	return containsAny(column, f.IdentitySubstrings)
}

// Columns returns the non-identity columns, preserving order
func (f Filter) Columns(columns []Column) []Column {
	kept := make([]Column, 0, len(columns))
	for _, col := range columns {
		if f.IsIdentity(col.Name) {
			continue
		}
		kept = append(kept, col)
	}
	return kept
}

// IdentityColumns returns the identity columns, preserving order
func (f Filter) IdentityColumns(columns []Column) []Column {
	var dropped []Column
	for _, col := range columns {
		if f.IsIdentity(col.Name) {
			dropped = append(dropped, col)
		}
	}
	return dropped
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
