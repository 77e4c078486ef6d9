package testutil

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// Table DDL shared by tests. Both tables carry identity columns and column
// constraints so that normalization has something to strip.
const (
	TableA = `CREATE TABLE A (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		value REAL DEFAULT 0
	)`
	TableB = `CREATE TABLE B (
		ID INTEGER PRIMARY KEY,
		session_id TEXT,
		device TEXT NOT NULL,
		reading INTEGER
	)`
	TableC = `CREATE TABLE C (note TEXT)`
)

// CreateDatabase creates a SQLite file in dir and runs the statements against it
func CreateDatabase(t *testing.T, dir, name string, statements ...string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		t.Fatalf("Database %s already exists", path)
	}

	Exec(t, path, statements...)
	return path
}

// Exec runs statements against the database at path, creating it if needed
func Exec(t *testing.T, path string, statements ...string) {
	t.Helper()

	db := open(t, path)
	defer db.Close()

	// Force the file to exist even with no statements
	if _, err := db.Exec("PRAGMA user_version = 1"); err != nil {
		t.Fatalf("Failed to initialize %s: %v", path, err)
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to execute %q on %s: %v", stmt, path, err)
		}
	}
}

// CountRows returns the number of rows in a table
func CountRows(t *testing.T, path, table string) int {
	t.Helper()

	db := open(t, path)
	defer db.Close()

	var count int
	if err := db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, table)).Scan(&count); err != nil {
		t.Fatalf("Failed to count rows in %s.%s: %v", path, table, err)
	}
	return count
}

// QueryStrings runs a query returning a single text column
func QueryStrings(t *testing.T, path, query string, args ...any) []string {
	t.Helper()

	db := open(t, path)
	defer db.Close()

	rows, err := db.Query(query, args...)
	if err != nil {
		t.Fatalf("Failed to query %s: %v", path, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			t.Fatalf("Failed to scan row from %s: %v", path, err)
		}
		values = append(values, v.String)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("Failed to read rows from %s: %v", path, err)
	}
	return values
}

// ColumnNames returns every column of a table, in ordinal order
func ColumnNames(t *testing.T, path, table string) []string {
	t.Helper()
	return QueryStrings(t, path, "SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
}

// TableSQL returns the CREATE statement stored in the catalog for a table
func TableSQL(t *testing.T, path, table string) string {
	t.Helper()
	values := QueryStrings(t, path, "SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table)
	if len(values) != 1 {
		t.Fatalf("Expected one table named %s in %s, got %d", table, path, len(values))
	}
	return values[0]
}

// TableNames returns the user tables of a database, sorted
func TableNames(t *testing.T, path string) []string {
	t.Helper()
	names := QueryStrings(t, path, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'")
	sort.Strings(names)
	return names
}

// Exists reports whether a file is present
func Exists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("Failed to stat %s: %v", path, err)
	}
	return err == nil
}

// InsertRows returns INSERT statements for n rows of table A and n rows of table B
func InsertRows(n int, label string) []string {
	var stmts []string
	for i := 0; i < n; i++ {
		stmts = append(stmts,
			fmt.Sprintf("INSERT INTO A (name, value) VALUES ('%s', %d.5)", label, i),
			fmt.Sprintf("INSERT INTO B (session_id, device, reading) VALUES ('s%d', '%s', %d)", i, label, i),
		)
	}
	return stmts
}

// Join concatenates statement lists
func Join(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

func open(t *testing.T, path string) *sql.DB {
	t.Helper()
	if !filepath.IsAbs(path) {
		t.Fatalf("Test databases must use absolute paths, got %s", path)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	return db
}

// WriteFile writes content to path
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}
