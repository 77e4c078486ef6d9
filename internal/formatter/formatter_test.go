package formatter

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tordrt/megamerge/internal/schema"
)

func sampleSchema() *schema.Schema {
	return &schema.Schema{Tables: []schema.Table{
		{
			Name:     "B",
			Columns:  []schema.Column{{Name: "device", Type: "TEXT"}, {Name: "reading", Type: "INTEGER"}},
			Identity: []schema.Column{{Name: "ID", Type: "INTEGER"}, {Name: "session_id", Type: "TEXT"}},
		},
		{
			Name:    "A",
			Columns: []schema.Column{{Name: "note"}},
		},
	}}
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTextFormatter(&buf).Format(sampleSchema()); err != nil {
		t.Fatalf("Format failed: %v", err)
	}

	want := `TABLE B
  device: TEXT
  reading: INTEGER
  SKIPPED: ID, session_id

TABLE A
  note: (untyped)
`
	if buf.String() != want {
		t.Errorf("unexpected output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestMarkdownFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewMarkdownFormatter(&buf).Format(sampleSchema()); err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"# Merge Schema\n",
		"## B\n",
		"- **device:** TEXT\n",
		"### Skipped identity columns\n\n`ID`, `session_id`\n",
		"- **note:** untyped\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "### Skipped identity columns") != 1 {
		t.Error("table without identity columns should not list skipped columns")
	}
}

func TestFormattersRenderConstraints(t *testing.T) {
	s := &schema.Schema{Tables: []schema.Table{{
		Name:     "K",
		Columns:  []schema.Column{{Name: "code", Type: "TEXT"}, {Name: "parent", Type: "INTEGER"}},
		Identity: []schema.Column{{Name: "id", Type: "INTEGER"}},
		Constraints: schema.Constraints{
			PrimaryKey:  []string{"id"},
			NotNull:     []string{"code"},
			Defaults:    []schema.Default{{Column: "parent", Value: "0"}},
			Indexes:     []schema.Index{{Name: "sqlite_autoindex_K_1", Columns: []string{"code"}, IsUnique: true}},
			ForeignKeys: []schema.ForeignKey{{Column: "parent", TargetTable: "P", TargetColumn: "pid"}},
		},
	}}}

	var text bytes.Buffer
	if err := NewTextFormatter(&text).Format(s); err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	wantLine := "  STRIPPED: PRIMARY KEY (id); NOT NULL code; DEFAULT parent = 0; " +
		"UNIQUE INDEX sqlite_autoindex_K_1 (code); FOREIGN KEY parent -> P(pid)\n"
	if !strings.HasSuffix(text.String(), wantLine) {
		t.Errorf("text output missing constraint line:\n%s", text.String())
	}

	var md bytes.Buffer
	if err := NewMarkdownFormatter(&md).Format(s); err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	for _, want := range []string{
		"### Stripped on normalize\n\n",
		"- PRIMARY KEY (id)\n",
		"- FOREIGN KEY parent -> P(pid)\n",
	} {
		if !strings.Contains(md.String(), want) {
			t.Errorf("markdown output missing %q:\n%s", want, md.String())
		}
	}
}

func TestMultiFileFormatter(t *testing.T) {
	tests := []struct {
		format string
		ext    string
		header string
		lineA  string
		lineB  string
	}{
		{"markdown", ".md", "# Merge Schema Overview", "- **A** (1 copied, 0 skipped)", "- **B** (2 copied, 2 skipped)"},
		{"text", ".txt", "MERGE SCHEMA OVERVIEW", "\nA (1 copied, 0 skipped)", "\nB (2 copied, 2 skipped)"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "schema")
			if err := NewMultiFileFormatter(dir, tt.format).Format(sampleSchema()); err != nil {
				t.Fatalf("Format failed: %v", err)
			}

			overview, err := os.ReadFile(filepath.Join(dir, "_overview"+tt.ext))
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(string(overview), tt.header) {
				t.Errorf("overview starts with %q", string(overview))
			}
			posA := strings.Index(string(overview), tt.lineA)
			posB := strings.Index(string(overview), tt.lineB)
			if posA < 0 || posB < 0 {
				t.Fatalf("overview missing table lines:\n%s", overview)
			}
			if posA > posB {
				t.Errorf("overview not sorted:\n%s", overview)
			}

			for _, table := range []string{"A", "B"} {
				if _, err := os.Stat(filepath.Join(dir, table+tt.ext)); err != nil {
					t.Errorf("missing table file for %s: %v", table, err)
				}
			}
		})
	}
}

func TestMultiFileFormatterRejectsUnknownFormat(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "schema")
	if err := NewMultiFileFormatter(dir, "json").Format(sampleSchema()); err == nil {
		t.Fatal("Expected error for unknown format")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("output directory should not be created for an unknown format")
	}
}
