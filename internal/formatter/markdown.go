package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/tordrt/megamerge/internal/schema"
)

// MarkdownFormatter formats a merge schema as markdown
type MarkdownFormatter struct {
	writer io.Writer
}

// NewMarkdownFormatter creates a new markdown formatter
func NewMarkdownFormatter(w io.Writer) *MarkdownFormatter {
	return &MarkdownFormatter{writer: w}
}

// Format writes the schema in markdown format
func (f *MarkdownFormatter) Format(s *schema.Schema) error {
	_, _ = fmt.Fprintln(f.writer, "# Merge Schema")
	_, _ = fmt.Fprintln(f.writer)

	for _, table := range s.Tables {
		if err := f.FormatTable(table); err != nil {
			return err
		}
	}
	return nil
}

// FormatTable formats a single table (exported for use by multifile formatter)
func (f *MarkdownFormatter) FormatTable(table schema.Table) error {
	_, _ = fmt.Fprintf(f.writer, "## %s\n\n", table.Name)

	_, _ = fmt.Fprintln(f.writer, "### Copied columns")
	_, _ = fmt.Fprintln(f.writer)
	for _, col := range table.Columns {
		_, _ = fmt.Fprintf(f.writer, "- **%s:** %s\n", col.Name, typeOrUntyped(col.Type))
	}
	_, _ = fmt.Fprintln(f.writer)

	if len(table.Identity) > 0 {
		_, _ = fmt.Fprintln(f.writer, "### Skipped identity columns")
		_, _ = fmt.Fprintln(f.writer)
		names := make([]string, len(table.Identity))
		for i, col := range table.Identity {
			names[i] = "`" + col.Name + "`"
		}
		_, _ = fmt.Fprintln(f.writer, strings.Join(names, ", "))
		_, _ = fmt.Fprintln(f.writer)
	}

	if stripped := describeConstraints(table.Constraints); len(stripped) > 0 {
		_, _ = fmt.Fprintln(f.writer, "### Stripped on normalize")
		_, _ = fmt.Fprintln(f.writer)
		for _, clause := range stripped {
			_, _ = fmt.Fprintf(f.writer, "- %s\n", clause)
		}
		_, _ = fmt.Fprintln(f.writer)
	}

	return nil
}

func typeOrUntyped(t string) string {
	if t == "" {
		return "untyped"
	}
	return t
}
