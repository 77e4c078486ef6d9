package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/tordrt/megamerge/internal/schema"
)

// TextFormatter formats a merge schema as compact text
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// Format writes the schema in compact text format
func (f *TextFormatter) Format(s *schema.Schema) error {
	for i, table := range s.Tables {
		if i > 0 {
			_, _ = fmt.Fprintln(f.writer) // Blank line between tables
		}

		if err := f.formatTable(table); err != nil {
			return err
		}
	}
	return nil
}

func (f *TextFormatter) formatTable(table schema.Table) error {
	_, _ = fmt.Fprintf(f.writer, "TABLE %s\n", table.Name)

	for _, col := range table.Columns {
		_, _ = fmt.Fprintf(f.writer, "  %s\n", formatColumn(col))
	}

	if len(table.Identity) > 0 {
		_, _ = fmt.Fprintf(f.writer, "  SKIPPED: %s\n", strings.Join(schema.Names(table.Identity), ", "))
	}

	if stripped := describeConstraints(table.Constraints); len(stripped) > 0 {
		_, _ = fmt.Fprintf(f.writer, "  STRIPPED: %s\n", strings.Join(stripped, "; "))
	}

	return nil
}

func formatColumn(col schema.Column) string {
	if col.Type == "" {
		return col.Name + ": (untyped)"
	}
	return col.Name + ": " + col.Type
}
