package report

import (
	"fmt"
	"io"
	"strings"
)

// MarkdownFormatter formats a report as markdown
type MarkdownFormatter struct {
	writer io.Writer
}

// NewMarkdownFormatter creates a new markdown formatter
func NewMarkdownFormatter(w io.Writer) *MarkdownFormatter {
	return &MarkdownFormatter{writer: w}
}

// Format writes the report in markdown format
func (f *MarkdownFormatter) Format(r *Report) error {
	_, _ = fmt.Fprintln(f.writer, "# Merge Report")
	_, _ = fmt.Fprintln(f.writer)

	_, _ = fmt.Fprintf(f.writer, "- **Run:** %s\n", r.RunID)
	_, _ = fmt.Fprintf(f.writer, "- **Reference:** `%s`\n", r.Reference)
	_, _ = fmt.Fprintf(f.writer, "- **Tables:** %s\n", strings.Join(r.Tables, ", "))
	_, _ = fmt.Fprintf(f.writer, "- **Candidates:** %d (accepted %d, excluded %d)\n", r.Candidates, r.Accepted, r.ExcludedCount())
	if len(r.BatchSizes) > 0 {
		_, _ = fmt.Fprintf(f.writer, "- **Batches:** %s\n", joinInts(r.BatchSizes))
	}
	if r.Elapsed != "" {
		_, _ = fmt.Fprintf(f.writer, "- **Elapsed:** %s\n", r.Elapsed)
	}
	_, _ = fmt.Fprintln(f.writer)

	f.formatExceptions(r.Exceptions)

	if len(r.NormalizeFailures) > 0 {
		_, _ = fmt.Fprintln(f.writer, "## Normalize Failures")
		_, _ = fmt.Fprintln(f.writer)
		for _, msg := range r.NormalizeFailures {
			_, _ = fmt.Fprintf(f.writer, "- %s\n", msg)
		}
		_, _ = fmt.Fprintln(f.writer)
	}

	if r.Executed {
		f.formatSources(r.Sources)
	}

	return nil
}

func (f *MarkdownFormatter) formatExceptions(exceptions []Exception) {
	_, _ = fmt.Fprintln(f.writer, "## Exceptions")
	_, _ = fmt.Fprintln(f.writer)

	if len(exceptions) == 0 {
		_, _ = fmt.Fprintln(f.writer, "None.")
		_, _ = fmt.Fprintln(f.writer)
		return
	}

	_, _ = fmt.Fprintln(f.writer, "| Source | Outcome | Reason |")
	_, _ = fmt.Fprintln(f.writer, "|--------|---------|--------|")
	for _, e := range exceptions {
		_, _ = fmt.Fprintf(f.writer, "| `%s` | %s | %s |\n", e.Source, e.Outcome, escapeCell(e.Reason))
	}
	_, _ = fmt.Fprintln(f.writer)

	for _, e := range exceptions {
		if e.Detail == "" {
			continue
		}
		_, _ = fmt.Fprintf(f.writer, "### %s\n\n", e.Source)
		_, _ = fmt.Fprintln(f.writer, "```diff")
		_, _ = fmt.Fprintln(f.writer, e.Detail)
		_, _ = fmt.Fprintln(f.writer, "```")
		_, _ = fmt.Fprintln(f.writer)
	}
}

func (f *MarkdownFormatter) formatSources(sources []Source) {
	_, _ = fmt.Fprintln(f.writer, "## Sources")
	_, _ = fmt.Fprintln(f.writer)
	_, _ = fmt.Fprintln(f.writer, "| Source | Batch | Alias | Merged | Failures | Deleted |")
	_, _ = fmt.Fprintln(f.writer, "|--------|-------|-------|--------|----------|---------|")

	for _, s := range sources {
		merged := strings.Join(s.MergedTables, ", ")
		if !s.Attached {
			merged = "not attached"
		}
		_, _ = fmt.Fprintf(f.writer, "| `%s` | %d | %s | %s | %d | %t |\n",
			s.Path, s.Batch, s.Alias, merged, len(s.Failures), s.Deleted)
	}
	_, _ = fmt.Fprintln(f.writer)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
