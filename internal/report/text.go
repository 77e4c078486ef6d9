package report

import (
	"fmt"
	"io"
	"strings"
)

// TextFormatter formats a report as compact text
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// Format writes the report in compact text format
func (f *TextFormatter) Format(r *Report) error {
	_, _ = fmt.Fprintf(f.writer, "RUN %s\n", r.RunID)
	_, _ = fmt.Fprintf(f.writer, "  reference: %s\n", r.Reference)
	_, _ = fmt.Fprintf(f.writer, "  tables: %s\n", strings.Join(r.Tables, ", "))
	_, _ = fmt.Fprintf(f.writer, "  candidates: %d, accepted: %d, excluded: %d\n", r.Candidates, r.Accepted, r.ExcludedCount())
	if len(r.BatchSizes) > 0 {
		_, _ = fmt.Fprintf(f.writer, "  batches: %s\n", joinInts(r.BatchSizes))
	}
	if r.Elapsed != "" {
		_, _ = fmt.Fprintf(f.writer, "  elapsed: %s\n", r.Elapsed)
	}

	_, _ = fmt.Fprintln(f.writer)
	if len(r.Exceptions) == 0 {
		_, _ = fmt.Fprintln(f.writer, "EXCEPTIONS: none")
	} else {
		_, _ = fmt.Fprintln(f.writer, "EXCEPTIONS:")
		for _, e := range r.Exceptions {
			_, _ = fmt.Fprintf(f.writer, "  %s [%s] %s\n", e.Source, e.Outcome, e.Reason)
			if e.Detail != "" {
				for _, line := range strings.Split(e.Detail, "\n") {
					_, _ = fmt.Fprintf(f.writer, "    %s\n", line)
				}
			}
		}
	}

	if len(r.NormalizeFailures) > 0 {
		_, _ = fmt.Fprintln(f.writer)
		_, _ = fmt.Fprintln(f.writer, "NORMALIZE FAILURES:")
		for _, msg := range r.NormalizeFailures {
			_, _ = fmt.Fprintf(f.writer, "  %s\n", msg)
		}
	}

	if r.Executed {
		_, _ = fmt.Fprintln(f.writer)
		_, _ = fmt.Fprintln(f.writer, "SOURCES:")
		for _, s := range r.Sources {
			_, _ = fmt.Fprintf(f.writer, "  %s\n", f.formatSource(s))
			for _, msg := range s.Failures {
				_, _ = fmt.Fprintf(f.writer, "    ! %s\n", msg)
			}
		}
	}

	return nil
}

func (f *TextFormatter) formatSource(s Source) string {
	parts := []string{s.Path + ":", fmt.Sprintf("batch %d as %s", s.Batch, s.Alias)}

	if !s.Attached {
		parts = append(parts, "NOT ATTACHED")
	} else {
		parts = append(parts, fmt.Sprintf("merged %s", strings.Join(s.MergedTables, ",")))
	}

	if s.Deleted {
		parts = append(parts, "DELETED")
	} else {
		parts = append(parts, "KEPT")
	}

	if s.Error != "" {
		parts = append(parts, fmt.Sprintf("(%s)", s.Error))
	}

	return strings.Join(parts, " ")
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
