package schema

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Outcome is the result of comparing a candidate's table set to the reference
type Outcome int

const (
	// Match means the candidate has exactly the reference tables.
	Match Outcome = iota
	// ExtraTables means the candidate has more tables; only reference tables are merged.
	ExtraTables
	// MissingTables means the candidate has fewer tables and is excluded.
	MissingTables
	// Mismatch means the candidate has as many tables but different ones and is excluded.
	Mismatch
	// Unreadable is recorded when a candidate's catalog cannot be read. Classify never returns it.
	Unreadable
	// Duplicate is recorded when a path appears twice in the input. Classify never returns it.
	Duplicate
)

var outcomeNames = map[Outcome]string{
	Match:         "match",
	ExtraTables:   "extra_tables",
	MissingTables: "missing_tables",
	Mismatch:      "mismatch",
	Unreadable:    "unreadable",
	Duplicate:     "duplicate",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// Merged reports whether a candidate with this outcome stays in the merge list
func (o Outcome) Merged() bool {
	return o == Match || o == ExtraTables
}

// Classify compares the reference table set to a candidate table set.
//
// The rule is evaluated in order: fewer tables than the reference is
// MissingTables, more is ExtraTables, same count with different names is
// Mismatch, otherwise Match. Inputs are not modified; both are compared sorted.
func Classify(reference, candidate []string) Outcome {
	r := sortedCopy(reference)
	t := sortedCopy(candidate)

	switch {
	case len(r) > len(t):
		return MissingTables
	case len(r) < len(t):
		return ExtraTables
	}

	for i := range r {
		if r[i] != t[i] {
			return Mismatch
		}
	}
	return Match
}

// DiffTables renders a unified diff from the reference table list to the
// candidate's. It returns an empty string when the sets are equal.
func DiffTables(reference, candidate []string) string {
	r := sortedCopy(reference)
	t := sortedCopy(candidate)

	diff := difflib.UnifiedDiff{
		A:        linesOf(r),
		B:        linesOf(t),
		FromFile: "reference",
		ToFile:   "candidate",
		Context:  0,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return strings.TrimRight(text, "\n")
}

func sortedCopy(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	sort.Strings(out)
	return out
}

func linesOf(names []string) []string {
	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = name + "\n"
	}
	return lines
}
