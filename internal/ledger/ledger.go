// Package ledger records the databases that were excluded from a merge or
// flagged while being validated.
package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/tordrt/megamerge/internal/schema"
)

// Reasons recorded for each validation outcome
const (
	ReasonMissingTables = "missing table(s), database excluded from merge"
	ReasonExtraTables   = "extra table(s) ignored, database included in merge"
	ReasonMismatch      = "table set mismatch, database excluded from merge"
	ReasonUnreadable    = "schema could not be read, database excluded from merge"
	ReasonDuplicate     = "duplicate path, database excluded from merge"
)

// ReasonFor returns the standard reason for an outcome, or "" for Match
func ReasonFor(outcome schema.Outcome) string {
	switch outcome {
	case schema.MissingTables:
		return ReasonMissingTables
	case schema.ExtraTables:
		return ReasonExtraTables
	case schema.Mismatch:
		return ReasonMismatch
	case schema.Unreadable:
		return ReasonUnreadable
	case schema.Duplicate:
		return ReasonDuplicate
	default:
		return ""
	}
}

// Record is one excluded or flagged source
type Record struct {
	Source     string
	Outcome    schema.Outcome
	Reason     string
	Detail     string
	RecordedAt time.Time
}

// Excluded reports whether the record's source was dropped from the merge
func (r Record) Excluded() bool {
	return !r.Outcome.Merged()
}

// Ledger is an append-only list of records for one run
type Ledger struct {
	runID   uuid.UUID
	records []Record
	now     func() time.Time
}

// New creates an empty ledger with a fresh run id
func New() *Ledger {
	return &Ledger{
		runID: uuid.New(),
		now:   time.Now,
	}
}

// RunID identifies the run the ledger belongs to
func (l *Ledger) RunID() uuid.UUID {
	return l.runID
}

// Add appends a record
func (l *Ledger) Add(source string, outcome schema.Outcome, reason, detail string) {
	l.records = append(l.records, Record{
		Source:     source,
		Outcome:    outcome,
		Reason:     reason,
		Detail:     detail,
		RecordedAt: l.now().UTC(),
	})
}

// Records returns a copy of the records in insertion order
func (l *Ledger) Records() []Record {
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of records
func (l *Ledger) Len() int {
	return len(l.records)
}

// ExcludedSources returns the sources that were dropped from the merge
func (l *Ledger) ExcludedSources() []string {
	var sources []string
	for _, r := range l.records {
		if r.Excluded() {
			sources = append(sources, r.Source)
		}
	}
	return sources
}
