// Package report renders the outcome of a merge run and persists its
// exception ledger.
package report

import (
	"time"

	"github.com/tordrt/megamerge/internal/merge"
)

// Report is the serializable summary of a plan or a completed run
type Report struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	Reference   string    `json:"reference" yaml:"reference"`
	Tables      []string  `json:"tables" yaml:"tables"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`

	Candidates int   `json:"candidates" yaml:"candidates"`
	Accepted   int   `json:"accepted" yaml:"accepted"`
	BatchSizes []int `json:"batch_sizes" yaml:"batch_sizes"`

	Exceptions []Exception `json:"exceptions" yaml:"exceptions"`

	// Empty for a plan that was never executed
	Sources           []Source `json:"sources,omitempty" yaml:"sources,omitempty"`
	NormalizeFailures []string `json:"normalize_failures,omitempty" yaml:"normalize_failures,omitempty"`
	Elapsed           string   `json:"elapsed,omitempty" yaml:"elapsed,omitempty"`
	Executed          bool     `json:"executed" yaml:"executed"`
}

// Exception is one ledger record
type Exception struct {
	Source     string    `json:"source" yaml:"source"`
	Outcome    string    `json:"outcome" yaml:"outcome"`
	Reason     string    `json:"reason" yaml:"reason"`
	Detail     string    `json:"detail,omitempty" yaml:"detail,omitempty"`
	Excluded   bool      `json:"excluded" yaml:"excluded"`
	RecordedAt time.Time `json:"recorded_at" yaml:"recorded_at"`
}

// Source is what happened to one merged source
type Source struct {
	Path         string   `json:"path" yaml:"path"`
	Batch        int      `json:"batch" yaml:"batch"`
	Alias        string   `json:"alias" yaml:"alias"`
	Attached     bool     `json:"attached" yaml:"attached"`
	MergedTables []string `json:"merged_tables" yaml:"merged_tables"`
	Failures     []string `json:"failures,omitempty" yaml:"failures,omitempty"`
	Deleted      bool     `json:"deleted" yaml:"deleted"`
	Error        string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// FromPlan summarizes a validated plan
func FromPlan(plan *merge.Plan) *Report {
	r := &Report{
		RunID:       plan.Ledger.RunID().String(),
		GeneratedAt: time.Now().UTC(),
		Candidates:  plan.Candidates,
		Accepted:    len(plan.MergeList),
	}
	if plan.Reference != nil {
		r.Reference = plan.Reference.Path
		r.Tables = plan.Reference.Sorted()
	}
	for _, b := range plan.Batches {
		r.BatchSizes = append(r.BatchSizes, len(b))
	}
	for _, rec := range plan.Ledger.Records() {
		r.Exceptions = append(r.Exceptions, Exception{
			Source:     rec.Source,
			Outcome:    rec.Outcome.String(),
			Reason:     rec.Reason,
			Detail:     rec.Detail,
			Excluded:   rec.Excluded(),
			RecordedAt: rec.RecordedAt,
		})
	}
	return r
}

// FromResult summarizes a run, including per-source outcomes
func FromResult(result *merge.Result) *Report {
	r := FromPlan(result.Plan)
	r.Executed = result.Sources != nil
	r.Elapsed = result.Elapsed.Round(time.Millisecond).String()

	for _, err := range result.NormalizeFailures {
		r.NormalizeFailures = append(r.NormalizeFailures, err.Error())
	}

	for _, s := range result.Sources {
		src := Source{
			Path:         s.Source,
			Batch:        s.Batch,
			Alias:        s.Alias,
			Attached:     s.Attached,
			MergedTables: s.MergedTables,
			Deleted:      s.Deleted,
		}
		for _, err := range s.Failures {
			src.Failures = append(src.Failures, err.Error())
		}
		switch {
		case s.AttachErr != nil:
			src.Error = s.AttachErr.Error()
		case s.DeleteErr != nil:
			src.Error = s.DeleteErr.Error()
		}
		r.Sources = append(r.Sources, src)
	}
	return r
}

// ExcludedCount returns the number of candidates dropped from the merge
func (r *Report) ExcludedCount() int {
	n := 0
	for _, e := range r.Exceptions {
		if e.Excluded {
			n++
		}
	}
	return n
}

// MergedCount returns the number of sources that were attached and merged
func (r *Report) MergedCount() int {
	n := 0
	for _, s := range r.Sources {
		if s.Attached {
			n++
		}
	}
	return n
}

// FailedSources returns the sources that were not attached or had a table fail
func (r *Report) FailedSources() []Source {
	var failed []Source
	for _, s := range r.Sources {
		if !s.Attached || len(s.Failures) > 0 {
			failed = append(failed, s)
		}
	}
	return failed
}
