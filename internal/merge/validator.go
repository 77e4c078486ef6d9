package merge

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tordrt/megamerge/internal/db"
	"github.com/tordrt/megamerge/internal/ledger"
	"github.com/tordrt/megamerge/internal/schema"
)

// Reference is the table set every candidate is compared against. It is
// computed once from the target database and not modified afterwards.
type Reference struct {
	Path string

	// Tables holds the kept table names in catalog order. Merging follows this order.
	Tables []string

	sorted []string
}

// Sorted returns the reference table names in lexical order
func (r *Reference) Sorted() []string {
	out := make([]string, len(r.sorted))
	copy(out, r.sorted)
	return out
}

// LoadReference reads the reference table set from the target database.
// Any failure here is fatal for the run.
func LoadReference(ctx context.Context, path string, filter schema.Filter, timeout time.Duration) (*Reference, error) {
	client, err := db.NewSQLiteClient(ctx, path, timeout)
	if err != nil {
		return nil, &db.IntrospectionError{Path: path, Err: err}
	}
	defer func() { _ = client.Close() }()

	tables, err := db.NewIntrospector(client.GetDB(), path, filter).ListTables(ctx)
	if err != nil {
		return nil, err
	}
	return newReference(path, tables), nil
}

func newReference(path string, tables []string) *Reference {
	sorted := make([]string, len(tables))
	copy(sorted, tables)
	sort.Strings(sorted)

	return &Reference{
		Path:   path,
		Tables: append([]string(nil), tables...),
		sorted: sorted,
	}
}

// Validator classifies candidate databases against the reference
type Validator struct {
	reference *Reference
	filter    schema.Filter
	timeout   time.Duration
	ledger    *ledger.Ledger
	logger    *zap.Logger
}

// NewValidator creates a validator that records exclusions in l
func NewValidator(reference *Reference, filter schema.Filter, timeout time.Duration, l *ledger.Ledger, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		reference: reference,
		filter:    filter,
		timeout:   timeout,
		ledger:    l,
		logger:    logger,
	}
}

// Validate returns the candidates that may be merged, in input order.
// Every other candidate gets a ledger record explaining why.
func (v *Validator) Validate(ctx context.Context, candidates []string) []string {
	seen := map[string]bool{cleanPath(v.reference.Path): true}
	mergeList := make([]string, 0, len(candidates))

	for i, candidate := range candidates {
		key := cleanPath(candidate)
		if seen[key] {
			v.logger.Warn("Duplicate database path, skipping", zap.String("database", candidate))
			v.ledger.Add(candidate, schema.Duplicate, ledger.ReasonDuplicate, "")
			continue
		}
		seen[key] = true

		outcome, detail, err := v.Classify(ctx, candidate)
		if err != nil {
			v.logger.Error("Failed to read candidate schema",
				zap.String("database", candidate),
				zap.Error(err),
				zap.Stack("trace"))
			v.ledger.Add(candidate, schema.Unreadable, ledger.ReasonUnreadable, err.Error())
			continue
		}

		switch outcome {
		case schema.Match:
			v.logger.Info("Tables match the reference database",
				zap.Int("position", i+1),
				zap.String("database", candidate))
		case schema.ExtraTables:
			v.logger.Warn("Extra tables in candidate database; tables not in the reference will not be merged",
				zap.String("database", candidate))
			v.ledger.Add(candidate, outcome, ledger.ReasonFor(outcome), detail)
		default:
			v.logger.Warn("Candidate database will not be merged",
				zap.String("database", candidate),
				zap.Stringer("outcome", outcome))
			v.ledger.Add(candidate, outcome, ledger.ReasonFor(outcome), detail)
		}

		if outcome.Merged() {
			mergeList = append(mergeList, candidate)
		}
	}

	return mergeList
}

// Classify reads a candidate's table set and compares it to the reference.
// The returned detail is a diff of the two table lists.
func (v *Validator) Classify(ctx context.Context, path string) (schema.Outcome, string, error) {
	client, err := db.NewSQLiteClient(ctx, path, v.timeout)
	if err != nil {
		return 0, "", &db.IntrospectionError{Path: path, Err: err}
	}
	defer func() { _ = client.Close() }()

	tables, err := db.NewIntrospector(client.GetDB(), path, v.filter).ListTables(ctx)
	if err != nil {
		return 0, "", err
	}

	reference := v.reference.Sorted()
	return schema.Classify(reference, tables), schema.DiffTables(reference, tables), nil
}

func cleanPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
