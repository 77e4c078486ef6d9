// Package merge folds many structurally identical SQLite databases into one
// target database.
//
// A run has four phases. The reference table set is read from the target,
// each candidate is classified against it, accepted candidates are
// normalized in place, and the accepted list is merged batch by batch, each
// batch under one target connection with its sources attached. A source is
// deleted once its tables have been processed.
package merge

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/tordrt/megamerge/internal/db"
	"github.com/tordrt/megamerge/internal/ledger"
	"github.com/tordrt/megamerge/internal/schema"
)

// Settings configures a run. Zero values fall back to defaults.
type Settings struct {
	BatchSize             int
	Filter                schema.Filter
	NormalizeTimeout      time.Duration
	MergeTimeout          time.Duration
	DeleteOnAttachFailure bool

	// Remove deletes a consumed source. Defaults to os.Remove.
	Remove   func(path string) error
	Progress Progress
	Logger   *zap.Logger
}

func (s Settings) withDefaults() Settings {
	if s.BatchSize == 0 {
		s.BatchSize = DefaultBatchSize
	}
	if s.Filter.IdentitySubstrings == nil && s.Filter.ExcludedTableSubstrings == nil {
		s.Filter = schema.DefaultFilter()
	}
	if s.NormalizeTimeout == 0 {
		s.NormalizeTimeout = 10 * time.Second
	}
	if s.MergeTimeout == 0 {
		s.MergeTimeout = 15 * time.Second
	}
	if s.Remove == nil {
		s.Remove = os.Remove
	}
	if s.Progress == nil {
		s.Progress = nopProgress{}
	}
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	return s
}

// Plan is the outcome of validation: what will be merged and in which batches
type Plan struct {
	Reference  *Reference
	Candidates int
	MergeList  []string
	Batches    [][]string
	Ledger     *ledger.Ledger
}

// Result is the outcome of a full run
type Result struct {
	*Plan
	NormalizeFailures []error
	Sources           []SourceResult
	Elapsed           time.Duration
}

// Pipeline runs the validate, normalize, batch and merge phases
type Pipeline struct {
	settings Settings
	logger   *zap.Logger
}

// NewPipeline creates a pipeline
func NewPipeline(s Settings) *Pipeline {
	s = s.withDefaults()
	return &Pipeline{settings: s, logger: s.Logger}
}

// Plan reads the reference, validates every candidate and batches the
// survivors. Nothing is modified on disk. When no candidate survives, the
// returned plan is still populated so the ledger can be reported.
func (p *Pipeline) Plan(ctx context.Context, reference string, candidates []string) (*Plan, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidate databases given", ErrNoDatabasesToMerge)
	}

	ref, err := LoadReference(ctx, reference, p.settings.Filter, p.settings.NormalizeTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference database: %w", err)
	}
	p.logger.Info("Loaded reference tables",
		zap.String("database", reference),
		zap.Strings("tables", ref.Sorted()))

	start := time.Now()
	p.logger.Info("Comparing databases", zap.Int("candidates", len(candidates)))

	l := ledger.New()
	mergeList := NewValidator(ref, p.settings.Filter, p.settings.NormalizeTimeout, l, p.logger).Validate(ctx, candidates)

	plan := &Plan{Reference: ref, Candidates: len(candidates), MergeList: mergeList, Ledger: l}

	p.logger.Info("Finished comparing databases",
		zap.Int("matched", len(mergeList)),
		zap.Int("exceptions", l.Len()),
		zap.Duration("elapsed", time.Since(start)))

	if len(mergeList) == 0 {
		return plan, fmt.Errorf("%w: every candidate was excluded", ErrNoDatabasesToMerge)
	}

	plan.Batches, err = Batch(mergeList, p.settings.BatchSize)
	if err != nil {
		return plan, err
	}
	return plan, nil
}

// Run executes every phase. The returned result is non-nil whenever a plan
// was produced, including on ErrNoDatabasesToMerge.
func (p *Pipeline) Run(ctx context.Context, reference string, candidates []string) (*Result, error) {
	start := time.Now()

	plan, err := p.Plan(ctx, reference, candidates)
	if plan == nil {
		return nil, err
	}
	result := &Result{Plan: plan}
	if err != nil {
		result.Elapsed = time.Since(start)
		return result, err
	}

	result.NormalizeFailures = p.normalizeAll(ctx, plan)

	mergeStart := time.Now()
	p.logger.Info("Merging databases",
		zap.Int("databases", len(plan.MergeList)),
		zap.Int("batches", len(plan.Batches)))

	result.Sources, err = NewExecutor(plan.Reference, p.settings).Run(ctx, plan.Batches)
	result.Elapsed = time.Since(start)
	if err != nil {
		return result, err
	}

	p.logger.Info("Databases finished merging", zap.Duration("elapsed", time.Since(mergeStart)))
	return result, nil
}

func (p *Pipeline) normalizeAll(ctx context.Context, plan *Plan) []error {
	start := time.Now()
	p.logger.Info("Pre-processing databases", zap.Int("databases", len(plan.MergeList)))

	var failures []error
	for i, path := range plan.MergeList {
		errs := p.normalize(ctx, path, plan.Reference.Tables)
		for _, err := range errs {
			p.logger.Error("Failed to normalize database",
				zap.String("database", path),
				zap.Error(err),
				zap.Stack("trace"))
		}
		failures = append(failures, errs...)

		p.logger.Info("Pre-processed database",
			zap.Int("position", i+1),
			zap.Int("of", len(plan.MergeList)),
			zap.String("database", path),
			zap.Duration("elapsed", time.Since(start)))
	}
	return failures
}

func (p *Pipeline) normalize(ctx context.Context, path string, tables []string) []error {
	client, err := db.NewSQLiteClient(ctx, path, p.settings.NormalizeTimeout, db.PragmaLegacyAlterTable)
	if err != nil {
		return []error{fmt.Errorf("failed to open %s for normalization: %w", path, err)}
	}
	defer func() { _ = client.Close() }()

	return db.NewNormalizer(client, p.settings.Filter, p.logger).Normalize(ctx, tables)
}
