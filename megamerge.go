// Package megamerge folds many structurally identical SQLite databases into
// one target database.
//
// The first database of the list is the reference and the merge target: its
// table set defines what every other database (a candidate) must look like.
// Candidates are classified against the reference table set, the accepted
// ones are stripped of constraints and identity columns, and their rows are
// appended to the target in batches of at most ten attached databases.
// Merged candidates are deleted; excluded ones are left untouched and listed
// in the exception ledger of the result.
//
// # Quick Start
//
//	result, err := megamerge.Merge(ctx, []string{
//		"/data/main.db",
//		"/data/device-01.db",
//		"/data/device-02.db",
//	}, nil)
//	if errors.Is(err, megamerge.ErrNoDatabasesToMerge) {
//		// every candidate was excluded, see result.Ledger
//	}
//
// # Identity Columns
//
// A column whose name contains "id" or "ID" is never copied or compared;
// the target assigns its own values. The rule is a case-sensitive substring
// match, so "valid" and "identifier" are identity columns too. Use
// Options.IdentitySubstrings to change it.
//
// # Re-running
//
// A merge is not idempotent. Running it again over sources that were kept
// on disk appends their rows a second time.
package megamerge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tordrt/megamerge/internal/db"
	"github.com/tordrt/megamerge/internal/merge"
	"github.com/tordrt/megamerge/internal/schema"
)

// ErrNoDatabasesToMerge is returned when no candidate is left to merge
var ErrNoDatabasesToMerge = merge.ErrNoDatabasesToMerge

// Result describes a completed run. It embeds the Plan it executed.
type Result = merge.Result

// Plan lists the accepted candidates, their batches and the exception ledger
type Plan = merge.Plan

// SourceResult describes what happened to one merged source
type SourceResult = merge.SourceResult

// Progress receives one tick per processed source
type Progress interface {
	Start(total int)
	Incr()
	Stop()
}

// Options configures a merge.
//
// All fields are optional. If not specified:
//   - Reference: the first path of the list
//   - BatchSize: 10, the SQLite attachment limit and the largest value accepted
//   - IdentitySubstrings: "id" and "ID"
//   - ExcludedTableSubstrings: "sqlite_"
//   - NormalizeTimeout: 10s lock wait while rewriting candidates
//   - MergeTimeout: 15s lock wait on the target
type Options struct {
	// Reference names the target database explicitly. When set, every path
	// of the list is a candidate.
	Reference string

	BatchSize               int
	IdentitySubstrings      []string
	ExcludedTableSubstrings []string
	NormalizeTimeout        time.Duration
	MergeTimeout            time.Duration

	// DeleteOnAttachFailure also deletes sources that could not be attached.
	// By default they stay on disk.
	DeleteOnAttachFailure bool

	Logger   *zap.Logger
	Progress Progress
}

func (o *Options) filter() schema.Filter {
	f := schema.DefaultFilter()
	if o.IdentitySubstrings != nil {
		f.IdentitySubstrings = o.IdentitySubstrings
	}
	if o.ExcludedTableSubstrings != nil {
		f.ExcludedTableSubstrings = o.ExcludedTableSubstrings
	}
	return f
}

func (o *Options) settings() merge.Settings {
	s := merge.Settings{
		BatchSize:             o.BatchSize,
		Filter:                o.filter(),
		NormalizeTimeout:      o.NormalizeTimeout,
		MergeTimeout:          o.MergeTimeout,
		DeleteOnAttachFailure: o.DeleteOnAttachFailure,
		Logger:                o.Logger,
	}
	if o.Progress != nil {
		s.Progress = o.Progress
	}
	return s
}

// Merge validates, normalizes and merges every candidate into the reference.
//
// The returned result is non-nil whenever validation ran, including when
// ErrNoDatabasesToMerge is returned, so the exception ledger can always be
// reported. Per-source failures (attach, table copy, delete) do not abort the
// run; they are recorded in Result.Sources.
func Merge(ctx context.Context, paths []string, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}

	reference, candidates, err := SplitPaths(paths, opts.Reference)
	if err != nil {
		return nil, err
	}

	return merge.NewPipeline(opts.settings()).Run(ctx, reference, candidates)
}

// PlanMerge runs validation only. Nothing on disk is modified.
func PlanMerge(ctx context.Context, paths []string, opts *Options) (*Plan, error) {
	if opts == nil {
		opts = &Options{}
	}

	reference, candidates, err := SplitPaths(paths, opts.Reference)
	if err != nil {
		return nil, err
	}

	return merge.NewPipeline(opts.settings()).Plan(ctx, reference, candidates)
}

// InspectReference returns the tables of a database as the merge sees them:
// excluded tables dropped, columns split into copied and identity ones.
func InspectReference(ctx context.Context, path string, opts *Options) (*schema.Schema, error) {
	if opts == nil {
		opts = &Options{}
	}

	timeout := opts.NormalizeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	client, err := db.NewSQLiteClient(ctx, path, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
	}
	defer func() { _ = client.Close() }()

	return db.NewIntrospector(client.GetDB(), path, opts.filter()).ExtractSchema(ctx)
}

// SplitPaths resolves every path to an absolute one and separates the
// reference from the candidates. Without an explicit reference the first
// path is the reference.
func SplitPaths(paths []string, reference string) (string, []string, error) {
	resolved := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		resolved = append(resolved, abs)
	}

	if reference != "" {
		abs, err := filepath.Abs(reference)
		if err != nil {
			return "", nil, fmt.Errorf("failed to resolve %s: %w", reference, err)
		}
		return abs, resolved, nil
	}

	if len(resolved) == 0 {
		return "", nil, errors.New("no databases given")
	}
	return resolved[0], resolved[1:], nil
}

// ReadManifest reads one database path per line. Blank lines and lines
// starting with # are skipped; relative paths are resolved against baseDir.
func ReadManifest(r io.Reader, baseDir string) ([]string, error) {
	var paths []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(baseDir, line)
		}
		paths = append(paths, filepath.Clean(line))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return paths, nil
}

// ReadManifestFile reads a manifest from disk, resolving relative entries
// against the manifest's directory
func ReadManifestFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer func() { _ = f.Close() }()

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return ReadManifest(f, filepath.Dir(abs))
}
