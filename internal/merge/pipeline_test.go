package merge

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/megamerge/internal/schema"
	"github.com/tordrt/megamerge/internal/testutil"
)

func newReferenceDB(t *testing.T, dir string) string {
	t.Helper()
	return testutil.CreateDatabase(t, dir, "ref.db",
		testutil.Join([]string{testutil.TableA, testutil.TableB}, testutil.InsertRows(1, "ref"))...)
}

// Two rows per table that differ only in identity columns
func identityOnlyRows() []string {
	return []string{
		"INSERT INTO A (id, name, value) VALUES (1, 'same', 2.5)",
		"INSERT INTO A (id, name, value) VALUES (2, 'same', 2.5)",
		"INSERT INTO B (ID, session_id, device, reading) VALUES (1, 's1', 'dev', 7)",
		"INSERT INTO B (ID, session_id, device, reading) VALUES (2, 's2', 'dev', 7)",
	}
}

func TestScenarioMatchingCandidateMerged(t *testing.T) {
	dir := t.TempDir()
	ref := newReferenceDB(t, dir)
	cand := testutil.CreateDatabase(t, dir, "cand.db",
		testutil.Join([]string{testutil.TableA, testutil.TableB}, identityOnlyRows())...)

	result, err := NewPipeline(Settings{}).Run(context.Background(), ref, []string{cand})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Ledger.Len())
	assert.Equal(t, 3, testutil.CountRows(t, ref, "A"))
	assert.Equal(t, 3, testutil.CountRows(t, ref, "B"))

	// Identity values come from the target, not the candidate
	assert.Equal(t, []string{"1", "2", "3"}, testutil.QueryStrings(t, ref, "SELECT id FROM A ORDER BY id"))
	assert.Equal(t, []string{"s0", "", ""}, testutil.QueryStrings(t, ref, "SELECT session_id FROM B ORDER BY ID"))

	assert.False(t, testutil.Exists(t, cand), "candidate should be deleted after merging")

	// Target schema is unchanged
	assert.Equal(t, []string{"id", "name", "value"}, testutil.ColumnNames(t, ref, "A"))
	assert.Contains(t, testutil.TableSQL(t, ref, "A"), "AUTOINCREMENT")
}

func TestScenarioMissingTablesExcluded(t *testing.T) {
	dir := t.TempDir()
	ref := newReferenceDB(t, dir)
	cand := testutil.CreateDatabase(t, dir, "cand.db",
		testutil.TableA, "INSERT INTO A (name) VALUES ('x')")
	before := testutil.TableSQL(t, cand, "A")

	result, err := NewPipeline(Settings{}).Run(context.Background(), ref, []string{cand})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoDatabasesToMerge))
	require.NotNil(t, result)

	records := result.Ledger.Records()
	require.Len(t, records, 1)
	assert.Equal(t, cand, records[0].Source)
	assert.Equal(t, schema.MissingTables, records[0].Outcome)
	assert.Contains(t, records[0].Reason, "missing table(s)")

	assert.Equal(t, 1, testutil.CountRows(t, ref, "A"))
	assert.True(t, testutil.Exists(t, cand), "excluded candidate must not be deleted")
	assert.Equal(t, before, testutil.TableSQL(t, cand, "A"), "excluded candidate must not be normalized")
	assert.Empty(t, result.Sources, "excluded candidate must not be attached")
}

func TestExcludedCandidateUntouchedAlongsideMergedOnes(t *testing.T) {
	dir := t.TempDir()
	ref := newReferenceDB(t, dir)
	good := newSource(t, dir, "good.db", 2)
	mismatch := testutil.CreateDatabase(t, dir, "mismatch.db", testutil.TableA, testutil.TableC)
	before := testutil.TableSQL(t, mismatch, "A")

	rec := &removeRecorder{}
	result, err := NewPipeline(Settings{Remove: rec.remove}).Run(context.Background(), ref, []string{mismatch, good})
	require.NoError(t, err)

	assert.Equal(t, []string{good}, rec.removed)
	assert.Equal(t, before, testutil.TableSQL(t, mismatch, "A"))
	for _, src := range result.Sources {
		assert.NotEqual(t, mismatch, src.Source, "mismatched candidate was attached")
	}
	assert.Equal(t, []string{mismatch}, result.Ledger.ExcludedSources())
}

func TestScenarioExtraTablesIgnored(t *testing.T) {
	dir := t.TempDir()
	ref := newReferenceDB(t, dir)
	cand := testutil.CreateDatabase(t, dir, "cand.db",
		testutil.Join(
			[]string{testutil.TableA, testutil.TableB, "CREATE TABLE C (id INTEGER PRIMARY KEY, note TEXT NOT NULL)"},
			testutil.InsertRows(2, "cand"),
			[]string{"INSERT INTO C (note) VALUES ('extra')"},
		)...)
	beforeC := testutil.TableSQL(t, cand, "C")

	rec := &removeRecorder{keep: true}
	result, err := NewPipeline(Settings{Remove: rec.remove}).Run(context.Background(), ref, []string{cand})
	require.NoError(t, err)

	records := result.Ledger.Records()
	require.Len(t, records, 1)
	assert.Equal(t, schema.ExtraTables, records[0].Outcome)
	assert.Contains(t, records[0].Reason, "extra table(s) ignored")

	require.Len(t, result.Sources, 1)
	assert.Equal(t, []string{"A", "B"}, result.Sources[0].MergedTables)
	assert.Equal(t, 3, testutil.CountRows(t, ref, "A"))
	assert.Equal(t, 3, testutil.CountRows(t, ref, "B"))
	assert.Equal(t, []string{"A", "B"}, testutil.TableNames(t, ref), "table C must not reach the target")

	assert.Equal(t, beforeC, testutil.TableSQL(t, cand, "C"), "table C must not be normalized")
	assert.Equal(t, []string{cand}, rec.removed)
}

func TestScenarioTwentyFiveCandidatesBatched(t *testing.T) {
	dir := t.TempDir()
	ref := newReferenceDB(t, dir)

	var candidates []string
	for i := 0; i < 25; i++ {
		candidates = append(candidates, testutil.CreateDatabase(t, dir, fmt.Sprintf("c%02d.db", i), testutil.TableA, testutil.TableB))
	}

	plan, err := NewPipeline(Settings{}).Plan(context.Background(), ref, candidates)
	require.NoError(t, err)

	require.Len(t, plan.Batches, 3)
	assert.Len(t, plan.Batches[0], 10)
	assert.Len(t, plan.Batches[1], 10)
	assert.Len(t, plan.Batches[2], 5)
	assert.Equal(t, candidates[:10], plan.Batches[0])
	assert.Equal(t, candidates[20:], plan.Batches[2])

	// Planning touches nothing
	for _, c := range candidates {
		assert.Equal(t, []string{"id", "name", "value"}, testutil.ColumnNames(t, c, "A"))
	}
}

func TestScenarioTableFailureStillDeletesSource(t *testing.T) {
	dir := t.TempDir()
	ref := newReferenceDB(t, dir)
	// Table A lacks the "value" column the target copies
	cand := testutil.CreateDatabase(t, dir, "cand.db",
		"CREATE TABLE A (id INTEGER PRIMARY KEY, name TEXT NOT NULL)",
		testutil.TableB,
		"INSERT INTO A (name) VALUES ('x')",
		"INSERT INTO B (device, reading) VALUES ('d', 1)",
	)

	rec := &removeRecorder{}
	result, err := NewPipeline(Settings{Remove: rec.remove}).Run(context.Background(), ref, []string{cand})
	require.NoError(t, err)

	require.Len(t, result.Sources, 1)
	src := result.Sources[0]
	require.Len(t, src.Failures, 1)

	var mergeErr *TableMergeError
	require.True(t, errors.As(src.Failures[0], &mergeErr))
	assert.Equal(t, "A", mergeErr.Table)

	assert.Equal(t, []string{"B"}, src.MergedTables, "table B must still be attempted")
	assert.True(t, src.Deleted)
	assert.Equal(t, []string{cand}, rec.removed)
	assert.False(t, testutil.Exists(t, cand))

	assert.Equal(t, 1, testutil.CountRows(t, ref, "A"))
	assert.Equal(t, 2, testutil.CountRows(t, ref, "B"))
}

func TestNormalizedCandidateMatchesReferenceColumns(t *testing.T) {
	dir := t.TempDir()
	ref := newReferenceDB(t, dir)
	cand := newSource(t, dir, "cand.db", 1)

	p := NewPipeline(Settings{})
	plan, err := p.Plan(context.Background(), ref, []string{cand})
	require.NoError(t, err)

	failures := p.normalizeAll(context.Background(), plan)
	require.Empty(t, failures)

	filter := schema.DefaultFilter()
	for _, table := range plan.Reference.Tables {
		var refColumns []string
		for _, name := range testutil.ColumnNames(t, ref, table) {
			if !filter.IsIdentity(name) {
				refColumns = append(refColumns, name)
			}
		}
		got := testutil.ColumnNames(t, cand, table)
		if !reflect.DeepEqual(got, refColumns) {
			t.Errorf("table %s: normalized columns %v, reference non-identity columns %v", table, got, refColumns)
		}
	}
}

func TestPlanRejectsBatchSizeAboveAttachmentLimit(t *testing.T) {
	dir := t.TempDir()
	ref := newReferenceDB(t, dir)

	var candidates []string
	for i := 0; i < 12; i++ {
		candidates = append(candidates, testutil.CreateDatabase(t, dir, fmt.Sprintf("c%02d.db", i), testutil.TableA, testutil.TableB))
	}

	plan, err := NewPipeline(Settings{BatchSize: 12}).Plan(context.Background(), ref, candidates)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoDatabasesToMerge))
	require.NotNil(t, plan)
	assert.Empty(t, plan.Batches)
}

func TestPlanNoCandidates(t *testing.T) {
	ref := newReferenceDB(t, t.TempDir())

	plan, err := NewPipeline(Settings{}).Plan(context.Background(), ref, nil)
	assert.Nil(t, plan)
	assert.True(t, errors.Is(err, ErrNoDatabasesToMerge))
}

func TestPlanUnreadableReferenceIsFatal(t *testing.T) {
	dir := t.TempDir()
	cand := newSource(t, dir, "cand.db", 1)

	_, err := NewPipeline(Settings{}).Plan(context.Background(), dir+"/missing.db", []string{cand})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoDatabasesToMerge))
	assert.True(t, strings.Contains(err.Error(), "reference"))
}
