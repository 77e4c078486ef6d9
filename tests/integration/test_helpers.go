//go:build integration
// +build integration

package integration

import (
	"context"
	"fmt"
	"testing"

	"github.com/tordrt/megamerge"
	"github.com/tordrt/megamerge/internal/report"
	"github.com/tordrt/megamerge/internal/testutil"
)

// buildDatabases creates a reference plus n matching candidates and the
// given extra databases, returning the full path list (reference first)
func buildDatabases(t *testing.T, dir string, n int, extra ...[]string) []string {
	t.Helper()

	both := []string{testutil.TableA, testutil.TableB}
	paths := []string{testutil.CreateDatabase(t, dir, "main.db", both...)}
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("device-%02d.db", i)
		paths = append(paths, testutil.CreateDatabase(t, dir, name, testutil.Join(both, testutil.InsertRows(i%3+1, name))...))
	}
	for i, stmts := range extra {
		paths = append(paths, testutil.CreateDatabase(t, dir, fmt.Sprintf("odd-%02d.db", i), stmts...))
	}
	return paths
}

// planReport validates a small set with two exclusions and returns its report
func planReport(t *testing.T) *report.Report {
	t.Helper()

	paths := buildDatabases(t, t.TempDir(), 2,
		[]string{testutil.TableA},
		[]string{testutil.TableA, testutil.TableC},
	)
	plan, err := megamerge.PlanMerge(context.Background(), paths, nil)
	if err != nil {
		t.Fatalf("PlanMerge failed: %v", err)
	}
	return report.FromPlan(plan)
}

// verifyStoredOutcomes checks the outcomes stored for one run, in source order
func verifyStoredOutcomes(t *testing.T, r *report.Report, got map[string]string) {
	t.Helper()

	if len(got) != len(r.Exceptions) {
		t.Fatalf("Expected %d stored exceptions, got %d", len(r.Exceptions), len(got))
	}
	for _, e := range r.Exceptions {
		if got[e.Source] != e.Outcome {
			t.Errorf("Stored outcome for %s = %q, want %q", e.Source, got[e.Source], e.Outcome)
		}
	}
}
