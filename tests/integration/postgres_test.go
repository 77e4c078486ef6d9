//go:build integration
// +build integration

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tordrt/megamerge/internal/report"
)

const postgresImage = "postgres:17-alpine"

// postgresURL returns POSTGRES_TEST_URL or starts a throwaway container
func postgresURL(t *testing.T) string {
	t.Helper()

	if url := os.Getenv("POSTGRES_TEST_URL"); url != "" {
		return url
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx,
		postgresImage,
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpassword"),
		postgres.WithDatabase("testdb"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL: %v", err)
	}
	t.Cleanup(func() { _ = ctr.Terminate(ctx) })

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}
	return url
}

func TestPostgresSink(t *testing.T) {
	ctx := context.Background()
	r := planReport(t)

	sink, err := report.OpenSink(ctx, postgresURL(t))
	if err != nil {
		t.Fatalf("Failed to open sink: %v", err)
	}
	defer sink.Close(ctx)

	if err := sink.Write(ctx, r); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	conn := sink.(*report.PostgresSink).GetConnection()
	rows, err := conn.Query(ctx,
		"SELECT source, outcome FROM "+report.ExceptionsTable+" WHERE run_id = $1", r.RunID)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	got := map[string]string{}
	for rows.Next() {
		var source, outcome string
		if err := rows.Scan(&source, &outcome); err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		got[source] = outcome
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}

	verifyStoredOutcomes(t, r, got)
}

func TestPostgresSinkReopen(t *testing.T) {
	ctx := context.Background()
	url := postgresURL(t)

	// The table is created once and reused
	for i := 0; i < 2; i++ {
		sink, err := report.OpenSink(ctx, url)
		if err != nil {
			t.Fatalf("open %d failed: %v", i, err)
		}
		if err := sink.Write(ctx, planReport(t)); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
		_ = sink.Close(ctx)
	}
}
