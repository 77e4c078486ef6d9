package merge

import (
	"fmt"

	"github.com/tordrt/megamerge/internal/db"
)

// DefaultBatchSize is SQLite's default limit on attached databases per connection
const DefaultBatchSize = db.MaxAttached

// Batch splits paths into consecutive batches of at most limit entries,
// keeping input order. The last batch may be partial. limit may not exceed
// the attachment limit.
func Batch(paths []string, limit int) ([][]string, error) {
	if limit < 1 || limit > db.MaxAttached {
		return nil, fmt.Errorf("batch size must be between 1 and %d, got %d", db.MaxAttached, limit)
	}

	batches := make([][]string, 0, (len(paths)+limit-1)/limit)
	for start := 0; start < len(paths); start += limit {
		end := min(start+limit, len(paths))
		batch := make([]string, end-start)
		copy(batch, paths[start:end])
		batches = append(batches, batch)
	}
	return batches, nil
}

// Alias returns the attachment alias for a position within a batch
func Alias(batch, position int) string {
	return fmt.Sprintf("db_%d_%d", batch, position)
}
