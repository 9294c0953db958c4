package sheets

import (
	"context"
	"fmt"
)

// MaxRangesPerBatch bounds one BatchWrite call.
const MaxRangesPerBatch = 400

// RowUpdate holds the output values for one sheet row.
type RowUpdate struct {
	Position int
	Values   [4]string
}

// Columns names the first and last of the four output columns.
type Columns struct {
	First string
	Last  string
}

var DefaultOutputColumns = Columns{First: "D", Last: "G"}

// WriteUpdates writes each update to its row in chunks of MaxRangesPerBatch.
// A failed chunk stops the write; earlier chunks stay committed.
func WriteUpdates(ctx context.Context, store Store, tab string, cols Columns, updates []RowUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	ranges := make([]ValueRange, 0, len(updates))
	for _, u := range updates {
		ranges = append(ranges, ValueRange{
			Range:  RowRange(tab, cols.First, cols.Last, u.Position),
			Values: [][]string{u.Values[:]},
		})
	}

	for start := 0; start < len(ranges); start += MaxRangesPerBatch {
		end := min(start+MaxRangesPerBatch, len(ranges))
		if err := store.BatchWrite(ctx, ranges[start:end]); err != nil {
			return fmt.Errorf("write rows %d-%d of %d: %w", start+1, end, len(ranges), err)
		}
	}
	return nil
}
