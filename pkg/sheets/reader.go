package sheets

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// IdentifierPattern matches order codes such as C#1234 or C#12345.
var IdentifierPattern = regexp.MustCompile(`^[A-Za-z]#[0-9]{4,5}$`)

// Row is one matching cell. Position is the 1-based sheet row.
type Row struct {
	Position   int
	Identifier string
}

// ReadIdentifierColumn scans column top to bottom and returns every cell
// whose trimmed value matches IdentifierPattern. Non-matching rows are
// skipped without renumbering.
func ReadIdentifierColumn(ctx context.Context, store Store, tab, column string) ([]Row, error) {
	a1 := ColumnRange(tab, column)
	values, err := store.ReadRange(ctx, a1)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", a1, err)
	}

	rows := make([]Row, 0, len(values))
	for i, cells := range values {
		if len(cells) == 0 {
			continue
		}
		id := strings.TrimSpace(cells[0])
		if !IdentifierPattern.MatchString(id) {
			continue
		}
		rows = append(rows, Row{Position: i + 1, Identifier: id})
	}
	return rows, nil
}
