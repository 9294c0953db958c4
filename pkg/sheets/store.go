// Package sheets reads order identifiers out of a spreadsheet tab and writes
// derived values back to the same rows.
package sheets

import (
	"context"
	"fmt"
	"strings"
)

// ValueRange is one rectangular write addressed in A1 notation.
type ValueRange struct {
	Range  string     `json:"range"`
	Values [][]string `json:"values"`
}

// Store is the tabular backend. ReadRange returns rows of cells exactly as
// stored; trailing empty rows may be omitted.
type Store interface {
	ReadRange(ctx context.Context, a1 string) ([][]string, error)
	BatchWrite(ctx context.Context, ranges []ValueRange) error
}

// QuoteTab renders a tab name for use in an A1 reference.
func QuoteTab(tab string) string {
	if tab == "" {
		return ""
	}
	if isPlainTabName(tab) {
		return tab
	}
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

// SplitRange separates "Tab!B1:C2" into the unquoted tab and the cell part.
func SplitRange(a1 string) (tab, cells string, err error) {
	idx := strings.LastIndex(a1, "!")
	if idx < 0 {
		return "", a1, nil
	}
	tab, cells = a1[:idx], a1[idx+1:]
	if strings.HasPrefix(tab, "'") {
		if len(tab) < 2 || !strings.HasSuffix(tab, "'") {
			return "", "", fmt.Errorf("malformed tab reference in %q", a1)
		}
		tab = strings.ReplaceAll(tab[1:len(tab)-1], "''", "'")
	}
	if cells == "" {
		return "", "", fmt.Errorf("range %q has no cells", a1)
	}
	return tab, cells, nil
}

func ColumnRange(tab, column string) string {
	return prefixTab(tab) + column + ":" + column
}

func RowRange(tab, firstCol, lastCol string, row int) string {
	return fmt.Sprintf("%s%s%d:%s%d", prefixTab(tab), firstCol, row, lastCol, row)
}

func prefixTab(tab string) string {
	if tab == "" {
		return ""
	}
	return QuoteTab(tab) + "!"
}

func isPlainTabName(tab string) bool {
	for _, r := range tab {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}
