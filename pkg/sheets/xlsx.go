package sheets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
)

// XLSXStore is a Store backed by a local workbook. Every BatchWrite saves the
// file. It is meant for offline runs against an exported copy of the sheet.
type XLSXStore struct {
	path       string
	defaultTab string

	mu   sync.Mutex
	file *excelize.File
}

func OpenXLSX(path string) (*XLSXStore, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	return &XLSXStore{path: path, defaultTab: sheets[0], file: f}, nil
}

func (s *XLSXStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// DefaultTab is the first sheet of the workbook.
func (s *XLSXStore) DefaultTab() string {
	return s.defaultTab
}

func (s *XLSXStore) ReadRange(_ context.Context, a1 string) ([][]string, error) {
	tab, cells, err := SplitRange(a1)
	if err != nil {
		return nil, err
	}
	if tab == "" {
		tab = s.defaultTab
	}
	first, last, isRange := strings.Cut(cells, ":")
	if !isRange {
		last = first
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if isColumnRef(first) && isColumnRef(last) {
		return s.readColumns(tab, first, last)
	}
	return s.readCells(tab, first, last)
}

func (s *XLSXStore) readColumns(tab, first, last string) ([][]string, error) {
	c1, err := excelize.ColumnNameToNumber(first)
	if err != nil {
		return nil, err
	}
	c2, err := excelize.ColumnNameToNumber(last)
	if err != nil {
		return nil, err
	}
	all, err := s.file.GetRows(tab)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", tab, err)
	}

	out := make([][]string, len(all))
	for i, row := range all {
		var cells []string
		for c := c1; c <= c2 && c-1 < len(row); c++ {
			cells = append(cells, row[c-1])
		}
		out[i] = trimTrailingEmpty(cells)
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (s *XLSXStore) readCells(tab, first, last string) ([][]string, error) {
	c1, r1, err := excelize.CellNameToCoordinates(first)
	if err != nil {
		return nil, err
	}
	c2, r2, err := excelize.CellNameToCoordinates(last)
	if err != nil {
		return nil, err
	}
	out := make([][]string, 0, r2-r1+1)
	for r := r1; r <= r2; r++ {
		var cells []string
		for c := c1; c <= c2; c++ {
			name, err := excelize.CoordinatesToCellName(c, r)
			if err != nil {
				return nil, err
			}
			v, err := s.file.GetCellValue(tab, name)
			if err != nil {
				return nil, fmt.Errorf("read %s!%s: %w", tab, name, err)
			}
			cells = append(cells, v)
		}
		out = append(out, trimTrailingEmpty(cells))
	}
	return out, nil
}

func (s *XLSXStore) BatchWrite(_ context.Context, ranges []ValueRange) error {
	if len(ranges) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, vr := range ranges {
		tab, cells, err := SplitRange(vr.Range)
		if err != nil {
			return err
		}
		if tab == "" {
			tab = s.defaultTab
		}
		first, _, _ := strings.Cut(cells, ":")
		col, row, err := excelize.CellNameToCoordinates(first)
		if err != nil {
			return fmt.Errorf("range %q: %w", vr.Range, err)
		}
		for dr, values := range vr.Values {
			for dc, v := range values {
				name, err := excelize.CoordinatesToCellName(col+dc, row+dr)
				if err != nil {
					return err
				}
				if err := s.file.SetCellStr(tab, name, v); err != nil {
					return fmt.Errorf("write %s!%s: %w", tab, name, err)
				}
			}
		}
	}
	if err := s.file.SaveAs(s.path); err != nil {
		return fmt.Errorf("save workbook %s: %w", s.path, err)
	}
	return nil
}

func isColumnRef(ref string) bool {
	if ref == "" {
		return false
	}
	for _, r := range ref {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

func trimTrailingEmpty(cells []string) []string {
	for len(cells) > 0 && cells[len(cells)-1] == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}
