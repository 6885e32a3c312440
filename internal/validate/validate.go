// Package validate finds cells whose current value fails their column's
// declared type.
//
// Every mode reads through the patch overlay and streams rows with a single
// record reader per contiguous range. A row whose raw record cannot be
// parsed, and that has no patch for the column in question, counts as
// invalid for every column asked about. A record too short to hold a column
// reads as empty, which is always valid.
package validate

import (
	"fmt"

	"github.com/JonMunkholm/wrangle/internal/frame"
	"github.com/JonMunkholm/wrangle/internal/schema"
)

// Cell addresses one invalid cell.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// ColumnErrors lists the invalid rows of one column.
type ColumnErrors struct {
	Col  int   `json:"col"`
	Rows []int `json:"rows"`
}

// Range validates every column over rows [start, start+limit), clipped to
// the dataset, and returns the failing cells in row-major order.
func Range(f *frame.Frame, start, limit int) []Cell {
	from, to := f.Clip(start, limit)
	columns := f.Columns()

	invalid := make([]Cell, 0)
	f.Scan(from, to, func(row frame.RowView) bool {
		for c, col := range columns {
			if !cellValid(row, c, col.Type) {
				invalid = append(invalid, Cell{Row: row.Index, Col: c})
			}
		}
		return true
	})
	return invalid
}

// Column reassigns the type of col and then scans every row of the dataset,
// returning the rows whose value fails the new type.
func Column(f *frame.Frame, col int, t schema.Type) ([]int, error) {
	if col < 0 || col >= f.ColumnCount() {
		return nil, fmt.Errorf("%w: column %d of %d", frame.ErrOutOfBounds, col, f.ColumnCount())
	}
	f.SetColumnType(col, t)

	rows := make([]int, 0)
	f.Scan(0, f.RowCount(), func(row frame.RowView) bool {
		if !cellValid(row, col, t) {
			rows = append(rows, row.Index)
		}
		return true
	})
	return rows, nil
}

// Chunk validates the given columns over one row window and groups the
// failures per column, in the order the columns were requested.
func Chunk(f *frame.Frame, cols []int, start, limit int) ([]ColumnErrors, error) {
	types := make([]schema.Type, len(cols))
	for i, c := range cols {
		col, ok := f.Column(c)
		if !ok {
			return nil, fmt.Errorf("%w: column %d of %d", frame.ErrOutOfBounds, c, f.ColumnCount())
		}
		types[i] = col.Type
	}

	out := make([]ColumnErrors, len(cols))
	for i, c := range cols {
		out[i] = ColumnErrors{Col: c, Rows: make([]int, 0)}
	}

	from, to := f.Clip(start, limit)
	f.Scan(from, to, func(row frame.RowView) bool {
		for i, c := range cols {
			if !cellValid(row, c, types[i]) {
				out[i].Rows = append(out[i].Rows, row.Index)
			}
		}
		return true
	})
	return out, nil
}

func cellValid(row frame.RowView, col int, t schema.Type) bool {
	v, ok := row.Value(col)
	if !ok {
		// Missing trailing fields are empty; unparseable rows are not.
		return row.Parsed()
	}
	return t.IsValid(v)
}
