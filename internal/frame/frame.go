// Package frame holds a loaded dataset: the immutable raw bytes, an index of
// row start offsets, the column schema, and a sparse overlay of cell edits.
//
// Rows are never materialized up front. Reading an unpatched cell slices the
// raw buffer at the row's offset and parses that one record again; an edit
// lives only in the overlay and always wins over the raw value. The raw
// buffer is never written after Parse returns, and nothing outside this
// package holds a reference to it.
//
// A Frame is not safe for concurrent mutation. Concurrent readers are fine as
// long as no goroutine is writing patches or schema entries.
package frame

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/wrangle/internal/schema"
)

var (
	// ErrHeader is returned when the header row is missing or unreadable.
	ErrHeader = errors.New("invalid csv: header not found")

	// ErrEmpty is returned alongside ErrHeader when the input has no bytes
	// at all.
	ErrEmpty = errors.New("empty file")

	// ErrOutOfBounds is returned when a row or column index is outside the
	// dataset.
	ErrOutOfBounds = errors.New("index out of bounds")
)

// Frame is a loaded dataset with a copy-on-write patch overlay.
type Frame struct {
	raw     []byte
	rows    []int
	columns []schema.Column

	// patches maps row -> column -> replacement value. A row entry exists
	// only while it holds at least one cell.
	patches map[int]map[int]string
}

// RowCount returns the number of data rows.
func (f *Frame) RowCount() int { return len(f.rows) }

// ColumnCount returns the number of columns.
func (f *Frame) ColumnCount() int { return len(f.columns) }

// Size returns the size of the raw buffer in bytes.
func (f *Frame) Size() int { return len(f.raw) }

// Columns returns a copy of the schema.
func (f *Frame) Columns() []schema.Column {
	out := make([]schema.Column, len(f.columns))
	copy(out, f.columns)
	return out
}

// Column returns the schema entry for col.
func (f *Frame) Column(col int) (schema.Column, bool) {
	if col < 0 || col >= len(f.columns) {
		return schema.Column{}, false
	}
	return f.columns[col], true
}

// Header returns the column names in header order.
func (f *Frame) Header() []string {
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex finds a column by name, case-insensitively.
func (f *Frame) ColumnIndex(name string) (int, bool) {
	for i, c := range f.columns {
		if strings.EqualFold(c.Name, name) {
			return i, true
		}
	}
	return -1, false
}

// SetColumnType reassigns a column's type. Out-of-range columns are ignored
// and existing data is not re-validated.
func (f *Frame) SetColumnType(col int, t schema.Type) {
	if col < 0 || col >= len(f.columns) {
		return
	}
	f.columns[col].Type = t
}

// InBounds reports whether (row, col) addresses a cell.
func (f *Frame) InBounds(row, col int) bool {
	return row >= 0 && row < len(f.rows) && col >= 0 && col < len(f.columns)
}

// Clip converts a (start, limit) window into a half-open row range clipped
// to the dataset.
func (f *Frame) Clip(start, limit int) (int, int) {
	n := len(f.rows)
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	if limit < 0 {
		limit = 0
	}
	end := n
	if limit < n-start {
		end = start + limit
	}
	return start, end
}

// Cell returns the current value of (row, col). A patch wins over the raw
// value. It returns false when the indices are out of bounds, when the raw
// record cannot be parsed, or when the record is too short to hold col.
func (f *Frame) Cell(row, col int) (string, bool) {
	if !f.InBounds(row, col) {
		return "", false
	}
	if v, ok := f.patches[row][col]; ok {
		return v, true
	}
	rec, ok := f.parseRecord(row)
	if !ok || col >= len(rec) {
		return "", false
	}
	return rec[col], true
}

// Row returns the full-width current values of a row. Unpatched cells of a
// row whose raw record cannot be parsed come back empty.
func (f *Frame) Row(row int) ([]string, bool) {
	if row < 0 || row >= len(f.rows) {
		return nil, false
	}
	rec, parsed := f.parseRecord(row)
	out := make([]string, len(f.columns))
	patch := f.patches[row]
	for c := range out {
		if v, ok := patch[c]; ok {
			out[c] = v
		} else if parsed && c < len(rec) {
			out[c] = rec[c]
		}
	}
	return out, true
}

// UpdateCell writes a patch for (row, col). No type check is performed.
func (f *Frame) UpdateCell(row, col int, value string) error {
	if !f.InBounds(row, col) {
		return fmt.Errorf("%w: cell (%d, %d) in %d rows x %d columns",
			ErrOutOfBounds, row, col, len(f.rows), len(f.columns))
	}
	cells, ok := f.patches[row]
	if !ok {
		cells = make(map[int]string, 1)
		f.patches[row] = cells
	}
	cells[col] = value
	return nil
}

// Patch returns the overlay value for (row, col), if any.
func (f *Frame) Patch(row, col int) (string, bool) {
	v, ok := f.patches[row][col]
	return v, ok
}

// RevertCell removes the patch for (row, col) and reports whether one
// existed.
func (f *Frame) RevertCell(row, col int) bool {
	cells, ok := f.patches[row]
	if !ok {
		return false
	}
	if _, ok := cells[col]; !ok {
		return false
	}
	delete(cells, col)
	if len(cells) == 0 {
		delete(f.patches, row)
	}
	return true
}

// RevertColumn removes every patch in col and returns how many were removed.
func (f *Frame) RevertColumn(col int) int {
	removed := 0
	for row, cells := range f.patches {
		if _, ok := cells[col]; !ok {
			continue
		}
		delete(cells, col)
		removed++
		if len(cells) == 0 {
			delete(f.patches, row)
		}
	}
	return removed
}

// PatchCount returns the number of patched cells.
func (f *Frame) PatchCount() int {
	n := 0
	for _, cells := range f.patches {
		n += len(cells)
	}
	return n
}

// PatchedRows returns the number of rows holding at least one patch.
func (f *Frame) PatchedRows() int { return len(f.patches) }

// parseRecord slices the raw buffer at the row's offset and parses exactly
// one record.
func (f *Frame) parseRecord(row int) ([]string, bool) {
	r := newRecordReader(f.raw[f.rows[row]:])
	rec, err := r.Read()
	if err != nil {
		return nil, false
	}
	return rec, true
}

func newRecordReader(b []byte) *csv.Reader {
	r := csv.NewReader(bytes.NewReader(b))
	r.FieldsPerRecord = -1
	return r
}
