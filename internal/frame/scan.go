package frame

import "encoding/csv"

// RowView is one merged row handed to a Scan callback. The underlying field
// slice is reused between rows, so a RowView must not be retained after the
// callback returns. The strings it yields are safe to keep.
type RowView struct {
	Index int

	fields []string
	parsed bool
	patch  map[int]string
}

// Value returns the current value of col in this row. A patch wins over the
// raw field. It returns false when the raw record failed to parse or is too
// short to hold col, and no patch covers it.
func (v RowView) Value(col int) (string, bool) {
	if p, ok := v.patch[col]; ok {
		return p, true
	}
	if !v.parsed || col < 0 || col >= len(v.fields) {
		return "", false
	}
	return v.fields[col], true
}

// Parsed reports whether the raw record parsed cleanly.
func (v RowView) Parsed() bool { return v.parsed }

// Patched reports whether col of this row has an overlay value.
func (v RowView) Patched(col int) bool {
	_, ok := v.patch[col]
	return ok
}

// Scan streams rows [start, end) in order, stopping early when fn returns
// false. One record reader serves the whole contiguous range; it is
// re-seated at the next row offset only when a record does not end exactly
// where the next row begins (a parse error, a record spanning lines, or
// skipped blank lines), so every row is read exactly as Cell would read it.
func (f *Frame) Scan(start, end int, fn func(RowView) bool) {
	if start < 0 {
		start = 0
	}
	if end > len(f.rows) {
		end = len(f.rows)
	}

	var (
		r    *csv.Reader
		base int
	)
	for i := start; i < end; i++ {
		if r == nil {
			base = f.rows[i]
			r = newRecordReader(f.raw[base:])
			r.ReuseRecord = true
		}

		rec, err := r.Read()
		view := RowView{
			Index:  i,
			fields: rec,
			parsed: err == nil,
			patch:  f.patches[i],
		}

		if err != nil || i+1 >= end || base+int(r.InputOffset()) != f.rows[i+1] {
			r = nil
		}

		if !fn(view) {
			return
		}
	}
}
