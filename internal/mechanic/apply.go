package mechanic

import (
	"fmt"

	"github.com/JonMunkholm/wrangle/internal/frame"
)

// Apply runs s over every row of col and returns how many cells changed.
//
// Repairs only touch cells that currently fail the column's type, and only
// write when the result is non-empty, valid and different. Cross-cutting
// transforms write whenever they change a value. Cells that would not change
// never get a patch entry, so applying the same suggestion twice changes
// nothing the second time.
func Apply(f *frame.Frame, col int, s Suggestion) (int, error) {
	c, ok := f.Column(col)
	if !ok {
		return 0, fmt.Errorf("%w: column %d of %d", frame.ErrOutOfBounds, col, f.ColumnCount())
	}

	type edit struct {
		row   int
		value string
	}
	var edits []edit

	repair := s.Kind().IsRepair()
	f.Scan(0, f.RowCount(), func(row frame.RowView) bool {
		v, ok := row.Value(col)
		if !ok || v == "" {
			return true
		}

		if repair {
			if c.Type.IsValid(v) {
				return true
			}
			if after, ok := fixes(s, c.Type, v); ok {
				edits = append(edits, edit{row.Index, after})
			}
			return true
		}

		if after := s.Apply(v); after != v {
			edits = append(edits, edit{row.Index, after})
		}
		return true
	})

	for i, e := range edits {
		if err := f.UpdateCell(e.row, col, e.value); err != nil {
			return i, err
		}
	}
	return len(edits), nil
}
