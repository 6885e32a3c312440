package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/wrangle/internal/bulk"
	"github.com/JonMunkholm/wrangle/internal/frame"
	"github.com/JonMunkholm/wrangle/internal/mechanic"
	"github.com/JonMunkholm/wrangle/internal/schema"
	"github.com/JonMunkholm/wrangle/internal/validate"
)

const contacts = "name,age,email\n" +
	"Ann,34,ann@example.com\n" +
	"Bob, 41 ,bob@example.com\n" +
	"Cy,29,cy @example.com\n" +
	"Di,,di@example.com\n"

func newLoaded(t *testing.T, data string) (*Engine, *Session) {
	t.Helper()
	e := NewEngine(Options{})
	s, err := e.Create(context.Background())
	require.NoError(t, err)
	_, err = s.Load(context.Background(), strings.NewReader(data), int64(len(data)), "contacts.csv", nil)
	require.NoError(t, err)
	return e, s
}

func TestSession_NoDataset(t *testing.T) {
	e := NewEngine(Options{})
	s, err := e.Create(context.Background())
	require.NoError(t, err)
	ctx := context.Background()

	calls := map[string]func() error{
		"Summary":         func() error { _, err := s.Summary(ctx); return err },
		"ColumnIndex":     func() error { _, err := s.ColumnIndex(ctx, "0"); return err },
		"Rows":            func() error { _, err := s.Rows(ctx, 0, 10); return err },
		"ValidateRange":   func() error { _, err := s.ValidateRange(ctx, 0, 10); return err },
		"ValidateColumn":  func() error { _, err := s.ValidateColumn(ctx, 0, "Integer"); return err },
		"ValidateChunk":   func() error { _, err := s.ValidateChunk(ctx, []int{0}, 0, 10); return err },
		"Suggestions":     func() error { _, err := s.Suggestions(ctx, 0); return err },
		"ApplySuggestion": func() error { _, err := s.ApplySuggestion(ctx, 0, mechanic.TrimWhitespace{}); return err },
		"ApplyBulk":       func() error { _, err := s.ApplyBulk(ctx, 0, bulk.FindReplace{Search: "a"}, 0, 10); return err },
		"ApplyCorrection": func() error { _, err := s.ApplyCorrection(ctx, 0, CorrectionClear); return err },
		"UpdateCell":      func() error { _, err := s.UpdateCell(ctx, 0, 0, "x"); return err },
		"UpdateSchema":    func() error { _, err := s.UpdateSchema(ctx, []string{"Text"}); return err },
		"Export":          func() error { _, err := s.Export(ctx, &bytes.Buffer{}); return err },
		"History":         func() error { _, err := s.History(ctx, HistoryFilter{}); return err },
		"SuggestAll":      func() error { _, err := e.SuggestAll(ctx, s); return err },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			assert.True(t, errors.Is(call(), ErrNoDataset))
		})
	}
}

func TestSession_Load(t *testing.T) {
	e := NewEngine(Options{})
	s, err := e.Create(context.Background())
	require.NoError(t, err)

	var phases []LoadPhase
	data := "\xEF\xBB\xBF" + contacts
	sum, err := s.Load(context.Background(), strings.NewReader(data), int64(len(data)), "contacts.csv", func(p LoadProgress) {
		assert.Equal(t, s.ID(), p.SessionID)
		phases = append(phases, p.Phase)
	})
	require.NoError(t, err)

	assert.Equal(t, s.ID(), sum.SessionID)
	assert.Equal(t, 4, sum.RowCount)
	assert.Equal(t, int64(len(data)), sum.FileSize)
	assert.Equal(t, "contacts.csv", sum.FileName)
	assert.False(t, sum.LoadedAt.IsZero())
	require.Len(t, sum.Columns, 3)
	assert.Equal(t, "name", sum.Columns[0].Name, "BOM must not leak into the first header")
	assert.Equal(t, schema.Integer, sum.Columns[1].Type)

	require.NotEmpty(t, phases)
	assert.Equal(t, PhaseStarting, phases[0])
	assert.Equal(t, PhaseComplete, phases[len(phases)-1])
	assert.Equal(t, 0, e.Limiter().Status().Active, "limiter slot released")
}

func TestSession_LoadErrors(t *testing.T) {
	e := NewEngine(Options{MaxFileSize: 16})
	s, err := e.Create(context.Background())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Load(ctx, nil, 0, "none", nil)
	assert.True(t, errors.Is(err, ErrNoFile))

	_, err = s.Load(ctx, strings.NewReader(contacts), int64(len(contacts)), "big.csv", nil)
	assert.True(t, errors.Is(err, ErrFileTooLarge), "declared size over the limit")

	_, err = s.Load(ctx, strings.NewReader(contacts), 0, "big.csv", nil)
	assert.True(t, errors.Is(err, ErrFileTooLarge), "unknown size that turns out too big")

	var failed LoadProgress
	_, err = s.Load(ctx, strings.NewReader(""), 0, "empty.csv", func(p LoadProgress) {
		if p.Phase == PhaseFailed {
			failed = p
		}
	})
	assert.True(t, errors.Is(err, frame.ErrEmpty))
	assert.Contains(t, failed.Error, "FILE005")

	_, err = s.Summary(ctx)
	assert.True(t, errors.Is(err, ErrNoDataset), "failed loads leave the session empty")
}

func TestSession_LoadSanitizesInvalidUTF8(t *testing.T) {
	_, s := newLoaded(t, "name\nhe\x80lo\n")

	rows, err := s.Rows(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "he?lo", rows[0]["name"])
}

func TestSession_Rows(t *testing.T) {
	_, s := newLoaded(t, contacts)
	ctx := context.Background()

	rows, err := s.Rows(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Record{"name": "Bob", "age": " 41 ", "email": "bob@example.com"}, rows[0])

	rows, err = s.Rows(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSession_RowsDuplicateHeader(t *testing.T) {
	_, s := newLoaded(t, "name,name,name_2\nAnn,Lee,x\n")

	rows, err := s.Rows(context.Background(), 0, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Record{"name": "Ann", "name_3": "Lee", "name_2": "x"}, rows[0])
}

func TestRecordKeys(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		want   []string
	}{
		{"unique", []string{"a", "b"}, []string{"a", "b"}},
		{"repeated", []string{"a", "a", "a"}, []string{"a", "a_2", "a_3"}},
		{"suffix taken", []string{"a", "a_2", "a"}, []string{"a", "a_2", "a_3"}},
		{"empty names", []string{"", ""}, []string{"", "_2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RecordKeys(tt.header))
		})
	}
}

func TestSession_ColumnIndex(t *testing.T) {
	_, s := newLoaded(t, contacts)
	ctx := context.Background()

	i, err := s.ColumnIndex(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	i, err = s.ColumnIndex(ctx, "EMAIL")
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	_, err = s.ColumnIndex(ctx, "3")
	assert.True(t, errors.Is(err, frame.ErrOutOfBounds))
	_, err = s.ColumnIndex(ctx, "phone")
	assert.True(t, errors.Is(err, frame.ErrOutOfBounds))
}

func TestSession_TrimScenario(t *testing.T) {
	_, s := newLoaded(t, contacts)
	ctx := context.Background()

	cells, err := s.ValidateRange(ctx, 0, 10)
	require.NoError(t, err)
	assert.Contains(t, cells, validate.Cell{Row: 1, Col: 1})

	reports, err := s.Suggestions(ctx, 1)
	require.NoError(t, err)
	require.NotEmpty(t, reports)
	assert.Equal(t, mechanic.KindTrimWhitespace, reports[0].Kind)

	n, err := s.ApplySuggestion(ctx, 1, reports[0].Suggestion)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := s.ValidateColumn(ctx, 1, "Integer")
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = s.ValidateColumn(ctx, 2, "Email")
	require.NoError(t, err)
	reports, err = s.Suggestions(ctx, 2)
	require.NoError(t, err)
	var removeSpace mechanic.Suggestion
	for _, r := range reports {
		if r.Kind == mechanic.KindRemoveChars {
			removeSpace = r.Suggestion
		}
	}
	require.NotNil(t, removeSpace)
	n, err = s.ApplySuggestion(ctx, 2, removeSpace)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Rows(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, "cy@example.com", got[0]["email"])
}

func TestSession_ValidateColumn(t *testing.T) {
	_, s := newLoaded(t, contacts)
	ctx := context.Background()

	rows, err := s.ValidateColumn(ctx, 0, "Integer")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, rows)

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.Integer, sum.Columns[0].Type)

	_, err = s.ValidateColumn(ctx, 0, "Decimal")
	assert.True(t, errors.Is(err, schema.ErrUnknownType))

	_, err = s.ValidateColumn(ctx, 9, "Text")
	assert.True(t, errors.Is(err, frame.ErrOutOfBounds))
}

func TestSession_ValidateChunk(t *testing.T) {
	_, s := newLoaded(t, contacts)
	ctx := context.Background()

	_, err := s.ValidateColumn(ctx, 2, "Email")
	require.NoError(t, err)
	got, err := s.ValidateChunk(ctx, []int{2, 1}, 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Col)
	assert.Equal(t, []int{2}, got[0].Rows)
	assert.Equal(t, 1, got[1].Col)
	assert.Equal(t, []int{1}, got[1].Rows)
}

func TestSession_ApplyBulk(t *testing.T) {
	_, s := newLoaded(t, contacts)
	ctx := context.Background()

	n, err := s.ApplyBulk(ctx, 2, bulk.FindReplace{Search: "example.com", Replace: "example.org"}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = s.ApplyBulk(ctx, 2, bulk.RegexReplace{Pattern: "(", Replacement: ""}, 0, 10)
	assert.True(t, errors.Is(err, bulk.ErrInvalidPattern))

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Patches, "invalid pattern adds no patches")
}

func TestSession_ApplyCorrection(t *testing.T) {
	_, s := newLoaded(t, contacts)
	ctx := context.Background()

	n, err := s.ApplyCorrection(ctx, 1, CorrectionClear)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := s.Rows(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "", rows[0]["age"])

	n, err = s.ApplyCorrection(ctx, 1, CorrectionRevert)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err = s.Rows(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, " 41 ", rows[0]["age"])

	_, err = s.ApplyCorrection(ctx, 1, CorrectionMode("purge"))
	assert.True(t, errors.Is(err, ErrUnknownCorrection))
}

func TestSession_UpdateCell(t *testing.T) {
	_, s := newLoaded(t, contacts)
	ctx := context.Background()

	patches, err := s.UpdateCell(ctx, 0, 0, "Anne")
	require.NoError(t, err)
	assert.Equal(t, 1, patches)
	_, err = s.UpdateCell(ctx, 0, 1, "35")
	require.NoError(t, err)

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Patches)
	assert.Equal(t, 1, sum.PatchedRows)

	rows, err := s.Rows(ctx, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, "Anne", rows[0]["name"])

	_, err = s.UpdateCell(ctx, 4, 0, "x")
	assert.True(t, errors.Is(err, frame.ErrOutOfBounds))
	_, err = s.UpdateCell(ctx, 0, 3, "x")
	assert.True(t, errors.Is(err, frame.ErrOutOfBounds))
}

func TestSession_UpdateSchema(t *testing.T) {
	_, s := newLoaded(t, contacts)
	ctx := context.Background()

	_, err := s.UpdateSchema(ctx, []string{"Text"})
	assert.True(t, errors.Is(err, ErrSchemaMismatch))

	_, err = s.UpdateSchema(ctx, []string{"Text", "Bogus", "Email"})
	assert.True(t, errors.Is(err, schema.ErrUnknownType))

	changed, err := s.UpdateSchema(ctx, []string{"Text", "Float", "Email"})
	require.NoError(t, err)
	assert.Equal(t, 2, changed, "name stays Text")

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.Float, sum.Columns[1].Type)
	assert.Equal(t, schema.Email, sum.Columns[2].Type)
}

func TestSession_Export(t *testing.T) {
	_, s := newLoaded(t, "a,b\n1,\"x, y\"\n2,z\n")
	ctx := context.Background()

	_, err := s.UpdateCell(ctx, 1, 1, "q\"r")
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := s.Export(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "a,b\n1,\"x, y\"\n2,\"q\"\"r\"\n", buf.String())
}

func TestSession_History(t *testing.T) {
	_, s := newLoaded(t, contacts)
	ctx := WithCaller(context.Background(), Caller{IP: "10.0.0.7", UserAgent: "curl/8"})

	_, err := s.UpdateCell(ctx, 0, 0, "Anne")
	require.NoError(t, err)
	_, err = s.ApplyBulk(ctx, 2, bulk.FindReplace{Search: "@", Replace: "@@"}, 0, 10)
	require.NoError(t, err)

	all, err := s.History(ctx, HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ActionBulkEdit, all[0].Action, "newest first")
	assert.Equal(t, ActionCellEdit, all[1].Action)
	assert.Equal(t, ActionLoad, all[2].Action)

	edit := all[1]
	assert.Equal(t, "Ann", edit.OldValue)
	assert.Equal(t, "Anne", edit.NewValue)
	assert.Equal(t, "10.0.0.7", edit.IPAddress)
	assert.Equal(t, "curl/8", edit.UserAgent)
	assert.Equal(t, SeverityMedium, edit.Severity)
	assert.NotEmpty(t, edit.ID)

	col := 2
	filtered, err := s.History(ctx, HistoryFilter{Column: &col})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, 4, filtered[0].CellsChanged)
}

func TestSession_ConcurrentOperations(t *testing.T) {
	_, s := newLoaded(t, contacts)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.UpdateCell(ctx, i%4, 0, "x")
			_, _ = s.Rows(ctx, 0, 4)
			_, _ = s.ValidateRange(ctx, 0, 4)
		}()
	}
	wg.Wait()

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Patches)
}

func TestSession_LastUsedAdvances(t *testing.T) {
	_, s := newLoaded(t, contacts)
	before := s.LastUsed()

	time.Sleep(2 * time.Millisecond)
	_, err := s.Rows(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.True(t, s.LastUsed().After(before))
}
