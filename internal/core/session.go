package core

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/wrangle/internal/bulk"
	"github.com/JonMunkholm/wrangle/internal/frame"
	"github.com/JonMunkholm/wrangle/internal/logging"
	"github.com/JonMunkholm/wrangle/internal/mechanic"
	"github.com/JonMunkholm/wrangle/internal/schema"
	"github.com/JonMunkholm/wrangle/internal/validate"
)

// exportCheckEvery is how many rows Export writes between context checks.
const exportCheckEvery = 1024

// Session is a handle on one dataset. All operations on a session are
// serialized by its mutex; separate sessions run in parallel.
type Session struct {
	id       string
	opts     Options
	lastUsed atomic.Int64

	mu      sync.Mutex
	frame   *frame.Frame
	summary Summary
	history *journal
}

func newSession(id string, opts Options) *Session {
	s := &Session{
		id:      id,
		opts:    opts,
		history: newJournal(opts.HistoryLimit),
	}
	s.touch()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// LastUsed returns when an operation last started or finished.
func (s *Session) LastUsed() time.Time { return time.Unix(0, s.lastUsed.Load()) }

func (s *Session) touch() { s.lastUsed.Store(time.Now().UnixNano()) }

func (s *Session) lock() {
	s.mu.Lock()
	s.touch()
}

func (s *Session) unlock() {
	s.touch()
	s.mu.Unlock()
}

// dataset must be called with the lock held.
func (s *Session) dataset() (*frame.Frame, error) {
	if s.frame == nil {
		return nil, ErrNoDataset
	}
	return s.frame, nil
}

func (s *Session) column(f *frame.Frame, col int) (schema.Column, error) {
	c, ok := f.Column(col)
	if !ok {
		return schema.Column{}, fmt.Errorf("column %d: %w", col, frame.ErrOutOfBounds)
	}
	return c, nil
}

// ColumnIndex resolves a column by position or, failing that, by name
// (case-insensitive). The first of several same-named columns wins.
func (s *Session) ColumnIndex(ctx context.Context, ref string) (int, error) {
	s.lock()
	defer s.unlock()

	f, err := s.dataset()
	if err != nil {
		return -1, err
	}
	if i, err := strconv.Atoi(ref); err == nil {
		if _, err := s.column(f, i); err != nil {
			return -1, err
		}
		return i, nil
	}
	if i, ok := f.ColumnIndex(ref); ok {
		return i, nil
	}
	return -1, fmt.Errorf("column %q: %w", ref, frame.ErrOutOfBounds)
}

// Load reads r and replaces the session's dataset. size is the expected
// length, or 0 when unknown. progress may be nil.
func (s *Session) Load(ctx context.Context, r io.Reader, size int64, name string, progress ProgressCallback) (Summary, error) {
	log := logging.WithFields(ctx, "session_id", s.id, "file", name)
	maxSize := s.opts.MaxFileSize

	notify := func(p LoadProgress) {
		if progress == nil {
			return
		}
		p.SessionID = s.id
		p.FileName = name
		progress(p)
	}
	fail := func(err error) (Summary, error) {
		notify(LoadProgress{Phase: PhaseFailed, BytesTotal: size, Error: FormatUserError(err)})
		log.Warn("load failed", "error", err)
		return Summary{}, err
	}

	if r == nil {
		return fail(ErrNoFile)
	}
	if size > maxSize {
		return fail(fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, size, maxSize))
	}

	if err := s.opts.Limiter.Acquire(ctx); err != nil {
		return fail(err)
	}
	defer s.opts.Limiter.Release()

	s.lock()
	defer s.unlock()

	start := time.Now()
	notify(LoadProgress{Phase: PhaseStarting, BytesTotal: size})

	in, counter := WrapForLoad(ctx, io.LimitReader(r, maxSize+1), size, s.opts.ProgressInterval, func(read, total int64) {
		notify(LoadProgress{Phase: PhaseReading, BytesRead: read, BytesTotal: total})
	})
	data, err := io.ReadAll(in)
	if err != nil {
		return fail(fmt.Errorf("read %s: %w", name, err))
	}
	if counter.BytesRead() > maxSize {
		return fail(fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, maxSize))
	}
	f, err := frame.Parse(data,
		frame.WithSampleRows(s.opts.SampleRows),
		frame.WithProgress(func(scanned, total int64) {
			notify(LoadProgress{Phase: PhaseIndexing, BytesRead: scanned, BytesTotal: total})
		}),
	)
	if err != nil {
		return fail(fmt.Errorf("parse %s: %w", name, err))
	}

	fileSize := counter.BytesRead()
	s.frame = f
	s.summary = Summary{
		SessionID:  s.id,
		RowCount:   f.RowCount(),
		Columns:    f.Columns(),
		FileSize:   fileSize,
		FileSizeMB: sizeMB(fileSize),
		FileName:   name,
		LoadedAt:   time.Now().UTC(),
	}
	s.history.record(ctx, HistoryEntry{
		Action: ActionLoad,
		Column: -1,
		Row:    -1,
		Detail: fmt.Sprintf("%s: %d rows, %d columns", name, f.RowCount(), f.ColumnCount()),
	})

	notify(LoadProgress{Phase: PhaseComplete, BytesRead: fileSize, BytesTotal: fileSize})
	log.Info("dataset loaded",
		"rows", f.RowCount(),
		"columns", f.ColumnCount(),
		"bytes", fileSize,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return s.summaryLocked(), nil
}

// Summary describes the loaded dataset, including the current patch count.
func (s *Session) Summary(ctx context.Context) (Summary, error) {
	s.lock()
	defer s.unlock()

	if _, err := s.dataset(); err != nil {
		return Summary{}, err
	}
	return s.summaryLocked(), nil
}

func (s *Session) summaryLocked() Summary {
	sum := s.summary
	sum.Columns = s.frame.Columns()
	sum.Patches = s.frame.PatchCount()
	sum.PatchedRows = s.frame.PatchedRows()
	return sum
}

// Rows returns up to limit records starting at start.
func (s *Session) Rows(ctx context.Context, start, limit int) ([]Record, error) {
	s.lock()
	defer s.unlock()

	f, err := s.dataset()
	if err != nil {
		return nil, err
	}

	keys := RecordKeys(f.Header())
	from, to := f.Clip(start, limit)
	out := make([]Record, 0, to-from)
	for r := from; r < to; r++ {
		values, _ := f.Row(r)
		rec := make(Record, len(keys))
		for c, key := range keys {
			rec[key] = values[c]
		}
		out = append(out, rec)
	}

	logging.WithFields(ctx, "session_id", s.id).Debug("rows read", "start", from, "rows", len(out))
	return out, nil
}

// ValidateRange lists invalid cells in [start, start+limit).
func (s *Session) ValidateRange(ctx context.Context, start, limit int) ([]validate.Cell, error) {
	s.lock()
	defer s.unlock()

	f, err := s.dataset()
	if err != nil {
		return nil, err
	}
	cells := validate.Range(f, start, limit)
	logging.WithFields(ctx, "session_id", s.id).Debug("range validated", "start", start, "invalid", len(cells))
	return cells, nil
}

// ValidateColumn retypes col and returns every row that is invalid under
// the new type.
func (s *Session) ValidateColumn(ctx context.Context, col int, typeName string) ([]int, error) {
	t, err := schema.ParseType(typeName)
	if err != nil {
		return nil, err
	}

	s.lock()
	defer s.unlock()

	f, err := s.dataset()
	if err != nil {
		return nil, err
	}
	c, err := s.column(f, col)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := validate.Column(f, col, t)
	if err != nil {
		return nil, err
	}

	if c.Type != t {
		s.history.record(ctx, HistoryEntry{
			Action:     ActionColumnRetype,
			Column:     col,
			ColumnName: c.Name,
			Row:        -1,
			OldValue:   c.Type.String(),
			NewValue:   t.String(),
		})
	}
	logging.WithFields(ctx, "session_id", s.id, "column", col).Debug("column validated",
		"type", t.String(),
		"invalid", len(rows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rows, nil
}

// ValidateChunk lists invalid rows per requested column within a window.
func (s *Session) ValidateChunk(ctx context.Context, cols []int, start, limit int) ([]validate.ColumnErrors, error) {
	s.lock()
	defer s.unlock()

	f, err := s.dataset()
	if err != nil {
		return nil, err
	}
	return validate.Chunk(f, cols, start, limit)
}

// Suggestions analyzes one column.
func (s *Session) Suggestions(ctx context.Context, col int) ([]mechanic.Report, error) {
	s.lock()
	defer s.unlock()

	f, err := s.dataset()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	reports, err := mechanic.Analyze(f, col, s.opts.Mechanic)
	if err != nil {
		return nil, err
	}
	logging.WithFields(ctx, "session_id", s.id, "column", col).Debug("suggestions computed",
		"reports", len(reports),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return reports, nil
}

// ApplySuggestion runs sg over col and returns the number of cells changed.
func (s *Session) ApplySuggestion(ctx context.Context, col int, sg mechanic.Suggestion) (int, error) {
	s.lock()
	defer s.unlock()

	f, err := s.dataset()
	if err != nil {
		return 0, err
	}
	c, err := s.column(f, col)
	if err != nil {
		return 0, err
	}

	n, err := mechanic.Apply(f, col, sg)
	if n > 0 {
		s.history.record(ctx, HistoryEntry{
			Action:       ActionSuggestionApply,
			Column:       col,
			ColumnName:   c.Name,
			Row:          -1,
			Detail:       string(sg.Kind()),
			CellsChanged: n,
		})
	}
	if err != nil {
		return n, err
	}

	logging.WithFields(ctx, "session_id", s.id, "column", col).Debug("suggestion applied",
		"kind", sg.Kind(),
		"rows", n,
	)
	return n, nil
}

// ApplyBulk runs a find/replace action over a row window of col.
func (s *Session) ApplyBulk(ctx context.Context, col int, action bulk.Action, start, limit int) (int, error) {
	s.lock()
	defer s.unlock()

	f, err := s.dataset()
	if err != nil {
		return 0, err
	}

	n, err := bulk.Apply(f, col, action, start, limit)
	if err != nil {
		return n, err
	}
	if n > 0 {
		c, _ := f.Column(col)
		s.history.record(ctx, HistoryEntry{
			Action:       ActionBulkEdit,
			Column:       col,
			ColumnName:   c.Name,
			Row:          -1,
			Detail:       describeAction(action),
			CellsChanged: n,
		})
	}

	logging.WithFields(ctx, "session_id", s.id, "column", col).Debug("bulk action applied", "rows", n)
	return n, nil
}

func describeAction(a bulk.Action) string {
	switch a := a.(type) {
	case bulk.FindReplace:
		return fmt.Sprintf("replace %q with %q", a.Search, a.Replace)
	case bulk.RegexReplace:
		return fmt.Sprintf("regex %q with %q", a.Pattern, a.Replacement)
	}
	return ""
}

// ApplyCorrection either blanks every invalid cell in col or drops the
// column's patches. It returns the number of cells affected.
func (s *Session) ApplyCorrection(ctx context.Context, col int, mode CorrectionMode) (int, error) {
	s.lock()
	defer s.unlock()

	f, err := s.dataset()
	if err != nil {
		return 0, err
	}
	c, err := s.column(f, col)
	if err != nil {
		return 0, err
	}

	var (
		n      int
		action HistoryAction
	)
	switch mode {
	case CorrectionClear:
		action = ActionCorrectionClear
		rows, err := validate.Column(f, col, c.Type)
		if err != nil {
			return 0, err
		}
		for _, r := range rows {
			if err := f.UpdateCell(r, col, ""); err != nil {
				return n, err
			}
			n++
		}
	case CorrectionRevert:
		action = ActionCorrectionRevert
		n = f.RevertColumn(col)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCorrection, mode)
	}

	if n > 0 {
		s.history.record(ctx, HistoryEntry{
			Action:       action,
			Column:       col,
			ColumnName:   c.Name,
			Row:          -1,
			CellsChanged: n,
		})
	}
	logging.WithFields(ctx, "session_id", s.id, "column", col).Debug("correction applied",
		"mode", string(mode),
		"rows", n,
	)
	return n, nil
}

// UpdateCell sets one cell and returns the total number of patched cells.
func (s *Session) UpdateCell(ctx context.Context, row, col int, value string) (int, error) {
	s.lock()
	defer s.unlock()

	f, err := s.dataset()
	if err != nil {
		return 0, err
	}

	old, _ := f.Cell(row, col)
	if err := f.UpdateCell(row, col, value); err != nil {
		return 0, fmt.Errorf("update cell (%d, %d): %w", row, col, err)
	}

	c, _ := f.Column(col)
	s.history.record(ctx, HistoryEntry{
		Action:       ActionCellEdit,
		Column:       col,
		ColumnName:   c.Name,
		Row:          row,
		OldValue:     old,
		NewValue:     value,
		CellsChanged: 1,
	})
	return f.PatchCount(), nil
}

// UpdateSchema assigns one type per column and returns how many columns
// changed type. No column changes unless every name parses.
func (s *Session) UpdateSchema(ctx context.Context, types []string) (int, error) {
	s.lock()
	defer s.unlock()

	f, err := s.dataset()
	if err != nil {
		return 0, err
	}
	if len(types) != f.ColumnCount() {
		return 0, fmt.Errorf("%w: got %d types for %d columns", ErrSchemaMismatch, len(types), f.ColumnCount())
	}

	parsed := make([]schema.Type, len(types))
	for i, name := range types {
		t, err := schema.ParseType(name)
		if err != nil {
			return 0, fmt.Errorf("column %d: %w", i, err)
		}
		parsed[i] = t
	}

	changed := 0
	for i, t := range parsed {
		if c, _ := f.Column(i); c.Type != t {
			f.SetColumnType(i, t)
			changed++
		}
	}

	if changed > 0 {
		s.history.record(ctx, HistoryEntry{
			Action: ActionSchemaUpdate,
			Column: -1,
			Row:    -1,
			Detail: fmt.Sprintf("%d columns retyped", changed),
		})
	}
	return changed, nil
}

// Export writes the header and every merged row as CSV and returns the
// number of data rows written.
func (s *Session) Export(ctx context.Context, w io.Writer) (int, error) {
	s.lock()
	defer s.unlock()

	f, err := s.dataset()
	if err != nil {
		return 0, err
	}

	start := time.Now()
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Header()); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	n := 0
	for r := 0; r < f.RowCount(); r++ {
		if r%exportCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
		values, _ := f.Row(r)
		if err := cw.Write(values); err != nil {
			return n, fmt.Errorf("write row %d: %w", r, err)
		}
		n++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, fmt.Errorf("flush: %w", err)
	}

	logging.WithFields(ctx, "session_id", s.id).Debug("dataset exported",
		"rows", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return n, nil
}

// History returns journal entries newest first.
func (s *Session) History(ctx context.Context, filter HistoryFilter) ([]HistoryEntry, error) {
	s.lock()
	defer s.unlock()

	if _, err := s.dataset(); err != nil {
		return nil, err
	}
	return s.history.list(filter), nil
}
