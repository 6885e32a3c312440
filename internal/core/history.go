package core

// history.go keeps a per-session journal of mutations.
//
// The journal is bounded: once it holds limit entries the oldest one is
// dropped for each new entry. Entries carry the caller's IP and User-Agent
// when the HTTP layer put them on the context.

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// HistoryAction represents the kind of mutation recorded.
type HistoryAction string

const (
	ActionLoad             HistoryAction = "load"
	ActionCellEdit         HistoryAction = "cell_edit"
	ActionSuggestionApply  HistoryAction = "suggestion_apply"
	ActionBulkEdit         HistoryAction = "bulk_edit"
	ActionCorrectionClear  HistoryAction = "correction_clear"
	ActionCorrectionRevert HistoryAction = "correction_revert"
	ActionColumnRetype     HistoryAction = "column_retype"
	ActionSchemaUpdate     HistoryAction = "schema_update"
)

// HistorySeverity ranks how much data an action can change.
type HistorySeverity string

const (
	SeverityLow      HistorySeverity = "low"
	SeverityMedium   HistorySeverity = "medium"
	SeverityHigh     HistorySeverity = "high"
	SeverityCritical HistorySeverity = "critical"
)

// DefaultHistoryLimit is the journal size used when Options leaves it zero.
const DefaultHistoryLimit = 500

// HistoryEntry is one journal line.
type HistoryEntry struct {
	ID           string          `json:"id"`
	Action       HistoryAction   `json:"action"`
	Severity     HistorySeverity `json:"severity"`
	Column       int             `json:"column"` // -1 when the action is not tied to one column
	ColumnName   string          `json:"columnName,omitempty"`
	Row          int             `json:"row"` // -1 unless a single cell changed
	OldValue     string          `json:"oldValue,omitempty"`
	NewValue     string          `json:"newValue,omitempty"`
	Detail       string          `json:"detail,omitempty"`
	CellsChanged int             `json:"cellsChanged"`
	IPAddress    string          `json:"ipAddress,omitempty"`
	UserAgent    string          `json:"userAgent,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// HistoryFilter narrows History results. Zero values match everything.
type HistoryFilter struct {
	Action HistoryAction
	Column *int
	Limit  int
}

func determineSeverity(action HistoryAction) HistorySeverity {
	switch action {
	case ActionLoad, ActionBulkEdit, ActionSuggestionApply:
		return SeverityHigh
	case ActionCorrectionClear:
		return SeverityCritical
	case ActionColumnRetype, ActionSchemaUpdate:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

type journal struct {
	limit   int
	entries []HistoryEntry
}

func newJournal(limit int) *journal {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &journal{limit: limit}
}

// record stamps e and appends it, evicting the oldest entry when full.
func (j *journal) record(ctx context.Context, e HistoryEntry) HistoryEntry {
	e.ID = uuid.NewString()
	e.Severity = determineSeverity(e.Action)
	e.CreatedAt = time.Now().UTC()
	caller := CallerFrom(ctx)
	if e.IPAddress == "" {
		e.IPAddress = caller.IP
	}
	if e.UserAgent == "" {
		e.UserAgent = caller.UserAgent
	}

	if len(j.entries) == j.limit {
		copy(j.entries, j.entries[1:])
		j.entries = j.entries[:len(j.entries)-1]
	}
	j.entries = append(j.entries, e)
	return e
}

// list returns matching entries newest first.
func (j *journal) list(filter HistoryFilter) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(j.entries))
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.Column != nil && e.Column != *filter.Column {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out
}
