package core

import (
	"fmt"
	"math"
	"strings"
	"time"

	"fortio.org/safecast"

	"github.com/JonMunkholm/wrangle/internal/mechanic"
	"github.com/JonMunkholm/wrangle/internal/schema"
)

// Summary describes a loaded dataset.
type Summary struct {
	SessionID   string          `json:"sessionId"`
	RowCount    int             `json:"rowCount"`
	Columns     []schema.Column `json:"columns"`
	FileSize    int64           `json:"fileSize"`
	FileSizeMB  float64         `json:"fileSizeMB"`
	FileName    string          `json:"fileName,omitempty"`
	LoadedAt    time.Time       `json:"loadedAt"`
	Patches     int             `json:"patches"`
	PatchedRows int             `json:"patchedRows"`
}

// Record is one row keyed by column name, with patches merged in. See
// RecordKeys for repeated header names.
type Record map[string]string

// RecordKeys returns the Record key for each column. A name seen before
// gets a _2, _3, ... suffix, skipping any suffixed name already taken, so
// every column keeps its own key.
func RecordKeys(header []string) []string {
	keys := make([]string, len(header))
	taken := make(map[string]bool, len(header))
	for _, name := range header {
		taken[name] = true
	}
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		if !seen[name] {
			seen[name] = true
			keys[i] = name
			continue
		}
		for n := 2; ; n++ {
			candidate := fmt.Sprintf("%s_%d", name, n)
			if !taken[candidate] {
				taken[candidate] = true
				keys[i] = candidate
				break
			}
		}
	}
	return keys
}

// LoadPhase indicates the current stage of a load.
type LoadPhase string

const (
	PhaseStarting LoadPhase = "starting"
	PhaseReading  LoadPhase = "reading"
	PhaseIndexing LoadPhase = "indexing"
	PhaseComplete LoadPhase = "complete"
	PhaseFailed   LoadPhase = "failed"
)

// LoadProgress represents the current state of a load.
type LoadProgress struct {
	SessionID  string    `json:"sessionId"`
	Phase      LoadPhase `json:"phase"`
	FileName   string    `json:"fileName,omitempty"`
	BytesRead  int64     `json:"bytesRead"`
	BytesTotal int64     `json:"bytesTotal"`
	Error      string    `json:"error,omitempty"` // Non-empty if Phase is PhaseFailed
}

// Percent returns progress as 0-100. Byte counts are the only measure
// available while reading, so an unknown total reports 0 until completion.
func (p LoadProgress) Percent() int {
	if p.Phase == PhaseComplete {
		return 100
	}
	if p.BytesTotal <= 0 {
		return 0
	}
	pct := min(p.BytesRead*100/p.BytesTotal, 100)
	n, err := safecast.Conv[int](pct)
	if err != nil {
		return 0
	}
	return n
}

// ProgressCallback is called periodically during a load. It runs on the
// loading goroutine and must not block.
type ProgressCallback func(LoadProgress)

// CorrectionMode selects what ApplyCorrection does to a column.
type CorrectionMode string

const (
	// CorrectionClear blanks every currently invalid cell.
	CorrectionClear CorrectionMode = "clear"
	// CorrectionRevert drops every patch in the column.
	CorrectionRevert CorrectionMode = "revert"
)

// ParseCorrectionMode accepts the mode names case-insensitively.
func ParseCorrectionMode(s string) (CorrectionMode, error) {
	switch m := CorrectionMode(strings.ToLower(strings.TrimSpace(s))); m {
	case CorrectionClear, CorrectionRevert:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCorrection, s)
}

// ColumnSuggestions groups the reports for one column.
type ColumnSuggestions struct {
	Column      int               `json:"column"`
	Name        string            `json:"name"`
	Type        schema.Type       `json:"detectedType"`
	Suggestions []mechanic.Report `json:"suggestions"`
}

func sizeMB(n int64) float64 {
	return math.Round(float64(n)/1024/1024*100) / 100
}
