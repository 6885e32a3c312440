// Package bulk applies find/replace style edits to a window of one column.
package bulk

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/JonMunkholm/wrangle/internal/frame"
)

var (
	ErrInvalidPattern = errors.New("invalid regex pattern")
	ErrEmptySearch    = errors.New("search string is empty")
	ErrUnknownAction  = errors.New("unknown bulk action")
)

// Action is a bulk edit. It is either FindReplace or RegexReplace.
type Action interface {
	isAction()
}

// FindReplace substitutes every literal, case-sensitive occurrence of Search.
type FindReplace struct {
	Search  string `json:"search"`
	Replace string `json:"replace"`
}

// RegexReplace substitutes every match of Pattern. Replacement may refer to
// capture groups as $1 or ${name}.
type RegexReplace struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
}

func (FindReplace) isAction()  {}
func (RegexReplace) isAction() {}

// Apply runs action over rows [start, start+limit) of col and returns the
// number of cells whose value changed. The action is fully checked before
// any row is read, so a bad pattern leaves the dataset untouched.
func Apply(f *frame.Frame, col int, action Action, start, limit int) (int, error) {
	if col < 0 || col >= f.ColumnCount() {
		return 0, fmt.Errorf("%w: column %d of %d", frame.ErrOutOfBounds, col, f.ColumnCount())
	}

	replace, err := compile(action)
	if err != nil {
		return 0, err
	}

	type edit struct {
		row   int
		value string
	}
	var edits []edit

	from, to := f.Clip(start, limit)
	f.Scan(from, to, func(row frame.RowView) bool {
		v, ok := row.Value(col)
		if !ok {
			return true
		}
		if out := replace(v); out != v {
			edits = append(edits, edit{row.Index, out})
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

// compile turns an action into a per-cell replacement. The regex is
// compiled here, once per call.
func compile(action Action) (func(string) string, error) {
	switch a := action.(type) {
	case FindReplace:
		if a.Search == "" {
			return nil, ErrEmptySearch
		}
		return func(v string) string {
			return strings.ReplaceAll(v, a.Search, a.Replace)
		}, nil
	case RegexReplace:
		re, err := regexp.Compile(a.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		return func(v string) string {
			return re.ReplaceAllString(v, a.Replacement)
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownAction, action)
	}
}

// Request is the wire form of an action.
type Request struct {
	Type        string `json:"type"`
	Search      string `json:"search,omitempty"`
	Replace     string `json:"replace,omitempty"`
	Pattern     string `json:"pattern,omitempty"`
	Replacement string `json:"replacement,omitempty"`
}

// Action converts the request into an Action.
func (r Request) Action() (Action, error) {
	switch strings.ToLower(r.Type) {
	case "findreplace", "find_replace", "find":
		return FindReplace{Search: r.Search, Replace: r.Replace}, nil
	case "regexreplace", "regex_replace", "regex":
		return RegexReplace{Pattern: r.Pattern, Replacement: r.Replacement}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, r.Type)
	}
}

// ParseRequest decodes a JSON action request.
func ParseRequest(b []byte) (Action, error) {
	var r Request
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownAction, err)
	}
	return r.Action()
}
