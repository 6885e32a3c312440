// Package mechanic proposes and applies mechanical, reversible cleanups for
// a column: type repairs for values that fail the declared type, and
// cross-cutting transforms (PII redaction, state and ZIP normalization) that
// apply regardless of validity.
//
// Analysis is bounded. It samples at most Options.MaxRows rows and keeps at
// most Options.MaxUniqueInvalid distinct invalid values, so suggestions come
// back quickly on large files. Affected-row counts describe the sampled rows
// only.
package mechanic

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode"

	"github.com/JonMunkholm/wrangle/internal/frame"
	"github.com/JonMunkholm/wrangle/internal/pii"
	"github.com/JonMunkholm/wrangle/internal/schema"
)

const (
	DefaultMaxRows          = 50_000
	DefaultMaxUniqueInvalid = 30_000

	// removableChars is how many distinct characters RemoveChars proposes.
	removableChars = 3
)

// Options bounds an analysis. Zero fields take the defaults.
type Options struct {
	MaxRows          int
	MaxUniqueInvalid int
}

func (o Options) withDefaults() Options {
	if o.MaxRows <= 0 {
		o.MaxRows = DefaultMaxRows
	}
	if o.MaxUniqueInvalid <= 0 {
		o.MaxUniqueInvalid = DefaultMaxUniqueInvalid
	}
	return o
}

// probe accumulates the evidence for one candidate suggestion.
type probe struct {
	s Suggestion

	// accepts gates which values a cross-cutting probe looks at. nil means
	// every value.
	accepts func(string) bool

	count         int
	before, after string
}

func (p *probe) example(before, after string) {
	if p.before == "" {
		p.before, p.after = before, after
	}
}

func (p *probe) report() Report {
	return Report{
		Kind:          p.s.Kind(),
		Suggestion:    p.s,
		Description:   p.s.describe(p.count),
		AffectedRows:  p.count,
		ExampleBefore: p.before,
		ExampleAfter:  p.after,
	}
}

// observe counts v for a cross-cutting probe when the transform changes it.
func (p *probe) observe(v string) {
	if p.accepts != nil && !p.accepts(v) {
		return
	}
	after := p.s.Apply(v)
	if after == v {
		return
	}
	p.count++
	p.example(v, after)
}

// Analyze returns the suggestions for col in reporting order: type repairs
// first, then cross-cutting transforms.
func Analyze(f *frame.Frame, col int, opts Options) ([]Report, error) {
	c, ok := f.Column(col)
	if !ok {
		return nil, fmt.Errorf("%w: column %d of %d", frame.ErrOutOfBounds, col, f.ColumnCount())
	}
	opts = opts.withDefaults()

	cross := crossProbes(c)
	invalid := newOrderedSet()
	scanned := 0

	f.Scan(0, min(f.RowCount(), opts.MaxRows), func(row frame.RowView) bool {
		scanned = row.Index + 1

		v, ok := row.Value(col)
		if !ok || v == "" {
			return true
		}
		for _, p := range cross {
			p.observe(v)
		}
		if !c.Type.IsValid(v) {
			invalid.add(v)
		}
		return invalid.len() < opts.MaxUniqueInvalid
	})

	reports := make([]Report, 0)
	for _, p := range repairProbes(f, col, c.Type, invalid.values, scanned) {
		reports = append(reports, p.report())
	}
	for _, p := range cross {
		if p.count > 0 {
			reports = append(reports, p.report())
		}
	}
	return reports, nil
}

// repairProbes keeps the candidates that fix at least one sampled invalid
// value and counts their affected rows in one shared second pass over the
// first scanned rows.
func repairProbes(f *frame.Frame, col int, t schema.Type, invalid []string, scanned int) []*probe {
	if len(invalid) == 0 {
		return nil
	}

	var probes []*probe
	for _, s := range repairCandidates(t, invalid) {
		p := &probe{s: s}
		for _, v := range invalid {
			if after, ok := fixes(s, t, v); ok {
				p.example(v, after)
				break
			}
		}
		if p.before != "" {
			probes = append(probes, p)
		}
	}
	if len(probes) == 0 {
		return nil
	}

	f.Scan(0, scanned, func(row frame.RowView) bool {
		v, ok := row.Value(col)
		if !ok || v == "" || t.IsValid(v) {
			return true
		}
		for _, p := range probes {
			if _, ok := fixes(p.s, t, v); ok {
				p.count++
			}
		}
		return true
	})
	return probes
}

// fixes reports whether s turns an invalid v into a different, non-empty,
// valid value.
func fixes(s Suggestion, t schema.Type, v string) (string, bool) {
	after := s.Apply(v)
	return after, after != "" && after != v && t.IsValid(after)
}

func repairCandidates(t schema.Type, invalid []string) []Suggestion {
	if t == schema.Text {
		return nil
	}

	out := []Suggestion{TrimWhitespace{}}
	switch t {
	case schema.Integer, schema.Float:
		for _, r := range rankRemovable(invalid, removableChars) {
			out = append(out, RemoveChars{Chars: string(r)})
		}
	case schema.Email:
		out = append(out, RemoveChars{Chars: " "})
	case schema.PhoneUS:
		out = append(out, DigitsOnly{}, PhoneStripToTenDigits{}, PhoneFormatUS{})
	case schema.Date:
		out = append(out, NormalizeDateToISO{}, CascadeDate{})
	case schema.Boolean:
		out = append(out, NormalizeBooleanCase{}, NormalizeBooleanSynonyms{})
	case schema.Uuid:
		out = append(out, NormalizeUUID{})
	case schema.Time:
		out = append(out, NormalizeTime{})
	case schema.Currency:
		out = append(out, NormalizeCurrency{})
	case schema.Percentage:
		out = append(out, NormalizePercentage{})
	}
	return out
}

// rankRemovable returns up to n characters that are neither alphanumeric,
// whitespace, '.' nor '-', most frequent across values first. Ties go to the
// lower code point.
func rankRemovable(values []string, n int) []rune {
	counts := make(map[rune]int)
	for _, v := range values {
		for _, r := range v {
			if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) || r == '.' || r == '-' {
				continue
			}
			counts[r]++
		}
	}

	ranked := slices.Collect(maps.Keys(counts))
	slices.SortFunc(ranked, func(a, b rune) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// crossProbes builds the cross-cutting probes that apply to a column.
func crossProbes(c schema.Column) []*probe {
	probes := []*probe{
		{s: MaskEmail{}},
		{s: RedactSSN{}},
		{s: RedactCreditCard{}},
		{s: ZeroIPv4{}},
	}
	if c.Type == schema.Text {
		probes = append(probes, &probe{s: NewStateMatcher()})
	}
	probes = append(probes, &probe{
		s: NormalizeEmail{},
		accepts: func(v string) bool {
			return c.Type == schema.Email || pii.IsEmail(v)
		},
	})
	if c.Type == schema.PhoneUS {
		probes = append(probes, &probe{s: NormalizePhoneE164{}})
	}

	name := strings.ToLower(c.Name)
	if strings.Contains(name, "zip") || strings.Contains(name, "postal") {
		probes = append(probes, &probe{s: PadZip{Width: 5}})
	}
	if strings.Contains(name, "state") {
		probes = append(probes, &probe{s: StateToAbbreviation{}})
	}
	return probes
}

// orderedSet is a set of strings that remembers insertion order.
type orderedSet struct {
	values []string
	seen   map[string]struct{}
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.values = append(s.values, v)
}

func (s *orderedSet) len() int { return len(s.values) }
