package frame

// parser.go builds a Frame from raw bytes in three steps:
//
//  1. Read the header record to get column names.
//  2. Walk the bytes once, recording the start offset of every non-blank
//     line after the header. A trailing newline yields no extra row.
//  3. Infer each column's type from a sample of leading rows.

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/wrangle/internal/schema"
)

const (
	// SampleRows is how many leading rows type inference looks at.
	SampleRows = 100

	// InferenceThreshold is the share of non-empty sampled values that
	// must be valid for a candidate type to win. The comparison is strict.
	InferenceThreshold = 0.9

	// ProgressInterval is how many bytes pass between progress callbacks.
	ProgressInterval = 1 << 20
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ProgressFunc receives the number of bytes indexed so far and the total.
type ProgressFunc func(scanned, total int64)

// Option configures Parse.
type Option func(*parseOptions)

type parseOptions struct {
	progress   ProgressFunc
	sampleRows int
}

// WithProgress reports indexing progress roughly every ProgressInterval
// bytes and once on completion.
func WithProgress(fn ProgressFunc) Option {
	return func(o *parseOptions) { o.progress = fn }
}

// WithSampleRows overrides how many rows type inference samples.
func WithSampleRows(n int) Option {
	return func(o *parseOptions) {
		if n > 0 {
			o.sampleRows = n
		}
	}
}

// Parse indexes data and infers a schema. The returned Frame takes ownership
// of data; the caller must not modify it afterwards.
func Parse(data []byte, opts ...Option) (*Frame, error) {
	o := parseOptions{sampleRows: SampleRows}
	for _, opt := range opts {
		opt(&o)
	}

	data = bytes.TrimPrefix(data, utf8BOM)

	r := newRecordReader(data)
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %w", ErrHeader, ErrEmpty)
		}
		return nil, fmt.Errorf("%w: %v", ErrHeader, err)
	}

	columns := make([]schema.Column, len(header))
	for i, name := range header {
		columns[i] = schema.Column{Name: strings.TrimSpace(name), Type: schema.Text}
	}

	f := &Frame{
		raw:     data,
		rows:    indexRows(data, int(r.InputOffset()), o.progress),
		columns: columns,
		patches: make(map[int]map[int]string),
	}
	f.inferTypes(o.sampleRows)

	return f, nil
}

// indexRows records the start offset of every line after start that holds at
// least one byte other than a line terminator.
func indexRows(data []byte, start int, progress ProgressFunc) []int {
	total := int64(len(data))
	offsets := make([]int, 0, estimateRows(data, start))
	lastReport := start

	for pos := start; pos < len(data); {
		next := len(data)
		lineEnd := len(data)
		if nl := bytes.IndexByte(data[pos:], '\n'); nl >= 0 {
			lineEnd = pos + nl
			next = lineEnd + 1
		}

		if lineEnd > pos && !(lineEnd == pos+1 && data[pos] == '\r') {
			offsets = append(offsets, pos)
		}

		if progress != nil && next-lastReport >= ProgressInterval {
			progress(int64(next), total)
			lastReport = next
		}
		pos = next
	}

	if progress != nil {
		progress(total, total)
	}
	return offsets
}

// estimateRows sizes the offset slice from the first line's length.
func estimateRows(data []byte, start int) int {
	if start >= len(data) {
		return 0
	}
	nl := bytes.IndexByte(data[start:], '\n')
	if nl <= 0 {
		return 1
	}
	return (len(data)-start)/(nl+1) + 1
}

// inferTypes samples up to n rows and locks in, per column, the first
// candidate type that more than InferenceThreshold of the non-empty samples
// satisfy. Columns with no non-empty samples stay Text.
func (f *Frame) inferTypes(n int) {
	samples := make([][]string, len(f.columns))
	f.Scan(0, n, func(row RowView) bool {
		for c := range f.columns {
			v, ok := row.Value(c)
			if !ok {
				continue
			}
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			samples[c] = append(samples[c], v)
		}
		return true
	})

	for c, values := range samples {
		f.columns[c].Type = InferType(values)
	}
}

// InferType picks the first type in schema.InferenceOrder that more than
// InferenceThreshold of values satisfy. Empty values are ignored; with none
// left the result is Text.
func InferType(values []string) schema.Type {
	nonEmpty := 0
	for _, v := range values {
		if v != "" {
			nonEmpty++
		}
	}
	if nonEmpty == 0 {
		return schema.Text
	}

	for _, candidate := range schema.InferenceOrder {
		valid := 0
		for _, v := range values {
			if v != "" && candidate.IsValid(v) {
				valid++
			}
		}
		if float64(valid)/float64(nonEmpty) > InferenceThreshold {
			return candidate
		}
	}
	return schema.Text
}
