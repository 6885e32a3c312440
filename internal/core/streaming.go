package core

// streaming.go cleans an incoming byte stream before it becomes a dataset's
// raw buffer.
//
//   - BOMSkippingReader drops a leading UTF-8 byte order mark
//   - UTF8Sanitizer replaces every byte that is not valid UTF-8 with '?'
//   - ProgressReader counts bytes and reports them at a fixed interval
//   - contextReader stops the read once the caller's context ends
//
// WrapForLoad stacks them in the right order.

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BOMSkippingReader removes a UTF-8 BOM from the start of a stream.
type BOMSkippingReader struct {
	r       *bufio.Reader
	checked bool
}

// NewBOMSkippingReader wraps r.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{r: bufio.NewReader(r)}
}

func (b *BOMSkippingReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		if head, _ := b.r.Peek(len(utf8BOM)); bytes.Equal(head, utf8BOM) {
			_, _ = b.r.Discard(len(utf8BOM))
		}
	}
	return b.r.Read(p)
}

// UTF8Sanitizer replaces each invalid UTF-8 byte with '?'. Multi-byte
// sequences split across reads are reassembled, so only genuinely invalid
// bytes are replaced. Output is never longer than input.
type UTF8Sanitizer struct {
	r       *bufio.Reader
	pending []byte
	err     error
}

// NewUTF8Sanitizer wraps r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{r: bufio.NewReaderSize(r, 64<<10)}
}

func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	if n == 0 && s.err != nil {
		return 0, s.err
	}

	for n < len(p) {
		r, size, err := s.r.ReadRune()
		if err != nil {
			if n > 0 {
				s.err = err
				return n, nil
			}
			return 0, err
		}

		if r == utf8.RuneError && size == 1 {
			p[n] = '?'
			n++
			continue
		}

		var enc [utf8.UTFMax]byte
		w := utf8.EncodeRune(enc[:], r)
		c := copy(p[n:], enc[:w])
		n += c
		if c < w {
			s.pending = append(s.pending[:0], enc[c:w]...)
		}
	}
	return n, nil
}

// ProgressReader counts the bytes read through it and calls fn each time
// another interval bytes have passed.
type ProgressReader struct {
	r        io.Reader
	read     int64
	total    int64
	interval int64
	next     int64
	fn       func(read, total int64)
}

// NewProgressReader reports through fn every interval bytes. total is the
// expected size, or 0 when unknown. fn may be nil.
func NewProgressReader(r io.Reader, total, interval int64, fn func(read, total int64)) *ProgressReader {
	if interval <= 0 {
		interval = 1 << 20
	}
	return &ProgressReader{r: r, total: total, interval: interval, next: interval, fn: fn}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.fn != nil && p.read >= p.next {
		p.fn(p.read, p.total)
		for p.next <= p.read {
			p.next += p.interval
		}
	}
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (p *ProgressReader) BytesRead() int64 { return p.read }

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// WrapForLoad prepares r for loading. Progress counts raw bytes, before the
// BOM is dropped and invalid bytes are replaced.
func WrapForLoad(ctx context.Context, r io.Reader, total, interval int64, fn func(read, total int64)) (io.Reader, *ProgressReader) {
	counter := NewProgressReader(contextReader{ctx: ctx, r: r}, total, interval, fn)
	return NewUTF8Sanitizer(NewBOMSkippingReader(counter)), counter
}
