package main

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

const columnGap = "  "

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	typeStyle   = lipgloss.NewStyle().Faint(true)
	emptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// table renders rows as aligned columns. Widths are measured in terminal
// cells so that wide runes line up.
type table struct {
	header   []string
	subtitle []string // optional second header line
	rows     [][]string
	maxWidth int // per column; 0 means unlimited
}

func (t *table) widths() []int {
	w := make([]int, len(t.header))
	measure := func(cells []string) {
		for i := range w {
			if i < len(cells) {
				w[i] = max(w[i], runewidth.StringWidth(cells[i]))
			}
		}
	}
	measure(t.header)
	measure(t.subtitle)
	for _, r := range t.rows {
		measure(r)
	}
	if t.maxWidth > 0 {
		for i := range w {
			w[i] = min(w[i], t.maxWidth)
		}
	}
	return w
}

func (t *table) render(out io.Writer) error {
	widths := t.widths()

	var b strings.Builder
	line := func(cells []string, style *lipgloss.Style) {
		for i, width := range widths {
			if i > 0 {
				b.WriteString(columnGap)
			}
			v := ""
			if i < len(cells) {
				v = cells[i]
			}
			cell := fit(v, width)
			switch {
			case style != nil:
				cell = style.Render(cell)
			case v == "":
				cell = emptyStyle.Render(fit("-", width))
			}
			b.WriteString(cell)
		}
		b.WriteString("\n")
	}

	line(t.header, &headerStyle)
	if t.subtitle != nil {
		line(t.subtitle, &typeStyle)
	}
	for _, r := range t.rows {
		line(r, nil)
	}

	_, err := io.WriteString(out, b.String())
	return err
}

// fit truncates or pads v to exactly width cells.
func fit(v string, width int) string {
	if runewidth.StringWidth(v) > width {
		if width <= 3 {
			return runewidth.Truncate(v, width, "")
		}
		v = runewidth.Truncate(v, width, "...")
	}
	return runewidth.FillRight(v, width)
}
