package report

import (
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

const minTerminalWidth = 20

var (
	termRendererMu sync.Mutex
	termRenderers  = map[int]*glamour.TermRenderer{}
)

// RenderTerminal renders Markdown for a terminal of the given width. The
// Markdown is returned unchanged when rendering fails.
func RenderTerminal(md string, width int) string {
	md = strings.TrimSpace(md)
	if md == "" {
		return ""
	}
	if width < minTerminalWidth {
		width = minTerminalWidth
	}

	termRendererMu.Lock()
	defer termRendererMu.Unlock()
	r := termRenderers[width]
	if r == nil {
		// A fixed style: auto detection queries the terminal and can block.
		rr, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return md
		}
		termRenderers[width] = rr
		r = rr
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

// TerminalWidth parses a COLUMNS-style value, falling back to def.
func TerminalWidth(columns string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(columns))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
