package chatcmder

import (
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/chatstream/pkg/pacer"
)

var codeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("180"))

// terminalRenderer appends revealed text to the terminal and keeps a copy
// of everything shown.
type terminalRenderer struct {
	w io.Writer

	mu   sync.Mutex
	text strings.Builder
}

func newTerminalRenderer(w io.Writer) *terminalRenderer {
	return &terminalRenderer{w: w}
}

func (r *terminalRenderer) Reveal(rv pacer.Reveal) {
	r.mu.Lock()
	r.text.WriteString(rv.Text)
	r.mu.Unlock()

	if rv.Class != pacer.ClassCode {
		io.WriteString(r.w, rv.Text)
		return
	}

	// lipgloss pads multi-line blocks, so style each line on its own.
	lines := strings.Split(rv.Text, "\n")
	for i, line := range lines {
		if i > 0 {
			io.WriteString(r.w, "\n")
		}
		if line != "" {
			io.WriteString(r.w, codeStyle.Render(line))
		}
	}
}

func (r *terminalRenderer) Finish(pacer.Outcome) {}

// Text returns everything revealed so far.
func (r *terminalRenderer) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text.String()
}
