// Package console renders the colored operator-facing progress lines printed while
// devenv prepares and starts an environment.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Color selects one of the fixed palette entries used for diagnostic lines.
type Color int

const (
	// Plain prints without styling.
	Plain Color = iota
	// Blue is used for progress information.
	Blue
	// Yellow is used for warnings and "not yet" notices.
	Yellow
	// Green is used for success.
	Green
	// Red is used for failures.
	Red
	// Pink is used for discovered configuration.
	Pink
)

// Printer writes styled lines to an output stream. It is safe for concurrent use;
// every call writes whole lines under a single lock.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	styles map[Color]lipgloss.Style
}

// New constructs a Printer for w. Color support is detected from w, so writing to a
// buffer or a pipe produces plain text.
func New(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w: w,
		styles: map[Color]lipgloss.Style{
			Plain:  r.NewStyle(),
			Blue:   r.NewStyle().Foreground(lipgloss.Color("6")),
			Yellow: r.NewStyle().Foreground(lipgloss.Color("3")),
			Green:  r.NewStyle().Foreground(lipgloss.Color("2")),
			Red:    r.NewStyle().Foreground(lipgloss.Color("1")),
			Pink:   r.NewStyle().Foreground(lipgloss.Color("5")),
		},
	}
}

// Discard returns a Printer that drops all output.
func Discard() *Printer {
	return New(io.Discard)
}

// Sprint renders msg in color c without printing it.
func (p *Printer) Sprint(c Color, msg string) string {
	style, ok := p.styles[c]
	if !ok || msg == "" {
		return msg
	}
	return style.Render(msg)
}

// Print writes one formatted line in color c.
func (p *Printer) Print(c Color, format string, args ...any) {
	p.Lines(p.Sprint(c, fmt.Sprintf(format, args...)))
}

// Info prints a progress line.
func (p *Printer) Info(format string, args ...any) { p.Print(Blue, format, args...) }

// Warn prints a warning line.
func (p *Printer) Warn(format string, args ...any) { p.Print(Yellow, format, args...) }

// Success prints a success line.
func (p *Printer) Success(format string, args ...any) { p.Print(Green, format, args...) }

// Error prints a failure line.
func (p *Printer) Error(format string, args ...any) { p.Print(Red, format, args...) }

// Notice prints a discovered-configuration line.
func (p *Printer) Notice(format string, args ...any) { p.Print(Pink, format, args...) }

// Blank prints an empty line.
func (p *Printer) Blank() { p.Lines("") }

// Lines writes lines as one uninterrupted block.
func (p *Printer) Lines(lines ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, line := range lines {
		_, _ = io.WriteString(p.w, strings.TrimRight(line, "\n")+"\n")
	}
}

// Writer exposes the raw stream, serialized with the printer's lock, so command
// output can be passed through unmodified.
func (p *Printer) Writer() io.Writer {
	return writerFunc(func(b []byte) (int, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.w.Write(b)
	})
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) { return f(b) }
