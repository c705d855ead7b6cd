// Package console prints the status lines of the integration check.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"
)

const headerWidth = 60

// Status symbols
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolInfo    = "ℹ"
)

// Printer writes symbol-prefixed status lines to an output stream.
// It is safe for concurrent use.
type Printer struct {
	mu  sync.Mutex
	out io.Writer

	header  *color.Color
	success *color.Color
	failure *color.Color
	warning *color.Color
	info    *color.Color
}

// Option configures a Printer.
type Option func(*Printer)

// WithColor forces colors on or off regardless of the output stream.
func WithColor(enabled bool) Option {
	return func(p *Printer) {
		p.setColor(enabled)
	}
}

// New creates a printer writing to out. Colors are enabled only when out is
// a terminal, unless overridden with WithColor.
func New(out io.Writer, opts ...Option) *Printer {
	if out == nil {
		out = os.Stdout
	}
	p := &Printer{
		out:     out,
		header:  color.New(color.FgHiMagenta, color.Bold),
		success: color.New(color.FgHiGreen),
		failure: color.New(color.FgHiRed),
		warning: color.New(color.FgHiYellow),
		info:    color.New(color.FgHiBlue),
	}
	p.setColor(IsTerminal(out))

	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Printer) setColor(enabled bool) {
	for _, c := range []*color.Color{p.header, p.success, p.failure, p.warning, p.info} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Header prints a blank line, the title framed by '=' rules, and a blank line.
func (p *Printer) Header(title string) {
	rule := strings.Repeat("=", headerWidth)

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, p.header.Sprint(rule))
	fmt.Fprintln(p.out, p.header.Sprint("  "+title))
	fmt.Fprintln(p.out, p.header.Sprint(rule))
	fmt.Fprintln(p.out)
}

// Success prints a "✓" line.
func (p *Printer) Success(format string, args ...any) {
	p.status(p.success, SymbolSuccess, format, args...)
}

// Error prints a "✗" line.
func (p *Printer) Error(format string, args ...any) {
	p.status(p.failure, SymbolError, format, args...)
}

// Warning prints a "⚠" line.
func (p *Printer) Warning(format string, args ...any) {
	p.status(p.warning, SymbolWarning, format, args...)
}

// Info prints a "ℹ" line.
func (p *Printer) Info(format string, args ...any) {
	p.status(p.info, SymbolInfo, format, args...)
}

// Println prints an uncolored line.
func (p *Printer) Println(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, fmt.Sprintf(format, args...))
}

// Blank prints an empty line.
func (p *Printer) Blank() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out)
}

func (p *Printer) status(c *color.Color, symbol, format string, args ...any) {
	line := symbol + " " + fmt.Sprintf(format, args...)

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, c.Sprint(line))
}
