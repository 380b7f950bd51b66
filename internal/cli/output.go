// Package cli provides terminal output helpers: colored status lines, a
// spinner for in-flight fetches and an alert notifier.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

// Printer writes status lines, colored when the writer is a terminal.
type Printer struct {
	mu       sync.Mutex
	w        io.Writer
	colorize bool
}

// NewPrinter creates a Printer for w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, colorize: IsTerminal(w)}
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.w
}

// Colorize wraps text in color when the printer is colorizing.
func (p *Printer) Colorize(text, color string) string {
	if !p.colorize {
		return text
	}
	return color + text + ColorReset
}

// Printf writes formatted text as is.
func (p *Printer) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *Printer) line(mark, color, message string) {
	p.Printf("%s %s\n", p.Colorize(mark, color), message)
}

// Success prints a success line.
func (p *Printer) Success(message string) { p.line("✓", ColorGreen, message) }

// Error prints an error line.
func (p *Printer) Error(message string) { p.line("✗", ColorRed, message) }

// Warning prints a warning line.
func (p *Printer) Warning(message string) { p.line("⚠", ColorYellow, message) }

// Info prints an informational line.
func (p *Printer) Info(message string) { p.line("ℹ", ColorBlue, message) }

// AlertNotifier shows fetch failures as a titled alert line.
type AlertNotifier struct {
	P *Printer
}

// Notify prints "title: message".
func (n AlertNotifier) Notify(title, message string) {
	n.P.Printf("%s %s\n", n.P.Colorize(title+":", ColorBold+ColorRed), message)
}

// Spinner animates while a fetch is loading.
type Spinner struct {
	frames   []string
	current  int
	prefix   string
	mu       sync.Mutex
	writer   io.Writer
	active   bool
	colorize bool
	done     chan struct{}
}

// NewSpinner creates a spinner writing to w. On a non-terminal writer it
// stays silent.
func NewSpinner(w io.Writer, prefix string) *Spinner {
	return &Spinner{
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		prefix:   prefix,
		writer:   w,
		colorize: IsTerminal(w),
	}
}

// Start starts the spinner.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.active || !s.colorize {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				if s.active {
					s.render()
					s.current = (s.current + 1) % len(s.frames)
				}
				s.mu.Unlock()
			case <-done:
				return
			}
		}
	}()
}

// Stop stops the spinner and clears its line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	s.active = false
	close(s.done)
	fmt.Fprint(s.writer, "\r"+strings.Repeat(" ", len(s.prefix)+2)+"\r")
}

// Active reports whether the spinner is running.
func (s *Spinner) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Spinner) render() {
	frame := s.frames[s.current]
	if s.colorize {
		frame = ColorCyan + frame + ColorReset
	}
	fmt.Fprintf(s.writer, "\r%s %s", frame, s.prefix)
}

// IsTerminal reports whether w is a character device.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
