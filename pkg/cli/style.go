package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sharo-jef/webllm-svg/pkg/generation"
)

// Theme is the terminal color scheme.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Warn    lipgloss.Color
	Error   lipgloss.Color
}

var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Warn:    lipgloss.Color("#e3b341"),
	Error:   lipgloss.Color("#f85149"),
}

// Styles are the lipgloss styles derived from a Theme.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Help    lipgloss.Style
	Success lipgloss.Style
	Warn    lipgloss.Style
	Error   lipgloss.Style
	Bar     lipgloss.Style
	Box     lipgloss.Style
}

func NewStyles(t Theme) Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label:   lipgloss.NewStyle().Bold(true),
		Help:    lipgloss.NewStyle().Foreground(t.Dim),
		Success: lipgloss.NewStyle().Foreground(t.Primary),
		Warn:    lipgloss.NewStyle().Foreground(t.Warn),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(t.Error),
		Bar:     lipgloss.NewStyle().Foreground(t.Primary),
		Box:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Dim).Padding(0, 1),
	}
}

// Printer writes styled status lines. Messages go to Out except errors,
// which go to Err.
type Printer struct {
	Styles Styles
	Out    io.Writer
	Err    io.Writer

	// Verbose enables debug-level events.
	Verbose bool
}

// NewPrinter writes to stdout and stderr with the default theme.
func NewPrinter(verbose bool) *Printer {
	return &Printer{Styles: NewStyles(DefaultTheme), Out: os.Stdout, Err: os.Stderr, Verbose: verbose}
}

func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.Out, p.Styles.Success.Render("✓ "+fmt.Sprintf(format, args...)))
}

func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintln(p.Out, "ℹ "+fmt.Sprintf(format, args...))
}

func (p *Printer) Warning(format string, args ...any) {
	fmt.Fprintln(p.Out, p.Styles.Warn.Render("⚠ "+fmt.Sprintf(format, args...)))
}

func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.Err, p.Styles.Error.Render("Error: "+fmt.Sprintf(format, args...)))
}

func (p *Printer) Debug(format string, args ...any) {
	if p.Verbose {
		fmt.Fprintln(p.Err, p.Styles.Help.Render("· "+fmt.Sprintf(format, args...)))
	}
}

// Event prints a generation log event by level.
func (p *Printer) Event(ev generation.LogEvent) {
	switch ev.Level {
	case generation.LevelDebug:
		p.Debug("%s", ev.Message)
	case generation.LevelInfo:
		p.Info("%s", ev.Message)
	case generation.LevelWarn:
		p.Warning("%s", ev.Message)
	case generation.LevelError:
		p.Error("%s", ev.Message)
	case generation.LevelSuccess:
		p.Success("%s", ev.Message)
	}
}

// ProgressBar renders fraction in [0, 1] as a bar of width cells.
func (s Styles) ProgressBar(fraction float64, width int) string {
	fraction = min(max(fraction, 0), 1)
	filled := int(fraction * float64(width))
	bar := s.Bar.Render(strings.Repeat("█", filled)) + s.Help.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %3.0f%%", bar, fraction*100)
}

// Panel renders a titled box around body.
func (s Styles) Panel(title, body string) string {
	return s.Box.Render(s.Title.Render(title) + "\n" + body)
}
