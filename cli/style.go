package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	label   lipgloss.Style
	command lipgloss.Style
	prompt  lipgloss.Style
	muted   lipgloss.Style
	warning lipgloss.Style
	err     lipgloss.Style
}

// newStyles builds styles for each stream's own color profile, so output
// that is not a terminal stays plain.
func newStyles(stdout, stderr io.Writer) styles {
	out := lipgloss.NewRenderer(stdout)
	errOut := lipgloss.NewRenderer(stderr)
	return styles{
		label:   out.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
		command: out.NewStyle().Foreground(lipgloss.Color("3")),
		prompt:  out.NewStyle().Bold(true),
		muted:   out.NewStyle().Faint(true),
		warning: errOut.NewStyle().Foreground(lipgloss.Color("3")),
		err:     errOut.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

func (a *App) printCommand(cmd string) {
	fmt.Fprintln(a.Stdout)
	fmt.Fprintln(a.Stdout, a.styles.label.Render("Generated Command:"))
	fmt.Fprintln(a.Stdout, a.styles.command.Render(cmd))
	fmt.Fprintln(a.Stdout)
}

func (a *App) printWarning(format string, args ...any) {
	fmt.Fprintln(a.Stderr, a.styles.warning.Render("Warning: "+fmt.Sprintf(format, args...)))
}

func (a *App) printError(err error) {
	fmt.Fprintln(a.Stderr, a.styles.err.Render("Error: "+err.Error()))
}
