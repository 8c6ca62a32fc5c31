package cmd

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	skipStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	keyStyle     = lipgloss.NewStyle().Bold(true)
	sessionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

// terminalWidth returns the terminal width, falling back to 80 when stdout
// is not a terminal.
func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// rule renders a horizontal separator sized to the terminal, capped so
// wide terminals do not produce absurd banners.
func rule() string {
	w := terminalWidth()
	if w > 100 {
		w = 100
	}
	return subtleStyle.Render(strings.Repeat("─", w))
}
