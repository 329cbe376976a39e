package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-serial-bridge/internal/tui/colors"
)

var (
	ContentBorderStyle = lipgloss.NewStyle().
				BorderTop(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(colors.Surface1)

	InputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Surface2).
			Padding(0, 1)

	HelpStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Surface2).
			Padding(1, 2).
			Margin(1, 0)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Red)

	TimestampStyle = lipgloss.NewStyle().
			Foreground(colors.Subtext0)
)

// ModeStyle renders the mode badge at the left of the status bar
func ModeStyle(mode string) lipgloss.Style {
	bg := colors.Blue
	switch mode {
	case "INSERT":
		bg = colors.Green
	case "LISTEN":
		bg = colors.Teal
	}
	return lipgloss.NewStyle().
		Foreground(colors.Base).
		Background(bg).
		Bold(true).
		Padding(0, 1)
}
