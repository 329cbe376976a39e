package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	serial "github.com/allbin/go-serial-bridge"
	"github.com/allbin/go-serial-bridge/internal/tui/colors"
	"github.com/allbin/go-serial-bridge/internal/tui/styles"
)

type connState int

const (
	stateConnecting connState = iota
	stateConnected
	stateDisconnected
)

// StatusBar is the single line at the bottom of the listen and connect
// screens
type StatusBar struct {
	portPath string
	config   *serial.Config
	state    connState
	err      error
	width    int
	rx, tx   int
}

func NewStatusBar(portPath string) *StatusBar {
	return &StatusBar{portPath: portPath}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

func (sb *StatusBar) SetConfig(config serial.Config) {
	sb.config = &config
}

func (sb *StatusBar) SetConnecting() {
	sb.state = stateConnecting
	sb.err = nil
}

func (sb *StatusBar) SetConnected() {
	sb.state = stateConnected
	sb.err = nil
}

func (sb *StatusBar) SetDisconnected(err error) {
	sb.state = stateDisconnected
	sb.err = err
}

// Count adds a chunk to the byte counters
func (sb *StatusBar) Count(msg DataMsg) {
	if msg.IsTX {
		if msg.Status == TxWritten {
			sb.tx += len(msg.Data)
		}
		return
	}
	sb.rx += len(msg.Data)
}

func (sb *StatusBar) ResetCounters() {
	sb.rx, sb.tx = 0, 0
}

// Render draws the bar. mode is the badge on the left, detail an optional
// hint next to it, view the FOLLOW/VISUAL state of the traffic view.
func (sb *StatusBar) Render(mode, detail, view, timestamp string) string {
	width := sb.width
	if width <= 0 {
		width = 80
	}

	badge := styles.ModeStyle(mode).Render(mode)
	port := lipgloss.NewStyle().Foreground(colors.Mauve).Bold(true).Padding(0, 1).Render(sb.portPath)

	var indicator string
	switch {
	case sb.err != nil:
		indicator = styles.ErrorStyle.Render("✗ " + sb.err.Error())
	case sb.state == stateConnected:
		indicator = lipgloss.NewStyle().Foreground(colors.Green).Render("●")
	case sb.state == stateConnecting:
		indicator = lipgloss.NewStyle().Foreground(colors.Yellow).Render("○")
	default:
		indicator = lipgloss.NewStyle().Foreground(colors.Red).Render("○")
	}

	divider := lipgloss.NewStyle().Foreground(colors.Surface2).Padding(0, 1).Render("│")

	left := []string{badge, port, indicator}
	if detail != "" {
		left = append(left, lipgloss.NewStyle().Foreground(colors.Peach).Bold(true).Padding(0, 1).Render(detail))
	}
	left = append(left, divider)
	leftSide := lipgloss.JoinHorizontal(lipgloss.Left, left...)

	framing := "⚡ serial"
	if sb.config != nil {
		framing = "⚡ " + sb.config.String()
	}
	details := lipgloss.NewStyle().Foreground(colors.Subtext0).Padding(0, 1).
		Render(fmt.Sprintf("%s  RX %d  TX %d  %s", framing, sb.rx, sb.tx, view))
	clock := lipgloss.NewStyle().Foreground(colors.Subtext1).Padding(0, 1).Render(timestamp)
	rightSide := lipgloss.JoinHorizontal(lipgloss.Left, details, divider, clock)

	spacerWidth := max(width-lipgloss.Width(leftSide)-lipgloss.Width(rightSide), 1)
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	return lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Surface0).
		Width(width).
		Render(lipgloss.JoinHorizontal(lipgloss.Left, leftSide, spacer, rightSide))
}
