package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// View is what the listen and connect screens draw traffic into
type View interface {
	SetSize(width, height int)
	Refresh(data []DataMsg)
	Formatter() *DataFormatter
	Update(msg tea.Msg) tea.Cmd
	View() string
	Width() int
}

// Terminal shows traffic as formatted lines in a scrolling viewport
type Terminal struct {
	viewport  viewport.Model
	formatter *DataFormatter
	lines     []string
}

var _ View = (*Terminal)(nil)

func NewTerminal(width, height int) *Terminal {
	return &Terminal{
		viewport:  viewport.New(width, height),
		formatter: NewDataFormatter(true, true),
	}
}

func (t *Terminal) SetSize(width, height int) {
	t.viewport.Width = width
	t.viewport.Height = height
}

func (t *Terminal) Width() int {
	return t.viewport.Width
}

func (t *Terminal) Formatter() *DataFormatter {
	return t.formatter
}

// Refresh redraws every line, following the newest
func (t *Terminal) Refresh(data []DataMsg) {
	t.lines = t.formatter.FormatMessages(data)
	t.viewport.SetContent(strings.Join(t.lines, "\n"))
	t.viewport.GotoBottom()
}

func (t *Terminal) Update(msg tea.Msg) tea.Cmd {
	// Key messages stay with the screen's own bindings
	switch msg.(type) {
	case tea.WindowSizeMsg, tea.MouseMsg:
		var cmd tea.Cmd
		t.viewport, cmd = t.viewport.Update(msg)
		return cmd
	}
	return nil
}

func (t *Terminal) View() string {
	return t.viewport.View()
}
