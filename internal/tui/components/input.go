package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-serial-bridge/internal/tui/colors"
	"github.com/allbin/go-serial-bridge/internal/tui/styles"
)

// SendingMode decides whether input is sent as text or as hex digit pairs
type SendingMode int

const (
	SendingModeText SendingMode = iota
	SendingModeHex
)

func (s SendingMode) String() string {
	if s == SendingModeHex {
		return "HEX"
	}
	return "TEXT"
}

const (
	placeholderText = "Type text and press Enter to send..."
	placeholderHex  = "Enter hex digit pairs (e.g. 48656C6C6F)..."
	historyLimit    = 100
)

// Input is the send line of the connect screen with command history
type Input struct {
	textInput     textinput.Model
	sendingMode   SendingMode
	history       []string
	historyIndex  int
	currentInput  string // saved while browsing history
	terminalWidth int
}

func NewInput(mode SendingMode) *Input {
	ti := textinput.New()
	ti.CharLimit = 1024
	ti.Prompt = ""

	i := &Input{
		textInput:    ti,
		historyIndex: -1,
	}
	i.SetSendingMode(mode)
	return i
}

func (i *Input) SetWidth(width int) {
	i.terminalWidth = width
	// border, padding, prompt and a space
	i.textInput.Width = max(width-6, 20)
}

func (i *Input) Focus() {
	i.textInput.Focus()
}

func (i *Input) Blur() {
	i.textInput.Blur()
}

func (i *Input) Value() string {
	return i.textInput.Value()
}

func (i *Input) SetValue(value string) {
	i.textInput.SetValue(value)
}

func (i *Input) SetSendingMode(mode SendingMode) {
	i.sendingMode = mode
	if mode == SendingModeHex {
		i.textInput.Placeholder = placeholderHex
	} else {
		i.textInput.Placeholder = placeholderText
	}
}

func (i *Input) ToggleSendingMode() {
	if i.sendingMode == SendingModeHex {
		i.SetSendingMode(SendingModeText)
	} else {
		i.SetSendingMode(SendingModeHex)
	}
}

func (i *Input) GetSendingMode() SendingMode {
	return i.sendingMode
}

func (i *Input) Update(msg tea.Msg) (*Input, tea.Cmd) {
	var cmd tea.Cmd
	i.textInput, cmd = i.textInput.Update(msg)
	return i, cmd
}

// View draws the input box. In normal mode it shows how to start typing.
func (i *Input) View(insert bool) string {
	symbol, color := ">", colors.Green
	if i.sendingMode == SendingModeHex {
		symbol, color = "#", colors.Yellow
	}
	prompt := lipgloss.NewStyle().Foreground(color).Bold(true).Render(symbol)

	content := lipgloss.NewStyle().Foreground(colors.Overlay0).Render("Press 'i' to enter insert mode")
	if insert {
		content = i.textInput.View()
	}

	style := styles.InputStyle.
		Width(max(i.terminalWidth-4, 10)).
		AlignHorizontal(lipgloss.Left)
	if insert {
		style = style.BorderForeground(colors.Green)
	}
	return style.Render(lipgloss.JoinHorizontal(lipgloss.Left, prompt, " ", content))
}

// AddToHistory records a sent line unless it is blank or repeats the last one
func (i *Input) AddToHistory(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if n := len(i.history); n == 0 || i.history[n-1] != line {
		i.history = append(i.history, line)
		if len(i.history) > historyLimit {
			i.history = i.history[1:]
		}
	}
	i.historyIndex = -1
	i.currentInput = ""
}

func (i *Input) NavigateHistoryUp() {
	if len(i.history) == 0 {
		return
	}
	if i.historyIndex == -1 {
		i.currentInput = i.textInput.Value()
		i.historyIndex = len(i.history) - 1
	} else if i.historyIndex > 0 {
		i.historyIndex--
	}
	i.textInput.SetValue(i.history[i.historyIndex])
}

func (i *Input) NavigateHistoryDown() {
	if i.historyIndex == -1 {
		return
	}
	if i.historyIndex < len(i.history)-1 {
		i.historyIndex++
		i.textInput.SetValue(i.history[i.historyIndex])
		return
	}
	i.historyIndex = -1
	i.textInput.SetValue(i.currentInput)
	i.currentInput = ""
}
