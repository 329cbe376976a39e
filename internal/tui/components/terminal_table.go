package components

import (
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"

	serial "github.com/allbin/go-serial-bridge"
	"github.com/allbin/go-serial-bridge/internal/tui/colors"
)

const (
	columnKeyTime    = "time"
	columnKeyDir     = "dir"
	columnKeyHex     = "hex"
	columnKeyASCII   = "ascii"
	columnKeyEscaped = "escaped"
	columnKeyBytes   = "bytes"
)

type ViewMode int

const (
	ViewModeFollow ViewMode = iota
	ViewModeVisual
)

func (m ViewMode) String() string {
	if m == ViewModeVisual {
		return "VISUAL"
	}
	return "FOLLOW"
}

// TerminalTable shows one row per chunk of traffic. In follow mode it stays
// on the last page; in visual mode the rows can be paged through.
type TerminalTable struct {
	model     table.Model
	formatter *DataFormatter
	viewMode  ViewMode
	rows      []table.Row
	width     int
	height    int
}

var _ View = (*TerminalTable)(nil)

func NewTerminalTable(width, height int) *TerminalTable {
	tt := &TerminalTable{
		formatter: NewDataFormatter(true, true),
		viewMode:  ViewModeFollow,
	}
	tt.SetSize(width, height)
	return tt
}

func (tt *TerminalTable) Formatter() *DataFormatter {
	return tt.formatter
}

func (tt *TerminalTable) Width() int {
	return tt.width
}

func (tt *TerminalTable) SetSize(width, height int) {
	tt.width = max(width, 40)
	tt.height = max(height, 5)
	tt.rebuild()
}

func (tt *TerminalTable) columns() []table.Column {
	mode := tt.formatter.GetDisplayMode()
	columns := []table.Column{
		table.NewColumn(columnKeyTime, "Time", 14),
		table.NewColumn(columnKeyDir, "↕", 8),
	}
	if mode.ShowHex {
		columns = append(columns, table.NewFlexColumn(columnKeyHex, "Hex", 3))
	}
	if mode.ShowASCII {
		columns = append(columns, table.NewFlexColumn(columnKeyASCII, "ASCII", 1))
	}
	if mode.ShowEscaped {
		columns = append(columns, table.NewFlexColumn(columnKeyEscaped, "Escaped", 4))
	}
	return append(columns, table.NewColumn(columnKeyBytes, "Bytes", 6))
}

// rebuild recreates the table model for the current size, columns and mode.
// Header, borders and footer take 6 lines.
func (tt *TerminalTable) rebuild() {
	tt.model = table.New(tt.columns()).
		WithRows(tt.rows).
		WithTargetWidth(tt.width).
		WithPageSize(max(tt.height-6, 1)).
		HeaderStyle(lipgloss.NewStyle().Bold(true).Foreground(colors.Text)).
		WithBaseStyle(lipgloss.NewStyle().BorderForeground(colors.Surface1).Foreground(colors.Subtext1)).
		Focused(tt.viewMode == ViewModeVisual)
	if tt.viewMode == ViewModeFollow {
		tt.model = tt.model.PageLast()
	}
}

func (tt *TerminalTable) row(msg DataMsg) table.Row {
	label, color := Indicator(msg)
	return table.NewRow(table.RowData{
		columnKeyTime:    msg.Timestamp.Format("15:04:05.000"),
		columnKeyDir:     table.NewStyledCell(label, lipgloss.NewStyle().Foreground(color)),
		columnKeyHex:     hexString(msg.Data),
		columnKeyASCII:   Printable(msg.Data),
		columnKeyEscaped: serial.Encode(msg.Data),
		columnKeyBytes:   strconv.Itoa(len(msg.Data)),
	})
}

func (tt *TerminalTable) Refresh(data []DataMsg) {
	rows := make([]table.Row, len(data))
	for i, msg := range data {
		rows[i] = tt.row(msg)
	}
	tt.rows = rows
	tt.rebuild()
}

func (tt *TerminalTable) GetViewMode() ViewMode {
	return tt.viewMode
}

func (tt *TerminalTable) SetViewMode(mode ViewMode) {
	tt.viewMode = mode
	tt.rebuild()
}

func (tt *TerminalTable) Update(msg tea.Msg) tea.Cmd {
	if tt.viewMode != ViewModeVisual {
		return nil
	}
	var cmd tea.Cmd
	tt.model, cmd = tt.model.Update(msg)
	return cmd
}

func (tt *TerminalTable) View() string {
	return tt.model.View()
}

func hexString(data []byte) string {
	const digits = "0123456789ABCDEF"
	if len(data) == 0 {
		return ""
	}
	out := make([]byte, 0, len(data)*3-1)
	for i, b := range data {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, digits[b>>4], digits[b&0x0f])
	}
	return string(out)
}
