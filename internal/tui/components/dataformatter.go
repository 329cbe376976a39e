package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	serial "github.com/allbin/go-serial-bridge"
	"github.com/allbin/go-serial-bridge/internal/tui/colors"
	"github.com/allbin/go-serial-bridge/internal/tui/styles"
)

// TxStatus tracks a sent chunk from submission to completion
type TxStatus string

const (
	TxPending TxStatus = "PENDING"
	TxWritten TxStatus = "WRITTEN"
	TxFailed  TxStatus = "ERROR"
)

// DataMsg is one chunk of traffic: a listener event or a write
type DataMsg struct {
	Timestamp time.Time
	Data      []byte
	IsTX      bool
	Status    TxStatus // empty for RX
	Seq       int      // TX only, pairs a status update with its chunk
}

// DisplayMode selects which renderings of the bytes are shown
type DisplayMode struct {
	ShowHex     bool
	ShowASCII   bool
	ShowEscaped bool // the "\xHH" form delivered to listeners
}

type DataFormatter struct {
	mode           DisplayMode
	showTimestamps bool
	showIndicators bool
}

func NewDataFormatter(showHex, showASCII bool) *DataFormatter {
	return &DataFormatter{
		mode:           DisplayMode{ShowHex: showHex, ShowASCII: showASCII},
		showTimestamps: true,
		showIndicators: true,
	}
}

func (df *DataFormatter) SetDisplayMode(mode DisplayMode) {
	df.mode = mode
}

func (df *DataFormatter) GetDisplayMode() DisplayMode {
	return df.mode
}

// SetDecorations controls the timestamp and RX/TX prefix of each line
func (df *DataFormatter) SetDecorations(timestamps, indicators bool) {
	df.showTimestamps = timestamps
	df.showIndicators = indicators
}

func (df *DataFormatter) ToggleHex()        { df.mode.ShowHex = !df.mode.ShowHex }
func (df *DataFormatter) ToggleASCII()      { df.mode.ShowASCII = !df.mode.ShowASCII }
func (df *DataFormatter) ToggleEscaped()    { df.mode.ShowEscaped = !df.mode.ShowEscaped }
func (df *DataFormatter) ToggleTimestamps() { df.showTimestamps = !df.showTimestamps }
func (df *DataFormatter) ToggleIndicators() { df.showIndicators = !df.showIndicators }

// Indicator returns the direction label with the TX status glyph
func Indicator(msg DataMsg) (string, lipgloss.Color) {
	if !msg.IsTX {
		return "↙ RX", colors.RX
	}
	switch msg.Status {
	case TxPending:
		return "↗ TX ○", colors.Yellow
	case TxWritten:
		return "↗ TX ✓", colors.Green
	case TxFailed:
		return "↗ TX ✗", colors.Red
	default:
		return "↗ TX", colors.TX
	}
}

// Printable replaces bytes outside printable ASCII with dots
func Printable(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data))
	for _, b := range data {
		if b >= 32 && b <= 126 {
			sb.WriteByte(b)
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}

// Fields renders the enabled representations of data, in display order
func (df *DataFormatter) Fields(data []byte) []string {
	var parts []string
	if df.mode.ShowHex {
		parts = append(parts, fmt.Sprintf("HEX: % X", data))
	}
	if df.mode.ShowASCII {
		parts = append(parts, "ASCII: "+Printable(data))
	}
	if df.mode.ShowEscaped {
		parts = append(parts, "ESC: "+serial.Encode(data))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("BYTES: %d", len(data)))
	}
	return parts
}

func (df *DataFormatter) FormatMessage(msg DataMsg) string {
	var prefix []string
	if df.showTimestamps {
		prefix = append(prefix, styles.TimestampStyle.Render("["+msg.Timestamp.Format("15:04:05.000")+"]"))
	}
	if df.showIndicators {
		label, color := Indicator(msg)
		prefix = append(prefix, lipgloss.NewStyle().Foreground(color).Bold(true).Render(label)+":")
	}

	body := strings.Join(df.Fields(msg.Data), "  ")
	if len(prefix) == 0 {
		return body
	}
	return strings.Join(prefix, " ") + " " + body
}

func (df *DataFormatter) FormatMessages(messages []DataMsg) []string {
	formatted := make([]string, len(messages))
	for i, msg := range messages {
		formatted[i] = df.FormatMessage(msg)
	}
	return formatted
}
