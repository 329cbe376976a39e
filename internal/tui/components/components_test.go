package components

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrintable(t *testing.T) {
	got := Printable([]byte("AT\r\n\x00~\x7f\xff"))
	if got != "AT....~.." {
		t.Errorf("Expected AT....~.., got %q", got)
	}
}

func TestHexString(t *testing.T) {
	assert.Equal(t, "", hexString(nil))
	assert.Equal(t, "00 41 FF", hexString([]byte{0x00, 0x41, 0xff}))
}

func TestDataFormatter_Fields(t *testing.T) {
	df := NewDataFormatter(true, true)
	data := []byte("AB")

	assert.Equal(t, []string{"HEX: 41 42", "ASCII: AB"}, df.Fields(data))

	df.ToggleEscaped()
	df.ToggleHex()
	assert.Equal(t, []string{"ASCII: AB", `ESC: "\x41\x42"`}, df.Fields(data))

	df.SetDisplayMode(DisplayMode{})
	assert.Equal(t, []string{"BYTES: 2"}, df.Fields(data))
}

func TestDataFormatter_FormatMessage(t *testing.T) {
	df := NewDataFormatter(false, true)
	df.SetDecorations(false, false)

	msg := DataMsg{Timestamp: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), Data: []byte("ok")}
	assert.Equal(t, "ASCII: ok", df.FormatMessage(msg))

	df.ToggleTimestamps()
	assert.True(t, strings.Contains(df.FormatMessage(msg), "03:04:05.000"))

	lines := df.FormatMessages([]DataMsg{msg, msg})
	assert.Len(t, lines, 2)
}

func TestIndicator(t *testing.T) {
	tests := []struct {
		msg   DataMsg
		label string
	}{
		{DataMsg{}, "↙ RX"},
		{DataMsg{IsTX: true, Status: TxPending}, "↗ TX ○"},
		{DataMsg{IsTX: true, Status: TxWritten}, "↗ TX ✓"},
		{DataMsg{IsTX: true, Status: TxFailed}, "↗ TX ✗"},
		{DataMsg{IsTX: true}, "↗ TX"},
	}

	for _, tt := range tests {
		label, _ := Indicator(tt.msg)
		if label != tt.label {
			t.Errorf("Expected %q, got %q", tt.label, label)
		}
	}
}

func TestStatusBar_Count(t *testing.T) {
	sb := NewStatusBar("/dev/ttyTEST")

	sb.Count(DataMsg{Data: []byte("abc")})
	sb.Count(DataMsg{IsTX: true, Status: TxPending, Data: []byte("xy")})
	sb.Count(DataMsg{IsTX: true, Status: TxWritten, Data: []byte("xy")})
	sb.Count(DataMsg{IsTX: true, Status: TxFailed, Data: []byte("zz")})

	assert.Equal(t, 3, sb.rx)
	assert.Equal(t, 2, sb.tx)

	sb.ResetCounters()
	assert.Zero(t, sb.rx)
	assert.Zero(t, sb.tx)
}

func TestInput_History(t *testing.T) {
	in := NewInput(SendingModeText)

	in.AddToHistory("first")
	in.AddToHistory("second")
	in.AddToHistory("second")
	in.AddToHistory("   ")
	assert.Len(t, in.history, 2)

	in.SetValue("draft")
	in.NavigateHistoryUp()
	assert.Equal(t, "second", in.Value())
	in.NavigateHistoryUp()
	assert.Equal(t, "first", in.Value())
	in.NavigateHistoryUp()
	assert.Equal(t, "first", in.Value())

	in.NavigateHistoryDown()
	assert.Equal(t, "second", in.Value())
	in.NavigateHistoryDown()
	assert.Equal(t, "draft", in.Value())
}

func TestInput_HistoryLimit(t *testing.T) {
	in := NewInput(SendingModeText)
	for i := 0; i < historyLimit+10; i++ {
		in.AddToHistory(strings.Repeat("x", i+1))
	}
	assert.Len(t, in.history, historyLimit)
}

func TestInput_ToggleSendingMode(t *testing.T) {
	in := NewInput(SendingModeText)
	in.ToggleSendingMode()
	assert.Equal(t, SendingModeHex, in.GetSendingMode())
	assert.Equal(t, "HEX", in.GetSendingMode().String())
	in.ToggleSendingMode()
	assert.Equal(t, SendingModeText, in.GetSendingMode())
}

func TestTerminalTable_ViewMode(t *testing.T) {
	tt := NewTerminalTable(80, 20)
	assert.Equal(t, ViewModeFollow, tt.GetViewMode())

	tt.Refresh([]DataMsg{{Data: []byte("a")}, {IsTX: true, Status: TxWritten, Data: []byte("b")}})
	assert.Len(t, tt.rows, 2)

	tt.SetViewMode(ViewModeVisual)
	assert.Equal(t, "VISUAL", tt.GetViewMode().String())
}
