package models

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	serial "github.com/allbin/go-serial-bridge"
	"github.com/allbin/go-serial-bridge/internal/tui/components"
	"github.com/allbin/go-serial-bridge/plugin"
)

// InputMode represents the current input mode (vim-like)
type InputMode int

const (
	InputModeNormal InputMode = iota
	InputModeInsert
)

func (m InputMode) String() string {
	if m == InputModeInsert {
		return "INSERT"
	}
	return "NORMAL"
}

// ConnectionStatusMsg reports the outcome of opening or closing the port
type ConnectionStatusMsg struct {
	Connected bool
	Error     error
}

// SessionModel is the state shared by the listen and connect screens: the
// plugin driving the port and the traffic seen so far.
type SessionModel struct {
	plugin *plugin.Plugin
	config serial.Config

	connected bool
	err       error
	ready     bool
	inputMode InputMode

	data  []components.DataMsg
	txSeq int
	limit int
}

// DefaultHistory is how many chunks of traffic are kept for redrawing
const DefaultHistory = 5000

func NewSessionModel(p *plugin.Plugin, config serial.Config) *SessionModel {
	return &SessionModel{
		plugin: p,
		config: config,
		limit:  DefaultHistory,
	}
}

func (m *SessionModel) Config() serial.Config {
	return m.config
}

func (m *SessionModel) PortPath() string {
	return m.config.Device
}

func (m *SessionModel) IsConnected() bool {
	return m.connected
}

func (m *SessionModel) Err() error {
	return m.err
}

// SetStatus applies a ConnectionStatusMsg
func (m *SessionModel) SetStatus(msg ConnectionStatusMsg) {
	m.connected = msg.Connected
	m.err = msg.Error
}

func (m *SessionModel) IsReady() bool {
	return m.ready
}

func (m *SessionModel) SetReady(ready bool) {
	m.ready = ready
}

func (m *SessionModel) InputMode() InputMode {
	return m.inputMode
}

func (m *SessionModel) SetInputMode(mode InputMode) {
	m.inputMode = mode
}

func (m *SessionModel) Data() []components.DataMsg {
	return m.data
}

func (m *SessionModel) ClearData() {
	m.data = nil
}

// Apply records a chunk of traffic. A TX message whose Seq is already
// recorded updates that chunk's status instead of adding a row.
func (m *SessionModel) Apply(msg components.DataMsg) {
	if msg.IsTX && msg.Seq != 0 {
		for i := len(m.data) - 1; i >= 0; i-- {
			if m.data[i].IsTX && m.data[i].Seq == msg.Seq {
				m.data[i].Status = msg.Status
				return
			}
		}
	}
	m.data = append(m.data, msg)
	if m.limit > 0 && len(m.data) > m.limit {
		m.data = m.data[len(m.data)-m.limit:]
	}
}

// OpenCmd opens the port in the background
func (m *SessionModel) OpenCmd() tea.Cmd {
	session := m.plugin.Session()
	config := m.config
	return func() tea.Msg {
		if err := session.Open(config); err != nil {
			return ConnectionStatusMsg{Error: err}
		}
		return ConnectionStatusMsg{Connected: true}
	}
}

// Listen registers a listener that forwards every event to send as an RX
// DataMsg. Payloads are decoded back from their escaped form.
func (m *SessionModel) Listen(send func(tea.Msg)) {
	m.plugin.RegisterReadCallback(serial.Target{
		Success: func(payload string) {
			data, err := serial.Decode(serial.StripEscapes(payload))
			if err != nil {
				return
			}
			send(components.DataMsg{Timestamp: time.Now(), Data: data})
		},
		Failure: func(string) {},
	})
}

// WriteCmd queues line for sending. It returns the pending TX chunk to
// show right away and the command that performs the write and reports the
// final status. Text lines are sent as Latin-1 with a trailing newline.
func (m *SessionModel) WriteCmd(line string, mode components.SendingMode) (components.DataMsg, tea.Cmd, error) {
	var (
		data  []byte
		write func() error
	)
	switch mode {
	case components.SendingModeHex:
		hexStr := strings.Join(strings.Fields(line), "")
		decoded, err := serial.Decode(hexStr)
		if err != nil {
			return components.DataMsg{}, nil, err
		}
		data = decoded
		write = func() error { return m.plugin.WriteHex(hexStr) }
	default:
		text := line + "\n"
		data = plugin.ToLatin1(text)
		write = func() error { return m.plugin.Write(text) }
	}

	m.txSeq++
	pending := components.DataMsg{
		Timestamp: time.Now(),
		Data:      data,
		IsTX:      true,
		Status:    components.TxPending,
		Seq:       m.txSeq,
	}

	cmd := func() tea.Msg {
		done := pending
		done.Status = components.TxWritten
		if err := write(); err != nil {
			done.Status = components.TxFailed
		}
		return done
	}
	return pending, cmd, nil
}

// Close drops the listener and closes the port if it is open
func (m *SessionModel) Close() {
	m.plugin.RegisterReadCallback(serial.Target{})
	if m.plugin.Session().IsOpen() {
		m.plugin.Close()
	}
	m.connected = false
}
