/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	serial "github.com/allbin/go-serial-bridge"
	"github.com/allbin/go-serial-bridge/internal/tui/components"
	"github.com/allbin/go-serial-bridge/internal/tui/keys"
	"github.com/allbin/go-serial-bridge/internal/tui/models"
	"github.com/allbin/go-serial-bridge/internal/tui/styles"
	"github.com/allbin/go-serial-bridge/plugin"
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Talk to the serial device interactively",
	Long: `Open the serial device with a listener and a send line.

Received data is shown as it arrives, like listen. Press i to type, Enter to
send and Esc to return to normal mode. Tab switches the send line between
text (sent as Latin-1 followed by a newline) and hex digit pairs.

Example usage:
  serial-bridge connect --device /dev/ttyUSB0
  serial-bridge connect --baud 115200 --hex --table`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tableView, _ := cmd.Flags().GetBool("table")
		hexMode, _ := cmd.Flags().GetBool("hex")

		config, err := portConfig()
		if err != nil {
			return err
		}
		log := newLogger()
		session, err := newSession(log)
		if err != nil {
			return err
		}

		mode := components.SendingModeText
		if hexMode {
			mode = components.SendingModeHex
		}
		return runConnectTUI(plugin.New(session, plugin.WithLogger(log)), config, mode, tableView)
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)

	connectCmd.Flags().Bool("table", false, "Show traffic in a table instead of a scrolling log")
	connectCmd.Flags().Bool("hex", false, "Start the send line in hex mode")
}

// connectModel is the Bubble Tea model for the connect command
type connectModel struct {
	*models.SessionModel
	view      components.View
	table     *components.TerminalTable
	statusBar *components.StatusBar
	input     *components.Input
	help      help.Model
	keys      keys.ConnectKeys
}

func runConnectTUI(p *plugin.Plugin, config serial.Config, mode components.SendingMode, tableView bool) error {
	view, table := newView(80, 20, tableView)

	m := &connectModel{
		SessionModel: models.NewSessionModel(p, config),
		view:         view,
		table:        table,
		statusBar:    components.NewStatusBar(config.Device),
		input:        components.NewInput(mode),
		help:         help.New(),
		keys:         keys.NewConnectKeys(),
	}
	m.statusBar.SetConfig(config)
	m.statusBar.SetConnecting()

	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	m.Listen(prog.Send)

	_, err := prog.Run()
	m.Close()
	return err
}

func (m *connectModel) Init() tea.Cmd {
	return m.OpenCmd()
}

// send queues the current input line
func (m *connectModel) send() tea.Cmd {
	line := m.input.Value()
	if line == "" || !m.IsConnected() {
		return nil
	}

	pending, cmd, err := m.WriteCmd(line, m.input.GetSendingMode())
	if err != nil {
		m.statusBar.SetDisconnected(fmt.Errorf("not sent: %w", err))
		return nil
	}
	m.Apply(pending)
	m.view.Refresh(m.Data())
	m.input.AddToHistory(line)
	m.input.SetValue("")
	return cmd
}

func (m *connectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// input box takes 3 lines, status bar 1, content border 1
		m.view.SetSize(msg.Width, msg.Height-5)
		m.input.SetWidth(msg.Width)
		m.statusBar.SetWidth(msg.Width)
		m.SetReady(true)
		m.view.Refresh(m.Data())
		return m, nil

	case models.ConnectionStatusMsg:
		m.SetStatus(msg)
		if msg.Error != nil {
			m.statusBar.SetDisconnected(msg.Error)
		} else {
			m.statusBar.SetConnected()
		}
		return m, nil

	case components.DataMsg:
		m.Apply(msg)
		m.statusBar.Count(msg)
		m.view.Refresh(m.Data())
		return m, nil

	case tea.KeyMsg:
		if m.InputMode() == models.InputModeInsert {
			return m, m.updateInsert(msg)
		}
		return m, m.updateNormal(msg)
	}

	return m, m.view.Update(msg)
}

func (m *connectModel) updateInsert(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.SetInputMode(models.InputModeNormal)
		m.input.Blur()
		return nil
	case key.Matches(msg, m.keys.Enter):
		return m.send()
	case key.Matches(msg, m.keys.Up):
		m.input.NavigateHistoryUp()
		return nil
	case key.Matches(msg, m.keys.Down):
		m.input.NavigateHistoryDown()
		return nil
	case key.Matches(msg, m.keys.ToggleSendMode):
		m.input.ToggleSendingMode()
		return nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *connectModel) updateNormal(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return nil
	case key.Matches(msg, m.keys.InsertMode):
		m.SetInputMode(models.InputModeInsert)
		m.input.Focus()
		return nil
	case key.Matches(msg, m.keys.ToggleSendMode):
		m.input.ToggleSendingMode()
		return nil
	case handleViewKey(msg, m.keys.TerminalKeys, m.SessionModel, m.view, m.table, m.statusBar):
		return nil
	}
	return m.view.Update(msg)
}

func (m *connectModel) View() string {
	content := "Initializing..."
	if m.IsReady() {
		content = m.view.View()
	}

	insert := m.InputMode() == models.InputModeInsert
	detail := ""
	if insert {
		detail = "[" + m.input.GetSendingMode().String() + "] Tab to toggle"
	}
	statusBar := m.statusBar.Render(m.InputMode().String(), detail, viewModeString(m.table), time.Now().Format("15:04:05"))

	parts := []string{styles.ContentBorderStyle.Render(content), m.input.View(insert)}
	if m.help.ShowAll {
		parts = append(parts, styles.HelpStyle.Render(m.help.View(m.keys)))
	}
	parts = append(parts, statusBar)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
