/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
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

// listenCmd represents the listen command
var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Show unsolicited data from the serial device in real time",
	Long: `Open the serial device, register a listener and display every data
event as it arrives.

Each event is the chunk of bytes drained when the device signalled input,
exactly what a bridge client receives. Features include:
- Hex, ASCII and escaped ("\x41") renderings, toggled with h, a and e
- A table view (--table) that can be paged through in visual mode
- Plain line output (--plain) for logging or piping

Example usage:
  serial-bridge listen --device /dev/ttyUSB0
  serial-bridge listen --baud 115200 --table
  serial-bridge listen --plain --escaped >> events.log`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tableView, _ := cmd.Flags().GetBool("table")
		plain, _ := cmd.Flags().GetBool("plain")
		escaped, _ := cmd.Flags().GetBool("escaped")
		noTimestamps, _ := cmd.Flags().GetBool("no-timestamps")

		config, err := portConfig()
		if err != nil {
			return err
		}
		log := newLogger()
		session, err := newSession(log)
		if err != nil {
			return err
		}
		p := plugin.New(session, plugin.WithLogger(log))

		mode := components.DisplayMode{ShowHex: !escaped, ShowASCII: !escaped, ShowEscaped: escaped}
		if plain {
			return runListenPlain(p, config, mode, !noTimestamps)
		}
		return runListenTUI(p, config, mode, !noTimestamps, tableView)
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().Bool("table", false, "Show events in a table instead of a scrolling log")
	listenCmd.Flags().Bool("plain", false, "Print one line per event instead of the interactive display")
	listenCmd.Flags().Bool("escaped", false, "Start with the escaped-hex rendering only")
	listenCmd.Flags().Bool("no-timestamps", false, "Hide timestamps")
}

// runListenPlain prints events until interrupted
func runListenPlain(p *plugin.Plugin, config serial.Config, mode components.DisplayMode, timestamps bool) error {
	formatter := components.NewDataFormatter(true, true)
	formatter.SetDisplayMode(mode)
	formatter.SetDecorations(timestamps, false)

	events := make(chan components.DataMsg, 64)
	model := models.NewSessionModel(p, config)
	model.Listen(func(msg tea.Msg) {
		data, ok := msg.(components.DataMsg)
		if !ok {
			return
		}
		select {
		case events <- data:
		default:
			fmt.Fprintf(os.Stderr, "output too slow, dropped %d bytes\n", len(data.Data))
		}
	})
	defer model.Close()

	if status, _ := model.OpenCmd()().(models.ConnectionStatusMsg); status.Error != nil {
		return status.Error
	}
	fmt.Fprintf(os.Stderr, "Listening on %s at %s, press Ctrl+C to stop\n", config.Device, config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-events:
			fmt.Println(formatter.FormatMessage(msg))
		}
	}
}

// listenModel is the Bubble Tea model for the listen command
type listenModel struct {
	*models.SessionModel
	view      components.View
	table     *components.TerminalTable // set when view is the table
	statusBar *components.StatusBar
	help      help.Model
	keys      keys.TerminalKeys
}

func newView(width, height int, tableView bool) (components.View, *components.TerminalTable) {
	if tableView {
		t := components.NewTerminalTable(width, height)
		return t, t
	}
	return components.NewTerminal(width, height), nil
}

func runListenTUI(p *plugin.Plugin, config serial.Config, mode components.DisplayMode, timestamps, tableView bool) error {
	view, table := newView(80, 20, tableView)
	view.Formatter().SetDisplayMode(mode)
	view.Formatter().SetDecorations(timestamps, true)

	m := &listenModel{
		SessionModel: models.NewSessionModel(p, config),
		view:         view,
		table:        table,
		statusBar:    components.NewStatusBar(config.Device),
		help:         help.New(),
		keys:         keys.NewTerminalKeys(),
	}
	m.statusBar.SetConfig(config)
	m.statusBar.SetConnecting()

	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	m.Listen(prog.Send)

	_, err := prog.Run()
	m.Close()
	return err
}

func (m *listenModel) Init() tea.Cmd {
	return m.OpenCmd()
}

// handleViewKey applies the display keys shared by listen and connect. It
// reports whether msg was one of them.
func handleViewKey(msg tea.KeyMsg, k keys.TerminalKeys, m *models.SessionModel, view components.View, table *components.TerminalTable, statusBar *components.StatusBar) bool {
	formatter := view.Formatter()
	switch {
	case key.Matches(msg, k.Clear):
		m.ClearData()
		statusBar.ResetCounters()
	case key.Matches(msg, k.ToggleHex):
		formatter.ToggleHex()
	case key.Matches(msg, k.ToggleASCII):
		formatter.ToggleASCII()
	case key.Matches(msg, k.ToggleEscaped):
		formatter.ToggleEscaped()
	case key.Matches(msg, k.ToggleTimestamps):
		formatter.ToggleTimestamps()
	case key.Matches(msg, k.ToggleIndicators):
		formatter.ToggleIndicators()
	case key.Matches(msg, k.VisualMode):
		if table == nil {
			return true
		}
		if table.GetViewMode() == components.ViewModeFollow {
			table.SetViewMode(components.ViewModeVisual)
		} else {
			table.SetViewMode(components.ViewModeFollow)
		}
	default:
		return false
	}
	view.Refresh(m.Data())
	return true
}

func viewModeString(table *components.TerminalTable) string {
	if table == nil {
		return "FOLLOW"
	}
	return table.GetViewMode().String()
}

func (m *listenModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// status bar is a single line
		m.view.SetSize(msg.Width, msg.Height-2)
		m.statusBar.SetWidth(msg.Width)
		m.SetReady(true)
		m.view.Refresh(m.Data())

	case models.ConnectionStatusMsg:
		m.SetStatus(msg)
		if msg.Error != nil {
			m.statusBar.SetDisconnected(msg.Error)
		} else {
			m.statusBar.SetConnected()
		}

	case components.DataMsg:
		m.Apply(msg)
		m.statusBar.Count(msg)
		m.view.Refresh(m.Data())

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		case handleViewKey(msg, m.keys, m.SessionModel, m.view, m.table, m.statusBar):
			return m, nil
		}
		return m, m.view.Update(msg)
	}

	return m, m.view.Update(msg)
}

func (m *listenModel) View() string {
	content := "Initializing..."
	if m.IsReady() {
		content = m.view.View()
	}

	statusBar := m.statusBar.Render("LISTEN", "", viewModeString(m.table), time.Now().Format("15:04:05"))
	parts := []string{styles.ContentBorderStyle.Render(content)}
	if m.help.ShowAll {
		parts = append(parts, styles.HelpStyle.Render(m.help.View(m.keys)))
	}
	parts = append(parts, statusBar)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
