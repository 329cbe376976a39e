/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/allbin/go-serial-bridge/plugin"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [data]",
	Short: "Send data to the serial device",
	Long: `Send data to the serial device and close it again.

Data can be provided as:
- Command line argument: serial-bridge send "Hello World"
- From stdin (pipe): echo "test data" | serial-bridge send
- Interactive mode: serial-bridge send (prompts for input)

Text is sent as ISO-8859-1, characters outside it are sent as '?'.
With --hex the data is a string of hex digit pairs; a trailing lone digit
is ignored.

Example usage:
  serial-bridge send "AT+GMR" --newline
  serial-bridge send 0206000300000099 --hex --device /dev/ttyACM0
  echo "test" | serial-bridge send`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data string
		if len(args) == 1 {
			data = args[0]
		} else {
			stat, err := os.Stdin.Stat()
			if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
				data = promptForData()
			} else {
				stdinData, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				data = strings.TrimRight(string(stdinData), "\r\n")
			}
		}

		hexMode, _ := cmd.Flags().GetBool("hex")
		addNewline, _ := cmd.Flags().GetBool("newline")

		if hexMode {
			data = cleanHex(data)
		} else if addNewline {
			data += "\n"
		}

		return sendData(data, hexMode)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().BoolP("newline", "n", false, "Add newline character to the end of text data")
	sendCmd.Flags().BoolP("hex", "x", false, "Interpret data as hexadecimal (e.g., '48656c6c6f' for 'Hello')")
}

func promptForData() string {
	promptStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99"))

	fmt.Print(promptStyle.Render("Enter data to send: "))

	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

// cleanHex strips whitespace and 0x prefixes so "0x48 0x65" and "4865"
// describe the same bytes
func cleanHex(hexStr string) string {
	hexStr = strings.Join(strings.Fields(hexStr), "")
	hexStr = strings.ReplaceAll(hexStr, "0x", "")
	return strings.ReplaceAll(hexStr, "0X", "")
}

func sendData(data string, hexMode bool) error {
	infoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		Bold(true)

	successStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("40")).
		Bold(true)

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("196")).
		Bold(true)

	log := newLogger()
	session, config, err := openSession(log)
	if err != nil {
		return fmt.Errorf("%s %v", errorStyle.Render("✗"), err)
	}
	defer session.Close()

	fmt.Printf("%s Opened %s at %s\n", successStyle.Render("✓"), config.Device, config)

	p := plugin.New(session, plugin.WithLogger(log))
	if hexMode {
		err = p.WriteHex(data)
	} else {
		err = p.Write(data)
	}
	if err != nil {
		return fmt.Errorf("%s failed to send data: %v", errorStyle.Render("✗"), err)
	}

	n := len(data) / 2
	if !hexMode {
		n = len(plugin.ToLatin1(data))
	}
	fmt.Printf("%s Sent %d bytes\n", successStyle.Render("✓"), n)

	preview := data
	if len(preview) > 50 {
		preview = preview[:50] + "..."
	}
	preview = strings.Map(func(r rune) rune {
		if r < 32 || r > 126 {
			return '·'
		}
		return r
	}, preview)

	fmt.Printf("%s Data: %s\n", infoStyle.Render("📋"), preview)
	return nil
}
