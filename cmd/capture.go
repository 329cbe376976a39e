/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	serial "github.com/allbin/go-serial-bridge"
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture <output-file>",
	Short: "Capture unsolicited serial data to a file",
	Long: `Capture data events from the serial device to a file for later parsing.

Every chunk the device delivers to the listener is appended to the output
file as raw bytes, or with --escaped as one "\x41\x42" line per event. Runs
until interrupted (Ctrl+C).

The output file is opened in append mode, allowing you to resume captures
without overwriting existing data.

Example usage:
  serial-bridge capture data.log --device /dev/ttyUSB0
  serial-bridge capture output.txt --baud 115200 --console
  serial-bridge capture events.txt --escaped --rts`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		escaped, _ := cmd.Flags().GetBool("escaped")
		showConsole, _ := cmd.Flags().GetBool("console")
		return runCapture(args[0], escaped, showConsole)
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().Bool("escaped", false, "Write one escaped-hex line per event instead of raw bytes")
	captureCmd.Flags().BoolP("console", "c", false, "Display incoming data on console while capturing")
}

// captureSink writes events to the output file. It runs on the driver
// goroutine and keeps the first error it hits.
type captureSink struct {
	mu      sync.Mutex
	out     io.Writer
	console io.Writer
	escaped bool
	bytes   int64
	events  int
	err     error
}

func (c *captureSink) write(payload string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}

	data, err := serial.Decode(serial.StripEscapes(payload))
	if err != nil {
		c.err = err
		return
	}

	record := data
	if c.escaped {
		record = []byte(payload + "\n")
	}
	if _, err := c.out.Write(record); err != nil {
		c.err = fmt.Errorf("write error: %w", err)
		return
	}
	if c.console != nil {
		c.console.Write(record)
	}
	c.bytes += int64(len(data))
	c.events++
}

func (c *captureSink) result() (int64, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes, c.events, c.err
}

func runCapture(outputPath string, escaped, showConsole bool) error {
	file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer file.Close()

	sink := &captureSink{out: file, escaped: escaped}
	if showConsole {
		sink.console = os.Stdout
	}

	log := newLogger()
	session, config, err := openSession(log)
	if err != nil {
		return err
	}
	session.RegisterListener(serial.Target{
		Success: sink.write,
		Failure: func(string) {},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "Capturing data from %s (%s) to %s\n", config.Device, config, outputPath)
	if showConsole {
		fmt.Fprintf(os.Stderr, "Console display enabled\n")
	}
	fmt.Fprintf(os.Stderr, "Press Ctrl+C to stop\n\n")

	startTime := time.Now()
	<-ctx.Done()

	session.RegisterListener(serial.Target{})
	if err := session.Close(); err != nil {
		log.Warn().Err(err).Msg("close failed")
	}

	bytesWritten, events, err := sink.result()
	fmt.Fprintf(os.Stderr, "\nCapture complete: %d bytes in %d events written in %v\n",
		bytesWritten, events, time.Since(startTime).Round(time.Millisecond))
	return err
}
