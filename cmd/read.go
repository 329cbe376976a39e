/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	serial "github.com/allbin/go-serial-bridge"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read once from the serial device",
	Long: `Open the serial device, read whatever is buffered or arrives within the
read wait, print it and close the device.

Output is the escaped-hex form delivered to bridge clients, for example
"\x4f\x4b". Use --raw to write the bytes unchanged. Exits with status 2
when no data arrived in time.

Example usage:
  serial-bridge read --read-wait 1000
  serial-bridge read --raw > dump.bin`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetBool("raw")

		session, _, err := openSession(newLogger())
		if err != nil {
			return err
		}
		defer session.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		data, err := session.Read(ctx)
		if errors.Is(err, serial.ErrNoDataAvailable) {
			fmt.Fprintln(os.Stderr, "No data available")
			session.Close()
			os.Exit(2)
		}
		if err != nil {
			return err
		}

		if raw {
			_, err = os.Stdout.Write(data)
			return err
		}
		fmt.Println(serial.Encode(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(readCmd)

	readCmd.Flags().Bool("raw", false, "Write received bytes unchanged instead of escaped hex")
}
