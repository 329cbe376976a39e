/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/allbin/go-serial-bridge/plugin"
)

// bridgeCmd represents the bridge command
var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Serve the serial plugin actions over stdin/stdout",
	Long: `Serve the serial plugin over standard input and output, one JSON
document per line.

Requests name an action and carry the plugin argument array:
  {"id":1,"action":"openSerial","args":[{"opts":{"device":"/dev/ttyUSB0","baudRate":9600}}]}
  {"id":2,"action":"writeSerial","args":[{"data":"AT\r"}]}
  {"id":3,"action":"readSerial"}
  {"id":4,"action":"registerReadCallback"}
  {"id":5,"action":"closeSerial"}

Every request except registerReadCallback gets exactly one reply:
  {"id":2,"ok":true,"payload":"{}"}
  {"id":3,"ok":false,"payload":"'No data available'"}

Unsolicited data is sent with the id of the registerReadCallback request
and "keep":true. Port settings given as flags are ignored here: the host
passes them with openSerial. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		session, err := newSession(log)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info().Msg("bridge ready")
		err = plugin.New(session, plugin.WithLogger(log)).Serve(ctx, os.Stdin, os.Stdout)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
}
