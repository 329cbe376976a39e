/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	serial "github.com/allbin/go-serial-bridge"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "serial-bridge",
	Short: "Drive a serial device through the serial bridge session",
	Long: `serial-bridge opens a serial (UART) device and exposes it through the
same session the bridge library offers: buffered reads and writes, escaped-hex
payloads and a single listener for unsolicited data.

Port settings come from flags, SERIAL_BRIDGE_* environment variables or a
config file, in that order of precedence.

Example usage:
  serial-bridge send "AT" --device /dev/ttyUSB0 --newline
  serial-bridge read --device /dev/ttyACM0 --read-wait 1000
  serial-bridge listen --baud 115200
  serial-bridge connect --device /dev/ttyUSB0
  serial-bridge capture data.log --escaped
  serial-bridge bridge < requests.jsonl`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.serial-bridge.yaml)")
	flags.StringP("device", "d", serial.DefaultDevice, "Serial device path")
	flags.IntP("baud", "b", 9600, "Baud rate")
	flags.String("parity", "none", "Parity: none, odd, even, mark, space (or code 0-4)")
	flags.Int("data-bits", 8, "Data bits: 5, 6, 7 or 8")
	flags.String("stop-bits", "1", "Stop bits: 1, 2 or 1.5")
	flags.Int("read-wait", 200, "Milliseconds a read waits for data")
	flags.Bool("dtr", false, "Assert DTR after opening")
	flags.Bool("rts", false, "Assert RTS after opening")
	flags.String("driver", "default", "Device driver: default, termios (Linux only), port")
	flags.String("log-level", "warn", "Log level: trace, debug, info, warn, error")

	for key, flag := range map[string]string{
		"device":         "device",
		"baudRate":       "baud",
		"parity":         "parity",
		"dataBits":       "data-bits",
		"stopBits":       "stop-bits",
		"readWaitMillis": "read-wait",
		"dtr":            "dtr",
		"rts":            "rts",
		"driver":         "driver",
		"logLevel":       "log-level",
	} {
		viper.BindPFlag(key, flags.Lookup(flag))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName(".serial-bridge")
	}

	viper.SetEnvPrefix("SERIAL_BRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the console logger used by every command
func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(viper.GetString("logLevel"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// portOptions collects the port settings as the options mapping accepted by
// serial.ParseOptions
func portOptions() (map[string]any, error) {
	parity, err := parseParity(viper.GetString("parity"))
	if err != nil {
		return nil, err
	}
	stopBits, err := parseStopBits(viper.GetString("stopBits"))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"device":         viper.GetString("device"),
		"baudRate":       viper.GetInt("baudRate"),
		"parity":         int(parity),
		"dataBits":       viper.GetInt("dataBits"),
		"stopBits":       int(stopBits),
		"readWaitMillis": viper.GetInt("readWaitMillis"),
		"dtr":            viper.GetBool("dtr"),
		"rts":            viper.GetBool("rts"),
	}, nil
}

// portConfig validates the configured port settings
func portConfig() (serial.Config, error) {
	options, err := portOptions()
	if err != nil {
		return serial.Config{}, err
	}
	return serial.ParseOptions(options)
}

// newSession returns a closed session using the configured driver
func newSession(log zerolog.Logger) (*serial.Session, error) {
	driver, err := serial.LookupDriver(viper.GetString("driver"))
	if err != nil {
		return nil, err
	}
	return serial.NewSession(serial.WithDriver(driver), serial.WithLogger(log)), nil
}

// openSession opens a session with the configured settings
func openSession(log zerolog.Logger) (*serial.Session, serial.Config, error) {
	config, err := portConfig()
	if err != nil {
		return nil, config, err
	}
	session, err := newSession(log)
	if err != nil {
		return nil, config, err
	}
	if err := session.Open(config); err != nil {
		return nil, config, err
	}
	return session, config, nil
}

func parseParity(s string) (serial.Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "n":
		return serial.ParityNone, nil
	case "odd", "o":
		return serial.ParityOdd, nil
	case "even", "e":
		return serial.ParityEven, nil
	case "mark", "m":
		return serial.ParityMark, nil
	case "space", "s":
		return serial.ParitySpace, nil
	}
	code, err := cast.ToIntE(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", serial.ErrInvalidParity, s)
	}
	return serial.Parity(code), nil
}

func parseStopBits(s string) (serial.StopBits, error) {
	switch strings.TrimSpace(s) {
	case "", "1":
		return serial.StopBitsOne, nil
	case "2":
		return serial.StopBitsTwo, nil
	case "1.5", "3":
		return serial.StopBitsOneAndHalf, nil
	default:
		return 0, fmt.Errorf("%w: %q", serial.ErrInvalidStopBits, s)
	}
}
