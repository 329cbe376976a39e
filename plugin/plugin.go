// Package plugin exposes a serial.Session through the callback-style
// operation table used by hybrid app hosts: every action completes by
// invoking exactly one of the caller's success or failure callbacks with a
// text payload.
package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"
	"golang.org/x/text/encoding/charmap"

	serial "github.com/allbin/go-serial-bridge"
)

// Action names as sent by the host
const (
	ActionRequestPermission    = "requestPermission"
	ActionOpen                 = "openSerial"
	ActionWrite                = "writeSerial"
	ActionWriteHex             = "writeSerialHex"
	ActionRead                 = "readSerial"
	ActionClose                = "closeSerial"
	ActionRegisterReadCallback = "registerReadCallback"
)

// EmptyResult is the success payload of actions that return nothing
const EmptyResult = "{}"

var aliases = map[string]string{
	"open":             ActionOpen,
	"write":            ActionWrite,
	"writeHex":         ActionWriteHex,
	"read":             ActionRead,
	"close":            ActionClose,
	"registerListener": ActionRegisterReadCallback,
}

var (
	ErrUnknownAction    = errors.New("unknown action")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Normalize maps a short action name to its full name. It reports false for
// names that are not actions.
func Normalize(action string) (string, bool) {
	if full, ok := aliases[action]; ok {
		return full, true
	}
	switch action {
	case ActionRequestPermission, ActionOpen, ActionWrite, ActionWriteHex,
		ActionRead, ActionClose, ActionRegisterReadCallback:
		return action, true
	}
	return "", false
}

// Plugin is the operation table over a single session
type Plugin struct {
	session *serial.Session
	log     zerolog.Logger
}

// Option configures a Plugin
type Option func(*Plugin)

// WithLogger sets the logger used for action tracing
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Plugin) {
		p.log = logger
	}
}

// New returns a plugin driving session
func New(session *serial.Session, opts ...Option) *Plugin {
	p := &Plugin{
		session: session,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Session returns the underlying session
func (p *Plugin) Session() *serial.Session {
	return p.session
}

// RequestPermission always succeeds. Access control is left to the OS.
func (p *Plugin) RequestPermission() string {
	return EmptyResult
}

// Open parses an options mapping and opens the port
func (p *Plugin) Open(options map[string]any) error {
	config, err := serial.ParseOptions(options)
	if err != nil {
		return err
	}
	return p.session.Open(config)
}

// Write sends text as ISO-8859-1. Characters outside Latin-1 are sent
// as '?'.
func (p *Plugin) Write(text string) error {
	if !p.session.IsOpen() {
		return serial.ErrPortNotOpen
	}
	return p.session.Write(ToLatin1(text))
}

// WriteHex sends the bytes described by a hex digit string
func (p *Plugin) WriteHex(hexStr string) error {
	return p.session.WriteHex(hexStr)
}

// Read returns buffered or newly arrived input, escaped for transport
func (p *Plugin) Read(ctx context.Context) (string, error) {
	data, err := p.session.Read(ctx)
	if err != nil {
		return "", err
	}
	return serial.Encode(data), nil
}

// Close closes the port
func (p *Plugin) Close() error {
	return p.session.Close()
}

// RegisterReadCallback makes target the receiver of unsolicited input
func (p *Plugin) RegisterReadCallback(target serial.Target) {
	p.session.RegisterListener(target)
}

// ToLatin1 encodes text as ISO-8859-1, replacing characters that have no
// Latin-1 form with '?'
func ToLatin1(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		b, ok := charmap.ISO8859_1.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

// Exec runs action with its JSON argument array and completes through
// target. Every action except registerReadCallback invokes exactly one of
// target's callbacks before Exec returns; registerReadCallback stores
// target for later events and invokes nothing.
func (p *Plugin) Exec(ctx context.Context, action string, args json.RawMessage, target serial.Target) {
	name, ok := Normalize(action)
	if !ok {
		p.log.Warn().Str("action", action).Msg("unknown action")
		fail(target, ErrUnknownAction)
		return
	}

	arg, err := firstArgument(args)
	if err != nil {
		p.log.Warn().Err(err).Str("action", name).Msg("bad arguments")
		fail(target, err)
		return
	}

	p.log.Debug().Str("action", name).Msg("exec")

	switch name {
	case ActionRequestPermission:
		succeed(target, p.RequestPermission())
	case ActionOpen:
		options := map[string]any{}
		if arg["opts"] != nil {
			options, err = cast.ToStringMapE(arg["opts"])
		}
		if err != nil {
			fail(target, fmt.Errorf("%w: opts: %v", ErrInvalidArguments, err))
			return
		}
		complete(target, p.Open(options))
	case ActionWrite:
		text, err := cast.ToStringE(arg["data"])
		if err != nil {
			fail(target, fmt.Errorf("%w: data: %v", ErrInvalidArguments, err))
			return
		}
		complete(target, p.Write(text))
	case ActionWriteHex:
		hexStr, err := cast.ToStringE(arg["data"])
		if err != nil {
			fail(target, fmt.Errorf("%w: data: %v", ErrInvalidArguments, err))
			return
		}
		complete(target, p.WriteHex(hexStr))
	case ActionRead:
		payload, err := p.Read(ctx)
		if err != nil {
			fail(target, err)
			return
		}
		succeed(target, payload)
	case ActionClose:
		complete(target, p.Close())
	case ActionRegisterReadCallback:
		p.RegisterReadCallback(target)
	}
}

// firstArgument decodes the argument array and returns its first element.
// A missing, null or empty array yields an empty argument.
func firstArgument(args json.RawMessage) (map[string]any, error) {
	if len(args) == 0 || string(args) == "null" {
		return map[string]any{}, nil
	}
	var list []any
	if err := json.Unmarshal(args, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if len(list) == 0 || list[0] == nil {
		return map[string]any{}, nil
	}
	arg, err := cast.ToStringMapE(list[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return arg, nil
}

func complete(target serial.Target, err error) {
	if err != nil {
		fail(target, err)
		return
	}
	succeed(target, EmptyResult)
}

func succeed(target serial.Target, payload string) {
	if target.Success != nil {
		target.Success(payload)
	}
}

func fail(target serial.Target, err error) {
	if target.Failure != nil {
		target.Failure(Describe(err))
	}
}

var descriptions = []struct {
	err  error
	desc string
}{
	{serial.ErrPortNotOpen, "Port not open"},
	{serial.ErrPortOpen, "Port already open"},
	{serial.ErrNoDataAvailable, "No data available"},
	{serial.ErrWriteError, "Error writing data"},
	{serial.ErrInvalidHex, "Invalid hex data"},
	{serial.ErrDeviceUnavailable, "Device not available"},
	{serial.ErrDeviceLost, "Device stopped receiving"},
	{serial.ErrInvalidConfig, "Invalid configuration"},
	{serial.ErrNotificationArmFailed, "Could not register for data events"},
	{serial.ErrOpenFailed, "Could not open port"},
	{ErrUnknownAction, "Unknown action"},
	{ErrInvalidArguments, "Invalid arguments"},
	{context.Canceled, "Cancelled"},
	{context.DeadlineExceeded, "Cancelled"},
}

// Describe renders err as a failure payload: a short description in
// single quotes.
func Describe(err error) string {
	desc := err.Error()
	for _, d := range descriptions {
		if errors.Is(err, d.err) {
			desc = d.desc
			break
		}
	}
	return "'" + strings.ReplaceAll(desc, "'", "") + "'"
}
