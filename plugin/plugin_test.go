package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serial "github.com/allbin/go-serial-bridge"
	"github.com/allbin/go-serial-bridge/serialtest"
)

type outcome struct {
	ok      bool
	payload string
}

type callbacks struct {
	mu       sync.Mutex
	outcomes []outcome
}

func (c *callbacks) target() serial.Target {
	record := func(ok bool) serial.Callback {
		return func(payload string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.outcomes = append(c.outcomes, outcome{ok, payload})
		}
	}
	return serial.Target{Success: record(true), Failure: record(false)}
}

func (c *callbacks) all() []outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]outcome(nil), c.outcomes...)
}

func newPlugin(t *testing.T) (*Plugin, *serialtest.Device) {
	t.Helper()
	device := serialtest.New()
	session := serial.NewSession(serial.WithDriver(device.Driver()))
	return New(session), device
}

// exec runs one action and returns the single completion it produced
func exec(t *testing.T, p *Plugin, action, args string) outcome {
	t.Helper()
	cb := &callbacks{}
	p.Exec(context.Background(), action, json.RawMessage(args), cb.target())
	got := cb.all()
	require.Len(t, got, 1, "action %s must complete exactly once", action)
	return got[0]
}

func TestExec_RequestPermission(t *testing.T) {
	p, _ := newPlugin(t)
	assert.Equal(t, outcome{true, "{}"}, exec(t, p, ActionRequestPermission, `[{"opts":{}}]`))
}

func TestExec_OpenWriteReadClose(t *testing.T) {
	p, device := newPlugin(t)

	assert.Equal(t, outcome{true, "{}"},
		exec(t, p, ActionOpen, `[{"opts":{"device":"/dev/ttyACM0","baudRate":115200,"parity":2,"readWaitMillis":50}}]`))
	settings := device.Settings()
	assert.Equal(t, "/dev/ttyACM0", settings.Path)
	assert.Equal(t, 115200, settings.BaudRate)
	assert.Equal(t, serial.ParityEven, settings.Parity)

	assert.Equal(t, outcome{true, "{}"}, exec(t, p, ActionWrite, `[{"data":"AT\r"}]`))
	assert.Equal(t, []byte("AT\r"), device.Written())

	device.Buffer([]byte("OK"))
	assert.Equal(t, outcome{true, `"\x4f\x4b"`}, exec(t, p, ActionRead, `[]`))
	assert.Equal(t, outcome{false, "'No data available'"}, exec(t, p, ActionRead, `[]`))

	assert.Equal(t, outcome{true, "{}"}, exec(t, p, ActionClose, `[]`))
	assert.Equal(t, outcome{false, "'Port not open'"}, exec(t, p, ActionClose, `[]`))
}

func TestExec_OpenDefaults(t *testing.T) {
	p, device := newPlugin(t)

	assert.Equal(t, outcome{true, "{}"}, exec(t, p, ActionOpen, `[]`))

	settings := device.Settings()
	assert.Equal(t, serial.DefaultDevice, settings.Path)
	assert.Equal(t, 9600, settings.BaudRate)
	assert.Equal(t, serial.DataBits8, settings.DataBits)
}

func TestExec_OpenFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*serialtest.Device)
		args  string
		want  string
	}{
		{"invalid parity", nil, `[{"opts":{"parity":9}}]`, "'Invalid configuration'"},
		{"opts not a mapping", nil, `[{"opts":"fast"}]`, "'Invalid arguments'"},
		{"device refuses open", func(d *serialtest.Device) { d.Fail(serialtest.StepOpen, nil) }, `[{"opts":{}}]`, "'Could not open port'"},
		{"arm fails", func(d *serialtest.Device) { d.Fail(serialtest.StepArm, nil) }, `[{"opts":{}}]`, "'Could not register for data events'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, device := newPlugin(t)
			if tt.setup != nil {
				tt.setup(device)
			}
			assert.Equal(t, outcome{false, tt.want}, exec(t, p, ActionOpen, tt.args))
			assert.False(t, p.Session().IsOpen())
		})
	}
}

func TestExec_OpenTwice(t *testing.T) {
	p, _ := newPlugin(t)
	exec(t, p, ActionOpen, `[]`)
	assert.Equal(t, outcome{false, "'Port already open'"}, exec(t, p, ActionOpen, `[]`))
}

func TestExec_NotOpen(t *testing.T) {
	p, _ := newPlugin(t)

	for _, action := range []string{ActionWrite, ActionWriteHex, ActionRead, ActionClose} {
		assert.Equal(t, outcome{false, "'Port not open'"}, exec(t, p, action, `[{"data":"41"}]`), action)
	}
}

func TestExec_WriteHex(t *testing.T) {
	p, device := newPlugin(t)
	exec(t, p, ActionOpen, `[]`)

	assert.Equal(t, outcome{true, "{}"}, exec(t, p, ActionWriteHex, `[{"data":"41"}]`))
	assert.Equal(t, outcome{true, "{}"}, exec(t, p, ActionWriteHex, `[{"data":"4"}]`))
	assert.Equal(t, []byte("A"), device.Written())

	assert.Equal(t, outcome{false, "'Invalid hex data'"}, exec(t, p, ActionWriteHex, `[{"data":"xy"}]`))
}

func TestExec_WriteError(t *testing.T) {
	p, device := newPlugin(t)
	exec(t, p, ActionOpen, `[]`)
	device.FailWriteAfter(0, nil)

	assert.Equal(t, outcome{false, "'Error writing data'"}, exec(t, p, ActionWrite, `[{"data":"x"}]`))
}

func TestExec_WriteLatin1(t *testing.T) {
	p, device := newPlugin(t)
	exec(t, p, ActionOpen, `[]`)

	exec(t, p, ActionWrite, `[{"data":"é€"}]`)

	assert.Equal(t, []byte{0xe9, '?'}, device.Written())
}

func TestExec_ShortNames(t *testing.T) {
	p, device := newPlugin(t)

	assert.Equal(t, outcome{true, "{}"}, exec(t, p, "open", `[]`))
	assert.Equal(t, outcome{true, "{}"}, exec(t, p, "write", `[{"data":"a"}]`))
	assert.Equal(t, outcome{true, "{}"}, exec(t, p, "writeHex", `[{"data":"62"}]`))
	assert.Equal(t, []byte("ab"), device.Written())
	assert.Equal(t, outcome{true, "{}"}, exec(t, p, "close", `[]`))
}

func TestExec_UnknownAction(t *testing.T) {
	p, _ := newPlugin(t)
	assert.Equal(t, outcome{false, "'Unknown action'"}, exec(t, p, "flush", `[]`))
}

func TestExec_MalformedArguments(t *testing.T) {
	p, _ := newPlugin(t)
	assert.Equal(t, outcome{false, "'Invalid arguments'"}, exec(t, p, ActionWrite, `{"data":1}`))
	assert.Equal(t, outcome{false, "'Invalid arguments'"}, exec(t, p, ActionWrite, `[42]`))
}

func TestExec_RegisterReadCallback(t *testing.T) {
	p, device := newPlugin(t)
	listener := &callbacks{}

	p.Exec(context.Background(), ActionRegisterReadCallback, nil, listener.target())
	assert.Empty(t, listener.all(), "registration completes nothing by itself")

	exec(t, p, ActionOpen, `[]`)
	device.Inject([]byte{0x00, 0xff})
	device.Inject([]byte("z"))

	assert.Equal(t, []outcome{{true, `"\x00\xff"`}, {true, `"\x7a"`}}, listener.all())
}

func TestToLatin1(t *testing.T) {
	assert.Equal(t, []byte("plain"), ToLatin1("plain"))
	assert.Equal(t, []byte{0xc5, 0xe4, 0xf6, 0xff}, ToLatin1("Åäöÿ"))
	assert.Equal(t, []byte("??"), ToLatin1("€✓"))
	assert.Empty(t, ToLatin1(""))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "'Port not open'", Describe(serial.ErrPortNotOpen))
	assert.Equal(t, "'Invalid configuration'", Describe(serial.ErrInvalidBaudRate))
	assert.Equal(t, "'Error writing data'", Describe(fmt.Errorf("%w: io", serial.ErrWriteError)))
	assert.Equal(t, "'Cancelled'", Describe(context.Canceled))
	assert.Equal(t, "'its broken'", Describe(errors.New("it's broken")))
}

func TestNormalize(t *testing.T) {
	for short, full := range aliases {
		got, ok := Normalize(short)
		assert.True(t, ok)
		assert.Equal(t, full, got)
	}
	got, ok := Normalize(ActionRead)
	assert.True(t, ok)
	assert.Equal(t, ActionRead, got)

	_, ok = Normalize("")
	assert.False(t, ok)
}
