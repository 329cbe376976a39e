// Package serial bridges a host application to a serial (UART) device.
//
// A Session owns at most one open device. It offers buffered writes, a
// bounded read and a single listener for data that arrives while nobody is
// reading. Payloads cross the bridge as escaped hex text, "\x41\x42" for
// the bytes "AB", so arbitrary binary survives a text-only channel.
//
// # Basic Usage
//
// Open a port with the defaults (9600 8N1, 200ms read wait):
//
//	config, err := serial.NewConfig("/dev/ttyUSB0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	session := serial.NewSession()
//	if err := session.Open(config); err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	err = session.Write([]byte("AT\r"))
//	data, err := session.Read(ctx) // ErrNoDataAvailable after the read wait
//
// # Configuration Options
//
// Use functional options, or ParseOptions for a host-supplied mapping whose
// enum fields carry the numeric codes used on the wire:
//
//	config, err := serial.NewConfig("/dev/ttyUSB0",
//	    serial.WithBaudRate(115200),
//	    serial.WithParity(serial.ParityEven),
//	    serial.WithReadWait(time.Second),
//	)
//
//	config, err = serial.ParseOptions(map[string]any{
//	    "device": "/dev/ttyUSB0", "baudRate": 115200, "parity": 2,
//	})
//
// # Unsolicited Data
//
// Register a Target to receive every chunk the device signals while no Read
// is waiting. A waiting Read always gets the data first.
//
//	session.RegisterListener(serial.Target{
//	    Success: func(payload string) { fmt.Println(payload) },
//	    Failure: func(string) {},
//	})
//
// # Drivers
//
// On Linux the default driver talks termios directly and watches the
// descriptor with poll. The "port" driver uses go.bug.st/serial and is the
// default elsewhere. Select one by name with LookupDriver.
//
// The plugin package exposes a Session through named actions with
// success/failure callbacks, and a JSON lines bridge built on them.
package serial
