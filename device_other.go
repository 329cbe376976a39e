//go:build !linux

package serial

// DefaultDriver is the driver used by sessions that do not name one
var DefaultDriver Driver = PortDriver

var drivers = map[string]Driver{
	"port": PortDriver,
}
