// Package console provides the text console sink consumed by all kernel
// diagnostics. The console supports a single operation, writing a string,
// and forwards it to the io.Writer it was constructed with.
package console

import (
	"io"

	"kernos/device"
	"kernos/kernel"
	"kernos/kernel/kfmt"
)

// Device is a write-only text console.
type Device struct {
	sink io.Writer
}

// New returns a console that forwards its output to sink.
func New(sink io.Writer) *Device {
	return &Device{sink: sink}
}

// SetSink redirects the console output to w. The hal layer calls it after a
// probe so the console constructed by probeForConsole reaches the host
// writer.
func (c *Device) SetSink(w io.Writer) {
	c.sink = w
}

// Write implements io.Writer so the console can serve as the kfmt output
// sink.
func (c *Device) Write(p []byte) (int, error) {
	if c.sink == nil {
		return len(p), nil
	}
	return c.sink.Write(p)
}

// WriteString writes s to the console.
func (c *Device) WriteString(s string) {
	c.Write([]byte(s))
}

// DriverName returns the name of the driver.
func (c *Device) DriverName() string {
	return "text-console"
}

// DriverVersion returns the driver version.
func (c *Device) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit initializes the device driver.
func (c *Device) DriverInit(w io.Writer) *kernel.Error {
	kfmt.Fprintf(w, "console attached\n")
	return nil
}

func probeForConsole() device.Driver {
	return New(nil)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForConsole,
	})
}
