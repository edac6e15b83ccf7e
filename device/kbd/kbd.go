// Package kbd models the keyboard controller: injected scan codes are
// latched on the data port and announced by raising hardware line 1. Scan
// code translation is the responsibility of an external collaborator; this
// device only delivers raw bytes.
package kbd

import (
	"io"

	"kernos/device"
	"kernos/kernel"
	"kernos/kernel/kfmt"
)

// DataPort is the I/O port where the latched scan code can be read.
const DataPort uint16 = 0x60

// KeyboardLine is the hardware interrupt line wired to the controller.
const KeyboardLine = uint8(1)

// Device models the keyboard controller.
type Device struct {
	irq   device.IRQNotifier
	latch uint8
}

// New returns a keyboard controller that raises key events on irq.
func New(irq device.IRQNotifier) *Device {
	return &Device{irq: irq}
}

// SetIRQNotifier wires the notifier that key events are raised on. The hal
// layer calls it after a probe.
func (d *Device) SetIRQNotifier(irq device.IRQNotifier) {
	d.irq = irq
}

// Inject latches a raw scan code and raises the keyboard line.
func (d *Device) Inject(scanCode uint8) {
	d.latch = scanCode
	d.irq.RaiseIRQ(KeyboardLine)
}

// In implements device.PortHandler.
func (d *Device) In(port uint16) uint8 {
	if port == DataPort {
		return d.latch
	}
	return 0
}

// Out implements device.PortHandler. The controller accepts no commands in
// this model.
func (d *Device) Out(port uint16, val uint8) {}

// DriverName returns the name of the driver.
func (d *Device) DriverName() string {
	return "i8042-kbd"
}

// DriverVersion returns the driver version.
func (d *Device) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit initializes the device driver.
func (d *Device) DriverInit(w io.Writer) *kernel.Error {
	d.latch = 0
	kfmt.Fprintf(w, "scan code source ready\n")
	return nil
}

func probeForKeyboard() device.Driver {
	return New(nil)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderNormal,
		Probe: probeForKeyboard,
	})
}
