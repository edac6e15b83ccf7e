// Package pit models channel 0 of the 8254 programmable interval timer. The
// timer is programmed with a command byte followed by a 16-bit divisor
// (low byte then high byte) and raises hardware line 0 every time the
// countdown reaches zero.
package pit

import (
	"io"

	"kernos/device"
	"kernos/kernel"
	"kernos/kernel/kfmt"
)

// I/O ports occupied by the timer.
const (
	Channel0DataPort uint16 = 0x40
	ModeCommandPort  uint16 = 0x43
)

// BaseClockHz is the fixed input clock frequency the divisor divides.
const BaseClockHz = 1193182

// TimerLine is the hardware interrupt line wired to channel 0.
const TimerLine = uint8(0)

// Device models the interval timer.
type Device struct {
	irq device.IRQNotifier

	command uint8
	reload  uint16

	// expectLow is true when the next data-port write is the low divisor
	// byte of the lobyte/hibyte access sequence.
	expectLow bool
	lowByte   uint8

	// counter holds the remaining input-clock cycles until the next
	// output tick.
	counter uint32
	running bool
}

// New returns a stopped interval timer that raises its ticks on irq.
func New(irq device.IRQNotifier) *Device {
	return &Device{irq: irq, expectLow: true}
}

// SetIRQNotifier wires the notifier the timer raises its output ticks on.
// The hal layer calls it after a probe, before the timer is programmed.
func (d *Device) SetIRQNotifier(irq device.IRQNotifier) {
	d.irq = irq
}

// In implements device.PortHandler. The countdown latch is not modeled; data
// reads return the low byte of the configured reload value.
func (d *Device) In(port uint16) uint8 {
	if port == Channel0DataPort {
		return uint8(d.reload)
	}
	return 0
}

// Out implements device.PortHandler.
func (d *Device) Out(port uint16, val uint8) {
	switch port {
	case ModeCommandPort:
		d.command = val
		d.expectLow = true
	case Channel0DataPort:
		if d.expectLow {
			d.lowByte = val
			d.expectLow = false
			return
		}
		d.reload = uint16(val)<<8 | uint16(d.lowByte)
		d.expectLow = true
		d.counter = d.reloadCycles()
		d.running = true
	}
}

// reloadCycles returns the countdown period in input-clock cycles. A reload
// value of zero means the maximum period (65536) per 8254 convention.
func (d *Device) reloadCycles() uint32 {
	if d.reload == 0 {
		return 0x10000
	}
	return uint32(d.reload)
}

// Advance moves the timer forward by the given number of input-clock cycles,
// raising the timer line once per elapsed countdown period. Each raise is
// delivered synchronously before the countdown continues.
func (d *Device) Advance(cycles uint64) {
	if !d.running {
		return
	}

	for cycles > 0 {
		if cycles < uint64(d.counter) {
			d.counter -= uint32(cycles)
			return
		}

		cycles -= uint64(d.counter)
		d.counter = d.reloadCycles()
		d.irq.RaiseIRQ(TimerLine)
	}
}

// AdvanceTicks moves the timer forward by n whole output ticks.
func (d *Device) AdvanceTicks(n uint64) {
	for ; n > 0 && d.running; n-- {
		d.Advance(uint64(d.counter))
	}
}

// Reload returns the configured divisor. It is used by tests to verify the
// programming sequence.
func (d *Device) Reload() uint16 {
	return d.reload
}

// Running reports whether the timer has been programmed and is counting.
func (d *Device) Running() bool {
	return d.running
}

// DriverName returns the name of the driver.
func (d *Device) DriverName() string {
	return "8254-PIT"
}

// DriverVersion returns the driver version.
func (d *Device) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit initializes the device driver.
func (d *Device) DriverInit(w io.Writer) *kernel.Error {
	d.running = false
	d.expectLow = true
	kfmt.Fprintf(w, "base clock %dHz\n", uint64(BaseClockHz))
	return nil
}

func probeForIntervalTimer() device.Driver {
	return New(nil)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderNormal,
		Probe: probeForIntervalTimer,
	})
}
