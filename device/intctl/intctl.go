// Package intctl models the dual-chained 8259A interrupt controller pair
// that remaps the 16 hardware interrupt lines onto a configurable vector
// range and masks the lines not currently in use.
package intctl

import (
	"io"

	"kernos/device"
	"kernos/kernel"
	"kernos/kernel/kfmt"
)

// I/O ports occupied by the controller pair.
const (
	MasterCommandPort uint16 = 0x20
	MasterDataPort    uint16 = 0x21
	SlaveCommandPort  uint16 = 0xa0
	SlaveDataPort     uint16 = 0xa1
)

const (
	// icw1Init flags the start of the four-step initialization command
	// word sequence.
	icw1Init uint8 = 0x10

	// icw1NeedICW4 indicates that the sequence ends with ICW4.
	icw1NeedICW4 uint8 = 0x01

	// cascadeLine is the master line wired to the slave controller.
	cascadeLine = uint8(2)
)

// chip holds the state of one 8259A controller.
type chip struct {
	// imr is the interrupt mask register; a set bit masks the line.
	imr uint8

	// vectorBase is the vector that line 0 of this chip maps to.
	vectorBase uint8

	// icwStep tracks progress through the ICW1..ICW4 init sequence.
	// Zero means the chip is operational and data-port writes are OCW1
	// mask updates.
	icwStep uint8

	needICW4 bool
}

func (c *chip) writeCommand(val uint8) {
	if val&icw1Init != 0 {
		c.icwStep = 1
		c.needICW4 = val&icw1NeedICW4 != 0
		return
	}
	// OCW2/OCW3 (EOI et al) carry no state in this model.
}

func (c *chip) writeData(val uint8) {
	switch c.icwStep {
	case 1: // ICW2: vector base
		c.vectorBase = val & 0xf8
		c.icwStep = 2
	case 2: // ICW3: cascade wiring, fixed in this model
		c.icwStep = 3
		if !c.needICW4 {
			c.icwStep = 0
		}
	case 3: // ICW4: mode byte, ignored
		c.icwStep = 0
	default: // OCW1: mask update
		c.imr = val
	}
}

// Device models the master/slave controller pair.
type Device struct {
	master chip
	slave  chip
}

// New returns an interrupt controller pair with every line masked.
func New() *Device {
	return &Device{
		master: chip{imr: 0xff},
		slave:  chip{imr: 0xff},
	}
}

// In implements device.PortHandler. Reads from the data ports return the
// interrupt mask register of the selected chip.
func (d *Device) In(port uint16) uint8 {
	switch port {
	case MasterDataPort:
		return d.master.imr
	case SlaveDataPort:
		return d.slave.imr
	default:
		return 0
	}
}

// Out implements device.PortHandler.
func (d *Device) Out(port uint16, val uint8) {
	switch port {
	case MasterCommandPort:
		d.master.writeCommand(val)
	case SlaveCommandPort:
		d.slave.writeCommand(val)
	case MasterDataPort:
		d.master.writeData(val)
	case SlaveDataPort:
		d.slave.writeData(val)
	}
}

// Route translates a hardware line (0-15) into the vector it has been
// remapped to. It returns false when the line is out of range or masked, in
// which case the interrupt must not be delivered.
func (d *Device) Route(line uint8) (uint8, bool) {
	switch {
	case line < 8:
		if d.master.imr&(1<<line) != 0 {
			return 0, false
		}
		return d.master.vectorBase + line, true
	case line < 16:
		// Slave lines additionally require the cascade line on the
		// master to be unmasked.
		if d.master.imr&(1<<cascadeLine) != 0 || d.slave.imr&(1<<(line-8)) != 0 {
			return 0, false
		}
		return d.slave.vectorBase + line - 8, true
	default:
		return 0, false
	}
}

// VectorBases returns the vector that line 0 of each chip maps to. It is
// used by tests to verify the remapping sequence.
func (d *Device) VectorBases() (master uint8, slave uint8) {
	return d.master.vectorBase, d.slave.vectorBase
}

// DriverName returns the name of the driver.
func (d *Device) DriverName() string {
	return "8259A-PIC"
}

// DriverVersion returns the driver version.
func (d *Device) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit initializes the controller pair with all lines masked. The
// vector remapping is performed later by the interrupt bridge via the ICW
// sequence.
func (d *Device) DriverInit(w io.Writer) *kernel.Error {
	d.master = chip{imr: 0xff}
	d.slave = chip{imr: 0xff}
	kfmt.Fprintf(w, "all hardware lines masked\n")
	return nil
}

func probeForInterruptController() device.Driver {
	return New()
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderIntCtl,
		Probe: probeForInterruptController,
	})
}
