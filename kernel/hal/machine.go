// Package hal models the simulated machine the kernel executes on: a single
// CPU, a flat physical memory region, an I/O port bus and the virtual
// devices attached to it.
package hal

import (
	"bytes"
	"io"
	"sort"

	"kernos/device"
	"kernos/device/console"
	"kernos/device/intctl"
	"kernos/device/kbd"
	"kernos/device/pit"
	"kernos/kernel/kfmt"
	"kernos/kernel/mem"
)

// InterruptSink receives the interrupts and exceptions accepted by the CPU.
// It is implemented by the kernel's interrupt controller bridge.
type InterruptSink interface {
	// DispatchInterrupt routes a vectored hardware interrupt.
	DispatchInterrupt(vector uint8)

	// DispatchException routes a CPU exception and its error code.
	DispatchException(vector uint8, code uint64)
}

// Machine aggregates the simulated hardware. All interrupt delivery is
// synchronous: a device raising a line runs the registered handler to
// completion before the raise returns, with further delivery disabled for
// the handler's duration.
type Machine struct {
	CPU *CPU
	Bus *Bus

	// RAM is the physical memory region managed by the page allocator.
	// Page addresses index into this slice.
	RAM []byte

	// The devices discovered by DetectHardware. They are nil until the
	// probe loop has run.
	Console  *console.Device
	PIC      *intctl.Device
	PIT      *pit.Device
	Keyboard *kbd.Device

	sink InterruptSink

	// activeDrivers tracks all successfully initialized device drivers.
	activeDrivers []device.Driver

	consoleOut io.Writer
	strBuf     bytes.Buffer
}

// NewMachine assembles a machine with ramSize bytes of physical memory. The
// device complement comes from the registered driver probes; DetectHardware
// must run before any device is used. Console output is forwarded to
// consoleOut.
func NewMachine(ramSize mem.Size, consoleOut io.Writer) *Machine {
	return &Machine{
		CPU:        &CPU{},
		Bus:        NewBus(),
		RAM:        make([]byte, ramSize),
		consoleOut: consoleOut,
	}
}

// TotalPages returns the number of physical pages backed by the machine's
// memory region.
func (m *Machine) TotalPages() uint32 {
	return uint32(mem.Size(len(m.RAM)) / mem.PageSize)
}

// DetectHardware probes the registered drivers in detection order and
// initializes the appropriate devices.
func (m *Machine) DetectHardware() {
	drivers := device.DriverList()
	sort.Sort(drivers)

	m.probe(drivers)
}

// probe executes the probe function for each driver, initializes the drivers
// that report hardware and invokes onDriverInit for each one. Init output is
// logged with a per-driver prefix.
func (m *Machine) probe(driverInfoList device.DriverInfoList) {
	for _, info := range driverInfoList {
		drv := info.Probe()
		if drv == nil {
			continue
		}

		w := &kfmt.PrefixWriter{Sink: kfmt.GetOutputSink()}

		m.strBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&m.strBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		w.Prefix = m.strBuf.Bytes()

		if err := drv.DriverInit(w); err != nil {
			kfmt.Fprintf(w, "init failed: %s\n", err.Message)
			continue
		}

		m.onDriverInit(drv)
		m.activeDrivers = append(m.activeDrivers, drv)
	}
}

// onDriverInit wires a successfully initialized driver into the machine:
// port-mapped devices attach to the bus, interrupt sources receive the
// machine as their notifier and the first console becomes the kfmt sink.
func (m *Machine) onDriverInit(drv device.Driver) {
	switch dev := drv.(type) {
	case *console.Device:
		if m.Console != nil {
			return
		}
		dev.SetSink(m.consoleOut)
		m.Console = dev
		kfmt.SetOutputSink(dev)
	case *intctl.Device:
		m.PIC = dev
		m.Bus.Attach(dev, intctl.MasterCommandPort, intctl.MasterDataPort, intctl.SlaveCommandPort, intctl.SlaveDataPort)
	case *pit.Device:
		dev.SetIRQNotifier(m)
		m.PIT = dev
		m.Bus.Attach(dev, pit.Channel0DataPort, pit.ModeCommandPort)
	case *kbd.Device:
		dev.SetIRQNotifier(m)
		m.Keyboard = dev
		m.Bus.Attach(dev, kbd.DataPort)
	}
}

// SetInterruptSink registers the consumer of accepted interrupts. It is
// called once by the interrupt controller bridge during its init.
func (m *Machine) SetInterruptSink(sink InterruptSink) {
	m.sink = sink
}

// RaiseIRQ implements device.IRQNotifier. The line is translated through the
// interrupt controller's mask and remap table; if the CPU currently accepts
// interrupts the handler runs synchronously with further delivery disabled
// for its duration (the controller does not support nested delivery).
func (m *Machine) RaiseIRQ(line uint8) {
	if m.sink == nil || m.CPU.Halted() {
		return
	}

	vector, ok := m.PIC.Route(line)
	if !ok || !m.CPU.InterruptsEnabled() {
		// Masked or delivery disabled; this edge-triggered model drops
		// the event rather than latching it.
		return
	}

	m.CPU.DisableInterrupts()
	m.sink.DispatchInterrupt(vector)
	if !m.CPU.Halted() {
		m.CPU.EnableInterrupts()
	}
}

// RaiseException delivers a CPU exception with the supplied error code to
// the interrupt sink. Exceptions bypass the interrupt controller mask.
func (m *Machine) RaiseException(vector uint8, code uint64) {
	if m.sink == nil || m.CPU.Halted() {
		return
	}

	m.CPU.DisableInterrupts()
	m.sink.DispatchException(vector, code)
	if !m.CPU.Halted() {
		m.CPU.EnableInterrupts()
	}
}

// Idle advances the interval timer by one output tick, modeling a CPU that
// waits for the next timer interrupt. It is used by spin-wait loops that
// would otherwise stall the simulated clock.
func (m *Machine) Idle() {
	m.PIT.AdvanceTicks(1)
}

// Halt stops the machine.
func (m *Machine) Halt() {
	m.CPU.Halt()
}
