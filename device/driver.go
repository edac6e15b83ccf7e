// Package device defines the interfaces implemented by the virtual hardware
// attached to the simulated machine.
package device

import (
	"io"

	"kernos/kernel"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprintf.
	DriverInit(io.Writer) *kernel.Error
}

// ProbeFn is a function that scans for the presence of a particular
// piece of hardware and returns a driver for it.
type ProbeFn func() Driver

// DetectOrder specifies the order with which drivers get probed relative
// to the other registered drivers.
type DetectOrder int

const (
	// DetectOrderEarly drivers are probed before anything else so the
	// output facilities they provide are available to later probes.
	DetectOrderEarly DetectOrder = -128

	// DetectOrderIntCtl drivers are probed after the early set but before
	// any device that raises hardware interrupt lines.
	DetectOrderIntCtl DetectOrder = -64

	// DetectOrderNormal is the default detection order.
	DetectOrderNormal DetectOrder = 0

	// DetectOrderLast drivers are probed after all other drivers.
	DetectOrderLast DetectOrder = 127
)

// DriverInfo describes a driver to the hal package.
type DriverInfo struct {
	// Order specifies when the driver's probe function runs relative to
	// the other registered drivers.
	Order DetectOrder

	// Probe checks for the presence of the hardware the driver manages
	// and returns a Driver for it, or nil when absent.
	Probe ProbeFn
}

// DriverInfoList is a list of registered drivers that can be sorted by
// detection order.
type DriverInfoList []*DriverInfo

// Len returns the number of entries in the list.
func (l DriverInfoList) Len() int { return len(l) }

// Less compares two list entries by detection order.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }

// Swap exchanges two list entries.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

var registeredDrivers DriverInfoList

// RegisterDriver adds the supplied driver info to the list of registered
// drivers. Device packages call it from their init functions.
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns the list of registered drivers.
func DriverList() DriverInfoList {
	return registeredDrivers
}

// PortHandler is implemented by devices that respond to 8-bit I/O port
// traffic routed through the machine bus.
type PortHandler interface {
	// In reads one byte from the given port.
	In(port uint16) uint8

	// Out writes one byte to the given port.
	Out(port uint16, val uint8)
}

// IRQNotifier is used by devices to raise a hardware interrupt line on the
// machine that hosts them.
type IRQNotifier interface {
	RaiseIRQ(line uint8)
}
