// Package irq implements the interrupt controller bridge: a 256-entry
// vector table that maps CPU exceptions (vectors 0-31) and remapped hardware
// interrupt lines (vectors 32-47) to handler entry points.
package irq

import (
	"kernos/kernel"
	"kernos/kernel/hal"
	"kernos/kernel/kfmt"
)

const (
	// GateCount is the number of entries in the vector table.
	GateCount = 256

	// ExceptionCount is the number of CPU exception vectors.
	ExceptionCount = 32

	// HWIRQBase is the vector that hardware line 0 is remapped to so the
	// 16 hardware lines no longer collide with the exception range.
	HWIRQBase = 32

	// HWIRQCount is the number of hardware interrupt lines.
	HWIRQCount = 16

	// kernelCodeSelector is the code-segment selector installed on every
	// active gate.
	kernelCodeSelector = uint16(0x08)

	// gateFlagsPresent marks a gate as a present interrupt gate running
	// at kernel privilege. Unused gates carry flags 0 (not present).
	gateFlagsPresent = uint8(0x8e)
)

// Well-known hardware interrupt lines.
const (
	LineTimer    = uint8(0)
	LineKeyboard = uint8(1)
)

var errIRQBadLine = &kernel.Error{Module: "irq", Message: "hardware line out of range"}

// HandlerFn is invoked to service an interrupt or exception. The code
// argument carries the CPU-pushed error code for exceptions that have one
// and zero otherwise. Mutations to the supplied register snapshot are
// propagated back to the interrupted context.
type HandlerFn func(code uint64, regs *hal.Registers)

// gateEntry is one slot of the vector table.
type gateEntry struct {
	handler  HandlerFn
	selector uint16
	flags    uint8
}

func (g *gateEntry) present() bool {
	return g.flags&gateFlagsPresent != 0 && g.handler != nil
}

// exceptionNames maps exception vectors to human-readable diagnostics.
// Vectors without an entry report "Unknown Exception".
var exceptionNames = [ExceptionCount]string{
	0:  "Divide By Zero",
	1:  "Debug",
	2:  "Non-Maskable Interrupt",
	3:  "Breakpoint",
	4:  "Overflow",
	5:  "Bound Range Exceeded",
	6:  "Invalid Opcode",
	7:  "Device Not Available",
	8:  "Double Fault",
	9:  "Coprocessor Segment Overrun",
	10: "Invalid TSS",
	11: "Segment Not Present",
	12: "Stack-Segment Fault",
	13: "General Protection Fault",
	14: "Page Fault",
	16: "x87 Floating-Point Exception",
	17: "Alignment Check",
	18: "Machine Check",
	19: "SIMD Floating-Point Exception",
	20: "Virtualization Exception",
	21: "Control Protection Exception",
}

// ExceptionName returns the diagnostic name for an exception vector.
func ExceptionName(vector uint8) string {
	if vector < ExceptionCount && exceptionNames[vector] != "" {
		return exceptionNames[vector]
	}
	return "Unknown Exception"
}

// Controller owns the vector table and the hardware line handler
// registrations. Gates are written only during Init and never mutated
// thereafter; line handlers may be registered at any time via HandleIRQ.
type Controller struct {
	machine *hal.Machine
	gates   [GateCount]gateEntry

	// lineHandlers holds the externally registered callbacks the fixed
	// hardware gates delegate to.
	lineHandlers [HWIRQCount]HandlerFn
}

// NewController returns an interrupt controller bridge for the supplied
// machine.
func NewController(m *hal.Machine) *Controller {
	return &Controller{machine: m}
}

// Init installs the full vector table and brings up interrupt delivery:
// every vector is first zeroed, the 32 fatal exception gates and the 16
// hardware gates are installed, the dual-chained remapper is programmed so
// hardware lines land on vectors 32-47, all lines except the keyboard are
// masked, and interrupts are finally enabled.
func (c *Controller) Init() *kernel.Error {
	for i := 0; i < GateCount; i++ {
		c.setGate(uint8(i), nil, 0, 0)
	}

	for v := uint8(0); v < ExceptionCount; v++ {
		c.setGate(v, c.exceptionHandler(v), kernelCodeSelector, gateFlagsPresent)
	}

	for line := uint8(0); line < HWIRQCount; line++ {
		c.setGate(HWIRQBase+line, c.hwLineHandler(line), kernelCodeSelector, gateFlagsPresent)
	}

	c.remapHWLines()
	c.setMask(^(uint16(1) << LineKeyboard))

	c.machine.SetInterruptSink(c)
	c.machine.CPU.EnableInterrupts()

	kfmt.Printf("[irq] vector table installed; hardware lines remapped to %d-%d\n", HWIRQBase, HWIRQBase+HWIRQCount-1)
	return nil
}

// setGate writes one vector-table entry.
func (c *Controller) setGate(vector uint8, handler HandlerFn, selector uint16, flags uint8) {
	c.gates[vector] = gateEntry{handler: handler, selector: selector, flags: flags}
}

// remapHWLines programs the controller pair with the fixed four-step
// initialization-command-word sequence, moving the hardware lines away from
// the exception vector range.
func (c *Controller) remapHWLines() {
	bus := c.machine.Bus

	// ICW1: begin init, ICW4 needed.
	bus.Out(0x20, 0x11)
	bus.Out(0xa0, 0x11)
	// ICW2: vector offsets.
	bus.Out(0x21, HWIRQBase)
	bus.Out(0xa1, HWIRQBase+8)
	// ICW3: slave on master line 2.
	bus.Out(0x21, 0x04)
	bus.Out(0xa1, 0x02)
	// ICW4: 8086 mode.
	bus.Out(0x21, 0x01)
	bus.Out(0xa1, 0x01)
}

// setMask writes the full 16-line interrupt mask; a set bit masks the line.
func (c *Controller) setMask(mask uint16) {
	c.machine.Bus.Out(0x21, uint8(mask))
	c.machine.Bus.Out(0xa1, uint8(mask>>8))
}

// unmaskLine clears the mask bit for one hardware line.
func (c *Controller) unmaskLine(line uint8) {
	bus := c.machine.Bus
	if line < 8 {
		bus.Out(0x21, bus.In(0x21)&^(1<<line))
		return
	}
	// Slave lines also require the cascade line on the master.
	bus.Out(0x21, bus.In(0x21)&^(1<<2))
	bus.Out(0xa1, bus.In(0xa1)&^(1<<(line-8)))
}

// HandleIRQ registers handler as the callback for a hardware line and
// unmasks that line.
func (c *Controller) HandleIRQ(line uint8, handler HandlerFn) *kernel.Error {
	if line >= HWIRQCount {
		return errIRQBadLine
	}

	c.lineHandlers[line] = handler
	c.unmaskLine(line)
	return nil
}

// DispatchInterrupt implements hal.InterruptSink for vectored hardware
// interrupts.
func (c *Controller) DispatchInterrupt(vector uint8) {
	c.dispatch(vector, 0)
}

// DispatchException implements hal.InterruptSink for CPU exceptions.
func (c *Controller) DispatchException(vector uint8, code uint64) {
	c.dispatch(vector, code)
}

func (c *Controller) dispatch(vector uint8, code uint64) {
	gate := &c.gates[vector]
	if !gate.present() {
		kfmt.Printf("[irq] spurious interrupt on vector %d\n", vector)
		return
	}
	gate.handler(code, &c.machine.CPU.Regs)
}

// exceptionHandler builds the fatal handler installed on an exception
// vector: it prints the exception name, vector and error code together with
// a register dump, then halts the machine. There is no recovery path.
func (c *Controller) exceptionHandler(vector uint8) HandlerFn {
	return func(code uint64, regs *hal.Registers) {
		w := kfmt.GetOutputSink()
		kfmt.Fprintf(w, "\n%s (vector %d, error code 0x%x)\n", ExceptionName(vector), vector, code)
		regs.DumpTo(w)
		kfmt.Fprintf(w, "[irq] halting\n")
		c.machine.Halt()
	}
}

// hwLineHandler builds the fixed gate handler for a hardware line. It
// delegates to the externally registered callback and returns normally;
// lines with no callback only log a diagnostic.
func (c *Controller) hwLineHandler(line uint8) HandlerFn {
	return func(code uint64, regs *hal.Registers) {
		if handler := c.lineHandlers[line]; handler != nil {
			handler(code, regs)
			return
		}
		kfmt.Printf("[irq] unhandled hardware interrupt on line %d\n", line)
	}
}
