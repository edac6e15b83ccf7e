package hal

import (
	"io"

	"kernos/kernel/kfmt"
)

// FlagIF is the interrupt-enable bit in the flags register.
const FlagIF = uint64(1 << 9)

// Registers contains a snapshot of the CPU register values. The same
// structure serves as the saved register state of a process control block;
// a context switch swaps it wholesale with the CPU register file.
type Registers struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64

	// The execution frame: instruction pointer, stack pointer and flags.
	RIP    uint64
	RSP    uint64
	RFlags uint64
}

// DumpTo outputs the register contents to w.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %016x RBX = %016x\n", r.RAX, r.RBX)
	kfmt.Fprintf(w, "RCX = %016x RDX = %016x\n", r.RCX, r.RDX)
	kfmt.Fprintf(w, "RSI = %016x RDI = %016x\n", r.RSI, r.RDI)
	kfmt.Fprintf(w, "RBP = %016x\n", r.RBP)
	kfmt.Fprintf(w, "RIP = %016x RSP = %016x\n", r.RIP, r.RSP)
	kfmt.Fprintf(w, "RFL = %016x\n", r.RFlags)
}

// CPU models the single execution core of the simulated machine: a register
// file, the interrupt-enable flag and a halted latch.
type CPU struct {
	Regs Registers

	halted bool
}

// EnableInterrupts enables interrupt handling.
func (c *CPU) EnableInterrupts() {
	c.Regs.RFlags |= FlagIF
}

// DisableInterrupts disables interrupt handling.
func (c *CPU) DisableInterrupts() {
	c.Regs.RFlags &^= FlagIF
}

// InterruptsEnabled reports whether the CPU accepts hardware interrupts.
func (c *CPU) InterruptsEnabled() bool {
	return c.Regs.RFlags&FlagIF != 0
}

// Halt stops instruction execution. A halted CPU never resumes; it models
// the infinite low-power wait loop entered after a fatal exception.
func (c *CPU) Halt() {
	c.halted = true
	c.DisableInterrupts()
}

// Halted reports whether the CPU has been halted.
func (c *CPU) Halted() bool {
	return c.halted
}
