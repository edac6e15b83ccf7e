// Package sync provides the critical-section primitive that guards the
// kernel's shared singletons (page bitmap, ready queue, process table).
package sync

import "kernos/kernel/hal"

// IRQGuard implements a critical section that masks interrupt delivery for
// its duration. On the single-core machine this is the only mutual exclusion
// the shared kernel state needs; a multi-core port would have to pair it
// with a real lock.
//
// Usage:
//
//	guard := sync.NewIRQGuard(cpu)
//	guard.Acquire()
//	defer guard.Release()
type IRQGuard struct {
	cpu        *hal.CPU
	wasEnabled bool
}

// NewIRQGuard returns a guard bound to the supplied CPU.
func NewIRQGuard(cpu *hal.CPU) *IRQGuard {
	return &IRQGuard{cpu: cpu}
}

// Acquire disables interrupt delivery, remembering whether it was enabled so
// nested sections restore the outer state correctly.
func (g *IRQGuard) Acquire() {
	g.wasEnabled = g.cpu.InterruptsEnabled()
	g.cpu.DisableInterrupts()
}

// Release restores the interrupt-enable state captured by Acquire.
func (g *IRQGuard) Release() {
	if g.wasEnabled {
		g.cpu.EnableInterrupts()
	}
}
