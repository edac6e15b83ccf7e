package proc

import (
	"kernos/kernel/hal"
	"kernos/kernel/mem"
)

// NameLen is the bounded length of a process name, including the
// terminating NUL.
const NameLen = 16

// State describes the lifecycle state of a process control block.
type State uint8

const (
	// StateUnused marks a free process table slot.
	StateUnused State = iota

	// StateCreated is the transient state between slot initialization
	// and the ready-queue insertion performed by Create.
	StateCreated

	// StateReady marks a process waiting on the ready queue.
	StateReady

	// StateRunning marks the process that currently owns the CPU. At
	// most one PCB is in this state at any time.
	StateRunning

	// StateBlocked is reserved for future I/O-wait integration. No
	// transition into it exists yet and nothing ever promotes a blocked
	// process back to ready.
	StateBlocked

	// StateTerminated marks a slot whose process has exited; the slot is
	// reusable and its id has been reset to the sentinel 0.
	StateTerminated
)

// String returns the state name used in process listings.
func (s State) String() string {
	switch s {
	case StateUnused:
		return "UNUSED"
	case StateCreated:
		return "CREATED"
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateBlocked:
		return "BLOCKED"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "INVALID"
	}
}

// PCB is the process control block: one schedulable unit of execution.
type PCB struct {
	// id is the unique, monotonically assigned process identifier. The
	// value 0 is reserved for the kernel process and serves as the
	// free-slot sentinel after termination.
	id uint32

	// name holds the NUL-terminated process name.
	name [NameLen]byte

	state State

	// regs is the saved register snapshot swapped with the CPU register
	// file on a context switch.
	regs hal.Registers

	// stackBase and stackSize describe the stack owned exclusively by
	// this PCB. The stack is returned to the page allocator exactly
	// once, at termination.
	stackBase uintptr
	stackSize mem.Size

	// priority buys slice length, never queue position.
	priority uint8

	// slice is the remaining time-slice tick count.
	slice uint32

	// cpuTime accumulates the ticks consumed by this process.
	cpuTime uint64

	// next threads this PCB into the ready queue. It is purely a
	// positional pointer, not an ownership relation, and is only
	// meaningful while the PCB is queued.
	next *PCB
}

// ID returns the process identifier.
func (p *PCB) ID() uint32 {
	return p.id
}

// Name returns the process name.
func (p *PCB) Name() string {
	for i, b := range p.name {
		if b == 0 {
			return string(p.name[:i])
		}
	}
	return string(p.name[:])
}

// State returns the process lifecycle state.
func (p *PCB) State() State {
	return p.state
}

// Priority returns the process priority level.
func (p *PCB) Priority() uint8 {
	return p.priority
}

// RemainingSlice returns the ticks left in the current time slice.
func (p *PCB) RemainingSlice() uint32 {
	return p.slice
}

// CPUTime returns the cumulative ticks consumed by the process.
func (p *PCB) CPUTime() uint64 {
	return p.cpuTime
}

// StackBase returns the base address of the stack owned by this PCB.
func (p *PCB) StackBase() uintptr {
	return p.stackBase
}

// Registers returns a copy of the saved register snapshot.
func (p *PCB) Registers() hal.Registers {
	return p.regs
}

func (p *PCB) setName(name string) {
	for i := range p.name {
		p.name[i] = 0
	}
	// Truncate to leave room for the terminating NUL.
	copy(p.name[:NameLen-1], name)
}
