// Package proc implements the process manager and the round-robin scheduler
// with priority-weighted time slices: priority buys a longer turn, never an
// earlier one. Among ready processes the order is strict FIFO by enqueue
// order.
package proc

import (
	"context"

	"kernos/kernel"
	"kernos/kernel/hal"
	"kernos/kernel/kfmt"
	"kernos/kernel/mem"
	"kernos/kernel/mem/pmm"
	"kernos/kernel/mem/pmm/allocator"
	"kernos/kernel/sync"
	"kernos/tracing"
)

const (
	// MaxProcs is the fixed size of the process table. Slot 0 is
	// permanently reserved for the kernel process.
	MaxProcs = 32

	// MaxPriority bounds the priority range [0, MaxPriority].
	MaxPriority = 7
)

// Default time-slice policy parameters, in ticks.
const (
	DefaultBaseSlice      = 5
	DefaultPriorityWeight = 2
)

var (
	errProcTableFull = &kernel.Error{Module: "proc", Message: "process table is full"}
	errProcNotFound  = &kernel.Error{Module: "proc", Message: "no process with that id"}
	errProcKernel    = &kernel.Error{Module: "proc", Message: "the kernel process cannot be terminated"}
)

// ProcessInfo is the read-only process listing entry returned by List.
type ProcessInfo struct {
	ID       uint32
	Name     string
	State    State
	Priority uint8
	CPUTime  uint64
}

// Scheduler owns the process table and the ready queue. All mutating entry
// points assume a single active writer; the ones callable outside interrupt
// context (Create, Terminate) guard themselves with an interrupt-disable
// critical section, while Tick and the Switch it triggers already run with
// delivery disabled inside the timer interrupt.
type Scheduler struct {
	cpu   *hal.CPU
	alloc *allocator.BitmapAllocator
	guard *sync.IRQGuard

	// spanCtx is the parent context for the spans emitted by Create and
	// Terminate, so process lifecycle spans attach to the boot trace.
	spanCtx context.Context

	baseSlice      uint32
	priorityWeight uint32

	table   [MaxProcs]PCB
	current *PCB

	// FIFO ready queue, threaded through PCB.next.
	readyHead *PCB
	readyTail *PCB

	// nextID is the shared id counter; ids are assigned sequentially and
	// never reused while a live reference could be pending.
	nextID uint32

	// switchCount tracks switch decisions, including those that keep the
	// current process because the ready queue was empty.
	switchCount uint64
}

// NewScheduler returns a scheduler that draws process stacks from alloc and
// derives time slices as baseSlice + priority*priorityWeight.
func NewScheduler(cpu *hal.CPU, alloc *allocator.BitmapAllocator, baseSlice, priorityWeight uint32) *Scheduler {
	if baseSlice == 0 {
		baseSlice = DefaultBaseSlice
	}
	return &Scheduler{
		cpu:            cpu,
		alloc:          alloc,
		guard:          sync.NewIRQGuard(cpu),
		spanCtx:        context.Background(),
		baseSlice:      baseSlice,
		priorityWeight: priorityWeight,
	}
}

// SetSpanContext sets the parent context for the spans emitted by Create and
// Terminate. Boot passes its own span context here.
func (s *Scheduler) SetSpanContext(ctx context.Context) {
	if ctx != nil {
		s.spanCtx = ctx
	}
}

// sliceFor derives the time slice for a priority level. Higher priority
// buys more CPU time per turn, monotonically.
func (s *Scheduler) sliceFor(priority uint8) uint32 {
	return s.baseSlice + uint32(priority)*s.priorityWeight
}

// Init clears the process table and installs the kernel process as PCB id 0
// in the RUNNING state. The kernel process is the implicit current process
// before any user process exists and never waits on the ready queue.
func (s *Scheduler) Init() {
	for i := range s.table {
		s.table[i] = PCB{}
	}

	k := &s.table[0]
	k.setName("kernel")
	k.state = StateRunning
	k.priority = 0
	k.slice = s.sliceFor(0)
	k.regs.RFlags = hal.FlagIF

	s.current = k
	s.readyHead, s.readyTail = nil, nil
	s.nextID = 1
	s.switchCount = 0

	kfmt.Printf("[proc] process table ready (%d slots)\n", MaxProcs)
}

// Create builds a new process and enqueues it on the ready queue. It
// returns the assigned id, or 0 together with an error when no table slot
// is free or the page allocator cannot provide a stack. A failed creation
// releases all partially-built state.
func (s *Scheduler) Create(name string, entryPoint uintptr, priority uint8) (uint32, *kernel.Error) {
	s.guard.Acquire()
	defer s.guard.Release()

	var pcb *PCB
	for i := 1; i < MaxProcs; i++ {
		if s.table[i].state == StateUnused || s.table[i].state == StateTerminated {
			pcb = &s.table[i]
			break
		}
	}
	if pcb == nil {
		return 0, errProcTableFull
	}

	if priority > MaxPriority {
		priority = MaxPriority
	}

	// Allocate the stack before touching the slot so a failed creation
	// leaves the table unchanged.
	frame, err := s.alloc.AllocFrame()
	if err != nil {
		return 0, err
	}

	*pcb = PCB{}
	pcb.id = s.nextID
	s.nextID++
	pcb.setName(name)
	pcb.priority = priority
	pcb.slice = s.sliceFor(priority)
	pcb.stackBase = frame.Address()
	pcb.stackSize = mem.PageSize

	stackTop := uint64(pcb.stackBase) + uint64(pcb.stackSize)
	pcb.regs = hal.Registers{
		RIP:    uint64(entryPoint),
		RSP:    stackTop,
		RBP:    stackTop,
		RFlags: hal.FlagIF,
	}

	pcb.state = StateCreated
	s.enqueueReady(pcb)

	_, span := tracing.StartSpan(s.spanCtx, "proc.create", "INTERNAL")
	span.WithAttributes(map[string]string{"proc.name": pcb.Name()})
	tracing.EndSpan(span, nil)

	kfmt.Printf("[proc] created %s (id %d, priority %d, slice %d)\n", pcb.Name(), pcb.id, pcb.priority, pcb.slice)
	return pcb.id, nil
}

// enqueueReady appends pcb to the tail of the ready queue and marks it
// READY. Terminated PCBs are never enqueued.
func (s *Scheduler) enqueueReady(pcb *PCB) {
	if pcb.state == StateTerminated {
		return
	}

	pcb.state = StateReady
	pcb.next = nil
	if s.readyTail == nil {
		s.readyHead, s.readyTail = pcb, pcb
		return
	}
	s.readyTail.next = pcb
	s.readyTail = pcb
}

// dequeueReady pops the head of the ready queue, or nil when it is empty.
func (s *Scheduler) dequeueReady() *PCB {
	pcb := s.readyHead
	if pcb == nil {
		return nil
	}

	s.readyHead = pcb.next
	if s.readyHead == nil {
		s.readyTail = nil
	}
	pcb.next = nil
	return pcb
}

// unlinkReady removes pcb from the ready queue if it is queued.
func (s *Scheduler) unlinkReady(pcb *PCB) {
	var prev *PCB
	for cur := s.readyHead; cur != nil; prev, cur = cur, cur.next {
		if cur != pcb {
			continue
		}

		if prev == nil {
			s.readyHead = cur.next
		} else {
			prev.next = cur.next
		}
		if s.readyTail == cur {
			s.readyTail = prev
		}
		cur.next = nil
		return
	}
}

// Switch performs one scheduling decision. A RUNNING current process is
// demoted to READY (and, unless it is the kernel process, re-enqueued at the
// tail); the next ready PCB is promoted to RUNNING and its register snapshot
// is swapped with the CPU register file. When the ready queue is empty the
// current process keeps the CPU; the scheduler never switches to nothing.
func (s *Scheduler) Switch() {
	old := s.current
	if old != nil && old.state == StateRunning {
		old.regs = s.cpu.Regs
		old.state = StateReady
		if old.id != 0 {
			// The kernel process runs whenever the queue drains; it
			// never waits in line.
			s.enqueueReady(old)
		}
	}

	next := s.dequeueReady()
	if next == nil {
		next = old
		if next == nil {
			// The current process terminated and nothing is ready:
			// fall back to the kernel process.
			next = &s.table[0]
		}
	}

	next.state = StateRunning
	s.current = next
	s.cpu.Regs = next.regs
	s.switchCount++
}

// Tick charges one timer tick to the current process. When the time slice
// expires it is reset to the priority-derived value and Switch runs. This is
// the sole preemption trigger in the system.
func (s *Scheduler) Tick() {
	cur := s.current
	if cur == nil {
		return
	}

	cur.cpuTime++
	if cur.slice > 0 {
		cur.slice--
	}
	if cur.slice == 0 {
		cur.slice = s.sliceFor(cur.priority)
		s.Switch()
	}
}

// Terminate ends the process with the given id: its stack is returned to
// the page allocator exactly once, the state becomes TERMINATED and the id
// resets to the sentinel 0 so the slot can be reused. Terminating the
// current process immediately switches to a replacement. An unknown id is a
// safe no-op reported as an error.
func (s *Scheduler) Terminate(id uint32) *kernel.Error {
	if id == 0 {
		return errProcKernel
	}

	s.guard.Acquire()
	defer s.guard.Release()

	var pcb *PCB
	for i := 1; i < MaxProcs; i++ {
		if s.table[i].id == id && s.table[i].state != StateUnused && s.table[i].state != StateTerminated {
			pcb = &s.table[i]
			break
		}
	}
	if pcb == nil {
		return errProcNotFound
	}

	if err := s.alloc.FreeFrame(pmm.FrameFromAddress(pcb.stackBase)); err != nil {
		return err
	}

	s.unlinkReady(pcb)

	name := pcb.Name()
	pcb.state = StateTerminated
	pcb.id = 0
	pcb.stackBase = 0
	pcb.stackSize = 0

	_, span := tracing.StartSpan(s.spanCtx, "proc.terminate", "INTERNAL")
	span.WithAttributes(map[string]string{"proc.name": name})
	tracing.EndSpan(span, nil)

	kfmt.Printf("[proc] terminated %s (id %d)\n", name, id)

	if pcb == s.current {
		s.current = nil
		s.Switch()
	}
	return nil
}

// Current returns the process that currently owns the CPU.
func (s *Scheduler) Current() *PCB {
	return s.current
}

// List returns a snapshot of every live process table entry.
func (s *Scheduler) List() []ProcessInfo {
	var list []ProcessInfo
	for i := range s.table {
		p := &s.table[i]
		if p.state == StateUnused || p.state == StateTerminated {
			continue
		}
		list = append(list, ProcessInfo{
			ID:       p.id,
			Name:     p.Name(),
			State:    p.state,
			Priority: p.priority,
			CPUTime:  p.cpuTime,
		})
	}
	return list
}

// Switches returns the number of switch decisions taken so far.
func (s *Scheduler) Switches() uint64 {
	return s.switchCount
}
