// Package kmain wires the kernel execution core together: page allocator,
// interrupt controller bridge, timer service and scheduler, in that order.
package kmain

import (
	"context"

	"github.com/google/uuid"

	"kernos/config"
	"kernos/device/kbd"
	"kernos/kernel"
	"kernos/kernel/hal"
	"kernos/kernel/irq"
	"kernos/kernel/kfmt"
	"kernos/kernel/mem/pmm/allocator"
	"kernos/kernel/proc"
	"kernos/kernel/timer"
	"kernos/tracing"
)

// Kernel aggregates the execution core subsystems. It replaces the implicit
// global singletons of a classic kernel with an explicitly constructed
// context so the single-writer invariant is visible in type signatures and
// the core can be exercised without booting real hardware.
type Kernel struct {
	BootID  string
	Machine *hal.Machine

	Alloc *allocator.BitmapAllocator
	IRQ   *irq.Controller
	Timer *timer.Service
	Sched *proc.Scheduler

	// keyHandler receives raw scan codes from the keyboard line. The
	// core only forwards bytes; translation belongs to the collaborator
	// that registered the handler.
	keyHandler func(scanCode uint8)
}

// Boot brings up the execution core on the supplied machine. Boot errors
// are returned to the embedding host; on real hardware they would halt the
// machine instead.
func Boot(cfg *config.Config, m *hal.Machine) (*Kernel, *kernel.Error) {
	k := &Kernel{
		BootID:  uuid.New().String(),
		Machine: m,
		Alloc:   &allocator.BitmapAllocator{},
	}

	ctx, span := tracing.StartSpan(context.Background(), "kernel.boot", "INTERNAL")
	span.WithAttributes(map[string]string{"boot.id": k.BootID})

	m.DetectHardware()
	kfmt.Printf("[kmain] boot id %s\n", k.BootID)

	if err := k.Alloc.Init(m.TotalPages(), cfg.Memory.ReservedPages); err != nil {
		tracing.EndSpan(span, err)
		return nil, err
	}

	k.IRQ = irq.NewController(m)
	if err := k.IRQ.Init(); err != nil {
		tracing.EndSpan(span, err)
		return nil, err
	}

	k.Timer = timer.NewService(m, k.IRQ)
	if err := k.Timer.Init(cfg.Timer.FrequencyHz); err != nil {
		tracing.EndSpan(span, err)
		return nil, err
	}

	k.Sched = proc.NewScheduler(m.CPU, k.Alloc, cfg.Scheduler.BaseSlice, cfg.Scheduler.PriorityWeight)
	k.Sched.Init()
	// Process lifecycle spans attach to the boot trace.
	k.Sched.SetSpanContext(ctx)
	k.Timer.SetSchedulerHook(k.Sched.Tick)

	if err := k.IRQ.HandleIRQ(irq.LineKeyboard, k.onKeyboard); err != nil {
		tracing.EndSpan(span, err)
		return nil, err
	}

	kfmt.Printf("[kmain] boot complete; %d pages free\n", k.Alloc.FreePages())
	tracing.EndSpan(span, nil)
	return k, nil
}

// SetKeyboardHandler registers the collaborator that consumes raw scan
// codes.
func (k *Kernel) SetKeyboardHandler(handler func(scanCode uint8)) {
	k.keyHandler = handler
}

// onKeyboard services the keyboard line: it reads the latched scan code off
// the data port and delegates it, returning normally. This is the one
// non-fatal hardware interrupt path besides the timer.
func (k *Kernel) onKeyboard(code uint64, regs *hal.Registers) {
	scanCode := k.Machine.Bus.In(kbd.DataPort)
	if k.keyHandler != nil {
		k.keyHandler(scanCode)
		return
	}
	kfmt.Printf("[kbd] scan code 0x%02x\n", scanCode)
}
