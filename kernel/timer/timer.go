// Package timer implements the timer service: it programs the interval
// timer at a configurable frequency and exposes a monotonic tick counter
// plus a blocking sleep primitive. Each tick is forwarded to the scheduler
// hook, which drives preemption.
package timer

import (
	"kernos/device/pit"
	"kernos/kernel"
	"kernos/kernel/hal"
	"kernos/kernel/irq"
	"kernos/kernel/kfmt"
)

var errTimerBadFrequency = &kernel.Error{Module: "timer", Message: "frequency out of range"}

// Service owns the interval timer programming and the global tick counter.
type Service struct {
	machine *hal.Machine
	ctl     *irq.Controller

	frequencyHz uint32

	// ticks is the monotonic tick counter. It wraps modulo 2^64; Sleep
	// compares tick deltas with subtraction so it stays correct across
	// the wrap.
	ticks uint64

	// schedulerHook is invoked once per tick, inside the timer interrupt.
	schedulerHook func()
}

// NewService returns a timer service for the supplied machine and interrupt
// controller bridge.
func NewService(m *hal.Machine, ctl *irq.Controller) *Service {
	return &Service{machine: m, ctl: ctl}
}

// Init programs the interval timer to fire at frequencyHz and registers the
// tick handler on hardware line 0, unmasking it. The divisor written to the
// device is derived from the timer's fixed base clock.
func (s *Service) Init(frequencyHz uint32) *kernel.Error {
	if frequencyHz == 0 || frequencyHz > pit.BaseClockHz {
		return errTimerBadFrequency
	}

	divisor := uint32(pit.BaseClockHz) / frequencyHz
	if divisor > 0xffff {
		// The divisor latch is 16 bits wide; frequencies below
		// BaseClockHz/65536 (~19Hz) cannot be programmed.
		return errTimerBadFrequency
	}

	s.frequencyHz = frequencyHz

	bus := s.machine.Bus
	bus.Out(pit.ModeCommandPort, 0x36) // channel 0, lobyte/hibyte, rate generator
	bus.Out(pit.Channel0DataPort, uint8(divisor))
	bus.Out(pit.Channel0DataPort, uint8(divisor>>8))

	if err := s.ctl.HandleIRQ(irq.LineTimer, s.onTick); err != nil {
		return err
	}

	kfmt.Printf("[timer] ticking at %dHz (divisor %d)\n", frequencyHz, divisor)
	return nil
}

// Frequency returns the programmed tick frequency in Hz.
func (s *Service) Frequency() uint32 {
	return s.frequencyHz
}

// SetSchedulerHook registers the function forwarded one call per tick. It is
// invoked from interrupt context.
func (s *Service) SetSchedulerHook(hook func()) {
	s.schedulerHook = hook
}

// onTick services one timer interrupt.
func (s *Service) onTick(code uint64, regs *hal.Registers) {
	s.ticks++

	if s.schedulerHook != nil {
		s.schedulerHook()
	}

	// Once-per-second heartbeat diagnostic.
	if s.frequencyHz > 0 && s.ticks%uint64(s.frequencyHz) == 0 {
		kfmt.Printf("[timer] %d seconds since boot\n", s.ticks/uint64(s.frequencyHz))
	}
}

// Ticks returns the monotonic tick counter value.
func (s *Service) Ticks() uint64 {
	return s.ticks
}

// Sleep busy-waits until at least ms milliseconds worth of ticks have
// elapsed, idling the machine so the interval timer keeps counting. This is
// deliberately a spin-wait rather than a scheduler-cooperative sleep: the
// kernel has no blocking I/O model to park the caller on.
func (s *Service) Sleep(ms uint64) {
	if s.frequencyHz == 0 {
		return
	}

	start := s.ticks
	want := ms * uint64(s.frequencyHz) / 1000
	for s.ticks-start < want {
		if s.machine.CPU.Halted() {
			return
		}
		s.machine.Idle()
	}
}
