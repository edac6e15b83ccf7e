package kmain

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"kernos/config"
	"kernos/kernel/hal"
	"kernos/kernel/kfmt"
	"kernos/kernel/mem"
	"kernos/tracing"
)

func newBootedKernel(t *testing.T) (*hal.Machine, *Kernel, *bytes.Buffer) {
	t.Helper()
	t.Cleanup(func() { kfmt.SetOutputSink(nil) })

	cfg := &config.Config{
		Memory:    config.MemoryConfig{TotalPages: 128, ReservedPages: 8},
		Timer:     config.TimerConfig{FrequencyHz: 100},
		Scheduler: config.SchedulerConfig{BaseSlice: 5, PriorityWeight: 2},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}

	buf := &bytes.Buffer{}
	m := hal.NewMachine(mem.Size(cfg.Memory.TotalPages)*mem.PageSize, buf)
	k, kerr := Boot(cfg, m)
	if kerr != nil {
		t.Fatalf("unexpected boot error: %v", kerr)
	}
	return m, k, buf
}

func TestBoot(t *testing.T) {
	m, k, buf := newBootedKernel(t)

	if _, err := uuid.Parse(k.BootID); err != nil {
		t.Errorf("expected a parseable boot id; got %q", k.BootID)
	}
	if got := k.Alloc.FreePages(); got != 120 {
		t.Errorf("expected 120 free pages after boot; got %d", got)
	}
	if !m.CPU.InterruptsEnabled() {
		t.Error("expected interrupt delivery enabled after boot")
	}
	if !m.PIT.Running() {
		t.Error("expected the interval timer to be programmed")
	}
	if got := k.Sched.Current().ID(); got != 0 {
		t.Errorf("expected the kernel process to be current after boot; got process %d", got)
	}

	out := buf.String()
	for _, want := range []string{
		"8259A-PIC",
		"8254-PIT",
		"[irq] vector table installed",
		"[timer] ticking at 100Hz",
		"[proc] process table ready",
		"[kmain] boot complete",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected boot output to contain %q; got:\n%s", want, out)
		}
	}
}

func TestTimerDrivesScheduling(t *testing.T) {
	m, k, _ := newBootedKernel(t)

	if _, err := k.Sched.Create("alpha", 0x400000, 0); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if _, err := k.Sched.Create("beta", 0x401000, 0); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	// The kernel process owns a 5-tick slice at priority 0; its expiry
	// hands the CPU to alpha, the next expiry to beta.
	m.PIT.AdvanceTicks(5)
	if got := k.Sched.Current().Name(); got != "alpha" {
		t.Fatalf("expected alpha after the first slice expiry; got %q", got)
	}

	m.PIT.AdvanceTicks(5)
	if got := k.Sched.Current().Name(); got != "beta" {
		t.Fatalf("expected beta after the second slice expiry; got %q", got)
	}

	if got := k.Timer.Ticks(); got != 10 {
		t.Errorf("expected 10 elapsed ticks; got %d", got)
	}
}

func TestKeyboardHandlerReceivesScanCodes(t *testing.T) {
	m, k, _ := newBootedKernel(t)

	var received []uint8
	k.SetKeyboardHandler(func(scanCode uint8) {
		received = append(received, scanCode)
	})

	m.Keyboard.Inject(0x2a)
	m.Keyboard.Inject(0xaa)

	if len(received) != 2 || received[0] != 0x2a || received[1] != 0xaa {
		t.Fatalf("expected scan codes [2a aa]; got %x", received)
	}
}

func TestProcessSpansParentToBootTrace(t *testing.T) {
	location := filepath.Join(t.TempDir(), "spans.json")
	if err := tracing.Init("kernos-test", "0.0.1", location); err != nil {
		t.Fatalf("unexpected tracing init error: %v", err)
	}

	_, k, _ := newBootedKernel(t)
	if _, err := k.Sched.Create("alpha", 0x400000, 0); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	f, err := os.Open(location)
	if err != nil {
		t.Fatalf("unexpected error reading exported spans: %v", err)
	}
	defer f.Close()

	type spanRef struct {
		TraceID string
		SpanID  string
	}
	type spanStub struct {
		Name        string
		SpanContext spanRef
		Parent      spanRef
	}

	var boots, creates []spanStub
	dec := json.NewDecoder(f)
	for {
		var stub spanStub
		if err := dec.Decode(&stub); err != nil {
			break
		}
		switch stub.Name {
		case "kernel.boot":
			boots = append(boots, stub)
		case "proc.create":
			creates = append(creates, stub)
		}
	}

	if len(boots) == 0 || len(creates) == 0 {
		t.Fatalf("expected boot and create spans to be exported; got %d boots, %d creates", len(boots), len(creates))
	}

	const zeroSpanID = "0000000000000000"
	parented := false
	for _, create := range creates {
		if create.Parent.SpanID == zeroSpanID {
			t.Errorf("expected no root proc.create spans; got one in trace %s", create.SpanContext.TraceID)
		}
		for _, boot := range boots {
			if create.Parent.SpanID == boot.SpanContext.SpanID && create.SpanContext.TraceID == boot.SpanContext.TraceID {
				parented = true
			}
		}
	}
	if !parented {
		t.Fatal("expected proc.create spans to be children of the boot span")
	}
}

func TestKeyboardDefaultHandlerLogs(t *testing.T) {
	m, _, buf := newBootedKernel(t)

	m.Keyboard.Inject(0x2a)

	if !strings.Contains(buf.String(), "[kbd] scan code 0x2a") {
		t.Errorf("expected the default scan-code diagnostic; got:\n%s", buf.String())
	}
}
