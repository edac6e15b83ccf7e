// Command kernos boots the kernel execution core on a simulated machine,
// drives the interval timer from the host wall clock and feeds raw keyboard
// bytes from the host terminal into the keyboard controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	tty "github.com/mattn/go-tty"

	"kernos/config"
	"kernos/device/pit"
	"kernos/kernel/hal"
	"kernos/kernel/kfmt"
	"kernos/kernel/kmain"
	"kernos/kernel/mem"
	"kernos/kernel/proc"
	"kernos/kernel/timer"
	"kernos/tracing"
)

const version = "0.1.0"

// escScanCode is the byte that stops the machine.
const escScanCode = 0x1b

func main() {
	var (
		configURL = flag.String("config", "", "URL or path of a YAML boot configuration")
		runFor    = flag.Duration("run", 0, "stop after this duration (0 runs until halted)")
		noInput   = flag.Bool("no-input", false, "do not attach the host terminal as keyboard source")
	)
	flag.Parse()

	if err := run(*configURL, *runFor, *noInput); err != nil {
		fmt.Fprintf(os.Stderr, "kernos: %v\n", err)
		os.Exit(1)
	}
}

func run(configURL string, runFor time.Duration, noInput bool) error {
	ctx := context.Background()

	cfg := config.DefaultConfig()
	if configURL != "" {
		loaded, err := config.Load(ctx, configURL)
		if err != nil {
			return err
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.Trace.Enabled {
		if err := tracing.Init("kernos", version, cfg.Trace.Output); err != nil {
			return err
		}
	}

	m := hal.NewMachine(mem.Size(cfg.Memory.TotalPages)*mem.PageSize, os.Stdout)
	k, kerr := kmain.Boot(cfg, m)
	if kerr != nil {
		return fmt.Errorf("boot failed in %s: %s", kerr.Module, kerr.Message)
	}

	// A couple of demo processes so the round robin has something to
	// rotate through. The entry points are synthetic addresses; nothing
	// fetches instructions from the simulated memory.
	if _, err := k.Sched.Create("init", 0x400000, 1); err != nil {
		return fmt.Errorf("create init: %s", err.Message)
	}
	if _, err := k.Sched.Create("worker", 0x401000, 0); err != nil {
		return fmt.Errorf("create worker: %s", err.Message)
	}

	keys := make(chan uint8, 16)
	if !noInput {
		t, err := tty.Open()
		if err != nil {
			return err
		}
		defer t.Close()

		go func() {
			for {
				r, err := t.ReadRune()
				if err != nil {
					return
				}
				keys <- uint8(r)
			}
		}()
	}

	k.SetKeyboardHandler(func(scanCode uint8) {
		kfmt.Printf("[kbd] scan code 0x%02x\n", scanCode)
		if scanCode == escScanCode {
			m.Halt()
		}
	})

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt)

	deadline := time.NewTimer(runFor)
	if runFor == 0 {
		deadline.Stop()
	}

	// Drive the interval timer from the host wall clock. All machine
	// mutation happens on this goroutine; the tty reader only feeds the
	// key channel.
	clock := time.NewTicker(10 * time.Millisecond)
	defer clock.Stop()

	last := time.Now()
	for !m.CPU.Halted() {
		select {
		case now := <-clock.C:
			cycles := uint64(now.Sub(last)) * pit.BaseClockHz / uint64(time.Second)
			last = now
			m.PIT.Advance(cycles)
		case scanCode := <-keys:
			m.Keyboard.Inject(scanCode)
		case <-interrupted:
			m.Halt()
		case <-deadline.C:
			m.Halt()
		}
	}

	printListing(k.Sched, k.Timer)
	return nil
}

// printListing dumps the final process table and tick count to the console.
func printListing(sched *proc.Scheduler, tmr *timer.Service) {
	kfmt.Printf("\n[kernos] %d ticks elapsed\n", tmr.Ticks())
	kfmt.Printf("%-4s %-16s %-12s %-8s %s\n", "ID", "NAME", "STATE", "PRIO", "CPU TIME")
	for _, info := range sched.List() {
		kfmt.Printf("%-4d %-16s %-12s %-8d %d\n", info.ID, info.Name, info.State, info.Priority, info.CPUTime)
	}
}
