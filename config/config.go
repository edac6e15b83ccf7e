// Package config holds the serialisable boot configuration. It can be
// populated from YAML via Load; the zero value is not useful, start from
// DefaultConfig.
package config

import (
	"context"
	"fmt"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

// Config is the boot configuration for the simulated machine and the kernel
// execution core.
type Config struct {
	Memory    MemoryConfig    `json:"memory" yaml:"memory"`
	Timer     TimerConfig     `json:"timer" yaml:"timer"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Trace     TraceConfig     `json:"trace" yaml:"trace"`
}

// MemoryConfig sizes the physical memory region.
type MemoryConfig struct {
	// TotalPages is the number of 4096-byte pages backing the machine.
	TotalPages uint32 `json:"totalPages" yaml:"totalPages"`

	// ReservedPages is the size of the low region reserved for the
	// kernel image, excluded from page allocation.
	ReservedPages uint32 `json:"reservedPages" yaml:"reservedPages"`
}

// TimerConfig programs the interval timer.
type TimerConfig struct {
	FrequencyHz uint32 `json:"frequencyHz" yaml:"frequencyHz"`
}

// SchedulerConfig parameterises the time-slice policy: a process's slice is
// baseSlice + priority*priorityWeight ticks.
type SchedulerConfig struct {
	BaseSlice      uint32 `json:"baseSlice" yaml:"baseSlice"`
	PriorityWeight uint32 `json:"priorityWeight" yaml:"priorityWeight"`
}

// TraceConfig controls span export. An empty Output writes spans to stdout;
// tracing stays disabled unless Enabled is set.
type TraceConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Output  string `json:"output" yaml:"output"`
}

// DefaultConfig returns a Config populated with the package defaults: a
// 16Mb machine with 64 pages reserved for the kernel image, a 100Hz tick
// and the 5+2p time-slice policy.
func DefaultConfig() *Config {
	return &Config{
		Memory:    MemoryConfig{TotalPages: 4096, ReservedPages: 64},
		Timer:     TimerConfig{FrequencyHz: 100},
		Scheduler: SchedulerConfig{BaseSlice: 5, PriorityWeight: 2},
	}
}

// Validate returns an error describing the first invalid setting, or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Memory.TotalPages == 0 {
		return fmt.Errorf("memory.totalPages must be > 0")
	}
	if c.Memory.ReservedPages >= c.Memory.TotalPages {
		return fmt.Errorf("memory.reservedPages must be < memory.totalPages")
	}
	if c.Timer.FrequencyHz < 19 || c.Timer.FrequencyHz > 1193182 {
		return fmt.Errorf("timer.frequencyHz must be within [19, 1193182]")
	}
	if c.Scheduler.BaseSlice == 0 {
		return fmt.Errorf("scheduler.baseSlice must be > 0")
	}
	return nil
}

// Load reads a YAML configuration from the supplied URL (any scheme the afs
// service understands, including plain file paths) on top of the defaults
// and validates the result.
func Load(ctx context.Context, URL string) (*Config, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %v: %w", URL, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %v: %w", URL, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
