package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.EqualValues(t, 4096, cfg.Memory.TotalPages)
	assert.EqualValues(t, 64, cfg.Memory.ReservedPages)
	assert.EqualValues(t, 100, cfg.Timer.FrequencyHz)
	assert.EqualValues(t, 5, cfg.Scheduler.BaseSlice)
	assert.EqualValues(t, 2, cfg.Scheduler.PriorityWeight)
	assert.False(t, cfg.Trace.Enabled)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		description string
		mutate      func(cfg *Config)
		expectErr   bool
	}{
		{
			description: "defaults",
			mutate:      func(cfg *Config) {},
		},
		{
			description: "zero total pages",
			mutate:      func(cfg *Config) { cfg.Memory.TotalPages = 0 },
			expectErr:   true,
		},
		{
			description: "reserved pages swallow the whole region",
			mutate:      func(cfg *Config) { cfg.Memory.ReservedPages = cfg.Memory.TotalPages },
			expectErr:   true,
		},
		{
			description: "frequency below the divisor range",
			mutate:      func(cfg *Config) { cfg.Timer.FrequencyHz = 18 },
			expectErr:   true,
		},
		{
			description: "frequency above the base clock",
			mutate:      func(cfg *Config) { cfg.Timer.FrequencyHz = 1193183 },
			expectErr:   true,
		},
		{
			description: "zero base slice",
			mutate:      func(cfg *Config) { cfg.Scheduler.BaseSlice = 0 },
			expectErr:   true,
		},
	}

	for _, testCase := range testCases {
		cfg := DefaultConfig()
		testCase.mutate(cfg)
		err := cfg.Validate()
		if testCase.expectErr {
			assert.Error(t, err, testCase.description)
			continue
		}
		assert.NoError(t, err, testCase.description)
	}
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	location := filepath.Join(t.TempDir(), "kernos.yaml")
	data := `
memory:
  totalPages: 1024
  reservedPages: 16
timer:
  frequencyHz: 1000
trace:
  enabled: true
  output: spans.json
`
	assert.NoError(t, os.WriteFile(location, []byte(data), 0o644))

	cfg, err := Load(ctx, location)
	assert.NoError(t, err)

	// Loaded values override the defaults; unset sections keep them.
	assert.EqualValues(t, 1024, cfg.Memory.TotalPages)
	assert.EqualValues(t, 16, cfg.Memory.ReservedPages)
	assert.EqualValues(t, 1000, cfg.Timer.FrequencyHz)
	assert.EqualValues(t, 5, cfg.Scheduler.BaseSlice)
	assert.True(t, cfg.Trace.Enabled)
	assert.Equal(t, "spans.json", cfg.Trace.Output)
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Load(ctx, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	malformed := filepath.Join(t.TempDir(), "malformed.yaml")
	assert.NoError(t, os.WriteFile(malformed, []byte("memory: ["), 0o644))
	_, err = Load(ctx, malformed)
	assert.Error(t, err)

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	assert.NoError(t, os.WriteFile(invalid, []byte("timer:\n  frequencyHz: 1\n"), 0o644))
	_, err = Load(ctx, invalid)
	assert.Error(t, err)
}
