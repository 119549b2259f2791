// machine_config.go - YAML machine configuration for the IntuitionNX harness

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// MachineConfig describes the emulated machine for the harness: guest
// memory size and layout, scheduler tuning, and the demo workload.
type MachineConfig struct {
	MemorySize uint64         `yaml:"memory_size"`
	Regions    []RegionConfig `yaml:"regions"`

	// Per-core preemption priority override; must list one level per core
	// when present.
	PreemptionPriorities []int32 `yaml:"preemption_priorities"`

	Workload []WorkloadThread `yaml:"workload"`
}

// RegionConfig is a mapped guest address range. Base and size must be
// page-aligned.
type RegionConfig struct {
	Base uint64 `yaml:"base"`
	Size uint64 `yaml:"size"`
}

// WorkloadThread describes one demo guest thread.
type WorkloadThread struct {
	Name     string `yaml:"name"`
	Priority int32  `yaml:"priority"`
	Affinity uint8  `yaml:"affinity"` // core bitmask; 0 means all cores
}

// DefaultMachineConfig is the configuration used when no file is given:
// 64MB of guest memory with a single 1MB region mapped at 0 and the stock
// preemption levels.
func DefaultMachineConfig() *MachineConfig {
	return &MachineConfig{
		MemorySize: DEFAULT_GUEST_MEMORY_SIZE,
		Regions:    []RegionConfig{{Base: 0, Size: 1024 * 1024}},
	}
}

// LoadMachineConfig reads and validates a YAML machine configuration.
func LoadMachineConfig(path string) (*MachineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("machine_config: %w", err)
	}
	cfg := DefaultMachineConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("machine_config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks alignment, priority ranges and affinity masks.
func (c *MachineConfig) Validate() error {
	for _, r := range c.Regions {
		if r.Base&(GUEST_PAGE_SIZE-1) != 0 || r.Size&(GUEST_PAGE_SIZE-1) != 0 {
			return fmt.Errorf("machine_config: region 0x%X+0x%X not page-aligned", r.Base, r.Size)
		}
		if r.Base+r.Size > c.MemorySize {
			return fmt.Errorf("machine_config: region 0x%X+0x%X exceeds memory size 0x%X", r.Base, r.Size, c.MemorySize)
		}
	}
	if n := len(c.PreemptionPriorities); n != 0 && n != NUM_CPU_CORES {
		return fmt.Errorf("machine_config: preemption_priorities needs %d entries, got %d", NUM_CPU_CORES, n)
	}
	for _, p := range c.PreemptionPriorities {
		if p < THREAD_PRIORITY_HIGHEST || p > THREAD_PRIORITY_LOWEST {
			return fmt.Errorf("machine_config: preemption priority %d out of range", p)
		}
	}
	for _, w := range c.Workload {
		if w.Priority < THREAD_PRIORITY_HIGHEST || w.Priority > THREAD_PRIORITY_LOWEST {
			return fmt.Errorf("machine_config: workload %q priority %d out of range", w.Name, w.Priority)
		}
		if CoreMask(w.Affinity)&CORE_MASK_ALL == 0 && w.Affinity != 0 {
			return fmt.Errorf("machine_config: workload %q affinity %#x has no valid cores", w.Name, w.Affinity)
		}
	}
	return nil
}

// AffinityMask resolves a workload thread's affinity, defaulting to all
// cores.
func (w *WorkloadThread) AffinityMask() CoreMask {
	if w.Affinity == 0 {
		return CORE_MASK_ALL
	}
	return CoreMask(w.Affinity) & CORE_MASK_ALL
}
