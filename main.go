// main.go - Main entry point for the IntuitionNX kernel core harness

/*
 ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░
 ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░
 ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░
 ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░

(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionNX
License: GPLv3 or later
*/

package main

import (
	"flag"
	"fmt"
	"os"
)

const Version = "0.1.0"

func boilerPlate() {
	fmt.Println("\nIntuitionNX - guest kernel synchronization core for Nintendo Switch emulation.")
	fmt.Println("(c) 2024 - 2026 Zayn Otley")
	fmt.Println("https://github.com/IntuitionAmiga/IntuitionNX")
	fmt.Println("License: GPLv3 or later")
}

// Machine bundles the booted emulator slice: guest memory, the scheduler
// context, the arbiter and the per-core runners.
type Machine struct {
	memory  *GuestAddressSpace
	kernel  *Kernel
	arbiter *AddressArbiter
	runners *CoreRunnerSet

	preemptStop chan struct{}
}

// BootMachine builds a machine from configuration: guest memory with its
// regions mapped, the kernel, the arbiter, four core runners and the
// preemption ticker. Workload threads are registered and made ready.
func BootMachine(cfg *MachineConfig) (*Machine, error) {
	memory := NewGuestAddressSpace(cfg.MemorySize)
	for _, r := range cfg.Regions {
		if err := memory.MapRegion(r.Base, r.Size); err != nil {
			return nil, err
		}
	}

	kernel := NewKernel(memory, NewSystemClock())
	if len(cfg.PreemptionPriorities) == NUM_CPU_CORES {
		var p [NUM_CPU_CORES]int32
		copy(p[:], cfg.PreemptionPriorities)
		if err := kernel.SetPreemptionPriorities(p); err != nil {
			return nil, err
		}
	}

	m := &Machine{
		memory:      memory,
		kernel:      kernel,
		arbiter:     NewAddressArbiter(kernel),
		runners:     StartCoreRunners(kernel),
		preemptStop: make(chan struct{}),
	}
	go kernel.RunPreemption(m.preemptStop)

	bootOwner := kernel.NewLockOwner()
	for _, w := range cfg.Workload {
		t, err := NewKThread(w.Name, w.Priority, w.AffinityMask())
		if err != nil {
			return nil, fmt.Errorf("workload %q: %w", w.Name, err)
		}
		kernel.AddThread(t)
		kernel.ReadyThread(t, bootOwner)
	}
	return m, nil
}

// Shutdown stops the preemption ticker and the core runners.
func (m *Machine) Shutdown() {
	close(m.preemptStop)
	m.runners.Stop()
}

// runDemo exercises the arbiter end to end: two consumers block on a guest
// word, a producer increments it and wakes them one at a time.
func runDemo(m *Machine) error {
	const word = uint64(0x1000)
	k, arb := m.kernel, m.arbiter
	owner := k.NewLockOwner()

	m.memory.Write32(word, 0)

	var consumers []*KThread
	for i := 0; i < 2; i++ {
		t, err := NewKThread(fmt.Sprintf("consumer%d", i), 20, CORE_MASK_ALL)
		if err != nil {
			return err
		}
		k.AddThread(t)
		k.ReadyThread(t, owner)
		consumers = append(consumers, t)
	}

	fmt.Println("demo: consumers wait for the word at 0x1000 to leave zero")
	for _, t := range consumers {
		res := arb.WaitIfEqual(t, word, 0, TIMEOUT_INFINITE)
		fmt.Printf("  %s: WaitIfEqual -> %v (sleeping)\n", t.Name, res)
	}
	fmt.Printf("  waiters on 0x1000: %d\n", arb.WaiterCount(owner, word))

	fmt.Println("demo: producer publishes and wakes one consumer")
	res := arb.IncrementAndSignalIfEqual(owner, word, 0, 1)
	fmt.Printf("  IncrementAndSignalIfEqual -> %v, word = %d\n", res, int32(m.memory.Read32(word)))

	fmt.Println("demo: wake everyone left")
	res = arb.SignalToAddress(owner, word, -1)
	fmt.Printf("  SignalToAddress(all) -> %v, waiters left: %d\n", res, arb.WaiterCount(owner, word))

	mon := NewKernelMonitor(k, arb, os.Stdout)
	fmt.Println("demo: final thread states")
	return mon.Execute("threads")
}

func main() {
	configPath := flag.String("config", "", "machine configuration YAML")
	monitor := flag.Bool("monitor", false, "enter the kernel monitor")
	demo := flag.Bool("demo", false, "run the arbiter demo workload")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("IntuitionNX %s\n", Version)
		return
	}

	boilerPlate()

	cfg := DefaultMachineConfig()
	if *configPath != "" {
		loaded, err := LoadMachineConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	machine, err := BootMachine(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "boot: %v\n", err)
		os.Exit(1)
	}
	defer machine.Shutdown()

	switch {
	case *monitor:
		if err := RunMonitorTerminal(machine.kernel, machine.arbiter); err != nil {
			fmt.Fprintf(os.Stderr, "monitor: %v\n", err)
			os.Exit(1)
		}
	case *demo:
		if err := runDemo(machine); err != nil {
			fmt.Fprintf(os.Stderr, "demo: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Println("\nNothing to do - pass -demo or -monitor.")
	}
}
