// debug_monitor.go - Kernel monitor: inspect and poke scheduler/arbiter state

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
	"fmt"
	"io"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// KernelMonitor is the interactive debugger over the kernel core. It owns a
// scheduler-lock token and goes through the public kernel/arbiter surface
// for every mutation, so monitor pokes obey the same serialization as guest
// syscalls.
type KernelMonitor struct {
	kernel  *Kernel
	arbiter *AddressArbiter
	memory  GuestMemory
	owner   LockOwner
	out     io.Writer
}

// NewKernelMonitor creates a monitor bound to the kernel and arbiter.
func NewKernelMonitor(k *Kernel, arb *AddressArbiter, out io.Writer) *KernelMonitor {
	return &KernelMonitor{
		kernel:  k,
		arbiter: arb,
		memory:  k.memory,
		owner:   k.NewLockOwner(),
		out:     out,
	}
}

// Execute runs one monitor command line. Unknown commands are reported, not
// fatal. Returns io.EOF for the exit command.
func (m *KernelMonitor) Execute(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help", "?":
		m.printHelp()
	case "threads", "t":
		m.cmdThreads()
	case "queue", "q":
		return m.cmdQueue(args)
	case "waiters":
		return m.cmdWaiters(args)
	case "read", "r":
		return m.cmdRead(args)
	case "write", "w":
		return m.cmdWrite(args)
	case "signal", "sig":
		return m.cmdSignal(args)
	case "preempt":
		m.kernel.PreemptThreads()
		fmt.Fprintln(m.out, "preemption tick fired")
	case "snap":
		return m.cmdSnap()
	case "script":
		return m.cmdScript(args)
	case "exit", "quit", "x":
		return io.EOF
	default:
		fmt.Fprintf(m.out, "unknown command %q - try help\n", cmd)
	}
	return nil
}

func (m *KernelMonitor) printHelp() {
	fmt.Fprint(m.out, `Kernel monitor commands:
  threads                list all guest threads
  queue <core>           show a core's run queue
  waiters <addr>         show arbiter waiters on an address (wake order)
  read <addr>            read a guest word
  write <addr> <val>     write a guest word
  signal <addr> <n>      SignalToAddress (n<=0 wakes all)
  preempt                fire the preemption tick now
  snap                   dump kernel state as JSON
  script <file.lua>      run a Lua script against the kernel
  exit                   leave the monitor
`)
}

func (m *KernelMonitor) cmdThreads() {
	snap := TakeKernelSnapshot(m.kernel, m.arbiter, m.owner)
	fmt.Fprintf(m.out, "%-4s %-16s %-4s %-4s %-10s %-12s %s\n",
		"ID", "NAME", "PRI", "CORE", "STATUS", "WAIT-ADDR", "RESULT")
	for _, t := range snap.Threads {
		waitAddr := "-"
		if t.WaitAddress != 0 {
			waitAddr = fmt.Sprintf("0x%08X", t.WaitAddress)
		}
		fmt.Fprintf(m.out, "%-4d %-16s %-4d %-4d %-10s %-12s %s\n",
			t.ID, t.Name, t.Priority, t.Core, t.Status, waitAddr, t.WaitResult)
	}
}

func (m *KernelMonitor) cmdQueue(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: queue <core>")
	}
	core, err := strconv.ParseInt(args[0], 0, 32)
	if err != nil || core < 0 || core >= NUM_CPU_CORES {
		return fmt.Errorf("bad core %q", args[0])
	}
	snap := TakeKernelSnapshot(m.kernel, m.arbiter, m.owner)
	empty := true
	for _, q := range snap.Queues {
		if q.Core != int32(core) {
			continue
		}
		empty = false
		fmt.Fprintf(m.out, "core %d prio %2d: %v\n", q.Core, q.Priority, q.ThreadIDs)
	}
	if empty {
		fmt.Fprintf(m.out, "core %d: run queue empty\n", core)
	}
	return nil
}

func (m *KernelMonitor) cmdWaiters(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: waiters <addr>")
	}
	addr, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf("bad address %q", args[0])
	}
	snap := TakeKernelSnapshot(m.kernel, m.arbiter, m.owner)
	for _, wl := range snap.WaitLists {
		if wl.Address == addr {
			fmt.Fprintf(m.out, "0x%08X: %v\n", wl.Address, wl.ThreadIDs)
			return nil
		}
	}
	fmt.Fprintf(m.out, "0x%08X: no waiters\n", addr)
	return nil
}

func (m *KernelMonitor) cmdRead(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: read <addr>")
	}
	addr, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf("bad address %q", args[0])
	}
	if !m.memory.IsValid(addr) {
		return fmt.Errorf("0x%08X: not mapped", addr)
	}
	val := m.memory.Read32(addr)
	fmt.Fprintf(m.out, "0x%08X = 0x%08X (%d)\n", addr, val, int32(val))
	return nil
}

func (m *KernelMonitor) cmdWrite(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: write <addr> <val>")
	}
	addr, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf("bad address %q", args[0])
	}
	val, err := strconv.ParseInt(args[1], 0, 64)
	if err != nil {
		return fmt.Errorf("bad value %q", args[1])
	}
	if !m.memory.IsValid(addr) {
		return fmt.Errorf("0x%08X: not mapped", addr)
	}
	m.memory.Write32(addr, uint32(val))
	fmt.Fprintf(m.out, "0x%08X <- 0x%08X\n", addr, uint32(val))
	return nil
}

func (m *KernelMonitor) cmdSignal(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: signal <addr> <n>")
	}
	addr, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf("bad address %q", args[0])
	}
	n, err := strconv.ParseInt(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("bad count %q", args[1])
	}
	res := m.arbiter.SignalToAddress(m.owner, addr, int32(n))
	fmt.Fprintf(m.out, "SignalToAddress(0x%08X, %d) = %v\n", addr, n, res)
	return nil
}

func (m *KernelMonitor) cmdSnap() error {
	snap := TakeKernelSnapshot(m.kernel, m.arbiter, m.owner)
	data, err := snap.JSON()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	fmt.Fprintln(m.out, string(data))
	return nil
}

// cmdScript runs a Lua script with the kernel surface bound as globals.
// Scripts reproduce guest synchronization scenarios without a guest binary.
func (m *KernelMonitor) cmdScript(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: script <file.lua>")
	}
	L := lua.NewState()
	defer L.Close()
	m.registerLuaAPI(L)
	if err := L.DoFile(args[0]); err != nil {
		return fmt.Errorf("script: %w", err)
	}
	return nil
}

// RunLuaString executes a script given as a string; used by tests and the
// harness demo.
func (m *KernelMonitor) RunLuaString(src string) error {
	L := lua.NewState()
	defer L.Close()
	m.registerLuaAPI(L)
	return L.DoString(src)
}

func (m *KernelMonitor) registerLuaAPI(L *lua.LState) {
	L.SetGlobal("read32", L.NewFunction(func(L *lua.LState) int {
		addr := uint64(L.CheckInt64(1))
		if !m.memory.IsValid(addr) {
			L.RaiseError("read32: 0x%X not mapped", addr)
			return 0
		}
		L.Push(lua.LNumber(int32(m.memory.Read32(addr))))
		return 1
	}))
	L.SetGlobal("write32", L.NewFunction(func(L *lua.LState) int {
		addr := uint64(L.CheckInt64(1))
		val := uint32(L.CheckInt64(2))
		if !m.memory.IsValid(addr) {
			L.RaiseError("write32: 0x%X not mapped", addr)
			return 0
		}
		m.memory.Write32(addr, val)
		return 0
	}))
	L.SetGlobal("signal", L.NewFunction(func(L *lua.LState) int {
		addr := uint64(L.CheckInt64(1))
		n := int32(L.CheckInt64(2))
		res := m.arbiter.SignalToAddress(m.owner, addr, n)
		L.Push(lua.LNumber(res))
		return 1
	}))
	L.SetGlobal("waiters", L.NewFunction(func(L *lua.LState) int {
		addr := uint64(L.CheckInt64(1))
		L.Push(lua.LNumber(m.arbiter.WaiterCount(m.owner, addr)))
		return 1
	}))
	L.SetGlobal("preempt", L.NewFunction(func(L *lua.LState) int {
		m.kernel.PreemptThreads()
		return 0
	}))
	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		fmt.Fprintln(m.out, L.CheckString(1))
		return 0
	}))
}
