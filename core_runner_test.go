package main

import (
	"testing"
	"time"
)

// newRunnerMachine builds a fully wired machine: system clock, live core
// runners, arbiter. Callers must Stop the returned runner set.
func newRunnerMachine(t *testing.T) (*Kernel, *AddressArbiter, *CoreRunnerSet) {
	t.Helper()
	memory := NewGuestAddressSpace(1 << 20)
	if err := memory.MapRegion(0, 64*1024); err != nil {
		t.Fatalf("MapRegion failed: %v", err)
	}
	kernel := NewKernel(memory, NewSystemClock())
	arb := NewAddressArbiter(kernel)
	runners := StartCoreRunners(kernel)
	return kernel, arb, runners
}

// waitForRunning polls until the core commits to the given thread.
func waitForRunning(t *testing.T, k *Kernel, core int32, th *KThread) {
	t.Helper()
	probe := k.NewLockOwner()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		k.Lock(probe)
		got := k.RunningThread(core)
		k.Unlock(probe)
		if got == th {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("core %d never committed to the expected thread", core)
}

// TestCoreRunnersCommitReadyThread verifies the interrupt round trip: a
// thread made ready lands as its core's running thread without any manual
// reschedule call.
func TestCoreRunnersCommitReadyThread(t *testing.T) {
	kernel, _, runners := newRunnerMachine(t)
	defer runners.Stop()

	th, err := NewKThread("worker", 20, CoreMask(1<<0))
	if err != nil {
		t.Fatalf("NewKThread failed: %v", err)
	}
	kernel.AddThread(th)
	kernel.ReadyThread(th, kernel.NewLockOwner())

	waitForRunning(t, kernel, 0, th)
}

// TestCoreRunnersPreemptionSwitch verifies that live runners pick up a
// displacement caused by a more urgent arrival.
func TestCoreRunnersPreemptionSwitch(t *testing.T) {
	kernel, _, runners := newRunnerMachine(t)
	defer runners.Stop()
	owner := kernel.NewLockOwner()

	low, _ := NewKThread("low", 40, CoreMask(1<<0))
	kernel.AddThread(low)
	kernel.ReadyThread(low, owner)
	waitForRunning(t, kernel, 0, low)

	high, _ := NewKThread("high", 5, CoreMask(1<<0))
	kernel.AddThread(high)
	kernel.ReadyThread(high, owner)
	waitForRunning(t, kernel, 0, high)
}

// TestCoreRunnerStopIdempotent verifies shutdown can be called twice.
func TestCoreRunnerStopIdempotent(t *testing.T) {
	_, _, runners := newRunnerMachine(t)
	runners.Stop()
	runners.Stop()
}

// TestPrepareRescheduleOutOfRange verifies that a bogus core number is
// discarded.
func TestPrepareRescheduleOutOfRange(t *testing.T) {
	_, _, runners := newRunnerMachine(t)
	defer runners.Stop()
	runners.PrepareReschedule(-1)
	runners.PrepareReschedule(NUM_CPU_CORES)
}
