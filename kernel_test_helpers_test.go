package main

import (
	"sync"
	"testing"
)

// recordingInterrupt captures PrepareReschedule calls so tests can assert
// on reschedule fan-out.
type recordingInterrupt struct {
	mu    sync.Mutex
	calls []int32
}

func (r *recordingInterrupt) PrepareReschedule(core int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, core)
}

// take returns and clears the recorded calls.
func (r *recordingInterrupt) take() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.calls
	r.calls = nil
	return out
}

// countFor returns how many recorded interrupts targeted the given core.
func (r *recordingInterrupt) countFor(core int32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == core {
			n++
		}
	}
	return n
}

// testMachine is the standard test fixture: 64KB of mapped guest memory, a
// manual clock, a recording interrupt port and an arbiter.
type testMachine struct {
	memory  *GuestAddressSpace
	clock   *ManualClock
	kernel  *Kernel
	arbiter *AddressArbiter
	intr    *recordingInterrupt
	owner   LockOwner
}

func newTestMachine(t *testing.T) *testMachine {
	t.Helper()
	memory := NewGuestAddressSpace(1 << 20)
	if err := memory.MapRegion(0, 64*1024); err != nil {
		t.Fatalf("MapRegion failed: %v", err)
	}
	clock := NewManualClock()
	kernel := NewKernel(memory, clock)
	intr := &recordingInterrupt{}
	kernel.SetInterrupts(intr)
	return &testMachine{
		memory:  memory,
		clock:   clock,
		kernel:  kernel,
		arbiter: NewAddressArbiter(kernel),
		intr:    intr,
		owner:   kernel.NewLockOwner(),
	}
}

// spawn registers a thread and makes it ready.
func (m *testMachine) spawn(t *testing.T, name string, priority int32, affinity CoreMask) *KThread {
	t.Helper()
	th, err := NewKThread(name, priority, affinity)
	if err != nil {
		t.Fatalf("NewKThread(%s) failed: %v", name, err)
	}
	m.kernel.AddThread(th)
	m.kernel.ReadyThread(th, m.owner)
	return th
}

// status reads a thread's scheduling state under the scheduler lock.
func (m *testMachine) status(th *KThread) ThreadStatus {
	m.kernel.Lock(m.owner)
	defer m.kernel.Unlock(m.owner)
	return th.status
}

// waitResult reads a thread's delivered wake result under the scheduler lock.
func (m *testMachine) waitResult(th *KThread) ResultCode {
	m.kernel.Lock(m.owner)
	defer m.kernel.Unlock(m.owner)
	return th.waitResult
}

// queueThread builds an unregistered thread pinned to a core, for direct
// priority-queue tests.
func queueThread(t *testing.T, name string, priority, core int32) *KThread {
	t.Helper()
	th, err := NewKThread(name, priority, CORE_MASK_ALL)
	if err != nil {
		t.Fatalf("NewKThread(%s) failed: %v", name, err)
	}
	th.currentCore = core
	return th
}
