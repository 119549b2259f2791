package main

import "testing"

// BenchmarkPriorityQueuePushRemove measures the queue hot path: one
// push/remove cycle against a populated queue.
func BenchmarkPriorityQueuePushRemove(b *testing.B) {
	q := NewPriorityQueue()
	for p := int32(0); p < THREAD_PRIORITY_COUNT; p += 4 {
		th, err := NewKThread("filler", p, CORE_MASK_ALL)
		if err != nil {
			b.Fatalf("NewKThread failed: %v", err)
		}
		th.currentCore = 0
		q.Push(th)
	}
	th, err := NewKThread("probe", 31, CORE_MASK_ALL)
	if err != nil {
		b.Fatalf("NewKThread failed: %v", err)
	}
	th.currentCore = 0

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Push(th)
		q.Remove(th)
	}
}

// BenchmarkPriorityQueueFront measures the bitmask scan with a sparse queue.
func BenchmarkPriorityQueueFront(b *testing.B) {
	q := NewPriorityQueue()
	th, err := NewKThread("lone", 60, CORE_MASK_ALL)
	if err != nil {
		b.Fatalf("NewKThread failed: %v", err)
	}
	th.currentCore = 0
	q.Push(th)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if q.Front(0) == nil {
			b.Fatalf("front lost")
		}
	}
}

// BenchmarkSignalOneWaiter measures a full wait/signal round trip through
// the arbiter, scheduler lock included.
func BenchmarkSignalOneWaiter(b *testing.B) {
	memory := NewGuestAddressSpace(1 << 20)
	if err := memory.MapRegion(0, 64*1024); err != nil {
		b.Fatalf("MapRegion failed: %v", err)
	}
	kernel := NewKernel(memory, NewManualClock())
	arb := NewAddressArbiter(kernel)
	owner := kernel.NewLockOwner()

	const addr = uint64(0x1000)
	memory.Write32(addr, 0)
	th, err := NewKThread("waiter", 20, CORE_MASK_ALL)
	if err != nil {
		b.Fatalf("NewKThread failed: %v", err)
	}
	kernel.AddThread(th)
	kernel.ReadyThread(th, owner)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		arb.WaitIfEqual(th, addr, 0, TIMEOUT_INFINITE)
		arb.SignalToAddress(owner, addr, 1)
	}
}

// BenchmarkKernelSnapshot measures a capture with a realistic thread count.
func BenchmarkKernelSnapshot(b *testing.B) {
	memory := NewGuestAddressSpace(1 << 20)
	if err := memory.MapRegion(0, 64*1024); err != nil {
		b.Fatalf("MapRegion failed: %v", err)
	}
	kernel := NewKernel(memory, NewManualClock())
	arb := NewAddressArbiter(kernel)
	owner := kernel.NewLockOwner()
	for i := 0; i < 32; i++ {
		th, err := NewKThread("t", int32(i%THREAD_PRIORITY_COUNT), CORE_MASK_ALL)
		if err != nil {
			b.Fatalf("NewKThread failed: %v", err)
		}
		kernel.AddThread(th)
		kernel.ReadyThread(th, owner)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		TakeKernelSnapshot(kernel, arb, owner)
	}
}
