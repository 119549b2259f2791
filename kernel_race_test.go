package main

import (
	"sync"
	"testing"
	"time"
)

// TestConcurrentWaitSignalStress hammers the arbiter from many host
// goroutines while core runners, the preemption tick and snapshot readers
// run. The race detector is the oracle; the only explicit assertion is
// that every guest thread settles out of WaitArb at the end.
func TestConcurrentWaitSignalStress(t *testing.T) {
	kernel, arb, runners := newRunnerMachine(t)
	defer runners.Stop()

	stopPreempt := make(chan struct{})
	go kernel.RunPreemption(stopPreempt)
	defer close(stopPreempt)

	const addr = uint64(0x1000)
	const iterations = 50

	var guests sync.WaitGroup
	var churn sync.WaitGroup
	done := make(chan struct{})

	// Guest threads: each host goroutine drives one thread through repeated
	// short timed waits, polling its status between episodes the way a core
	// emulation loop would.
	for i := 0; i < 8; i++ {
		th, err := NewKThread("stress", 20+int32(i), CORE_MASK_ALL)
		if err != nil {
			t.Fatalf("NewKThread failed: %v", err)
		}
		kernel.AddThread(th)
		kernel.ReadyThread(th, kernel.NewLockOwner())

		guests.Add(1)
		go func(th *KThread) {
			defer guests.Done()
			probe := kernel.NewLockOwner()
			for n := 0; n < iterations; n++ {
				arb.WaitIfEqual(th, addr, 0, int64(time.Millisecond))
				for {
					kernel.Lock(probe)
					st := th.status
					kernel.Unlock(probe)
					if st != ThreadWaitArb {
						break
					}
					time.Sleep(50 * time.Microsecond)
				}
			}
		}(th)
	}

	// Signaler: wakes one waiter most of the time, everyone occasionally.
	churn.Add(1)
	go func() {
		defer churn.Done()
		owner := kernel.NewLockOwner()
		for n := 0; ; n++ {
			select {
			case <-done:
				return
			default:
			}
			count := int32(1)
			if n%7 == 0 {
				count = -1
			}
			arb.SignalToAddress(owner, addr, count)
			time.Sleep(200 * time.Microsecond)
		}
	}()

	// Extra preemption pressure beyond the 10ms ticker.
	churn.Add(1)
	go func() {
		defer churn.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			kernel.PreemptThreads()
			time.Sleep(500 * time.Microsecond)
		}
	}()

	// Diagnostics reader: snapshots while everything churns.
	churn.Add(1)
	go func() {
		defer churn.Done()
		owner := kernel.NewLockOwner()
		for {
			select {
			case <-done:
				return
			default:
			}
			snap := TakeKernelSnapshot(kernel, arb, owner)
			if _, err := snap.JSON(); err != nil {
				t.Errorf("snapshot render failed: %v", err)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	settled := make(chan struct{})
	go func() {
		guests.Wait()
		close(settled)
	}()
	select {
	case <-settled:
	case <-time.After(30 * time.Second):
		t.Errorf("guest goroutines did not settle")
	}
	close(done)
	churn.Wait()
	if t.Failed() {
		return
	}

	probe := kernel.NewLockOwner()
	for _, th := range kernel.Threads() {
		kernel.Lock(probe)
		st := th.status
		kernel.Unlock(probe)
		if st == ThreadWaitArb {
			t.Fatalf("thread %d stuck in WaitArb after stress", th.ID)
		}
	}
}

// TestConcurrentTimedWaitExpiry verifies timer-driven wakes under load:
// with no signaler at all, every timed wait must come back TimedOut.
func TestConcurrentTimedWaitExpiry(t *testing.T) {
	kernel, arb, runners := newRunnerMachine(t)
	defer runners.Stop()

	const addr = uint64(0x2000)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		th, err := NewKThread("timed", 30, CORE_MASK_ALL)
		if err != nil {
			t.Fatalf("NewKThread failed: %v", err)
		}
		kernel.AddThread(th)
		kernel.ReadyThread(th, kernel.NewLockOwner())

		wg.Add(1)
		go func(th *KThread) {
			defer wg.Done()
			probe := kernel.NewLockOwner()
			for n := 0; n < 20; n++ {
				arb.WaitIfEqual(th, addr, 0, int64(500*time.Microsecond))
				for {
					kernel.Lock(probe)
					st, res := th.status, th.waitResult
					kernel.Unlock(probe)
					if st != ThreadWaitArb {
						if res != RESULT_TIMED_OUT {
							t.Errorf("timed wait delivered %v, expected TimedOut", res)
						}
						break
					}
					time.Sleep(50 * time.Microsecond)
				}
			}
		}(th)
	}
	wg.Wait()

	probe := kernel.NewLockOwner()
	if n := arb.WaiterCount(probe, addr); n != 0 {
		t.Fatalf("WaiterCount = %d after all timeouts, expected 0", n)
	}
}
