// kernel_scheduler.go - Global scheduler context for the IntuitionNX kernel core

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

/*
kernel_scheduler.go - Global Scheduler Context

This module owns the shared scheduling state of the emulated guest kernel:
the set of all live guest threads, the multi-level run queue, the reentrant
scheduler lock, the per-core current-thread table and the update flag that
drives reschedule fan-out. It also hosts the 10ms preemption tick that
rotates the per-core preemption-priority buckets and rebalances the highest
priority threads across their affinity cores.

The thread list is guarded by its own short mutex, independent of the
scheduler lock, so diagnostics can enumerate threads without stalling the
scheduler. Everything else - queue contents, per-thread scheduling fields,
the current-thread table - is mutated only under the scheduler lock.

Reschedule interrupts are emitted exclusively from the scheduler lock's
outermost release (see scheduler_lock.go): mutators here set updateNeeded
and let their unwind do the fan-out.
*/

package main

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// CoreInterrupt is the port through which the kernel asks an emulated core
// to leave its execution window and reconsult the scheduler.
type CoreInterrupt interface {
	PrepareReschedule(core int32)
}

// nopInterrupt discards reschedule requests. Used until core runners are
// attached, and by tests that only assert on scheduler state.
type nopInterrupt struct{}

func (nopInterrupt) PrepareReschedule(int32) {}

// Kernel is the global scheduler context shared by all emulated cores.
type Kernel struct {
	memory     GuestMemory
	clock      Clock
	interrupts CoreInterrupt

	lock         *SchedulerLock
	queue        *PriorityQueue
	updateNeeded atomic.Bool

	ownerSeq atomic.Int64

	// Thread list, guarded by listMu (never by the scheduler lock).
	listMu       sync.Mutex
	threads      []*KThread
	nextThreadID atomic.Uint64

	// Current thread per core; nil when the core idles.
	running [NUM_CPU_CORES]*KThread

	preemptionPriorities [NUM_CPU_CORES]int32
}

// NewKernel creates a scheduler context over the given memory and clock.
// Core runners attach later via SetInterrupts; until then reschedule
// requests are discarded.
func NewKernel(memory GuestMemory, clock Clock) *Kernel {
	k := &Kernel{
		memory:               memory,
		clock:                clock,
		interrupts:           nopInterrupt{},
		queue:                NewPriorityQueue(),
		preemptionPriorities: PreemptionPriorities,
	}
	k.lock = newSchedulerLock(k)
	return k
}

// NewLockOwner allocates a scheduler-lock owner token. Tokens must never be
// shared between goroutines that can hold the lock concurrently: a shared
// token reads as reentrant acquisition and defeats mutual exclusion.
func (k *Kernel) NewLockOwner() LockOwner {
	return LockOwner(k.ownerSeq.Add(1))
}

// SetInterrupts wires the core interrupt port. Called once at boot, before
// any guest thread runs.
func (k *Kernel) SetInterrupts(ci CoreInterrupt) {
	if ci == nil {
		ci = nopInterrupt{}
	}
	k.interrupts = ci
}

// SetPreemptionPriorities overrides the per-core preemption levels (from
// machine config). Levels outside the priority range are rejected; a bad
// level would index past the queue's buckets on the next tick.
func (k *Kernel) SetPreemptionPriorities(p [NUM_CPU_CORES]int32) error {
	for _, lv := range p {
		if lv < THREAD_PRIORITY_HIGHEST || lv > THREAD_PRIORITY_LOWEST {
			return fmt.Errorf("kernel: preemption priority %d out of range", lv)
		}
	}
	k.preemptionPriorities = p
	return nil
}

// Lock acquires the scheduler lock for the given owner.
func (k *Kernel) Lock(owner LockOwner) { k.lock.Lock(owner) }

// Unlock releases the scheduler lock; the outermost release runs the
// reschedule epilogue.
func (k *Kernel) Unlock(owner LockOwner) { k.lock.Unlock(owner) }

// IsLockedBy reports whether owner holds the scheduler lock.
func (k *Kernel) IsLockedBy(owner LockOwner) bool { return k.lock.IsLockedBy(owner) }

// SetUpdateNeeded flags that the per-core selections must be rebuilt on the
// next outermost lock release.
func (k *Kernel) SetUpdateNeeded() { k.updateNeeded.Store(true) }

// AddThread registers a thread with the kernel, assigning its ID and lock
// token. The thread is not yet schedulable; see ReadyThread.
func (k *Kernel) AddThread(t *KThread) {
	t.ID = k.nextThreadID.Add(1)
	t.owner = k.NewLockOwner()
	k.listMu.Lock()
	k.threads = append(k.threads, t)
	k.listMu.Unlock()
}

// RemoveThread erases a thread from the kernel's thread list. The caller is
// responsible for having dequeued it first.
func (k *Kernel) RemoveThread(t *KThread) {
	k.listMu.Lock()
	defer k.listMu.Unlock()
	for i, lt := range k.threads {
		if lt == t {
			k.threads = append(k.threads[:i], k.threads[i+1:]...)
			return
		}
	}
}

// Threads returns a copy of the live thread list. Safe to call without the
// scheduler lock.
func (k *Kernel) Threads() []*KThread {
	k.listMu.Lock()
	defer k.listMu.Unlock()
	out := make([]*KThread, len(k.threads))
	copy(out, k.threads)
	return out
}

// ReadyThread places a registered thread on the run queue under the
// scheduler lock. A thread without a valid current core is assigned the
// lowest core in its affinity mask.
func (k *Kernel) ReadyThread(t *KThread, owner LockOwner) {
	k.lock.Lock(owner)
	defer k.lock.Unlock(owner)
	if t.status == ThreadTerminated {
		return
	}
	if !t.affinityMask.Has(t.currentCore) {
		t.currentCore = t.affinityMask.LowestSet()
	}
	t.status = ThreadReady
	k.queue.Push(t)
	k.updateNeeded.Store(true)
}

// selectThreads is the body of the unlock epilogue. Called by the scheduler
// lock while still held; returns the cores whose selection changed.
func (k *Kernel) selectThreads() []int32 {
	if !k.updateNeeded.Swap(false) {
		return nil
	}
	var cores []int32
	for c := int32(0); c < NUM_CPU_CORES; c++ {
		if k.queue.Front(c) != k.running[c] {
			cores = append(cores, c)
		}
	}
	return cores
}

// RescheduleCore commits a core's thread switch: the previous thread (if
// any) drops back to Ready, the queue front becomes Running. Called by core
// runners when they service a reschedule interrupt.
func (k *Kernel) RescheduleCore(core int32, owner LockOwner) *KThread {
	k.lock.Lock(owner)
	defer k.lock.Unlock(owner)
	next := k.queue.Front(core)
	prev := k.running[core]
	if next == prev {
		return next
	}
	if prev != nil && prev.status == ThreadRunning {
		prev.status = ThreadReady
	}
	if next != nil {
		if next.currentCore != core {
			panic(fmt.Sprintf("kernel: thread %d selected on core %d but queued on core %d",
				next.ID, core, next.currentCore))
		}
		next.status = ThreadRunning
	}
	k.running[core] = next
	return next
}

// RunningThread returns the thread the core is currently committed to.
// Caller must hold the scheduler lock.
func (k *Kernel) RunningThread(core int32) *KThread { return k.running[core] }

// PreemptThreads is the 10ms preemption tick. It rotates each core's
// preemption-priority bucket for round-robin fairness among equal-priority
// threads, then rebalances the highest-priority threads across their
// affinity cores. Safe to fire twice in quick succession: a double tick
// just rotates twice. Callers may overlap (ticker, monitor), so each
// invocation takes its own lock token.
func (k *Kernel) PreemptThreads() {
	owner := k.NewLockOwner()
	k.lock.Lock(owner)
	defer k.lock.Unlock(owner)

	for c := int32(0); c < NUM_CPU_CORES; c++ {
		k.queue.Rotate(c, k.preemptionPriorities[c])
	}
	k.rebalanceCores()
	k.updateNeeded.Store(true)
}

// rebalanceCores migrates threads of priority <= HIGHEST_MIGRATION_PRIORITY
// to the affinity core whose queue front is worst (numerically highest)
// priority, when that front is strictly worse than the thread itself.
// Running threads stay put. Caller holds the scheduler lock.
func (k *Kernel) rebalanceCores() {
	var candidates []*KThread
	for c := int32(0); c < NUM_CPU_CORES; c++ {
		for p := int32(THREAD_PRIORITY_HIGHEST); p <= HIGHEST_MIGRATION_PRIORITY; p++ {
			candidates = append(candidates, k.queue.Bucket(c, p)...)
		}
	}
	for _, t := range candidates {
		if t.status != ThreadReady {
			continue
		}
		best := int32(-1)
		worstFront := t.priority // must beat this strictly
		for b := int32(0); b < NUM_CPU_CORES; b++ {
			if b == t.currentCore || !t.affinityMask.Has(b) {
				continue
			}
			fp := int32(THREAD_PRIORITY_COUNT) // idle core: worse than any thread
			if f := k.queue.Front(b); f != nil {
				fp = f.priority
			}
			if fp > worstFront {
				worstFront = fp
				best = b
			}
		}
		if best >= 0 {
			k.queue.Remove(t)
			t.currentCore = best
			k.queue.Push(t)
		}
	}
}

// RunPreemption drives PreemptThreads on the preemption interval until
// stopCh closes. Run as a goroutine from the harness.
func (k *Kernel) RunPreemption(stopCh <-chan struct{}) {
	ticker := time.NewTicker(PREEMPTION_INTERVAL)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			k.PreemptThreads()
		}
	}
}
