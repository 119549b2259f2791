// address_arbiter.go - Futex-style address arbiter for the IntuitionNX kernel core

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
address_arbiter.go - Address Arbiter

This module implements the guest kernel's futex-like primitive: five
operations keyed by guest virtual address that atomically read, compare and
optionally modify a 32-bit guest word, then either put the calling guest
thread to sleep or wake a bounded number of waiters.

Atomicity comes from the scheduler lock, not from the guest word: every
operation holds the lock for its full duration, and no other emulator
component touches an arbitrated word concurrently. Waiters are kept in
per-address FIFO lists maintained at WaitArb entry and exit; insertion order
directly encodes the tie-break for equal-priority waiters, and a stable sort
by priority on the signal path yields the required wake order (most urgent
first, FIFO within a priority level).

A timed wait arms a single-shot timer on the kernel clock. The fire routine
re-acquires the scheduler lock and checks that the thread is still in
WaitArb before acting, so a signal racing a timeout resolves cleanly: under
the lock exactly one of them observes WaitArb and performs the wake; the
loser no-ops.
*/

package main

import (
	"fmt"
	"sort"
)

// AddressArbiter coordinates wait/wake on guest words. The wait lists are
// guarded by the kernel scheduler lock; the arbiter itself holds no state
// beyond them.
type AddressArbiter struct {
	kernel    *Kernel
	memory    GuestMemory
	waitLists map[uint64][]*KThread // per-address waiters in WaitArb entry order
}

// NewAddressArbiter creates an arbiter bound to the kernel's guest memory.
func NewAddressArbiter(k *Kernel) *AddressArbiter {
	return &AddressArbiter{
		kernel:    k,
		memory:    k.memory,
		waitLists: make(map[uint64][]*KThread),
	}
}

// WaitIfLessThan reads the guest word at addr as signed 32-bit and, when it
// is below compareValue, puts the calling thread to sleep on addr
// (optionally decrementing the word first). A zero timeout polls. The
// synchronous result for an entered wait is TimedOut; the authoritative
// result is delivered in the thread's wait result on wake.
func (a *AddressArbiter) WaitIfLessThan(t *KThread, addr uint64, compareValue int32, timeoutNs int64, shouldDecrement bool) ResultCode {
	a.kernel.Lock(t.owner)
	defer a.kernel.Unlock(t.owner)

	if !a.memory.IsValid(addr) {
		return RESULT_INVALID_ADDRESS_STATE
	}
	cur := int32(a.memory.Read32(addr))
	if cur >= compareValue {
		return RESULT_INVALID_STATE
	}
	if shouldDecrement {
		a.memory.Write32(addr, uint32(cur-1))
	}
	if timeoutNs == TIMEOUT_IMMEDIATE {
		return RESULT_TIMED_OUT
	}
	a.beginWait(t, addr, timeoutNs)
	return RESULT_TIMED_OUT
}

// WaitIfEqual puts the calling thread to sleep on addr when the guest word
// equals compareValue. Memory is never modified. A zero timeout polls.
func (a *AddressArbiter) WaitIfEqual(t *KThread, addr uint64, compareValue int32, timeoutNs int64) ResultCode {
	a.kernel.Lock(t.owner)
	defer a.kernel.Unlock(t.owner)

	if !a.memory.IsValid(addr) {
		return RESULT_INVALID_ADDRESS_STATE
	}
	if int32(a.memory.Read32(addr)) != compareValue {
		return RESULT_INVALID_STATE
	}
	if timeoutNs == TIMEOUT_IMMEDIATE {
		return RESULT_TIMED_OUT
	}
	a.beginWait(t, addr, timeoutNs)
	return RESULT_TIMED_OUT
}

// SignalToAddress wakes up to numToWake waiters on addr, most urgent first.
// numToWake <= 0 wakes all. Waking zero threads is still Success.
func (a *AddressArbiter) SignalToAddress(owner LockOwner, addr uint64, numToWake int32) ResultCode {
	a.kernel.Lock(owner)
	defer a.kernel.Unlock(owner)

	if !a.memory.IsValid(addr) {
		return RESULT_INVALID_ADDRESS_STATE
	}
	a.signalWaiters(addr, numToWake)
	return RESULT_SUCCESS
}

// IncrementAndSignalIfEqual increments the guest word when it equals
// compareValue, then wakes up to numToWake waiters. The increment is
// visible before any waiter runs: both happen under the scheduler lock.
func (a *AddressArbiter) IncrementAndSignalIfEqual(owner LockOwner, addr uint64, compareValue int32, numToWake int32) ResultCode {
	a.kernel.Lock(owner)
	defer a.kernel.Unlock(owner)

	if !a.memory.IsValid(addr) {
		return RESULT_INVALID_ADDRESS_STATE
	}
	if int32(a.memory.Read32(addr)) != compareValue {
		return RESULT_INVALID_STATE
	}
	a.memory.Write32(addr, uint32(compareValue+1))
	a.signalWaiters(addr, numToWake)
	return RESULT_SUCCESS
}

// ModifyByWaitingCountAndSignalIfEqual adjusts the guest word based on how
// the wake count relates to the number of waiters, then wakes up to
// numToWake of them:
//
//	no waiters                     -> word = compareValue - 1
//	waking every waiter            -> word = compareValue + 1
//	waking a strict subset         -> word unchanged
//
// The compare itself must still hold or the operation fails without
// touching memory or waking anyone.
func (a *AddressArbiter) ModifyByWaitingCountAndSignalIfEqual(owner LockOwner, addr uint64, compareValue int32, numToWake int32) ResultCode {
	a.kernel.Lock(owner)
	defer a.kernel.Unlock(owner)

	if !a.memory.IsValid(addr) {
		return RESULT_INVALID_ADDRESS_STATE
	}

	waiting := int32(len(a.waitLists[addr]))
	var updated int32
	switch {
	case waiting == 0:
		updated = compareValue - 1
	case numToWake <= 0 || waiting <= numToWake:
		updated = compareValue + 1
	default:
		updated = compareValue
	}

	if int32(a.memory.Read32(addr)) != compareValue {
		return RESULT_INVALID_STATE
	}
	a.memory.Write32(addr, uint32(updated))
	a.signalWaiters(addr, numToWake)
	return RESULT_SUCCESS
}

// WaiterCount returns the number of threads waiting on addr.
func (a *AddressArbiter) WaiterCount(owner LockOwner, addr uint64) int {
	a.kernel.Lock(owner)
	defer a.kernel.Unlock(owner)
	return len(a.waitLists[addr])
}

// Waiters returns the threads waiting on addr in wake order (priority
// ascending, FIFO within a level). Caller must hold the scheduler lock.
func (a *AddressArbiter) Waiters(addr uint64) []*KThread {
	list := a.waitLists[addr]
	out := make([]*KThread, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool { return out[i].priority < out[j].priority })
	return out
}

// WaitAddresses returns every address with at least one waiter. Caller must
// hold the scheduler lock.
func (a *AddressArbiter) WaitAddresses() []uint64 {
	out := make([]uint64, 0, len(a.waitLists))
	for addr := range a.waitLists {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// beginWait transitions the calling thread into WaitArb: off the run queue,
// onto the tail of the per-address wait list, with a wake timer armed for
// finite timeouts. Caller holds the scheduler lock.
func (a *AddressArbiter) beginWait(t *KThread, addr uint64, timeoutNs int64) {
	if t.status == ThreadWaitArb || t.status == ThreadTerminated {
		panic(fmt.Sprintf("address_arbiter: thread %d entering wait in state %v", t.ID, t.status))
	}
	a.kernel.queue.Remove(t)
	t.status = ThreadWaitArb
	t.arbiterWaitAddress = addr
	t.waitResult = RESULT_TIMED_OUT
	a.waitLists[addr] = append(a.waitLists[addr], t)
	t.waitSeq++

	if timeoutNs > 0 {
		deadline := a.kernel.clock.Now() + timeoutNs
		seq := t.waitSeq
		t.wakeDeadline = deadline
		t.cancelWakeTimer = a.kernel.clock.ArmTimer(deadline, func() { a.timeoutThread(t, seq) })
	}
	a.kernel.updateNeeded.Store(true)
}

// timeoutThread is the wake-timer fire routine. It re-acquires the
// scheduler lock and only acts if the thread is still in the wait episode
// the timer was armed for; a signal that won the race has already moved it
// out of WaitArb (and may even have let it wait again), so both the status
// and the episode counter are checked before acting.
//
// Each fire runs on its own host goroutine, so each takes a fresh lock
// token. Sharing one token across fires would let concurrent expiries
// re-enter the lock past each other.
func (a *AddressArbiter) timeoutThread(t *KThread, seq uint64) {
	owner := a.kernel.NewLockOwner()
	a.kernel.Lock(owner)
	defer a.kernel.Unlock(owner)

	if t.status != ThreadWaitArb || t.arbiterWaitAddress == 0 || t.waitSeq != seq {
		return
	}
	a.removeFromWaitList(t)
	a.wakeThread(t, RESULT_TIMED_OUT)
}

// signalWaiters wakes up to numToWake waiters on addr in wake order;
// numToWake <= 0 wakes all. Returns the number waked. Caller holds the
// scheduler lock.
func (a *AddressArbiter) signalWaiters(addr uint64, numToWake int32) int {
	waiters := a.Waiters(addr)
	n := len(waiters)
	if numToWake > 0 && int(numToWake) < n {
		n = int(numToWake)
	}
	for _, w := range waiters[:n] {
		a.removeFromWaitList(w)
		a.wakeThread(w, RESULT_SUCCESS)
	}
	return n
}

// removeFromWaitList takes the thread out of its address wait list,
// dropping the list entirely when it empties. Caller holds the scheduler
// lock.
func (a *AddressArbiter) removeFromWaitList(t *KThread) {
	addr := t.arbiterWaitAddress
	list := a.waitLists[addr]
	for i, w := range list {
		if w == t {
			list = append(list[:i], list[i+1:]...)
			if len(list) == 0 {
				delete(a.waitLists, addr)
			} else {
				a.waitLists[addr] = list
			}
			return
		}
	}
}

// wakeThread performs the WaitArb -> Ready transition: clear the wait
// address, deliver the result, cancel any armed timer and requeue at the
// thread's home core. Waking a thread that is not waiting indicates
// corruption and is fatal. Caller holds the scheduler lock.
func (a *AddressArbiter) wakeThread(t *KThread, result ResultCode) {
	if t.status != ThreadWaitArb {
		panic(fmt.Sprintf("address_arbiter: waking thread %d in state %v", t.ID, t.status))
	}
	if t.cancelWakeTimer != nil {
		t.cancelWakeTimer()
		t.cancelWakeTimer = nil
	}
	t.wakeDeadline = 0
	t.arbiterWaitAddress = 0
	t.waitResult = result
	if !t.affinityMask.Has(t.currentCore) {
		t.currentCore = t.affinityMask.LowestSet()
	}
	t.status = ThreadReady
	a.kernel.queue.Push(t)
	a.kernel.updateNeeded.Store(true)
}
