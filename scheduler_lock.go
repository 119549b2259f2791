// scheduler_lock.go - Reentrant scheduler lock for the IntuitionNX kernel core

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
scheduler_lock.go - Reentrant Scheduler Lock

This module implements the single lock that serializes every scheduler-state
mutation in the guest kernel: arbiter operations, preemption, thread
placement and the per-core reschedule commits all run under it.

The lock is reentrant and owner-tracked. Go deliberately hides goroutine
identity, so owners are explicit LockOwner tokens: every locker in the
emulator (core runners, wake timers, guest threads, the monitor) holds one.
Nested acquisition by the same owner is counted; only the outermost release
runs the reschedule epilogue, which consults the run queue, decides which
cores must switch threads, and fans out reschedule interrupts through the
core interrupt port. That epilogue is the only place in the kernel that
emits reschedule interrupts - mutators just set the update flag and rely on
their unwind passing through here.
*/

package main

import (
	"fmt"
	"sync"
)

// LockOwner identifies a scheduler-lock holder. Zero is reserved for "not
// held". Tokens come from Kernel.NewLockOwner.
type LockOwner int64

// SchedulerLock is the reentrant kernel scheduler lock.
type SchedulerLock struct {
	kernel *Kernel

	mu    sync.Mutex
	cond  *sync.Cond
	owner LockOwner
	depth int32
}

func newSchedulerLock(k *Kernel) *SchedulerLock {
	l := &SchedulerLock{kernel: k}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Lock blocks until the calling owner holds the scheduler lock. Reentrant:
// nested calls by the same owner increment a count.
func (l *SchedulerLock) Lock(owner LockOwner) {
	if owner == 0 {
		panic("scheduler_lock: zero lock owner")
	}
	l.mu.Lock()
	if l.owner == owner {
		l.depth++
		l.mu.Unlock()
		return
	}
	for l.owner != 0 {
		l.cond.Wait()
	}
	l.owner = owner
	l.depth = 1
	l.mu.Unlock()
}

// IsLockedBy reports whether the given owner currently holds the lock.
func (l *SchedulerLock) IsLockedBy(owner LockOwner) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner == owner
}

// Unlock releases one level of the lock. On the transition to fully
// released it runs the reschedule epilogue: if the update flag is set, the
// next thread for every core is recomputed from the run queue, and each
// core whose selection changed receives exactly one reschedule interrupt.
func (l *SchedulerLock) Unlock(owner LockOwner) {
	l.mu.Lock()
	if l.owner != owner {
		l.mu.Unlock()
		panic(fmt.Sprintf("scheduler_lock: unlock by non-owner %d (held by %d)", owner, l.owner))
	}
	if l.depth > 1 {
		l.depth--
		l.mu.Unlock()
		return
	}

	// Still the owner here: selection must happen before anyone else can
	// take the lock, so a woken thread is never observed Ready but absent
	// from the selection it should appear in.
	cores := l.kernel.selectThreads()

	l.owner = 0
	l.depth = 0
	l.cond.Signal()
	l.mu.Unlock()

	// Interrupt delivery is flag-and-poke; safe outside the lock and kept
	// there so a runner servicing the interrupt can take the lock at once.
	for _, c := range cores {
		l.kernel.interrupts.PrepareReschedule(c)
	}
}
