// kernel_thread.go - Guest thread state for the IntuitionNX kernel core

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

import "fmt"

// ThreadStatus is the scheduling state of a guest thread.
type ThreadStatus int32

const (
	ThreadReady ThreadStatus = iota
	ThreadRunning
	ThreadWaitArb   // suspended on the address arbiter
	ThreadWaitOther // suspended on some other kernel primitive
	ThreadTerminated
)

// String names the status for monitor output.
func (s ThreadStatus) String() string {
	switch s {
	case ThreadReady:
		return "Ready"
	case ThreadRunning:
		return "Running"
	case ThreadWaitArb:
		return "WaitArb"
	case ThreadWaitOther:
		return "WaitOther"
	case ThreadTerminated:
		return "Terminated"
	}
	return "Invalid"
}

// CoreMask is a bitset over the four emulated cores.
type CoreMask uint8

const CORE_MASK_ALL CoreMask = (1 << NUM_CPU_CORES) - 1

// Has reports whether the given core is in the mask.
func (m CoreMask) Has(core int32) bool {
	return core >= 0 && core < NUM_CPU_CORES && m&(1<<uint(core)) != 0
}

// LowestSet returns the lowest core index in the mask, or -1 for an empty mask.
func (m CoreMask) LowestSet() int32 {
	for c := int32(0); c < NUM_CPU_CORES; c++ {
		if m.Has(c) {
			return c
		}
	}
	return -1
}

// KThread is a guest thread as seen by the scheduler and the address arbiter.
// The guest CPU context (registers, stack) lives with the execution engine
// and is out of scope here; this is purely the scheduling view.
//
// All fields below the owner token are guarded by the kernel scheduler lock.
// The monitor and diagnostics never read them directly; they go through
// TakeKernelSnapshot, which holds the lock.
type KThread struct {
	ID   uint64
	Name string

	// owner is this thread's scheduler-lock token, used for kernel
	// operations issued on its behalf.
	owner LockOwner

	priority           int32
	affinityMask       CoreMask
	currentCore        int32 // -1 until first placed on a queue
	status             ThreadStatus
	arbiterWaitAddress uint64 // non-zero only while status == ThreadWaitArb
	waitResult         ResultCode
	cancelWakeTimer    func() // non-nil while a timed wait is armed
	wakeDeadline       int64  // absolute monotonic ns, 0 when untimed
	waitSeq            uint64 // wait episode counter, fences stale timer fires
}

// NewKThread creates an unregistered guest thread. The kernel assigns its ID
// and lock token on AddThread.
func NewKThread(name string, priority int32, affinity CoreMask) (*KThread, error) {
	if priority < THREAD_PRIORITY_HIGHEST || priority > THREAD_PRIORITY_LOWEST {
		return nil, fmt.Errorf("kernel_thread: priority %d out of range", priority)
	}
	if affinity&CORE_MASK_ALL == 0 {
		return nil, fmt.Errorf("kernel_thread: empty affinity mask")
	}
	return &KThread{
		Name:         name,
		priority:     priority,
		affinityMask: affinity & CORE_MASK_ALL,
		currentCore:  -1,
		status:       ThreadReady,
	}, nil
}

// Priority returns the thread's priority. Caller must hold the scheduler lock.
func (t *KThread) Priority() int32 { return t.priority }

// Status returns the thread's scheduling state. Caller must hold the
// scheduler lock.
func (t *KThread) Status() ThreadStatus { return t.status }

// WaitResult returns the result delivered by the last wake. Caller must hold
// the scheduler lock.
func (t *KThread) WaitResult() ResultCode { return t.waitResult }

// CurrentCore returns the core the thread is queued or running on, -1 when
// unassigned. Caller must hold the scheduler lock.
func (t *KThread) CurrentCore() int32 { return t.currentCore }
