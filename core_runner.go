// core_runner.go - Emulated core host goroutines servicing reschedule interrupts

package main

import (
	"sync"
	"sync/atomic"
)

// CoreRunner is the host-side goroutine for one emulated core. The real
// machine would execute guest code between interrupts; this slice only
// models the scheduling boundary: a reschedule interrupt makes the runner
// leave its execution window and commit the core's next thread.
type CoreRunner struct {
	kernel  *Kernel
	core    int32
	owner   LockOwner
	pending atomic.Bool
	poke    chan struct{}
	stopCh  chan struct{}
	done    chan struct{}
}

// CoreRunnerSet owns the four runners and implements the CoreInterrupt port.
type CoreRunnerSet struct {
	runners [NUM_CPU_CORES]*CoreRunner
	stopped sync.Once
}

// StartCoreRunners creates and starts one runner per core and wires the set
// into the kernel as its interrupt port.
func StartCoreRunners(k *Kernel) *CoreRunnerSet {
	s := &CoreRunnerSet{}
	for c := int32(0); c < NUM_CPU_CORES; c++ {
		s.runners[c] = &CoreRunner{
			kernel: k,
			core:   c,
			owner:  k.NewLockOwner(),
			poke:   make(chan struct{}, 1),
			stopCh: make(chan struct{}),
			done:   make(chan struct{}),
		}
	}
	k.SetInterrupts(s)
	for _, r := range s.runners {
		go r.run()
	}
	return s
}

// PrepareReschedule delivers a cooperative interrupt to the named core:
// raise the pending flag and poke the runner. Never blocks; coalesces with
// an interrupt already in flight.
func (s *CoreRunnerSet) PrepareReschedule(core int32) {
	if core < 0 || core >= NUM_CPU_CORES {
		return
	}
	r := s.runners[core]
	r.pending.Store(true)
	select {
	case r.poke <- struct{}{}:
	default:
	}
}

// Stop shuts down all runners and waits for them to drain.
func (s *CoreRunnerSet) Stop() {
	s.stopped.Do(func() {
		for _, r := range s.runners {
			close(r.stopCh)
		}
	})
	for _, r := range s.runners {
		<-r.done
	}
}

func (r *CoreRunner) run() {
	defer close(r.done)
	for {
		select {
		case <-r.stopCh:
			return
		case <-r.poke:
			// Coalesced interrupts may have raised pending again while a
			// commit was in progress; drain before parking.
			for r.pending.Swap(false) {
				r.kernel.RescheduleCore(r.core, r.owner)
			}
		}
	}
}
