// kernel_snapshot.go - Point-in-time kernel state capture for diagnostics

package main

import "github.com/sugawarayuuta/sonnet"

// ThreadSnapshot is one thread's scheduling state at capture time.
type ThreadSnapshot struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Priority    int32  `json:"priority"`
	Core        int32  `json:"core"`
	Status      string `json:"status"`
	WaitAddress uint64 `json:"wait_address,omitempty"`
	WaitResult  string `json:"wait_result"`
}

// QueueSnapshot is one non-empty run-queue bucket in order.
type QueueSnapshot struct {
	Core      int32    `json:"core"`
	Priority  int32    `json:"priority"`
	ThreadIDs []uint64 `json:"threads"`
}

// WaitListSnapshot is one arbitrated address and its waiters in wake order.
type WaitListSnapshot struct {
	Address   uint64   `json:"address"`
	ThreadIDs []uint64 `json:"threads"`
}

// KernelSnapshot is a consistent capture of scheduler and arbiter state,
// taken under the scheduler lock. Purely diagnostic; nothing is restored
// from it.
type KernelSnapshot struct {
	TakenAt   int64              `json:"taken_at_ns"`
	Threads   []ThreadSnapshot   `json:"threads"`
	Queues    []QueueSnapshot    `json:"queues"`
	WaitLists []WaitListSnapshot `json:"wait_lists"`
}

// TakeKernelSnapshot captures the current state under the scheduler lock.
func TakeKernelSnapshot(k *Kernel, arb *AddressArbiter, owner LockOwner) *KernelSnapshot {
	k.Lock(owner)
	defer k.Unlock(owner)

	snap := &KernelSnapshot{TakenAt: k.clock.Now()}

	for _, t := range k.Threads() {
		snap.Threads = append(snap.Threads, ThreadSnapshot{
			ID:          t.ID,
			Name:        t.Name,
			Priority:    t.priority,
			Core:        t.currentCore,
			Status:      t.status.String(),
			WaitAddress: t.arbiterWaitAddress,
			WaitResult:  t.waitResult.String(),
		})
	}

	for c := int32(0); c < NUM_CPU_CORES; c++ {
		for p := int32(0); p < THREAD_PRIORITY_COUNT; p++ {
			bucket := k.queue.Bucket(c, p)
			if len(bucket) == 0 {
				continue
			}
			qs := QueueSnapshot{Core: c, Priority: p}
			for _, t := range bucket {
				qs.ThreadIDs = append(qs.ThreadIDs, t.ID)
			}
			snap.Queues = append(snap.Queues, qs)
		}
	}

	if arb != nil {
		for _, addr := range arb.WaitAddresses() {
			ws := WaitListSnapshot{Address: addr}
			for _, t := range arb.Waiters(addr) {
				ws.ThreadIDs = append(ws.ThreadIDs, t.ID)
			}
			snap.WaitLists = append(snap.WaitLists, ws)
		}
	}
	return snap
}

// JSON renders the snapshot for the monitor and for log capture.
func (s *KernelSnapshot) JSON() ([]byte, error) {
	return sonnet.MarshalIndent(s, "", "  ")
}
