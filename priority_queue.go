// priority_queue.go - Multi-level run queue for the IntuitionNX kernel core

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
priority_queue.go - Multi-Level Run Queue

This module implements the guest scheduler's run queue: one FIFO bucket per
(core, priority) pair over four cores and 64 priority levels, plus a per-core
occupancy bitmask so that finding the most urgent runnable thread is a single
trailing-zero scan. 64 priority levels fit a uint64 exactly, with bit p set
when bucket (core, p) is non-empty.

Insertion is at the tail of a bucket and removal preserves order, which gives
the arbiter its FIFO-within-priority wake guarantee for free. Rotation moves
a bucket's head to its tail and is the primitive behind the 10ms round-robin
preemption tick.

The queue carries no locking of its own: every mutation happens under the
kernel scheduler lock.
*/

package main

import (
	"fmt"
	"math/bits"
)

// PriorityQueue is the multi-level run queue. Not safe for concurrent use;
// callers hold the scheduler lock.
type PriorityQueue struct {
	buckets  [NUM_CPU_CORES][THREAD_PRIORITY_COUNT][]*KThread
	occupied [NUM_CPU_CORES]uint64 // bit p set when bucket (core, p) is non-empty
}

// NewPriorityQueue returns an empty run queue.
func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{}
}

// Push appends the thread to the tail of its (currentCore, priority) bucket.
// The thread's current core must be inside its affinity mask; a violation
// indicates scheduler corruption and is fatal.
func (q *PriorityQueue) Push(t *KThread) {
	if !t.affinityMask.Has(t.currentCore) {
		panic(fmt.Sprintf("priority_queue: thread %d queued on core %d outside affinity mask %04b",
			t.ID, t.currentCore, t.affinityMask))
	}
	c, p := t.currentCore, t.priority
	q.buckets[c][p] = append(q.buckets[c][p], t)
	q.occupied[c] |= 1 << uint(p)
}

// Remove takes the thread out of its bucket, preserving the order of the
// remaining entries. No-op if the thread is not queued.
func (q *PriorityQueue) Remove(t *KThread) {
	c := t.currentCore
	if c < 0 || c >= NUM_CPU_CORES {
		return
	}
	p := t.priority
	bucket := q.buckets[c][p]
	for i, qt := range bucket {
		if qt == t {
			q.buckets[c][p] = append(bucket[:i], bucket[i+1:]...)
			if len(q.buckets[c][p]) == 0 {
				q.occupied[c] &^= 1 << uint(p)
			}
			return
		}
	}
}

// Front returns the head of the highest-priority non-empty bucket on the
// given core, or nil when the core has no runnable threads.
func (q *PriorityQueue) Front(core int32) *KThread {
	occ := q.occupied[core]
	if occ == 0 {
		return nil
	}
	p := bits.TrailingZeros64(occ)
	return q.buckets[core][p][0]
}

// FrontAt returns the head of a specific (core, priority) bucket, or nil.
func (q *PriorityQueue) FrontAt(core, priority int32) *KThread {
	bucket := q.buckets[core][priority]
	if len(bucket) == 0 {
		return nil
	}
	return bucket[0]
}

// Rotate moves the head of the (core, priority) bucket to its tail. No-op
// when the bucket has fewer than two entries.
func (q *PriorityQueue) Rotate(core, priority int32) {
	bucket := q.buckets[core][priority]
	if len(bucket) < 2 {
		return
	}
	head := bucket[0]
	copy(bucket, bucket[1:])
	bucket[len(bucket)-1] = head
}

// Contains reports whether the thread is present in its (currentCore,
// priority) bucket.
func (q *PriorityQueue) Contains(t *KThread) bool {
	c := t.currentCore
	if c < 0 || c >= NUM_CPU_CORES {
		return false
	}
	for _, qt := range q.buckets[c][t.priority] {
		if qt == t {
			return true
		}
	}
	return false
}

// BucketLen returns the number of threads queued at (core, priority).
func (q *PriorityQueue) BucketLen(core, priority int32) int {
	return len(q.buckets[core][priority])
}

// Bucket returns the ordered contents of a (core, priority) bucket. The
// returned slice is a copy.
func (q *PriorityQueue) Bucket(core, priority int32) []*KThread {
	bucket := q.buckets[core][priority]
	out := make([]*KThread, len(bucket))
	copy(out, bucket)
	return out
}

// TotalLen returns the number of queued threads across all cores.
func (q *PriorityQueue) TotalLen() int {
	n := 0
	for c := range q.buckets {
		for p := range q.buckets[c] {
			n += len(q.buckets[c][p])
		}
	}
	return n
}
