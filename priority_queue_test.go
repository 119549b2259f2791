package main

import "testing"

// TestPriorityQueueFrontPicksMostUrgent verifies that Front returns the head
// of the lowest-numbered non-empty priority bucket.
func TestPriorityQueueFrontPicksMostUrgent(t *testing.T) {
	q := NewPriorityQueue()
	low := queueThread(t, "low", 40, 0)
	high := queueThread(t, "high", 5, 0)
	mid := queueThread(t, "mid", 20, 0)
	q.Push(low)
	q.Push(high)
	q.Push(mid)

	if got := q.Front(0); got != high {
		t.Fatalf("Front(0) = %v, expected high-priority thread", got.Name)
	}
	if got := q.Front(1); got != nil {
		t.Fatalf("Front(1) = %v, expected nil for idle core", got.Name)
	}
}

// TestPriorityQueueFIFOWithinPriority verifies insertion order within one
// bucket: pushes append at the tail.
func TestPriorityQueueFIFOWithinPriority(t *testing.T) {
	q := NewPriorityQueue()
	a := queueThread(t, "a", 10, 2)
	b := queueThread(t, "b", 10, 2)
	c := queueThread(t, "c", 10, 2)
	q.Push(a)
	q.Push(b)
	q.Push(c)

	bucket := q.Bucket(2, 10)
	if len(bucket) != 3 || bucket[0] != a || bucket[1] != b || bucket[2] != c {
		t.Fatalf("bucket order wrong: %v", names(bucket))
	}
}

// TestPriorityQueueRemovePreservesOrder verifies that removing a middle
// entry keeps the rest in order and that emptying a bucket clears it from
// the occupancy scan.
func TestPriorityQueueRemovePreservesOrder(t *testing.T) {
	q := NewPriorityQueue()
	a := queueThread(t, "a", 10, 0)
	b := queueThread(t, "b", 10, 0)
	c := queueThread(t, "c", 10, 0)
	q.Push(a)
	q.Push(b)
	q.Push(c)

	q.Remove(b)
	bucket := q.Bucket(0, 10)
	if len(bucket) != 2 || bucket[0] != a || bucket[1] != c {
		t.Fatalf("after Remove(b), bucket = %v", names(bucket))
	}

	q.Remove(a)
	q.Remove(c)
	if got := q.Front(0); got != nil {
		t.Fatalf("Front(0) = %v after emptying, expected nil", got.Name)
	}

	// Removing an absent thread is a no-op.
	q.Remove(b)
	if q.TotalLen() != 0 {
		t.Fatalf("TotalLen = %d, expected 0", q.TotalLen())
	}
}

// TestPriorityQueueRotate verifies head-to-tail rotation and that rotating
// empty or single-entry buckets is a no-op.
func TestPriorityQueueRotate(t *testing.T) {
	q := NewPriorityQueue()
	a := queueThread(t, "a", 44, 0)
	b := queueThread(t, "b", 44, 0)
	c := queueThread(t, "c", 44, 0)
	q.Push(a)
	q.Push(b)
	q.Push(c)

	q.Rotate(0, 44)
	bucket := q.Bucket(0, 44)
	if bucket[0] != b || bucket[1] != c || bucket[2] != a {
		t.Fatalf("after Rotate, bucket = %v, expected [b c a]", names(bucket))
	}

	q.Rotate(0, 50) // empty bucket
	q.Push(queueThread(t, "solo", 50, 0))
	q.Rotate(0, 50) // single entry
	if q.BucketLen(0, 50) != 1 {
		t.Fatalf("single-entry rotate corrupted bucket")
	}
}

// TestPriorityQueuePushOutsideAffinityPanics verifies the corruption guard:
// queueing a thread on a core outside its affinity mask is fatal.
func TestPriorityQueuePushOutsideAffinityPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("Push outside affinity mask did not panic")
		}
	}()
	q := NewPriorityQueue()
	th, err := NewKThread("pinned", 10, CoreMask(1<<0))
	if err != nil {
		t.Fatalf("NewKThread failed: %v", err)
	}
	th.currentCore = 3
	q.Push(th)
}

func names(threads []*KThread) []string {
	out := make([]string, len(threads))
	for i, th := range threads {
		out[i] = th.Name
	}
	return out
}
