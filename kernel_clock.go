// kernel_clock.go - Monotonic clock and wake timers for the kernel core

package main

import (
	"sort"
	"sync"
	"time"
)

// Clock is the time source the kernel core consumes: a monotonic now() plus
// single-shot timers for arbiter wait deadlines. ArmTimer returns a cancel
// function; cancellation after the fire routine has started is a no-op, the
// fire routine itself resolves the race under the scheduler lock.
type Clock interface {
	Now() int64
	ArmTimer(deadline int64, fire func()) (cancel func())
}

// SystemClock is the production clock: host monotonic time via time.Since
// and time.AfterFunc single-shot timers.
type SystemClock struct {
	base time.Time
}

// NewSystemClock returns a clock whose epoch is the moment of creation.
func NewSystemClock() *SystemClock {
	return &SystemClock{base: time.Now()}
}

// Now returns monotonic nanoseconds since the clock epoch.
func (c *SystemClock) Now() int64 {
	return time.Since(c.base).Nanoseconds()
}

// ArmTimer schedules fire at the given absolute deadline. Deadlines already
// in the past fire immediately from the timer goroutine.
func (c *SystemClock) ArmTimer(deadline int64, fire func()) (cancel func()) {
	d := time.Duration(deadline - c.Now())
	if d < 0 {
		d = 0
	}
	t := time.AfterFunc(d, fire)
	return func() { t.Stop() }
}

// ManualClock is a test clock: time only moves when Advance is called, and
// due timers fire synchronously on the advancing goroutine.
type ManualClock struct {
	mu     sync.Mutex
	now    int64
	nextID int
	timers map[int]*manualTimer
}

type manualTimer struct {
	deadline int64
	fire     func()
}

// NewManualClock returns a manual clock at time zero.
func NewManualClock() *ManualClock {
	return &ManualClock{timers: make(map[int]*manualTimer)}
}

// Now returns the current manual time.
func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// ArmTimer registers a timer; it fires during an Advance that reaches its
// deadline.
func (c *ManualClock) ArmTimer(deadline int64, fire func()) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.timers[id] = &manualTimer{deadline: deadline, fire: fire}
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.timers, id)
		c.mu.Unlock()
	}
}

// Advance moves time forward and fires every due timer in deadline order.
// Fire routines run without the clock mutex held, so they are free to arm
// or cancel timers.
func (c *ManualClock) Advance(ns int64) {
	c.mu.Lock()
	c.now += ns
	var due []*manualTimer
	for id, t := range c.timers {
		if t.deadline <= c.now {
			due = append(due, t)
			delete(c.timers, id)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].deadline < due[j].deadline })
	for _, t := range due {
		t.fire()
	}
}
