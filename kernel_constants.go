// kernel_constants.go - Guest kernel constants and result codes for IntuitionNX

package main

import "time"

// Emulated CPU core topology. The guest kernel schedules across four cores,
// matching the target hardware.
const (
	NUM_CPU_CORES         = 4
	THREAD_PRIORITY_COUNT = 64 // priorities 0..63, lower is more urgent

	THREAD_PRIORITY_HIGHEST = 0
	THREAD_PRIORITY_LOWEST  = THREAD_PRIORITY_COUNT - 1

	// Only threads at or above this priority (numerically at or below) are
	// eligible for cross-core rebalancing during the preemption tick.
	HIGHEST_MIGRATION_PRIORITY = 2

	// The guest scheduler's round-robin tick.
	PREEMPTION_INTERVAL = 10 * time.Millisecond
)

// Per-core priority level rotated by the preemption tick. Core 3 hosts the
// low-priority system threads, hence the distinct level.
var PreemptionPriorities = [NUM_CPU_CORES]int32{59, 59, 59, 63}

// ResultCode is a guest-visible kernel result word. Values follow the Horizon
// convention: module in the low 9 bits (kernel = 1), description above.
type ResultCode uint32

const (
	RESULT_SUCCESS               ResultCode = 0x0000
	RESULT_INVALID_ADDRESS_STATE ResultCode = 0xD401 // address not mapped in the guest address space
	RESULT_TIMED_OUT             ResultCode = 0xEA01 // wait deadline expired (or timeout of zero)
	RESULT_INVALID_STATE         ResultCode = 0xFA01 // compare precondition did not hold
)

// String names the result for monitor output and test failure messages.
func (r ResultCode) String() string {
	switch r {
	case RESULT_SUCCESS:
		return "Success"
	case RESULT_INVALID_ADDRESS_STATE:
		return "InvalidAddressState"
	case RESULT_TIMED_OUT:
		return "TimedOut"
	case RESULT_INVALID_STATE:
		return "InvalidState"
	}
	return "Unknown"
}

// Timeout sentinel values for the arbiter wait operations, in nanoseconds.
// Zero polls, negative waits forever.
const (
	TIMEOUT_IMMEDIATE int64 = 0
	TIMEOUT_INFINITE  int64 = -1
)
