// guest_memory_constants.go - Guest address space layout constants

package main

// Guest pages are 4KB, matching the target hardware MMU granularity.
const (
	GUEST_PAGE_SHIFT = 12
	GUEST_PAGE_SIZE  = 1 << GUEST_PAGE_SHIFT

	DEFAULT_GUEST_MEMORY_SIZE = 64 * 1024 * 1024
)
