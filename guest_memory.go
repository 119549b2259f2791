// guest_memory.go - Guest address space for the IntuitionNX kernel core

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
guest_memory.go - Guest Address Space for the IntuitionNX kernel core

This module implements the guest virtual address space consumed by the address
arbiter and the rest of the kernel synchronization core. It provides a unified
interface for 32-bit guest memory operations over a contiguous backing block,
with page-granular mapping state so that validity checks mirror what the guest
MMU would report. The implementation emphasises thread safety and precise
control over the mapped layout, both of which are critical for faithful
emulation of the guest kernel's futex-style primitives.

Core Features:

    A contiguous backing block sized per machine configuration (64MB default).
    Page-granular map/unmap of address ranges, with validity derived from the
    mapping table rather than from raw bounds.
    Little-endian read/write operations for 32-bit data.
    Full reset capability to clear mapping state and memory contents.
    Thread-safe access implemented with a read/write mutex.

Technical Details:

    The GuestAddressSpace struct fulfils the GuestMemory interface. Pages are
    4KB (GUEST_PAGE_SIZE); a page index is derived by shifting the address by
    GUEST_PAGE_SHIFT. Mapping state is a per-page bitmap kept alongside the
    backing block. 32-bit values are accessed using binary.LittleEndian
    conversion routines, consistent with the guest CPU's data handling.

Concurrency:

    A sync.RWMutex protects mapping state and memory contents. The arbiter
    additionally serializes all of its accesses under the scheduler lock, so
    no arbitrated word is ever touched concurrently by two kernel operations;
    the mutex here guards against the monitor and diagnostics reading while
    guest code runs.
*/

package main

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// GuestMemory is the narrow port the kernel core consumes. Accesses are
// assumed to be serialized by the scheduler lock; no guest-side atomicity is
// required.
type GuestMemory interface {
	IsValid(addr uint64) bool
	Read32(addr uint64) uint32
	Write32(addr uint64, value uint32)
}

// GuestAddressSpace is the default GuestMemory implementation: a contiguous
// backing block with page-granular mapping state.
type GuestAddressSpace struct {
	mu     sync.RWMutex
	ram    []byte
	mapped []bool // one entry per page
}

// NewGuestAddressSpace allocates an address space of the given size, rounded
// up to a whole number of pages. No pages are mapped initially.
func NewGuestAddressSpace(size uint64) *GuestAddressSpace {
	if size == 0 {
		size = DEFAULT_GUEST_MEMORY_SIZE
	}
	pages := (size + GUEST_PAGE_SIZE - 1) >> GUEST_PAGE_SHIFT
	return &GuestAddressSpace{
		ram:    make([]byte, pages<<GUEST_PAGE_SHIFT),
		mapped: make([]bool, pages),
	}
}

// MapRegion marks the pages covering [base, base+size) as mapped. Base and
// size must be page-aligned.
func (g *GuestAddressSpace) MapRegion(base, size uint64) error {
	if base&(GUEST_PAGE_SIZE-1) != 0 || size&(GUEST_PAGE_SIZE-1) != 0 {
		return fmt.Errorf("guest_memory: region 0x%X+0x%X not page-aligned", base, size)
	}
	if base+size > uint64(len(g.ram)) {
		return fmt.Errorf("guest_memory: region 0x%X+0x%X exceeds address space", base, size)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for p := base >> GUEST_PAGE_SHIFT; p < (base+size)>>GUEST_PAGE_SHIFT; p++ {
		g.mapped[p] = true
	}
	return nil
}

// UnmapRegion clears the mapping for the pages covering [base, base+size).
func (g *GuestAddressSpace) UnmapRegion(base, size uint64) error {
	if base&(GUEST_PAGE_SIZE-1) != 0 || size&(GUEST_PAGE_SIZE-1) != 0 {
		return fmt.Errorf("guest_memory: region 0x%X+0x%X not page-aligned", base, size)
	}
	if base+size > uint64(len(g.ram)) {
		return fmt.Errorf("guest_memory: region 0x%X+0x%X exceeds address space", base, size)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for p := base >> GUEST_PAGE_SHIFT; p < (base+size)>>GUEST_PAGE_SHIFT; p++ {
		g.mapped[p] = false
	}
	return nil
}

// IsValid reports whether a 32-bit access at addr falls entirely within
// mapped pages.
func (g *GuestAddressSpace) IsValid(addr uint64) bool {
	if addr+4 > uint64(len(g.ram)) || addr+4 < addr {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mapped[addr>>GUEST_PAGE_SHIFT] && g.mapped[(addr+3)>>GUEST_PAGE_SHIFT]
}

// Read32 returns the little-endian 32-bit word at addr. The caller is
// expected to have checked IsValid first; out-of-range reads return zero.
func (g *GuestAddressSpace) Read32(addr uint64) uint32 {
	if addr+4 > uint64(len(g.ram)) {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return binary.LittleEndian.Uint32(g.ram[addr:])
}

// Write32 stores a little-endian 32-bit word at addr. Out-of-range writes
// are dropped.
func (g *GuestAddressSpace) Write32(addr uint64, value uint32) {
	if addr+4 > uint64(len(g.ram)) {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	binary.LittleEndian.PutUint32(g.ram[addr:], value)
}

// Reset clears all memory contents and unmaps every page.
func (g *GuestAddressSpace) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.ram)
	clear(g.mapped)
}

// Size returns the total address space size in bytes.
func (g *GuestAddressSpace) Size() uint64 {
	return uint64(len(g.ram))
}
