// Package process defines the shared types for working with a target
// process's memory: addresses, access modes, typed values and the Target
// interface implemented by the live and snapshot backends.
package process

import "fmt"

// Address is a virtual address inside the target process's address space.
// Target memory is never held as a managed reference, only as numeric keys
// into the foreign address space.
type Address uint64

func (a Address) String() string {
	return fmt.Sprintf("0x%X", uint64(a))
}

// Size is a byte count or offset magnitude in target memory.
type Size uint64

// PointerSize is the target word size in bytes. Only a single 64-bit
// little-endian target architecture is supported.
const PointerSize = 8

// ProcessID identifies a target process.
type ProcessID int

// AccessMode selects how the underlying read/write primitive behaves.
// It never changes the logical result type, only caching and fault behavior.
type AccessMode int

const (
	// ModeNormal reads through the page cache kept by the backend.
	ModeNormal AccessMode = iota

	// ModeWritethrough sends writes straight to the target while keeping
	// any cached pages coherent.
	ModeWritethrough

	// ModeNoCache bypasses and invalidates the backend's page cache.
	ModeNoCache

	// ModePgFault uses the access path that lets the kernel service page
	// faults, tolerating swapped or lazily committed pages.
	ModePgFault
)

func (m AccessMode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeWritethrough:
		return "writethrough"
	case ModeNoCache:
		return "nocache"
	case ModePgFault:
		return "pgfault"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// AccessModes lists every mode, in definition order.
var AccessModes = []AccessMode{ModeNormal, ModeWritethrough, ModeNoCache, ModePgFault}
