package process

import (
	"memhound/process/memory_map"
)

// ReadRequest is one item of a batched read.
type ReadRequest struct {
	Addr Address
	Size Size
}

// ReadResult is the per-item outcome of a batched read. A failed item never
// aborts its siblings.
type ReadResult struct {
	Addr Address
	Data []byte
	Err  error
}

// WriteRequest is one item of a batched write.
type WriteRequest struct {
	Addr Address
	Data []byte
}

// Target is the engine's view of a process whose memory can be cataloged,
// read and written. Implemented by the live Linux backend and by the
// in-memory snapshot backend.
//
// Every read and write is validated against the most recent region snapshot
// for range and permission before any primitive access is attempted; there
// is no bypass path.
type Target interface {
	// PID returns the target process id (0 for offline snapshots).
	PID() ProcessID

	// Alive reports whether the target process still exists. Once false,
	// memory operations fail with ErrAttachLost.
	Alive() bool

	// RefreshRegions rebuilds the region catalog wholesale and publishes
	// it atomically. Fails with ErrAttachLost when the process is gone.
	RefreshRegions() (*memory_map.Snapshot, error)

	// Regions returns the most recently published catalog snapshot.
	Regions() *memory_map.Snapshot

	// ReadMemory reads size bytes at addr under the given access mode.
	ReadMemory(addr Address, size Size, mode AccessMode) ([]byte, error)

	// WriteMemory writes data at addr under the given access mode.
	WriteMemory(addr Address, data []byte, mode AccessMode) error

	// ReadBatch performs independent reads, one result per request.
	ReadBatch(reqs []ReadRequest, mode AccessMode) []ReadResult

	// WriteBatch performs independent writes, one error slot per request.
	WriteBatch(reqs []WriteRequest, mode AccessMode) []error

	// Close releases backend resources. The target may not be used after.
	Close() error
}
