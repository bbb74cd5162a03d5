// Package process_snapshot implements process.Target over in-memory region
// buffers. It serves two jobs: offline analysis of saved memory dumps, and a
// synthetic memory source for exercising the engine without a live process.
package process_snapshot

import (
	"fmt"
	"sync"
	"sync/atomic"

	"memhound/process"
	"memhound/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

type regionData struct {
	region memory_map.Region
	data   []byte
}

// SnapshotTarget is a process.Target backed by local memory.
type SnapshotTarget struct {
	log *logger.Logger

	mu      sync.Mutex
	regions []regionData
	alive   bool

	// faults maps addresses to a countdown of injected fault errors,
	// consumed by reads and writes touching the address.
	faults map[uint64]int

	snapshot atomic.Value
}

// New creates an empty, alive snapshot target.
func New() *SnapshotTarget {
	t := &SnapshotTarget{
		log:    logger.NewLogger(coloransi.Color(coloransi.ColorTeal, coloransi.ColorOrange, "snapshot")),
		alive:  true,
		faults: make(map[uint64]int),
	}
	t.snapshot.Store(memory_map.NewSnapshot(nil))
	return t
}

// AddRegion installs a region with its backing bytes. data length must match
// the region size.
func (t *SnapshotTarget) AddRegion(region memory_map.Region, data []byte) error {
	if uint64(len(data)) != region.Size() {
		return fmt.Errorf("region %s wants %d bytes, got %d", region, region.Size(), len(data))
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	t.mu.Lock()
	t.regions = append(t.regions, regionData{region: region, data: buf})
	t.mu.Unlock()

	t.publish()
	return nil
}

func (t *SnapshotTarget) publish() {
	t.mu.Lock()
	rs := make([]memory_map.Region, len(t.regions))
	for i, rd := range t.regions {
		rs[i] = rd.region
	}
	t.mu.Unlock()
	t.snapshot.Store(memory_map.NewSnapshot(rs))
}

// SetBytes mutates backing memory directly, ignoring permissions. This is
// the hook for simulating the target process changing its own state.
func (t *SnapshotTarget) SetBytes(addr process.Address, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rd := t.findLocked(uint64(addr), uint64(len(data)))
	if rd == nil {
		return fmt.Errorf("%w: %s", process.ErrOutOfRange, addr)
	}
	copy(rd.data[uint64(addr)-rd.region.Start:], data)
	return nil
}

// SetAlive flips liveness; false simulates the target process exiting.
func (t *SnapshotTarget) SetAlive(alive bool) {
	t.mu.Lock()
	t.alive = alive
	t.mu.Unlock()
}

// FaultNext injects count fault errors on accesses touching addr, for
// exercising the bounded retry path.
func (t *SnapshotTarget) FaultNext(addr process.Address, count int) {
	t.mu.Lock()
	t.faults[uint64(addr)] = count
	t.mu.Unlock()
}

func (t *SnapshotTarget) findLocked(addr, size uint64) *regionData {
	for i := range t.regions {
		if t.regions[i].region.ContainsRange(addr, size) {
			return &t.regions[i]
		}
	}
	return nil
}

// PID returns 0: snapshots have no live process.
func (t *SnapshotTarget) PID() process.ProcessID {
	return 0
}

// Alive reports the simulated liveness flag.
func (t *SnapshotTarget) Alive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alive
}

// RefreshRegions republishes the catalog from the current region set.
func (t *SnapshotTarget) RefreshRegions() (*memory_map.Snapshot, error) {
	if !t.Alive() {
		return nil, process.ErrAttachLost
	}
	t.publish()
	return t.Regions(), nil
}

// Regions returns the current catalog snapshot.
func (t *SnapshotTarget) Regions() *memory_map.Snapshot {
	snap, _ := t.snapshot.Load().(*memory_map.Snapshot)
	return snap
}

func (t *SnapshotTarget) access(addr process.Address, size process.Size, perm memory_map.PermSet) (*regionData, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.alive {
		return nil, process.ErrAttachLost
	}
	if n, ok := t.faults[uint64(addr)]; ok && n > 0 {
		t.faults[uint64(addr)] = n - 1
		return nil, fmt.Errorf("%w: injected at %s", process.ErrFaulted, addr)
	}
	rd := t.findLocked(uint64(addr), uint64(size))
	if rd == nil {
		return nil, fmt.Errorf("%w: %s+%d", process.ErrOutOfRange, addr, size)
	}
	if !rd.region.Perms.Has(perm) {
		return nil, fmt.Errorf("%w: %s is %s", process.ErrPermissionDenied, addr, rd.region.Perms)
	}
	return rd, nil
}

// ReadMemory reads size bytes at addr. All access modes behave identically
// against local memory; validation semantics match the live backend.
func (t *SnapshotTarget) ReadMemory(addr process.Address, size process.Size, mode process.AccessMode) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	rd, err := t.access(addr, size, memory_map.Read)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, size)
	copy(out, rd.data[uint64(addr)-rd.region.Start:])
	return out, nil
}

// WriteMemory writes data at addr, requiring the write permission bit.
func (t *SnapshotTarget) WriteMemory(addr process.Address, data []byte, mode process.AccessMode) error {
	if len(data) == 0 {
		return nil
	}
	rd, err := t.access(addr, process.Size(len(data)), memory_map.Write)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	copy(rd.data[uint64(addr)-rd.region.Start:], data)
	return nil
}

// ReadBatch performs independent reads, one result per request.
func (t *SnapshotTarget) ReadBatch(reqs []process.ReadRequest, mode process.AccessMode) []process.ReadResult {
	results := make([]process.ReadResult, len(reqs))
	for i, req := range reqs {
		data, err := t.ReadMemory(req.Addr, req.Size, mode)
		results[i] = process.ReadResult{Addr: req.Addr, Data: data, Err: err}
	}
	return results
}

// WriteBatch performs independent writes, one error slot per request.
func (t *SnapshotTarget) WriteBatch(reqs []process.WriteRequest, mode process.AccessMode) []error {
	errs := make([]error, len(reqs))
	for i, req := range reqs {
		errs[i] = t.WriteMemory(req.Addr, req.Data, mode)
	}
	return errs
}

// Close marks the snapshot dead.
func (t *SnapshotTarget) Close() error {
	t.SetAlive(false)
	return nil
}
