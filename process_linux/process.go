//go:build linux

// Package process_linux implements process.Target for a live Linux process,
// using process_vm_readv/process_vm_writev for bulk access and
// /proc/<pid>/mem for the fault-tolerant path.
package process_linux

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"memhound/process"
	"memhound/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	lru "github.com/hashicorp/golang-lru"
)

const (
	pageSize      = 4096
	cachePages    = 256
	maxFaultRetry = 3
)

// LinuxTarget implements the process.Target interface for Linux systems.
type LinuxTarget struct {
	pid  process.ProcessID
	log  *logger.Logger
	mem  *os.File
	dead atomic.Bool

	// snapshot holds the current *memory_map.Snapshot, published
	// atomically so readers never see a partially rebuilt catalog.
	snapshot atomic.Value

	// cache holds recently read pages, keyed by page base address.
	// Serves ModeNormal reads, kept coherent by the write paths.
	cache *lru.Cache

	mu sync.Mutex
}

// Attach opens a live process for memory operations. The caller supplies a
// PID already verified by the privilege-elevation collaborator; Attach still
// refuses to proceed without root since every access would fail anyway.
func Attach(pid process.ProcessID) (*LinuxTarget, error) {
	if os.Geteuid() != 0 {
		return nil, process.ErrNotRoot
	}
	if !procExists(int(pid)) {
		return nil, fmt.Errorf("%w: pid %d", process.ErrProcessNotFound, pid)
	}

	mem, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", pid), os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open mem: %v", process.ErrAttachFailed, err)
	}

	cache, err := lru.New(cachePages)
	if err != nil {
		mem.Close()
		return nil, fmt.Errorf("%w: %v", process.ErrAttachFailed, err)
	}

	t := &LinuxTarget{
		pid:   pid,
		log:   logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("target-%d", pid))),
		mem:   mem,
		cache: cache,
	}

	if _, err := t.RefreshRegions(); err != nil {
		mem.Close()
		return nil, fmt.Errorf("%w: initial catalog refresh: %v", process.ErrAttachFailed, err)
	}

	t.log.Infoln("Attached, cataloged", t.Regions().Len(), "regions")

	return t, nil
}

// PID returns the attached process id.
func (t *LinuxTarget) PID() process.ProcessID {
	return t.pid
}

// Alive reports whether the target process still exists.
func (t *LinuxTarget) Alive() bool {
	if t.dead.Load() {
		return false
	}
	if !probeAlive(int(t.pid)) {
		t.markDead()
		return false
	}
	return true
}

func (t *LinuxTarget) markDead() {
	if !t.dead.Swap(true) {
		t.log.Warn("Target process exited")
	}
}

// RefreshRegions rebuilds the region catalog from /proc/<pid>/maps and
// publishes the new snapshot atomically.
func (t *LinuxTarget) RefreshRegions() (*memory_map.Snapshot, error) {
	if t.dead.Load() {
		return nil, process.ErrAttachLost
	}

	regions, err := memory_map.ReadProcessMaps(int(t.pid))
	if err != nil {
		if !probeAlive(int(t.pid)) {
			t.markDead()
			return nil, process.ErrAttachLost
		}
		return nil, fmt.Errorf("read memory map: %w", err)
	}

	snap := memory_map.NewSnapshot(regions)
	t.snapshot.Store(snap)
	return snap, nil
}

// Regions returns the most recently published catalog snapshot.
func (t *LinuxTarget) Regions() *memory_map.Snapshot {
	snap, _ := t.snapshot.Load().(*memory_map.Snapshot)
	return snap
}

// Close releases the backend resources. The target may not be used after.
func (t *LinuxTarget) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.log.Infoln("Closing target")
	t.cache.Purge()
	if t.mem != nil {
		err := t.mem.Close()
		t.mem = nil
		return err
	}
	return nil
}
