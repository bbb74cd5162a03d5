package engine

import (
	"errors"
	"sync"
	"time"

	"memhound/process"

	"github.com/Moonlight-Companies/gologger/logger"
)

// FreezeID identifies a registered frozen write.
type FreezeID uint64

type freezeEntry struct {
	id    FreezeID
	addr  process.Address
	value process.Value
	mode  process.AccessMode

	// failed entries are skipped on subsequent ticks without affecting
	// their siblings
	failed bool
}

// freezer re-applies registered writes on a low-frequency ticker. Writes to
// the same address from the facade are serialized against the ticker by the
// handle's per-address locks.
type freezer struct {
	handle   *Handle
	log      *logger.Logger
	interval time.Duration

	mu      sync.Mutex
	entries map[FreezeID]*freezeEntry
	nextID  FreezeID
	stop    chan struct{}
	running bool
}

func newFreezer(h *Handle, log *logger.Logger, interval time.Duration) *freezer {
	return &freezer{
		handle:   h,
		log:      log,
		interval: interval,
		entries:  make(map[FreezeID]*freezeEntry),
	}
}

// register adds a frozen write and starts the ticker loop on first use.
func (f *freezer) register(addr process.Address, value process.Value, mode process.AccessMode) FreezeID {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := f.nextID
	f.entries[id] = &freezeEntry{id: id, addr: addr, value: value, mode: mode}

	if !f.running {
		f.running = true
		f.stop = make(chan struct{})
		go f.loop(f.stop)
	}
	return id
}

// unregister removes a frozen write; reports whether it existed.
func (f *freezer) unregister(id FreezeID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[id]
	delete(f.entries, id)
	return ok
}

// shutdown stops the loop and clears all registrations.
func (f *freezer) shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		close(f.stop)
		f.running = false
	}
	f.entries = make(map[FreezeID]*freezeEntry)
}

func (f *freezer) snapshotEntries() []*freezeEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*freezeEntry, 0, len(f.entries))
	for _, e := range f.entries {
		if !e.failed {
			out = append(out, e)
		}
	}
	return out
}

func (f *freezer) loop(stop chan struct{}) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !f.tick() {
				return
			}
		}
	}
}

// tick re-applies every live entry once. Returns false when the target is
// gone and the loop should end.
func (f *freezer) tick() bool {
	for _, e := range f.snapshotEntries() {
		err := f.handle.writeSerialized(e.addr, e.value.Raw, e.mode)
		if err == nil {
			continue
		}
		if errors.Is(err, process.ErrAttachLost) {
			f.log.Warn("Freeze loop stopping, target gone")
			return false
		}
		f.log.Warn("Freeze write failed, skipping address", e.addr, err)
		f.mu.Lock()
		e.failed = true
		f.mu.Unlock()
	}
	return true
}
