// Package chainscan discovers chains of pointer dereferences that resolve
// to a queried target address, scored for stability across repeated
// snapshots of the live target.
package chainscan

import (
	"fmt"
	"strings"

	"memhound/process"
	"memhound/process/memory_map"
)

// Chain is one discovered pointer path. The walk starts at the base slot,
// reads a target word there, subtracts Offsets[0] to get the next slot, and
// so on; after the last step the result is the queried target address.
//
// The base is kept region-relative so chains survive ASLR: the same chain
// found in two snapshots with shifted absolute bases compares equal.
type Chain struct {
	// BaseRegion identifies the region owning the base slot: the backing
	// path plus an ordinal among same-path regions of the snapshot.
	BaseRegion string

	// BaseOffset is the base slot's offset from its region start.
	BaseOffset process.Size

	// Offsets holds, per dereference step, the stored pointer value minus
	// the step's target address.
	Offsets []int64

	// Score counts the snapshot passes that reproduced the chain.
	Score int
}

// Depth returns the number of dereference steps.
func (c Chain) Depth() int {
	return len(c.Offsets)
}

// TotalOffset returns the summed offset magnitude, the final ranking key.
func (c Chain) TotalOffset() uint64 {
	var total uint64
	for _, d := range c.Offsets {
		if d < 0 {
			total += uint64(-d)
		} else {
			total += uint64(d)
		}
	}
	return total
}

func (c Chain) key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s+%#x", c.BaseRegion, uint64(c.BaseOffset))
	for _, d := range c.Offsets {
		fmt.Fprintf(&b, ":%d", d)
	}
	return b.String()
}

func (c Chain) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s+%#x", c.BaseRegion, uint64(c.BaseOffset))
	for _, d := range c.Offsets {
		fmt.Fprintf(&b, " -> %+#x", d)
	}
	fmt.Fprintf(&b, " (score %d)", c.Score)
	return b.String()
}

// Resolve re-walks the chain against the target's current catalog and
// returns the address it lands on.
func (c Chain) Resolve(t process.Target, mode process.AccessMode) (process.Address, error) {
	snap := t.Regions()
	if snap == nil {
		return 0, process.ErrAttachLost
	}

	base, ok := findRegionByKey(snap, c.BaseRegion)
	if !ok {
		return 0, fmt.Errorf("%w: base region %s not mapped", process.ErrOutOfRange, c.BaseRegion)
	}

	addr := process.Address(base.Start) + process.Address(c.BaseOffset)
	for i, d := range c.Offsets {
		raw, err := t.ReadMemory(addr, process.PointerSize, mode)
		if err != nil {
			return 0, fmt.Errorf("chain step %d at %s: %w", i, addr, err)
		}
		addr = process.Address(int64(process.DecodePointer(raw)) - d)
	}
	return addr, nil
}

// regionKeys maps each region's start address to its stable identity:
// backing path (or kind for anonymous maps) plus an ordinal among same-path
// regions in address order.
func regionKeys(snap *memory_map.Snapshot) map[uint64]string {
	keys := make(map[uint64]string)
	ordinals := make(map[string]int)
	for _, r := range snap.Regions() {
		name := r.Path
		if name == "" {
			name = r.Kind.String()
		}
		n := ordinals[name]
		ordinals[name] = n + 1
		keys[r.Start] = fmt.Sprintf("%s#%d", name, n)
	}
	return keys
}

func findRegionByKey(snap *memory_map.Snapshot, key string) (memory_map.Region, bool) {
	for start, k := range regionKeys(snap) {
		if k == key {
			if r := snap.Find(start); r != nil {
				return *r, true
			}
		}
	}
	return memory_map.Region{}, false
}
