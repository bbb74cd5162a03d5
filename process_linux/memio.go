//go:build linux

package process_linux

import (
	"errors"
	"fmt"
	"time"

	"memhound/process"
	"memhound/process/memory_map"
)

// validate checks an access against the current catalog snapshot before any
// syscall is attempted. Range misses and permission mismatches fail fast and
// are never retried.
func (t *LinuxTarget) validate(addr process.Address, size process.Size, perm memory_map.PermSet) (*memory_map.Region, error) {
	if t.dead.Load() {
		return nil, process.ErrAttachLost
	}
	snap := t.Regions()
	if snap == nil {
		return nil, process.ErrAttachLost
	}
	region := snap.FindRange(uint64(addr), uint64(size))
	if region == nil {
		return nil, fmt.Errorf("%w: %s+%d", process.ErrOutOfRange, addr, size)
	}
	if !region.Perms.Has(perm) {
		return nil, fmt.Errorf("%w: %s is %s", process.ErrPermissionDenied, addr, region.Perms)
	}
	return region, nil
}

// retryFaults runs one primitive access, retrying only fault errors up to
// maxFaultRetry with a short backoff. Every other failure, permission and
// range misses included, surfaces on the first attempt.
func retryFaults(op func() error) error {
	var err error
	for attempt := 0; attempt <= maxFaultRetry; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Millisecond << (attempt - 1))
		}
		err = op()
		if err == nil || !errors.Is(err, process.ErrFaulted) {
			return err
		}
	}
	return err
}

// retryAccess wraps retryFaults with the target's bookkeeping: ESRCH flips
// the target to dead, exhausted retries are logged.
func (t *LinuxTarget) retryAccess(op func() error) error {
	err := retryFaults(op)
	switch {
	case err == nil:
	case errors.Is(err, process.ErrAttachLost):
		t.markDead()
	case errors.Is(err, process.ErrFaulted):
		t.log.Debugln("Access still faulting after", maxFaultRetry, "retries:", err)
	}
	return err
}

// ReadMemory reads size bytes at addr under the given access mode.
func (t *LinuxTarget) ReadMemory(addr process.Address, size process.Size, mode process.AccessMode) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	region, err := t.validate(addr, size, memory_map.Read)
	if err != nil {
		return nil, err
	}

	// Swappable backing prefers the path where the kernel services faults.
	if mode == process.ModeNormal && region.Swappable() {
		mode = process.ModePgFault
	}

	switch mode {
	case process.ModeNormal:
		return t.readCached(addr, size, region)
	case process.ModeNoCache:
		t.invalidatePages(addr, size)
		return t.readDirect(addr, size, false)
	case process.ModeWritethrough:
		return t.readDirect(addr, size, false)
	case process.ModePgFault:
		return t.readDirect(addr, size, true)
	default:
		return nil, fmt.Errorf("unknown access mode %d", mode)
	}
}

func (t *LinuxTarget) readDirect(addr process.Address, size process.Size, pgfault bool) ([]byte, error) {
	buf := make([]byte, size)
	err := t.retryAccess(func() error {
		var err error
		if pgfault {
			_, err = t.memRead(buf, addr)
		} else {
			_, err = vmRead(t.pid, buf, addr)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// readCached assembles the read from whole cached pages. Pages straddling a
// region edge are read directly and not cached, keeping page buffers always
// fully backed by one region.
func (t *LinuxTarget) readCached(addr process.Address, size process.Size, region *memory_map.Region) ([]byte, error) {
	out := make([]byte, size)
	var filled process.Size
	for filled < size {
		cur := addr + process.Address(filled)
		base := cur &^ (pageSize - 1)
		off := uint64(cur) - uint64(base)

		if uint64(base) < region.Start || uint64(base)+pageSize > region.End {
			rest, err := t.readDirect(cur, size-filled, false)
			if err != nil {
				return nil, err
			}
			copy(out[filled:], rest)
			return out, nil
		}

		page, err := t.lookupPage(base)
		if err != nil {
			return nil, err
		}
		filled += process.Size(copy(out[filled:], page[off:]))
	}
	return out, nil
}

func (t *LinuxTarget) lookupPage(base process.Address) ([]byte, error) {
	t.mu.Lock()
	if v, ok := t.cache.Get(uint64(base)); ok {
		page := make([]byte, pageSize)
		copy(page, v.([]byte))
		t.mu.Unlock()
		return page, nil
	}
	t.mu.Unlock()

	page, err := t.readDirect(base, pageSize, false)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.cache.Add(uint64(base), page)
	t.mu.Unlock()
	return page, nil
}

func (t *LinuxTarget) invalidatePages(addr process.Address, size process.Size) {
	first := uint64(addr) &^ (pageSize - 1)
	last := (uint64(addr) + uint64(size) - 1) &^ (pageSize - 1)
	t.mu.Lock()
	for base := first; base <= last; base += pageSize {
		t.cache.Remove(base)
	}
	t.mu.Unlock()
}

// updatePages keeps cached pages coherent with a completed write.
func (t *LinuxTarget) updatePages(addr process.Address, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 0; i < len(data); {
		cur := uint64(addr) + uint64(i)
		base := cur &^ (pageSize - 1)
		off := cur - base
		n := int(pageSize - off)
		if n > len(data)-i {
			n = len(data) - i
		}
		if v, ok := t.cache.Get(base); ok {
			page := make([]byte, pageSize)
			copy(page, v.([]byte))
			copy(page[off:], data[i:i+n])
			t.cache.Add(base, page)
		}
		i += n
	}
}

// WriteMemory writes data at addr under the given access mode.
func (t *LinuxTarget) WriteMemory(addr process.Address, data []byte, mode process.AccessMode) error {
	if len(data) == 0 {
		return nil
	}
	region, err := t.validate(addr, process.Size(len(data)), memory_map.Write)
	if err != nil {
		return err
	}

	if mode == process.ModeNormal && region.Swappable() {
		mode = process.ModePgFault
	}

	viaMem := mode == process.ModeWritethrough || mode == process.ModePgFault
	err = t.retryAccess(func() error {
		var err error
		if viaMem {
			_, err = t.memWrite(data, addr)
		} else {
			_, err = vmWrite(t.pid, data, addr)
		}
		return err
	})
	if err != nil {
		return err
	}

	if mode == process.ModeNoCache {
		t.invalidatePages(addr, process.Size(len(data)))
	} else {
		t.updatePages(addr, data)
	}
	return nil
}

// ReadBatch performs independent reads; one item's failure never aborts the
// batch.
func (t *LinuxTarget) ReadBatch(reqs []process.ReadRequest, mode process.AccessMode) []process.ReadResult {
	results := make([]process.ReadResult, len(reqs))
	for i, req := range reqs {
		data, err := t.ReadMemory(req.Addr, req.Size, mode)
		results[i] = process.ReadResult{Addr: req.Addr, Data: data, Err: err}
	}
	return results
}

// WriteBatch performs independent writes, one error slot per request.
func (t *LinuxTarget) WriteBatch(reqs []process.WriteRequest, mode process.AccessMode) []error {
	errs := make([]error, len(reqs))
	for i, req := range reqs {
		errs[i] = t.WriteMemory(req.Addr, req.Data, mode)
	}
	return errs
}
