//go:build linux

package process_linux

import (
	"fmt"

	"memhound/process"

	"golang.org/x/sys/unix"
)

// vmWrite writes data at addr using the process_vm_writev syscall.
func vmWrite(pid process.ProcessID, data []byte, addr process.Address) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	localIov := []unix.Iovec{{
		Base: &data[0],
		Len:  uint64(len(data)),
	}}
	remoteIov := []unix.RemoteIovec{{
		Base: uintptr(addr),
		Len:  len(data),
	}}

	n, err := unix.ProcessVMWritev(int(pid), localIov, remoteIov, 0)
	if err != nil {
		return n, fmt.Errorf("process_vm_writev at %s: %w", addr, mapErrno(err))
	}
	if n != len(data) {
		return n, fmt.Errorf("%w: partial write %d of %d bytes at %s", process.ErrFaulted, n, len(data), addr)
	}
	return n, nil
}

// memWrite writes via pwrite on /proc/<pid>/mem, the fault-tolerant path
// also used for writethrough mode.
func (t *LinuxTarget) memWrite(data []byte, addr process.Address) (int, error) {
	n, err := t.mem.WriteAt(data, int64(addr))
	if err != nil {
		return n, fmt.Errorf("proc mem write at %s: %w", addr, mapErrno(err))
	}
	return n, nil
}
