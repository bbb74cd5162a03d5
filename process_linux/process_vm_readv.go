//go:build linux

package process_linux

import (
	"errors"
	"fmt"

	"memhound/process"

	"golang.org/x/sys/unix"
)

// vmRead reads len(buf) bytes at addr using the process_vm_readv syscall.
func vmRead(pid process.ProcessID, buf []byte, addr process.Address) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	localIov := []unix.Iovec{{
		Base: &buf[0],
		Len:  uint64(len(buf)),
	}}
	remoteIov := []unix.RemoteIovec{{
		Base: uintptr(addr),
		Len:  len(buf),
	}}

	n, err := unix.ProcessVMReadv(int(pid), localIov, remoteIov, 0)
	if err != nil {
		return 0, fmt.Errorf("process_vm_readv at %s: %w", addr, mapErrno(err))
	}
	return n, nil
}

// memRead reads via pread on /proc/<pid>/mem. The kernel services page
// faults on this path, so swapped or lazily committed pages resolve instead
// of faulting.
func (t *LinuxTarget) memRead(buf []byte, addr process.Address) (int, error) {
	n, err := t.mem.ReadAt(buf, int64(addr))
	if err != nil && n < len(buf) {
		return n, fmt.Errorf("proc mem read at %s: %w", addr, mapErrno(err))
	}
	return n, nil
}

// mapErrno translates a syscall error into the engine taxonomy.
func mapErrno(err error) error {
	var errno unix.Errno
	if errors.As(err, &errno) {
		switch errno {
		case unix.ESRCH:
			return process.ErrAttachLost
		case unix.EPERM, unix.EACCES:
			return process.ErrPermissionDenied
		case unix.EFAULT, unix.EIO:
			return process.ErrFaulted
		}
	}
	return err
}
