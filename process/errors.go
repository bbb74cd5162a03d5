package process

import "errors"

var (
	// ErrNotRoot is returned by attach when the engine lacks the
	// privileges needed to access another process's memory.
	ErrNotRoot = errors.New("not running as root")

	// ErrProcessNotFound is returned by attach when no process with the
	// given PID exists.
	ErrProcessNotFound = errors.New("process not found")

	// ErrAttachFailed is returned when the process exists but the attach
	// sequence could not be completed.
	ErrAttachFailed = errors.New("attach failed")

	// ErrAttachLost means the target process exited mid-session. Every
	// subsequent operation on the same handle fails with this error until
	// re-attach.
	ErrAttachLost = errors.New("attach lost: target process exited")

	// ErrPermissionDenied means the requested access conflicts with the
	// region's permission bits. Never retried.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrOutOfRange means the address range is not covered by any mapped
	// region in the current catalog snapshot. Never retried.
	ErrOutOfRange = errors.New("address out of mapped range")

	// ErrFaulted means the underlying access faulted, typically a race
	// with the target remapping memory. Retried a bounded number of times
	// before being surfaced.
	ErrFaulted = errors.New("memory access faulted")

	// ErrTargetUnresolvable is returned by the chain scanner when the
	// queried target address is itself unmapped before the first snapshot
	// completes, distinguishing invalid input from an empty result.
	ErrTargetUnresolvable = errors.New("target address unresolvable")

	// ErrSessionNotFound is returned for operations on a destroyed or
	// unknown search session.
	ErrSessionNotFound = errors.New("search session not found")

	// ErrCancelled is returned by long-running operations stopped
	// cooperatively; partial results already committed remain valid.
	ErrCancelled = errors.New("operation cancelled")
)
