//go:build linux

package engine

import (
	"memhound/process"
	"memhound/process_linux"
)

// Attach opens a live process and wraps it in a handle. The PID arrives
// pre-verified from the privilege-elevation collaborator; failures surface
// as ErrNotRoot, ErrProcessNotFound or ErrAttachFailed.
func (e *Engine) Attach(pid process.ProcessID) (*Handle, error) {
	target, err := process_linux.Attach(pid)
	if err != nil {
		return nil, err
	}
	return e.AttachTarget(target), nil
}
