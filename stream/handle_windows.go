//go:build windows

package stream

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// SetInheritable toggles the handle inheritance flag. Handles are created
// inheritance-disabled; the spawner enables inheritance only for the ends
// destined for the child, for the duration of the spawn.
func (h *Handle) SetInheritable(inherit bool) error {
	if !h.Valid() {
		return os.ErrInvalid
	}
	var flags uint32
	if inherit {
		flags = windows.HANDLE_FLAG_INHERIT
	}
	err := windows.SetHandleInformation(windows.Handle(h.Fd()), windows.HANDLE_FLAG_INHERIT, flags)
	if err != nil {
		return fmt.Errorf("SetHandleInformation: %w", err)
	}
	return nil
}
