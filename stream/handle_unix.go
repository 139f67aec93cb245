//go:build unix

package stream

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// SetInheritable toggles the close-on-exec flag. Handles are created
// inheritance-disabled; the spawner enables inheritance only for the ends
// destined for the child, for the duration of the spawn.
func (h *Handle) SetInheritable(inherit bool) error {
	if !h.Valid() {
		return os.ErrInvalid
	}
	fd := int(h.Fd())
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return fmt.Errorf("fcntl(2): %w", err)
	}
	if inherit {
		flags &^= unix.FD_CLOEXEC
	} else {
		flags |= unix.FD_CLOEXEC
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags); err != nil {
		return fmt.Errorf("fcntl(2): %w", err)
	}
	return nil
}
