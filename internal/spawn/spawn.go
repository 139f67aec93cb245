// Package spawn wraps the platform process-creation and reap primitives.
// This is the ONLY package in the library that issues process syscalls.
// Everything above it speaks in stream handles and return codes.
package spawn

import (
	"github.com/victoralfred/subproc/stream"
)

// Config carries everything the platform create-process primitive needs.
// Stream handles are the child-side handles produced by spec resolution; a
// nil handle means the child inherits that parent stream.
type Config struct {
	// Argv is the resolved argument vector. Argv[0] is looked up on PATH
	// when it contains no separator.
	Argv []string

	// CmdLine, when set on Windows, is passed verbatim as the native
	// command line instead of composing one from Argv. Ignored elsewhere.
	CmdLine string

	// Dir overrides the working directory. Empty means inherit.
	Dir string

	// Env replaces the environment wholesale. Nil means inherit; an empty
	// non-nil slice means an empty environment.
	Env []string

	Stdin  *stream.Handle
	Stdout *stream.Handle
	Stderr *stream.Handle

	// Extra handles are placed after the standard three in the child's
	// descriptor table (POSIX) or marked inheritable (Windows).
	Extra []*stream.Handle

	// CloseFds requests that descriptors unrelated to the redirections do
	// not leak into the child. Default-on at the layer above.
	CloseFds bool

	// RestoreSignals asks that broken-pipe and size-limit signal
	// dispositions be reset to default before the child runs (POSIX).
	RestoreSignals bool

	// CreationFlags is passed to the native create-process call (Windows).
	CreationFlags uint32
}

// Process is the OS identity of a spawned child.
type Process struct {
	Pid    int
	handle uintptr
}

// Launch runs the platform create-process primitive. On failure no process
// exists and no handle state has leaked; the caller still owns (and must
// close) the handles in cfg.
func Launch(cfg *Config) (*Process, error) {
	return launch(cfg)
}
