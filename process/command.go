// Package process provides child-process lifecycle management: spawn with
// redirected standard streams, reap-synchronized wait and poll, signalling,
// and deadlock-free bidirectional I/O.
package process

import (
	"fmt"

	"github.com/victoralfred/subproc/internal/envutil"
	"github.com/victoralfred/subproc/stream"
)

// Cmd describes a process to be started. The configuration is consumed by
// Start and must not be reused afterwards.
type Cmd struct {
	// Args is the pre-tokenized argument vector: program followed by its
	// arguments. No shell is involved. Mutually exclusive with Shell.
	Args []string

	// Shell is a single shell command line. On POSIX it runs via
	// "/bin/sh -c"; on Windows it is passed verbatim to the native
	// create-process call.
	Shell string

	// Stdin, Stdout and Stderr are the redirection policies for the three
	// standard streams. The zero value inherits the parent's stream.
	Stdin  stream.Spec
	Stdout stream.Spec
	Stderr stream.Spec

	// Dir overrides the working directory. Empty inherits the parent's.
	Dir string

	// Env replaces the environment wholesale (never merged). Nil inherits
	// the parent's environment.
	Env []string

	// CloseFds prevents descriptors unrelated to the configured
	// redirections from leaking into the child. Default on. On POSIX the
	// fork-exec primitive always confines the child to the listed
	// descriptors, so false has an effect only on Windows, where it
	// widens handle inheritance.
	CloseFds bool

	// RestoreSignals resets broken-pipe and size-limit signal dispositions
	// to default before the child's program runs (POSIX). Default on. On
	// POSIX exec itself reverts caught-signal dispositions, so false
	// cannot re-arm them; the flag is honored where the platform gives a
	// choice.
	RestoreSignals bool

	// CreationFlags is passed to the native create-process call (Windows
	// only).
	CreationFlags uint32

	// ExtraHandles are additional handles made available to the child
	// beyond the standard three.
	ExtraHandles []*stream.Handle
}

// Builder constructs Cmd values with a fluent interface.
type Builder struct {
	cmd *Cmd
	err error
}

// NewCmd creates a builder for a pre-tokenized command.
func NewCmd(args ...string) *Builder {
	return &Builder{cmd: &Cmd{
		Args:           args,
		CloseFds:       true,
		RestoreSignals: true,
	}}
}

// NewShell creates a builder for a single shell command line.
func NewShell(line string) *Builder {
	return &Builder{cmd: &Cmd{
		Shell:          line,
		CloseFds:       true,
		RestoreSignals: true,
	}}
}

// WithStdin sets the stdin redirection policy.
func (b *Builder) WithStdin(s stream.Spec) *Builder {
	b.cmd.Stdin = s
	return b
}

// WithStdout sets the stdout redirection policy.
func (b *Builder) WithStdout(s stream.Spec) *Builder {
	b.cmd.Stdout = s
	return b
}

// WithStderr sets the stderr redirection policy.
func (b *Builder) WithStderr(s stream.Spec) *Builder {
	b.cmd.Stderr = s
	return b
}

// WithDir sets the working directory override.
func (b *Builder) WithDir(dir string) *Builder {
	b.cmd.Dir = dir
	return b
}

// WithEnv replaces the child's environment with env (KEY=value entries).
func (b *Builder) WithEnv(env []string) *Builder {
	b.cmd.Env = env
	return b
}

// WithEnvMap replaces the child's environment from a map, sorted into
// KEY=value entries.
func (b *Builder) WithEnvMap(env map[string]string) *Builder {
	b.cmd.Env = envutil.ToSlice(env)
	return b
}

// WithMinimalEnv replaces the child's environment with a minimal safe one.
func (b *Builder) WithMinimalEnv() *Builder {
	b.cmd.Env = envutil.ToSlice(envutil.MinimalEnvironment())
	return b
}

// WithEnvVar appends one KEY=value entry to the replacement environment.
func (b *Builder) WithEnvVar(key, value string) *Builder {
	b.cmd.Env = append(b.cmd.Env, key+"="+value)
	return b
}

// WithCloseFds controls the close-unrelated-descriptors policy.
func (b *Builder) WithCloseFds(close bool) *Builder {
	b.cmd.CloseFds = close
	return b
}

// WithRestoreSignals controls the restore-default-dispositions policy
// (POSIX).
func (b *Builder) WithRestoreSignals(restore bool) *Builder {
	b.cmd.RestoreSignals = restore
	return b
}

// WithCreationFlags sets native creation flags (Windows).
func (b *Builder) WithCreationFlags(flags uint32) *Builder {
	b.cmd.CreationFlags = flags
	return b
}

// WithExtraHandle adds a handle to pass to the child beyond the standard
// three.
func (b *Builder) WithExtraHandle(h *stream.Handle) *Builder {
	b.cmd.ExtraHandles = append(b.cmd.ExtraHandles, h)
	return b
}

// Build validates and returns the command.
func (b *Builder) Build() (*Cmd, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.cmd.validate(); err != nil {
		return nil, err
	}
	return b.cmd, nil
}

// MustBuild validates and returns the command, panicking on error.
func (b *Builder) MustBuild() *Cmd {
	cmd, err := b.Build()
	if err != nil {
		panic(err)
	}
	return cmd
}

func (c *Cmd) validate() error {
	switch {
	case len(c.Args) == 0 && c.Shell == "":
		return fmt.Errorf("%w: no arguments provided", ErrInvalidCommand)
	case len(c.Args) > 0 && c.Shell != "":
		return fmt.Errorf("%w: both argument vector and shell line set", ErrInvalidCommand)
	case len(c.Args) > 0 && c.Args[0] == "":
		return fmt.Errorf("%w: empty program name", ErrInvalidCommand)
	}
	return nil
}

// arguments returns the caller-visible form of the command for error
// reporting and the Arguments accessor.
func (c *Cmd) arguments() []string {
	if c.Shell != "" {
		return []string{c.Shell}
	}
	return c.Args
}
