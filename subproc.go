package subproc

import (
	"context"
	"errors"
	"time"

	"github.com/victoralfred/subproc/process"
	"github.com/victoralfred/subproc/resilience"
	"github.com/victoralfred/subproc/stream"
)

// =============================================================================
// Core Types
// =============================================================================

// Cmd describes a child process to be started.
// Use Command() or ShellCommand() to create commands.
type Cmd = process.Cmd

// CmdBuilder creates commands with a fluent interface.
type CmdBuilder = process.Builder

// Proc is a handle on a launched child process.
type Proc = process.Proc

// Result carries the output collected by Communicate.
type Result = process.Result

// PollResult is the outcome of a non-blocking liveness check.
type PollResult = process.PollResult

// PollStatus classifies a PollResult.
type PollStatus = process.PollStatus

// Poll outcomes.
const (
	PollExited     = process.PollExited
	PollRunning    = process.PollRunning
	PollLockMissed = process.PollLockMissed
)

// =============================================================================
// Stream Types
// =============================================================================

// Handle is an opaque reference to an OS-managed I/O resource.
type Handle = stream.Handle

// Spec is a redirection policy for one standard stream.
type Spec = stream.Spec

// Redirection constructors.
var (
	// Inherit leaves the stream attached to the parent's.
	Inherit = stream.Inherit

	// UsePipe connects the stream to a fresh pipe.
	UsePipe = stream.UsePipe

	// UseHandle redirects the stream to an existing handle.
	UseHandle = stream.UseHandle

	// UseFile redirects the stream to an open file.
	UseFile = stream.UseFile

	// Discard redirects the stream to the null device.
	Discard = stream.Discard

	// MergeWithStdout sends stderr wherever stdout goes.
	MergeWithStdout = stream.MergeWithStdout
)

// =============================================================================
// Error Variables
// =============================================================================

// Common errors returned by the library.
var (
	// ErrInvalidCommand indicates an invalid command configuration.
	ErrInvalidCommand = process.ErrInvalidCommand

	// ErrTimeout indicates a deadline elapsed before the child ended.
	ErrTimeout = process.ErrTimeout

	// ErrNonZeroExit indicates a checked run ended with a non-zero code.
	ErrNonZeroExit = process.ErrNonZeroExit

	// ErrDetached indicates the Proc's ownership was transferred away.
	ErrDetached = process.ErrDetached
)

// Structured error types.
type (
	// ProcessError wraps an OS primitive failure.
	ProcessError = process.Error

	// TimeoutError reports an elapsed deadline with partial output.
	TimeoutError = process.TimeoutError

	// ExitError reports a non-zero return code with collected output.
	ExitError = process.ExitError
)

// IsTimeout reports whether err is, or wraps, a deadline expiry.
func IsTimeout(err error) bool { return process.IsTimeout(err) }

// =============================================================================
// Command Construction
// =============================================================================

// Command creates a builder for a pre-tokenized command. No shell is
// involved.
//
// Example:
//
//	cmd, err := subproc.Command("git", "status").Build()
func Command(args ...string) *CmdBuilder {
	return process.NewCmd(args...)
}

// ShellCommand creates a builder for a single shell command line: /bin/sh -c
// on POSIX, passed verbatim to the native create-process call on Windows.
func ShellCommand(line string) *CmdBuilder {
	return process.NewShell(line)
}

// StartProc launches the configured child and returns its Proc.
func StartProc(cmd *Cmd) (*Proc, error) {
	return process.Start(cmd)
}

// =============================================================================
// Convenience Functions
// =============================================================================

// Call runs a command with all three streams inherited and returns its code:
// non-negative for a normal exit, negative for the terminating signal.
func Call(args ...string) (int, error) {
	return call(process.NewCmd(args...))
}

// CallShell is Call for a single shell command line.
func CallShell(line string) (int, error) {
	return call(process.NewShell(line))
}

// CallTimeout is Call bounded by a deadline. On expiry the child is killed
// and reaped before the *TimeoutError is returned, so no zombie is left
// behind.
func CallTimeout(timeout time.Duration, args ...string) (int, error) {
	return callTimeout(process.NewCmd(args...), timeout)
}

// CallShellTimeout is CallTimeout for a single shell command line.
func CallShellTimeout(line string, timeout time.Duration) (int, error) {
	return callTimeout(process.NewShell(line), timeout)
}

// Output runs a command with stdout piped and returns everything it wrote.
// A non-zero return code yields an *ExitError carrying the collected stdout.
func Output(args ...string) ([]byte, error) {
	return output(process.NewCmd(args...), 0)
}

// OutputShell is Output for a single shell command line.
func OutputShell(line string) ([]byte, error) {
	return output(process.NewShell(line), 0)
}

// OutputTimeout is Output bounded by a deadline. On expiry the child is
// killed and reaped, and the *TimeoutError carries the partial stdout.
func OutputTimeout(timeout time.Duration, args ...string) ([]byte, error) {
	return output(process.NewCmd(args...), timeout)
}

// OutputShellTimeout is OutputTimeout for a single shell command line.
func OutputShellTimeout(line string, timeout time.Duration) ([]byte, error) {
	return output(process.NewShell(line), timeout)
}

func call(b *CmdBuilder) (int, error) {
	cmd, err := b.Build()
	if err != nil {
		return 0, err
	}
	p, err := process.Start(cmd)
	if err != nil {
		return 0, err
	}
	return p.Wait()
}

func callTimeout(b *CmdBuilder, timeout time.Duration) (int, error) {
	cmd, err := b.Build()
	if err != nil {
		return 0, err
	}
	p, err := process.Start(cmd)
	if err != nil {
		return 0, err
	}
	code, err := p.WaitTimeout(timeout)
	if IsTimeout(err) {
		p.Kill()
		p.Wait()
	}
	return code, err
}

func output(b *CmdBuilder, timeout time.Duration) ([]byte, error) {
	cmd, err := b.WithStdout(stream.UsePipe()).Build()
	if err != nil {
		return nil, err
	}
	p, err := process.Start(cmd)
	if err != nil {
		return nil, err
	}

	var res process.Result
	if timeout > 0 {
		res, err = p.CommunicateTimeout(nil, timeout)
	} else {
		res, err = p.Communicate(nil)
	}
	if err != nil {
		// Kill and reap before surfacing the error so the caller is
		// never left holding a zombie.
		p.Kill()
		awaitEnd(p)
		p.Close()
		return res.Stdout, err
	}
	p.Close()
	if code := p.ReturnCode(); code != 0 {
		return res.Stdout, &ExitError{Args: p.Arguments(), Code: code, Stdout: res.Stdout}
	}
	return res.Stdout, nil
}

// awaitEnd polls the child to completion after a kill. A missed reap lock
// just means another reference is reaping; keep polling until the outcome is
// visible.
func awaitEnd(p *Proc) {
	bo := resilience.NewConstantBackoff(100*time.Microsecond, 0)
	_ = resilience.RetryWithBackoff(context.Background(), bo, func() error {
		r, err := p.Poll()
		if err != nil || r.Status == process.PollExited {
			return nil
		}
		return errStillRunning
	})
}

var errStillRunning = errors.New("still running")

// Version returns the library version.
func Version() string {
	return "1.0.0"
}
