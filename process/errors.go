package process

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for errors.Is matching.
var (
	// ErrInvalidCommand indicates a malformed Cmd configuration.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrTimeout indicates a deadline elapsed before the process ended.
	ErrTimeout = errors.New("timeout expired")

	// ErrNonZeroExit indicates a checked run ended with a non-zero return
	// code.
	ErrNonZeroExit = errors.New("non-zero exit status")

	// ErrDetached indicates the Proc's ownership was transferred and the
	// receiver is inert.
	ErrDetached = errors.New("process ownership transferred")
)

// Error wraps an operating-system primitive failure with the operation that
// hit it and the command it concerned.
type Error struct {
	Op   string   // "start", "wait", "poll", "signal", "communicate"
	Args []string // caller-visible command
	Err  error    // underlying OS error
}

func (e *Error) Error() string {
	return fmt.Sprintf("process %s %q: %v", e.Op, strings.Join(e.Args, " "), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// TimeoutError reports an elapsed deadline. Stdout and Stderr carry whatever
// output had been collected when the deadline passed, so callers can kill the
// process and still inspect partial output.
type TimeoutError struct {
	Args    []string
	Timeout time.Duration
	Stdout  []byte
	Stderr  []byte
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("process %q did not end within %v", strings.Join(e.Args, " "), e.Timeout)
}

// Is reports a match against ErrTimeout so errors.Is(err, ErrTimeout) works.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// ExitError reports a non-zero return code from a checked run, with any
// collected output attached.
type ExitError struct {
	Args   []string
	Code   int
	Stdout []byte
	Stderr []byte
}

func (e *ExitError) Error() string {
	if e.Code < 0 {
		return fmt.Sprintf("process %q ended by signal %d", strings.Join(e.Args, " "), -e.Code)
	}
	return fmt.Sprintf("process %q exited with status %d", strings.Join(e.Args, " "), e.Code)
}

// Is reports a match against ErrNonZeroExit.
func (e *ExitError) Is(target error) bool { return target == ErrNonZeroExit }

// IsTimeout reports whether err is, or wraps, a deadline expiry.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }
