package stream

import (
	"errors"
	"os"
)

// StdStream identifies one of the three standard streams.
type StdStream int

const (
	Stdin StdStream = iota
	Stdout
	Stderr
)

// String returns the conventional stream name.
func (s StdStream) String() string {
	switch s {
	case Stdin:
		return "stdin"
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return "unknown"
	}
}

type specMode int

const (
	modeInherit specMode = iota
	modeHandle
	modePipe
	modeDiscard
	modeMerge
)

// Spec is a redirection policy for one standard stream. The zero value is
// Inherit. A Spec is evaluated exactly once, at process start, into an
// optional parent-side handle (retained for I/O) and an optional child-side
// handle (duplicated onto the standard stream number).
type Spec struct {
	mode specMode
	h    *Handle
}

// Inherit leaves the stream attached to the parent's own standard stream.
func Inherit() Spec { return Spec{} }

// UsePipe connects the stream to a fresh pipe whose parent-side end is
// retained for I/O.
func UsePipe() Spec { return Spec{mode: modePipe} }

// UseHandle redirects the stream to an explicit handle. Ownership follows the
// handle's own owns flag: an owning handle is closed after the spawn attempt.
func UseHandle(h *Handle) Spec { return Spec{mode: modeHandle, h: h} }

// UseFile redirects the stream to an open file. If owns is true the file is
// closed after the spawn attempt.
func UseFile(f *os.File, owns bool) Spec { return Spec{mode: modeHandle, h: FromFile(f, owns)} }

// Discard redirects the stream to the null device.
func Discard() Spec { return Spec{mode: modeDiscard} }

// MergeWithStdout redirects stderr into whatever stdout resolved to. Valid
// for stderr only.
func MergeWithStdout() Spec { return Spec{mode: modeMerge} }

// IsPipe reports whether the spec requests a fresh pipe.
func (s Spec) IsPipe() bool { return s.mode == modePipe }

// IsInherit reports whether the spec leaves the stream unredirected.
func (s Spec) IsInherit() bool { return s.mode == modeInherit }

// ErrMergeNotStderr is returned when MergeWithStdout is used on a stream
// other than stderr.
var ErrMergeNotStderr = errors.New("merge-with-stdout is valid for stderr only")

// Resolved is the outcome of evaluating a Spec at start time.
type Resolved struct {
	// Parent is the parent-side pipe end retained for I/O, nil unless the
	// spec requested a pipe.
	Parent *Handle

	// Child is the handle to duplicate onto the standard stream, nil when
	// the child inherits the parent's own stream.
	Child *Handle
}

// Close releases both ends. Used to unwind a failed start.
func (r *Resolved) Close() {
	if r.Parent != nil {
		r.Parent.Close()
	}
	if r.Child != nil {
		r.Child.Close()
	}
}

// Resolve evaluates the spec for the given stream. For MergeWithStdout,
// stdoutChild must be stdout's already-resolved child handle (nil when stdout
// is Inherit, in which case the merge falls back to the parent process's own
// stdout).
func (s Spec) Resolve(std StdStream, stdoutChild *Handle) (Resolved, error) {
	switch s.mode {
	case modeInherit:
		return Resolved{}, nil

	case modeHandle:
		return Resolved{Child: s.h}, nil

	case modePipe:
		r, w, err := Pipe()
		if err != nil {
			return Resolved{}, err
		}
		if std == Stdin {
			return Resolved{Parent: w, Child: r}, nil
		}
		return Resolved{Parent: r, Child: w}, nil

	case modeDiscard:
		h, err := DevNull()
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{Child: h}, nil

	case modeMerge:
		if std != Stderr {
			return Resolved{}, ErrMergeNotStderr
		}
		if stdoutChild != nil && stdoutChild.Valid() {
			return Resolved{Child: stdoutChild.Borrow()}, nil
		}
		return Resolved{Child: FromFile(os.Stdout, false)}, nil

	default:
		return Resolved{}, errors.New("unknown stream spec")
	}
}
