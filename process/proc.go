package process

import (
	"sync"
	"sync/atomic"

	"github.com/victoralfred/subproc/internal/spawn"
	"github.com/victoralfred/subproc/stream"
)

// Proc states. A Proc moves Initial -> Started -> Ended; Detach leaves the
// source in the terminal Detached state.
const (
	stateInitial int32 = iota
	stateStarted
	stateEnded
	stateDetached
)

// Proc is a handle on a child process. Every blocking or reaping operation
// serializes on a mutex shared by all references to the same child, so
// concurrent Wait and Poll calls observe exactly one reap.
type Proc struct {
	cfg  *Cmd     // consumed by Start
	args []string // caller-visible command, for errors and Arguments

	startMu sync.Mutex   // guards the Initial -> Started transition
	reapMu  *sync.Mutex  // shared across Detach clones; guards reaping
	state   atomic.Int32 // stateInitial..stateDetached
	code    int          // written under reapMu before state -> Ended

	// os is atomic so signal delivery can read it without taking a lock;
	// Detach swaps it out under reapMu, which keeps the waiters' view
	// consistent, while a racing signal just sees the same child or nil.
	os     atomic.Pointer[spawn.Process]
	stdin  *stream.Handle // parent-side pipe ends, nil when not piped
	stdout *stream.Handle
	stderr *stream.Handle

	inW  *inputWriter // exchange tasks left live by a timed-out
	outD *drainer     // Communicate, rejoined on the next call
	errD *drainer
}

// New creates a Proc for cfg without starting it. The first lifecycle
// operation (Start, Wait, Poll, Communicate) launches the child.
func New(cfg *Cmd) *Proc {
	return &Proc{
		cfg:    cfg,
		args:   cfg.arguments(),
		reapMu: new(sync.Mutex),
	}
}

// Start creates a Proc for cfg and launches the child immediately.
func Start(cfg *Cmd) (*Proc, error) {
	p := New(cfg)
	if err := p.Start(); err != nil {
		return nil, err
	}
	return p, nil
}

// Start launches the child. It is idempotent: starting an already-started or
// ended Proc is a no-op.
func (p *Proc) Start() error {
	p.startMu.Lock()
	defer p.startMu.Unlock()

	switch p.state.Load() {
	case stateStarted, stateEnded:
		return nil
	case stateDetached:
		return ErrDetached
	}

	cfg := p.cfg
	if cfg == nil {
		return ErrInvalidCommand
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	argv := cfg.Args
	var cmdline string
	if cfg.Shell != "" {
		argv, cmdline = shellCommand(cfg.Shell)
	}

	stdin, err := cfg.Stdin.Resolve(stream.Stdin, nil)
	if err != nil {
		return &Error{Op: "start", Args: p.args, Err: err}
	}
	stdout, err := cfg.Stdout.Resolve(stream.Stdout, nil)
	if err != nil {
		stdin.Close()
		return &Error{Op: "start", Args: p.args, Err: err}
	}
	stderr, err := cfg.Stderr.Resolve(stream.Stderr, stdout.Child)
	if err != nil {
		stdin.Close()
		stdout.Close()
		return &Error{Op: "start", Args: p.args, Err: err}
	}

	osp, err := spawn.Launch(&spawn.Config{
		Argv:           argv,
		CmdLine:        cmdline,
		Dir:            cfg.Dir,
		Env:            cfg.Env,
		Stdin:          stdin.Child,
		Stdout:         stdout.Child,
		Stderr:         stderr.Child,
		Extra:          cfg.ExtraHandles,
		CloseFds:       cfg.CloseFds,
		RestoreSignals: cfg.RestoreSignals,
		CreationFlags:  cfg.CreationFlags,
	})
	if err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return &Error{Op: "start", Args: p.args, Err: err}
	}

	// The child owns its copies now; drop the parent's child-side handles.
	closeHandle(stdin.Child)
	closeHandle(stdout.Child)
	closeHandle(stderr.Child)

	p.stdin = stdin.Parent
	p.stdout = stdout.Parent
	p.stderr = stderr.Parent
	p.os.Store(osp)
	p.cfg = nil
	p.state.Store(stateStarted)
	return nil
}

// Pid returns the child's process ID, or 0 before Start.
func (p *Proc) Pid() int {
	osp := p.os.Load()
	if osp == nil {
		return 0
	}
	return osp.Pid
}

// ReturnCode returns the cached exit code. It is meaningful only once Ended
// reports true: non-negative for a normal exit, negative for the signal that
// stopped or terminated the child.
func (p *Proc) ReturnCode() int { return p.code }

// Arguments returns the command the Proc was configured with.
func (p *Proc) Arguments() []string { return p.args }

// Started reports whether the child has been launched.
func (p *Proc) Started() bool { return p.state.Load() >= stateStarted }

// Ended reports whether the child has been reaped.
func (p *Proc) Ended() bool { return p.state.Load() == stateEnded }

// Stdin returns the parent-side write end of the stdin pipe, or nil when
// stdin was not piped.
func (p *Proc) Stdin() *stream.Handle { return p.stdin }

// Stdout returns the parent-side read end of the stdout pipe, or nil when
// stdout was not piped.
func (p *Proc) Stdout() *stream.Handle { return p.stdout }

// Stderr returns the parent-side read end of the stderr pipe, or nil when
// stderr was not piped.
func (p *Proc) Stderr() *stream.Handle { return p.stderr }

// Detach transfers ownership of the child to a new Proc and leaves the
// receiver inert: every later operation on it fails with ErrDetached. The
// clone shares the receiver's reap mutex, so references handed out before the
// transfer still serialize correctly. Detach itself serializes on that mutex,
// so it blocks until a concurrent Wait's reap attempt has finished.
func (p *Proc) Detach() *Proc {
	p.startMu.Lock()
	defer p.startMu.Unlock()

	// In-flight waiters read p.os under reapMu; consume the source under
	// the same lock so none of them can observe the transfer midway.
	p.reapMu.Lock()
	defer p.reapMu.Unlock()

	clone := &Proc{
		cfg:    p.cfg,
		args:   p.args,
		reapMu: p.reapMu,
		code:   p.code,
		stdin:  p.stdin,
		stdout: p.stdout,
		stderr: p.stderr,
		inW:    p.inW,
		outD:   p.outD,
		errD:   p.errD,
	}
	clone.os.Store(p.os.Load())
	clone.state.Store(p.state.Load())

	p.cfg = nil
	p.os.Store(nil)
	p.stdin = nil
	p.stdout = nil
	p.stderr = nil
	p.inW, p.outD, p.errD = nil, nil, nil
	p.state.Store(stateDetached)
	return clone
}

// Close is the safety net for abandoned Procs: it blocks until a running
// child is reaped, then releases every retained handle. Closing an unstarted,
// ended or detached Proc only releases resources. Prefer Wait or Communicate;
// use Close via defer to guarantee no zombie outlives the Proc.
func (p *Proc) Close() error {
	var err error
	if p.state.Load() == stateStarted {
		_, err = p.Wait()
	}
	closeHandle(p.stdin)
	closeHandle(p.stdout)
	closeHandle(p.stderr)
	p.stdin, p.stdout, p.stderr = nil, nil, nil
	if osp := p.os.Load(); osp != nil {
		osp.Close()
	}
	return err
}

// finishLocked records the exit code and flips the state to Ended. The
// caller must hold reapMu; the atomic store publishes code to lock-free
// readers.
func (p *Proc) finishLocked(code int) {
	p.code = code
	p.state.Store(stateEnded)
}

func closeHandle(h *stream.Handle) {
	if h != nil {
		h.Close()
	}
}
