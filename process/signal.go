package process

import (
	"os"

	"github.com/victoralfred/subproc/internal/spawn"
)

// SendSignal delivers sig to the child. Signalling a Proc that has not been
// started, has ended or has been detached is a no-op, so racing a signal
// against the child's exit is safe.
func (p *Proc) SendSignal(sig os.Signal) error {
	return p.signal(func(osp *spawn.Process) error { return osp.Signal(sig) })
}

// Terminate asks the child to end: SIGTERM on POSIX, a forced termination on
// Windows. No-op once the child has ended.
func (p *Proc) Terminate() error {
	return p.signal(func(osp *spawn.Process) error { return osp.Terminate() })
}

// Kill forcibly ends the child: SIGKILL on POSIX, termination on Windows.
// No-op once the child has ended.
func (p *Proc) Kill() error {
	return p.signal(func(osp *spawn.Process) error { return osp.Kill() })
}

// signal delivers through fn against an atomic snapshot of the process
// reference, so a concurrent Detach can never leave fn holding a pointer
// mid-transfer. A Detach racing the delivery is benign either way: the
// clone refers to the same child.
func (p *Proc) signal(fn func(*spawn.Process) error) error {
	if p.state.Load() != stateStarted {
		return nil
	}
	osp := p.os.Load()
	if osp == nil {
		// Detached between the state check and the load.
		return nil
	}
	if err := fn(osp); err != nil {
		return &Error{Op: "signal", Args: p.args, Err: err}
	}
	return nil
}
