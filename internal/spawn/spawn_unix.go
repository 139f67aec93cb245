//go:build unix

package spawn

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/victoralfred/subproc/stream"
)

// launch spawns the child with the atomic fork-exec primitive. Working
// directory override is handled by the primitive itself (chdir between fork
// and exec, async-signal-safe), so no caller code ever runs in the forked
// child. Caught-signal dispositions, including SIGPIPE, revert to default
// across exec, which satisfies the restore-signals policy.
func launch(cfg *Config) (*Process, error) {
	argv := cfg.Argv
	path := argv[0]
	if !strings.ContainsRune(path, '/') {
		resolved, err := exec.LookPath(path)
		if err != nil {
			return nil, fmt.Errorf("lookpath: %w", err)
		}
		path = resolved
	}

	// Descriptor table for the child: std streams first, extras after.
	// The primitive dup2s each entry onto its slot, clearing close-on-exec
	// on the duplicate; everything not listed stays close-on-exec, which
	// implements the close-unrelated-descriptors policy.
	files := make([]uintptr, 3, 3+len(cfg.Extra))
	for i, h := range []*stream.Handle{cfg.Stdin, cfg.Stdout, cfg.Stderr} {
		if h != nil && h.Valid() {
			files[i] = h.Fd()
		} else {
			files[i] = uintptr(i)
		}
	}
	for _, h := range cfg.Extra {
		if h != nil && h.Valid() {
			files = append(files, h.Fd())
		}
	}

	env := cfg.Env
	if env == nil {
		env = os.Environ()
	}

	pid, _, err := syscall.StartProcess(path, argv, &syscall.ProcAttr{
		Dir:   cfg.Dir,
		Env:   env,
		Files: files,
	})
	if err != nil {
		return nil, fmt.Errorf("fork/exec %s: %w", path, err)
	}
	return &Process{Pid: pid}, nil
}

// Close releases platform resources tied to the process identity. The pid
// needs none on POSIX.
func (p *Process) Close() error { return nil }

func (p *Process) reap(options int) (done bool, code int, err error) {
	var ws unix.WaitStatus
	for {
		wpid, werr := unix.Wait4(p.Pid, &ws, options, nil)
		if werr == unix.EINTR {
			continue
		}
		if werr == unix.ECHILD {
			// Waiting for children has been disabled for this process
			// (SIGCHLD ignored or similar). The child is dead but the
			// status is unobtainable; report a zero status rather than
			// fail.
			return true, 0, nil
		}
		if werr != nil {
			return false, 0, fmt.Errorf("waitpid(2): %w", werr)
		}
		// waitpid has been known to return 0 even without WNOHANG in odd
		// situations; the caller loops on done==false.
		if wpid != p.Pid {
			return false, 0, nil
		}
		return true, decodeWaitStatus(ws), nil
	}
}

// Reap blocks in the wait primitive until the child's status is collected.
func (p *Process) Reap() (done bool, code int, err error) {
	return p.reap(0)
}

// TryReap collects the status without blocking. done is false while the
// child is still running.
func (p *Process) TryReap() (done bool, code int, err error) {
	return p.reap(unix.WNOHANG)
}

// decodeWaitStatus collapses the raw wait status into the public return
// code: the exit code for a normal exit, the negated signal number when the
// child was stopped or terminated by a signal.
func decodeWaitStatus(ws unix.WaitStatus) int {
	switch {
	case ws.Stopped():
		return -int(ws.StopSignal())
	case ws.Exited():
		return ws.ExitStatus()
	default:
		return -int(ws.Signal())
	}
}

// Signal delivers sig to the child.
func (p *Process) Signal(sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return fmt.Errorf("unsupported signal %v", sig)
	}
	if err := unix.Kill(p.Pid, s); err != nil {
		return fmt.Errorf("kill(2): %w", err)
	}
	return nil
}

// Terminate requests graceful termination.
func (p *Process) Terminate() error { return p.Signal(syscall.SIGTERM) }

// Kill forces termination.
func (p *Process) Kill() error { return p.Signal(syscall.SIGKILL) }
