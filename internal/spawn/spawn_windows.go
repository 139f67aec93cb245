//go:build windows

package spawn

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/victoralfred/subproc/shell"
	"github.com/victoralfred/subproc/stream"
)

// launch spawns the child with CreateProcessW. Redirection handles are made
// inheritable only for the duration of the call and reverted before
// returning, so a concurrent spawn cannot capture them.
func launch(cfg *Config) (*Process, error) {
	cmdline := cfg.CmdLine
	if cmdline == "" {
		cmdline = shell.Join(cfg.Argv)
	}

	si := &windows.StartupInfo{}
	si.Cb = uint32(unsafe.Sizeof(*si))

	std := []*stream.Handle{cfg.Stdin, cfg.Stdout, cfg.Stderr}
	redirected := false
	for _, h := range std {
		if h != nil && h.Valid() {
			redirected = true
			break
		}
	}

	inheritable := make([]*stream.Handle, 0, 3+len(cfg.Extra))
	if redirected {
		si.Flags |= windows.STARTF_USESTDHANDLES
		si.StdInput = stdHandle(cfg.Stdin, windows.STD_INPUT_HANDLE)
		si.StdOutput = stdHandle(cfg.Stdout, windows.STD_OUTPUT_HANDLE)
		si.StdErr = stdHandle(cfg.Stderr, windows.STD_ERROR_HANDLE)
		for _, h := range std {
			if h != nil && h.Valid() {
				inheritable = append(inheritable, h)
			}
		}
	}
	for _, h := range cfg.Extra {
		if h != nil && h.Valid() {
			inheritable = append(inheritable, h)
		}
	}

	for _, h := range inheritable {
		if err := h.SetInheritable(true); err != nil {
			return nil, err
		}
	}
	defer func() {
		for _, h := range inheritable {
			_ = h.SetInheritable(false)
		}
	}()

	cmdp, err := windows.UTF16PtrFromString(cmdline)
	if err != nil {
		return nil, fmt.Errorf("command line: %w", err)
	}
	var dirp *uint16
	if cfg.Dir != "" {
		if dirp, err = windows.UTF16PtrFromString(cfg.Dir); err != nil {
			return nil, fmt.Errorf("working directory: %w", err)
		}
	}
	envp, err := environBlock(cfg.Env)
	if err != nil {
		return nil, err
	}

	inherit := redirected || len(cfg.Extra) > 0 || !cfg.CloseFds
	flags := cfg.CreationFlags
	if envp != nil {
		flags |= windows.CREATE_UNICODE_ENVIRONMENT
	}

	pi := &windows.ProcessInformation{}
	err = windows.CreateProcess(nil, cmdp, nil, nil, inherit, flags, envp, dirp, si, pi)
	if err != nil {
		return nil, fmt.Errorf("CreateProcess: %w", err)
	}
	_ = windows.CloseHandle(pi.Thread)

	return &Process{Pid: int(pi.ProcessId), handle: uintptr(pi.Process)}, nil
}

// stdHandle picks the redirection handle for a standard stream, falling back
// to the parent's own.
func stdHandle(h *stream.Handle, std uint32) windows.Handle {
	if h != nil && h.Valid() {
		return windows.Handle(h.Fd())
	}
	out, _ := windows.GetStdHandle(std)
	return out
}

// environBlock flattens KEY=value strings into the double-NUL-terminated
// UTF-16 block CreateProcessW expects. A nil env inherits the parent's.
func environBlock(env []string) (*uint16, error) {
	if env == nil {
		return nil, nil
	}
	var block []uint16
	for _, e := range env {
		u, err := windows.UTF16FromString(e)
		if err != nil {
			return nil, fmt.Errorf("environment entry %q: %w", e, err)
		}
		block = append(block, u...)
	}
	block = append(block, 0)
	return &block[0], nil
}

// Close releases the kernel process handle.
func (p *Process) Close() error {
	if p.handle == 0 {
		return nil
	}
	h := windows.Handle(p.handle)
	p.handle = 0
	return windows.CloseHandle(h)
}

func (p *Process) reap(timeoutMs uint32) (done bool, code int, err error) {
	ev, err := windows.WaitForSingleObject(windows.Handle(p.handle), timeoutMs)
	if err != nil {
		return false, 0, fmt.Errorf("WaitForSingleObject: %w", err)
	}
	if ev == uint32(windows.WAIT_TIMEOUT) {
		return false, 0, nil
	}
	var exit uint32
	if err := windows.GetExitCodeProcess(windows.Handle(p.handle), &exit); err != nil {
		return false, 0, fmt.Errorf("GetExitCodeProcess: %w", err)
	}
	return true, int(exit), nil
}

// Reap blocks until the process object signals and collects the exit code.
func (p *Process) Reap() (done bool, code int, err error) {
	return p.reap(windows.INFINITE)
}

// TryReap collects the exit code without blocking. done is false while the
// child is still running.
func (p *Process) TryReap() (done bool, code int, err error) {
	return p.reap(0)
}

// Signal delivers the closest native equivalent of sig.
func (p *Process) Signal(sig os.Signal) error {
	switch sig {
	case syscall.SIGTERM, os.Kill:
		return p.Terminate()
	case os.Interrupt:
		if err := windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(p.Pid)); err != nil {
			return fmt.Errorf("GenerateConsoleCtrlEvent: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported signal %v", sig)
	}
}

// Terminate forces the process to exit. Windows has no graceful SIGTERM
// analogue, so Terminate and Kill are the same operation.
func (p *Process) Terminate() error {
	if err := windows.TerminateProcess(windows.Handle(p.handle), 1); err != nil {
		return fmt.Errorf("TerminateProcess: %w", err)
	}
	return nil
}

// Kill forces termination.
func (p *Process) Kill() error { return p.Terminate() }
