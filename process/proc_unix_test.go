//go:build unix

package process

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/victoralfred/subproc/stream"
)

func TestWaitCleanExit(t *testing.T) {
	p, err := Start(NewCmd("true").MustBuild())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	code, err := p.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if code != 0 {
		t.Errorf("code = %d, want 0", code)
	}
	if !p.Ended() {
		t.Error("proc not Ended after Wait")
	}

	// Cached after the reap.
	again, err := p.Wait()
	if err != nil || again != 0 {
		t.Errorf("second Wait = (%d, %v), want (0, nil)", again, err)
	}
}

func TestWaitExitCode(t *testing.T) {
	p, err := Start(NewShell("exit 7").MustBuild())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	code, err := p.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if code != 7 {
		t.Errorf("code = %d, want 7", code)
	}
}

func TestWaitSignaledExit(t *testing.T) {
	p, err := Start(NewShell("kill -TERM $$").MustBuild())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	code, err := p.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if code != -int(syscall.SIGTERM) {
		t.Errorf("code = %d, want %d", code, -int(syscall.SIGTERM))
	}
}

func TestStartIdempotent(t *testing.T) {
	p := New(NewCmd("true").MustBuild())
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pid := p.Pid()
	if err := p.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if p.Pid() != pid {
		t.Error("second Start launched a new child")
	}
	p.Close()
}

func TestCommunicateBothOutputs(t *testing.T) {
	cmd := NewShell("echo out; echo err >&2").
		WithStdout(stream.UsePipe()).
		WithStderr(stream.UsePipe()).
		MustBuild()
	p, err := Start(cmd)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	res, err := p.Communicate(nil)
	if err != nil {
		t.Fatalf("Communicate: %v", err)
	}
	if string(res.Stdout) != "out\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "out\n")
	}
	if string(res.Stderr) != "err\n" {
		t.Errorf("Stderr = %q, want %q", res.Stderr, "err\n")
	}
	if p.ReturnCode() != 0 {
		t.Errorf("ReturnCode = %d, want 0", p.ReturnCode())
	}
}

func TestCommunicateStdinToStdout(t *testing.T) {
	cmd := NewCmd("tr", "a-z", "A-Z").
		WithStdin(stream.UsePipe()).
		WithStdout(stream.UsePipe()).
		MustBuild()
	p, err := Start(cmd)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	res, err := p.Communicate([]byte("hi"))
	if err != nil {
		t.Fatalf("Communicate: %v", err)
	}
	if string(res.Stdout) != "HI" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "HI")
	}
}

func TestCommunicateLargeInput(t *testing.T) {
	cmd := NewCmd("cat").
		WithStdin(stream.UsePipe()).
		WithStdout(stream.UsePipe()).
		MustBuild()
	p, err := Start(cmd)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	// Far beyond the kernel pipe buffer; deadlocks if input write and
	// output drain are not concurrent.
	payload := bytes.Repeat([]byte("0123456789abcdef"), 16*1024)
	res, err := p.Communicate(payload)
	if err != nil {
		t.Fatalf("Communicate: %v", err)
	}
	if !bytes.Equal(res.Stdout, payload) {
		t.Errorf("Stdout length = %d, want %d", len(res.Stdout), len(payload))
	}
}

func TestCommunicateMergedStderr(t *testing.T) {
	cmd := NewShell("echo out; echo err >&2").
		WithStdout(stream.UsePipe()).
		WithStderr(stream.MergeWithStdout()).
		MustBuild()
	p, err := Start(cmd)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	res, err := p.Communicate(nil)
	if err != nil {
		t.Fatalf("Communicate: %v", err)
	}
	out := string(res.Stdout)
	if !strings.Contains(out, "out") || !strings.Contains(out, "err") {
		t.Errorf("merged Stdout = %q, want both lines", out)
	}
	if len(res.Stderr) != 0 {
		t.Errorf("Stderr = %q, want empty when merged", res.Stderr)
	}
}

func TestCommunicateDiscardedStdin(t *testing.T) {
	cmd := NewCmd("cat").
		WithStdin(stream.Discard()).
		WithStdout(stream.UsePipe()).
		MustBuild()
	p, err := Start(cmd)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	res, err := p.Communicate(nil)
	if err != nil {
		t.Fatalf("Communicate: %v", err)
	}
	if len(res.Stdout) != 0 {
		t.Errorf("Stdout = %q, want empty from the null device", res.Stdout)
	}
	if p.ReturnCode() != 0 {
		t.Errorf("ReturnCode = %d, want 0", p.ReturnCode())
	}
}

func TestCommunicateAfterEnded(t *testing.T) {
	p, err := Start(NewCmd("true").MustBuild())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()
	if _, err := p.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	res, err := p.Communicate([]byte("ignored"))
	if err != nil {
		t.Fatalf("Communicate after end: %v", err)
	}
	if len(res.Stdout) != 0 || len(res.Stderr) != 0 {
		t.Error("Communicate after end returned output")
	}
}

func TestWaitTimeoutLeavesChildRunning(t *testing.T) {
	p, err := Start(NewCmd("sleep", "30").MustBuild())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	_, err = p.WaitTimeout(50 * time.Millisecond)
	if !IsTimeout(err) {
		t.Fatalf("WaitTimeout = %v, want timeout", err)
	}
	if p.Ended() {
		t.Fatal("proc Ended after a timed-out wait")
	}

	r, err := p.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if r.Status != PollRunning {
		t.Errorf("Poll status = %v, want running", r.Status)
	}

	if err := p.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	code, err := p.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if code != -int(syscall.SIGKILL) {
		t.Errorf("code = %d, want %d", code, -int(syscall.SIGKILL))
	}
}

func TestCommunicateTimeoutPartialOutput(t *testing.T) {
	cmd := NewShell("echo part; sleep 30").
		WithStdout(stream.UsePipe()).
		MustBuild()
	p, err := Start(cmd)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err = p.CommunicateTimeout(nil, 300*time.Millisecond)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("CommunicateTimeout = %v, want *TimeoutError", err)
	}
	if !bytes.Contains(te.Stdout, []byte("part")) {
		t.Errorf("partial Stdout = %q, want the line written before the stall", te.Stdout)
	}

	p.Kill()
	if _, err := p.Wait(); err != nil {
		t.Fatalf("Wait after kill: %v", err)
	}
	p.Close()
}

func TestCommunicateTimeoutRejoinCollectsAll(t *testing.T) {
	cmd := NewShell("printf early; sleep 0.4; printf late").
		WithStdout(stream.UsePipe()).
		MustBuild()
	p, err := Start(cmd)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	_, err = p.CommunicateTimeout(nil, 150*time.Millisecond)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("CommunicateTimeout = %v, want *TimeoutError", err)
	}
	if string(te.Stdout) != "early" {
		t.Errorf("partial Stdout = %q, want %q", te.Stdout, "early")
	}

	// The retry must rejoin the live drainer, not put a second reader on
	// the handle, and return everything collected since the start.
	res, err := p.Communicate(nil)
	if err != nil {
		t.Fatalf("Communicate after expiry: %v", err)
	}
	if string(res.Stdout) != "earlylate" {
		t.Errorf("rejoined Stdout = %q, want %q", res.Stdout, "earlylate")
	}
	if p.ReturnCode() != 0 {
		t.Errorf("ReturnCode = %d, want 0", p.ReturnCode())
	}
}

func TestCommunicateReadErrorStillReaps(t *testing.T) {
	cmd := NewCmd("true").
		WithStdin(stream.UsePipe()).
		WithStdout(stream.UsePipe()).
		MustBuild()
	p, err := Start(cmd)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	// Give the child time to exit, then invalidate the read end so the
	// drain fails instead of reaching EOF.
	time.Sleep(100 * time.Millisecond)
	p.Stdout().Close()

	if _, err := p.Communicate(nil); err == nil {
		t.Fatal("Communicate succeeded on a closed stream")
	}
	if !p.Ended() {
		t.Error("child left unreaped after the failed exchange")
	}
}

func TestDetachDuringConcurrentWait(t *testing.T) {
	for i := 0; i < 25; i++ {
		p, err := Start(NewCmd("true").MustBuild())
		if err != nil {
			t.Fatalf("Start: %v", err)
		}

		done := make(chan error, 1)
		go func() {
			_, werr := p.Wait()
			done <- werr
		}()

		clone := p.Detach()
		if werr := <-done; werr != nil && !errors.Is(werr, ErrDetached) {
			t.Fatalf("Wait racing Detach: %v", werr)
		}
		if code, err := clone.Wait(); err != nil || code != 0 {
			t.Fatalf("clone Wait = (%d, %v), want (0, nil)", code, err)
		}
		clone.Close()
	}
}

func TestConcurrentWaitSingleReap(t *testing.T) {
	p, err := Start(NewShell("sleep 0.1").MustBuild())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	const waiters = 8
	var wg sync.WaitGroup
	codes := make([]int, waiters)
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i], errs[i] = p.Wait()
		}(i)
	}
	wg.Wait()

	for i := 0; i < waiters; i++ {
		if errs[i] != nil {
			t.Errorf("waiter %d: %v", i, errs[i])
		}
		if codes[i] != 0 {
			t.Errorf("waiter %d code = %d, want 0", i, codes[i])
		}
	}
}

func TestPollUntilExit(t *testing.T) {
	p, err := Start(NewCmd("true").MustBuild())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		r, err := p.Poll()
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if r.Status == PollExited {
			if r.Code != 0 {
				t.Errorf("code = %d, want 0", r.Code)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("child never observed as exited")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSignalAfterEndIsNoop(t *testing.T) {
	p, err := Start(NewCmd("true").MustBuild())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()
	if _, err := p.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if err := p.SendSignal(syscall.SIGTERM); err != nil {
		t.Errorf("SendSignal after end = %v, want nil", err)
	}
	if err := p.Terminate(); err != nil {
		t.Errorf("Terminate after end = %v, want nil", err)
	}
	if err := p.Kill(); err != nil {
		t.Errorf("Kill after end = %v, want nil", err)
	}
}

func TestDetach(t *testing.T) {
	p, err := Start(NewCmd("sleep", "30").MustBuild())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	d := p.Detach()

	if _, err := p.Wait(); !errors.Is(err, ErrDetached) {
		t.Errorf("Wait on detached source = %v, want ErrDetached", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close on detached source = %v, want nil", err)
	}

	if err := d.Kill(); err != nil {
		t.Fatalf("Kill via clone: %v", err)
	}
	code, err := d.Wait()
	if err != nil {
		t.Fatalf("Wait via clone: %v", err)
	}
	if code != -int(syscall.SIGKILL) {
		t.Errorf("code = %d, want %d", code, -int(syscall.SIGKILL))
	}
	d.Close()
}

func TestCloseReapsRunningChild(t *testing.T) {
	p, err := Start(NewCmd("true").MustBuild())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !p.Ended() {
		t.Error("proc not Ended after Close")
	}
	if p.ReturnCode() != 0 {
		t.Errorf("ReturnCode = %d, want 0", p.ReturnCode())
	}
}

func TestWorkingDirectory(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}

	cmd := NewShell("pwd").
		WithDir(dir).
		WithStdout(stream.UsePipe()).
		MustBuild()
	p, err := Start(cmd)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	res, err := p.Communicate(nil)
	if err != nil {
		t.Fatalf("Communicate: %v", err)
	}
	if got := strings.TrimSpace(string(res.Stdout)); got != dir {
		t.Errorf("pwd = %q, want %q", got, dir)
	}
}

func TestEnvironmentReplacement(t *testing.T) {
	cmd := NewShell("echo $GREETING").
		WithEnvVar("GREETING", "bonjour").
		WithStdout(stream.UsePipe()).
		MustBuild()
	p, err := Start(cmd)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	res, err := p.Communicate(nil)
	if err != nil {
		t.Fatalf("Communicate: %v", err)
	}
	if got := strings.TrimSpace(string(res.Stdout)); got != "bonjour" {
		t.Errorf("echo = %q, want %q", got, "bonjour")
	}
}

func TestRedirectStdoutToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cmd := NewShell("echo filed").
		WithStdout(stream.UseFile(f, true)).
		MustBuild()
	p, err := Start(cmd)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	if _, err := p.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "filed\n" {
		t.Errorf("file contents = %q, want %q", data, "filed\n")
	}
}

func TestStartFailureUnwindsPipes(t *testing.T) {
	cmd := NewCmd("definitely-not-a-binary-on-anyones-path").
		WithStdout(stream.UsePipe()).
		MustBuild()
	_, err := Start(cmd)
	if err == nil {
		t.Fatal("Start succeeded for a nonexistent binary")
	}
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("Start error = %T, want *Error", err)
	}
	if pe.Op != "start" {
		t.Errorf("Op = %q, want \"start\"", pe.Op)
	}
}
