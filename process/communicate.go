package process

import (
	"errors"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/victoralfred/subproc/stream"
)

// Result carries everything a piped child produced on each output stream.
type Result struct {
	Stdout []byte
	Stderr []byte
}

// Communicate runs the full I/O exchange with a piped child: write input to
// stdin (when piped) and close it, drain stdout and stderr (when piped) to
// completion, then reap the child. The output drainers and the stdin writer
// each run on their own goroutine whenever more than one stream direction is
// involved, so a child that fills one pipe while the parent is busy on
// another never deadlocks the exchange.
//
// Input is ignored when stdin is not piped. Calling Communicate on an ended
// Proc returns an empty Result, unless a timed-out exchange is still live, in
// which case Communicate rejoins it.
func (p *Proc) Communicate(input []byte) (Result, error) {
	if err := p.Start(); err != nil {
		return Result{}, err
	}
	if p.Ended() && !p.exchanging() {
		return Result{}, nil
	}

	// With at most one stream direction in play there is nothing to
	// deadlock against, so handle it inline without goroutines.
	if p.sequential() {
		return p.communicateSequential(input)
	}
	p.startExchange(input)

	var res Result
	readErr := p.joinInput()
	if p.outD != nil {
		b, err := p.outD.wait()
		res.Stdout = b
		if readErr == nil {
			readErr = err
		}
		p.outD = nil
		p.stdout.Close()
		p.stdout = nil
	}
	if p.errD != nil {
		b, err := p.errD.wait()
		res.Stderr = b
		if readErr == nil {
			readErr = err
		}
		p.errD = nil
		p.stderr.Close()
		p.stderr = nil
	}
	if readErr != nil {
		// Best-effort reap so a failed exchange cannot leave a zombie;
		// the caller still owns the Proc and can Kill or Wait it.
		p.Poll()
		return res, &Error{Op: "communicate", Args: p.args, Err: readErr}
	}
	if _, err := p.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

// CommunicateTimeout behaves like Communicate but gives up once timeout
// elapses. On expiry it returns a *TimeoutError carrying whatever output had
// been collected so far; the child keeps running and the exchange tasks stay
// live, so the caller can Kill and call Communicate (or CommunicateTimeout)
// again to rejoin them and collect the full output gathered since the start.
func (p *Proc) CommunicateTimeout(input []byte, timeout time.Duration) (Result, error) {
	if err := p.Start(); err != nil {
		return Result{}, err
	}
	if p.Ended() && !p.exchanging() {
		return Result{}, nil
	}
	deadline := time.Now().Add(timeout)
	p.startExchange(input)

	expired := func() (Result, error) {
		var res Result
		if p.outD != nil {
			res.Stdout = p.outD.snapshot()
		}
		if p.errD != nil {
			res.Stderr = p.errD.snapshot()
		}
		return res, &TimeoutError{
			Args:    p.args,
			Timeout: timeout,
			Stdout:  res.Stdout,
			Stderr:  res.Stderr,
		}
	}

	var res Result
	var readErr error
	if p.inW != nil {
		if !p.inW.waitUntil(deadline) {
			return expired()
		}
		readErr = p.joinInput()
	}
	if p.outD != nil {
		b, ok, err := p.outD.waitUntil(deadline)
		if !ok {
			return expired()
		}
		res.Stdout, readErr = b, firstErr(readErr, err)
		p.outD = nil
		p.stdout.Close()
		p.stdout = nil
	}
	if p.errD != nil {
		b, ok, err := p.errD.waitUntil(deadline)
		if !ok {
			return expired()
		}
		res.Stderr = b
		readErr = firstErr(readErr, err)
		p.errD = nil
		p.stderr.Close()
		p.stderr = nil
	}
	if readErr != nil {
		p.Poll()
		return res, &Error{Op: "communicate", Args: p.args, Err: readErr}
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		return res, &TimeoutError{Args: p.args, Timeout: timeout, Stdout: res.Stdout, Stderr: res.Stderr}
	}
	if _, err := p.WaitTimeout(remaining); err != nil {
		var te *TimeoutError
		if errors.As(err, &te) {
			te.Stdout = res.Stdout
			te.Stderr = res.Stderr
		}
		return res, err
	}
	return res, nil
}

// startExchange launches whichever exchange tasks are not already running:
// one drainer per piped output, then one writer for a piped stdin. The
// drainers come up first so the child always has somewhere to put output
// while its input is still being streamed in. Tasks survive a timed-out
// exchange; a retry rejoins them instead of putting a second reader on the
// same handle.
func (p *Proc) startExchange(input []byte) {
	if p.stdout != nil && p.outD == nil {
		p.outD = drain(p.stdout)
	}
	if p.stderr != nil && p.errD == nil {
		p.errD = drain(p.stderr)
	}
	if p.stdin != nil && p.inW == nil {
		p.inW = writeAsync(p.stdin, input)
		p.stdin = nil
	}
}

// exchanging reports whether a timed-out exchange left live tasks behind.
func (p *Proc) exchanging() bool {
	return p.inW != nil || p.outD != nil || p.errD != nil
}

// joinInput collects the stdin writer's outcome, blocking until the write
// ends.
func (p *Proc) joinInput() error {
	if p.inW == nil {
		return nil
	}
	err := p.inW.wait()
	p.inW = nil
	return err
}

// sequential reports whether at most one stream direction is piped. A live
// exchange is never sequential: its tasks must be rejoined.
func (p *Proc) sequential() bool {
	if p.exchanging() {
		return false
	}
	if p.stdin == nil {
		return p.stdout == nil || p.stderr == nil
	}
	return p.stdout == nil && p.stderr == nil
}

func (p *Proc) communicateSequential(input []byte) (Result, error) {
	var res Result
	switch {
	case p.stdin != nil:
		if err := p.writeInput(input); err != nil {
			return res, err
		}
	case p.stdout != nil:
		b, err := p.stdout.ReadAll()
		res.Stdout = b
		p.stdout.Close()
		p.stdout = nil
		if err != nil {
			p.Poll()
			return res, &Error{Op: "communicate", Args: p.args, Err: err}
		}
	case p.stderr != nil:
		b, err := p.stderr.ReadAll()
		res.Stderr = b
		p.stderr.Close()
		p.stderr = nil
		if err != nil {
			p.Poll()
			return res, &Error{Op: "communicate", Args: p.args, Err: err}
		}
	}
	if _, err := p.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

// writeInput sends input to a piped stdin and closes the write end so the
// child sees EOF. A broken pipe is not an error here: the child may simply
// have exited without reading all of its input.
func (p *Proc) writeInput(input []byte) error {
	if p.stdin == nil {
		return nil
	}
	var err error
	if len(input) > 0 {
		_, err = p.stdin.Write(input)
		if errors.Is(err, syscall.EPIPE) {
			err = nil
		}
	}
	p.stdin.Close()
	p.stdin = nil
	if err != nil {
		return &Error{Op: "communicate", Args: p.args, Err: err}
	}
	return nil
}

func firstErr(a, b error) error {
	if a != nil {
		return a
	}
	return b
}

// inputWriter feeds a piped stdin on its own goroutine and closes it so the
// child sees EOF. Decoupling the write from the output drainers is what
// keeps a child that fills an output pipe mid-read from wedging the
// exchange.
type inputWriter struct {
	err  error
	done chan struct{}
}

func writeAsync(h *stream.Handle, input []byte) *inputWriter {
	w := &inputWriter{done: make(chan struct{})}
	go func() {
		defer close(w.done)
		defer h.Close()
		if len(input) == 0 {
			return
		}
		// Broken pipe: the child exited without reading its input.
		if _, err := h.Write(input); err != nil && !errors.Is(err, syscall.EPIPE) {
			w.err = err
		}
	}()
	return w
}

// wait blocks until the write ends and returns its outcome.
func (w *inputWriter) wait() error {
	<-w.done
	return w.err
}

// waitUntil reports false when the deadline passes before the write ends.
func (w *inputWriter) waitUntil(deadline time.Time) bool {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-w.done:
		return true
	case <-timer.C:
		return false
	}
}

// drainer reads one pipe to EOF on its own goroutine, keeping the collected
// bytes observable mid-flight for timeout snapshots.
type drainer struct {
	h    *stream.Handle
	mu   sync.Mutex
	buf  []byte
	err  error
	done chan struct{}
}

func drain(h *stream.Handle) *drainer {
	d := &drainer{h: h, done: make(chan struct{})}
	go d.run()
	return d
}

func (d *drainer) run() {
	defer close(d.done)
	f := d.h.File()
	if f == nil {
		d.err = os.ErrInvalid
		return
	}
	chunk := make([]byte, 4096)
	for {
		// Single reads, not read-full: a timeout snapshot must see
		// bytes as soon as they arrive.
		n, err := f.Read(chunk)
		if n > 0 {
			d.mu.Lock()
			d.buf = append(d.buf, chunk[:n]...)
			d.mu.Unlock()
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			d.err = err
			return
		}
	}
}

// wait blocks until EOF and returns everything read.
func (d *drainer) wait() ([]byte, error) {
	<-d.done
	return d.buf, d.err
}

// waitUntil blocks until EOF or the deadline. ok is false on expiry, in
// which case the returned bytes are a snapshot of what has arrived so far.
func (d *drainer) waitUntil(deadline time.Time) (b []byte, ok bool, err error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-d.done:
		return d.buf, true, d.err
	case <-timer.C:
		return d.snapshot(), false, nil
	}
}

// snapshot copies what has been read so far without waiting for EOF.
func (d *drainer) snapshot() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.buf...)
}
