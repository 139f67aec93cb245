package process

import (
	"time"
)

// Timed waits poll with a doubling backoff so short-lived children are
// noticed quickly without spinning on long-lived ones.
const (
	waitDelayInitial = 500 * time.Microsecond
	waitDelayBound   = 50 * time.Millisecond
)

// Wait blocks until the child ends and returns its code: non-negative for a
// normal exit, negative for the signal that stopped or terminated it. Once a
// child has been reaped every further Wait returns the cached code, so
// concurrent waiters are safe.
func (p *Proc) Wait() (int, error) {
	if err := p.Start(); err != nil {
		return 0, err
	}
	for {
		if p.Ended() {
			return p.code, nil
		}
		p.reapMu.Lock()
		switch p.state.Load() {
		case stateEnded:
			code := p.code
			p.reapMu.Unlock()
			return code, nil
		case stateDetached:
			// Another goroutine detached this reference while we were
			// acquiring the lock; the child now belongs to the clone.
			p.reapMu.Unlock()
			return 0, ErrDetached
		}
		done, code, err := p.os.Load().Reap()
		if err != nil {
			p.reapMu.Unlock()
			return 0, &Error{Op: "wait", Args: p.args, Err: err}
		}
		if done {
			p.finishLocked(code)
			p.reapMu.Unlock()
			return code, nil
		}
		// Another reference reaped between our state check and the
		// reap call; loop to pick up the cached code.
		p.reapMu.Unlock()
	}
}

// WaitTimeout behaves like Wait but gives up once timeout elapses, returning
// a *TimeoutError. The child keeps running; the caller decides whether to
// Terminate, Kill or keep waiting.
func (p *Proc) WaitTimeout(timeout time.Duration) (int, error) {
	if err := p.Start(); err != nil {
		return 0, err
	}
	deadline := time.Now().Add(timeout)
	delay := waitDelayInitial
	for {
		if p.Ended() {
			return p.code, nil
		}
		if p.reapMu.TryLock() {
			switch p.state.Load() {
			case stateEnded:
				code := p.code
				p.reapMu.Unlock()
				return code, nil
			case stateDetached:
				p.reapMu.Unlock()
				return 0, ErrDetached
			}
			done, code, err := p.os.Load().TryReap()
			if err != nil {
				p.reapMu.Unlock()
				return 0, &Error{Op: "wait", Args: p.args, Err: err}
			}
			if done {
				p.finishLocked(code)
				p.reapMu.Unlock()
				return code, nil
			}
			p.reapMu.Unlock()
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, &TimeoutError{Args: p.args, Timeout: timeout}
		}
		delay = min(min(2*delay, remaining), waitDelayBound)
		time.Sleep(delay)
	}
}

// PollStatus classifies the outcome of a Poll.
type PollStatus int

const (
	// PollExited: the child has ended; PollResult.Code holds its code.
	PollExited PollStatus = iota
	// PollRunning: the child is still alive.
	PollRunning
	// PollLockMissed: another reference held the reap lock; nothing was
	// learned. Retry later.
	PollLockMissed
)

func (s PollStatus) String() string {
	switch s {
	case PollExited:
		return "exited"
	case PollRunning:
		return "running"
	case PollLockMissed:
		return "lock-missed"
	default:
		return "unknown"
	}
}

// PollResult is the outcome of a non-blocking liveness check.
type PollResult struct {
	Status PollStatus
	Code   int // valid only when Status == PollExited
}

// Poll checks the child without blocking. It never waits: if another
// reference holds the reap lock the result is PollLockMissed rather than a
// stall.
func (p *Proc) Poll() (PollResult, error) {
	if err := p.Start(); err != nil {
		return PollResult{}, err
	}
	if p.Ended() {
		return PollResult{Status: PollExited, Code: p.code}, nil
	}
	if !p.reapMu.TryLock() {
		return PollResult{Status: PollLockMissed}, nil
	}
	defer p.reapMu.Unlock()
	switch p.state.Load() {
	case stateEnded:
		return PollResult{Status: PollExited, Code: p.code}, nil
	case stateDetached:
		return PollResult{}, ErrDetached
	}
	done, code, err := p.os.Load().TryReap()
	if err != nil {
		return PollResult{}, &Error{Op: "poll", Args: p.args, Err: err}
	}
	if !done {
		return PollResult{Status: PollRunning}, nil
	}
	p.finishLocked(code)
	return PollResult{Status: PollExited, Code: code}, nil
}
