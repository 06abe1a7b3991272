package hazard

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrInterrupted is returned by [Thread.Sleep] when the thread is interrupted mid-sleep.
	ErrInterrupted = errors.New("sleep interrupted")
	// ErrAlreadyStarted is the panic value for starting a thread twice.
	ErrAlreadyStarted = errors.New("thread already started")
)

// Runnable is the body of a [Thread]. A non-nil error is reported as an uncaught failure.
type Runnable func(t *Thread) error

// ThreadState is the lifecycle of a [Thread]: Created, Running, then either Completed (its
// deferred cleanup ran) or Killed (its scope shut down while it slept, in its body or in a
// cleanup, so some cleanup was skipped).
type ThreadState int32

const (
	StateCreated ThreadState = iota
	StateRunning
	StateCompleted
	StateKilled
)

func (s ThreadState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("ThreadState(%d)", int32(s))
	}
}

// PanicError is the failure recorded for a thread whose body panicked.
type PanicError struct {
	Thread string
	Value  any
	Stack  StackTrace
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in thread %s: %v", e.Thread, e.Value)
}

// Thread is a named goroutine owned by a [Scope], created by a [ThreadFactory].
//
// A daemon thread is killed when its scope fires [Shutdown]: the next (or current) call to
// [Thread.Sleep] unwinds the goroutine with [runtime.Goexit], and cleanup registered with
// [Thread.Defer] does not run. Plain defer statements in the body still run, as Goexit requires;
// only Defer models a finally block that a kill can skip.
type Thread struct {
	name   string
	daemon bool
	scope  *Scope
	run    Runnable
	log    logrus.FieldLogger

	state     atomic.Int32
	started   atomic.Bool
	killed    atomic.Bool
	interrupt chan struct{}
	kill      <-chan struct{}
	done      chan struct{}
	origin    StackTrace

	// only touched from the thread's own goroutine until done is closed
	cleanups []func()
	err      error
}

func (t *Thread) Name() string   { return t.name }
func (t *Thread) IsDaemon() bool { return t.daemon }
func (t *Thread) Scope() *Scope  { return t.scope }

// Logger returns the scope's logger with a "thread" field.
func (t *Thread) Logger() logrus.FieldLogger { return t.log }

func (t *Thread) State() ThreadState {
	return ThreadState(t.state.Load())
}

// String formats t like "Thread[daemon-3,daemon]".
func (t *Thread) String() string {
	kind := "user"
	if t.daemon {
		kind = "daemon"
	}
	return fmt.Sprintf("Thread[%s,%s]", t.name, kind)
}

// Start launches the thread's goroutine. Start panics with [ErrAlreadyStarted] if called twice.
func (t *Thread) Start() {
	if !t.started.CompareAndSwap(false, true) {
		panic(fmt.Errorf("%s: %w", t, ErrAlreadyStarted))
	}

	t.origin = GetStackTrace(nil, 1)
	t.scope.register(t)
	if t.daemon {
		t.kill = t.scope.hooks.Context(Shutdown).Done()
	}
	t.state.Store(int32(StateRunning))

	go t.main()
}

func (t *Thread) main() {
	// exit runs last, even when a kill unwinds runCleanups partway
	defer t.exit()
	defer t.runCleanups()
	t.err = t.invoke()
}

func (t *Thread) invoke() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{
				Thread: t.name,
				Value:  r,
				Stack:  t.StackTrace(2),
			}
		}
	}()
	return t.run(t)
}

// runCleanups pops and runs the Defer'd cleanups, unless the thread was killed. A kill partway
// through leaves the remaining cleanups unrun.
func (t *Thread) runCleanups() {
	if t.killed.Load() {
		t.log.Debug("thread killed, skipping cleanup")
		t.cleanups = nil
		return
	}
	for len(t.cleanups) != 0 {
		last := len(t.cleanups) - 1
		f := t.cleanups[last]
		t.cleanups = t.cleanups[:last]
		t.runCleanup(f)
	}
}

// exit runs on every way out of main, including runtime.Goexit from a kill.
func (t *Thread) exit() {
	if t.killed.Load() {
		t.state.Store(int32(StateKilled))
		if len(t.cleanups) != 0 {
			t.log.WithField("skipped", len(t.cleanups)).Debug("thread killed during cleanup")
		}
	} else {
		t.state.Store(int32(StateCompleted))
	}
	t.cleanups = nil

	if t.err != nil {
		entry := t.log.WithError(t.err)
		var p *PanicError
		if errors.As(t.err, &p) {
			entry = entry.WithField("stack", p.Stack.String())
		}
		entry.Warn("uncaught failure in thread")
	}

	t.scope.unregister(t)
	close(t.done)
}

func (t *Thread) runCleanup(f func()) {
	defer func() {
		if r := recover(); r != nil && t.err == nil {
			t.err = &PanicError{Thread: t.name, Value: r, Stack: t.StackTrace(2)}
		}
	}()
	f()
}

// Defer registers cleanup to run when the body returns, fails, or panics. Cleanups run in reverse
// order of registration. They do not run if the thread is killed; a kill while a cleanup sleeps
// skips the cleanups that haven't run yet.
//
// Defer must only be called from the thread itself.
func (t *Thread) Defer(cleanup func()) {
	t.cleanups = append(t.cleanups, cleanup)
}

// Sleep pauses the thread for d. It returns [ErrInterrupted] if [Thread.Interrupt] is called
// before d elapses, consuming the interrupt. If the thread is a daemon and its scope shuts down,
// Sleep does not return: the goroutine is unwound and the thread ends up [StateKilled].
//
// Sleep must only be called from the thread itself.
func (t *Thread) Sleep(d time.Duration) error {
	if isClosed(t.kill) {
		t.die()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-t.interrupt:
		return ErrInterrupted
	case <-t.kill:
		t.die()
		return nil // unreachable
	}
}

func (t *Thread) die() {
	t.killed.Store(true)
	runtime.Goexit()
}

// Interrupt wakes the thread from its current or next [Thread.Sleep]. Multiple interrupts before
// the thread sleeps count as one.
func (t *Thread) Interrupt() {
	select {
	case t.interrupt <- struct{}{}:
	default:
	}
}

// Done returns a channel that is closed once the thread has exited, by any path.
func (t *Thread) Done() <-chan struct{} {
	return t.done
}

// Join blocks until the thread exits, with no timeout, and returns its uncaught failure, if any.
// Joining a killed thread returns nil.
//
// Join on a thread that was never started blocks until it is started and exits.
func (t *Thread) Join() error {
	<-t.done
	return t.err
}

// Alive reports whether t has been started and has not yet exited.
func (t *Thread) Alive() bool {
	return t.started.Load() && !isClosed(t.done)
}

// StackTrace collects the calling goroutine's stack with t's start site as the parent. It is
// meaningful when called from within t.
func (t *Thread) StackTrace(skip uint) StackTrace {
	st := GetStackTrace(&t.origin, skip+1)
	st.Origin = t.String()
	return st
}
