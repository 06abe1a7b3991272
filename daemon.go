package hazard

import (
	"errors"
	"time"
)

// DaemonTask sleeps, then runs its cleanup. The cleanup is registered with [Thread.Defer], so it
// runs on every exit path of the task itself, including an interrupted sleep, but not when the
// thread is killed because its scope shut down first.
type DaemonTask struct {
	Sleep   time.Duration
	Cleanup func()
}

// Start runs the task on a new thread from factory, in s. With a daemon factory, the thread ends
// [StateKilled] without cleanup if s shuts down during the sleep, and [StateCompleted] otherwise.
func (d DaemonTask) Start(s *Scope, factory ThreadFactory, rep Reporter) *Thread {
	t := factory.NewThread(s, func(t *Thread) error {
		rep.Report(t.Name(), "starting")
		t.Defer(func() {
			rep.Report(t.Name(), "cleanup: am I always run?")
			if d.Cleanup != nil {
				d.Cleanup()
			}
		})

		if err := t.Sleep(d.Sleep); errors.Is(err, ErrInterrupted) {
			t.Logger().WithError(err).
				WithField("stack", t.StackTrace(0).String()).
				Warn("daemon task interrupted, cleaning up early")
		}
		return nil
	})
	t.Start()
	return t
}
