package hazard

import (
	"strconv"
	"sync/atomic"
)

// ThreadFactory creates threads with a common name prefix and daemon flag. It is immutable; copies
// share the sequence used to number thread names.
//
// The zero ThreadFactory is not usable; see [NewThreadFactory].
type ThreadFactory struct {
	prefix string
	daemon bool
	seq    *atomic.Uint64
}

func NewThreadFactory(prefix string, daemon bool) ThreadFactory {
	return ThreadFactory{prefix: prefix, daemon: daemon, seq: new(atomic.Uint64)}
}

// DaemonThreadFactory returns a factory whose threads don't keep a [Process] alive.
func DaemonThreadFactory() ThreadFactory {
	return NewThreadFactory("daemon", true)
}

// UserThreadFactory returns a factory for ordinary threads, which a [Process] waits for.
func UserThreadFactory() ThreadFactory {
	return NewThreadFactory("thread", false)
}

func (f ThreadFactory) Daemon() bool { return f.daemon }

// NewThread returns an unstarted thread in s, named "<prefix>-<n>".
func (f ThreadFactory) NewThread(s *Scope, run Runnable) *Thread {
	n := f.seq.Add(1)
	return f.NewNamedThread(s, f.prefix+"-"+strconv.FormatUint(n, 10), run)
}

// NewNamedThread is like NewThread, but with an explicit name.
func (f ThreadFactory) NewNamedThread(s *Scope, name string, run Runnable) *Thread {
	return &Thread{
		name:      name,
		daemon:    f.daemon,
		scope:     s,
		run:       run,
		log:       s.log.WithField("thread", name),
		interrupt: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}
