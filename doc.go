/*
Package hazard reproduces a handful of classic concurrency hazards on top of a small thread
runtime, so that each one can be run, observed, and tested.

The demonstrations:

- [FlagRace]: a number published through a plain boolean flag, with no synchronization
- [EscapingObject]: a reference leaked to another thread before construction finishes
- [JoinBarrier]: a task started only after two others have been joined
- [DaemonTask]: a daemon whose cleanup is skipped if the process exits before it wakes
- [Pool]: periodic tasks on a cached pool of daemon threads

Each is listed in [Demos], runnable as the main path of a [Process].

# Threads

A [Thread] is a named goroutine created by a [ThreadFactory] and owned by a [Scope]. Threads are
either user threads or daemon threads. A [Process] waits for all of its user threads before it
shuts down; shutting down kills its daemon threads.

Go can't kill a goroutine from outside, so a kill is only noticed at [Thread.Sleep]: a daemon
thread whose scope has shut down is unwound there, and the cleanups it registered with
[Thread.Defer] are skipped. The thread's state then records whether cleanup ran
([StateCompleted]) or was skipped ([StateKilled]).

# Scopes and shutdown

Each [Scope] tracks its live threads in two hierarchical [ThreadGroup]s, and owns a [Hooks] node
on which [Shutdown] fires. Child scopes, like the one each [Pool] creates, are shut down with their
parent but can also be shut down alone.

Hooks run callbacks in reverse order of registration, interleaved with children by creation
order, and can forward OS signals.

# Observing

Demonstrations write progress lines to a [Reporter]. [LogReporter] sends them to logrus, and
[Recorder] keeps them in order for tests.
*/
package hazard
