package hazard

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultKeepAlive is how long an idle pool worker waits for a job before retiring.
const DefaultKeepAlive = 60 * time.Second

var (
	ErrPoolShutdown  = errors.New("pool is shut down")
	ErrPoolSaturated = errors.New("pool has no idle worker and is at MaxWorkers")
)

// Job is a unit of work run by a pool worker. An error or panic ends only that job.
type Job func(t *Thread) error

// PoolOptions configures a [Pool].
type PoolOptions struct {
	// KeepAlive is how long an idle worker lives. Defaults to [DefaultKeepAlive].
	KeepAlive time.Duration `yaml:"keepAlive"`
	// MaxWorkers bounds the number of live workers. Zero means unbounded.
	MaxWorkers int `yaml:"maxWorkers"`
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.KeepAlive <= 0 {
		o.KeepAlive = DefaultKeepAlive
	}
	return o
}

// PoolMetrics is a snapshot of a pool's counters.
type PoolMetrics struct {
	Submitted      int64 // jobs accepted by Execute
	Rejected       int64 // jobs refused because the pool was saturated or shut down
	Failed         int64 // jobs that returned an error or panicked
	WorkersStarted int64
	WorkersRetired int64 // workers that exited after KeepAlive without a job
	WorkersLive    int64
	WorkersIdle    int64
}

// Pool is a cached pool of worker threads. Jobs are handed directly to an idle worker; with none
// idle, a new worker is made by the pool's [ThreadFactory]. Workers idle for longer than KeepAlive
// exit.
//
// The pool's threads live in a child [Scope]. With a daemon factory, they are killed when the
// parent scope shuts down and don't keep a [Process] alive.
type Pool struct {
	scope   *Scope
	factory ThreadFactory
	opts    PoolOptions
	handoff chan Job
	slots   *semaphore.Weighted

	closed atomic.Bool

	submitted atomic.Int64
	rejected  atomic.Int64
	failed    atomic.Int64
	started   atomic.Int64
	retired   atomic.Int64
	live      atomic.Int64
	idle      atomic.Int64
}

func NewPool(parent *Scope, factory ThreadFactory, opts PoolOptions) *Pool {
	opts = opts.withDefaults()

	p := &Pool{
		scope:   parent.NewChild("pool"),
		factory: factory,
		opts:    opts,
		handoff: make(chan Job),
	}
	if opts.MaxWorkers > 0 {
		p.slots = semaphore.NewWeighted(int64(opts.MaxWorkers))
	}

	_ = p.scope.OnShutdown(func(context.Context) error {
		p.closed.Store(true)
		return nil
	})

	p.scope.log.WithField("keepAlive", opts.KeepAlive).
		WithField("maxWorkers", opts.MaxWorkers).
		WithField("daemon", factory.Daemon()).
		Debug("pool created")
	return p
}

func (p *Pool) Scope() *Scope { return p.scope }

// Execute runs job on an idle worker, or on a new one.
//
// It returns [ErrPoolShutdown] after shutdown, and [ErrPoolSaturated] if MaxWorkers workers are
// all busy.
func (p *Pool) Execute(job Job) error {
	if p.closed.Load() {
		p.rejected.Add(1)
		return ErrPoolShutdown
	}

	select {
	case p.handoff <- job:
		p.submitted.Add(1)
		return nil
	default:
	}

	if p.slots != nil && !p.slots.TryAcquire(1) {
		p.rejected.Add(1)
		return ErrPoolSaturated
	}

	p.submitted.Add(1)
	p.startWorker(job)
	return nil
}

// Submit executes count copies of job. It stops at the first job that can't be executed.
func (p *Pool) Submit(count int, job Job) error {
	for i := 0; i < count; i += 1 {
		if err := p.Execute(job); err != nil {
			return fmt.Errorf("submitting job %d of %d: %w", i+1, count, err)
		}
	}
	return nil
}

func (p *Pool) startWorker(first Job) {
	p.started.Add(1)
	p.live.Add(1)

	t := p.factory.NewThread(p.scope, func(t *Thread) error {
		p.work(t, first)
		return nil
	})
	t.Start()
}

func (p *Pool) work(t *Thread, job Job) {
	// plain defers still run when a daemon worker is killed
	defer func() {
		p.live.Add(-1)
		if p.slots != nil {
			p.slots.Release(1)
		}
	}()

	log := t.Logger()
	log.Debug("worker started")
	defer log.Debug("worker exiting")

	stop := p.scope.Context().Done()
	for {
		p.runJob(t, job)

		if !p.await(&job, stop) {
			return
		}
	}
}

// await waits for the next job, returning false if the worker should exit instead.
func (p *Pool) await(job *Job, stop <-chan struct{}) bool {
	p.idle.Add(1)
	defer p.idle.Add(-1)

	timer := time.NewTimer(p.opts.KeepAlive)
	defer timer.Stop()

	select {
	case *job = <-p.handoff:
		return true
	case <-timer.C:
		p.retired.Add(1)
		return false
	case <-stop:
		return false
	}
}

func (p *Pool) runJob(t *Thread, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			t.Logger().WithField("panic", r).Debug("job panicked")
		}
	}()

	if err := job(t); err != nil {
		p.failed.Add(1)
		t.Logger().WithError(err).Debug("job failed")
	}
}

// Shutdown stops accepting jobs, kills daemon workers at their next sleep, interrupts user
// workers, and waits for all workers to exit or ctx to expire. The parent scope is unaffected.
func (p *Pool) Shutdown(ctx context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}

	for _, t := range p.scope.UserThreads().Threads() {
		t.Interrupt()
	}

	err := p.scope.Shutdown(ctx)
	if werr := p.scope.UserThreads().TryWait(ctx); werr != nil && err == nil {
		err = werr
	}
	return err
}

func (p *Pool) Metrics() PoolMetrics {
	return PoolMetrics{
		Submitted:      p.submitted.Load(),
		Rejected:       p.rejected.Load(),
		Failed:         p.failed.Load(),
		WorkersStarted: p.started.Load(),
		WorkersRetired: p.retired.Load(),
		WorkersLive:    p.live.Load(),
		WorkersIdle:    p.idle.Load(),
	}
}

// PeriodicTask returns a job that forever sleeps for interval and then reports the running thread
// and the task's identity. Each run of the job is a separate task with its own identity. An
// interrupt ends it, reporting "sleep() interrupted".
func PeriodicTask(interval time.Duration, rep Reporter) Job {
	return func(t *Thread) error {
		task := &periodicTask{interval: interval, rep: rep}
		return task.run(t)
	}
}

type periodicTask struct {
	interval time.Duration
	rep      Reporter
}

func (pt *periodicTask) String() string {
	return fmt.Sprintf("PeriodicTask@%p", pt)
}

func (pt *periodicTask) run(t *Thread) error {
	for {
		if err := t.Sleep(pt.interval); err != nil {
			pt.rep.Report(t.Name(), "sleep() interrupted")
			return nil
		}
		pt.rep.Report(t.Name(), t.String()+" "+pt.String())
	}
}
