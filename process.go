package hazard

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// ProcessConfig holds the parameters of a [Process].
type ProcessConfig struct {
	Name string
	// Grace bounds how long Run waits for daemon threads to unwind after shutdown. Defaults to
	// 100ms.
	Grace time.Duration
	// Signals are forwarded to [Shutdown] while the process runs, e.g. os.Interrupt.
	Signals []os.Signal
	Logger  logrus.FieldLogger
}

func (c ProcessConfig) withDefaults() ProcessConfig {
	if c.Name == "" {
		c.Name = "main"
	}
	if c.Grace <= 0 {
		c.Grace = 100 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c
}

// Process is the root [Scope] of a program. Like a JVM, it stays alive until its main function has
// returned and every user thread has exited; daemon threads are then killed.
type Process struct {
	*Scope
	cfg ProcessConfig
}

func NewProcess(cfg ProcessConfig) *Process {
	cfg = cfg.withDefaults()
	p := &Process{
		Scope: NewScope(cfg.Name, cfg.Logger),
		cfg:   cfg,
	}

	for _, sig := range cfg.Signals {
		sig := sig
		_ = p.hooks.On(sig, context.Background(), func(ctx context.Context) error {
			p.log.WithField("signal", sig).Info("signal received, shutting down")
			return p.hooks.Fire(Shutdown, ctx)
		})
	}
	return p
}

// Run calls main on the calling goroutine, waits for all user threads, then shuts down. A panic in
// main is returned as a *PanicError after the same wait, as an uncaught exception in a JVM's main
// thread would be.
//
// If the process shuts down early (by signal), Run stops waiting for user threads.
func (p *Process) Run(main func(p *Process) error) (err error) {
	defer p.Close()

	err = p.callMain(main)
	if err != nil {
		p.log.WithError(err).Error("main failed")
	}

	select {
	case <-p.users.Wait():
	case <-p.Context().Done():
	}
	if p.hooks.Fired(Shutdown) && !p.users.Finished() {
		p.log.WithField("live", p.users.Tree().String()).Info("shut down before user threads exited")
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Grace)
	defer cancel()
	if serr := p.Shutdown(ctx); serr != nil {
		p.log.WithError(serr).Debug("incomplete shutdown")
	}
	return err
}

func (p *Process) callMain(main func(p *Process) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Thread: p.name, Value: r, Stack: GetStackTrace(nil, 2)}
		}
	}()
	if err := main(p); err != nil {
		return fmt.Errorf("%s: %w", p.name, err)
	}
	return nil
}

// Hold keeps the calling goroutine busy for d, like a sleeping main thread. It returns early, with
// false, if the process shuts down.
func (p *Process) Hold(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-p.Context().Done():
		return false
	}
}
