package hazard

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// Scope owns a set of threads: a [ThreadGroup] of user threads, a ThreadGroup of daemon threads,
// and the [Hooks] that kill the daemons when [Shutdown] fires. Scopes nest; a child is shut down
// along with its parent, and its threads count towards the parent's groups.
type Scope struct {
	name    string
	hooks   *Hooks
	users   *ThreadGroup
	daemons *ThreadGroup
	log     logrus.FieldLogger
}

// NewScope creates a root Scope. A nil log uses [logrus.StandardLogger].
func NewScope(name string, log logrus.FieldLogger) *Scope {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return newScope(name, NewHooks(), NewThreadGroup(name), NewThreadGroup(name), log)
}

func newScope(name string, hooks *Hooks, users, daemons *ThreadGroup, log logrus.FieldLogger) *Scope {
	s := &Scope{
		name:    name,
		hooks:   hooks,
		users:   users,
		daemons: daemons,
		log:     log.WithField("scope", name),
	}
	// registered first, so it runs after every other callback and child
	_ = hooks.On(Shutdown, context.Background(), func(context.Context) error {
		hooks.Stop()
		return nil
	})
	return s
}

// NewChild creates a Scope nested within s.
func (s *Scope) NewChild(name string) *Scope {
	return newScope(name, s.hooks.NewChild(), s.users.NewSubgroup(name), s.daemons.NewSubgroup(name), s.log)
}

func (s *Scope) Name() string                { return s.name }
func (s *Scope) Logger() logrus.FieldLogger  { return s.log }
func (s *Scope) Hooks() *Hooks               { return s.hooks }
func (s *Scope) UserThreads() *ThreadGroup   { return s.users }
func (s *Scope) DaemonThreads() *ThreadGroup { return s.daemons }

// Context returns a context that is canceled once s has shut down.
func (s *Scope) Context() context.Context {
	return s.hooks.Context(Shutdown)
}

// OnShutdown registers a shutdown hook. Hooks run in reverse order of registration, before the
// scope's daemon threads have necessarily unwound. A failing hook is logged and doesn't stop the
// hooks after it.
func (s *Scope) OnShutdown(hook func(context.Context) error) error {
	return s.hooks.WithErrorHandler(s.logHookError).On(Shutdown, context.Background(), hook)
}

func (s *Scope) logHookError(_ context.Context, err error) error {
	s.log.WithError(err).Warn("shutdown hook failed")
	return nil
}

// Shutdown fires [Shutdown] on s and its children, then waits for the daemon threads to unwind or
// ctx to expire. Daemon threads that never sleep again are not waited out; their names are logged.
func (s *Scope) Shutdown(ctx context.Context) error {
	fireErr := s.hooks.Fire(Shutdown, ctx)
	if fireErr != nil {
		s.log.WithError(fireErr).Warn("shutdown hook failed")
	}

	waitErr := s.daemons.TryWait(ctx)
	if waitErr != nil {
		s.log.WithField("live", s.daemons.Tree().String()).Warn("daemon threads outlived shutdown")
	}
	return errors.Join(fireErr, waitErr)
}

// Close releases the scope's hooks without firing them.
func (s *Scope) Close() {
	s.hooks.Stop()
}

func (s *Scope) group(t *Thread) *ThreadGroup {
	if t.daemon {
		return s.daemons
	}
	return s.users
}

func (s *Scope) register(t *Thread) {
	s.group(t).Add(t)
}

func (s *Scope) unregister(t *Thread) {
	s.group(t).Done(t)
}

// ScopeTree is a snapshot of the live threads in a [Scope].
type ScopeTree struct {
	Name    string    `json:"name" yaml:"name"`
	Users   GroupTree `json:"users" yaml:"users"`
	Daemons GroupTree `json:"daemons" yaml:"daemons"`
}

func (s *Scope) Tree() ScopeTree {
	return ScopeTree{Name: s.name, Users: s.users.Tree(), Daemons: s.daemons.Tree()}
}

// String formats the tree as YAML.
func (t ScopeTree) String() string {
	return marshalTree(t)
}
