package hazard

import (
	"context"
	"os"
	ossignal "os/signal" // renamed so arguments can be named 'event'
	"sync"

	"golang.org/x/exp/slices"
)

// Shutdown is the event fired by a [Process] once its last non-daemon thread has exited. Firing it
// on a [Scope] kills that scope's daemon threads.
var Shutdown shutdownEvent

type shutdownEvent struct{}

func (shutdownEvent) String() string { return "shutdown" }

// HookRegister is the registration half of [Hooks], optionally with an error handler attached.
type HookRegister interface {
	On(event any, immediateCtx context.Context, callbacks ...func(context.Context) error) error
	WithErrorHandler(handler func(context.Context, error) error) HookRegister
}

// Hooks is a tree of one-shot event callbacks, used for shutdown hooks.
//
// Callbacks registered with [Hooks.On] run at most once, when the event is fired, in reverse order
// of registration. Children created with [Hooks.NewChild] are fired along with their parent, and
// are ordered among the parent's callbacks by when they were created. Firing a child does not
// affect its parent.
//
// An event that is an [os.Signal] is forwarded from the OS automatically, once anything is
// registered for it.
type Hooks struct {
	mu sync.Mutex

	parent     *Hooks
	idInParent int
	children   []*Hooks

	events   map[any]eventState
	nextID   int
	stopping bool
	stopped  bool
}

type eventState struct {
	ctx    context.Context
	cancel context.CancelFunc

	callbacks []hookCallback
	cleanup   func()
	fired     bool
	inherited bool
}

type hookCallback struct {
	id    int
	f     func(context.Context) error
	onErr func(context.Context, error) error
}

type hooksWithErrorHandler struct {
	base       *Hooks
	errHandler func(context.Context, error) error
}

func NewHooks() *Hooks {
	return &Hooks{events: make(map[any]eventState)}
}

// NewChild returns a Hooks nested within h. Events already fired on h count as fired on the child.
//
// If h is already stopped, NewChild returns h.
func (h *Hooks) NewChild() *Hooks {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopping || h.stopped {
		return h
	}

	id := h.nextID
	h.nextID += 1

	child := &Hooks{
		parent:     h,
		idInParent: id,
		events:     make(map[any]eventState),
	}
	for ev, state := range h.events {
		if state.fired {
			child.events[ev] = eventState{fired: true, inherited: true}
		}
	}

	h.children = append(h.children, child)
	return child
}

func (h *Hooks) forwardOSSignal(s *eventState, event any) {
	if s.fired || s.cleanup != nil {
		return
	}

	sig, ok := event.(os.Signal)
	if !ok {
		return
	}

	ch := make(chan os.Signal, 1)
	ossignal.Notify(ch, sig)
	s.cleanup = func() {
		ossignal.Stop(ch)
		close(ch)
	}
	go func() {
		for range ch {
			_ = h.Fire(event, context.Background())
		}
	}()
}

// On registers callbacks for the event. If the event has already fired, the callbacks are called
// immediately with immediateCtx, and the first unhandled error is returned.
func (h *Hooks) On(event any, immediateCtx context.Context, callbacks ...func(context.Context) error) error {
	return h.on(event, immediateCtx, nil, callbacks...)
}

// WithErrorHandler returns a HookRegister whose callbacks pass their errors through handler. A nil
// result from handler means the error was handled, and later callbacks still run.
func (h *Hooks) WithErrorHandler(handler func(context.Context, error) error) HookRegister {
	return &hooksWithErrorHandler{base: h, errHandler: handler}
}

func (r *hooksWithErrorHandler) On(event any, ctx context.Context, callbacks ...func(context.Context) error) error {
	return r.base.on(event, ctx, r.errHandler, callbacks...)
}

func (r *hooksWithErrorHandler) WithErrorHandler(handler func(context.Context, error) error) HookRegister {
	outer := r.errHandler
	return &hooksWithErrorHandler{
		base: r.base,
		errHandler: func(ctx context.Context, err error) error {
			if err = handler(ctx, err); err != nil {
				err = outer(ctx, err)
			}
			return err
		},
	}
}

func (h *Hooks) on(event any, ctx context.Context, errHandler func(context.Context, error) error, callbacks ...func(context.Context) error) error {
	h.mu.Lock()

	if h.stopping || h.stopped {
		h.mu.Unlock()
		return nil
	}

	s := h.events[event]
	h.forwardOSSignal(&s, event)

	if s.fired {
		h.events[event] = s
		h.mu.Unlock()

		for i := len(callbacks) - 1; i >= 0; i -= 1 {
			err := callbacks[i](ctx)
			if err != nil && errHandler != nil {
				err = errHandler(ctx, err)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}

	for _, f := range callbacks {
		s.callbacks = append(s.callbacks, hookCallback{id: h.nextID, f: f, onErr: errHandler})
		h.nextID += 1
	}
	h.events[event] = s
	h.mu.Unlock()
	return nil
}

var canceledContext = func() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}()

// Context returns a context that is canceled when the event fires on h or any of its ancestors.
func (h *Hooks) Context(event any) context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopping || h.stopped {
		return canceledContext
	}

	s := h.events[event]
	if s.fired {
		return canceledContext
	} else if s.ctx != nil {
		return s.ctx
	}

	h.forwardOSSignal(&s, event)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	h.events[event] = s
	return s.ctx
}

// Fired reports whether the event has fired on h.
func (h *Hooks) Fired(event any) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events[event].fired
}

// Fire fires the event on h and then its children, calling every pending callback. Callbacks are
// called without holding h's lock, so they may register more callbacks or fire other events.
//
// The first unhandled callback error stops the remaining callbacks and is returned. Firing an
// event a second time does nothing.
func (h *Hooks) Fire(event any, ctx context.Context) error {
	return h.fire(event, ctx, true)
}

func (h *Hooks) fire(event any, ctx context.Context, explicit bool) error {
	h.mu.Lock()
	locked := true
	defer func() {
		if locked {
			h.mu.Unlock()
		}
	}()

	if h.stopping || h.stopped {
		return nil
	}

	s := h.events[event]
	if s.fired {
		if s.inherited && explicit {
			s.inherited = false
			h.events[event] = s
		}
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}
	// once fired, nothing else writes to s; its fields stay readable without the lock
	s.fired = true
	h.events[event] = s

	cbIdx := len(s.callbacks) - 1
	children := slices.Clone(h.children)
	childIdx := len(children) - 1

	var err error
	for err == nil && (cbIdx >= 0 || childIdx >= 0) {
		cbID, childID := -1, -1
		if cbIdx >= 0 {
			cbID = s.callbacks[cbIdx].id
		}
		if childIdx >= 0 {
			childID = children[childIdx].idInParent
		}

		locked = false
		h.mu.Unlock()

		if cbID > childID {
			cb := s.callbacks[cbIdx]
			err = cb.f(ctx)
			if err != nil && cb.onErr != nil {
				err = cb.onErr(ctx, err)
			}
			cbIdx -= 1
		} else {
			err = children[childIdx].fire(event, ctx, false)
			childIdx -= 1
		}

		h.mu.Lock()
		locked = true
	}

	// drop the callbacks so their closures can be collected
	s.callbacks = nil
	h.events[event] = s
	return err
}

// Stop releases OS signal forwarding. The Hooks and its already-stopped children detach from the
// parent once all children have stopped. Nothing fires after Stop.
func (h *Hooks) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopping || h.stopped {
		return
	}

	h.stopping = true
	h.rectifyStop()
}

func (h *Hooks) rectifyStop() {
	if !h.stopping || len(h.children) != 0 {
		return
	}

	h.stopped = true
	for _, s := range h.events {
		if s.cleanup != nil {
			s.cleanup()
		}
	}

	if h.parent == nil {
		return
	}

	h.parent.mu.Lock()
	defer h.parent.mu.Unlock()

	idx, ok := slices.BinarySearchFunc(h.parent.children, h.idInParent, func(c *Hooks, id int) int {
		switch {
		case c.idInParent < id:
			return -1
		case c.idInParent > id:
			return 1
		default:
			return 0
		}
	})
	if !ok {
		panic("internal error: child Hooks not found in parent")
	}
	h.parent.children = slices.Delete(h.parent.children, idx, idx+1)
	h.parent.rectifyStop()
}
