package hazard

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v2"
)

// ThreadGroup is a hierarchical set of live threads, usable as a [sync.WaitGroup] keyed by
// [*Thread]:
//
//  1. Threads are added individually with [ThreadGroup.Add] and removed with [ThreadGroup.Done]
//  2. ThreadGroups nest, and a parent is only finished once all of its subgroups are
//  3. [ThreadGroup.Wait] returns a channel, so it can be selected over
//  4. The live threads can be listed with [ThreadGroup.Threads] or [ThreadGroup.Tree]
//  5. More threads may be added after all have been completed
//
// A [Scope] keeps one ThreadGroup for its non-daemon threads and one for its daemon threads.
type ThreadGroup struct {
	mu             sync.Mutex
	parent         *ThreadGroup
	idInParent     subgroupID
	name           string
	threads        map[*Thread]struct{}
	allDone        chan struct{}
	subgroups      map[subgroupID]*ThreadGroup
	nextSubgroupID subgroupID
}

// GroupTree is a snapshot of the live threads in a [ThreadGroup], returned by
// [ThreadGroup.Tree].
type GroupTree struct {
	Name      string       `json:"name" yaml:"name"`
	Threads   []ThreadInfo `json:"threads,omitempty" yaml:"threads,omitempty"`
	Subgroups []GroupTree  `json:"subgroups,omitempty" yaml:"subgroups,omitempty"`
}

// ThreadInfo describes a single live thread within a [GroupTree].
type ThreadInfo struct {
	Name   string `json:"name" yaml:"name"`
	Daemon bool   `json:"daemon" yaml:"daemon"`
	State  string `json:"state" yaml:"state"`
}

type subgroupID uint64

func (g *ThreadGroup) initialize() {
	if g.threads == nil {
		g.threads = make(map[*Thread]struct{})
		g.subgroups = make(map[subgroupID]*ThreadGroup)
	}
}

// NewThreadGroup creates a new, empty ThreadGroup with the given name
func NewThreadGroup(name string) *ThreadGroup {
	return &ThreadGroup{name: name}
}

func (g *ThreadGroup) Name() string {
	return g.name
}

// NewSubgroup creates a new ThreadGroup that is contained within g.
//
// Waiting on the parent will not complete while the subgroup has live threads.
func (g *ThreadGroup) NewSubgroup(name string) *ThreadGroup {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initialize()

	id := g.nextSubgroupID
	g.nextSubgroupID += 1
	return &ThreadGroup{
		parent:     g,
		idInParent: id,
		name:       name,
	}
}

// Add registers t as live. Add panics if t is already a member of g.
func (g *ThreadGroup) Add(t *Thread) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initialize()

	if _, ok := g.threads[t]; ok {
		panic(fmt.Sprintf("thread %q added to group %q twice", t.Name(), g.name))
	}
	g.threads[t] = struct{}{}
	g.rectifyAdded()
}

func (g *ThreadGroup) rectifyAdded() {
	if len(g.threads)+len(g.subgroups) == 1 && g.parent != nil {
		g.parent.mu.Lock()
		defer g.parent.mu.Unlock()

		g.parent.subgroups[g.idInParent] = g
		g.parent.rectifyAdded()
	}
}

// Done marks t as no longer live.
//
// Done will panic if t is not a member of g.
func (g *ThreadGroup) Done(t *Thread) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initialize()

	if _, ok := g.threads[t]; !ok {
		panic(fmt.Sprintf("thread %q is not live in group %q", t.Name(), g.name))
	}
	delete(g.threads, t)
	g.rectifyDone()
}

func (g *ThreadGroup) rectifyDone() {
	if len(g.threads)+len(g.subgroups) == 0 {
		if g.allDone != nil {
			close(g.allDone)
			g.allDone = nil
		}

		if g.parent != nil {
			g.parent.mu.Lock()
			defer g.parent.mu.Unlock()

			delete(g.parent.subgroups, g.idInParent)
			g.parent.rectifyDone()
		}
	}
}

// Wait returns a channel that is closed once every thread in g and its subgroups is Done.
func (g *ThreadGroup) Wait() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initialize()

	if len(g.threads) == 0 && len(g.subgroups) == 0 {
		return alwaysClosed
	}

	if g.allDone == nil {
		g.allDone = make(chan struct{})
	}

	return g.allDone
}

// TryWait waits on the ThreadGroup, returning early with ctx.Err() if the context is canceled.
//
// An already canceled context always produces an error, even if g is finished.
func (g *ThreadGroup) TryWait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.Wait():
			return nil
		}
	}
}

// Finished returns whether waiting would immediately complete.
func (g *ThreadGroup) Finished() bool {
	return isClosed(g.Wait())
}

// Threads returns the live threads directly in g, without recursing into subgroups.
func (g *ThreadGroup) Threads() []*Thread {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.threads) == 0 {
		return nil
	}
	return maps.Keys(g.threads)
}

// Subgroups returns the set of subgroups that have live threads.
//
// Between calling Subgroups and inspecting the result, some of the returned groups may finish.
func (g *ThreadGroup) Subgroups() []*ThreadGroup {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.subgroups) == 0 {
		return nil
	}
	return maps.Values(g.subgroups)
}

// Tree returns a snapshot of all live threads in g and its subgroups.
//
// Anything that holds for the whole duration of the call is represented correctly. Threads
// starting or exiting during the call may or may not appear.
func (g *ThreadGroup) Tree() GroupTree {
	threads := g.Threads()
	sgs := g.Subgroups()

	tree := GroupTree{Name: g.name}
	for _, t := range threads {
		tree.Threads = append(tree.Threads, ThreadInfo{
			Name:   t.Name(),
			Daemon: t.IsDaemon(),
			State:  t.State().String(),
		})
	}

	// the lock is released during traversal; holding it here could deadlock with rectifyDone
	for _, sg := range sgs {
		t := sg.Tree()
		if len(t.Threads) != 0 || len(t.Subgroups) != 0 {
			tree.Subgroups = append(tree.Subgroups, t)
		}
	}
	return tree
}

// String formats the tree as YAML.
func (t GroupTree) String() string {
	return marshalTree(t)
}

func marshalTree(tree any) string {
	out, err := yaml.Marshal(tree)
	if err != nil {
		return fmt.Sprintf("<unprintable tree: %s>", err)
	}
	return string(out)
}
