package hazard

import (
	"runtime"
	"strconv"
)

// SharedState is written by one thread and read by another with no synchronization at all.
type SharedState struct {
	Ready  bool
	Number int
}

// FlagRace publishes a number through a plain boolean flag.
//
// Nothing orders the reader's loads after the writer's stores, so under a relaxed memory model the
// reader may spin forever or print 0. The Go compiler reloads both fields on every iteration
// because the loop calls into the scheduler, and amd64 and arm64 in practice make the stores
// visible in order, so in practice this converges to 42. It is still a data race, and the race
// detector reports it.
type FlagRace struct {
	state    SharedState
	rep      Reporter
	observed int
}

func NewFlagRace(rep Reporter) *FlagRace {
	return &FlagRace{rep: rep}
}

// Write sets the number, then raises the flag.
func (r *FlagRace) Write() {
	r.state.Number = 42
	r.state.Ready = true
}

// Read yields until the flag is raised, then reports and returns the number it sees.
func (r *FlagRace) Read(t *Thread) int {
	for !r.state.Ready {
		runtime.Gosched()
	}
	n := r.state.Number
	r.rep.Report(t.Name(), strconv.Itoa(n))
	return n
}

// Run starts the reader on a new thread in s, then writes from the calling goroutine. The returned
// thread can be joined; after that, [FlagRace.Observed] holds what the reader saw.
func (r *FlagRace) Run(s *Scope, factory ThreadFactory) *Thread {
	reader := factory.NewNamedThread(s, "reader", func(t *Thread) error {
		r.observed = r.Read(t)
		return nil
	})
	reader.Start()
	r.Write()
	return reader
}

// Observed is the number the reader saw. It is only meaningful once the reader has been joined.
func (r *FlagRace) Observed() int {
	return r.observed
}
