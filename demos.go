package hazard

import "fmt"

// Demo is one runnable demonstration. Run is the body of the process's main path.
type Demo struct {
	Name  string
	Usage string
	Run   func(p *Process, cfg Config, rep Reporter) error
}

// Demos lists every demonstration, in the order they are documented.
var Demos = []Demo{
	{
		Name:  "novisibility",
		Usage: "publish a number through an unsynchronized flag",
		Run:   runNoVisibility,
	},
	{
		Name:  "thisescape",
		Usage: "leak a reference to an object before its construction finishes",
		Run:   runThisEscape,
	},
	{
		Name:  "join",
		Usage: "start the tester only after both developers have been joined",
		Run:   runJoin,
	},
	{
		Name:  "daemon-finally",
		Usage: "run a daemon whose cleanup is skipped if the process exits first",
		Run:   runDaemonFinally,
	},
	{
		Name:  "simple-daemons",
		Usage: "run periodic tasks on a cached pool of daemon threads",
		Run:   runSimpleDaemons,
	},
}

func runNoVisibility(p *Process, _ Config, rep Reporter) error {
	NewFlagRace(rep).Run(p.Scope, UserThreadFactory())
	return nil
}

func runThisEscape(p *Process, _ Config, rep Reporter) error {
	NewEscapingObject(p.Scope, UserThreadFactory(), rep)
	return nil
}

func runJoin(p *Process, _ Config, rep Reporter) error {
	return NewJoinBarrier(p.Scope, UserThreadFactory(), rep).Run(TeamTasks()...)
}

func runDaemonFinally(p *Process, cfg Config, rep Reporter) error {
	DaemonTask{Sleep: cfg.Daemon.Sleep}.Start(p.Scope, DaemonThreadFactory(), rep)
	p.Hold(cfg.Daemon.Hold)
	return nil
}

func runSimpleDaemons(p *Process, cfg Config, rep Reporter) error {
	pool := NewPool(p.Scope, DaemonThreadFactory(), cfg.Pool.PoolOptions)
	if err := pool.Submit(cfg.Pool.Tasks, PeriodicTask(cfg.Pool.Interval, rep)); err != nil {
		return err
	}
	rep.Report(p.Name(), "All daemons started")
	p.Hold(cfg.Pool.Hold)
	return nil
}

// LookupDemo returns the demo with the given name.
func LookupDemo(name string) (Demo, error) {
	for _, d := range Demos {
		if d.Name == name {
			return d, nil
		}
	}
	return Demo{}, fmt.Errorf("unknown demo %q", name)
}
