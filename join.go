package hazard

import (
	"errors"
	"fmt"
)

var ErrTooFewTasks = errors.New("join barrier needs at least two tasks")

// Task is a labeled unit of work for a [JoinBarrier], run exactly once on its own thread.
type Task struct {
	Role        string
	Description string
	// Run is the task's work. If nil, the task only reports.
	Run Runnable
}

// JoinBarrier runs tasks in two phases: every task but the last concurrently, then, once all of
// those have been joined, the last one.
type JoinBarrier struct {
	scope   *Scope
	factory ThreadFactory
	rep     Reporter
}

func NewJoinBarrier(s *Scope, factory ThreadFactory, rep Reporter) *JoinBarrier {
	return &JoinBarrier{scope: s, factory: factory, rep: rep}
}

// Run starts tasks[:len(tasks)-1] together, joins each of them with no timeout, then starts and
// joins the last task. The last task's start happens after every other task has finished.
//
// A failed task does not hold the barrier: its failure is reported, the last task still runs, and
// every failure is returned, joined.
func (b *JoinBarrier) Run(tasks ...Task) error {
	if len(tasks) < 2 {
		return fmt.Errorf("%w, got %d", ErrTooFewTasks, len(tasks))
	}

	awaited, last := tasks[:len(tasks)-1], tasks[len(tasks)-1]

	threads := make([]*Thread, len(awaited))
	for i, task := range awaited {
		threads[i] = b.thread(task)
		threads[i].Start()
	}

	var errs []error
	for i, t := range threads {
		if err := t.Join(); err != nil {
			errs = append(errs, b.failed(awaited[i], t, err))
		}
	}

	final := b.thread(last)
	final.Start()
	if err := final.Join(); err != nil {
		errs = append(errs, b.failed(last, final, err))
	}

	return errors.Join(errs...)
}

func (b *JoinBarrier) thread(task Task) *Thread {
	return b.factory.NewNamedThread(b.scope, task.Role, func(t *Thread) error {
		b.rep.Report(t.Name(), fmt.Sprintf("started %s as a %s", task.Description, task.Role))
		if task.Run != nil {
			if err := task.Run(t); err != nil {
				return err
			}
		}
		b.rep.Report(t.Name(), fmt.Sprintf("I finished %s as a %s", task.Description, task.Role))
		return nil
	})
}

func (b *JoinBarrier) failed(task Task, t *Thread, err error) error {
	b.rep.Report(t.Name(), fmt.Sprintf("failed %s as a %s: %v", task.Description, task.Role, err))
	return fmt.Errorf("%s: %w", task.Role, err)
}

// TeamTasks are the three tasks of the join demonstration: two developers work concurrently, and
// the tester starts once both are done.
func TeamTasks() []Task {
	return []Task{
		{Role: "backend dev", Description: "backend coding"},
		{Role: "frontend dev", Description: "frontend coding"},
		{Role: "tester", Description: "testing"},
	}
}
