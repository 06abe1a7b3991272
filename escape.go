package hazard

import "fmt"

// EscapingObject leaks a reference to itself before it is fully built: construction allocates the
// object, publishes it to a newly started thread, and only then sets the remaining fields.
//
// The receiving thread always gets a valid pointer. Whether it would see Label and Initialized set
// is unspecified, so it only reports the reference and never reads those fields.
type EscapingObject struct {
	listener *Thread
	observed chan *EscapingObject

	// set after the reference has escaped
	Label       string
	Initialized bool
}

// NewEscapingObject constructs an EscapingObject, starting its listener thread in s partway
// through. Two reports result: one from the constructing goroutine, then one from the listener, in
// no particular order relative to the rest of construction.
func NewEscapingObject(s *Scope, factory ThreadFactory, rep Reporter) *EscapingObject {
	o := &EscapingObject{observed: make(chan *EscapingObject, 1)}
	rep.Report(s.Name(), o.String())

	o.publish(s, factory, rep)

	o.Label = "constructed"
	o.Initialized = true
	return o
}

func (o *EscapingObject) publish(s *Scope, factory ThreadFactory, rep Reporter) {
	o.listener = factory.NewNamedThread(s, "listener", func(t *Thread) error {
		self := o
		rep.Report(t.Name(), self.String())
		o.observed <- self
		return nil
	})
	o.listener.Start()
}

// String identifies the object by address only, so it is safe to call mid-construction.
func (o *EscapingObject) String() string {
	return fmt.Sprintf("EscapingObject@%p", o)
}

// Observed yields the reference the listener thread received, once it has run.
func (o *EscapingObject) Observed() <-chan *EscapingObject {
	return o.observed
}

func (o *EscapingObject) Listener() *Thread {
	return o.listener
}
