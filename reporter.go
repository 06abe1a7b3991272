package hazard

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Reporter receives the human-readable progress lines produced by the demonstrations. source is
// the name of the reporting thread, or of the process for its main path.
type Reporter interface {
	Report(source, message string)
}

// ReporterFunc adapts a function to [Reporter].
type ReporterFunc func(source, message string)

func (f ReporterFunc) Report(source, message string) { f(source, message) }

// LogReporter writes each report as an info-level entry with a "thread" field.
type LogReporter struct {
	Log logrus.FieldLogger
}

func (r LogReporter) Report(source, message string) {
	log := r.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithField("thread", source).Info(message)
}

// Event is a single report captured by a [Recorder].
type Event struct {
	Seq     int
	Time    time.Time
	Source  string
	Message string
}

// Recorder is a [Reporter] that keeps every report in order. It is safe for concurrent use, and
// the order of Events is a total order consistent with each reporter's program order.
type Recorder struct {
	mu      sync.Mutex
	events  []Event
	changed chan struct{}
}

func (r *Recorder) Report(source, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, Event{
		Seq:     len(r.events),
		Time:    time.Now(),
		Source:  source,
		Message: message,
	})
	if r.changed != nil {
		close(r.changed)
		r.changed = nil
	}
}

// Events returns a copy of everything reported so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Messages returns the message of every event so far, in order.
func (r *Recorder) Messages() []string {
	var msgs []string
	for _, e := range r.Events() {
		msgs = append(msgs, e.Message)
	}
	return msgs
}

// Count returns the number of events so far that match.
func (r *Recorder) Count(match func(Event) bool) int {
	n := 0
	for _, e := range r.Events() {
		if match(e) {
			n += 1
		}
	}
	return n
}

// WaitFor blocks until at least n events match, or ctx is done.
func (r *Recorder) WaitFor(ctx context.Context, n int, match func(Event) bool) error {
	for {
		r.mu.Lock()
		count := 0
		for _, e := range r.events {
			if match(e) {
				count += 1
			}
		}
		if count >= n {
			r.mu.Unlock()
			return nil
		}
		if r.changed == nil {
			r.changed = make(chan struct{})
		}
		changed := r.changed
		r.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
