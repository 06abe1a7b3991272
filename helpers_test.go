package hazard_test

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sharnoff/hazard"
)

// quietLogger discards output unless tests run with -v.
func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	if testing.Verbose() {
		l.SetOutput(os.Stderr)
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

func newScope(t *testing.T) *hazard.Scope {
	s := hazard.NewScope(t.Name(), quietLogger())
	t.Cleanup(s.Close)
	return s
}

func newProcess(t *testing.T) *hazard.Process {
	return hazard.NewProcess(hazard.ProcessConfig{
		Name:   t.Name(),
		Grace:  time.Second,
		Logger: quietLogger(),
	})
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func fromSource(source string) func(hazard.Event) bool {
	return func(e hazard.Event) bool { return e.Source == source }
}
