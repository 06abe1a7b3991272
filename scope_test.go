package hazard_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/sharnoff/hazard"
)

func entryWithMessage(hook *logtest.Hook, msg string) *logrus.Entry {
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			return e
		}
	}
	return nil
}

func TestScopeFailingShutdownHookDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	log, hook := logtest.NewNullLogger()
	s := hazard.NewScope(t.Name(), log)
	defer s.Close()

	failure := errors.New("hook failed")
	var order []string
	require.NoError(t, s.OnShutdown(func(context.Context) error {
		order = append(order, "first")
		return nil
	}))
	require.NoError(t, s.OnShutdown(func(context.Context) error {
		order = append(order, "second")
		return failure
	}))

	require.NoError(t, s.Shutdown(context.Background()))
	require.Equal(t, []string{"second", "first"}, order)

	entry := entryWithMessage(hook, "shutdown hook failed")
	require.NotNil(t, entry)
	require.Equal(t, logrus.WarnLevel, entry.Level)
	require.ErrorIs(t, entry.Data[logrus.ErrorKey].(error), failure)
}

func TestScopeShutdownDumpsLingeringDaemons(t *testing.T) {
	t.Parallel()

	log, hook := logtest.NewNullLogger()
	s := hazard.NewScope(t.Name(), log)
	defer s.Close()

	release := make(chan struct{})
	th := hazard.NewThreadFactory("stuck", true).NewThread(s, func(*hazard.Thread) error {
		<-release // never sleeps, so the shutdown can't kill it
		return nil
	})
	th.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Shutdown(ctx), context.DeadlineExceeded)

	entry := entryWithMessage(hook, "daemon threads outlived shutdown")
	require.NotNil(t, entry)
	live := entry.Data["live"].(string)
	require.Contains(t, live, "name: "+t.Name())
	require.Contains(t, live, "name: stuck-1")
	require.Contains(t, live, "state: running")

	close(release)
	require.NoError(t, th.Join())
	require.True(t, s.DaemonThreads().Finished())
}

func TestScopeTreeString(t *testing.T) {
	t.Parallel()

	s := newScope(t)
	child := s.NewChild("child")
	release := make(chan struct{})
	th := hazard.NewThreadFactory("worker", false).NewThread(child, func(*hazard.Thread) error {
		<-release
		return nil
	})
	th.Start()
	defer func() {
		close(release)
		require.NoError(t, th.Join())
	}()

	tree := s.Tree()
	require.Empty(t, tree.Daemons.Subgroups)
	require.Equal(t, "worker-1", tree.Users.Subgroups[0].Threads[0].Name)

	expected := strings.Join([]string{
		"name: " + t.Name(),
		"users:",
		"  name: " + t.Name(),
		"  subgroups:",
		"  - name: child",
		"    threads:",
		"    - name: worker-1",
		"      daemon: false",
		"      state: running",
		"daemons:",
		"  name: " + t.Name(),
		"",
	}, "\n")
	require.Equal(t, expected, tree.String())
}

func TestProcessLogsUserThreadsLeftByEarlyShutdown(t *testing.T) {
	t.Parallel()

	log, hook := logtest.NewNullLogger()
	release := make(chan struct{})
	var th *hazard.Thread

	p := hazard.NewProcess(hazard.ProcessConfig{Name: t.Name(), Logger: log})
	require.NoError(t, p.Run(func(p *hazard.Process) error {
		th = hazard.NewThreadFactory("blocked", false).NewThread(p.Scope, func(*hazard.Thread) error {
			<-release
			return nil
		})
		th.Start()
		return p.Hooks().Fire(hazard.Shutdown, context.Background())
	}))

	entry := entryWithMessage(hook, "shut down before user threads exited")
	require.NotNil(t, entry)
	require.Contains(t, entry.Data["live"], "name: blocked-1")

	close(release)
	require.NoError(t, th.Join())
}
