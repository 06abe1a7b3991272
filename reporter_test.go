package hazard_test

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/sharnoff/hazard"
)

func TestRecorderOrdersConcurrentReports(t *testing.T) {
	t.Parallel()

	rec := &hazard.Recorder{}
	var wg sync.WaitGroup
	for i := 0; i < 10; i += 1 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j += 1 {
				rec.Report(fmt.Sprint("source-", i), fmt.Sprint(j))
			}
		}(i)
	}
	wg.Wait()

	events := rec.Events()
	require.Len(t, events, 100)
	last := map[string]int{}
	for i, e := range events {
		require.Equal(t, i, e.Seq)
		if i > 0 {
			require.False(t, e.Time.Before(events[i-1].Time))
		}
		// each source's own reports stay in program order
		var j int
		_, err := fmt.Sscan(e.Message, &j)
		require.NoError(t, err)
		if prev, ok := last[e.Source]; ok {
			require.Greater(t, j, prev)
		}
		last[e.Source] = j
	}
	require.Equal(t, 10, rec.Count(fromSource("source-3")))
}

func TestRecorderWaitFor(t *testing.T) {
	t.Parallel()

	rec := &hazard.Recorder{}
	go func() {
		for i := 0; i < 3; i += 1 {
			time.Sleep(time.Millisecond)
			rec.Report("worker", "tick")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rec.WaitFor(ctx, 3, fromSource("worker")))

	short, cancelShort := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancelShort()
	require.ErrorIs(t, rec.WaitFor(short, 4, fromSource("worker")), context.DeadlineExceeded)
}

func TestLogReporter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	hazard.LogReporter{Log: log}.Report("daemon-1", "starting")
	require.Equal(t, "level=info msg=starting thread=daemon-1\n", buf.String())
}

func TestReporterFunc(t *testing.T) {
	t.Parallel()

	var got []string
	var rep hazard.Reporter = hazard.ReporterFunc(func(source, message string) {
		got = append(got, source+": "+message)
	})
	rep.Report("main", "hello")
	require.Equal(t, []string{"main: hello"}, got)
}
