package hazard_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sharnoff/hazard"
)

func TestProcessWaitsForUserThreads(t *testing.T) {
	t.Parallel()

	var finished atomic.Bool
	err := newProcess(t).Run(func(p *hazard.Process) error {
		hazard.UserThreadFactory().NewThread(p.Scope, func(th *hazard.Thread) error {
			if err := th.Sleep(20 * time.Millisecond); err != nil {
				return err
			}
			finished.Store(true)
			return nil
		}).Start()
		return nil
	})
	require.NoError(t, err)
	require.True(t, finished.Load())
}

func TestProcessShutdownHooksRunAfterUserThreads(t *testing.T) {
	t.Parallel()

	var order []string
	var mainCtx context.Context
	err := newProcess(t).Run(func(p *hazard.Process) error {
		mainCtx = p.Context()
		th := hazard.UserThreadFactory().NewThread(p.Scope, func(th *hazard.Thread) error {
			_ = th.Sleep(10 * time.Millisecond)
			return nil
		})
		require.NoError(t, p.OnShutdown(func(context.Context) error {
			order = append(order, "first registered")
			return nil
		}))
		require.NoError(t, p.OnShutdown(func(context.Context) error {
			require.False(t, th.Alive())
			order = append(order, "second registered")
			return nil
		}))
		th.Start()
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"second registered", "first registered"}, order)
	require.Error(t, mainCtx.Err())
}

func TestProcessMainFailure(t *testing.T) {
	t.Parallel()

	failure := errors.New("bad main")
	err := newProcess(t).Run(func(*hazard.Process) error { return failure })
	require.ErrorIs(t, err, failure)

	err = newProcess(t).Run(func(*hazard.Process) error { panic("worse main") })
	var perr *hazard.PanicError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "worse main", perr.Value)
}

func TestProcessHoldEndsOnShutdown(t *testing.T) {
	t.Parallel()

	p := newProcess(t)
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = p.Hooks().Fire(hazard.Shutdown, context.Background())
	}()

	start := time.Now()
	require.NoError(t, p.Run(func(p *hazard.Process) error {
		require.False(t, p.Hold(time.Minute))
		return nil
	}))
	require.Less(t, time.Since(start), time.Minute)
}
