package hazard_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sharnoff/hazard"
)

func TestEscapingObjectReferenceIsValid(t *testing.T) {
	t.Parallel()

	s := newScope(t)
	rec := &hazard.Recorder{}
	obj := hazard.NewEscapingObject(s, hazard.UserThreadFactory(), rec)

	// fields set after the escape are visible to the constructing goroutine
	require.True(t, obj.Initialized)
	require.Equal(t, "constructed", obj.Label)

	select {
	case seen := <-obj.Observed():
		require.NotNil(t, seen)
		require.Same(t, obj, seen)
	case <-time.After(5 * time.Second):
		t.Fatal("listener never ran")
	}

	require.NoError(t, obj.Listener().Join())

	// one report from construction, one from the listener; only the first is ordered
	events := rec.Events()
	require.Len(t, events, 2)
	require.Equal(t, s.Name(), events[0].Source)
	require.Equal(t, obj.String(), events[0].Message)
	require.Equal(t, "listener", events[1].Source)
	require.Equal(t, obj.String(), events[1].Message)
}
