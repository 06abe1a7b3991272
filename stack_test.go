package hazard_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sharnoff/hazard"
)

func concatLines(lines ...string) string {
	return strings.Join(lines, "\n")
}

func TestStackFormatVarieties(t *testing.T) {
	t.Parallel()

	st := hazard.StackTrace{
		Frames: []hazard.StackFrame{
			{Function: "packagename.foo", File: "/path/to/package/foo.go", Line: 37},
			{Function: "packagename.bar", File: "/path/to/package/bar.go"},
			{Function: "packagename.baz"},
			{Function: "packagename.qux", Line: 29}, // Line has no effect without File
			{File: "/unknown/function/path.go", Line: 45},
			{},
		},
	}

	expected := concatLines(
		"packagename.foo(...)",
		"\t/path/to/package/foo.go:37",
		"packagename.bar(...)",
		"\t/path/to/package/bar.go",
		"packagename.baz(...)",
		"\t<unknown file>",
		"packagename.qux(...)",
		"\t<unknown file>",
		"<unknown function>",
		"\t/unknown/function/path.go:45",
		"<unknown function>",
		"\t<unknown file>",
		"",
	)
	require.Equal(t, expected, st.String())
}

func TestStackParentsFormat(t *testing.T) {
	t.Parallel()

	st := hazard.StackTrace{
		Frames: []hazard.StackFrame{
			{Function: "pkg.Worker", File: "/pkg/worker.go", Line: 12},
		},
		Origin: "Thread[daemon-1,daemon]",
		Parent: &hazard.StackTrace{
			Frames: []hazard.StackFrame{
				{Function: "pkg.Spawn", File: "/pkg/spawn.go", Line: 40},
			},
			Parent: &hazard.StackTrace{},
		},
	}

	expected := concatLines(
		"pkg.Worker(...)",
		"\t/pkg/worker.go:12",
		"Thread[daemon-1,daemon] started by:",
		"pkg.Spawn(...)",
		"\t/pkg/spawn.go:40",
		"started by:",
		"<empty stack>",
		"",
	)
	require.Equal(t, expected, st.String())
}

func TestGetStackTraceStartsAtCaller(t *testing.T) {
	t.Parallel()

	st := hazard.GetStackTrace(nil, 0)
	require.NotEmpty(t, st.Frames)
	require.Equal(t, "github.com/sharnoff/hazard_test.TestGetStackTraceStartsAtCaller", st.Frames[0].Function)
	require.True(t, strings.HasSuffix(st.Frames[0].File, "stack_test.go"))
	require.Nil(t, st.Parent)
}

func TestGetStackTraceSkip(t *testing.T) {
	t.Parallel()

	var st hazard.StackTrace
	func() {
		st = hazard.GetStackTrace(nil, 1)
	}()
	require.Equal(t, "github.com/sharnoff/hazard_test.TestGetStackTraceSkip", st.Frames[0].Function)
}

func TestThreadStackTraceIncludesStartSite(t *testing.T) {
	t.Parallel()

	s := newScope(t)
	var st hazard.StackTrace
	th := hazard.UserThreadFactory().NewThread(s, func(th *hazard.Thread) error {
		st = th.StackTrace(0)
		return nil
	})
	th.Start()
	require.NoError(t, th.Join())

	require.NotNil(t, st.Parent)
	require.Equal(t, th.String(), st.Origin)
	require.Equal(t, "github.com/sharnoff/hazard_test.TestThreadStackTraceIncludesStartSite", st.Parent.Frames[0].Function)
	require.Contains(t, st.String(), "started by:")
}
