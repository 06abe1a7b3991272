package hazard

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// StackTrace is a collected goroutine stack, optionally linked to the stack of the goroutine that
// started it. A [Thread] records where it was started, so traces printed from inside the thread
// show both halves.
type StackTrace struct {
	Frames []StackFrame
	// Origin names what was started at Parent, usually a thread.
	Origin string
	Parent *StackTrace
}

type StackFrame struct {
	Function string
	File     string
	Line     int
}

// GetStackTrace collects the calling goroutine's stack, skipping skip frames above the caller.
func GetStackTrace(parent *StackTrace, skip uint) StackTrace {
	frames := getFrames(skip + 1) // skip GetStackTrace itself
	return StackTrace{Frames: frames, Parent: parent}
}

// String formats the trace like the runtime does for panics, with each parent introduced by a
// "<origin> started by:" line.
func (st StackTrace) String() string {
	var sb strings.Builder

	for {
		if len(st.Frames) == 0 {
			sb.WriteString("<empty stack>\n")
		}
		for _, f := range st.Frames {
			writeFrame(&sb, f)
		}

		if st.Parent == nil {
			break
		}

		if st.Origin != "" {
			sb.WriteString(st.Origin)
			sb.WriteByte(' ')
		}
		sb.WriteString("started by:\n")
		st = *st.Parent
	}

	return sb.String()
}

func writeFrame(sb *strings.Builder, f StackFrame) {
	if f.Function == "" {
		sb.WriteString("<unknown function>")
	} else {
		sb.WriteString(f.Function)
		sb.WriteString("(...)")
	}
	sb.WriteString("\n\t")

	if f.File == "" {
		sb.WriteString("<unknown file>")
	} else {
		sb.WriteString(f.File)
		if f.Line != 0 {
			sb.WriteByte(':')
			sb.WriteString(strconv.Itoa(f.Line))
		}
	}
	sb.WriteByte('\n')
}

var pcBufPool = sync.Pool{
	New: func() any {
		buf := make([]uintptr, 64)
		return &buf
	},
}

func putPCBuffer(buf *[]uintptr) {
	if len(*buf) <= 1024 {
		pcBufPool.Put(buf)
	}
}

func getFrames(skip uint) []StackFrame {
	// skip getFrames and runtime.Callers
	skip += 2

	pcBuf := pcBufPool.Get().(*[]uintptr)
	defer putPCBuffer(pcBuf)

	// grow the buffer until the whole stack fits
	var pc []uintptr
	for {
		n := runtime.Callers(int(skip), *pcBuf)
		if n < len(*pcBuf) {
			pc = (*pcBuf)[:n]
			break
		}
		*pcBuf = make([]uintptr, 2*len(*pcBuf))
	}

	if len(pc) == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pc)
	var out []StackFrame
	for {
		frame, more := frames.Next()
		out = append(out, StackFrame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more {
			break
		}
	}
	return out
}
