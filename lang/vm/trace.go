package vm

import (
	"fmt"
	"strings"

	"github.com/jd28/smalls/lang/token"
)

// TraceFrame is one entry of a captured Trace: the call site active in one
// frame at the moment of failure (spec.md §4.4 "get_stack_trace").
type TraceFrame struct {
	Module   string
	Function string
	Position token.Position
	Caret    string // rendered only if a source FileSet was registered
}

func (f TraceFrame) String() string {
	if f.Caret != "" {
		return fmt.Sprintf("%s.%s (%s)\n%s", f.Module, f.Function, f.Position, f.Caret)
	}
	return fmt.Sprintf("%s.%s (%s)", f.Module, f.Function, f.Position)
}

// Trace is the ordered list of active frames at the moment a failure
// latched, top of stack (innermost call) first.
type Trace struct {
	Frames []TraceFrame
}

func (t *Trace) String() string {
	if t == nil || len(t.Frames) == 0 {
		return "<no trace>"
	}
	var b strings.Builder
	for i, f := range t.Frames {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(f.String())
	}
	return b.String()
}

// SetFileSet attaches source text so captureTrace can render a caret under
// the failing column; without one, traces report module/function/line/col
// only (spec.md §4.4 "if debug info present").
func (vm *VM) SetFileSet(fs *token.FileSet) { vm.files = fs }

// captureTrace walks the live frame stack from innermost to outermost,
// resolving each frame's current instruction to a source Range via its
// function's per-instruction Locations table.
func (vm *VM) captureTrace() *Trace {
	t := &Trace{Frames: make([]TraceFrame, 0, len(vm.frames))}
	for i := len(vm.frames) - 1; i >= 0; i-- {
		fr := vm.frames[i]
		tf := TraceFrame{Module: fr.module.Name, Function: fr.fn.Name}

		pc := fr.pc - 1
		if pc >= 0 && pc < len(fr.fn.Locations) {
			rng := fr.fn.Locations[pc]
			line, col := rng.Start.LineCol()
			tf.Position = token.Position{Filename: fr.module.Name, Line: line, Col: col}
			if vm.files != nil {
				if file := vm.files.File(fr.module.Name); file != nil {
					tf.Caret = rng.Caret(file.Line(line))
				}
			}
		}
		t.Frames = append(t.Frames, tf)
	}
	return t
}
