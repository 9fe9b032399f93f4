package vm

import (
	"github.com/jd28/smalls/lang/bytecode"
	"github.com/jd28/smalls/lang/runtime"
)

// MaxGlobalRegisters is the size of the VM's shared register file, indexed
// via each frame's Base (spec.md §4.4 "8192 global registers").
const MaxGlobalRegisters = 8192

// MaxCallDepth bounds the number of simultaneously active call frames.
const MaxCallDepth = 64

// stackLayout records one live value-type slot on a frame's stack, so GC
// root enumeration can scan it without knowing the frame's bytecode
// (spec.md §4.4 "enumerate_roots... each frame's stack-value layout").
//
// Value-type aggregates are modeled here as a flat run of runtime.Value
// slots rather than a raw byte buffer: spec.md's byte-stack-with-
// offset/alignment description is a C++ implementation detail of inline
// storage, not an observable semantic (no script-visible operation inspects
// raw bytes). A Value-slot run preserves every behavior spec.md actually
// tests — copy-not-share on assignment/params/return, frame-bound lifetime,
// GC root scanning of heap-typed fields — without hand-rolling struct
// layout arithmetic in Go.
type stackLayout struct {
	Offset int
	Count  int
	Type   runtime.TypeID
}

// frame is one active function invocation.
type frame struct {
	module  *bytecode.Module
	fn      *bytecode.CompiledFunction
	closure *runtime.ClosureInstance // nil for a direct/external call

	pc     int
	base   int // offset into vm.registers for this frame's r0
	retReg int // register in the caller frame to receive this call's result

	stack   []runtime.Value // value-type aggregate storage
	layouts []stackLayout
	open    []*runtime.Upvalue // open upvalues pointing into this frame's registers
}

func (f *frame) reg(vm *VM, r uint8) *runtime.Value {
	return &vm.registers[f.base+int(r)]
}

// allocStack reserves count Value slots on this frame's stack for a
// value-type aggregate of the given type, returning the slot offset.
func (f *frame) allocStack(count int, t runtime.TypeID) int {
	off := len(f.stack)
	for i := 0; i < count; i++ {
		f.stack = append(f.stack, runtime.Nil)
	}
	f.layouts = append(f.layouts, stackLayout{Offset: off, Count: count, Type: t})
	return off
}

// freeStackTo discards every stack-value layout at or above mark, shrinking
// the stack back to that high-water point (spec.md §3 "stack free-to-offset
// discards all slots at or above a mark").
func (f *frame) freeStackTo(mark int) {
	if mark >= len(f.layouts) {
		return
	}
	off := f.layouts[mark].Offset
	f.layouts = f.layouts[:mark]
	f.stack = f.stack[:off]
}

// stackMark returns the current high-water layout index, to be passed to a
// later freeStackTo call.
func (f *frame) stackMark() int { return len(f.layouts) }

// layoutAt finds the stack-layout entry owning offset.
func (f *frame) layoutAt(offset int) *stackLayout {
	for i := range f.layouts {
		if f.layouts[i].Offset == offset {
			return &f.layouts[i]
		}
	}
	return nil
}

// copyStackValueInto copies the value-type aggregate at v's offset (in
// src) into dst's own stack, returning a new stack Value addressing the
// copy. This is the "stack-value boundary" crossing spec.md §4.4 requires
// at every call/return: stack values never outlive the frame that produced
// them, so crossing a frame boundary always copies.
func copyStackValueInto(src, dst *frame, v runtime.Value) runtime.Value {
	layout := src.layoutAt(int(v.StackOffset()))
	if layout == nil {
		return v
	}
	newOff := dst.allocStack(layout.Count, layout.Type)
	copy(dst.stack[newOff:newOff+layout.Count], src.stack[layout.Offset:layout.Offset+layout.Count])
	return runtime.StackValue(v.Type, uint32(newOff))
}
