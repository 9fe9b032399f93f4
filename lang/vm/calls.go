package vm

import (
	"fmt"

	"github.com/jd28/smalls/lang/bytecode"
	"github.com/jd28/smalls/lang/runtime"
)

// gatherArgs copies the c consecutive values starting at register a+1 of fr
// into a fresh slice, the calling convention shared by every CALL* opcode:
// A is the destination/args-base register, the callee's actual arguments
// sit immediately above it.
func gatherArgs(vm *VM, fr *frame, a, c uint8) []runtime.Value {
	args := make([]runtime.Value, c)
	for i := 0; i < int(c); i++ {
		args[i] = *fr.reg(vm, a+1+uint8(i))
	}
	return args
}

// crossFrameArgs rewrites any stack-typed value just copied into dst's first
// n registers so it addresses a copy living in dst's own stack rather than
// src's (spec.md §4.4: a stack value must never outlive the frame that
// produced it, so every call crosses this boundary by copying).
func (vm *VM) crossFrameArgs(src, dst *frame, n int) {
	for i := 0; i < n; i++ {
		v := vm.registers[dst.base+i]
		if v.IsStack() {
			vm.registers[dst.base+i] = copyStackValueInto(src, dst, v)
		}
	}
}

func (vm *VM) pushCall(caller *frame, m *bytecode.Module, target *bytecode.CompiledFunction, cl *runtime.ClosureInstance, args []runtime.Value, retReg int) *frame {
	newFr, err := vm.pushFrame(m, target, cl, args, retReg)
	if err != nil {
		vm.fail(err)
		return nil
	}
	n := len(args)
	if n > target.RegisterCount {
		n = target.RegisterCount
	}
	vm.crossFrameArgs(caller, newFr, n)
	return newFr
}

// finishCall pops fr, delivering ret either into the caller's retReg
// register (crossing the stack-value frame boundary if needed) or, if fr
// was the outermost frame of this dispatch loop, into *result.
func (vm *VM) finishCall(fr *frame, ret runtime.Value, result *runtime.Value, entryDepth int) {
	vm.popFrame()
	if fr.retReg < 0 {
		*result = ret
		return
	}
	caller := vm.frames[len(vm.frames)-1]
	if ret.IsStack() {
		ret = copyStackValueInto(fr, caller, ret)
	}
	vm.registers[caller.base+fr.retReg] = ret
}

// execCall handles CALL: a direct, statically resolved call to a function in
// the same module. B names the callee's index into module.Functions.
func (vm *VM) execCall(fr *frame, ins bytecode.Instruction) {
	a, b, c := ins.A(), ins.B(), ins.C()
	if int(b) >= len(fr.module.Functions) {
		vm.fail(fmt.Errorf("call: function index %d out of range", b))
		return
	}
	if !vm.chargeGas() {
		return
	}
	target := fr.module.Functions[b]
	args := gatherArgs(vm, fr, a, c)
	vm.pushCall(fr, fr.module, target, nil, args, int(a))
}

// execCallExt handles CALLEXT/CALLEXT_R: a call to a function exported by
// another registered module, resolved lazily on first use and cached on the
// ExternalRef. CALLEXT_R forces re-resolution, used after a module has been
// hot-swapped in the host's module directory.
func (vm *VM) execCallExt(fr *frame, ins bytecode.Instruction) {
	a, b, c := ins.A(), ins.B(), ins.C()
	if int(b) >= len(fr.module.Externals) {
		vm.fail(fmt.Errorf("callext: external ref %d out of range", b))
		return
	}
	ext := &fr.module.Externals[b]
	if !ext.Resolved() || ins.Op() == bytecode.CALLEXT_R {
		mod, ok := vm.modules[ext.Module]
		if !ok {
			vm.fail(fmt.Errorf("%w: module %q not registered", ErrUnresolvedExternal, ext.Module))
			return
		}
		idx := mod.FunctionByName(ext.Name)
		if idx < 0 {
			vm.fail(fmt.Errorf("%w: %s.%s", ErrUnresolvedExternal, ext.Module, ext.Name))
			return
		}
		ext.MarkResolved(idx)
	}
	mod := vm.modules[ext.Module]
	target := mod.Functions[ext.Function]
	if !vm.chargeGas() {
		return
	}
	args := gatherArgs(vm, fr, a, c)
	vm.pushCall(fr, mod, target, nil, args, int(a))
}

// execCallNative handles CALLNATIVE: a synchronous call into a host-
// registered Go function, by-passing the frame stack entirely.
func (vm *VM) execCallNative(fr *frame, ins bytecode.Instruction) {
	a, b, c := ins.A(), ins.B(), ins.C()
	if int(b) >= len(fr.module.Externals) {
		vm.fail(fmt.Errorf("callnative: external ref %d out of range", b))
		return
	}
	ext := fr.module.Externals[b]
	qualified := ext.Module + "." + ext.Name
	fn, ok := vm.natives[qualified]
	if !ok {
		vm.fail(fmt.Errorf("%w: native %s", ErrUnresolvedExternal, qualified))
		return
	}
	args := gatherArgs(vm, fr, a, c)
	if !vm.chargeGas() {
		return
	}
	v, err := fn(vm.rt, args)
	if err != nil {
		vm.fail(err)
		return
	}
	*fr.reg(vm, a) = v
}

// execCallClosure handles CALLCLOSURE: A holds a closure heap value; args
// follow at A+1..A+C, result overwrites A's frame slot on return.
func (vm *VM) execCallClosure(fr *frame, ins bytecode.Instruction) {
	a, c := ins.A(), ins.C()
	closureVal := *fr.reg(vm, a)
	if closureVal.IsNil() {
		vm.fail(fmt.Errorf("callclosure: register r%d is nil", a))
		return
	}
	obj := vm.rt.Heap.Get(closureVal.Heap())
	cl := obj.Closure
	if cl == nil {
		vm.fail(fmt.Errorf("callclosure: register r%d is not a closure", a))
		return
	}
	mod, _ := cl.Module.(*bytecode.Module)
	target, _ := cl.Function.(*bytecode.CompiledFunction)
	if mod == nil || target == nil {
		vm.fail(fmt.Errorf("callclosure: malformed closure value"))
		return
	}
	if !vm.chargeGas() {
		return
	}
	args := gatherArgs(vm, fr, a, c)
	vm.pushCall(fr, mod, target, cl, args, int(a))
}

// execClosure handles CLOSURE: builds a closure over the function named by
// Bx, resolving each upvalue descriptor against either fr's own registers
// (opening a fresh upvalue, deduplicated per local) or fr's own closure's
// upvalue list (re-exporting one level further out).
func (vm *VM) execClosure(fr *frame, ins bytecode.Instruction) {
	target := fr.module.Functions[ins.Bx()]
	ups := make([]*runtime.Upvalue, len(target.Upvalues))
	for i, desc := range target.Upvalues {
		if desc.FromParentLocal {
			ups[i] = vm.findOrOpenUpvalue(fr, desc.Index)
		} else {
			ups[i] = fr.closure.Upvalues[desc.Index]
		}
	}
	ptr := vm.rt.Heap.AllocClosure(target.FunctionType, target, fr.module, ups)
	*fr.reg(vm, ins.A()) = runtime.HeapValue(target.FunctionType, ptr)
}

func (vm *VM) findOrOpenUpvalue(fr *frame, localReg uint8) *runtime.Upvalue {
	loc := fr.reg(vm, localReg)
	for _, uv := range fr.open {
		if uv.Location == loc {
			return uv
		}
	}
	uv := &runtime.Upvalue{Location: loc}
	fr.open = append(fr.open, uv)
	return uv
}

// execCast handles CAST: numeric widening/narrowing between int and float,
// and newtype wrap/unwrap, which is a pure type-tag change since a newtype
// shares its underlying representation.
func (vm *VM) execCast(fr *frame, ins bytecode.Instruction) {
	target := fr.module.Types[ins.Bx()].Type
	v := *fr.reg(vm, ins.A())
	srcKind := vm.rt.GetType(v.Type).Kind
	dstKind := vm.rt.GetType(target).Kind

	switch {
	case srcKind == runtime.KindInt && dstKind == runtime.KindFloat:
		*fr.reg(vm, ins.A()) = runtime.FloatValue(float32(v.Int()))
	case srcKind == runtime.KindFloat && dstKind == runtime.KindInt:
		*fr.reg(vm, ins.A()) = runtime.IntValue(int32(v.Float()))
	default:
		v.Type = target
		*fr.reg(vm, ins.A()) = v
	}
}
