// Package vm implements the register-based virtual machine that executes a
// verified bytecode.Module: call frames, upvalues, per-frame value-type
// stacks, gas/step limits, stack-trace capture, and intrinsic dispatch
// (spec.md §4.4). Host-boundary operations that need a *bytecode.Module —
// module directory lookup and external-function resolution — live here
// rather than in lang/runtime, keeping that package acyclic beneath
// lang/bytecode.
package vm

import (
	"errors"
	"fmt"

	"github.com/jd28/smalls/lang/bytecode"
	"github.com/jd28/smalls/lang/runtime"
	"github.com/jd28/smalls/lang/token"
)

// Sentinel errors wrapped by runtime failures. No failure path wraps
// ErrDivisionByZero or ErrUnknownSwitchTag: division by zero surfaces as the
// plain "division by zero" error that lang/runtime's operators return.
var (
	ErrDivisionByZero          = errors.New("division by zero")
	ErrExecutionLimitExceeded  = errors.New("exceeded execution limit")
	ErrCallDepthExceeded       = errors.New("call depth exceeded")
	ErrUnresolvedExternal      = errors.New("unresolved external function")
	ErrArgumentCountMismatch   = errors.New("argument count mismatch")
	ErrIndexOutOfRange         = errors.New("index out of range")
	ErrUnknownSwitchTag        = errors.New("unknown switch tag")
)

// NativeFunction is a host function reachable via CALLEXT, matching the
// teacher's NativeFunctionWrapper idea (spec.md §4.4): it receives the
// Runtime and its already-evaluated arguments and returns a single Value.
type NativeFunction func(rt *runtime.Runtime, args []runtime.Value) (runtime.Value, error)

// VM is a single-threaded, cooperative register VM instance (spec.md §5: no
// concurrency inside one VM; concurrent scripts run in separate VM
// instances sharing one Runtime).
type VM struct {
	rt *runtime.Runtime

	registers [MaxGlobalRegisters]runtime.Value
	frames    []*frame

	modules map[string]*bytecode.Module
	natives map[string]NativeFunction
	files   *token.FileSet

	gasEnabled bool
	gas        uint64

	stepEnabled bool
	steps       uint64
	stepLimit   uint64

	failed    bool
	failErr   error
	failTrace *Trace
}

// New returns a VM backed by rt, with no modules registered yet.
func New(rt *runtime.Runtime) *VM {
	return &VM{
		rt:      rt,
		modules: make(map[string]*bytecode.Module),
		natives: make(map[string]NativeFunction),
	}
}

// Runtime returns the Runtime this VM executes against.
func (vm *VM) Runtime() *runtime.Runtime { return vm.rt }

// RegisterModule adds m to this VM's module directory so CALLEXT references
// naming it can be resolved (spec.md §6 "Host boundary": get_module(name)).
func (vm *VM) RegisterModule(m *bytecode.Module) {
	vm.modules[m.Name] = m
	if m.GlobalCount > len(m.Globals) {
		grown := make([]runtime.Value, m.GlobalCount)
		copy(grown, m.Globals)
		for i := len(m.Globals); i < m.GlobalCount; i++ {
			grown[i] = runtime.Nil
		}
		m.Globals = grown
	}
}

// RegisterNative exposes a host function under a qualified name resolvable
// by CALLEXT/CALLNATIVE (spec.md §6 "Host boundary": get_native_function).
func (vm *VM) RegisterNative(qualifiedName string, fn NativeFunction) {
	vm.natives[qualifiedName] = fn
}

// SetGasLimit enables gas accounting: one unit per CALL/CALLEXT/CALLINTR/
// CALLCLOSURE and one per backward jump (spec.md §4.4/§5).
func (vm *VM) SetGasLimit(n uint64) {
	vm.gasEnabled = n > 0
	vm.gas = n
}

// SetStepLimit enables a total-dispatched-instructions bound, used by fuzz
// harnesses (spec.md §4.4).
func (vm *VM) SetStepLimit(n uint64) {
	vm.stepEnabled = n > 0
	vm.stepLimit = n
}

// Failed reports whether this VM has latched a failure (spec.md §7
// "propagation policy: the first fail latches").
func (vm *VM) Failed() bool { return vm.failed }

// Err returns the latched failure, or nil.
func (vm *VM) Err() error { return vm.failErr }

// Trace returns the stack trace captured at the moment of the latched
// failure, or nil if none has occurred.
func (vm *VM) Trace() *Trace { return vm.failTrace }

func (vm *VM) fail(err error) runtime.Value {
	if !vm.failed {
		vm.failed = true
		vm.failErr = err
		vm.failTrace = vm.captureTrace()
	}
	return runtime.Value{}
}

// Execute runs fn (which must belong to m, already registered via
// RegisterModule) with args, returning its result. Re-entrant: calling
// Execute while a frame from a previous Execute call is still live (e.g.
// from a NativeFunction callback) saves and restores register 0 of the
// interrupted frame and runs only until the newly pushed frame's depth
// unwinds (spec.md §4.4 "Re-entrant execution").
func (vm *VM) Execute(m *bytecode.Module, fn *bytecode.CompiledFunction, args []runtime.Value) (runtime.Value, error) {
	entryDepth := len(vm.frames)

	var savedReg0 runtime.Value
	var hadOuter bool
	if entryDepth > 0 {
		hadOuter = true
		savedReg0 = vm.registers[vm.frames[entryDepth-1].base]
	}

	fr, err := vm.pushFrame(m, fn, nil, args, -1)
	if err != nil {
		return runtime.Value{}, err
	}

	result := vm.dispatch(entryDepth)

	if hadOuter {
		vm.registers[vm.frames[entryDepth-1].base] = savedReg0
	}
	_ = fr

	if vm.failed {
		err, trace := vm.failErr, vm.failTrace
		vm.failed, vm.failErr, vm.failTrace = false, nil, nil
		return runtime.Value{}, &Failure{Err: err, Trace: trace}
	}
	return result, nil
}

// Failure wraps a runtime failure with its captured stack trace.
type Failure struct {
	Err   error
	Trace *Trace
}

func (f *Failure) Error() string { return f.Err.Error() }
func (f *Failure) Unwrap() error { return f.Err }

func (vm *VM) pushFrame(m *bytecode.Module, fn *bytecode.CompiledFunction, cl *runtime.ClosureInstance, args []runtime.Value, retReg int) (*frame, error) {
	if len(vm.frames) >= MaxCallDepth {
		return nil, fmt.Errorf("%w: depth %d", ErrCallDepthExceeded, MaxCallDepth)
	}
	base := 0
	if len(vm.frames) > 0 {
		top := vm.frames[len(vm.frames)-1]
		base = top.base + top.fn.RegisterCount
	}
	if base+fn.RegisterCount > MaxGlobalRegisters {
		return nil, fmt.Errorf("%w: register file exhausted", ErrCallDepthExceeded)
	}
	fr := &frame{module: m, fn: fn, closure: cl, base: base, retReg: retReg}
	for i, a := range args {
		if i >= fn.RegisterCount {
			break
		}
		vm.registers[base+i] = a
	}
	vm.frames = append(vm.frames, fr)
	return fr, nil
}

func (vm *VM) popFrame() *frame {
	fr := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	return fr
}

func (vm *VM) chargeGas() bool {
	if !vm.gasEnabled {
		return true
	}
	if vm.gas == 0 {
		vm.fail(ErrExecutionLimitExceeded)
		return false
	}
	vm.gas--
	return true
}
