package vm_test

import (
	"testing"

	"github.com/jd28/smalls/lang/bytecode"
	"github.com/jd28/smalls/lang/runtime"
	"github.com/jd28/smalls/lang/vm"
	"github.com/stretchr/testify/require"
)

func moduleWith(name string, fns ...*bytecode.CompiledFunction) *bytecode.Module {
	m := bytecode.NewModule(name)
	m.Functions = fns
	return m
}

func fn(name string, regs int, code ...bytecode.Instruction) *bytecode.CompiledFunction {
	return &bytecode.CompiledFunction{Name: name, RegisterCount: regs, Code: code}
}

func TestExecuteAddsTwoConstants(t *testing.T) {
	rt := runtime.NewRuntime()
	m := moduleWith("m",
		fn("main", 3,
			bytecode.EncodeABx(bytecode.LOADK, 0, 0),
			bytecode.EncodeABx(bytecode.LOADK, 1, 1),
			bytecode.EncodeABC(bytecode.ADD, 2, 0, 1),
			bytecode.EncodeABC(bytecode.RET, 2, 0, 0),
		),
	)
	m.Constants = []runtime.Value{runtime.IntValue(2), runtime.IntValue(3)}
	require.NoError(t, bytecode.Verify(m))

	machine := vm.New(rt)
	machine.RegisterModule(m)

	result, err := machine.Execute(m, m.Functions[0], nil)
	require.NoError(t, err)
	require.Equal(t, int32(5), result.Int())
}

func TestExecuteDivisionByZeroFails(t *testing.T) {
	rt := runtime.NewRuntime()
	m := moduleWith("m",
		fn("main", 3,
			bytecode.EncodeABx(bytecode.LOADK, 0, 0),
			bytecode.EncodeABx(bytecode.LOADK, 1, 1),
			bytecode.EncodeABC(bytecode.DIV, 2, 0, 1),
			bytecode.EncodeABC(bytecode.RET, 2, 0, 0),
		),
	)
	m.Constants = []runtime.Value{runtime.IntValue(1), runtime.IntValue(0)}

	machine := vm.New(rt)
	machine.RegisterModule(m)

	_, err := machine.Execute(m, m.Functions[0], nil)
	require.Error(t, err)
	var failure *vm.Failure
	require.ErrorAs(t, err, &failure)
	require.NotNil(t, failure.Trace)
	require.Len(t, failure.Trace.Frames, 1)
}

func TestExecuteDirectCallBetweenFunctions(t *testing.T) {
	rt := runtime.NewRuntime()
	callee := fn("double", 2,
		bytecode.EncodeABC(bytecode.ADD, 1, 0, 0),
		bytecode.EncodeABC(bytecode.RET, 1, 0, 0),
	)
	caller := fn("main", 3,
		bytecode.EncodeABx(bytecode.LOADK, 1, 0),
		bytecode.EncodeABC(bytecode.CALL, 0, 1, 1), // call Functions[1] (double), arg at r1, argc 1
		bytecode.EncodeABC(bytecode.RET, 0, 0, 0),
	)
	m := moduleWith("m", caller, callee)
	m.Constants = []runtime.Value{runtime.IntValue(21)}
	require.NoError(t, bytecode.Verify(m))

	machine := vm.New(rt)
	machine.RegisterModule(m)

	result, err := machine.Execute(m, m.Functions[0], nil)
	require.NoError(t, err)
	require.Equal(t, int32(42), result.Int())
}

func TestExecuteGasLimitExceeded(t *testing.T) {
	rt := runtime.NewRuntime()
	// An infinite loop: JMP -1 backward forever.
	m := moduleWith("m", fn("main", 1, bytecode.EncodeJump(bytecode.JMP, -1)))

	machine := vm.New(rt)
	machine.RegisterModule(m)
	machine.SetGasLimit(5)

	_, err := machine.Execute(m, m.Functions[0], nil)
	require.Error(t, err)
	require.ErrorIs(t, err, vm.ErrExecutionLimitExceeded)
}

func TestExecuteCallDepthExceeded(t *testing.T) {
	rt := runtime.NewRuntime()
	// main calls itself directly forever.
	self := fn("main", 1, bytecode.EncodeABC(bytecode.CALL, 0, 0, 0))
	m := moduleWith("m", self)

	machine := vm.New(rt)
	machine.RegisterModule(m)

	_, err := machine.Execute(m, m.Functions[0], nil)
	require.Error(t, err)
	require.ErrorIs(t, err, vm.ErrCallDepthExceeded)
}

func TestExecuteStructFieldRoundTrip(t *testing.T) {
	rt := runtime.NewRuntime()
	structType := rt.RegisterStruct(struct{}{}, "Point", []runtime.FieldDef{
		{Name: "x", Type: runtime.IntType},
		{Name: "y", Type: runtime.IntType},
	}, false)

	m := moduleWith("m", fn("main", 3,
		bytecode.EncodeABx(bytecode.NEWSTRUCT, 0, 0),
		bytecode.EncodeABx(bytecode.LOADK, 1, 0),
		bytecode.EncodeABC(bytecode.SETFIELD, 0, 0, 1),
		bytecode.EncodeABC(bytecode.GETFIELD, 2, 0, 0),
		bytecode.EncodeABC(bytecode.RET, 2, 0, 0),
	))
	m.Types = []bytecode.TypeRef{{Type: structType}}
	m.Fields = []bytecode.FieldRef{{StructType: structType, FieldIndex: 0, FieldType: runtime.IntType}}
	m.Constants = []runtime.Value{runtime.IntValue(7)}
	require.NoError(t, bytecode.Verify(m))

	machine := vm.New(rt)
	machine.RegisterModule(m)

	result, err := machine.Execute(m, m.Functions[0], nil)
	require.NoError(t, err)
	require.Equal(t, int32(7), result.Int())
}

func TestExecuteCallNativeInvokesHostFunction(t *testing.T) {
	rt := runtime.NewRuntime()
	m := moduleWith("m", fn("main", 2,
		bytecode.EncodeABx(bytecode.LOADK, 1, 0),
		bytecode.EncodeABC(bytecode.CALLNATIVE, 0, 0, 1),
		bytecode.EncodeABC(bytecode.RET, 0, 0, 0),
	))
	m.Constants = []runtime.Value{runtime.IntValue(19)}
	m.Externals = []bytecode.ExternalRef{{Module: "host", Name: "incr"}}

	machine := vm.New(rt)
	machine.RegisterModule(m)
	machine.RegisterNative("host.incr", func(_ *runtime.Runtime, args []runtime.Value) (runtime.Value, error) {
		return runtime.IntValue(args[0].Int() + 1), nil
	})

	result, err := machine.Execute(m, m.Functions[0], nil)
	require.NoError(t, err)
	require.Equal(t, int32(20), result.Int())
}

func TestExecuteClosureCapturesUpvalue(t *testing.T) {
	rt := runtime.NewRuntime()
	closureType := rt.RegisterStruct(struct{ closureMarker int }{}, "Closure", nil, false)

	adder := fn("adder", 2,
		bytecode.EncodeABC(bytecode.GETUPVAL, 1, 0, 0),
		bytecode.EncodeABC(bytecode.ADD, 1, 1, 0),
		bytecode.EncodeABC(bytecode.RET, 1, 0, 0),
	)
	adder.FunctionType = closureType
	adder.Upvalues = []bytecode.UpvalueDesc{{FromParentLocal: true, Index: 0}}

	makeAdder := fn("makeAdder", 2,
		bytecode.EncodeABx(bytecode.LOADK, 0, 0),
		bytecode.EncodeABx(bytecode.CLOSURE, 1, 1), // Functions[1] is adder
		bytecode.EncodeABC(bytecode.CLOSEUPVALS, 0, 0, 0),
		bytecode.EncodeABC(bytecode.RET, 1, 0, 0),
	)

	m := moduleWith("m", makeAdder, adder)
	m.Constants = []runtime.Value{runtime.IntValue(10)}
	require.NoError(t, bytecode.Verify(m))

	machine := vm.New(rt)
	machine.RegisterModule(m)

	closureVal, err := machine.Execute(m, m.Functions[0], nil)
	require.NoError(t, err)
	require.False(t, closureVal.IsNil())

	callClosure := fn("callClosure", 2,
		bytecode.EncodeABC(bytecode.MOVE, 0, 0, 0),
		bytecode.EncodeABx(bytecode.LOADK, 1, 1),
		bytecode.EncodeABC(bytecode.CALLCLOSURE, 0, 0, 1),
		bytecode.EncodeABC(bytecode.RET, 0, 0, 0),
	)
	m2 := moduleWith("m", callClosure)
	m2.Constants = []runtime.Value{runtime.Nil, runtime.IntValue(5)}
	require.NoError(t, bytecode.Verify(m2))

	machine2 := vm.New(rt)
	machine2.RegisterModule(m2)
	result, err := machine2.Execute(m2, m2.Functions[0], []runtime.Value{closureVal})
	require.NoError(t, err)
	require.Equal(t, int32(15), result.Int())
}

func TestCollectRetainsValueReachableFromGlobal(t *testing.T) {
	rt := runtime.NewRuntime()
	arrType := rt.RegisterArrayType(runtime.IntType)

	m := moduleWith("m", fn("main", 1,
		bytecode.EncodeABx(bytecode.NEWARRAY, 0, 0),
		bytecode.EncodeABx(bytecode.SETGLOBAL, 0, 0),
		bytecode.EncodeABC(bytecode.RETVOID, 0, 0, 0),
	))
	m.Types = []bytecode.TypeRef{{Type: arrType}}
	m.GlobalCount = 1
	require.NoError(t, bytecode.Verify(m))

	machine := vm.New(rt)
	machine.RegisterModule(m)

	_, err := machine.Execute(m, m.Functions[0], nil)
	require.NoError(t, err)
	require.False(t, m.Globals[0].IsNil())

	machine.Collect()
	obj := rt.Heap.Get(m.Globals[0].Heap())
	require.NotNil(t, obj)
	require.NotNil(t, obj.Array)
}

func TestExecuteStackValueCopiedAcrossCallBoundary(t *testing.T) {
	rt := runtime.NewRuntime()
	pointType := rt.RegisterStruct(struct{ pointMarker int }{}, "Point", []runtime.FieldDef{
		{Name: "x", Type: runtime.IntType},
	}, true)

	consumer := fn("readX", 2,
		bytecode.EncodeABC(bytecode.STACK_FIELDGET, 1, 0, 0),
		bytecode.EncodeABC(bytecode.RET, 1, 0, 0),
	)
	producer := fn("main", 4,
		bytecode.EncodeABx(bytecode.STACK_ALLOC, 0, 0),
		bytecode.EncodeABx(bytecode.LOADK, 1, 0),
		bytecode.EncodeABC(bytecode.STACK_FIELDSET, 0, 0, 1),
		bytecode.EncodeABC(bytecode.MOVE, 3, 0, 0),
		bytecode.EncodeABC(bytecode.CALL, 2, 1, 1), // call Functions[1] (readX), arg at r3
		bytecode.EncodeABC(bytecode.RET, 2, 0, 0),
	)
	m := moduleWith("m", producer, consumer)
	m.Types = []bytecode.TypeRef{{Type: pointType}}
	m.Fields = []bytecode.FieldRef{{StructType: pointType, FieldIndex: 0, FieldType: runtime.IntType}}
	m.Constants = []runtime.Value{runtime.IntValue(42)}
	require.NoError(t, bytecode.Verify(m))

	machine := vm.New(rt)
	machine.RegisterModule(m)

	result, err := machine.Execute(m, m.Functions[0], nil)
	require.NoError(t, err)
	require.Equal(t, int32(42), result.Int())
}

func TestExecuteReentrantFromNativeCallback(t *testing.T) {
	rt := runtime.NewRuntime()
	addOne := fn("addOne", 2,
		bytecode.EncodeABx(bytecode.LOADK, 1, 1),
		bytecode.EncodeABC(bytecode.ADD, 1, 0, 1),
		bytecode.EncodeABC(bytecode.RET, 1, 0, 0),
	)
	main := fn("main", 2,
		bytecode.EncodeABx(bytecode.LOADK, 1, 0),
		bytecode.EncodeABC(bytecode.CALLNATIVE, 0, 0, 1),
		bytecode.EncodeABC(bytecode.RET, 0, 0, 0),
	)
	m := moduleWith("m", main, addOne)
	m.Constants = []runtime.Value{runtime.IntValue(5), runtime.IntValue(1)}
	m.Externals = []bytecode.ExternalRef{{Module: "host", Name: "reentrant"}}
	require.NoError(t, bytecode.Verify(m))

	machine := vm.New(rt)
	machine.RegisterModule(m)
	machine.RegisterNative("host.reentrant", func(_ *runtime.Runtime, args []runtime.Value) (runtime.Value, error) {
		return machine.Execute(m, m.Functions[1], []runtime.Value{args[0]})
	})

	result, err := machine.Execute(m, m.Functions[0], nil)
	require.NoError(t, err)
	require.Equal(t, int32(6), result.Int())
}

func TestExecuteGlobalReadWrite(t *testing.T) {
	rt := runtime.NewRuntime()
	m := moduleWith("m", fn("main", 2,
		bytecode.EncodeABx(bytecode.LOADK, 0, 0),
		bytecode.EncodeABx(bytecode.SETGLOBAL, 0, 0),
		bytecode.EncodeABx(bytecode.GETGLOBAL, 1, 0),
		bytecode.EncodeABC(bytecode.RET, 1, 0, 0),
	))
	m.GlobalCount = 1
	m.Constants = []runtime.Value{runtime.IntValue(99)}
	require.NoError(t, bytecode.Verify(m))

	machine := vm.New(rt)
	machine.RegisterModule(m)

	result, err := machine.Execute(m, m.Functions[0], nil)
	require.NoError(t, err)
	require.Equal(t, int32(99), result.Int())
}
