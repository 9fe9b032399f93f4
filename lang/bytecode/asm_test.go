package bytecode_test

import (
	"testing"

	"github.com/jd28/smalls/lang/bytecode"
	"github.com/jd28/smalls/lang/runtime"
	"github.com/stretchr/testify/require"
)

func TestAssembleSimpleFunction(t *testing.T) {
	src := `
module adder
globals 0

const 0 int 40
const 1 int 2

function main(0 params, 3 registers)
	loadk  r0, 0
	loadk  r1, 1
	add    r2, r0, r1
	ret    r2, r2, r2
endfunction
`
	rt := runtime.NewRuntime()
	m, err := bytecode.Assemble(rt, "adder", []byte(src))
	require.NoError(t, err)
	require.Equal(t, "adder", m.Name)
	require.Len(t, m.Functions, 1)
	require.NoError(t, bytecode.Verify(m))

	fn := m.Functions[0]
	require.Equal(t, "main", fn.Name)
	require.Equal(t, 0, fn.ParamCount)
	require.Equal(t, 3, fn.RegisterCount)
	require.Len(t, fn.Code, 4)

	require.Equal(t, bytecode.LOADK, fn.Code[0].Op())
	require.EqualValues(t, 0, fn.Code[0].A())
	require.EqualValues(t, 0, fn.Code[0].Bx())

	require.Equal(t, bytecode.ADD, fn.Code[2].Op())
	require.EqualValues(t, 2, fn.Code[2].A())
	require.EqualValues(t, 0, fn.Code[2].B())
	require.EqualValues(t, 1, fn.Code[2].C())

	require.EqualValues(t, 40, m.Constants[0].Int())
	require.EqualValues(t, 2, m.Constants[1].Int())
}

func TestAssembleConsumesDisassembleOutput(t *testing.T) {
	src := `
module looper
globals 0

function count(0 params, 2 registers)
	loadi  r0, 0
	loadi  r1, 10
	isge   r0, r1, r0
	jmp    +2
	retvoid r0, r0, r0
	jmp    -3
endfunction
`
	rt := runtime.NewRuntime()
	m, err := bytecode.Assemble(rt, "looper", []byte(src))
	require.NoError(t, err)

	roundTrip := bytecode.Disassemble(m, m.Functions[0])
	m2, err := bytecode.Assemble(rt, "looper", []byte("module looper\nglobals 0\n\n"+roundTrip+"endfunction\n"))
	require.NoError(t, err)
	require.Equal(t, m.Functions[0].Code, m2.Functions[0].Code)
}

func TestAssembleArrayType(t *testing.T) {
	src := `
module arrays
globals 0

type 0 array<int>

function make(0 params, 1 registers)
	newarray r0, 0
	ret      r0, r0, r0
endfunction
`
	rt := runtime.NewRuntime()
	m, err := bytecode.Assemble(rt, "arrays", []byte(src))
	require.NoError(t, err)
	require.Len(t, m.Types, 1)

	def, ok := rt.TryGetType(m.Types[0].Type)
	require.True(t, ok)
	require.Equal(t, runtime.KindArray, def.Kind)
	require.Equal(t, runtime.IntType, def.Array.Elem)
}

func TestAssembleRejectsUnknownOpcode(t *testing.T) {
	src := `
module bad
globals 0

function f(0 params, 1 registers)
	frobnicate r0, r0, r0
endfunction
`
	_, err := bytecode.Assemble(runtime.NewRuntime(), "bad", []byte(src))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown opcode")
}

func TestAssembleRejectsOutOfOrderConstant(t *testing.T) {
	src := `
module bad
globals 0

const 1 int 5

function f(0 params, 1 registers)
	ret r0, r0, r0
endfunction
`
	_, err := bytecode.Assemble(runtime.NewRuntime(), "bad", []byte(src))
	require.Error(t, err)
	require.Contains(t, err.Error(), "out of order")
}
