package bytecode_test

import (
	"testing"

	"github.com/jd28/smalls/lang/bytecode"
	"github.com/jd28/smalls/lang/runtime"
	"github.com/stretchr/testify/require"
)

func fn(regs int, code ...bytecode.Instruction) *bytecode.CompiledFunction {
	return &bytecode.CompiledFunction{Name: "f", RegisterCount: regs, Code: code}
}

func moduleWith(fns ...*bytecode.CompiledFunction) *bytecode.Module {
	m := bytecode.NewModule("test")
	m.Functions = fns
	return m
}

func TestVerifyAcceptsWellFormedFunction(t *testing.T) {
	m := moduleWith(fn(3,
		bytecode.EncodeABx(bytecode.LOADK, 0, 0),
		bytecode.EncodeABC(bytecode.ADD, 2, 0, 1),
		bytecode.EncodeABC(bytecode.RET, 2, 0, 0),
	))
	m.Constants = []runtime.Value{runtime.IntValue(1)}
	require.NoError(t, bytecode.Verify(m))
}

func TestVerifyRejectsOutOfRangeRegister(t *testing.T) {
	m := moduleWith(fn(2, bytecode.EncodeABC(bytecode.ADD, 0, 1, 5)))
	err := bytecode.Verify(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "register r5 out of bounds")
}

func TestVerifyRejectsOutOfRangeConstant(t *testing.T) {
	m := moduleWith(fn(1, bytecode.EncodeABx(bytecode.LOADK, 0, 9)))
	err := bytecode.Verify(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "constant index 9 out of bounds")
}

func TestVerifyRejectsOutOfRangeJumpTarget(t *testing.T) {
	m := moduleWith(fn(1, bytecode.EncodeJump(bytecode.JMP, 100)))
	err := bytecode.Verify(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "jump target")
}

func TestVerifyRejectsOutOfRangeGlobalSlot(t *testing.T) {
	m := moduleWith(fn(1, bytecode.EncodeABx(bytecode.GETGLOBAL, 0, 3)))
	m.GlobalCount = 1
	err := bytecode.Verify(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "global slot 3 out of bounds")
}

func TestVerifyRejectsOutOfRangeFieldRef(t *testing.T) {
	m := moduleWith(fn(2, bytecode.EncodeABC(bytecode.FIELDGETI, 0, 4, 1)))
	err := bytecode.Verify(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "field reference 4 out of bounds")
}

func TestVerifyRejectsOutOfRangeExternalRef(t *testing.T) {
	m := moduleWith(fn(1, bytecode.EncodeABC(bytecode.CALLEXT, 0, 7, 0)))
	err := bytecode.Verify(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "external reference 7 out of bounds")
}

func TestVerifyRejectsIllegalOpcode(t *testing.T) {
	m := moduleWith(fn(1, bytecode.Instruction(250)))
	err := bytecode.Verify(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "illegal opcode")
}

func TestVerifyRejectsBadClosureFunctionIndex(t *testing.T) {
	m := moduleWith(fn(1, bytecode.EncodeABx(bytecode.CLOSURE, 0, 5)))
	err := bytecode.Verify(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "function index 5 out of bounds")
}

func TestDisassembleRoundTripsOpcodeNames(t *testing.T) {
	m := moduleWith(fn(2,
		bytecode.EncodeABx(bytecode.LOADK, 0, 0),
		bytecode.EncodeABC(bytecode.RET, 0, 0, 0),
	))
	out := bytecode.Disassemble(m, m.Functions[0])
	require.Contains(t, out, "loadk")
	require.Contains(t, out, "ret")
}
