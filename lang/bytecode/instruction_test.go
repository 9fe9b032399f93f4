package bytecode_test

import (
	"testing"

	"github.com/jd28/smalls/lang/bytecode"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeABC(t *testing.T) {
	ins := bytecode.EncodeABC(bytecode.ADD, 1, 2, 3)
	require.Equal(t, bytecode.ADD, ins.Op())
	require.EqualValues(t, 1, ins.A())
	require.EqualValues(t, 2, ins.B())
	require.EqualValues(t, 3, ins.C())
}

func TestEncodeDecodeABx(t *testing.T) {
	ins := bytecode.EncodeABx(bytecode.LOADK, 5, 4000)
	require.Equal(t, bytecode.LOADK, ins.Op())
	require.EqualValues(t, 5, ins.A())
	require.EqualValues(t, 4000, ins.Bx())
}

func TestEncodeDecodeAsBx(t *testing.T) {
	for _, v := range []int32{0, 1, -1, bytecode.MaxSBx, bytecode.MinSBx} {
		ins := bytecode.EncodeAsBx(bytecode.LOADI, 0, v)
		require.Equal(t, v, ins.SBx(), "round trip of %d", v)
	}
}

func TestEncodeDecodeJump(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 100, -100, bytecode.MaxJump, bytecode.MinJump} {
		ins := bytecode.EncodeJump(bytecode.JMP, v)
		require.Equal(t, v, ins.Jump(), "round trip of %d", v)
	}
}

func TestLayoutOfDefaultsToABC(t *testing.T) {
	require.Equal(t, bytecode.LayoutABC, bytecode.LayoutOf(bytecode.ADD))
	require.Equal(t, bytecode.LayoutABx, bytecode.LayoutOf(bytecode.LOADK))
	require.Equal(t, bytecode.LayoutJump, bytecode.LayoutOf(bytecode.JMP))
}

func TestOpcodeStringIsTotal(t *testing.T) {
	require.Equal(t, "add", bytecode.ADD.String())
	require.Contains(t, bytecode.Opcode(250).String(), "illegal op")
}
