package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble renders fn's instruction stream in a human-readable textual
// form, one instruction per line, for use in tests and debug tooling. It
// deliberately mirrors the register/operand order instructions are encoded
// in, not a reconstructed source expression.
func Disassemble(m *Module, fn *CompiledFunction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "function %s(%d params, %d registers)\n", fn.Name, fn.ParamCount, fn.RegisterCount)
	for pc, ins := range fn.Code {
		fmt.Fprintf(&b, "%4d\t%s\n", pc, disasmOne(m, ins))
	}
	return b.String()
}

func disasmOne(m *Module, ins Instruction) string {
	op := ins.Op()
	switch LayoutOf(op) {
	case LayoutABx:
		return fmt.Sprintf("%-14s r%d, %d", op, ins.A(), ins.Bx())
	case LayoutAsBx:
		return fmt.Sprintf("%-14s r%d, %d", op, ins.A(), ins.SBx())
	case LayoutJump:
		return fmt.Sprintf("%-14s %+d", op, ins.Jump())
	default:
		return fmt.Sprintf("%-14s r%d, r%d, r%d", op, ins.A(), ins.B(), ins.C())
	}
}

// DisassembleModule renders every function in m.
func DisassembleModule(m *Module) string {
	var b strings.Builder
	fmt.Fprintf(&b, "module %s\n", m.Name)
	for _, fn := range m.Functions {
		b.WriteString(Disassemble(m, fn))
		b.WriteString("\n")
	}
	return b.String()
}
