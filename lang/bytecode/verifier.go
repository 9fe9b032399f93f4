package bytecode

import "fmt"

// VerifyError reports a single verification failure, identifying the
// offending function and instruction so the host can render it without a
// source map.
type VerifyError struct {
	Function string
	PC       int
	Msg      string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("%s: pc %d: %s", e.Function, e.PC, e.Msg)
}

// Verify performs the static safety checks a module must pass before the VM
// will load it: every register, constant, global, function, type, field, and
// jump-target reference in every instruction must be in bounds. Verification
// catches a malformed or adversarially-crafted module before a single
// instruction executes; it does not perform type checking (that is the
// front end's job, upstream of code generation).
func Verify(m *Module) error {
	for _, fn := range m.Functions {
		if err := verifyFunction(m, fn); err != nil {
			return err
		}
	}
	return nil
}

func verifyFunction(m *Module, fn *CompiledFunction) error {
	regs := fn.RegisterCount
	n := len(fn.Code)
	fail := func(pc int, format string, args ...any) error {
		return &VerifyError{Function: fn.Name, PC: pc, Msg: fmt.Sprintf(format, args...)}
	}

	checkReg := func(pc int, r uint8) error {
		if int(r) >= regs {
			return fail(pc, "register r%d out of bounds (function has %d registers)", r, regs)
		}
		return nil
	}

	for pc, ins := range fn.Code {
		op := ins.Op()
		if op >= opcodeCount {
			return fail(pc, "illegal opcode %d", op)
		}

		switch LayoutOf(op) {
		case LayoutABC:
			if err := checkReg(pc, ins.A()); err != nil && opWritesA(op) {
				return err
			}
			if err := verifyABCOperands(m, op, pc, ins, regs, checkReg, fail); err != nil {
				return err
			}
		case LayoutABx:
			if err := checkReg(pc, ins.A()); err != nil {
				return err
			}
			if err := verifyBxRef(m, op, pc, ins.Bx(), fail); err != nil {
				return err
			}
		case LayoutAsBx:
			if err := checkReg(pc, ins.A()); err != nil {
				return err
			}
			if op == JMPT || op == JMPF {
				target := pc + 1 + int(ins.SBx())
				if target < 0 || target > n {
					return fail(pc, "jump target %d out of bounds [0,%d]", target, n)
				}
			}
		case LayoutJump:
			target := pc + 1 + int(ins.Jump())
			if target < 0 || target > n {
				return fail(pc, "jump target %d out of bounds [0,%d]", target, n)
			}
		}

		if op == CLOSURE {
			if err := verifyClosureDescriptor(m, fn, pc, ins, fail); err != nil {
				return err
			}
		}
	}
	return nil
}

// opWritesA reports whether op's A operand is a destination register (as
// opposed to, e.g., a jump-target-adjacent test register). Every opcode in
// this instruction set treats A as a register write target except the
// handful that use it purely as a read/test operand; those are listed
// individually below.
func opWritesA(op Opcode) bool {
	switch op {
	case JMP, JMPT, JMPF, RET, RETVOID, SETGLOBAL, SETFIELD, SETUPVAL:
		return false
	}
	return true
}

// fieldIndexedOps are the fast-path field accessors whose B operand is an
// index into the module's field-reference table rather than a register.
var fieldIndexedOps = map[Opcode]bool{
	GETFIELD: true, SETFIELD: true,
	FIELDGETI: true, FIELDGETF: true, FIELDGETB: true, FIELDGETS: true, FIELDGETO: true, FIELDGETH: true,
	FIELDSETI: true, FIELDSETF: true, FIELDSETB: true, FIELDSETS: true, FIELDSETO: true, FIELDSETH: true,
	FIELDGETI_R: true, FIELDGETF_R: true, FIELDGETB_R: true, FIELDGETS_R: true, FIELDGETO_R: true, FIELDGETH_R: true,
	FIELDSETI_R: true, FIELDSETF_R: true, FIELDSETB_R: true, FIELDSETS_R: true, FIELDSETO_R: true, FIELDSETH_R: true,
	FIELDGETI_OFF_R: true, FIELDGETF_OFF_R: true, FIELDGETB_OFF_R: true, FIELDGETS_OFF_R: true, FIELDGETO_OFF_R: true, FIELDGETH_OFF_R: true,
	FIELDSETI_OFF_R: true, FIELDSETF_OFF_R: true, FIELDSETB_OFF_R: true, FIELDSETS_OFF_R: true, FIELDSETO_OFF_R: true, FIELDSETH_OFF_R: true,
	STACK_FIELDGET: true, STACK_FIELDSET: true, STACK_FIELDGET_R: true, STACK_FIELDSET_R: true,
}

// functionIndexedOps are the call opcodes whose B operand is an index into
// the module's function table rather than a register.
var functionIndexedOps = map[Opcode]bool{CALL: true}

// externalIndexedOps are the call opcodes whose B operand is an index into
// the module's external-reference table rather than a register.
var externalIndexedOps = map[Opcode]bool{CALLEXT: true, CALLEXT_R: true, CALLNATIVE: true}

// intrinsicIndexedOps are the call opcodes whose B operand is an intrinsic.ID
// rather than a register; intrinsic IDs are validated by the VM at dispatch
// time against the fixed, total intrinsic table, not here.
var intrinsicIndexedOps = map[Opcode]bool{CALLINTR: true, CALLINTR_R: true}

func verifyABCOperands(m *Module, op Opcode, pc int, ins Instruction, regs int, checkReg func(int, uint8) error, fail func(int, string, ...any) error) error {
	switch op {
	case NOP, LOADNIL, RETVOID, CLOSEUPVALS:
		return nil
	}

	b, c := ins.B(), ins.C()

	switch {
	case op == SUMINIT:
		// B is a literal variant tag, not a register (see dispatch.go); only
		// C (the payload register) needs bounds-checking.
		return checkReg(pc, c)
	case op == GETTUPLE:
		// C is a literal element index, not a register; only B (the tuple
		// register) needs bounds-checking.
		return checkReg(pc, b)
	case fieldIndexedOps[op]:
		if int(b) >= len(m.Fields) {
			return fail(pc, "field reference %d out of bounds (%d field refs)", b, len(m.Fields))
		}
		return checkReg(pc, c)
	case functionIndexedOps[op]:
		if int(b) >= len(m.Functions) {
			return fail(pc, "function index %d out of bounds (%d functions)", b, len(m.Functions))
		}
		return nil
	case externalIndexedOps[op] || intrinsicIndexedOps[op]:
		if externalIndexedOps[op] && int(b) >= len(m.Externals) {
			return fail(pc, "external reference %d out of bounds (%d external refs)", b, len(m.Externals))
		}
		return nil
	}

	if err := checkReg(pc, b); err != nil {
		return err
	}
	return checkReg(pc, c)
}

func verifyBxRef(m *Module, op Opcode, pc int, bx uint16, fail func(int, string, ...any) error) error {
	switch op {
	case LOADK:
		if int(bx) >= len(m.Constants) {
			return fail(pc, "constant index %d out of bounds (%d constants)", bx, len(m.Constants))
		}
	case NEWARRAY, NEWMAP, NEWSTRUCT, NEWSUM, NEWTUPLE, CAST, IS, STACK_ALLOC:
		if int(bx) >= len(m.Types) {
			return fail(pc, "type reference %d out of bounds (%d type refs)", bx, len(m.Types))
		}
	case GETGLOBAL, SETGLOBAL:
		if int(bx) >= m.GlobalCount {
			return fail(pc, "global slot %d out of bounds (%d globals)", bx, m.GlobalCount)
		}
	case CLOSURE:
		if int(bx) >= len(m.Functions) {
			return fail(pc, "function index %d out of bounds (%d functions)", bx, len(m.Functions))
		}
	}
	return nil
}

// verifyClosureDescriptor checks every upvalue descriptor of the function a
// CLOSURE instruction names against the enclosing function fn: a parent-local
// index must be one of fn's registers, and a parent-upvalue index must be
// within fn's own upvalue list (the descriptors live on the target
// CompiledFunction, not inline in the code stream).
func verifyClosureDescriptor(m *Module, fn *CompiledFunction, pc int, ins Instruction, fail func(int, string, ...any) error) error {
	target := m.Functions[ins.Bx()]
	for i, uv := range target.Upvalues {
		if uv.FromParentLocal {
			if int(uv.Index) >= fn.RegisterCount {
				return fail(pc, "closure upvalue descriptor %d references out-of-range parent local r%d (function has %d registers)", i, uv.Index, fn.RegisterCount)
			}
		} else if int(uv.Index) >= len(fn.Upvalues) {
			return fail(pc, "closure upvalue descriptor %d references out-of-range parent upvalue %d (function has %d upvalues)", i, uv.Index, len(fn.Upvalues))
		}
	}
	return nil
}
