package bytecode

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/jd28/smalls/lang/runtime"
	"github.com/jd28/smalls/lang/token"
)

// Assemble reads the textual bytecode format (module header, an optional
// constants/types declaration block, then one or more function bodies) and
// builds a *Module from it directly, bypassing lang/parser and lang/compiler
// entirely. It is the fast path for VM tests and for hand-iterating on
// bytecode: Disassemble's function headers and instruction lines, each
// optionally prefixed by its "pc\t" column, are valid input here unchanged.
// Disassemble emits no endfunction line, so one has to follow each
// function body before the text is reassembled.
//
// Only the instruction stream, the constant pool, and primitive/array/map
// type references are supported; a module needing struct/sum/tuple/function
// TypeRefs, FieldRefs, or Externals must still be built by lang/compiler —
// this format has no declaration syntax for them (see DESIGN.md).
func Assemble(rt *runtime.Runtime, name string, src []byte) (*Module, error) {
	a := &asmState{rt: rt, m: NewModule(name)}
	if err := a.run(src); err != nil {
		return nil, err
	}
	return a.m, nil
}

type asmState struct {
	rt   *runtime.Runtime
	m    *Module
	line int
	fn   *CompiledFunction
}

func (a *asmState) errorf(format string, args ...any) error {
	return fmt.Errorf("smallsasm:%d: %s", a.line, fmt.Sprintf(format, args...))
}

func (a *asmState) run(src []byte) error {
	sc := bufio.NewScanner(strings.NewReader(string(src)))
	for sc.Scan() {
		a.line++
		raw := sc.Text()
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			raw = raw[:i]
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if err := a.stmt(line); err != nil {
			return err
		}
	}
	if a.fn != nil {
		return a.errorf("missing endfunction for %q", a.fn.Name)
	}
	return sc.Err()
}

func (a *asmState) stmt(line string) error {
	fields := strings.Fields(line)
	kw := fields[0]

	if a.fn != nil && kw != "endfunction" {
		return a.instruction(line, fields)
	}

	switch kw {
	case "module":
		if len(fields) != 2 {
			return a.errorf("module: expected a name")
		}
		a.m.Name = fields[1]
	case "globals":
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return a.errorf("globals: %v", err)
		}
		a.m.GlobalCount = n
	case "const":
		return a.constDecl(fields)
	case "type":
		return a.typeDecl(fields)
	case "function":
		return a.functionHeader(line)
	case "endfunction":
		if a.fn == nil {
			return a.errorf("endfunction without a matching function")
		}
		a.m.Functions = append(a.m.Functions, a.fn)
		a.fn = nil
	default:
		return a.errorf("unexpected %q", kw)
	}
	return nil
}

// constDecl parses `const <idx> int|float|bool|string <literal>`, appending
// to m.Constants (idx must match the next free slot — constants are
// declared in order, same as the compiler emits them).
func (a *asmState) constDecl(fields []string) error {
	if len(fields) < 4 {
		return a.errorf("const: expected index, kind, and value")
	}
	idx, err := strconv.Atoi(fields[1])
	if err != nil {
		return a.errorf("const: bad index: %v", err)
	}
	if idx != len(a.m.Constants) {
		return a.errorf("const: index %d out of order, expected %d", idx, len(a.m.Constants))
	}

	var v runtime.Value
	switch kind := fields[2]; kind {
	case "int":
		n, err := strconv.ParseInt(fields[3], 10, 32)
		if err != nil {
			return a.errorf("const: bad int literal: %v", err)
		}
		v = runtime.IntValue(int32(n))
	case "float":
		f, err := strconv.ParseFloat(fields[3], 32)
		if err != nil {
			return a.errorf("const: bad float literal: %v", err)
		}
		v = runtime.FloatValue(float32(f))
	case "bool":
		v = runtime.BoolValue(fields[3] == "true")
	case "string":
		s, err := parseQuoted(strings.Join(fields[3:], " "))
		if err != nil {
			return a.errorf("const: bad string literal: %v", err)
		}
		v = runtime.HeapValue(runtime.StringType, a.rt.Heap.AllocString(s))
	default:
		return a.errorf("const: unknown kind %q", kind)
	}
	a.m.Constants = append(a.m.Constants, v)
	return nil
}

// typeDecl parses `type <idx> <typeExpr>`, appending to m.Types.
func (a *asmState) typeDecl(fields []string) error {
	if len(fields) < 3 {
		return a.errorf("type: expected index and type expression")
	}
	idx, err := strconv.Atoi(fields[1])
	if err != nil {
		return a.errorf("type: bad index: %v", err)
	}
	if idx != len(a.m.Types) {
		return a.errorf("type: index %d out of order, expected %d", idx, len(a.m.Types))
	}
	t, err := a.parseTypeExpr(strings.Join(fields[2:], " "))
	if err != nil {
		return err
	}
	a.m.Types = append(a.m.Types, TypeRef{Type: t})
	return nil
}

// parseTypeExpr recognizes the primitive keywords plus array<T> and
// map<K,V>; anything needing a nominal struct/sum/newtype/tuple/function
// TypeID must come from lang/compiler instead.
func (a *asmState) parseTypeExpr(s string) (runtime.TypeID, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "int":
		return runtime.IntType, nil
	case "float":
		return runtime.FloatType, nil
	case "bool":
		return runtime.BoolType, nil
	case "string":
		return runtime.StringType, nil
	case "void":
		return runtime.VoidType, nil
	case "object":
		return runtime.ObjectType, nil
	case "any":
		return runtime.AnyType, nil
	}
	if inner, ok := bracketed(s, "array<", '>'); ok {
		elem, err := a.parseTypeExpr(inner)
		if err != nil {
			return runtime.InvalidTypeID, err
		}
		return a.rt.RegisterArrayType(elem), nil
	}
	if inner, ok := bracketed(s, "map<", '>'); ok {
		k, v, ok := splitTopLevelComma(inner)
		if !ok {
			return runtime.InvalidTypeID, a.errorf("type: map expects map<K,V>, got %q", s)
		}
		keyType, err := a.parseTypeExpr(k)
		if err != nil {
			return runtime.InvalidTypeID, err
		}
		valType, err := a.parseTypeExpr(v)
		if err != nil {
			return runtime.InvalidTypeID, err
		}
		return a.rt.RegisterMapType(keyType, valType), nil
	}
	return runtime.InvalidTypeID, a.errorf("type: unrecognized type expression %q", s)
}

func bracketed(s, prefix string, close byte) (string, bool) {
	if !strings.HasPrefix(s, prefix) || s[len(s)-1] != close {
		return "", false
	}
	return s[len(prefix) : len(s)-1], true
}

func splitTopLevelComma(s string) (string, string, bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), true
			}
		}
	}
	return "", "", false
}

func parseQuoted(s string) (string, error) {
	v, err := strconv.Unquote(s)
	if err != nil {
		return "", err
	}
	return v, nil
}

// functionHeader parses `function name(N params, M registers)`, matching
// Disassemble's own rendering exactly.
func (a *asmState) functionHeader(line string) error {
	if a.fn != nil {
		return a.errorf("nested function declaration")
	}
	open := strings.IndexByte(line, '(')
	close := strings.LastIndexByte(line, ')')
	if open < 0 || close < open {
		return a.errorf("function: malformed header %q", line)
	}
	name := strings.TrimSpace(strings.TrimPrefix(line[:open], "function"))
	args := strings.Split(line[open+1:close], ",")
	if len(args) != 2 {
		return a.errorf("function: expected \"N params, M registers\"")
	}
	params, err := firstInt(args[0])
	if err != nil {
		return a.errorf("function: bad param count: %v", err)
	}
	regs, err := firstInt(args[1])
	if err != nil {
		return a.errorf("function: bad register count: %v", err)
	}
	a.fn = &CompiledFunction{Name: name, ParamCount: params, RegisterCount: regs}
	return nil
}

func firstInt(s string) (int, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, fmt.Errorf("expected an integer, got %q", s)
	}
	return strconv.Atoi(fields[0])
}

// instruction parses one instruction line, stripping Disassemble's optional
// leading "pc\t" column if present.
func (a *asmState) instruction(line string, fields []string) error {
	if _, err := strconv.Atoi(fields[0]); err == nil {
		// A leading pc column, as Disassemble prints it, is positional only
		// — the real pc is len(a.fn.Code) once appended — so just discard it.
		rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
		fields = strings.Fields(rest)
		if len(fields) == 0 {
			return a.errorf("instruction: empty after pc column")
		}
	}

	opName := fields[0]
	operands := strings.Split(strings.Join(fields[1:], ""), ",")
	for i := range operands {
		operands[i] = strings.TrimSpace(operands[i])
	}
	if len(operands) == 1 && operands[0] == "" {
		operands = nil
	}

	op, ok := lookupOpcode(opName)
	if !ok {
		return a.errorf("instruction: unknown opcode %q", opName)
	}

	var ins Instruction
	switch LayoutOf(op) {
	case LayoutABC:
		regs, err := a.registers(operands, 3)
		if err != nil {
			return err
		}
		ins = EncodeABC(op, regs[0], regs[1], regs[2])
	case LayoutABx, LayoutAsBx:
		if len(operands) != 2 {
			return a.errorf("instruction: %s expects a register and an immediate operand", opName)
		}
		regs, err := a.registers(operands[:1], 1)
		if err != nil {
			return err
		}
		if LayoutOf(op) == LayoutABx {
			bx, err := a.uint16Operand(operands, 1)
			if err != nil {
				return err
			}
			ins = EncodeABx(op, regs[0], bx)
		} else {
			sbx, err := a.intOperand(operands, 1)
			if err != nil {
				return err
			}
			ins = EncodeAsBx(op, regs[0], int32(sbx))
		}
	case LayoutJump:
		if len(operands) != 1 {
			return a.errorf("instruction: %s expects a single jump-offset operand", opName)
		}
		off, err := a.intOperand(operands, 0)
		if err != nil {
			return err
		}
		ins = EncodeJump(op, int32(off))
	}
	a.fn.Code = append(a.fn.Code, ins)
	a.fn.Locations = append(a.fn.Locations, token.Range{})
	return nil
}

func (a *asmState) registers(operands []string, want int) ([]uint8, error) {
	if len(operands) != want {
		return nil, a.errorf("instruction: expected %d register operand(s), got %d", want, len(operands))
	}
	out := make([]uint8, want)
	for i, o := range operands {
		if !strings.HasPrefix(o, "r") {
			return nil, a.errorf("instruction: expected a register operand like r0, got %q", o)
		}
		n, err := strconv.Atoi(o[1:])
		if err != nil || n < 0 || n > MaxRegister {
			return nil, a.errorf("instruction: bad register operand %q", o)
		}
		out[i] = uint8(n)
	}
	return out, nil
}

func (a *asmState) uint16Operand(operands []string, i int) (uint16, error) {
	if i >= len(operands) {
		return 0, a.errorf("instruction: missing operand %d", i)
	}
	n, err := strconv.ParseUint(operands[i], 10, 16)
	if err != nil {
		return 0, a.errorf("instruction: bad operand %q: %v", operands[i], err)
	}
	return uint16(n), nil
}

func (a *asmState) intOperand(operands []string, i int) (int, error) {
	if i >= len(operands) {
		return 0, a.errorf("instruction: missing operand %d", i)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(operands[i], "+"))
	if err != nil {
		return 0, a.errorf("instruction: bad operand %q: %v", operands[i], err)
	}
	return n, nil
}

func lookupOpcode(name string) (Opcode, bool) {
	for op, n := range opcodeNames {
		if n == name {
			return Opcode(op), true
		}
	}
	return 0, false
}
