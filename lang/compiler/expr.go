package compiler

import (
	"strings"

	"github.com/jd28/smalls/lang/ast"
	"github.com/jd28/smalls/lang/bytecode"
	"github.com/jd28/smalls/lang/intrinsic"
	"github.com/jd28/smalls/lang/runtime"
	"github.com/jd28/smalls/lang/token"
)

// binOpcodes maps a primitive operator symbol to the opcode that implements
// it directly; operators absent from this table (^, <<, >>) have no
// dedicated opcode and are lowered through CALLINTR instead (see
// binIntrinsics); runtime/operators.go's intBinaryOp implements all of
// them, but the bytecode ISA has no opcode for those three.
var binOpcodes = map[string]bytecode.Opcode{
	"+": bytecode.ADD, "-": bytecode.SUB, "*": bytecode.MUL, "/": bytecode.DIV, "%": bytecode.MOD,
	"&": bytecode.AND, "|": bytecode.OR,
	"==": bytecode.EQ, "!=": bytecode.NE, "<": bytecode.LT, "<=": bytecode.LE, ">": bytecode.GT, ">=": bytecode.GE,
}

var binIntrinsics = map[string]intrinsic.ID{
	"^": intrinsic.BitXor, "<<": intrinsic.BitShl, ">>": intrinsic.BitShr,
}

// compileExpr lowers e, writing its value into register dst.
func (fc *funcComp) compileExpr(e ast.Expr, dst uint8) error {
	rng := e.Span()

	if v, ok := tryFold(fc.c.rt, e); ok {
		return fc.loadConst(dst, v, rng)
	}

	switch e := e.(type) {
	case *ast.IntLit, *ast.FloatLit, *ast.BoolLit, *ast.StringLit, *ast.NilLit:
		// tryFold always handles these; unreachable unless folding somehow
		// declined a bare literal.
		v, _ := Eval(fc.c.rt, e)
		return fc.loadConst(dst, v, rng)

	case *ast.Ident:
		return fc.compileIdentRead(e, dst, rng)

	case *ast.BinaryExpr:
		return fc.compileBinaryExpr(e, dst, rng)

	case *ast.LogicalExpr:
		return fc.compileLogicalExpr(e, dst, rng)

	case *ast.UnaryExpr:
		return fc.compileUnaryExpr(e, dst, rng)

	case *ast.ConditionalExpr:
		return fc.compileConditionalExpr(e, dst, rng)

	case *ast.CallExpr:
		return fc.compileCallExpr(e, dst, rng)

	case *ast.FieldExpr:
		return fc.compileFieldRead(e, dst, rng)

	case *ast.IndexExpr:
		return fc.compileIndexRead(e, dst, rng)

	case *ast.StructLit:
		return fc.compileStructLit(e, dst, rng)

	case *ast.MapLit:
		return fc.compileMapLit(e, dst, rng)

	case *ast.ArrayLit:
		return fc.compileArrayLit(e, dst, rng)

	case *ast.FixedArrayLit:
		return fc.compileFixedArrayLit(e, dst, rng)

	case *ast.LambdaExpr:
		return fc.compileLambdaExpr(e, dst, rng)

	case *ast.CastExpr:
		if err := fc.compileExpr(e.Operand, dst); err != nil {
			return err
		}
		fc.emitBx(bytecode.CAST, dst, fc.c.internType(e.TargetType), rng)
		return nil

	case *ast.IsExpr:
		if err := fc.compileExpr(e.Operand, dst); err != nil {
			return err
		}
		fc.emitBx(bytecode.IS, dst, fc.c.internType(e.TargetType), rng)
		return nil

	case *ast.TypeofExpr:
		mark := fc.reg.mark()
		tmp := fc.reg.push()
		if err := fc.compileExpr(e.Operand, tmp); err != nil {
			return err
		}
		fc.emitC(bytecode.TYPEOF, dst, tmp, 0, rng)
		fc.reg.popTo(mark)
		return nil
	}

	return compileErrorf(rng, "compiler: unhandled expression %T", e)
}

// loadConst chooses the cheapest opcode able to materialize v into dst.
func (fc *funcComp) loadConst(dst uint8, v runtime.Value, rng token.Range) error {
	switch {
	case v.Type == runtime.VoidType:
		fc.emitC(bytecode.LOADNIL, dst, 0, 0, rng)
	case v.Type == runtime.BoolType:
		b := uint8(0)
		if v.Bool() {
			b = 1
		}
		fc.emitC(bytecode.LOADB, dst, b, 0, rng)
	case v.Type == runtime.IntType && int32(int16(v.Int())) == v.Int():
		fc.emitAsBx(bytecode.LOADI, dst, v.Int(), rng)
	default:
		fc.emitBx(bytecode.LOADK, dst, fc.c.internConst(v), rng)
	}
	return nil
}

func (fc *funcComp) compileIdentRead(e *ast.Ident, dst uint8, rng token.Range) error {
	if r, ok := fc.lookupLocal(e.Name); ok {
		if r != dst {
			fc.emitC(bytecode.MOVE, dst, r, 0, rng)
		}
		return nil
	}
	if idx, ok := fc.resolveUpvalue(e.Name); ok {
		fc.emitC(bytecode.GETUPVAL, dst, uint8(idx), 0, rng)
		return nil
	}
	if slot, ok := fc.c.globalSlots[e.Name]; ok {
		fc.emitBx(bytecode.GETGLOBAL, dst, slot, rng)
		return nil
	}
	if idx, ok := fc.c.funcIndex[e.Name]; ok {
		fc.emitBx(bytecode.CLOSURE, dst, idx, rng)
		return nil
	}
	return compileErrorf(rng, "undefined identifier %q", e.Name)
}

// emitIntrinsicCall gathers args into a contiguous register window, calls
// intrinsic id, and moves the (single) result into dst. Callers must ensure
// dst is allocated outside [mark, mark+1+len(args)) since that window is
// popped before returning.
func (fc *funcComp) emitIntrinsicCall(id intrinsic.ID, args []uint8, dst uint8, rng token.Range) {
	mark := fc.reg.mark()
	base := fc.reg.reserve(1 + len(args))
	for i, a := range args {
		fc.emitC(bytecode.MOVE, base+1+uint8(i), a, 0, rng)
	}
	fc.emitC(bytecode.CALLINTR, base, uint8(id), uint8(len(args)), rng)
	if dst != base {
		fc.emitC(bytecode.MOVE, dst, base, 0, rng)
	}
	fc.reg.popTo(mark)
}

// emitIntrinsicVoid is emitIntrinsicCall for intrinsics that report no
// return value (e.g. ArrayPush, which mutates its heap-object argument in
// place rather than writing register A) — callers must not mistake the
// call opcode's leftover A register for a result.
func (fc *funcComp) emitIntrinsicVoid(id intrinsic.ID, args []uint8, rng token.Range) {
	mark := fc.reg.mark()
	base := fc.reg.reserve(1 + len(args))
	for i, a := range args {
		fc.emitC(bytecode.MOVE, base+1+uint8(i), a, 0, rng)
	}
	fc.emitC(bytecode.CALLINTR, base, uint8(id), uint8(len(args)), rng)
	fc.reg.popTo(mark)
}

// emitBinary emits x OP y into dst, using the dedicated opcode when one
// exists and otherwise routing through the matching bitwise intrinsic.
func (fc *funcComp) emitBinary(op string, x, y, dst uint8, rng token.Range) error {
	if opc, ok := binOpcodes[op]; ok {
		fc.emitC(opc, dst, x, y, rng)
		return nil
	}
	if id, ok := binIntrinsics[op]; ok {
		fc.emitIntrinsicCall(id, []uint8{x, y}, dst, rng)
		return nil
	}
	return compileErrorf(rng, "compiler: unsupported binary operator %q", op)
}

func (fc *funcComp) emitUnary(op string, x, dst uint8, rng token.Range) error {
	switch op {
	case "-":
		fc.emitC(bytecode.NEG, dst, x, 0, rng)
	case "!":
		fc.emitC(bytecode.NOT, dst, x, 0, rng)
	case "~":
		fc.emitIntrinsicCall(intrinsic.BitNot, []uint8{x}, dst, rng)
	default:
		return compileErrorf(rng, "compiler: unsupported unary operator %q", op)
	}
	return nil
}

// splitQualified splits a resolver-interned "module.name" qualified
// reference (ast.Binding.Name / BinaryExpr.ScriptOp) on its last dot.
func splitQualified(qualified string) (module, name string) {
	i := strings.LastIndexByte(qualified, '.')
	if i < 0 {
		return "", qualified
	}
	return qualified[:i], qualified[i+1:]
}

func (fc *funcComp) compileBinaryExpr(e *ast.BinaryExpr, dst uint8, rng token.Range) error {
	if e.ScriptOp != "" {
		return fc.compileExternalCall(e.ScriptOp, []ast.Expr{e.Left, e.Right}, dst, rng)
	}
	mark := fc.reg.mark()
	l := fc.reg.push()
	if err := fc.compileExpr(e.Left, l); err != nil {
		return err
	}
	r := fc.reg.push()
	if err := fc.compileExpr(e.Right, r); err != nil {
		return err
	}
	err := fc.emitBinary(e.Op, l, r, dst, rng)
	fc.reg.popTo(mark)
	return err
}

func (fc *funcComp) compileUnaryExpr(e *ast.UnaryExpr, dst uint8, rng token.Range) error {
	if e.ScriptOp != "" {
		return fc.compileExternalCall(e.ScriptOp, []ast.Expr{e.Operand}, dst, rng)
	}
	mark := fc.reg.mark()
	x := fc.reg.push()
	if err := fc.compileExpr(e.Operand, x); err != nil {
		return err
	}
	err := fc.emitUnary(e.Op, x, dst, rng)
	fc.reg.popTo(mark)
	return err
}

// compileLogicalExpr lowers `&&`/`||` as short-circuit control flow (not a
// primitive opcode): the left operand's value is materialized directly into
// dst, and if it alone determines the result the right operand is skipped.
func (fc *funcComp) compileLogicalExpr(e *ast.LogicalExpr, dst uint8, rng token.Range) error {
	if err := fc.compileExpr(e.Left, dst); err != nil {
		return err
	}
	var skip int
	if e.Op == "&&" {
		skip = fc.emitAsBx(bytecode.JMPF, dst, 0, rng)
	} else {
		skip = fc.emitAsBx(bytecode.JMPT, dst, 0, rng)
	}
	if err := fc.compileExpr(e.Right, dst); err != nil {
		return err
	}
	fc.patchJumpHere(skip)
	return nil
}

func (fc *funcComp) compileConditionalExpr(e *ast.ConditionalExpr, dst uint8, rng token.Range) error {
	mark := fc.reg.mark()
	condReg := fc.reg.push()
	if err := fc.compileExpr(e.Cond, condReg); err != nil {
		return err
	}
	toElse := fc.emitAsBx(bytecode.JMPF, condReg, 0, rng)
	fc.reg.popTo(mark)
	if err := fc.compileExpr(e.Then, dst); err != nil {
		return err
	}
	toEnd := fc.emitJump(rng)
	fc.patchJumpHere(toElse)
	if err := fc.compileExpr(e.Else, dst); err != nil {
		return err
	}
	fc.patchJumpHere(toEnd)
	return nil
}

// compileExternalCall is the shared call-site codegen for CallExternal and
// the operator-overload (ScriptOp) call path, both of which resolve to a
// CALLEXT on an interned (module, name) external reference.
func (fc *funcComp) compileExternalCall(qualified string, args []ast.Expr, dst uint8, rng token.Range) error {
	mod, name := splitQualified(qualified)
	mark := fc.reg.mark()
	base := fc.reg.reserve(1 + len(args))
	for i, a := range args {
		if err := fc.compileExpr(a, base+1+uint8(i)); err != nil {
			return err
		}
	}
	fc.emitC(bytecode.CALLEXT, base, uint8(fc.c.internExternal(mod, name)), uint8(len(args)), rng)
	if base != dst {
		fc.emitC(bytecode.MOVE, dst, base, 0, rng)
	}
	fc.reg.popTo(mark)
	return nil
}

func (fc *funcComp) compileCallExpr(e *ast.CallExpr, dst uint8, rng token.Range) error {
	switch e.Kind {
	case CallDirect:
		return fc.compileDirectCall(e, dst, rng)
	case CallExternal:
		ident, ok := e.Callee.(*ast.Ident)
		if !ok {
			return compileErrorf(rng, "compiler: CallExternal callee must be an identifier")
		}
		return fc.compileExternalCall(ident.Binding.Name, e.Args, dst, rng)
	case CallIntrinsic:
		return fc.compileIntrinsicCall(e, dst, rng)
	case CallClosure:
		return fc.compileClosureCall(e, dst, rng)
	case CallGeneric:
		return fc.compileGenericCall(e, dst, rng)
	case CallNewtypeCast:
		if len(e.Args) != 1 {
			return compileErrorf(rng, "compiler: newtype cast takes exactly one argument")
		}
		if err := fc.compileExpr(e.Args[0], dst); err != nil {
			return err
		}
		fc.emitBx(bytecode.CAST, dst, fc.c.internType(e.NewtypeTarget), rng)
		return nil
	case CallSumVariant:
		return fc.compileSumVariantCall(e, dst, rng)
	}
	return compileErrorf(rng, "compiler: unhandled call kind %d", e.Kind)
}

// CallDirect/CallExternal/CallIntrinsic/CallClosure/CallGeneric/
// CallNewtypeCast/CallSumVariant mirror ast.CallKind so compileCallExpr's
// switch above reads naturally without an import-qualified prefix on every
// case arm.
const (
	CallDirect      = ast.CallDirect
	CallExternal    = ast.CallExternal
	CallIntrinsic   = ast.CallIntrinsic
	CallClosure     = ast.CallClosure
	CallGeneric     = ast.CallGeneric
	CallNewtypeCast = ast.CallNewtypeCast
	CallSumVariant  = ast.CallSumVariant
)

func (fc *funcComp) compileDirectCall(e *ast.CallExpr, dst uint8, rng token.Range) error {
	ident, ok := e.Callee.(*ast.Ident)
	if !ok {
		return compileErrorf(rng, "compiler: CallDirect callee must be an identifier")
	}
	idx, ok := fc.c.funcIndex[ident.Name]
	if !ok {
		return compileErrorf(rng, "compiler: call to undeclared function %q", ident.Name)
	}
	mark := fc.reg.mark()
	base := fc.reg.reserve(1 + len(e.Args))
	for i, a := range e.Args {
		if err := fc.compileExpr(a, base+1+uint8(i)); err != nil {
			return err
		}
	}
	fc.emitC(bytecode.CALL, base, uint8(idx), uint8(len(e.Args)), rng)
	if base != dst {
		fc.emitC(bytecode.MOVE, dst, base, 0, rng)
	}
	fc.reg.popTo(mark)
	return nil
}

func (fc *funcComp) compileIntrinsicCall(e *ast.CallExpr, dst uint8, rng token.Range) error {
	mark := fc.reg.mark()
	base := fc.reg.reserve(1 + len(e.Args))
	for i, a := range e.Args {
		if err := fc.compileExpr(a, base+1+uint8(i)); err != nil {
			return err
		}
	}
	fc.emitC(bytecode.CALLINTR, base, uint8(e.IntrinsicID), uint8(len(e.Args)), rng)
	if base != dst {
		fc.emitC(bytecode.MOVE, dst, base, 0, rng)
	}
	fc.reg.popTo(mark)
	return nil
}

func (fc *funcComp) compileClosureCall(e *ast.CallExpr, dst uint8, rng token.Range) error {
	mark := fc.reg.mark()
	base := fc.reg.reserve(1 + len(e.Args))
	if err := fc.compileExpr(e.Callee, base); err != nil {
		return err
	}
	for i, a := range e.Args {
		if err := fc.compileExpr(a, base+1+uint8(i)); err != nil {
			return err
		}
	}
	fc.emitC(bytecode.CALLCLOSURE, base, 0, uint8(len(e.Args)), rng)
	if base != dst {
		fc.emitC(bytecode.MOVE, dst, base, 0, rng)
	}
	fc.reg.popTo(mark)
	return nil
}

// compileGenericCall implements spec.md §4.2's simplification for generics:
// rather than true per-instantiation monomorphization, the template body is
// compiled exactly once per (name, type-args) combination and cached via
// Runtime.EnsureGenericInstantiation, then called like any other direct
// call. See DESIGN.md (lang/compiler, "Generic instantiation is cached per
// (name, typeArgs)").
func (fc *funcComp) compileGenericCall(e *ast.CallExpr, dst uint8, rng token.Range) error {
	ident, ok := e.Callee.(*ast.Ident)
	if !ok {
		return compileErrorf(rng, "compiler: CallGeneric callee must be an identifier")
	}
	template, ok := fc.c.generics[ident.Name]
	if !ok {
		return compileErrorf(rng, "compiler: undeclared generic function %q", ident.Name)
	}
	var instErr error
	inst, err := fc.c.rt.EnsureGenericInstantiation(ident.Name, e.TypeArgs, func() runtime.GenericInstantiation {
		idx := len(fc.c.mod.Functions)
		fc.c.mod.Functions = append(fc.c.mod.Functions, &bytecode.CompiledFunction{})
		child := newFuncComp(fc.c, nil)
		if err := child.compileFunc(template); err != nil {
			instErr = err
			return runtime.GenericInstantiation{}
		}
		*fc.c.mod.Functions[idx] = *child.finish(template)
		return runtime.GenericInstantiation{Local: true, LocalIdx: uint32(idx)}
	})
	if err != nil {
		return compileErrorf(rng, "%s", err)
	}
	if instErr != nil {
		return instErr
	}
	if !inst.Local {
		return fc.compileExternalCall(inst.External, e.Args, dst, rng)
	}
	mark := fc.reg.mark()
	base := fc.reg.reserve(1 + len(e.Args))
	for i, a := range e.Args {
		if err := fc.compileExpr(a, base+1+uint8(i)); err != nil {
			return err
		}
	}
	fc.emitC(bytecode.CALL, base, uint8(inst.LocalIdx), uint8(len(e.Args)), rng)
	if base != dst {
		fc.emitC(bytecode.MOVE, dst, base, 0, rng)
	}
	fc.reg.popTo(mark)
	return nil
}

func (fc *funcComp) compileSumVariantCall(e *ast.CallExpr, dst uint8, rng token.Range) error {
	fc.emitBx(bytecode.NEWSUM, dst, fc.c.internType(e.SumType), rng)
	mark := fc.reg.mark()
	payload := fc.reg.push()
	if e.HasPayload && len(e.Args) == 1 {
		if err := fc.compileExpr(e.Args[0], payload); err != nil {
			return err
		}
	} else {
		fc.emitC(bytecode.LOADNIL, payload, 0, 0, rng)
	}
	fc.emitC(bytecode.SUMINIT, dst, uint8(e.VariantTag), payload, rng)
	fc.reg.popTo(mark)
	return nil
}

// structFieldIndex returns a struct type's field index for name, or -1.
func (fc *funcComp) structFieldIndex(structType runtime.TypeID, name string) int {
	def := fc.c.rt.GetType(structType).Struct
	if def == nil {
		return -1
	}
	return def.FieldIndex(name)
}

func (fc *funcComp) compileFieldRead(e *ast.FieldExpr, dst uint8, rng token.Range) error {
	structType := e.Target.Type()
	def := fc.c.rt.GetType(structType)
	idx := fc.structFieldIndex(structType, e.Field)
	if idx < 0 {
		return compileErrorf(rng, "compiler: unknown field %q", e.Field)
	}
	fieldType := def.Struct.Fields[idx].Type
	ref := fc.c.internField(structType, idx, fieldType)
	mark := fc.reg.mark()
	obj := fc.reg.push()
	if err := fc.compileExpr(e.Target, obj); err != nil {
		return err
	}
	if def.Struct.ValueType {
		fc.emitC(bytecode.STACK_FIELDGET, dst, uint8(ref), obj, rng)
	} else {
		fc.emitC(bytecode.GETFIELD, dst, uint8(ref), obj, rng)
	}
	fc.reg.popTo(mark)
	return nil
}

func (fc *funcComp) compileIndexRead(e *ast.IndexExpr, dst uint8, rng token.Range) error {
	targetType := e.Target.Type()
	def := fc.c.rt.GetType(targetType)

	switch def.Kind {
	case runtime.KindTuple:
		v, ok := tryFold(fc.c.rt, e.Index)
		if !ok {
			return compileErrorf(rng, "compiler: tuple index must be a constant integer")
		}
		idx := int(v.Int())
		if idx < 0 || idx >= len(def.Tuple.Elements) {
			return compileErrorf(rng, "compiler: tuple index %d out of bounds", idx)
		}
		ref := fc.c.internField(targetType, idx, def.Tuple.Elements[idx])
		mark := fc.reg.mark()
		obj := fc.reg.push()
		if err := fc.compileExpr(e.Target, obj); err != nil {
			return err
		}
		fc.emitC(bytecode.STACK_FIELDGET, dst, uint8(ref), obj, rng)
		fc.reg.popTo(mark)
		return nil

	case runtime.KindFixedArray:
		mark := fc.reg.mark()
		obj := fc.reg.push()
		if err := fc.compileExpr(e.Target, obj); err != nil {
			return err
		}
		idxReg := fc.reg.push()
		if err := fc.compileExpr(e.Index, idxReg); err != nil {
			return err
		}
		fc.emitC(bytecode.STACK_INDEXGET, dst, obj, idxReg, rng)
		fc.reg.popTo(mark)
		return nil

	case runtime.KindArray:
		mark := fc.reg.mark()
		obj := fc.reg.push()
		if err := fc.compileExpr(e.Target, obj); err != nil {
			return err
		}
		idxReg := fc.reg.push()
		if err := fc.compileExpr(e.Index, idxReg); err != nil {
			return err
		}
		fc.emitC(bytecode.GETARRAY, dst, obj, idxReg, rng)
		fc.reg.popTo(mark)
		return nil

	case runtime.KindMap:
		mark := fc.reg.mark()
		obj := fc.reg.push()
		if err := fc.compileExpr(e.Target, obj); err != nil {
			return err
		}
		keyReg := fc.reg.push()
		if err := fc.compileExpr(e.Index, keyReg); err != nil {
			return err
		}
		fc.emitC(bytecode.MAPGET, dst, obj, keyReg, rng)
		fc.reg.popTo(mark)
		return nil
	}
	return compileErrorf(rng, "compiler: cannot index type kind %v", def.Kind)
}

func (fc *funcComp) compileStructLit(e *ast.StructLit, dst uint8, rng token.Range) error {
	def := fc.c.rt.GetType(e.StructType)
	if def.Struct.ValueType {
		fc.emitBx(bytecode.STACK_ALLOC, dst, fc.c.internType(e.StructType), rng)
	} else {
		fc.emitBx(bytecode.NEWSTRUCT, dst, fc.c.internType(e.StructType), rng)
	}
	mark := fc.reg.mark()
	tmp := fc.reg.push()
	for _, f := range e.Fields {
		idx := fc.structFieldIndex(e.StructType, f.Name)
		if idx < 0 {
			return compileErrorf(rng, "compiler: unknown field %q", f.Name)
		}
		if err := fc.compileExpr(f.Value, tmp); err != nil {
			return err
		}
		ref := fc.c.internField(e.StructType, idx, def.Struct.Fields[idx].Type)
		if def.Struct.ValueType {
			fc.emitC(bytecode.STACK_FIELDSET, dst, uint8(ref), tmp, rng)
		} else {
			fc.emitC(bytecode.SETFIELD, dst, uint8(ref), tmp, rng)
		}
	}
	fc.reg.popTo(mark)
	return nil
}

func (fc *funcComp) compileMapLit(e *ast.MapLit, dst uint8, rng token.Range) error {
	fc.emitBx(bytecode.NEWMAP, dst, fc.c.internType(e.Type()), rng)
	mark := fc.reg.mark()
	keyReg := fc.reg.push()
	valReg := fc.reg.push()
	for _, ent := range e.Entries {
		if err := fc.compileExpr(ent.Key, keyReg); err != nil {
			return err
		}
		if err := fc.compileExpr(ent.Value, valReg); err != nil {
			return err
		}
		fc.emitC(bytecode.MAPSET, dst, keyReg, valReg, rng)
	}
	fc.reg.popTo(mark)
	return nil
}

// compileArrayLit allocates an empty dynamic array and appends each element
// via the ArrayPush intrinsic: NEWARRAY only ever allocates a nil-backed
// array (see lang/vm/dispatch.go), and SETARRAY requires an already-sized
// backing store, so in-place indexed writes cannot build a literal.
func (fc *funcComp) compileArrayLit(e *ast.ArrayLit, dst uint8, rng token.Range) error {
	fc.emitBx(bytecode.NEWARRAY, dst, fc.c.internType(e.Type()), rng)
	mark := fc.reg.mark()
	tmp := fc.reg.push()
	for _, el := range e.Elems {
		if err := fc.compileExpr(el, tmp); err != nil {
			return err
		}
		fc.emitIntrinsicVoid(intrinsic.ArrayPush, []uint8{dst, tmp}, rng)
	}
	fc.reg.popTo(mark)
	return nil
}

// compileFixedArrayLit builds a fixed-size array, always a value type, via
// the same frame-stack mechanism used for value-type structs and tuples.
func (fc *funcComp) compileFixedArrayLit(e *ast.FixedArrayLit, dst uint8, rng token.Range) error {
	fc.emitBx(bytecode.STACK_ALLOC, dst, fc.c.internType(e.Type()), rng)
	mark := fc.reg.mark()
	idxReg := fc.reg.push()
	valReg := fc.reg.push()
	for i, el := range e.Elems {
		fc.emitAsBx(bytecode.LOADI, idxReg, int32(i), rng)
		if err := fc.compileExpr(el, valReg); err != nil {
			return err
		}
		fc.emitC(bytecode.STACK_INDEXSET, dst, idxReg, valReg, rng)
	}
	fc.reg.popTo(mark)
	return nil
}

// compileLambdaExpr compiles a nested function body into its own funcComp
// (chained via parent so resolveUpvalue can walk outward), appends it to the
// module's function table, and emits a CLOSURE referencing it. Captures are
// discovered lazily as the nested body's Ident lookups fall through to
// resolveUpvalue, rather than trusting e.Captures — consistent with this
// compiler's own-scope-resolution design (see compiler.go's package doc).
func (fc *funcComp) compileLambdaExpr(e *ast.LambdaExpr, dst uint8, rng token.Range) error {
	child := newFuncComp(fc.c, fc)
	for _, p := range e.Params {
		child.declareLocal(p.Name)
	}
	if err := child.compileBlock(e.Body); err != nil {
		return err
	}
	fn := child.finish(&ast.FuncDecl{Name: "<lambda>", Params: e.Params})
	idx := len(fc.c.mod.Functions)
	fc.c.mod.Functions = append(fc.c.mod.Functions, fn)
	fc.emitBx(bytecode.CLOSURE, dst, idx, rng)
	return nil
}
