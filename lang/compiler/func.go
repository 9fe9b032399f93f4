package compiler

import (
	"github.com/jd28/smalls/lang/ast"
	"github.com/jd28/smalls/lang/bytecode"
	"github.com/jd28/smalls/lang/runtime"
	"github.com/jd28/smalls/lang/token"
)

// regAlloc is a Lua-style register window: locals occupy permanent slots at
// the bottom, pushed once and never reclaimed until the enclosing scope
// exits; expression temporaries are pushed immediately above the current
// high-water mark and popped in LIFO order as each subexpression finishes.
type regAlloc struct {
	top uint8
	max uint8
}

func (r *regAlloc) push() uint8 {
	reg := r.top
	if int(r.top) >= bytecode.MaxRegister {
		panic("compiler: register window exhausted")
	}
	r.top++
	if r.top > r.max {
		r.max = r.top
	}
	return reg
}

// reserve bumps top by n and returns the first reserved register, used for
// call sites where arguments must land in contiguous registers (vm/calls.go
// gatherArgs reads A+1..A+C).
func (r *regAlloc) reserve(n int) uint8 {
	base := r.top
	for i := 0; i < n; i++ {
		r.push()
	}
	return base
}

func (r *regAlloc) mark() uint8 { return r.top }

func (r *regAlloc) popTo(mark uint8) { r.top = mark }

// scope is one lexical block's name->register bindings.
type scope struct {
	names map[string]uint8
	mark  uint8
}

// loopCtx tracks the patch lists for break/continue jumps emitted inside one
// enclosing loop, resolved once the loop's body and post-condition are fully
// compiled.
type loopCtx struct {
	breaks    []int
	continues []int
	contTarget int // not read: closeLoop receives the continue target as its argument
}

// funcComp is the per-function compilation state: its emitted instruction
// stream, register allocator, lexical scope stack, and — for a nested
// lambda — a pointer to the enclosing function's funcComp so captures can
// walk outward (spec.md §4.2 closures/upvalues).
type funcComp struct {
	c      *Compiler
	parent *funcComp

	fn   *bytecode.CompiledFunction
	reg  regAlloc
	code []bytecode.Instruction
	locs []token.Range

	scopes []*scope
	loops  []*loopCtx

	// upvalues maps a captured name to its index in fn.Upvalues, so repeated
	// references to the same captured variable reuse one descriptor.
	upvalues    map[string]int
	upvalueDesc []bytecode.UpvalueDesc
}

func newFuncComp(c *Compiler, parent *funcComp) *funcComp {
	fc := &funcComp{
		c:        c,
		parent:   parent,
		fn:       &bytecode.CompiledFunction{},
		upvalues: make(map[string]int),
	}
	fc.pushScope()
	return fc
}

func (fc *funcComp) pushScope() {
	fc.scopes = append(fc.scopes, &scope{names: make(map[string]uint8), mark: fc.reg.mark()})
}

func (fc *funcComp) popScope() {
	top := fc.scopes[len(fc.scopes)-1]
	fc.scopes = fc.scopes[:len(fc.scopes)-1]
	fc.reg.popTo(top.mark)
}

// declareLocal binds name to a freshly pushed permanent register in the
// current scope, shadowing any outer binding of the same name.
func (fc *funcComp) declareLocal(name string) uint8 {
	r := fc.reg.push()
	fc.scopes[len(fc.scopes)-1].names[name] = r
	return r
}

// lookupLocal searches this function's own scope stack, innermost first.
func (fc *funcComp) lookupLocal(name string) (uint8, bool) {
	for i := len(fc.scopes) - 1; i >= 0; i-- {
		if r, ok := fc.scopes[i].names[name]; ok {
			return r, true
		}
	}
	return 0, false
}

// resolveUpvalue finds name in an enclosing function's locals or its own
// upvalue list, threading a chain of UpvalueDesc through every intervening
// function so the innermost closure can reach an arbitrarily distant
// enclosing local (spec.md §4.2 "captures").
func (fc *funcComp) resolveUpvalue(name string) (int, bool) {
	if fc.parent == nil {
		return 0, false
	}
	if idx, ok := fc.upvalues[name]; ok {
		return idx, true
	}
	if r, ok := fc.parent.lookupLocal(name); ok {
		idx := len(fc.upvalueDesc)
		fc.upvalueDesc = append(fc.upvalueDesc, bytecode.UpvalueDesc{FromParentLocal: true, Index: r})
		fc.upvalues[name] = idx
		return idx, true
	}
	if parentIdx, ok := fc.parent.resolveUpvalue(name); ok {
		idx := len(fc.upvalueDesc)
		fc.upvalueDesc = append(fc.upvalueDesc, bytecode.UpvalueDesc{FromParentLocal: false, Index: uint8(parentIdx)})
		fc.upvalues[name] = idx
		return idx, true
	}
	return 0, false
}

func (fc *funcComp) emitC(op bytecode.Opcode, a, b, c uint8, rng token.Range) int {
	fc.code = append(fc.code, bytecode.EncodeABC(op, a, b, c))
	fc.locs = append(fc.locs, rng)
	return len(fc.code) - 1
}

func (fc *funcComp) emitBx(op bytecode.Opcode, a uint8, bx int, rng token.Range) int {
	fc.code = append(fc.code, bytecode.EncodeABx(op, a, uint16(bx)))
	fc.locs = append(fc.locs, rng)
	return len(fc.code) - 1
}

func (fc *funcComp) emitAsBx(op bytecode.Opcode, a uint8, sbx int32, rng token.Range) int {
	fc.code = append(fc.code, bytecode.EncodeAsBx(op, a, sbx))
	fc.locs = append(fc.locs, rng)
	return len(fc.code) - 1
}

func (fc *funcComp) emitJump(rng token.Range) int {
	fc.code = append(fc.code, bytecode.EncodeJump(bytecode.JMP, 0))
	fc.locs = append(fc.locs, rng)
	return len(fc.code) - 1
}

// pc returns the index the next emitted instruction will occupy.
func (fc *funcComp) pc() int { return len(fc.code) }

// patchJumpHere rewrites the jump instruction at pc to target the next
// instruction to be emitted.
func (fc *funcComp) patchJumpHere(pc int) { fc.patchJumpTo(pc, fc.pc()) }

func (fc *funcComp) patchJumpTo(pc, target int) {
	ins := fc.code[pc]
	offset := int32(target - pc - 1)
	switch ins.Op() {
	case bytecode.JMP:
		fc.code[pc] = bytecode.EncodeJump(bytecode.JMP, offset)
	case bytecode.JMPT, bytecode.JMPF:
		fc.code[pc] = bytecode.EncodeAsBx(ins.Op(), ins.A(), offset)
	}
}

func (fc *funcComp) finish(fd *ast.FuncDecl) *bytecode.CompiledFunction {
	fc.fn.RegisterCount = int(fc.reg.max)
	fc.fn.Code = fc.code
	fc.fn.Locations = fc.locs
	fc.fn.Upvalues = fc.upvalueDesc
	if fd != nil {
		fc.fn.Name = fd.Name
		fc.fn.ParamCount = len(fd.Params)
		fc.fn.ReturnType = fd.ReturnType
		fc.fn.FunctionType = fd.FunctionType
	}
	return fc.fn
}

// compileFunc lowers a top-level (or generic-instantiated) function
// declaration's parameters and body into fc.
func (fc *funcComp) compileFunc(fd *ast.FuncDecl) error {
	for _, p := range fd.Params {
		fc.declareLocal(p.Name)
	}
	return fc.compileBlock(fd.Body)
}

// typeKind is a small convenience wrapper used throughout expr.go/stmt.go.
func (fc *funcComp) typeKind(t runtime.TypeID) runtime.Kind {
	return fc.c.rt.GetType(t).Kind
}
