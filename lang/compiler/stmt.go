package compiler

import (
	"github.com/jd28/smalls/lang/ast"
	"github.com/jd28/smalls/lang/bytecode"
	"github.com/jd28/smalls/lang/intrinsic"
	"github.com/jd28/smalls/lang/runtime"
	"github.com/jd28/smalls/lang/token"
)

// compileBlock compiles b's statements in order, stopping early at the
// first block-ending statement (return/break/continue) per spec.md §4.2's
// dead-code elimination — any statement after that point is unreachable.
func (fc *funcComp) compileBlock(b *ast.Block) error {
	fc.pushScope()
	for _, s := range b.Stmts {
		if err := fc.compileStmt(s); err != nil {
			fc.popScope()
			return err
		}
		if s.BlockEnding() {
			break
		}
	}
	fc.popScope()
	return nil
}

func (fc *funcComp) compileStmt(s ast.Stmt) error {
	rng := s.Span()
	switch s := s.(type) {
	case *ast.ExprStmt:
		mark := fc.reg.mark()
		r := fc.reg.push()
		err := fc.compileExpr(s.X, r)
		fc.reg.popTo(mark)
		return err

	case *ast.VarDecl:
		return fc.compileLocalDecls(s.Names, rng)
	case *ast.ConstDecl:
		return fc.compileLocalDecls(s.Names, rng)

	case *ast.AssignStmt:
		return fc.compileAssignStmt(s, rng)

	case *ast.IfStmt:
		return fc.compileIfStmt(s, rng)
	case *ast.WhileStmt:
		return fc.compileWhileStmt(s, rng)
	case *ast.ForStmt:
		return fc.compileForStmt(s, rng)
	case *ast.ForEachStmt:
		return fc.compileForEachStmt(s, rng)
	case *ast.SwitchStmt:
		return fc.compileSwitchStmt(s, rng)

	case *ast.ReturnStmt:
		if s.Value == nil {
			fc.emitC(bytecode.RETVOID, 0, 0, 0, rng)
			return nil
		}
		mark := fc.reg.mark()
		r := fc.reg.push()
		if err := fc.compileExpr(s.Value, r); err != nil {
			return err
		}
		fc.emitC(bytecode.RET, r, 0, 0, rng)
		fc.reg.popTo(mark)
		return nil

	case *ast.BreakStmt:
		if len(fc.loops) == 0 {
			return compileErrorf(rng, "compiler: break outside a loop")
		}
		lc := fc.loops[len(fc.loops)-1]
		lc.breaks = append(lc.breaks, fc.emitJump(rng))
		return nil

	case *ast.ContinueStmt:
		if len(fc.loops) == 0 {
			return compileErrorf(rng, "compiler: continue outside a loop")
		}
		lc := fc.loops[len(fc.loops)-1]
		lc.continues = append(lc.continues, fc.emitJump(rng))
		return nil
	}
	return compileErrorf(rng, "compiler: unhandled statement %T", s)
}

func (fc *funcComp) compileLocalDecls(names []ast.VarDeclName, rng token.Range) error {
	for _, n := range names {
		r := fc.declareLocal(n.Name)
		if n.Init != nil {
			if err := fc.compileExpr(n.Init, r); err != nil {
				return err
			}
		} else {
			fc.emitC(bytecode.LOADNIL, r, 0, 0, rng)
		}
	}
	return nil
}

// compileAssignStore writes valueReg into target's storage location: a
// local register (plain MOVE), an upvalue/global slot, or an aggregate
// field/index/key, dispatching on the target's static type exactly as
// compileIndexRead/compileFieldRead do for reads.
func (fc *funcComp) compileAssignStore(target ast.Expr, valueReg uint8, rng token.Range) error {
	switch t := target.(type) {
	case *ast.Ident:
		if r, ok := fc.lookupLocal(t.Name); ok {
			if r != valueReg {
				fc.emitC(bytecode.MOVE, r, valueReg, 0, rng)
			}
			return nil
		}
		if idx, ok := fc.resolveUpvalue(t.Name); ok {
			fc.emitC(bytecode.SETUPVAL, valueReg, uint8(idx), 0, rng)
			return nil
		}
		if slot, ok := fc.c.globalSlots[t.Name]; ok {
			fc.emitBx(bytecode.SETGLOBAL, valueReg, slot, rng)
			return nil
		}
		return compileErrorf(rng, "undefined identifier %q", t.Name)

	case *ast.FieldExpr:
		structType := t.Target.Type()
		def := fc.c.rt.GetType(structType)
		idx := fc.structFieldIndex(structType, t.Field)
		if idx < 0 {
			return compileErrorf(rng, "compiler: unknown field %q", t.Field)
		}
		ref := fc.c.internField(structType, idx, def.Struct.Fields[idx].Type)
		mark := fc.reg.mark()
		obj := fc.reg.push()
		if err := fc.compileExpr(t.Target, obj); err != nil {
			return err
		}
		if def.Struct.ValueType {
			fc.emitC(bytecode.STACK_FIELDSET, obj, uint8(ref), valueReg, rng)
		} else {
			fc.emitC(bytecode.SETFIELD, obj, uint8(ref), valueReg, rng)
		}
		fc.reg.popTo(mark)
		return nil

	case *ast.IndexExpr:
		targetType := t.Target.Type()
		def := fc.c.rt.GetType(targetType)
		mark := fc.reg.mark()
		obj := fc.reg.push()
		if err := fc.compileExpr(t.Target, obj); err != nil {
			return err
		}
		switch def.Kind {
		case runtime.KindFixedArray:
			idxReg := fc.reg.push()
			if err := fc.compileExpr(t.Index, idxReg); err != nil {
				return err
			}
			fc.emitC(bytecode.STACK_INDEXSET, obj, idxReg, valueReg, rng)
		case runtime.KindArray:
			idxReg := fc.reg.push()
			if err := fc.compileExpr(t.Index, idxReg); err != nil {
				return err
			}
			fc.emitC(bytecode.SETARRAY, obj, idxReg, valueReg, rng)
		case runtime.KindMap:
			keyReg := fc.reg.push()
			if err := fc.compileExpr(t.Index, keyReg); err != nil {
				return err
			}
			fc.emitC(bytecode.MAPSET, obj, keyReg, valueReg, rng)
		default:
			fc.reg.popTo(mark)
			return compileErrorf(rng, "compiler: cannot assign into type kind %v", def.Kind)
		}
		fc.reg.popTo(mark)
		return nil
	}
	return compileErrorf(rng, "compiler: unsupported assignment target %T", target)
}

func (fc *funcComp) compileAssignStmt(s *ast.AssignStmt, rng token.Range) error {
	if s.Op == "" {
		if ident, ok := s.Target.(*ast.Ident); ok {
			if r, ok := fc.lookupLocal(ident.Name); ok {
				return fc.compileExpr(s.Value, r)
			}
		}
		mark := fc.reg.mark()
		tmp := fc.reg.push()
		if err := fc.compileExpr(s.Value, tmp); err != nil {
			return err
		}
		err := fc.compileAssignStore(s.Target, tmp, rng)
		fc.reg.popTo(mark)
		return err
	}

	mark := fc.reg.mark()
	old := fc.reg.push()
	if err := fc.compileExpr(s.Target, old); err != nil {
		return err
	}
	rhs := fc.reg.push()
	if err := fc.compileExpr(s.Value, rhs); err != nil {
		return err
	}
	if err := fc.emitBinary(s.Op, old, rhs, old, rng); err != nil {
		return err
	}
	err := fc.compileAssignStore(s.Target, old, rng)
	fc.reg.popTo(mark)
	return err
}

func (fc *funcComp) compileIfStmt(s *ast.IfStmt, rng token.Range) error {
	mark := fc.reg.mark()
	cond := fc.reg.push()
	if err := fc.compileExpr(s.Cond, cond); err != nil {
		return err
	}
	toElse := fc.emitAsBx(bytecode.JMPF, cond, 0, rng)
	fc.reg.popTo(mark)
	if err := fc.compileBlock(s.Then); err != nil {
		return err
	}
	if s.Else == nil {
		fc.patchJumpHere(toElse)
		return nil
	}
	toEnd := fc.emitJump(rng)
	fc.patchJumpHere(toElse)
	if err := fc.compileBlock(s.Else); err != nil {
		return err
	}
	fc.patchJumpHere(toEnd)
	return nil
}

// closeLoop patches every break (-> exit, the current pc) and continue
// (-> contTarget) jump recorded against the innermost loop, then pops it.
func (fc *funcComp) closeLoop(contTarget int) {
	lc := fc.loops[len(fc.loops)-1]
	fc.loops = fc.loops[:len(fc.loops)-1]
	for _, j := range lc.breaks {
		fc.patchJumpHere(j)
	}
	for _, j := range lc.continues {
		fc.patchJumpTo(j, contTarget)
	}
}

func (fc *funcComp) compileWhileStmt(s *ast.WhileStmt, rng token.Range) error {
	loopStart := fc.pc()
	mark := fc.reg.mark()
	cond := fc.reg.push()
	if err := fc.compileExpr(s.Cond, cond); err != nil {
		return err
	}
	exitJump := fc.emitAsBx(bytecode.JMPF, cond, 0, rng)
	fc.reg.popTo(mark)

	fc.loops = append(fc.loops, &loopCtx{})
	if err := fc.compileBlock(s.Body); err != nil {
		return err
	}
	back := fc.emitJump(rng)
	fc.patchJumpTo(back, loopStart)
	fc.patchJumpHere(exitJump)
	fc.closeLoop(loopStart)
	return nil
}

func (fc *funcComp) compileForStmt(s *ast.ForStmt, rng token.Range) error {
	fc.pushScope()
	if s.Init != nil {
		if err := fc.compileStmt(s.Init); err != nil {
			fc.popScope()
			return err
		}
	}
	loopStart := fc.pc()
	exitJump := -1
	if s.Cond != nil {
		mark := fc.reg.mark()
		cond := fc.reg.push()
		if err := fc.compileExpr(s.Cond, cond); err != nil {
			fc.popScope()
			return err
		}
		exitJump = fc.emitAsBx(bytecode.JMPF, cond, 0, rng)
		fc.reg.popTo(mark)
	}

	fc.loops = append(fc.loops, &loopCtx{})
	if err := fc.compileBlock(s.Body); err != nil {
		fc.popScope()
		return err
	}
	// Close the iteration's open upvalues before the post statement (continue
	// lands here too), so closures built in this iteration keep this
	// iteration's values.
	postTarget := fc.emitC(bytecode.CLOSEUPVALS, 0, 0, 0, rng)
	if s.Post != nil {
		if err := fc.compileStmt(s.Post); err != nil {
			fc.popScope()
			return err
		}
	}
	back := fc.emitJump(rng)
	fc.patchJumpTo(back, loopStart)
	if exitJump >= 0 {
		fc.patchJumpHere(exitJump)
	}
	fc.closeLoop(postTarget)
	fc.popScope()
	return nil
}

// compileForEachStmt dispatches on the collection's static type: array
// iteration walks an index 0..ArrayLen-1 fetching each element with
// GETARRAY; map iteration drives the MapIterBegin/MapIterNext/MapIterEnd
// intrinsic triple (spec.md §4.2/§4.7), since maps have no addressable
// index space to loop over directly.
func (fc *funcComp) compileForEachStmt(s *ast.ForEachStmt, rng token.Range) error {
	collKind := fc.c.rt.GetType(s.Collection.Type()).Kind
	if collKind == runtime.KindMap {
		return fc.compileForEachMap(s, rng)
	}
	return fc.compileForEachArray(s, rng)
}

func (fc *funcComp) compileForEachArray(s *ast.ForEachStmt, rng token.Range) error {
	fc.pushScope()
	collReg := fc.reg.push()
	if err := fc.compileExpr(s.Collection, collReg); err != nil {
		fc.popScope()
		return err
	}
	idxReg := fc.reg.push()
	fc.emitAsBx(bytecode.LOADI, idxReg, 0, rng)
	lenReg := fc.reg.push()
	fc.emitIntrinsicCall(intrinsic.ArrayLen, []uint8{collReg}, lenReg, rng)

	loopStart := fc.pc()
	condMark := fc.reg.mark()
	cond := fc.reg.push()
	fc.emitC(bytecode.LT, cond, idxReg, lenReg, rng)
	exitJump := fc.emitAsBx(bytecode.JMPF, cond, 0, rng)
	fc.reg.popTo(condMark)

	fc.pushScope()
	if s.KeyName != "" {
		keyReg := fc.declareLocal(s.KeyName)
		fc.emitC(bytecode.MOVE, keyReg, idxReg, 0, rng)
	}
	valReg := fc.declareLocal(s.ValueName)
	fc.emitC(bytecode.GETARRAY, valReg, collReg, idxReg, rng)

	fc.loops = append(fc.loops, &loopCtx{})
	if err := fc.compileBlock(s.Body); err != nil {
		fc.popScope()
		fc.popScope()
		return err
	}
	postTarget := fc.pc()
	fc.popScope()

	oneMark := fc.reg.mark()
	one := fc.reg.push()
	fc.emitAsBx(bytecode.LOADI, one, 1, rng)
	fc.emitC(bytecode.ADD, idxReg, idxReg, one, rng)
	fc.reg.popTo(oneMark)

	back := fc.emitJump(rng)
	fc.patchJumpTo(back, loopStart)
	fc.patchJumpHere(exitJump)
	fc.closeLoop(postTarget)
	fc.popScope()
	return nil
}

func (fc *funcComp) compileForEachMap(s *ast.ForEachStmt, rng token.Range) error {
	fc.pushScope()
	collReg := fc.reg.push()
	if err := fc.compileExpr(s.Collection, collReg); err != nil {
		fc.popScope()
		return err
	}
	// MapIterBegin/MapIterNext's "iterator" is a plain 0-based slot index
	// into the map's (stable-ordered) key/value arrays; this loop owns
	// incrementing it, MapIterNext only ever reads it (vm/intrinsics.go).
	idxReg := fc.reg.push()
	fc.emitIntrinsicCall(intrinsic.MapIterBegin, []uint8{collReg}, idxReg, rng)

	loopStart := fc.pc()
	// CALLINTR_R's only multi-result consumer: writes (ok, key, value) into
	// three consecutive registers starting at its args-base.
	tripleMark := fc.reg.mark()
	tripleBase := fc.reg.reserve(3)
	fc.emitC(bytecode.MOVE, tripleBase+1, collReg, 0, rng)
	fc.emitC(bytecode.MOVE, tripleBase+2, idxReg, 0, rng)
	fc.emitC(bytecode.CALLINTR_R, tripleBase, uint8(intrinsic.MapIterNext), 2, rng)
	okReg, keyReg, valReg := tripleBase, tripleBase+1, tripleBase+2
	exitJump := fc.emitAsBx(bytecode.JMPF, okReg, 0, rng)

	fc.pushScope()
	boundKey := fc.declareLocal(s.KeyName)
	fc.emitC(bytecode.MOVE, boundKey, keyReg, 0, rng)
	boundVal := fc.declareLocal(s.ValueName)
	fc.emitC(bytecode.MOVE, boundVal, valReg, 0, rng)
	fc.reg.popTo(tripleMark)

	fc.loops = append(fc.loops, &loopCtx{})
	if err := fc.compileBlock(s.Body); err != nil {
		fc.popScope()
		fc.popScope()
		return err
	}
	postTarget := fc.pc()
	fc.popScope()

	oneMark := fc.reg.mark()
	one := fc.reg.push()
	fc.emitAsBx(bytecode.LOADI, one, 1, rng)
	fc.emitC(bytecode.ADD, idxReg, idxReg, one, rng)
	fc.reg.popTo(oneMark)

	back := fc.emitJump(rng)
	fc.patchJumpTo(back, loopStart)
	fc.patchJumpHere(exitJump)
	fc.closeLoop(postTarget)
	fc.popScope()
	return nil
}

// compileSwitchStmt lowers every spec.md §4.2 switch-dispatch strategy
// (sum-tag pattern match, `is`-type dispatch, value equality) to the same
// test/jump-chain shape: each non-default case computes a bool into a
// register and jumps to its body on JMPT; falling through every test
// reaches the default body (or the switch's end, if there is none).
func (fc *funcComp) compileSwitchStmt(s *ast.SwitchStmt, rng token.Range) error {
	switch s.Kind {
	case ast.SwitchSum:
		return fc.compileSwitchSum(s, rng)
	case ast.SwitchType:
		return fc.compileSwitchType(s, rng)
	default:
		return fc.compileSwitchValue(s, rng)
	}
}

// switchDispatch runs the shared test/jump-chain/body-emission skeleton.
// test(i) must compute non-default case i's match condition and return the
// register holding it (already safe to reference after any temps test
// pushed have been popped, per this package's pop-then-reference pattern
// used throughout expr.go); body(i) compiles case i's body.
func (fc *funcComp) switchDispatch(cases []ast.SwitchCase, rng token.Range, test func(i int) (uint8, error), body func(i int) error) error {
	entries := make([]int, len(cases))
	defaultIdx := -1
	for i, c := range cases {
		if c.Default {
			defaultIdx = i
			continue
		}
		cond, err := test(i)
		if err != nil {
			return err
		}
		entries[i] = fc.emitAsBx(bytecode.JMPT, cond, 0, rng)
	}
	fallJump := fc.emitJump(rng)

	var endJumps []int
	for i, c := range cases {
		if c.Default {
			fc.patchJumpHere(fallJump)
		} else {
			fc.patchJumpHere(entries[i])
		}
		if err := body(i); err != nil {
			return err
		}
		endJumps = append(endJumps, fc.emitJump(rng))
	}
	if defaultIdx < 0 {
		fc.patchJumpHere(fallJump)
	}
	for _, j := range endJumps {
		fc.patchJumpHere(j)
	}
	return nil
}

func (fc *funcComp) compileSwitchSum(s *ast.SwitchStmt, rng token.Range) error {
	fc.pushScope()
	subjReg := fc.reg.push()
	if err := fc.compileExpr(s.Subject, subjReg); err != nil {
		fc.popScope()
		return err
	}
	tagReg := fc.reg.push()
	fc.emitC(bytecode.SUMGETTAG, tagReg, subjReg, 0, rng)

	sumDef := fc.c.rt.GetType(s.Subject.Type()).Sum
	err := fc.switchDispatch(s.Cases, rng,
		func(i int) (uint8, error) {
			c := s.Cases[i]
			variant := sumDef.FindVariant(c.VariantName)
			if variant == nil {
				return 0, compileErrorf(rng, "compiler: unknown sum variant %q", c.VariantName)
			}
			mark := fc.reg.mark()
			want := fc.reg.push()
			fc.emitAsBx(bytecode.LOADI, want, int32(variant.Tag), rng)
			cmp := fc.reg.push()
			fc.emitC(bytecode.EQ, cmp, tagReg, want, rng)
			fc.reg.popTo(mark)
			return cmp, nil
		},
		func(i int) error {
			c := s.Cases[i]
			fc.pushScope()
			if !c.Default && c.BindName != "" {
				payload := fc.declareLocal(c.BindName)
				fc.emitC(bytecode.SUMGETPAYLOAD, payload, subjReg, 0, rng)
			}
			err := fc.compileBlock(c.Body)
			fc.popScope()
			return err
		},
	)
	fc.popScope()
	return err
}

func (fc *funcComp) compileSwitchType(s *ast.SwitchStmt, rng token.Range) error {
	fc.pushScope()
	subjReg := fc.reg.push()
	if err := fc.compileExpr(s.Subject, subjReg); err != nil {
		fc.popScope()
		return err
	}

	err := fc.switchDispatch(s.Cases, rng,
		func(i int) (uint8, error) {
			c := s.Cases[i]
			mark := fc.reg.mark()
			test := fc.reg.push()
			fc.emitC(bytecode.MOVE, test, subjReg, 0, rng)
			fc.emitBx(bytecode.IS, test, fc.c.internType(c.Type), rng)
			fc.reg.popTo(mark)
			return test, nil
		},
		func(i int) error {
			c := s.Cases[i]
			fc.pushScope()
			if !c.Default && c.BindName != "" {
				bound := fc.declareLocal(c.BindName)
				fc.emitC(bytecode.MOVE, bound, subjReg, 0, rng)
				fc.emitBx(bytecode.CAST, bound, fc.c.internType(c.Type), rng)
			}
			err := fc.compileBlock(c.Body)
			fc.popScope()
			return err
		},
	)
	fc.popScope()
	return err
}

func (fc *funcComp) compileSwitchValue(s *ast.SwitchStmt, rng token.Range) error {
	fc.pushScope()
	subjReg := fc.reg.push()
	if err := fc.compileExpr(s.Subject, subjReg); err != nil {
		fc.popScope()
		return err
	}

	err := fc.switchDispatch(s.Cases, rng,
		func(i int) (uint8, error) {
			c := s.Cases[i]
			mark := fc.reg.mark()
			val := fc.reg.push()
			if err := fc.compileExpr(c.Value, val); err != nil {
				return 0, err
			}
			cmp := fc.reg.push()
			fc.emitC(bytecode.EQ, cmp, subjReg, val, rng)
			fc.reg.popTo(mark)
			return cmp, nil
		},
		func(i int) error {
			return fc.compileBlock(s.Cases[i].Body)
		},
	)
	fc.popScope()
	return err
}
