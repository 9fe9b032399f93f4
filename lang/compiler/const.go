package compiler

import (
	"github.com/jd28/smalls/lang/ast"
	"github.com/jd28/smalls/lang/runtime"
)

// Eval is the AST constant evaluator (spec.md §4.5): a tree-walking folder
// that reduces a constant-foldable expression to a runtime.Value without
// emitting any bytecode, delegating every operator to the same
// Runtime.ExecuteBinaryOp/ExecuteUnaryOp the VM itself uses so folding can
// never disagree with execution (the "folding soundness" testable property).
// It reports ok=false for any expression it cannot reduce — a non-literal
// reference, a call, or an operator outside the primitive set — rather than
// guessing.
func Eval(rt *runtime.Runtime, e ast.Expr) (runtime.Value, bool) {
	switch e := e.(type) {
	case *ast.IntLit:
		return runtime.IntValue(e.Value), true
	case *ast.FloatLit:
		return runtime.FloatValue(e.Value), true
	case *ast.BoolLit:
		return runtime.BoolValue(e.Value), true
	case *ast.StringLit:
		return runtime.HeapValue(runtime.StringType, rt.Heap.AllocString(e.Value)), true
	case *ast.NilLit:
		return runtime.Nil, true
	case *ast.BinaryExpr:
		if e.ScriptOp != "" {
			return runtime.Value{}, false // operator-overloaded: only resolvable at call time
		}
		x, ok := Eval(rt, e.Left)
		if !ok {
			return runtime.Value{}, false
		}
		y, ok := Eval(rt, e.Right)
		if !ok {
			return runtime.Value{}, false
		}
		v, err := rt.ExecuteBinaryOp(e.Op, x, y)
		if err != nil {
			return runtime.Value{}, false
		}
		return v, true
	case *ast.LogicalExpr:
		x, ok := Eval(rt, e.Left)
		if !ok {
			return runtime.Value{}, false
		}
		if e.Op == "&&" && !x.Bool() {
			return runtime.BoolValue(false), true
		}
		if e.Op == "||" && x.Bool() {
			return runtime.BoolValue(true), true
		}
		y, ok := Eval(rt, e.Right)
		if !ok {
			return runtime.Value{}, false
		}
		return runtime.BoolValue(y.Bool()), true
	case *ast.UnaryExpr:
		if e.ScriptOp != "" {
			return runtime.Value{}, false
		}
		x, ok := Eval(rt, e.Operand)
		if !ok {
			return runtime.Value{}, false
		}
		v, err := rt.ExecuteUnaryOp(e.Op, x)
		if err != nil {
			return runtime.Value{}, false
		}
		return v, true
	case *ast.ConditionalExpr:
		cond, ok := Eval(rt, e.Cond)
		if !ok {
			return runtime.Value{}, false
		}
		if cond.Bool() {
			return Eval(rt, e.Then)
		}
		return Eval(rt, e.Else)
	case *ast.CastExpr:
		x, ok := Eval(rt, e.Operand)
		if !ok {
			return runtime.Value{}, false
		}
		return foldCast(rt, x, e.TargetType), true
	default:
		return runtime.Value{}, false
	}
}

func foldCast(rt *runtime.Runtime, v runtime.Value, target runtime.TypeID) runtime.Value {
	srcKind, dstKind := rt.GetType(v.Type).Kind, rt.GetType(target).Kind
	switch {
	case srcKind == runtime.KindInt && dstKind == runtime.KindFloat:
		return runtime.FloatValue(float32(v.Int()))
	case srcKind == runtime.KindFloat && dstKind == runtime.KindInt:
		return runtime.IntValue(int32(v.Float()))
	default:
		v.Type = target
		return v
	}
}

// tryFold attempts to fold e via Eval, returning ok=false (never an error)
// when e is not statically foldable so the caller falls back to ordinary
// code generation. Eval only ever descends into literal/operator/cast nodes,
// none of which can have a side effect, so it is safe to attempt
// unconditionally rather than gating on the resolver's IsConst flag — a
// non-foldable subexpression (an Ident, a call) simply reports ok=false at
// the leaf and the whole attempt fails closed.
func tryFold(rt *runtime.Runtime, e ast.Expr) (runtime.Value, bool) {
	return Eval(rt, e)
}
