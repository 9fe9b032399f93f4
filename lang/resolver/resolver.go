// Package resolver performs the semantic checks that are more natural to
// express as a second walk over the already-typed tree than to interleave
// with parsing: rejecting assignment to a const binding, rejecting
// break/continue outside a loop, and flagging statements that can never run
// because an earlier return/break/continue already ended their block.
//
// lang/parser resolves every name and type as it parses (see its package
// doc) and stamps the result directly onto the tree — an *ast.Ident's
// IsConst already reports whether it names a const binding, so this pass
// does not rebuild a symbol table of its own; it re-derives the const check
// from that stamped data, and tracks only the one thing the parser's own
// forward-reference passes don't carry cleanly: loop nesting depth at the
// point a break or continue appears, walked fresh over the finished tree.
package resolver

import (
	"fmt"

	"github.com/jd28/smalls/lang/ast"
	"github.com/jd28/smalls/lang/scanner"
	"github.com/jd28/smalls/lang/token"
)

// ResolveProgram walks prog and reports every const reassignment,
// misplaced break/continue, and unreachable statement it finds. The
// returned error, if non-nil, is a scanner.ErrorList.
func ResolveProgram(file *token.File, prog *ast.Program) error {
	r := &resolver{file: file}
	for _, d := range prog.Decls {
		r.decl(d)
	}
	r.errs.Sort()
	return r.errs.Err()
}

type resolver struct {
	file      *token.File
	errs      scanner.ErrorList
	loopDepth int
}

func (r *resolver) errorf(pos token.Pos, format string, args ...any) {
	r.errs.Add(token.PositionOf(r.file, pos), fmt.Sprintf(format, args...))
}

func (r *resolver) decl(d ast.Decl) {
	switch d := d.(type) {
	case *ast.FuncDecl:
		if d.Body == nil {
			return
		}
		saved := r.loopDepth
		r.loopDepth = 0
		r.block(d.Body)
		r.loopDepth = saved
		for _, p := range d.Params {
			r.exprOrNil(p.Default)
		}

	case *ast.VarDecl:
		for _, n := range d.Names {
			r.exprOrNil(n.Init)
		}

	case *ast.ConstDecl:
		for _, n := range d.Names {
			r.exprOrNil(n.Init)
		}

	case *ast.StructDecl, *ast.SumDecl, *ast.NewtypeDecl:
		// no nested statements or expressions to walk

	default:
		panic(fmt.Sprintf("resolver: unexpected decl %T", d))
	}
}

// block walks every statement of b in order, flagging any statement that
// follows one whose BlockEnding is true as unreachable: the parser keeps
// parsing (and keeps BlockTerminated as a plain marker for the compiler's
// dead-code elimination), but it never rejects the source for it, so this
// is the only place that does.
func (r *resolver) block(b *ast.Block) {
	terminated := false
	for _, s := range b.Stmts {
		if terminated {
			r.errorf(s.Span().Start, "unreachable statement")
		}
		r.stmt(s)
		if s.BlockEnding() {
			terminated = true
		}
	}
}

func (r *resolver) stmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.ExprStmt:
		r.expr(s.X)

	case *ast.AssignStmt:
		r.expr(s.Value)
		if ident, ok := s.Target.(*ast.Ident); ok && ident.IsConst() {
			r.errorf(s.Span().Start, "cannot assign to const %q", ident.Name)
		}
		r.expr(s.Target)

	case *ast.IfStmt:
		r.expr(s.Cond)
		r.block(s.Then)
		if s.Else != nil {
			r.block(s.Else)
		}

	case *ast.WhileStmt:
		r.expr(s.Cond)
		r.loopDepth++
		r.block(s.Body)
		r.loopDepth--

	case *ast.ForStmt:
		if s.Init != nil {
			r.stmt(s.Init)
		}
		r.exprOrNil(s.Cond)
		r.loopDepth++
		r.block(s.Body)
		r.loopDepth--
		if s.Post != nil {
			r.stmt(s.Post)
		}

	case *ast.ForEachStmt:
		r.expr(s.Collection)
		r.loopDepth++
		r.block(s.Body)
		r.loopDepth--

	case *ast.SwitchStmt:
		r.expr(s.Subject)
		for _, c := range s.Cases {
			if !c.Default && c.Value != nil {
				r.expr(c.Value)
			}
			r.block(c.Body)
		}

	case *ast.ReturnStmt:
		r.exprOrNil(s.Value)

	case *ast.BreakStmt:
		if r.loopDepth == 0 {
			r.errorf(s.Span().Start, "break outside of a loop")
		}

	case *ast.ContinueStmt:
		if r.loopDepth == 0 {
			r.errorf(s.Span().Start, "continue outside of a loop")
		}

	case *ast.VarDecl:
		for _, n := range s.Names {
			r.exprOrNil(n.Init)
		}

	case *ast.ConstDecl:
		for _, n := range s.Names {
			r.exprOrNil(n.Init)
		}

	default:
		panic(fmt.Sprintf("resolver: unexpected stmt %T", stmt))
	}
}

func (r *resolver) exprOrNil(e ast.Expr) {
	if e != nil {
		r.expr(e)
	}
}

// expr recurses purely to find nested *ast.LambdaExpr bodies: a lambda is
// its own function boundary, so a break/continue inside one can never refer
// to a loop in the enclosing function, and its body may itself contain
// unreachable statements or const reassignments to check.
func (r *resolver) expr(expr ast.Expr) {
	switch e := expr.(type) {
	case *ast.Ident, *ast.IntLit, *ast.FloatLit, *ast.BoolLit, *ast.StringLit, *ast.NilLit:
		// leaves

	case *ast.BinaryExpr:
		r.expr(e.Left)
		r.expr(e.Right)

	case *ast.LogicalExpr:
		r.expr(e.Left)
		r.expr(e.Right)

	case *ast.UnaryExpr:
		r.expr(e.Operand)

	case *ast.ConditionalExpr:
		r.expr(e.Cond)
		r.expr(e.Then)
		r.expr(e.Else)

	case *ast.CallExpr:
		if e.Callee != nil {
			r.expr(e.Callee)
		}
		for _, a := range e.Args {
			r.expr(a)
		}

	case *ast.FieldExpr:
		r.expr(e.Target)

	case *ast.IndexExpr:
		r.expr(e.Target)
		r.expr(e.Index)

	case *ast.StructLit:
		for _, f := range e.Fields {
			r.expr(f.Value)
		}

	case *ast.MapLit:
		for _, ent := range e.Entries {
			r.expr(ent.Key)
			r.expr(ent.Value)
		}

	case *ast.ArrayLit:
		for _, el := range e.Elems {
			r.expr(el)
		}

	case *ast.FixedArrayLit:
		for _, el := range e.Elems {
			r.expr(el)
		}

	case *ast.LambdaExpr:
		saved := r.loopDepth
		r.loopDepth = 0
		r.block(e.Body)
		r.loopDepth = saved
		for _, p := range e.Params {
			r.exprOrNil(p.Default)
		}

	case *ast.CastExpr:
		r.expr(e.Operand)

	case *ast.IsExpr:
		r.expr(e.Operand)

	case *ast.TypeofExpr:
		r.expr(e.Operand)

	default:
		panic(fmt.Sprintf("resolver: unexpected expr %T", expr))
	}
}
