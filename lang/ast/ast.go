// Package ast defines the resolved abstract syntax tree the AST compiler
// consumes. Nodes carry the metadata spec.md assumes an external resolver
// has already populated: TypeID, IsConst, captured-variable metadata,
// resolved function pointers, and inferred generic type arguments.
//
// Unlike spec.md's sketch of a separate parse-then-resolve pipeline, that
// work is split differently here: lang/parser resolves every type
// annotation and infers every expression's static type as it parses (every
// declaration site in the grammar carries an explicit type, so there is no
// need for a distinct "unresolved AST" shape), constructing nodes already
// fully typed via ExprBase/StmtBase/DeclBase's exported fields. lang/
// resolver is a second, smaller pass over the finished tree that performs
// checks better expressed as a tree walk than interleaved with parsing:
// rejecting assignment to a const binding, rejecting break/continue outside
// a loop, and reporting statements that follow a block-ending one as
// unreachable. Block.BlockTerminated is set by lang/parser.
package ast

import (
	"fmt"

	"github.com/jd28/smalls/lang/runtime"
	"github.com/jd28/smalls/lang/token"
)

// Node is any AST node.
type Node interface {
	fmt.Stringer
	Span() token.Range
	Walk(v Visitor)
}

// Expr is an expression node; every Expr carries the resolved type and
// const-ness the compiler's try_emit_const path inspects.
type Expr interface {
	Node
	exprNode()
	// Type is the resolved static type of this expression, or
	// runtime.InvalidTypeID before resolution.
	Type() runtime.TypeID
	// IsConst reports whether the resolver proved this expression constant
	// and foldable.
	IsConst() bool
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
	// BlockEnding reports whether this statement unconditionally transfers
	// control out of its enclosing block (return/break/continue), used by
	// the compiler's dead-code elimination to stop emitting siblings.
	BlockEnding() bool
}

// Decl is a top-level declaration: var/const/fn/struct/sum/newtype.
type Decl interface {
	Node
	declNode()
}

// ExprBase factors the fields every Expr implementation shares.
type ExprBase struct {
	Range  token.Range
	TypeID runtime.TypeID
	Const  bool
}

func (e *ExprBase) Span() token.Range    { return e.Range }
func (e *ExprBase) Type() runtime.TypeID { return e.TypeID }
func (e *ExprBase) IsConst() bool        { return e.Const }
func (e *ExprBase) exprNode()            {}

// StmtBase factors the fields every Stmt implementation shares.
type StmtBase struct {
	Range token.Range
}

func (s *StmtBase) Span() token.Range { return s.Range }
func (s *StmtBase) stmtNode()         {}

// Program is the root node: a module's declarations in source order.
type Program struct {
	Name  string
	Decls []Decl
}

func (p *Program) Span() token.Range {
	if len(p.Decls) == 0 {
		return token.Range{}
	}
	return token.Range{Start: p.Decls[0].Span().Start, End: p.Decls[len(p.Decls)-1].Span().End}
}
func (p *Program) String() string {
	return fmt.Sprintf("program %s (%d decls)", p.Name, len(p.Decls))
}
func (p *Program) Walk(v Visitor) {
	for _, d := range p.Decls {
		Walk(v, d)
	}
}

// Block is a sequence of statements. BlockTerminated is set by lang/parser
// when the block contains a block-ending statement, so the compiler can
// skip unreachable siblings (spec.md §4.2 "Dead-code elimination").
type Block struct {
	Range           token.Range
	Stmts           []Stmt
	BlockTerminated bool
}

func (b *Block) Span() token.Range { return b.Range }
func (b *Block) String() string    { return fmt.Sprintf("block (%d stmts)", len(b.Stmts)) }
func (b *Block) Walk(v Visitor) {
	for _, s := range b.Stmts {
		Walk(v, s)
	}
}
