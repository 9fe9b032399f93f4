package ast

import (
	"fmt"

	"github.com/jd28/smalls/lang/runtime"
)

// Ident is a name reference. Binding is never populated by the parser or
// resolver: lang/compiler builds its own scope stack while it walks the
// tree and resolves every Ident against that instead (see compiler.go's
// package doc). The field exists for CallExternal, a call kind nothing in
// this grammar currently produces.
type Ident struct {
	ExprBase
	Name    string
	Binding Binding
}

// BindingKind distinguishes what an Ident resolved to.
type BindingKind int

const (
	BindUnresolved BindingKind = iota
	BindLocal
	BindUpvalue
	BindGlobal
	BindFunction
	BindIntrinsic
	BindExternal
)

// Binding is the resolver's answer to "what does this identifier refer to".
type Binding struct {
	Kind  BindingKind
	Index int    // local register / upvalue index / global slot / function index
	Name  string // qualified name, for BindExternal
}

func (e *Ident) String() string { return e.Name }
func (e *Ident) Walk(Visitor)   {}

// IntLit is an integer literal.
type IntLit struct {
	ExprBase
	Value int32
}

func (e *IntLit) String() string { return fmt.Sprintf("%d", e.Value) }
func (e *IntLit) Walk(Visitor)   {}

// FloatLit is a floating-point literal.
type FloatLit struct {
	ExprBase
	Value float32
}

func (e *FloatLit) String() string { return fmt.Sprintf("%g", e.Value) }
func (e *FloatLit) Walk(Visitor)   {}

// BoolLit is a boolean literal.
type BoolLit struct {
	ExprBase
	Value bool
}

func (e *BoolLit) String() string { return fmt.Sprintf("%t", e.Value) }
func (e *BoolLit) Walk(Visitor)   {}

// StringLit is a string literal.
type StringLit struct {
	ExprBase
	Value string
}

func (e *StringLit) String() string { return fmt.Sprintf("%q", e.Value) }
func (e *StringLit) Walk(Visitor)   {}

// NilLit is the `nil` literal.
type NilLit struct{ ExprBase }

func (e *NilLit) String() string { return "nil" }
func (e *NilLit) Walk(Visitor)   {}

// BinaryExpr is `left op right`, covering arithmetic, bitwise, and
// comparison operators. The resolver sets ScriptOp if the operand types
// have a registered script operator overload (spec.md §4.2).
type BinaryExpr struct {
	ExprBase
	Op          string
	Left, Right Expr
	ScriptOp    string // interned qualified name, if operator-overloaded
}

func (e *BinaryExpr) String() string { return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right) }
func (e *BinaryExpr) Walk(v Visitor) { Walk(v, e.Left); Walk(v, e.Right) }

// LogicalExpr is `left && right` / `left || right`, compiled with
// short-circuit control flow rather than as a primitive binary op.
type LogicalExpr struct {
	ExprBase
	Op          string // "&&" or "||"
	Left, Right Expr
}

func (e *LogicalExpr) String() string { return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right) }
func (e *LogicalExpr) Walk(v Visitor) { Walk(v, e.Left); Walk(v, e.Right) }

// UnaryExpr is `op operand`: -, !, ~.
type UnaryExpr struct {
	ExprBase
	Op       string
	Operand  Expr
	ScriptOp string
}

func (e *UnaryExpr) String() string { return fmt.Sprintf("(%s%s)", e.Op, e.Operand) }
func (e *UnaryExpr) Walk(v Visitor) { Walk(v, e.Operand) }

// ConditionalExpr is `cond ? then : else`.
type ConditionalExpr struct {
	ExprBase
	Cond, Then, Else Expr
}

func (e *ConditionalExpr) String() string {
	return fmt.Sprintf("(%s ? %s : %s)", e.Cond, e.Then, e.Else)
}
func (e *ConditionalExpr) Walk(v Visitor) { Walk(v, e.Cond); Walk(v, e.Then); Walk(v, e.Else) }

// CallKind distinguishes the four call-lowering cases of spec.md §4.2, plus
// the newtype-cast and sum-variant-constructor call forms it also covers.
type CallKind int

const (
	CallDirect CallKind = iota
	CallExternal
	CallIntrinsic
	CallClosure
	CallGeneric
	CallNewtypeCast
	CallSumVariant
)

// CallExpr is a function call, intrinsic invocation, newtype "constructor"
// cast, or sum-variant constructor — the resolver disambiguates via Kind.
type CallExpr struct {
	ExprBase
	Kind          CallKind
	Callee        Expr // for CallDirect/CallExternal/CallClosure/CallGeneric
	Args          []Expr
	IntrinsicID   int // valid when Kind == CallIntrinsic (intrinsic.ID)
	TypeArgs      []runtime.TypeID
	NewtypeTarget runtime.TypeID // valid when Kind == CallNewtypeCast
	SumType       runtime.TypeID // valid when Kind == CallSumVariant
	VariantTag    uint32
	HasPayload    bool
}

func (e *CallExpr) String() string { return fmt.Sprintf("%s(...)", e.Callee) }
func (e *CallExpr) Walk(v Visitor) {
	if e.Callee != nil {
		Walk(v, e.Callee)
	}
	for _, a := range e.Args {
		Walk(v, a)
	}
}

// FieldExpr is a `.field` path segment against a struct value, possibly
// mid-path (e.g. `a.b.c`).
type FieldExpr struct {
	ExprBase
	Target Expr
	Field  string
	// FieldRefIndex is filled by the compiler once it has interned this
	// (struct_type, offset) pair into the module's field-reference table.
	FieldRefIndex int
}

func (e *FieldExpr) String() string { return fmt.Sprintf("%s.%s", e.Target, e.Field) }
func (e *FieldExpr) Walk(v Visitor) { Walk(v, e.Target) }

// IndexExpr is `target[index]`: tuple index (const int), fixed/dynamic
// array index, or map lookup, disambiguated by Target's resolved type.
type IndexExpr struct {
	ExprBase
	Target, Index Expr
}

func (e *IndexExpr) String() string { return fmt.Sprintf("%s[%s]", e.Target, e.Index) }
func (e *IndexExpr) Walk(v Visitor) { Walk(v, e.Target); Walk(v, e.Index) }

// StructLitField is one `name: value` pair in a struct brace-init.
type StructLitField struct {
	Name  string
	Value Expr
}

// StructLit is `StructName{ field: value, ... }`.
type StructLit struct {
	ExprBase
	StructType runtime.TypeID
	Fields     []StructLitField
}

func (e *StructLit) String() string { return "struct{...}" }
func (e *StructLit) Walk(v Visitor) {
	for _, f := range e.Fields {
		Walk(v, f.Value)
	}
}

// MapLitEntry is one `key: value` pair in a map literal.
type MapLitEntry struct{ Key, Value Expr }

// MapLit is `{k1: v1, k2: v2}`.
type MapLit struct {
	ExprBase
	KeyType, ValueType runtime.TypeID
	Entries            []MapLitEntry
}

func (e *MapLit) String() string { return "map{...}" }
func (e *MapLit) Walk(v Visitor) {
	for _, ent := range e.Entries {
		Walk(v, ent.Key)
		Walk(v, ent.Value)
	}
}

// ArrayLit is `[e1, e2, e3]`, dynamic-array-typed.
type ArrayLit struct {
	ExprBase
	ElemType runtime.TypeID
	Elems    []Expr
}

func (e *ArrayLit) String() string { return "array[...]" }
func (e *ArrayLit) Walk(v Visitor) {
	for _, el := range e.Elems {
		Walk(v, el)
	}
}

// FixedArrayLit is `[e1, e2, e3]` with a fixed-array static type (T[N]).
type FixedArrayLit struct {
	ExprBase
	ElemType runtime.TypeID
	Count    int
	Elems    []Expr
}

func (e *FixedArrayLit) String() string { return fmt.Sprintf("fixed[%d]{...}", e.Count) }
func (e *FixedArrayLit) Walk(v Visitor) {
	for _, el := range e.Elems {
		Walk(v, el)
	}
}

// LambdaExpr is an anonymous function literal. Captures is never populated
// by the parser and never read by lang/compiler, which discovers a lambda's
// free variables on its own as it compiles the body (see compileLambdaExpr);
// the field exists for a future pass that wants a precomputed capture list
// without re-deriving it from scratch.
type LambdaExpr struct {
	ExprBase
	Params   []Param
	Body     *Block
	Captures []Capture
}

// Param is one function parameter.
type Param struct {
	Name    string
	Type    runtime.TypeID
	Default Expr // nil if no default
}

// Capture describes one variable a lambda closes over.
type Capture struct {
	Name string
	// FromParentLocal is true if the captured variable is a local register
	// of the immediately enclosing function, false if it is itself an
	// upvalue of the enclosing function (re-exported one level further).
	FromParentLocal bool
	Index           uint8
}

func (e *LambdaExpr) String() string { return fmt.Sprintf("fn(%d params)", len(e.Params)) }
func (e *LambdaExpr) Walk(v Visitor) { Walk(v, e.Body) }

// CastExpr is `expr as Type`.
type CastExpr struct {
	ExprBase
	Operand    Expr
	TargetType runtime.TypeID
}

func (e *CastExpr) String() string { return fmt.Sprintf("(%s as ...)", e.Operand) }
func (e *CastExpr) Walk(v Visitor) { Walk(v, e.Operand) }

// IsExpr is `expr is Type`.
type IsExpr struct {
	ExprBase
	Operand    Expr
	TargetType runtime.TypeID
}

func (e *IsExpr) String() string { return fmt.Sprintf("(%s is ...)", e.Operand) }
func (e *IsExpr) Walk(v Visitor) { Walk(v, e.Operand) }

// TypeofExpr is `typeof expr` (spec.md §9 Open Question (b): resolved to an
// any-typed handle comparable via is/==, see DESIGN.md).
type TypeofExpr struct {
	ExprBase
	Operand Expr
}

func (e *TypeofExpr) String() string { return fmt.Sprintf("typeof(%s)", e.Operand) }
func (e *TypeofExpr) Walk(v Visitor) { Walk(v, e.Operand) }
