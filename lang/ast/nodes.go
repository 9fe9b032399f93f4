package ast

import (
	"fmt"

	"github.com/jd28/smalls/lang/runtime"
	"github.com/jd28/smalls/lang/token"
)

// DeclBase factors the fields every Decl implementation shares.
type DeclBase struct {
	Range token.Range
}

func (d *DeclBase) Span() token.Range { return d.Range }
func (d *DeclBase) declNode()         {}

// FuncDecl is a top-level `fn name(params): ret { body }`, optionally
// generic (`fn name!(T, U)(params): ret { body }`).
type FuncDecl struct {
	DeclBase
	Name         string
	Params       []Param
	ReturnType   runtime.TypeID
	Body         *Block
	GenericNames []string // empty if not generic
	// FunctionType is the canonical TypeID the Runtime assigned this
	// function's (params...) -> ret shape (spec.md §4.2 step 2).
	FunctionType runtime.TypeID
}

func (d *FuncDecl) String() string { return fmt.Sprintf("fn %s(%d params)", d.Name, len(d.Params)) }
func (d *FuncDecl) Walk(v Visitor) { Walk(v, d.Body) }

// VarDeclName is one name in a `var a, b = x, y` comma declaration.
type VarDeclName struct {
	Name string
	Type runtime.TypeID
	Init Expr // nil if uninitialized
	// GlobalSlot is filled by the compiler's global-slot-assignment pass
	// (spec.md §4.2 step 1) when this declaration is top-level.
	GlobalSlot int
}

// VarDecl is `var a, b = x, y` (top-level or local). It satisfies both Decl
// (top-level) and Stmt (local), since the grammar allows both positions.
type VarDecl struct {
	DeclBase
	Names []VarDeclName
}

func (d *VarDecl) String() string    { return fmt.Sprintf("var (%d names)", len(d.Names)) }
func (d *VarDecl) stmtNode()         {}
func (d *VarDecl) BlockEnding() bool { return false }
func (d *VarDecl) Walk(v Visitor) {
	for _, n := range d.Names {
		if n.Init != nil {
			Walk(v, n.Init)
		}
	}
}

// ConstDecl is `const a, b = x, y`; the resolver rejects any later
// assignment to these slots (spec.md §4.2 step 1).
type ConstDecl struct {
	DeclBase
	Names []VarDeclName
}

func (d *ConstDecl) String() string    { return fmt.Sprintf("const (%d names)", len(d.Names)) }
func (d *ConstDecl) stmtNode()         {}
func (d *ConstDecl) BlockEnding() bool { return false }
func (d *ConstDecl) Walk(v Visitor) {
	for _, n := range d.Names {
		if n.Init != nil {
			Walk(v, n.Init)
		}
	}
}

// StructField is one field of a struct declaration.
type StructField struct {
	Name string
	Type runtime.TypeID
}

// StructDecl is `struct Name { field: Type, ... }`, optionally annotated
// `[[value_type]]` to request stack (rather than heap) allocation.
type StructDecl struct {
	DeclBase
	Name      string
	Fields    []StructField
	ValueType bool
	// Registered is the TypeID the Runtime assigned this declaration
	// (nominal identity, hashed by declaration pointer per spec.md §3).
	Registered runtime.TypeID
}

func (d *StructDecl) String() string { return fmt.Sprintf("struct %s", d.Name) }
func (d *StructDecl) Walk(Visitor)   {}

// SumVariant is one variant of a sum type declaration: `Name(Payload)` or
// `Name` for a unit variant.
type SumVariant struct {
	Name       string
	PayloadType runtime.TypeID // runtime.InvalidTypeID for a unit variant
	Tag        uint32
}

// SumDecl is `sum Name { Variant1(T1), Variant2, ... }`.
type SumDecl struct {
	DeclBase
	Name       string
	Variants   []SumVariant
	Registered runtime.TypeID
}

func (d *SumDecl) String() string { return fmt.Sprintf("sum %s (%d variants)", d.Name, len(d.Variants)) }
func (d *SumDecl) Walk(Visitor)   {}

// NewtypeDecl is `newtype Name = Underlying;` — a nominal wrapper whose
// runtime representation is identical to Underlying but whose identity is
// distinct (constructed via CAST, spec.md GLOSSARY "Newtype").
type NewtypeDecl struct {
	DeclBase
	Name       string
	Underlying runtime.TypeID
	Registered runtime.TypeID
}

func (d *NewtypeDecl) String() string { return fmt.Sprintf("newtype %s", d.Name) }
func (d *NewtypeDecl) Walk(Visitor)   {}
