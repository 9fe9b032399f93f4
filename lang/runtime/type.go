// Package runtime implements the process-wide type table and garbage
// collected heap shared by every compiled module and virtual machine
// instance. It is the "Runtime" collaborator described throughout the
// compiler and VM: types are registered once under a monotonically
// increasing TypeID and never mutated after publication, so looking one up
// requires no locking as long as a single VM thread is driving execution.
package runtime

import "fmt"

// TypeID is a dense index into the Runtime's type table. The zero value,
// InvalidTypeID, never denotes a registered type.
type TypeID uint32

// InvalidTypeID is the canonical "no type" sentinel, mirroring the original
// implementation's invalid_type_id.
const InvalidTypeID TypeID = 0

// Kind distinguishes the representation of a TypeID's definition.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindVoid
	KindObject
	KindAny
	KindStruct
	KindTuple
	KindSum
	KindFunction
	KindArray
	KindFixedArray
	KindMap
	KindNewtype
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindVoid:
		return "void"
	case KindObject:
		return "object"
	case KindAny:
		return "any"
	case KindStruct:
		return "struct"
	case KindTuple:
		return "tuple"
	case KindSum:
		return "sum"
	case KindFunction:
		return "function"
	case KindArray:
		return "array"
	case KindFixedArray:
		return "fixed array"
	case KindMap:
		return "map"
	case KindNewtype:
		return "newtype"
	default:
		return "invalid"
	}
}

// FieldDef describes one field of a StructDef: its name, declared type and
// byte offset within the struct's inline (stack or heap) layout.
type FieldDef struct {
	Name   string
	Type   TypeID
	Offset uint32
}

// StructDef is the layout of a struct type. Struct types have nominal
// identity: two StructDefs are the same type only if they share a
// declaration site (see Runtime.RegisterStruct).
type StructDef struct {
	Name       string
	Size       uint32
	Alignment  uint32
	Fields     []FieldDef
	ValueType  bool // [[value_type]] annotation: allocate on the frame stack, not the heap
	HeapRefs   []uint32
	declSite   any // identity anchor: the resolver's declaration node
}

// FieldIndex returns the index of the named field, or -1.
func (s *StructDef) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// TupleDef is the layout of a tuple type. Tuples have structural identity:
// the Runtime hands out one canonical TypeID per distinct element sequence.
type TupleDef struct {
	Size      uint32
	Alignment uint32
	Elements  []TypeID
	Offsets   []uint32
}

// VariantDef is one arm of a sum type.
type VariantDef struct {
	Name         string
	Tag          uint32
	PayloadType  TypeID // InvalidTypeID for unit variants
	PayloadOffset uint32
}

// SumDef is the layout of a tagged union. Like structs, sum types have
// nominal identity.
type SumDef struct {
	Name        string
	Size        uint32
	Alignment   uint32
	Variants    []VariantDef
	TagOffset   uint32
	UnionOffset uint32
	UnionSize   uint32
	declSite    any
}

// FindVariant returns the named variant, or nil.
func (s *SumDef) FindVariant(name string) *VariantDef {
	for i := range s.Variants {
		if s.Variants[i].Name == name {
			return &s.Variants[i]
		}
	}
	return nil
}

// FunctionDef is the structural signature of a function or closure value.
type FunctionDef struct {
	Params     []TypeID
	ReturnType TypeID
}

// ArrayDef is a dynamically sized, heap-allocated array's element type.
type ArrayDef struct {
	Elem TypeID
}

// FixedArrayDef is a compile-time sized array: T[N]. Unlike ArrayDef, fixed
// arrays are value types and may live inline in a struct or on a call
// frame's byte stack.
type FixedArrayDef struct {
	Elem      TypeID
	Count     int
	ElemSize  uint32 // cached size of Elem, computed at registration
	ByteSize  uint32 // Count * ElemSize
}

// MapDef is a hash map's key/value types.
type MapDef struct {
	Key, Value TypeID
}

// NewtypeDef wraps another type with distinct nominal identity but an
// identical runtime representation. Constructed with the CAST opcode.
type NewtypeDef struct {
	Underlying TypeID
}

// TypeDef is the full definition of one registered type.
type TypeDef struct {
	Kind    Kind
	Name    string
	Struct  *StructDef
	Tuple   *TupleDef
	Sum     *SumDef
	Func    *FunctionDef
	Array   *ArrayDef
	Fixed   *FixedArrayDef
	Map     *MapDef
	Newtype *NewtypeDef
}

func (t *TypeDef) String() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Kind.String()
}

// IsValueType reports whether values of this type are copied (not
// pointer-shared) on assignment and may be allocated inline on a call
// frame's byte stack.
func (t *TypeDef) IsValueType() bool {
	switch t.Kind {
	case KindInt, KindFloat, KindBool, KindVoid, KindObject:
		return true
	case KindFixedArray:
		return true
	case KindStruct:
		return t.Struct.ValueType
	case KindTuple:
		return true
	case KindNewtype:
		return false // newtype wraps a reference-identical representation; only primitives are value types here
	default:
		return false
	}
}

// Size returns the in-memory byte size of the type, used for stack
// allocation and field offset computation.
func (t *TypeDef) Size() uint32 {
	switch t.Kind {
	case KindInt, KindFloat, KindBool:
		return 4
	case KindObject:
		return 8
	case KindStruct:
		return t.Struct.Size
	case KindTuple:
		return t.Tuple.Size
	case KindSum:
		return t.Sum.Size
	case KindFixedArray:
		return t.Fixed.ByteSize
	default:
		return 4 // heap pointer / handle, always a HeapPtr-sized slot
	}
}

func (id TypeID) String() string { return fmt.Sprintf("type#%d", uint32(id)) }
