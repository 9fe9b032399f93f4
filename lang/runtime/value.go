package runtime

import "math"

// ValueStorage distinguishes where a Value's payload lives. Aggregates of a
// value type (structs flagged [[value_type]], tuples, fixed arrays) may live
// inline in a call frame's byte stack instead of on the heap; the tag drives
// the small set of branches needed at call, return, copy and field-access
// sites, avoiding a virtual dispatch per value.
type ValueStorage uint8

const (
	// StorageImmediate holds the payload directly: an int, float, bool,
	// ObjectHandle, or a HeapPtr to a type whose identity is the pointer
	// itself (closures, strings, dynamic arrays, maps, non-value structs/sums).
	StorageImmediate ValueStorage = iota
	// StorageStack holds a byte offset into the owning call frame's byte
	// stack, where the full value-type aggregate is laid out inline.
	StorageStack
)

// ObjectHandle is an opaque 64-bit reference into the game world, owned by a
// collaborator outside this package.
type ObjectHandle uint64

// HeapPtr is a 32-bit handle into the Runtime's typed heap.
type HeapPtr uint32

// InvalidHeapPtr never denotes a live allocation.
const InvalidHeapPtr HeapPtr = 0

// Value is a type tag plus a single untyped 64-bit payload, interpreted
// according to Type and Storage. It is deliberately a flat struct rather
// than an interface: virtual dispatch per value is hot-path death in a
// register VM, so every opcode handler reads the payload through the typed
// accessor that matches the static shape it already expects.
type Value struct {
	Type    TypeID
	Storage ValueStorage
	bits    uint64
}

// Nil is the canonical void-typed value used for uninitialized locals and
// bare returns.
var Nil = Value{Type: VoidType}

func IntValue(v int32) Value    { return Value{Type: IntType, bits: uint64(uint32(v))} }
func FloatValue(v float32) Value {
	return Value{Type: FloatType, bits: uint64(math.Float32bits(v))}
}
func BoolValue(v bool) Value {
	var b uint64
	if v {
		b = 1
	}
	return Value{Type: BoolType, bits: b}
}
func ObjectValue(v ObjectHandle) Value { return Value{Type: ObjectType, bits: uint64(v)} }

// TypeHandleValue is the result of TYPEOF: an any-typed handle carrying the
// operand's TypeID in its payload, comparable to another handle via ==/!= and
// distinguishable from a concrete type via IS (spec.md §9 Open Question (b)).
func TypeHandleValue(t TypeID) Value { return Value{Type: AnyType, bits: uint64(t)} }
func HeapValue(t TypeID, p HeapPtr) Value {
	return Value{Type: t, Storage: StorageImmediate, bits: uint64(p)}
}
func StackValue(t TypeID, offset uint32) Value {
	return Value{Type: t, Storage: StorageStack, bits: uint64(offset)}
}

func (v Value) Int() int32     { return int32(uint32(v.bits)) }
func (v Value) Float() float32 { return math.Float32frombits(uint32(v.bits)) }
func (v Value) Bool() bool     { return v.bits != 0 }
func (v Value) Object() ObjectHandle { return ObjectHandle(v.bits) }

// TypeHandle returns the TypeID packed into a TYPEOF result. Only meaningful
// when v.Type == AnyType.
func (v Value) TypeHandle() TypeID { return TypeID(v.bits) }
func (v Value) Heap() HeapPtr   { return HeapPtr(v.bits) }
func (v Value) StackOffset() uint32 { return uint32(v.bits) }

// IsNil reports whether v is the void/uninitialized value.
func (v Value) IsNil() bool { return v.Type == VoidType }

// IsStack reports whether v's payload is a byte offset into a call frame's
// stack rather than a heap pointer or immediate scalar.
func (v Value) IsStack() bool { return v.Storage == StorageStack }
