package runtime

// HeapObject is any value living behind a HeapPtr. Every GC'd allocation
// (structs, tuples, sums, dynamic arrays, maps, strings, closures) is one of
// these, tagged so the GC can walk only its pointer-bearing slots.
type HeapObject struct {
	TypeID  TypeID
	marked  bool
	Struct  *StructInstance
	Tuple   *TupleInstance
	Sum     *SumInstance
	Array   *ArrayInstance
	Map     *MapInstance
	Str     *StringInstance
	Closure *ClosureInstance
}

// StructInstance is a heap-allocated struct's field storage, keyed by field
// index (see StructDef.Fields).
type StructInstance struct {
	Fields []Value
}

// TupleInstance is a heap-allocated tuple's element storage.
type TupleInstance struct {
	Elems []Value
}

// SumInstance is a heap-allocated sum value: a discriminant tag plus an
// optional payload.
type SumInstance struct {
	Tag     uint32
	Payload Value
}

// ArrayInstance is a dynamic array's backing storage.
type ArrayInstance struct {
	Elem TypeID
	Data []Value
}

// MapInstance is a hash map's backing storage, in insertion order so
// iteration is deterministic for a fixed sequence of insertions (the spec's
// map-iteration scenario only requires order-independent aggregation, but
// deterministic order makes tests reproducible).
type MapInstance struct {
	Key, Value TypeID
	keys       []Value
	index      map[any]int
	vals       []Value
}

// StringInstance is a (backing buffer, offset, length) triple so that
// substring operations share storage instead of copying.
type StringInstance struct {
	Backing *[]byte
	Offset  int
	Length  int
}

func (s *StringInstance) String() string {
	return string((*s.Backing)[s.Offset : s.Offset+s.Length])
}

// ClosureInstance is (function pointer, module pointer, upvalue vector). The
// function/module pointers are opaque `any` here (they point into the
// bytecode/vm packages, which sit above this one) so the heap has no import
// cycle back to its callers.
type ClosureInstance struct {
	Function any
	Module   any
	Upvalues []*Upvalue
}

// Upvalue is a reference cell shared by one or more closures. It starts
// *open*, with Location pointing into a live call frame's register file
// (represented here by a pointer supplied by the VM); CLOSEUPVALS transitions
// it to *closed* by copying the live value into Closed and repointing
// Location at it.
type Upvalue struct {
	Location *Value
	Closed   Value
}

// Close snapshots the upvalue's current value into its own storage and
// retargets Location there, so it no longer depends on the frame that
// produced it.
func (u *Upvalue) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
}

// IsClosed reports whether Close has already been called.
func (u *Upvalue) IsClosed() bool { return u.Location == &u.Closed }

// Heap is a typed allocation pool. Every object is tagged with its TypeID so
// the GC can enumerate only the slots that may hold further HeapPtrs.
type Heap struct {
	rt      *Runtime
	objects []HeapObject // index 0 is reserved, InvalidHeapPtr
}

// NewHeap returns an empty heap bound to rt (used to resolve TypeIDs when
// scanning for roots).
func NewHeap(rt *Runtime) *Heap {
	h := &Heap{rt: rt}
	h.objects = append(h.objects, HeapObject{}) // reserve index 0
	return h
}

func (h *Heap) alloc(obj HeapObject) HeapPtr {
	ptr := HeapPtr(len(h.objects))
	h.objects = append(h.objects, obj)
	return ptr
}

// Get returns the heap object for ptr.
func (h *Heap) Get(ptr HeapPtr) *HeapObject {
	return &h.objects[ptr]
}

// AllocStruct allocates a zero-initialized (Nil-filled) struct of typeID.
func (h *Heap) AllocStruct(typeID TypeID) HeapPtr {
	def := h.rt.GetType(typeID).Struct
	fields := make([]Value, len(def.Fields))
	for i := range fields {
		fields[i] = Nil
	}
	return h.alloc(HeapObject{TypeID: typeID, Struct: &StructInstance{Fields: fields}})
}

// AllocTuple allocates a tuple with the given element values.
func (h *Heap) AllocTuple(typeID TypeID, elems []Value) HeapPtr {
	return h.alloc(HeapObject{TypeID: typeID, Tuple: &TupleInstance{Elems: elems}})
}

// AllocSum allocates a sum value with the given tag/payload.
func (h *Heap) AllocSum(typeID TypeID, tag uint32, payload Value) HeapPtr {
	return h.alloc(HeapObject{TypeID: typeID, Sum: &SumInstance{Tag: tag, Payload: payload}})
}

// AllocArray allocates a dynamic array with the given initial elements.
func (h *Heap) AllocArray(elemType TypeID, elems []Value) HeapPtr {
	arrType := h.rt.RegisterArrayType(elemType)
	return h.alloc(HeapObject{TypeID: arrType, Array: &ArrayInstance{Elem: elemType, Data: elems}})
}

// AllocMap allocates an empty map for the given key/value types.
func (h *Heap) AllocMap(key, value TypeID) HeapPtr {
	mapType := h.rt.RegisterMapType(key, value)
	return h.alloc(HeapObject{TypeID: mapType, Map: &MapInstance{Key: key, Value: value, index: make(map[any]int)}})
}

// AllocString interns s as a fresh backing buffer and returns a heap string
// spanning the whole buffer.
func (h *Heap) AllocString(s string) HeapPtr {
	buf := []byte(s)
	return h.alloc(HeapObject{TypeID: StringType, Str: &StringInstance{Backing: &buf, Offset: 0, Length: len(buf)}})
}

// AllocSubstring shares the backing buffer of an existing heap string.
func (h *Heap) AllocSubstring(parent *StringInstance, offset, length int) HeapPtr {
	return h.alloc(HeapObject{TypeID: StringType, Str: &StringInstance{Backing: parent.Backing, Offset: parent.Offset + offset, Length: length}})
}

// AllocClosure allocates a closure wrapping fn/module with the given
// upvalues.
func (h *Heap) AllocClosure(typeID TypeID, fn, module any, upvalues []*Upvalue) HeapPtr {
	return h.alloc(HeapObject{TypeID: typeID, Closure: &ClosureInstance{Function: fn, Module: module, Upvalues: upvalues}})
}

// ---- map key/value helpers (maps are keyed on the comparable Go value the
// Value's scalar payload decodes to, since script map keys are restricted to
// primitive/hashable types) ----

func mapKeyOf(rt *Runtime, v Value) any {
	switch rt.GetType(v.Type).Kind {
	case KindInt:
		return v.Int()
	case KindFloat:
		return v.Float()
	case KindBool:
		return v.Bool()
	case KindString:
		// string keys compare by content
		return rt.Heap.Get(v.Heap()).Str.String()
	case KindObject:
		return v.Object()
	default:
		return v.Heap()
	}
}

// Get returns the value for k, or !found.
func (m *MapInstance) Get(rt *Runtime, k Value) (Value, bool) {
	idx, ok := m.index[mapKeyOf(rt, k)]
	if !ok {
		return Value{}, false
	}
	return m.vals[idx], true
}

// Set inserts or updates k -> v.
func (m *MapInstance) Set(rt *Runtime, k, v Value) {
	key := mapKeyOf(rt, k)
	if idx, ok := m.index[key]; ok {
		m.vals[idx] = v
		return
	}
	m.index[key] = len(m.keys)
	m.keys = append(m.keys, k)
	m.vals = append(m.vals, v)
}

// Has reports whether k is present.
func (m *MapInstance) Has(rt *Runtime, k Value) bool {
	_, ok := m.index[mapKeyOf(rt, k)]
	return ok
}

// Remove deletes k, reporting whether it was present. Removal is O(n) to
// keep iteration order stable for the remaining entries.
func (m *MapInstance) Remove(rt *Runtime, k Value) bool {
	key := mapKeyOf(rt, k)
	idx, ok := m.index[key]
	if !ok {
		return false
	}
	m.keys = append(m.keys[:idx], m.keys[idx+1:]...)
	m.vals = append(m.vals[:idx], m.vals[idx+1:]...)
	delete(m.index, key)
	for k2, i := range m.index {
		if i > idx {
			m.index[k2] = i - 1
		}
	}
	return true
}

// Len returns the number of entries.
func (m *MapInstance) Len() int { return len(m.keys) }

// Clear empties the map.
func (m *MapInstance) Clear() {
	m.keys = nil
	m.vals = nil
	m.index = make(map[any]int)
}

// Keys/Values returns the entries in insertion order, for iteration.
func (m *MapInstance) Keys() []Value   { return m.keys }
func (m *MapInstance) Values() []Value { return m.vals }
