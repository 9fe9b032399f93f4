package runtime

import (
	"fmt"
	"strings"
)

// Runtime owns the process-wide type table, the GC'd heap, and the string
// interner. A compiler consults it to register synthesized types (tuples,
// function types, generic instantiations) and to look up script-defined
// operator overloads; a VirtualMachine consults it on every heap allocation,
// cross-boundary field access, external call, and GC-root walk.
type Runtime struct {
	types []TypeDef

	structByDecl map[any]TypeID
	sumByDecl    map[any]TypeID
	newtypeByDecl map[any]TypeID
	tupleByKey   map[string]TypeID
	funcByKey    map[string]TypeID
	arrayByElem  map[TypeID]TypeID
	fixedByKey   map[string]TypeID
	mapByKey     map[[2]TypeID]TypeID

	binaryOps map[opKey]string // (operand type, op token) -> qualified external function name
	unaryOps  map[opKey]string
	strOps    map[TypeID]string
	hashOps   map[TypeID]string

	generics                 map[string]GenericInstantiation
	maxGenericInstantiations int // 0 means unlimited

	Heap    *Heap
	Strings *StringInterner
}

type opKey struct {
	Type TypeID
	Op   string
}

// GenericInstantiation is the result of Runtime.EnsureGenericInstantiation:
// either a local function index (instantiated in the requesting module) or
// an external qualified name (instantiated in the function's defining
// script).
type GenericInstantiation struct {
	Local     bool
	LocalIdx  uint32
	External  string
}

// NewRuntime returns a Runtime pre-seeded with the primitive types at their
// fixed, well-known TypeIDs.
func NewRuntime() *Runtime {
	rt := &Runtime{
		structByDecl:  make(map[any]TypeID),
		sumByDecl:     make(map[any]TypeID),
		newtypeByDecl: make(map[any]TypeID),
		tupleByKey:    make(map[string]TypeID),
		funcByKey:     make(map[string]TypeID),
		arrayByElem:   make(map[TypeID]TypeID),
		fixedByKey:    make(map[string]TypeID),
		mapByKey:      make(map[[2]TypeID]TypeID),
		binaryOps:     make(map[opKey]string),
		unaryOps:      make(map[opKey]string),
		strOps:        make(map[TypeID]string),
		hashOps:       make(map[TypeID]string),
		generics:      make(map[string]GenericInstantiation),
		Strings:       NewStringInterner(),
	}
	rt.Heap = NewHeap(rt)

	// Reserve index 0 for InvalidTypeID, then the fixed primitive kinds in a
	// stable order so code can refer to e.g. IntType as a constant.
	rt.types = append(rt.types, TypeDef{Kind: KindInvalid, Name: "invalid"})
	for _, kv := range []struct {
		id   TypeID
		kind Kind
		name string
	}{
		{IntType, KindInt, "int"},
		{FloatType, KindFloat, "float"},
		{BoolType, KindBool, "bool"},
		{StringType, KindString, "string"},
		{VoidType, KindVoid, "void"},
		{ObjectType, KindObject, "object"},
		{AnyType, KindAny, "any"},
	} {
		for TypeID(len(rt.types)) < kv.id {
			rt.types = append(rt.types, TypeDef{})
		}
		rt.types = append(rt.types, TypeDef{Kind: kv.kind, Name: kv.name})
	}
	return rt
}

// Fixed primitive TypeIDs, stable across every Runtime instance.
const (
	IntType    TypeID = 1
	FloatType  TypeID = 2
	BoolType   TypeID = 3
	StringType TypeID = 4
	VoidType   TypeID = 5
	ObjectType TypeID = 6
	AnyType    TypeID = 7
)

// GetType returns the definition for id. It panics on an invalid id, since a
// verified bytecode module never references one.
func (rt *Runtime) GetType(id TypeID) *TypeDef {
	if int(id) >= len(rt.types) {
		panic(fmt.Sprintf("runtime: invalid type id %d", id))
	}
	return &rt.types[id]
}

// TryGetType is the non-panicking counterpart, used by the parser.
func (rt *Runtime) TryGetType(id TypeID) (*TypeDef, bool) {
	if int(id) >= len(rt.types) || rt.types[id].Kind == KindInvalid {
		return nil, false
	}
	return &rt.types[id], true
}

func (rt *Runtime) register(def TypeDef) TypeID {
	id := TypeID(len(rt.types))
	rt.types = append(rt.types, def)
	return id
}

// RegisterStruct registers a nominal struct type. declSite must be a stable
// pointer identifying the declaration (e.g. the resolved AST node); calling
// RegisterStruct again with the same declSite returns the same TypeID.
func (rt *Runtime) RegisterStruct(declSite any, name string, fields []FieldDef, valueType bool) TypeID {
	if id, ok := rt.structByDecl[declSite]; ok {
		return id
	}
	var size, align uint32 = 0, 1
	heapRefs := make([]uint32, 0)
	off := uint32(0)
	for i := range fields {
		ft := rt.GetType(fields[i].Type)
		fsz := ft.Size()
		falign := fieldAlignment(fsz)
		off = alignUp(off, falign)
		fields[i].Offset = off
		if !ft.IsValueType() {
			heapRefs = append(heapRefs, off)
		}
		off += fsz
		if falign > align {
			align = falign
		}
	}
	size = alignUp(off, align)
	sd := &StructDef{Name: name, Size: size, Alignment: align, Fields: fields, ValueType: valueType, HeapRefs: heapRefs, declSite: declSite}
	id := rt.register(TypeDef{Kind: KindStruct, Name: name, Struct: sd})
	rt.structByDecl[declSite] = id
	return id
}

// RegisterSum registers a nominal sum (tagged union) type.
func (rt *Runtime) RegisterSum(declSite any, name string, variants []VariantDef) TypeID {
	if id, ok := rt.sumByDecl[declSite]; ok {
		return id
	}
	var unionSize, unionAlign uint32 = 0, 1
	for i := range variants {
		if variants[i].PayloadType == InvalidTypeID {
			continue
		}
		pt := rt.GetType(variants[i].PayloadType)
		psz := pt.Size()
		palign := fieldAlignment(psz)
		variants[i].PayloadOffset = 0 // union: all variants share the same offset
		if psz > unionSize {
			unionSize = psz
		}
		if palign > unionAlign {
			unionAlign = palign
		}
	}
	tagOffset := uint32(0)
	unionOffset := alignUp(4, unionAlign)
	size := alignUp(unionOffset+unionSize, unionAlign)
	if unionSize == 0 {
		size = 4
	}
	sd := &SumDef{Name: name, Size: size, Alignment: unionAlign, Variants: variants, TagOffset: tagOffset, UnionOffset: unionOffset, UnionSize: unionSize, declSite: declSite}
	id := rt.register(TypeDef{Kind: KindSum, Name: name, Sum: sd})
	rt.sumByDecl[declSite] = id
	return id
}

// RegisterNewtype registers a nominal wrapper over an existing type.
func (rt *Runtime) RegisterNewtype(declSite any, name string, underlying TypeID) TypeID {
	if id, ok := rt.newtypeByDecl[declSite]; ok {
		return id
	}
	id := rt.register(TypeDef{Kind: KindNewtype, Name: name, Newtype: &NewtypeDef{Underlying: underlying}})
	rt.newtypeByDecl[declSite] = id
	return id
}

// RegisterTupleType returns the canonical TypeID for a tuple with the given
// element types, registering it on first use. Tuples have structural
// identity.
func (rt *Runtime) RegisterTupleType(elems []TypeID) TypeID {
	key := tupleKey(elems)
	if id, ok := rt.tupleByKey[key]; ok {
		return id
	}
	offsets := make([]uint32, len(elems))
	var off, align uint32 = 0, 1
	for i, e := range elems {
		et := rt.GetType(e)
		esz := et.Size()
		ealign := fieldAlignment(esz)
		off = alignUp(off, ealign)
		offsets[i] = off
		off += esz
		if ealign > align {
			align = ealign
		}
	}
	size := alignUp(off, align)
	td := &TupleDef{Size: size, Alignment: align, Elements: append([]TypeID(nil), elems...), Offsets: offsets}
	id := rt.register(TypeDef{Kind: KindTuple, Name: tupleName(elems), Tuple: td})
	rt.tupleByKey[key] = id
	return id
}

// RegisterFunctionType returns the canonical TypeID for a function signature.
func (rt *Runtime) RegisterFunctionType(params []TypeID, ret TypeID) TypeID {
	key := funcKey(params, ret)
	if id, ok := rt.funcByKey[key]; ok {
		return id
	}
	fd := &FunctionDef{Params: append([]TypeID(nil), params...), ReturnType: ret}
	id := rt.register(TypeDef{Kind: KindFunction, Name: key, Func: fd})
	rt.funcByKey[key] = id
	return id
}

// RegisterArrayType returns the canonical TypeID for a dynamic array of elem.
func (rt *Runtime) RegisterArrayType(elem TypeID) TypeID {
	if id, ok := rt.arrayByElem[elem]; ok {
		return id
	}
	id := rt.register(TypeDef{Kind: KindArray, Name: rt.GetType(elem).String() + "[]", Array: &ArrayDef{Elem: elem}})
	rt.arrayByElem[elem] = id
	return id
}

// RegisterFixedArrayType returns the canonical TypeID for T[count].
func (rt *Runtime) RegisterFixedArrayType(elem TypeID, count int) TypeID {
	key := fmt.Sprintf("%d#%d", elem, count)
	if id, ok := rt.fixedByKey[key]; ok {
		return id
	}
	esz := rt.GetType(elem).Size()
	fd := &FixedArrayDef{Elem: elem, Count: count, ElemSize: esz, ByteSize: esz * uint32(count)}
	id := rt.register(TypeDef{Kind: KindFixedArray, Name: fmt.Sprintf("%s[%d]", rt.GetType(elem).String(), count), Fixed: fd})
	rt.fixedByKey[key] = id
	return id
}

// RegisterMapType returns the canonical TypeID for map[key]value.
func (rt *Runtime) RegisterMapType(key, value TypeID) TypeID {
	k := [2]TypeID{key, value}
	if id, ok := rt.mapByKey[k]; ok {
		return id
	}
	id := rt.register(TypeDef{Kind: KindMap, Name: "map", Map: &MapDef{Key: key, Value: value}})
	rt.mapByKey[k] = id
	return id
}

// RegisterBinaryOp records that values of operandType support op via the
// script-defined external function qualifiedName (found by FindScriptBinaryOp
// during compilation).
func (rt *Runtime) RegisterBinaryOp(operandType TypeID, op, qualifiedName string) {
	rt.binaryOps[opKey{operandType, op}] = qualifiedName
}

func (rt *Runtime) RegisterUnaryOp(operandType TypeID, op, qualifiedName string) {
	rt.unaryOps[opKey{operandType, op}] = qualifiedName
}

func (rt *Runtime) RegisterStrOp(operandType TypeID, qualifiedName string) {
	rt.strOps[operandType] = qualifiedName
}

func (rt *Runtime) RegisterHashOp(operandType TypeID, qualifiedName string) {
	rt.hashOps[operandType] = qualifiedName
}

// FindScriptBinaryOp looks up a script-defined overload for a binary
// operator on operandType, used by the compiler to decide between emitting
// the primitive opcode and emitting CALLEXT.
func (rt *Runtime) FindScriptBinaryOp(operandType TypeID, op string) (string, bool) {
	name, ok := rt.binaryOps[opKey{operandType, op}]
	return name, ok
}

func (rt *Runtime) FindScriptUnaryOp(operandType TypeID, op string) (string, bool) {
	name, ok := rt.unaryOps[opKey{operandType, op}]
	return name, ok
}

func (rt *Runtime) FindStrOp(operandType TypeID) (string, bool) {
	name, ok := rt.strOps[operandType]
	return name, ok
}

func (rt *Runtime) FindHashOp(operandType TypeID) (string, bool) {
	name, ok := rt.hashOps[operandType]
	return name, ok
}

// SetMaxGenericInstantiations caps the number of distinct (name, type-args)
// generic instantiations EnsureGenericInstantiation will create before
// failing (SPEC_FULL.md §4.6 "max_generic_instantiations"); 0 (the default)
// leaves it unbounded.
func (rt *Runtime) SetMaxGenericInstantiations(n int) { rt.maxGenericInstantiations = n }

// EnsureGenericInstantiation returns a cached instantiation for a generic
// function called with the given type arguments, instantiating (and caching)
// it via makeInstance on first request. Fails once the cache would grow past
// the configured cap without a hit.
func (rt *Runtime) EnsureGenericInstantiation(genericName string, typeArgs []TypeID, makeInstance func() GenericInstantiation) (GenericInstantiation, error) {
	key := instKey(genericName, typeArgs)
	if inst, ok := rt.generics[key]; ok {
		return inst, nil
	}
	if rt.maxGenericInstantiations > 0 && len(rt.generics) >= rt.maxGenericInstantiations {
		return GenericInstantiation{}, fmt.Errorf("generic instantiation limit of %d exceeded for %q", rt.maxGenericInstantiations, genericName)
	}
	inst := makeInstance()
	rt.generics[key] = inst
	return inst, nil
}

func instKey(name string, args []TypeID) string {
	var b strings.Builder
	b.WriteString(name)
	for _, a := range args {
		fmt.Fprintf(&b, "#%d", a)
	}
	return b.String()
}

func tupleKey(elems []TypeID) string {
	var b strings.Builder
	b.WriteString("(")
	for i, e := range elems {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", e)
	}
	b.WriteString(")")
	return b.String()
}

func tupleName(elems []TypeID) string {
	return tupleKey(elems)
}

func funcKey(params []TypeID, ret TypeID) string {
	var b strings.Builder
	b.WriteString("fn(")
	for i, p := range params {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", p)
	}
	fmt.Fprintf(&b, ")->%d", ret)
	return b.String()
}

func fieldAlignment(size uint32) uint32 {
	switch {
	case size >= 8:
		return 8
	case size >= 4:
		return 4
	case size >= 2:
		return 2
	default:
		return 1
	}
}

func alignUp(off, align uint32) uint32 {
	if align == 0 {
		return off
	}
	return (off + align - 1) / align * align
}
