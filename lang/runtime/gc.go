package runtime

// RootVisitor is what Runtime.Collect hands its roots callback; VisitRoot is
// invoked for every live HeapPtr discovered while enumerating roots (the VM's
// register file, open/closed upvalues, and frame stack-value layouts).
type RootVisitor interface {
	VisitRoot(ptr *HeapPtr)
}

// funcRootVisitor adapts a plain func(HeapPtr) to RootVisitor.
type funcRootVisitor func(HeapPtr)

func (f funcRootVisitor) VisitRoot(ptr *HeapPtr) { f(*ptr) }

// ScanValueHeapRefs calls visit with the HeapPtr v itself holds, if any,
// dispatching on v's type; it does not descend into the object that pointer
// names (Collect's worklist does that). It is used both by GC root enumeration (for
// frame stack slots and struct/tuple/sum fields) and by the mark phase.
func (rt *Runtime) ScanValueHeapRefs(v Value, visit func(HeapPtr)) {
	if v.Storage == StorageStack {
		// Stack-resident aggregates are scanned by the frame directly, since
		// the Runtime has no access to frame byte-stack memory.
		return
	}
	def := rt.GetType(v.Type)
	switch def.Kind {
	case KindStruct, KindTuple, KindSum, KindArray, KindMap, KindString, KindFunction:
		ptr := v.Heap()
		if ptr == InvalidHeapPtr {
			return
		}
		visit(ptr)
	default:
		// primitives and newtypes-over-primitives carry no heap reference
	}
}

// scanObjectRefs visits the HeapPtrs directly owned by obj (one level, not
// transitive; the mark-sweep worklist handles transitivity).
func (rt *Runtime) scanObjectRefs(obj *HeapObject, visit func(HeapPtr)) {
	switch {
	case obj.Struct != nil:
		for _, f := range obj.Struct.Fields {
			rt.ScanValueHeapRefs(f, visit)
		}
	case obj.Tuple != nil:
		for _, e := range obj.Tuple.Elems {
			rt.ScanValueHeapRefs(e, visit)
		}
	case obj.Sum != nil:
		rt.ScanValueHeapRefs(obj.Sum.Payload, visit)
	case obj.Array != nil:
		for _, e := range obj.Array.Data {
			rt.ScanValueHeapRefs(e, visit)
		}
	case obj.Map != nil:
		for _, k := range obj.Map.keys {
			rt.ScanValueHeapRefs(k, visit)
		}
		for _, v := range obj.Map.vals {
			rt.ScanValueHeapRefs(v, visit)
		}
	case obj.Closure != nil:
		for _, uv := range obj.Closure.Upvalues {
			rt.ScanValueHeapRefs(*uv.Location, visit)
		}
	}
}

// Collect runs a mark-sweep pass: roots is called once with a visitor that
// the caller (the VM) uses to enumerate every live HeapPtr it can reach
// directly (registers, open/closed upvalues, frame stack layouts). Objects
// not reached, transitively, from those roots are freed.
func (rt *Runtime) Collect(roots func(RootVisitor)) {
	h := rt.Heap
	for i := range h.objects {
		h.objects[i].marked = false
	}

	var worklist []HeapPtr
	mark := func(ptr HeapPtr) {
		if ptr == InvalidHeapPtr || h.objects[ptr].marked {
			return
		}
		h.objects[ptr].marked = true
		worklist = append(worklist, ptr)
	}

	roots(funcRootVisitor(mark))

	for len(worklist) > 0 {
		ptr := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		rt.scanObjectRefs(h.Get(ptr), mark)
	}

	for i := 1; i < len(h.objects); i++ {
		if !h.objects[i].marked {
			h.objects[i] = HeapObject{} // free: drop references so cycles collect naturally
		}
	}
}
