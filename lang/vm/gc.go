package vm

import "github.com/jd28/smalls/lang/runtime"

// Collect runs a mark-sweep pass over the shared Runtime heap, rooted at
// every register and stack-value slot reachable from this VM's live frames
// (spec.md §4.4 "enumerate_roots"). Safe to call between top-level Execute
// calls; never call it from inside a NativeFunction callback, since a
// partially-built argument list may not yet be reachable from any frame.
func (vm *VM) Collect() {
	vm.rt.Collect(vm.enumerateRoots)
}

func (vm *VM) enumerateRoots(visitor runtime.RootVisitor) {
	for _, fr := range vm.frames {
		for i := 0; i < fr.fn.RegisterCount; i++ {
			vm.visitValueRoots(&vm.registers[fr.base+i], visitor)
		}
		for i := range fr.stack {
			vm.visitValueRoots(&fr.stack[i], visitor)
		}
		for _, uv := range fr.open {
			vm.visitValueRoots(uv.Location, visitor)
		}
		if fr.closure != nil {
			for _, uv := range fr.closure.Upvalues {
				vm.visitValueRoots(uv.Location, visitor)
			}
		}
	}
	for _, m := range vm.modules {
		for i := range m.Globals {
			vm.visitValueRoots(&m.Globals[i], visitor)
		}
		for _, c := range m.Constants {
			vm.visitValueRoots(&c, visitor)
		}
	}
}

func (vm *VM) visitValueRoots(v *runtime.Value, visitor runtime.RootVisitor) {
	vm.rt.ScanValueHeapRefs(*v, func(ptr runtime.HeapPtr) {
		visitor.VisitRoot(&ptr)
	})
}
