package bytecode

import (
	"fmt"

	"github.com/jd28/smalls/lang/runtime"
	"github.com/jd28/smalls/lang/token"
)

// UpvalueDesc tells CLOSURE where to source an upvalue: either the
// enclosing function's register file (a fresh open upvalue) or the
// enclosing function's own upvalue list (re-exported down another level).
type UpvalueDesc struct {
	FromParentLocal bool
	Index           uint8
}

// CompiledFunction is one function body: its parameter/register shape,
// instruction stream, and the debug metadata needed to produce stack traces.
type CompiledFunction struct {
	Name          string
	ParamCount    int
	RegisterCount int
	ReturnType    runtime.TypeID
	FunctionType  runtime.TypeID
	Upvalues      []UpvalueDesc
	Code          []Instruction
	// Locations holds one entry per instruction in Code, used to render
	// stack traces and the verifier's diagnostics.
	Locations []token.Range
}

// FieldRef is one entry of a module's field-reference table: a struct/tuple
// field resolved to an absolute byte offset and its static type, consumed by
// the FIELDGET*/FIELDSET* fast-path opcodes via an index into this table.
// FieldIndex additionally gives the field's position in the struct's
// logical field list (runtime.StructDef.Fields / heap.StructInstance.Fields),
// which the VM uses directly since heap structs are stored as a Value slice
// rather than a raw byte buffer (see vm/frame.go's stackLayout doc comment
// for why byte-exact offsets aren't load-bearing here).
type FieldRef struct {
	StructType runtime.TypeID
	Offset     uint32
	FieldIndex int
	FieldType  runtime.TypeID
}

// TypeRef is one entry of a module's type-reference table, consumed by
// opcodes that need to name a type (NEWSTRUCT, CAST, IS, NEWARRAY, ...).
type TypeRef struct {
	Type runtime.TypeID
}

// ExternalRef is a lazily-resolved qualified name: an import path plus a
// symbol, resolved against the host's module directory on first CALLEXT and
// cached thereafter.
type ExternalRef struct {
	Module   string
	Name     string
	resolved bool
	Function int // index into the resolved module's Functions, once resolved
}

// Resolved reports whether this external reference has been looked up.
func (e *ExternalRef) Resolved() bool { return e.resolved }

// MarkResolved caches the result of a successful host-boundary lookup.
func (e *ExternalRef) MarkResolved(functionIdx int) {
	e.resolved = true
	e.Function = functionIdx
}

// Module is a fully compiled bytecode unit: its constant pool, interned
// strings, compiled functions, the three reference tables consumed by
// opcodes, and its module-level globals.
type Module struct {
	Name string

	Constants []runtime.Value
	Strings   *runtime.StringInterner

	Functions []*CompiledFunction
	// Init is the index into Functions of the synthetic __init function that
	// evaluates top-level const/var initializers, or -1 if the module has
	// none.
	Init int

	Fields    []FieldRef
	Types     []TypeRef
	Externals []ExternalRef

	// GlobalCount is the number of module-global slots GETGLOBAL/SETGLOBAL
	// index into. Globals is the backing storage, sized to GlobalCount by
	// the host once __init has run (spec.md §3 "module-global slot count
	// and a vector of Value for globals"). This is a module-owned vector,
	// distinct from the VM's 8192-slot shared register file that frames
	// address via base-offset indexing (spec.md §4.4).
	GlobalCount int
	Globals     []runtime.Value
}

// NewModule returns an empty module ready for the compiler to populate.
func NewModule(name string) *Module {
	return &Module{
		Name:    name,
		Strings: runtime.NewStringInterner(),
		Init:    -1,
	}
}

// FunctionByName returns the index of the function named n, or -1.
func (m *Module) FunctionByName(n string) int {
	for i, f := range m.Functions {
		if f.Name == n {
			return i
		}
	}
	return -1
}

func (m *Module) String() string {
	return fmt.Sprintf("module %s (%d functions, %d globals)", m.Name, len(m.Functions), m.GlobalCount)
}
