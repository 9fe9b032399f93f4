package maincmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jd28/smalls/lang/bytecode"
	"github.com/jd28/smalls/lang/compiler"
	"github.com/jd28/smalls/lang/parser"
	"github.com/jd28/smalls/lang/resolver"
	"github.com/jd28/smalls/lang/runtime"
	"github.com/jd28/smalls/lang/token"
)

// moduleName derives a module name from a source path: its base name with
// the extension stripped, matching how the teacher's CLI named chunks after
// the file they came from.
func moduleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// compileFile runs the full frontend (scan/parse/resolve/compile) on the
// named file, returning the Runtime its type table and heap are registered
// against and the FileSet used to render stack-trace positions.
// compiler.Compile runs bytecode.Verify itself, so a caller that only needs
// a verified module (run, disasm) is done once this returns with no error.
func compileFile(path string, src []byte, cfg Config) (*runtime.Runtime, *token.FileSet, *bytecode.Module, error) {
	rt := runtime.NewRuntime()
	rt.SetMaxGenericInstantiations(cfg.MaxGenericInstantiations)
	fset := token.NewFileSet()
	name := moduleName(path)

	prog, err := parser.ParseFile(rt, fset, name, src)
	if err != nil {
		return nil, nil, nil, err
	}

	file := fset.File(name)
	if err := resolver.ResolveProgram(file, prog); err != nil {
		return nil, nil, nil, err
	}

	mod, err := compiler.Compile(rt, prog)
	if err != nil {
		return nil, nil, nil, err
	}
	return rt, fset, mod, nil
}

// entryFunction locates m's entry point: the function named "main", failing
// if the module declares none.
func entryFunction(m *bytecode.Module) (*bytecode.CompiledFunction, error) {
	for _, fn := range m.Functions {
		if fn.Name == "main" {
			return fn, nil
		}
	}
	return nil, fmt.Errorf("module %s declares no main function", m.Name)
}
