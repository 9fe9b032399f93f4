package parser_test

import (
	"testing"

	"github.com/jd28/smalls/lang/compiler"
	"github.com/jd28/smalls/lang/parser"
	"github.com/jd28/smalls/lang/resolver"
	"github.com/jd28/smalls/lang/runtime"
	"github.com/jd28/smalls/lang/token"
	"github.com/jd28/smalls/lang/vm"
	"github.com/stretchr/testify/require"
)

// runSrc drives src through the full frontend and executes its "main"
// function, mirroring the six end-to-end scenarios of spec.md §8.
func runSrc(t *testing.T, src string) (runtime.Value, error) {
	t.Helper()
	rt := runtime.NewRuntime()
	fset := token.NewFileSet()
	prog, err := parser.ParseFile(rt, fset, "test.sm", []byte(src))
	require.NoError(t, err)
	require.NoError(t, resolver.ResolveProgram(fset.File("test.sm"), prog))

	mod, err := compiler.Compile(rt, prog)
	require.NoError(t, err)

	machine := vm.New(rt)
	machine.RegisterModule(mod)
	machine.SetFileSet(fset)
	if mod.Init >= 0 {
		_, err := machine.Execute(mod, mod.Functions[mod.Init], nil)
		require.NoError(t, err)
	}

	for _, fn := range mod.Functions {
		if fn.Name == "main" {
			return machine.Execute(mod, fn, nil)
		}
	}
	t.Fatal("no main function compiled")
	return runtime.Value{}, nil
}

func TestE2ESumTypeSwitch(t *testing.T) {
	result, err := runSrc(t, `
sum R {
	Ok(int),
	Err(string),
}

fn classify(r: R): int {
	switch (r) {
	case Ok(x):
		return x;
	case Err(_):
		return -1;
	}
}

fn main(): int {
	return classify(R::Ok(42));
}
`)
	require.NoError(t, err)
	require.Equal(t, int32(42), result.Int())
}

func TestE2EGenericInstantiation(t *testing.T) {
	result, err := runSrc(t, `
fn id!(T)(x: T): T {
	return x;
}

fn main(): int {
	return id!(int)(7);
}
`)
	require.NoError(t, err)
	require.Equal(t, int32(7), result.Int())
}

func TestE2EClosureOverLoopVariableCapturesPerIteration(t *testing.T) {
	result, err := runSrc(t, `
fn main(): int {
	var c0: () -> int = fn(): int { return -1; };
	var c1: () -> int = fn(): int { return -1; };
	var c2: () -> int = fn(): int { return -1; };
	for (var i: int = 0; i < 3; i = i + 1) {
		if (i == 0) {
			c0 = fn(): int { return i; };
		}
		if (i == 1) {
			c1 = fn(): int { return i; };
		}
		if (i == 2) {
			c2 = fn(): int { return i; };
		}
	}
	return c0() * 100 + c1() * 10 + c2();
}
`)
	require.NoError(t, err)
	require.Equal(t, int32(12), result.Int())
}

func TestE2EFixedArrayFieldOfHeapStruct(t *testing.T) {
	result, err := runSrc(t, `
struct S {
	a: int[4],
}

fn main(): int {
	var s: S = S{a: [0, 0, 0, 0]};
	s.a[2] = 9;
	return s.a[2];
}
`)
	require.NoError(t, err)
	require.Equal(t, int32(9), result.Int())
}

func TestE2EDivisionByZeroTrace(t *testing.T) {
	_, err := runSrc(t, `
fn main(): int {
	return 1 / 0;
}
`)
	require.Error(t, err)

	var fail *vm.Failure
	require.ErrorAs(t, err, &fail)
	require.Contains(t, fail.Err.Error(), "division by zero")
	require.NotEmpty(t, fail.Trace.Frames)
	require.Equal(t, "main", fail.Trace.Frames[0].Function)
}

func TestE2EMapIterationAccumulatesRegardlessOfOrder(t *testing.T) {
	result, err := runSrc(t, `
fn main(): int {
	var m: map[int]string = {1: "a", 2: "b"};
	var total: int = 0;
	for (k, v in m) {
		total = total + k;
	}
	return total;
}
`)
	require.NoError(t, err)
	require.Equal(t, int32(3), result.Int())
}
