package resolver_test

import (
	"testing"

	"github.com/jd28/smalls/lang/parser"
	"github.com/jd28/smalls/lang/resolver"
	"github.com/jd28/smalls/lang/runtime"
	"github.com/jd28/smalls/lang/token"
	"github.com/stretchr/testify/require"
)

func resolveSrc(t *testing.T, src string) error {
	t.Helper()
	rt := runtime.NewRuntime()
	fset := token.NewFileSet()
	prog, err := parser.ParseFile(rt, fset, "test.sm", []byte(src))
	require.NoError(t, err)
	return resolver.ResolveProgram(fset.File("test.sm"), prog)
}

func TestResolverAcceptsWellFormedProgram(t *testing.T) {
	err := resolveSrc(t, `
fn add(a: int, b: int): int {
	return a + b;
}

fn main(): int {
	var total: int = 0;
	var i: int = 0;
	while (i < 10) {
		total = add(total, i);
		i = i + 1;
	}
	return total;
}
`)
	require.NoError(t, err)
}

func TestResolverRejectsConstReassignment(t *testing.T) {
	err := resolveSrc(t, `
fn main(): int {
	const x: int = 1;
	x = 2;
	return x;
}
`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot assign to const")
}

func TestResolverAllowsVarReassignment(t *testing.T) {
	err := resolveSrc(t, `
fn main(): int {
	var x: int = 1;
	x = 2;
	return x;
}
`)
	require.NoError(t, err)
}

func TestResolverRejectsBreakOutsideLoop(t *testing.T) {
	err := resolveSrc(t, `
fn main(): int {
	break;
	return 0;
}
`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "break outside of a loop")
}

func TestResolverRejectsContinueOutsideLoop(t *testing.T) {
	err := resolveSrc(t, `
fn main(): int {
	continue;
	return 0;
}
`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "continue outside of a loop")
}

func TestResolverAllowsBreakInsideLoop(t *testing.T) {
	err := resolveSrc(t, `
fn main(): int {
	var i: int = 0;
	while (i < 10) {
		if (i == 5) {
			break;
		}
		i = i + 1;
	}
	return i;
}
`)
	require.NoError(t, err)
}

func TestResolverRejectsBreakInsideLambdaInsideLoop(t *testing.T) {
	// A lambda is its own function boundary: a break inside one can never
	// reach the enclosing loop, so it's rejected exactly as if there were no
	// enclosing loop at all.
	err := resolveSrc(t, `
fn main(): int {
	var i: int = 0;
	while (i < 10) {
		var g: () -> void = fn() {
			break;
		};
		i = i + 1;
	}
	return i;
}
`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "break outside of a loop")
}

func TestResolverRejectsUnreachableStatementAfterReturn(t *testing.T) {
	err := resolveSrc(t, `
fn main(): int {
	return 1;
	return 2;
}
`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unreachable statement")
}

func TestResolverRejectsUnreachableStatementAfterBreak(t *testing.T) {
	err := resolveSrc(t, `
fn main(): int {
	var i: int = 0;
	while (i < 10) {
		break;
		i = i + 1;
	}
	return i;
}
`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unreachable statement")
}

func TestResolverReportsEveryErrorNotJustTheFirst(t *testing.T) {
	err := resolveSrc(t, `
fn main(): int {
	const x: int = 1;
	x = 2;
	break;
	return x;
}
`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot assign to const")
	require.Contains(t, err.Error(), "break outside of a loop")
}
