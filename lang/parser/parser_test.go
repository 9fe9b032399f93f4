package parser_test

import (
	"testing"

	"github.com/jd28/smalls/lang/ast"
	"github.com/jd28/smalls/lang/parser"
	"github.com/jd28/smalls/lang/runtime"
	"github.com/jd28/smalls/lang/token"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, rt *runtime.Runtime, src string) *ast.Program {
	t.Helper()
	fset := token.NewFileSet()
	prog, err := parser.ParseFile(rt, fset, "test.sm", []byte(src))
	require.NoError(t, err)
	return prog
}

func findFunc(t *testing.T, prog *ast.Program, name string) *ast.FuncDecl {
	t.Helper()
	for _, d := range prog.Decls {
		if fn, ok := d.(*ast.FuncDecl); ok && fn.Name == name {
			return fn
		}
	}
	t.Fatalf("no function named %q", name)
	return nil
}

func TestParseBinaryExprInfersArithmeticType(t *testing.T) {
	rt := runtime.NewRuntime()
	prog := mustParse(t, rt, `
fn main(): int {
	return 1 + 2 * 3;
}
`)
	main := findFunc(t, prog, "main")
	ret := main.Body.Stmts[0].(*ast.ReturnStmt)
	bin := ret.Value.(*ast.BinaryExpr)
	require.Equal(t, "+", bin.Op)
	require.Equal(t, runtime.IntType, bin.Type())
	require.True(t, bin.IsConst())
}

func TestParseStringConcatLowersToIntrinsicCall(t *testing.T) {
	rt := runtime.NewRuntime()
	prog := mustParse(t, rt, `
fn main(): string {
	var a: string = "x";
	var b: string = "y";
	return a + b;
}
`)
	main := findFunc(t, prog, "main")
	ret := main.Body.Stmts[2].(*ast.ReturnStmt)
	call, ok := ret.Value.(*ast.CallExpr)
	require.True(t, ok, "string + string should lower to an intrinsic call, got %T", ret.Value)
	require.Equal(t, ast.CallIntrinsic, call.Kind)
	require.Equal(t, runtime.StringType, call.Type())
}

func TestParseForwardReferenceBetweenFunctions(t *testing.T) {
	rt := runtime.NewRuntime()
	prog := mustParse(t, rt, `
fn main(): int {
	return helper(1);
}

fn helper(x: int): int {
	return x + 1;
}
`)
	main := findFunc(t, prog, "main")
	ret := main.Body.Stmts[0].(*ast.ReturnStmt)
	call := ret.Value.(*ast.CallExpr)
	require.Equal(t, ast.CallDirect, call.Kind)
	require.Equal(t, runtime.IntType, call.Type())
}

func TestParseGlobalForwardReferencesLaterFunction(t *testing.T) {
	rt := runtime.NewRuntime()
	prog := mustParse(t, rt, `
var cached: int = compute();

fn compute(): int {
	return 42;
}

fn main(): int {
	return cached;
}
`)
	var global *ast.VarDecl
	for _, d := range prog.Decls {
		if v, ok := d.(*ast.VarDecl); ok {
			global = v
		}
	}
	require.NotNil(t, global)
	call := global.Names[0].Init.(*ast.CallExpr)
	require.Equal(t, ast.CallDirect, call.Kind)
	require.Equal(t, runtime.IntType, global.Names[0].Type)
}

func TestParseStructDeclAndFieldAccess(t *testing.T) {
	rt := runtime.NewRuntime()
	prog := mustParse(t, rt, `
struct Point {
	x: int,
	y: int,
}

fn dist2(p: Point): int {
	return p.x * p.x + p.y * p.y;
}
`)
	var structDecl *ast.StructDecl
	for _, d := range prog.Decls {
		if sd, ok := d.(*ast.StructDecl); ok {
			structDecl = sd
		}
	}
	require.NotNil(t, structDecl)
	require.NotEqual(t, runtime.InvalidTypeID, structDecl.Registered)

	dist2 := findFunc(t, prog, "dist2")
	ret := dist2.Body.Stmts[0].(*ast.ReturnStmt)
	add := ret.Value.(*ast.BinaryExpr)
	xTerm := add.Left.(*ast.BinaryExpr)
	xField := xTerm.Left.(*ast.FieldExpr)
	require.Equal(t, "x", xField.Field)
	require.Equal(t, runtime.IntType, xField.Type())
}

func TestParseStructLiteral(t *testing.T) {
	rt := runtime.NewRuntime()
	prog := mustParse(t, rt, `
struct Point {
	x: int,
	y: int,
}

fn origin(): Point {
	return Point{x: 0, y: 0};
}
`)
	origin := findFunc(t, prog, "origin")
	ret := origin.Body.Stmts[0].(*ast.ReturnStmt)
	lit := ret.Value.(*ast.StructLit)
	require.Len(t, lit.Fields, 2)
	require.Equal(t, "x", lit.Fields[0].Name)
}

func TestParseSumDeclSwitchBindsPayload(t *testing.T) {
	rt := runtime.NewRuntime()
	prog := mustParse(t, rt, `
sum Shape {
	Circle(int),
	Square(int),
}

fn area(s: Shape): int {
	switch (s) {
	case Circle(r):
		return r * r;
	case Square(side):
		return side * side;
	}
}
`)
	area := findFunc(t, prog, "area")
	sw := area.Body.Stmts[0].(*ast.SwitchStmt)
	require.Equal(t, ast.SwitchSum, sw.Kind)
	require.Len(t, sw.Cases, 2)
	require.Equal(t, "Circle", sw.Cases[0].VariantName)
	require.Equal(t, "r", sw.Cases[0].BindName)
}

func TestParseSumVariantConstructorNoPayload(t *testing.T) {
	rt := runtime.NewRuntime()
	prog := mustParse(t, rt, `
sum Opt {
	None,
	Some(int),
}

fn none(): Opt {
	return Opt::None;
}

fn some(): Opt {
	return Opt::Some(1);
}
`)
	none := findFunc(t, prog, "none")
	ret := none.Body.Stmts[0].(*ast.ReturnStmt)
	call := ret.Value.(*ast.CallExpr)
	require.Equal(t, ast.CallSumVariant, call.Kind)
	require.False(t, call.HasPayload)
	require.Equal(t, uint32(0), call.VariantTag)

	some := findFunc(t, prog, "some")
	ret2 := some.Body.Stmts[0].(*ast.ReturnStmt)
	call2 := ret2.Value.(*ast.CallExpr)
	require.Equal(t, ast.CallSumVariant, call2.Kind)
	require.True(t, call2.HasPayload)
	require.Equal(t, uint32(1), call2.VariantTag)
}

func TestParseNewtypeCast(t *testing.T) {
	rt := runtime.NewRuntime()
	prog := mustParse(t, rt, `
newtype UserID = int;

fn wrap(x: int): UserID {
	return UserID(x);
}
`)
	wrap := findFunc(t, prog, "wrap")
	ret := wrap.Body.Stmts[0].(*ast.ReturnStmt)
	call := ret.Value.(*ast.CallExpr)
	require.Equal(t, ast.CallNewtypeCast, call.Kind)
}

func TestParseIntrinsicCall(t *testing.T) {
	rt := runtime.NewRuntime()
	prog := mustParse(t, rt, `
fn length(xs: int[]): int {
	return array_len(xs);
}
`)
	length := findFunc(t, prog, "length")
	ret := length.Body.Stmts[0].(*ast.ReturnStmt)
	call := ret.Value.(*ast.CallExpr)
	require.Equal(t, ast.CallIntrinsic, call.Kind)
	require.Equal(t, runtime.IntType, call.Type())
}

func TestParseTupleIndexResolvesExactElementType(t *testing.T) {
	rt := runtime.NewRuntime()
	prog := mustParse(t, rt, `
fn firstOfPair(p: (int, string)): int {
	return p[0];
}
`)
	fn := findFunc(t, prog, "firstOfPair")
	ret := fn.Body.Stmts[0].(*ast.ReturnStmt)
	idx := ret.Value.(*ast.IndexExpr)
	require.Equal(t, runtime.IntType, idx.Type())
}

func TestParseArrayLiteralHintDrivesElementType(t *testing.T) {
	rt := runtime.NewRuntime()
	prog := mustParse(t, rt, `
fn makeThree(): int[] {
	var xs: int[] = [1, 2, 3];
	return xs;
}
`)
	fn := findFunc(t, prog, "makeThree")
	decl := fn.Body.Stmts[0].(*ast.VarDecl)
	lit := decl.Names[0].Init.(*ast.ArrayLit)
	require.Equal(t, runtime.IntType, lit.ElemType)
	require.Len(t, lit.Elems, 3)
}

func TestParseForEachOverArrayBindsIndexAndElement(t *testing.T) {
	rt := runtime.NewRuntime()
	prog := mustParse(t, rt, `
fn sum(xs: int[]): int {
	var total: int = 0;
	for (i, x in xs) {
		total = total + x;
	}
	return total;
}
`)
	fn := findFunc(t, prog, "sum")
	forEach := fn.Body.Stmts[1].(*ast.ForEachStmt)
	require.Equal(t, "i", forEach.KeyName)
	require.Equal(t, "x", forEach.ValueName)
}

func TestParseCompoundAssignmentDesugarsOp(t *testing.T) {
	rt := runtime.NewRuntime()
	prog := mustParse(t, rt, `
fn main(): int {
	var total: int = 0;
	total += 5;
	return total;
}
`)
	main := findFunc(t, prog, "main")
	assign := main.Body.Stmts[1].(*ast.AssignStmt)
	require.Equal(t, "+", assign.Op)
}

func TestParseGenericFunctionTreatsTypeParamAsAny(t *testing.T) {
	rt := runtime.NewRuntime()
	prog := mustParse(t, rt, `
fn identity!(T)(x: T): T {
	return x;
}

fn main(): int {
	return identity!(int)(5);
}
`)
	identity := findFunc(t, prog, "identity")
	require.Equal(t, []string{"T"}, identity.GenericNames)

	main := findFunc(t, prog, "main")
	ret := main.Body.Stmts[0].(*ast.ReturnStmt)
	call := ret.Value.(*ast.CallExpr)
	require.Equal(t, ast.CallGeneric, call.Kind)
	require.Equal(t, []runtime.TypeID{runtime.IntType}, call.TypeArgs)
}

func TestParseLambdaExpression(t *testing.T) {
	rt := runtime.NewRuntime()
	prog := mustParse(t, rt, `
fn main(): int {
	var add: (int, int) -> int = fn(a: int, b: int): int {
		return a + b;
	};
	return add(1, 2);
}
`)
	main := findFunc(t, prog, "main")
	decl := main.Body.Stmts[0].(*ast.VarDecl)
	lambda := decl.Names[0].Init.(*ast.LambdaExpr)
	require.Len(t, lambda.Params, 2)

	ret := main.Body.Stmts[1].(*ast.ReturnStmt)
	call := ret.Value.(*ast.CallExpr)
	require.Equal(t, ast.CallClosure, call.Kind)
}

func TestParseConstReassignmentIsRejectedAtParseTime(t *testing.T) {
	rt := runtime.NewRuntime()
	fset := token.NewFileSet()
	_, err := parser.ParseFile(rt, fset, "test.sm", []byte(`
fn main(): int {
	const x: int = 1;
	x = 2;
	return x;
}
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot assign to const")
}

func TestParseBreakOutsideLoopIsRejectedAtParseTime(t *testing.T) {
	rt := runtime.NewRuntime()
	fset := token.NewFileSet()
	_, err := parser.ParseFile(rt, fset, "test.sm", []byte(`
fn main(): int {
	break;
	return 0;
}
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "break outside of a loop")
}

func TestParseTypeofExpr(t *testing.T) {
	rt := runtime.NewRuntime()
	prog := mustParse(t, rt, `
fn main(): any {
	return type 1;
}
`)
	main := findFunc(t, prog, "main")
	ret := main.Body.Stmts[0].(*ast.ReturnStmt)
	_, ok := ret.Value.(*ast.TypeofExpr)
	require.True(t, ok)
}

func TestParseCastAndIsExpr(t *testing.T) {
	rt := runtime.NewRuntime()
	prog := mustParse(t, rt, `
fn main(): bool {
	var x: any = 1;
	return x is int;
}
`)
	main := findFunc(t, prog, "main")
	ret := main.Body.Stmts[1].(*ast.ReturnStmt)
	isExpr := ret.Value.(*ast.IsExpr)
	require.Equal(t, runtime.IntType, isExpr.TargetType)
}
