package runtime

import (
	"fmt"
	"strings"
)

// ExecuteBinaryOp implements the fixed set of primitive-typed binary
// operators (int/float arithmetic and comparisons, bool logic, string
// concatenation and comparison). It is called by the VM's opcode fast paths
// once operand types are known to be primitive, and by the AST constant
// evaluator while folding. Operand-overloaded types never reach here: the
// compiler resolves those to CALLEXT against the operator registered with
// RegisterBinaryOp.
func (rt *Runtime) ExecuteBinaryOp(op string, x, y Value) (Value, error) {
	xk, yk := rt.GetType(x.Type).Kind, rt.GetType(y.Type).Kind
	switch {
	case xk == KindInt && yk == KindInt:
		return intBinaryOp(op, x.Int(), y.Int())
	case xk == KindFloat && yk == KindFloat:
		return floatBinaryOp(op, x.Float(), y.Float())
	case xk == KindFloat && yk == KindInt:
		return floatBinaryOp(op, x.Float(), float32(y.Int()))
	case xk == KindInt && yk == KindFloat:
		return floatBinaryOp(op, float32(x.Int()), y.Float())
	case xk == KindBool && yk == KindBool:
		return boolBinaryOp(op, x.Bool(), y.Bool())
	case xk == KindString && yk == KindString:
		return rt.stringBinaryOp(op, x, y)
	case xk == KindAny && yk == KindAny:
		return anyBinaryOp(op, x, y)
	default:
		return Value{}, fmt.Errorf("unsupported operand types for %s: %s, %s", op, rt.GetType(x.Type), rt.GetType(y.Type))
	}
}

func intBinaryOp(op string, x, y int32) (Value, error) {
	switch op {
	case "+":
		return IntValue(x + y), nil
	case "-":
		return IntValue(x - y), nil
	case "*":
		return IntValue(x * y), nil
	case "/":
		if y == 0 {
			return Value{}, fmt.Errorf("division by zero")
		}
		return IntValue(x / y), nil
	case "%":
		if y == 0 {
			return Value{}, fmt.Errorf("division by zero")
		}
		return IntValue(x % y), nil
	case "&":
		return IntValue(x & y), nil
	case "|":
		return IntValue(x | y), nil
	case "^":
		return IntValue(x ^ y), nil
	case "<<":
		return IntValue(x << uint32(y)), nil
	case ">>":
		return IntValue(x >> uint32(y)), nil
	case "==":
		return BoolValue(x == y), nil
	case "!=":
		return BoolValue(x != y), nil
	case "<":
		return BoolValue(x < y), nil
	case "<=":
		return BoolValue(x <= y), nil
	case ">":
		return BoolValue(x > y), nil
	case ">=":
		return BoolValue(x >= y), nil
	}
	return Value{}, fmt.Errorf("unsupported int operator %q", op)
}

func floatBinaryOp(op string, x, y float32) (Value, error) {
	switch op {
	case "+":
		return FloatValue(x + y), nil
	case "-":
		return FloatValue(x - y), nil
	case "*":
		return FloatValue(x * y), nil
	case "/":
		if y == 0 {
			return Value{}, fmt.Errorf("division by zero")
		}
		return FloatValue(x / y), nil
	case "==":
		return BoolValue(x == y), nil
	case "!=":
		return BoolValue(x != y), nil
	case "<":
		return BoolValue(x < y), nil
	case "<=":
		return BoolValue(x <= y), nil
	case ">":
		return BoolValue(x > y), nil
	case ">=":
		return BoolValue(x >= y), nil
	}
	return Value{}, fmt.Errorf("unsupported float operator %q", op)
}

// anyBinaryOp compares two TYPEOF handles by the TypeID packed into their
// payload (runtime.TypeHandleValue); no other operator is defined on `any`.
func anyBinaryOp(op string, x, y Value) (Value, error) {
	switch op {
	case "==":
		return BoolValue(x.bits == y.bits), nil
	case "!=":
		return BoolValue(x.bits != y.bits), nil
	}
	return Value{}, fmt.Errorf("unsupported any operator %q", op)
}

func boolBinaryOp(op string, x, y bool) (Value, error) {
	switch op {
	case "==":
		return BoolValue(x == y), nil
	case "!=":
		return BoolValue(x != y), nil
	case "&":
		return BoolValue(x && y), nil
	case "|":
		return BoolValue(x || y), nil
	}
	return Value{}, fmt.Errorf("unsupported bool operator %q", op)
}

func (rt *Runtime) stringBinaryOp(op string, x, y Value) (Value, error) {
	xs, ys := rt.Heap.Get(x.Heap()).Str.String(), rt.Heap.Get(y.Heap()).Str.String()
	switch op {
	case "+":
		return HeapValue(StringType, rt.Heap.AllocString(xs+ys)), nil
	case "==":
		return BoolValue(xs == ys), nil
	case "!=":
		return BoolValue(xs != ys), nil
	case "<":
		return BoolValue(xs < ys), nil
	case "<=":
		return BoolValue(xs <= ys), nil
	case ">":
		return BoolValue(xs > ys), nil
	case ">=":
		return BoolValue(xs >= ys), nil
	}
	return Value{}, fmt.Errorf("unsupported string operator %q", op)
}

// ExecuteUnaryOp implements the primitive-typed unary operators: -, !, ~.
func (rt *Runtime) ExecuteUnaryOp(op string, x Value) (Value, error) {
	switch rt.GetType(x.Type).Kind {
	case KindInt:
		switch op {
		case "-":
			return IntValue(-x.Int()), nil
		case "~":
			return IntValue(^x.Int()), nil
		}
	case KindFloat:
		if op == "-" {
			return FloatValue(-x.Float()), nil
		}
	case KindBool:
		if op == "!" {
			return BoolValue(!x.Bool()), nil
		}
	}
	return Value{}, fmt.Errorf("unsupported unary operator %q on %s", op, rt.GetType(x.Type))
}

// Stringify renders v for diagnostics and implicit string conversion.
func (rt *Runtime) Stringify(v Value) string {
	def := rt.GetType(v.Type)
	switch def.Kind {
	case KindVoid:
		return "nil"
	case KindInt:
		return fmt.Sprintf("%d", v.Int())
	case KindFloat:
		return fmt.Sprintf("%g", v.Float())
	case KindBool:
		return fmt.Sprintf("%t", v.Bool())
	case KindString:
		return rt.Heap.Get(v.Heap()).Str.String()
	case KindObject:
		return fmt.Sprintf("object#%d", v.Object())
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "<%s>", def)
		return b.String()
	}
}
