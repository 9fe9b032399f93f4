package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jd28/smalls/lang/bytecode"
	"github.com/jd28/smalls/lang/intrinsic"
	"github.com/jd28/smalls/lang/runtime"
)

// execCallIntrinsic handles CALLINTR/CALLINTR_R: B is an intrinsic.ID, args
// are gathered the same way as every other CALL* opcode. CALLINTR writes a
// single result to A; CALLINTR_R is used only by intrinsics that report more
// than one result (the map-iterator family), writing consecutive registers
// starting at A.
func (vm *VM) execCallIntrinsic(fr *frame, ins bytecode.Instruction) {
	a, b, c := ins.A(), ins.B(), ins.C()
	id := intrinsic.ID(b)
	args := gatherArgs(vm, fr, a, c)

	if !vm.chargeGas() {
		return
	}

	switch id {
	case intrinsic.BitAnd, intrinsic.BitOr, intrinsic.BitXor, intrinsic.BitShl, intrinsic.BitShr:
		if err := wantArgs(args, 2); err != nil {
			vm.fail(err)
			return
		}
		x, y := args[0].Int(), args[1].Int()
		var r int32
		switch id {
		case intrinsic.BitAnd:
			r = x & y
		case intrinsic.BitOr:
			r = x | y
		case intrinsic.BitXor:
			r = x ^ y
		case intrinsic.BitShl:
			r = x << uint32(y)
		case intrinsic.BitShr:
			r = x >> uint32(y)
		}
		*fr.reg(vm, a) = runtime.IntValue(r)
	case intrinsic.BitNot:
		if err := wantArgs(args, 1); err != nil {
			vm.fail(err)
			return
		}
		*fr.reg(vm, a) = runtime.IntValue(^args[0].Int())

	case intrinsic.ArrayPush:
		if err := wantArgs(args, 2); err != nil {
			vm.fail(err)
			return
		}
		arr := vm.rt.Heap.Get(args[0].Heap()).Array
		arr.Data = append(arr.Data, args[1])
	case intrinsic.ArrayPop:
		if err := wantArgs(args, 1); err != nil {
			vm.fail(err)
			return
		}
		arr := vm.rt.Heap.Get(args[0].Heap()).Array
		if len(arr.Data) == 0 {
			vm.fail(ErrIndexOutOfRange)
			return
		}
		last := arr.Data[len(arr.Data)-1]
		arr.Data = arr.Data[:len(arr.Data)-1]
		*fr.reg(vm, a) = last
	case intrinsic.ArrayLen:
		if err := wantArgs(args, 1); err != nil {
			vm.fail(err)
			return
		}
		arr := vm.rt.Heap.Get(args[0].Heap()).Array
		*fr.reg(vm, a) = runtime.IntValue(int32(len(arr.Data)))
	case intrinsic.ArrayClear:
		if err := wantArgs(args, 1); err != nil {
			vm.fail(err)
			return
		}
		arr := vm.rt.Heap.Get(args[0].Heap()).Array
		arr.Data = arr.Data[:0]
	case intrinsic.ArrayReserve:
		if err := wantArgs(args, 2); err != nil {
			vm.fail(err)
			return
		}
		arr := vm.rt.Heap.Get(args[0].Heap()).Array
		n := int(args[1].Int())
		if cap(arr.Data) < n {
			grown := make([]runtime.Value, len(arr.Data), n)
			copy(grown, arr.Data)
			arr.Data = grown
		}
	case intrinsic.ArrayGet:
		if err := wantArgs(args, 2); err != nil {
			vm.fail(err)
			return
		}
		arr := vm.rt.Heap.Get(args[0].Heap()).Array
		idx := int(args[1].Int())
		if idx < 0 || idx >= len(arr.Data) {
			vm.fail(ErrIndexOutOfRange)
			return
		}
		*fr.reg(vm, a) = arr.Data[idx]
	case intrinsic.ArraySet:
		if err := wantArgs(args, 3); err != nil {
			vm.fail(err)
			return
		}
		arr := vm.rt.Heap.Get(args[0].Heap()).Array
		idx := int(args[1].Int())
		if idx < 0 || idx >= len(arr.Data) {
			vm.fail(ErrIndexOutOfRange)
			return
		}
		arr.Data[idx] = args[2]

	case intrinsic.MapLen:
		if err := wantArgs(args, 1); err != nil {
			vm.fail(err)
			return
		}
		m := vm.rt.Heap.Get(args[0].Heap()).Map
		*fr.reg(vm, a) = runtime.IntValue(int32(m.Len()))
	case intrinsic.MapGet:
		if err := wantArgs(args, 2); err != nil {
			vm.fail(err)
			return
		}
		m := vm.rt.Heap.Get(args[0].Heap()).Map
		v, _ := m.Get(vm.rt, args[1])
		*fr.reg(vm, a) = v
	case intrinsic.MapSet:
		if err := wantArgs(args, 3); err != nil {
			vm.fail(err)
			return
		}
		m := vm.rt.Heap.Get(args[0].Heap()).Map
		m.Set(vm.rt, args[1], args[2])
	case intrinsic.MapHas:
		if err := wantArgs(args, 2); err != nil {
			vm.fail(err)
			return
		}
		m := vm.rt.Heap.Get(args[0].Heap()).Map
		*fr.reg(vm, a) = runtime.BoolValue(m.Has(vm.rt, args[1]))
	case intrinsic.MapRemove:
		if err := wantArgs(args, 2); err != nil {
			vm.fail(err)
			return
		}
		m := vm.rt.Heap.Get(args[0].Heap()).Map
		*fr.reg(vm, a) = runtime.BoolValue(m.Remove(vm.rt, args[1]))
	case intrinsic.MapClear:
		if err := wantArgs(args, 1); err != nil {
			vm.fail(err)
			return
		}
		vm.rt.Heap.Get(args[0].Heap()).Map.Clear()
	case intrinsic.MapIterBegin:
		if err := wantArgs(args, 1); err != nil {
			vm.fail(err)
			return
		}
		*fr.reg(vm, a) = runtime.IntValue(0)
	case intrinsic.MapIterNext:
		// Triple result (ok, key, value) written to A, A+1, A+2, per the
		// CALLINTR_R multi-result convention.
		if err := wantArgs(args, 2); err != nil {
			vm.fail(err)
			return
		}
		m := vm.rt.Heap.Get(args[0].Heap()).Map
		idx := int(args[1].Int())
		if idx >= m.Len() {
			*fr.reg(vm, a) = runtime.BoolValue(false)
			return
		}
		*fr.reg(vm, a) = runtime.BoolValue(true)
		*fr.reg(vm, a+1) = m.Keys()[idx]
		*fr.reg(vm, a+2) = m.Values()[idx]
	case intrinsic.MapIterEnd:

	case intrinsic.StringLen:
		if err := wantArgs(args, 1); err != nil {
			vm.fail(err)
			return
		}
		*fr.reg(vm, a) = runtime.IntValue(int32(vm.rt.Heap.Get(args[0].Heap()).Str.Length))
	case intrinsic.StringSubstr:
		if err := wantArgs(args, 3); err != nil {
			vm.fail(err)
			return
		}
		s := vm.rt.Heap.Get(args[0].Heap()).Str
		off, length := int(args[1].Int()), int(args[2].Int())
		if off < 0 || length < 0 || off+length > s.Length {
			vm.fail(ErrIndexOutOfRange)
			return
		}
		*fr.reg(vm, a) = runtime.HeapValue(runtime.StringType, vm.rt.Heap.AllocSubstring(s, off, length))
	case intrinsic.StringCharAt:
		if err := wantArgs(args, 2); err != nil {
			vm.fail(err)
			return
		}
		s := vm.rt.Heap.Get(args[0].Heap()).Str.String()
		idx := int(args[1].Int())
		if idx < 0 || idx >= len(s) {
			vm.fail(ErrIndexOutOfRange)
			return
		}
		*fr.reg(vm, a) = runtime.IntValue(int32(s[idx]))
	case intrinsic.StringFind:
		if err := wantArgs(args, 2); err != nil {
			vm.fail(err)
			return
		}
		s := vm.rt.Heap.Get(args[0].Heap()).Str.String()
		needle := vm.rt.Heap.Get(args[1].Heap()).Str.String()
		*fr.reg(vm, a) = runtime.IntValue(int32(strings.Index(s, needle)))
	case intrinsic.StringContains:
		*fr.reg(vm, a) = runtime.BoolValue(strings.Contains(heapStr(vm, args[0]), heapStr(vm, args[1])))
	case intrinsic.StringStartsWith:
		*fr.reg(vm, a) = runtime.BoolValue(strings.HasPrefix(heapStr(vm, args[0]), heapStr(vm, args[1])))
	case intrinsic.StringEndsWith:
		*fr.reg(vm, a) = runtime.BoolValue(strings.HasSuffix(heapStr(vm, args[0]), heapStr(vm, args[1])))
	case intrinsic.StringToUpper:
		*fr.reg(vm, a) = vm.allocString(strings.ToUpper(heapStr(vm, args[0])))
	case intrinsic.StringToLower:
		*fr.reg(vm, a) = vm.allocString(strings.ToLower(heapStr(vm, args[0])))
	case intrinsic.StringTrim:
		*fr.reg(vm, a) = vm.allocString(strings.TrimSpace(heapStr(vm, args[0])))
	case intrinsic.StringReplace:
		if err := wantArgs(args, 3); err != nil {
			vm.fail(err)
			return
		}
		*fr.reg(vm, a) = vm.allocString(strings.ReplaceAll(heapStr(vm, args[0]), heapStr(vm, args[1]), heapStr(vm, args[2])))
	case intrinsic.StringSplit:
		if err := wantArgs(args, 2); err != nil {
			vm.fail(err)
			return
		}
		parts := strings.Split(heapStr(vm, args[0]), heapStr(vm, args[1]))
		elems := make([]runtime.Value, len(parts))
		for i, p := range parts {
			elems[i] = vm.allocString(p)
		}
		*fr.reg(vm, a) = runtime.HeapValue(vm.rt.RegisterArrayType(runtime.StringType), vm.rt.Heap.AllocArray(runtime.StringType, elems))
	case intrinsic.StringJoin:
		if err := wantArgs(args, 2); err != nil {
			vm.fail(err)
			return
		}
		arr := vm.rt.Heap.Get(args[0].Heap()).Array
		sep := heapStr(vm, args[1])
		parts := make([]string, len(arr.Data))
		for i, v := range arr.Data {
			parts[i] = heapStr(vm, v)
		}
		*fr.reg(vm, a) = vm.allocString(strings.Join(parts, sep))
	case intrinsic.StringToInt:
		n, err := strconv.ParseInt(heapStr(vm, args[0]), 10, 32)
		if err != nil {
			vm.fail(err)
			return
		}
		*fr.reg(vm, a) = runtime.IntValue(int32(n))
	case intrinsic.StringToFloat:
		f, err := strconv.ParseFloat(heapStr(vm, args[0]), 32)
		if err != nil {
			vm.fail(err)
			return
		}
		*fr.reg(vm, a) = runtime.FloatValue(float32(f))
	case intrinsic.StringFromCharCode:
		if err := wantArgs(args, 1); err != nil {
			vm.fail(err)
			return
		}
		*fr.reg(vm, a) = vm.allocString(string(rune(args[0].Int())))
	case intrinsic.StringConcat:
		*fr.reg(vm, a) = vm.allocString(heapStr(vm, args[0]) + heapStr(vm, args[1]))
	case intrinsic.StringAppend:
		if err := wantArgs(args, 2); err != nil {
			vm.fail(err)
			return
		}
		*fr.reg(vm, a) = vm.allocString(heapStr(vm, args[0]) + heapStr(vm, args[1]))
	case intrinsic.StringInsert:
		if err := wantArgs(args, 3); err != nil {
			vm.fail(err)
			return
		}
		s, at, ins := heapStr(vm, args[0]), int(args[1].Int()), heapStr(vm, args[2])
		if at < 0 || at > len(s) {
			vm.fail(ErrIndexOutOfRange)
			return
		}
		*fr.reg(vm, a) = vm.allocString(s[:at] + ins + s[at:])
	case intrinsic.StringReverse:
		s := []rune(heapStr(vm, args[0]))
		for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
			s[i], s[j] = s[j], s[i]
		}
		*fr.reg(vm, a) = vm.allocString(string(s))

	default:
		vm.fail(fmt.Errorf("unknown intrinsic id %d", id))
	}
}

func heapStr(vm *VM, v runtime.Value) string {
	return vm.rt.Heap.Get(v.Heap()).Str.String()
}

func (vm *VM) allocString(s string) runtime.Value {
	return runtime.HeapValue(runtime.StringType, vm.rt.Heap.AllocString(s))
}

func wantArgs(args []runtime.Value, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: want %d, got %d", ErrArgumentCountMismatch, n, len(args))
	}
	return nil
}
