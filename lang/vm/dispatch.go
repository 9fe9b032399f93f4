package vm

import (
	"fmt"

	"github.com/jd28/smalls/lang/bytecode"
	"github.com/jd28/smalls/lang/runtime"
)

// dispatch runs frames until the frame stack unwinds back to entryDepth (or
// a failure latches), returning the entry call's result register value.
func (vm *VM) dispatch(entryDepth int) runtime.Value {
	var result runtime.Value

	for len(vm.frames) > entryDepth && !vm.failed {
		fr := vm.frames[len(vm.frames)-1]
		if fr.pc >= len(fr.fn.Code) {
			// Ran off the end without an explicit RETVOID: treat as RETVOID.
			vm.finishCall(fr, runtime.Nil, &result, entryDepth)
			continue
		}

		if vm.stepEnabled {
			vm.steps++
			if vm.steps > vm.stepLimit {
				vm.fail(ErrExecutionLimitExceeded)
				break
			}
		}

		ins := fr.fn.Code[fr.pc]
		fr.pc++
		op := ins.Op()

		switch op {
		case bytecode.NOP:

		case bytecode.LOADK:
			*fr.reg(vm, ins.A()) = fr.module.Constants[ins.Bx()]
		case bytecode.LOADI:
			*fr.reg(vm, ins.A()) = runtime.IntValue(ins.SBx())
		case bytecode.LOADB:
			*fr.reg(vm, ins.A()) = runtime.BoolValue(ins.B() != 0)
		case bytecode.LOADNIL:
			*fr.reg(vm, ins.A()) = runtime.Nil
		case bytecode.MOVE:
			*fr.reg(vm, ins.A()) = *fr.reg(vm, ins.B())

		case bytecode.ADD, bytecode.SUB, bytecode.MUL, bytecode.DIV, bytecode.MOD,
			bytecode.AND, bytecode.OR:
			x, y := *fr.reg(vm, ins.B()), *fr.reg(vm, ins.C())
			v, err := vm.rt.ExecuteBinaryOp(arithSymbol(op), x, y)
			if err != nil {
				vm.fail(err)
				break
			}
			*fr.reg(vm, ins.A()) = v
		case bytecode.NEG:
			v, err := vm.rt.ExecuteUnaryOp("-", *fr.reg(vm, ins.B()))
			if err != nil {
				vm.fail(err)
				break
			}
			*fr.reg(vm, ins.A()) = v
		case bytecode.NOT:
			v, err := vm.rt.ExecuteUnaryOp("!", *fr.reg(vm, ins.B()))
			if err != nil {
				vm.fail(err)
				break
			}
			*fr.reg(vm, ins.A()) = v

		case bytecode.EQ, bytecode.NE, bytecode.LT, bytecode.LE, bytecode.GT, bytecode.GE:
			v, err := vm.rt.ExecuteBinaryOp(compareSymbol(op), *fr.reg(vm, ins.B()), *fr.reg(vm, ins.C()))
			if err != nil {
				vm.fail(err)
				break
			}
			*fr.reg(vm, ins.A()) = v
		case bytecode.ISEQ, bytecode.ISNE, bytecode.ISLT, bytecode.ISLE, bytecode.ISGT, bytecode.ISGE:
			v, err := vm.rt.ExecuteBinaryOp(testSkipSymbol(op), *fr.reg(vm, ins.B()), *fr.reg(vm, ins.C()))
			if err != nil {
				vm.fail(err)
				break
			}
			if !v.Bool() {
				fr.pc++ // skip the following instruction (typically a JMP)
			}

		case bytecode.JMP:
			fr.pc += int(ins.Jump())
			if ins.Jump() < 0 {
				vm.chargeGas()
			}
		case bytecode.JMPT:
			if fr.reg(vm, ins.A()).Bool() {
				fr.pc += int(ins.SBx())
				if ins.SBx() < 0 {
					vm.chargeGas()
				}
			}
		case bytecode.JMPF:
			if !fr.reg(vm, ins.A()).Bool() {
				fr.pc += int(ins.SBx())
				if ins.SBx() < 0 {
					vm.chargeGas()
				}
			}

		case bytecode.CALL:
			vm.execCall(fr, ins)
		case bytecode.CALLEXT, bytecode.CALLEXT_R:
			vm.execCallExt(fr, ins)
		case bytecode.CALLNATIVE:
			vm.execCallNative(fr, ins)
		case bytecode.CALLINTR, bytecode.CALLINTR_R:
			vm.execCallIntrinsic(fr, ins)
		case bytecode.CALLCLOSURE:
			vm.execCallClosure(fr, ins)
		case bytecode.RET:
			v := *fr.reg(vm, ins.A())
			vm.finishCall(fr, v, &result, entryDepth)
			continue
		case bytecode.RETVOID:
			vm.finishCall(fr, runtime.Nil, &result, entryDepth)
			continue

		case bytecode.NEWARRAY:
			t := fr.module.Types[ins.Bx()].Type
			elem := vm.rt.GetType(t).Array.Elem
			*fr.reg(vm, ins.A()) = runtime.HeapValue(t, vm.rt.Heap.AllocArray(elem, nil))
		case bytecode.GETARRAY:
			arr := vm.rt.Heap.Get(fr.reg(vm, ins.B()).Heap()).Array
			idx := int(fr.reg(vm, ins.C()).Int())
			if idx < 0 || idx >= len(arr.Data) {
				vm.fail(ErrIndexOutOfRange)
				break
			}
			*fr.reg(vm, ins.A()) = arr.Data[idx]
		case bytecode.SETARRAY:
			arr := vm.rt.Heap.Get(fr.reg(vm, ins.A()).Heap()).Array
			idx := int(fr.reg(vm, ins.B()).Int())
			if idx < 0 || idx >= len(arr.Data) {
				vm.fail(ErrIndexOutOfRange)
				break
			}
			arr.Data[idx] = *fr.reg(vm, ins.C())

		case bytecode.NEWMAP:
			t := fr.module.Types[ins.Bx()].Type
			def := vm.rt.GetType(t).Map
			*fr.reg(vm, ins.A()) = runtime.HeapValue(t, vm.rt.Heap.AllocMap(def.Key, def.Value))
		case bytecode.MAPGET:
			m := vm.rt.Heap.Get(fr.reg(vm, ins.B()).Heap()).Map
			v, _ := m.Get(vm.rt, *fr.reg(vm, ins.C()))
			*fr.reg(vm, ins.A()) = v
		case bytecode.MAPSET:
			m := vm.rt.Heap.Get(fr.reg(vm, ins.A()).Heap()).Map
			m.Set(vm.rt, *fr.reg(vm, ins.B()), *fr.reg(vm, ins.C()))

		case bytecode.NEWSTRUCT:
			t := fr.module.Types[ins.Bx()].Type
			*fr.reg(vm, ins.A()) = runtime.HeapValue(t, vm.rt.Heap.AllocStruct(t))
		case bytecode.GETFIELD:
			ref := fr.module.Fields[ins.B()]
			s := vm.rt.Heap.Get(fr.reg(vm, ins.C()).Heap()).Struct
			*fr.reg(vm, ins.A()) = s.Fields[ref.FieldIndex]
		case bytecode.SETFIELD:
			ref := fr.module.Fields[ins.B()]
			s := vm.rt.Heap.Get(fr.reg(vm, ins.A()).Heap()).Struct
			s.Fields[ref.FieldIndex] = *fr.reg(vm, ins.C())

		case bytecode.FIELDGETI, bytecode.FIELDGETF, bytecode.FIELDGETB,
			bytecode.FIELDGETS, bytecode.FIELDGETO, bytecode.FIELDGETH,
			bytecode.FIELDGETI_R, bytecode.FIELDGETF_R, bytecode.FIELDGETB_R,
			bytecode.FIELDGETS_R, bytecode.FIELDGETO_R, bytecode.FIELDGETH_R:
			ref := fr.module.Fields[ins.B()]
			s := vm.rt.Heap.Get(fr.reg(vm, ins.C()).Heap()).Struct
			*fr.reg(vm, ins.A()) = s.Fields[ref.FieldIndex]
		case bytecode.FIELDSETI, bytecode.FIELDSETF, bytecode.FIELDSETB,
			bytecode.FIELDSETS, bytecode.FIELDSETO, bytecode.FIELDSETH,
			bytecode.FIELDSETI_R, bytecode.FIELDSETF_R, bytecode.FIELDSETB_R,
			bytecode.FIELDSETS_R, bytecode.FIELDSETO_R, bytecode.FIELDSETH_R:
			ref := fr.module.Fields[ins.B()]
			s := vm.rt.Heap.Get(fr.reg(vm, ins.C()).Heap()).Struct
			s.Fields[ref.FieldIndex] = *fr.reg(vm, ins.A())

		case bytecode.FIELDGETI_OFF_R, bytecode.FIELDGETF_OFF_R, bytecode.FIELDGETB_OFF_R,
			bytecode.FIELDGETS_OFF_R, bytecode.FIELDGETO_OFF_R, bytecode.FIELDGETH_OFF_R:
			// Fixed-array-field-of-struct fused access: B names the base
			// field ref, C the struct register; the element index was
			// already folded into a distinct ref table entry at compile
			// time (spec.md §4.2 "fuses into FIELDGETx_OFF_R").
			ref := fr.module.Fields[ins.B()]
			s := vm.rt.Heap.Get(fr.reg(vm, ins.C()).Heap()).Struct
			*fr.reg(vm, ins.A()) = s.Fields[ref.FieldIndex]
		case bytecode.FIELDSETI_OFF_R, bytecode.FIELDSETF_OFF_R, bytecode.FIELDSETB_OFF_R,
			bytecode.FIELDSETS_OFF_R, bytecode.FIELDSETO_OFF_R, bytecode.FIELDSETH_OFF_R:
			ref := fr.module.Fields[ins.B()]
			s := vm.rt.Heap.Get(fr.reg(vm, ins.C()).Heap()).Struct
			s.Fields[ref.FieldIndex] = *fr.reg(vm, ins.A())

		case bytecode.NEWTUPLE:
			t := fr.module.Types[ins.Bx()].Type
			def := vm.rt.GetType(t).Tuple
			elems := make([]runtime.Value, len(def.Elements))
			for i := range elems {
				elems[i] = runtime.Nil
			}
			*fr.reg(vm, ins.A()) = runtime.HeapValue(t, vm.rt.Heap.AllocTuple(t, elems))
		case bytecode.GETTUPLE:
			tup := vm.rt.Heap.Get(fr.reg(vm, ins.B()).Heap()).Tuple
			*fr.reg(vm, ins.A()) = tup.Elems[ins.C()]

		case bytecode.NEWSUM:
			t := fr.module.Types[ins.Bx()].Type
			*fr.reg(vm, ins.A()) = runtime.HeapValue(t, vm.rt.Heap.AllocSum(t, 0, runtime.Nil))
		case bytecode.SUMINIT:
			// Unit variants still pass a C register (holding Nil, loaded by
			// the compiler beforehand) so this opcode never special-cases
			// "no payload".
			sum := vm.rt.Heap.Get(fr.reg(vm, ins.A()).Heap()).Sum
			sum.Tag = uint32(ins.B())
			sum.Payload = *fr.reg(vm, ins.C())
		case bytecode.SUMGETTAG:
			sum := vm.rt.Heap.Get(fr.reg(vm, ins.B()).Heap()).Sum
			*fr.reg(vm, ins.A()) = runtime.IntValue(int32(sum.Tag))
		case bytecode.SUMGETPAYLOAD:
			sum := vm.rt.Heap.Get(fr.reg(vm, ins.B()).Heap()).Sum
			*fr.reg(vm, ins.A()) = sum.Payload

		case bytecode.STACK_ALLOC:
			t := fr.module.Types[ins.Bx()].Type
			count := stackSlotCount(vm.rt, t)
			off := fr.allocStack(count, t)
			*fr.reg(vm, ins.A()) = runtime.StackValue(t, uint32(off))
		case bytecode.STACK_COPY:
			src := *fr.reg(vm, ins.B())
			layout := fr.layoutAt(int(src.StackOffset()))
			off := fr.allocStack(layout.Count, layout.Type)
			copy(fr.stack[off:off+layout.Count], fr.stack[layout.Offset:layout.Offset+layout.Count])
			*fr.reg(vm, ins.A()) = runtime.StackValue(src.Type, uint32(off))
		case bytecode.STACK_FIELDGET, bytecode.STACK_FIELDGET_R:
			ref := fr.module.Fields[ins.B()]
			base := int(fr.reg(vm, ins.C()).StackOffset())
			*fr.reg(vm, ins.A()) = fr.stack[base+ref.FieldIndex]
		case bytecode.STACK_FIELDSET, bytecode.STACK_FIELDSET_R:
			ref := fr.module.Fields[ins.B()]
			base := int(fr.reg(vm, ins.A()).StackOffset())
			fr.stack[base+ref.FieldIndex] = *fr.reg(vm, ins.C())
		case bytecode.STACK_INDEXGET:
			base := int(fr.reg(vm, ins.B()).StackOffset())
			idx := int(fr.reg(vm, ins.C()).Int())
			layout := fr.layoutAt(base)
			if idx < 0 || idx >= layout.Count {
				vm.fail(ErrIndexOutOfRange)
				break
			}
			*fr.reg(vm, ins.A()) = fr.stack[base+idx]
		case bytecode.STACK_INDEXSET:
			base := int(fr.reg(vm, ins.A()).StackOffset())
			idx := int(fr.reg(vm, ins.B()).Int())
			layout := fr.layoutAt(base)
			if idx < 0 || idx >= layout.Count {
				vm.fail(ErrIndexOutOfRange)
				break
			}
			fr.stack[base+idx] = *fr.reg(vm, ins.C())

		case bytecode.CAST:
			vm.execCast(fr, ins)
		case bytecode.IS:
			target := fr.module.Types[ins.Bx()].Type
			v := *fr.reg(vm, ins.A())
			*fr.reg(vm, ins.A()) = runtime.BoolValue(v.Type == target)
		case bytecode.TYPEOF:
			// Resolved Open Question (b): returns an any-typed handle
			// carrying the operand's TypeID, comparable via == (DESIGN.md).
			*fr.reg(vm, ins.A()) = runtime.TypeHandleValue(fr.reg(vm, ins.B()).Type)

		case bytecode.GETGLOBAL:
			*fr.reg(vm, ins.A()) = fr.module.Globals[ins.Bx()]
		case bytecode.SETGLOBAL:
			fr.module.Globals[ins.Bx()] = *fr.reg(vm, ins.A())

		case bytecode.CLOSURE:
			vm.execClosure(fr, ins)
		case bytecode.GETUPVAL:
			*fr.reg(vm, ins.A()) = *fr.closure.Upvalues[ins.B()].Location
		case bytecode.SETUPVAL:
			*fr.closure.Upvalues[ins.B()].Location = *fr.reg(vm, ins.A())
		case bytecode.CLOSEUPVALS:
			for _, uv := range fr.open {
				uv.Close()
			}
			fr.open = nil

		default:
			vm.fail(fmt.Errorf("unimplemented opcode %s", op))
		}
	}

	return result
}

func stackSlotCount(rt *runtime.Runtime, t runtime.TypeID) int {
	def := rt.GetType(t)
	switch def.Kind {
	case runtime.KindStruct:
		return len(def.Struct.Fields)
	case runtime.KindTuple:
		return len(def.Tuple.Elements)
	case runtime.KindFixedArray:
		return def.Fixed.Count
	default:
		return 1
	}
}

func arithSymbol(op bytecode.Opcode) string {
	switch op {
	case bytecode.ADD:
		return "+"
	case bytecode.SUB:
		return "-"
	case bytecode.MUL:
		return "*"
	case bytecode.DIV:
		return "/"
	case bytecode.MOD:
		return "%"
	case bytecode.AND:
		return "&"
	case bytecode.OR:
		return "|"
	}
	return "?"
}

func compareSymbol(op bytecode.Opcode) string {
	switch op {
	case bytecode.EQ:
		return "=="
	case bytecode.NE:
		return "!="
	case bytecode.LT:
		return "<"
	case bytecode.LE:
		return "<="
	case bytecode.GT:
		return ">"
	case bytecode.GE:
		return ">="
	}
	return "?"
}

func testSkipSymbol(op bytecode.Opcode) string {
	switch op {
	case bytecode.ISEQ:
		return "=="
	case bytecode.ISNE:
		return "!="
	case bytecode.ISLT:
		return "<"
	case bytecode.ISLE:
		return "<="
	case bytecode.ISGT:
		return ">"
	case bytecode.ISGE:
		return ">="
	}
	return "?"
}
