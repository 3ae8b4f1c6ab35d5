// Package vm executes compiled Gila Chunks: a call stack of StackFrames
// running register-based instructions against a managed Heap. Control
// flow mirrors spec.md §4.5 exactly — a CALL pushes a frame and RETURN
// pops one — but this implementation lets Go's own call stack carry
// that nesting (VM.call recurses into itself for CALL and TRY) rather
// than hand-rolling a trampoline loop; vm.frames is still the explicit,
// walkable slice of every active frame that mark-and-sweep needs as its
// roots, so the spec's Frame/GC model is preserved even though the
// control-flow plumbing is simpler than a manual stack machine (see
// DESIGN.md).
package vm

import (
	"strconv"

	"gila/compiler"
)

// VM runs Chunks against a heap and a process context. Zero value is not
// usable; construct with New.
type VM struct {
	frames  []*StackFrame
	heap    *Heap
	proc    *ProcessContext
	shared  *SharedContext
	heapCap int // 0 = unbounded
}

// New creates a VM with a fresh heap and an empty native function table.
func New() *VM {
	return &VM{heap: NewHeap(), proc: NewProcessContext(), shared: &SharedContext{}}
}

// ProcessContext exposes the native function table so a host can
// register native modules before a Run (spec.md §6's native ABI).
func (vm *VM) ProcessContext() *ProcessContext {
	return vm.proc
}

// WithHeapLimit caps the number of simultaneously live heap slots; NEW
// beyond the cap raises HeapExhausted instead of growing without bound
// (spec.md §6). A limit of 0 (the default) means unbounded.
func (vm *VM) WithHeapLimit(n int) *VM {
	vm.heapCap = n
	return vm
}

// Run executes chunk as the top-level program and returns the value the
// engine halts with: the operand of its final RETURN, or (per spec.md
// §4.5's "main loop") the last-written register if IP runs off the end
// of the instruction stream without one.
func (vm *VM) Run(chunk *compiler.Chunk) (compiler.Object, error) {
	return vm.call(chunk, nil)
}

// call pushes a new frame for chunk, copying args into its first
// registers, and runs it to completion — recursing into itself for any
// nested CALL/TRY, so Gila's call depth rides Go's own. The frame is
// always popped again before call returns, success or error, so
// vm.frames reflects exactly the currently-active call chain for GC
// purposes at every point during execution.
func (vm *VM) call(chunk *compiler.Chunk, args []compiler.Object) (compiler.Object, error) {
	chunk.Relocate(vm.heap)
	frame := newFrame(chunk)
	copy(frame.Registers, args)
	vm.frames = append(vm.frames, frame)
	defer func() { vm.frames = vm.frames[:len(vm.frames)-1] }()

	for {
		if frame.IP >= len(frame.Chunk.Instructions) {
			return frame.Registers[frame.LastWritten], nil
		}
		instr := frame.Chunk.Instructions[frame.IP]
		if instr.Op == compiler.RETURN {
			return frame.Registers[instr.A0], nil
		}
		if err := vm.exec(frame, instr); err != nil {
			return compiler.Object{}, err
		}
	}
}

// exec dispatches and executes one non-RETURN instruction, advancing
// frame.IP (to IP+1, or to a jump target) before returning.
func (vm *VM) exec(frame *StackFrame, instr compiler.Instruction) error {
	switch instr.Op {
	case compiler.LOAD_CONST:
		return vm.execLoadConst(frame, instr)
	case compiler.MOV:
		frame.Registers[instr.A2] = frame.Registers[instr.A0]
		frame.LastWritten = instr.A2
		frame.IP++
		return nil
	case compiler.GET_GLOBAL:
		frame.Registers[instr.A2] = vm.frames[0].Registers[instr.A0]
		frame.LastWritten = instr.A2
		frame.IP++
		return nil
	case compiler.ADDI:
		frame.Registers[instr.A2] = compiler.Object{Kind: compiler.ObjI64, I64: int64(instr.A0) + int64(instr.A1)}
		frame.LastWritten = instr.A2
		frame.IP++
		return nil
	case compiler.SUBI:
		frame.Registers[instr.A2] = compiler.Object{Kind: compiler.ObjI64, I64: int64(instr.A0) - int64(instr.A1)}
		frame.LastWritten = instr.A2
		frame.IP++
		return nil
	case compiler.ADD:
		return vm.execArith(frame, instr, func(a, b int64) (int64, error) { return a + b, nil })
	case compiler.SUB:
		return vm.execArith(frame, instr, func(a, b int64) (int64, error) { return a - b, nil })
	case compiler.MUL:
		return vm.execArith(frame, instr, func(a, b int64) (int64, error) { return a * b, nil })
	case compiler.DIV:
		return vm.execArith(frame, instr, func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, errInvalidOperation(frame.IP, "division by zero")
			}
			return a / b, nil
		})
	case compiler.CMP_EQ:
		return vm.execCompare(frame, instr, false, func(a, b int64) bool { return a == b })
	case compiler.CMP_NEQ:
		return vm.execCompare(frame, instr, false, func(a, b int64) bool { return a != b })
	case compiler.CMP_GT:
		return vm.execCompare(frame, instr, true, func(a, b int64) bool { return a > b })
	case compiler.CMP_GE:
		return vm.execCompare(frame, instr, true, func(a, b int64) bool { return a >= b })
	case compiler.CMP_LT:
		return vm.execCompare(frame, instr, true, func(a, b int64) bool { return a < b })
	case compiler.CMP_LE:
		return vm.execCompare(frame, instr, true, func(a, b int64) bool { return a <= b })
	case compiler.LOGICAL_OR:
		return vm.execLogicalOr(frame, instr)
	case compiler.CALL:
		return vm.execCall(frame, instr)
	case compiler.NEW:
		return vm.execNew(frame, instr)
	case compiler.IF_JMP_FALSE:
		return vm.execIfJmpFalse(frame, instr)
	case compiler.JMP:
		frame.IP = target(instr.A0, instr.A1)
		return nil
	case compiler.ASSERT_FAIL:
		return vm.execAssertFail(frame, instr)
	case compiler.TRY:
		return vm.execTry(frame, instr)
	default:
		return errUnknownInstruction(frame.IP, instr.Op.String())
	}
}

func (vm *VM) execLoadConst(frame *StackFrame, instr compiler.Instruction) error {
	idx := target(instr.A0, instr.A1)
	if idx < 0 || idx >= len(frame.Chunk.Constants) {
		return errInvalidOperation(frame.IP, "LOAD_CONST index %d out of range", idx)
	}
	frame.Registers[instr.A2] = frame.Chunk.Constants[idx]
	frame.LastWritten = instr.A2
	frame.IP++
	return nil
}

// execArith implements ADD/SUB/MUL/DIV: I64+I64 -> I64, any other
// operand kind combination fails InvalidOperation (spec.md §4.5/§8).
func (vm *VM) execArith(frame *StackFrame, instr compiler.Instruction, op func(a, b int64) (int64, error)) error {
	lhs, rhs := frame.Registers[instr.A0], frame.Registers[instr.A1]
	if lhs.Kind != compiler.ObjI64 || rhs.Kind != compiler.ObjI64 {
		return errInvalidOperation(frame.IP, "arithmetic on non-integer operands (%v, %v)", lhs, rhs)
	}
	value, err := op(lhs.I64, rhs.I64)
	if err != nil {
		return err
	}
	frame.Registers[instr.A2] = compiler.Object{Kind: compiler.ObjI64, I64: value}
	frame.LastWritten = instr.A2
	frame.IP++
	return nil
}

// execCompare implements CMP_EQ/CMP_NEQ/CMP_GT/CMP_GE/CMP_LT/CMP_LE.
// Equality (ordered=false) falls back to Object.Equal across any Kind,
// so a Match case can compare an Atom tag against an Any-typed
// scrutinee; ordering comparisons require both operands to be I64,
// since no ordering is defined over atoms or heap references.
func (vm *VM) execCompare(frame *StackFrame, instr compiler.Instruction, ordered bool, cmp func(a, b int64) bool) error {
	lhs, rhs := frame.Registers[instr.A0], frame.Registers[instr.A1]
	var result bool
	if ordered {
		if lhs.Kind != compiler.ObjI64 || rhs.Kind != compiler.ObjI64 {
			return errInvalidOperation(frame.IP, "ordering comparison on non-integer operands (%v, %v)", lhs, rhs)
		}
		result = cmp(lhs.I64, rhs.I64)
	} else if lhs.Kind == compiler.ObjI64 && rhs.Kind == compiler.ObjI64 {
		result = cmp(lhs.I64, rhs.I64)
	} else {
		result = lhs.Equal(rhs) == cmp(1, 1)
	}
	frame.Registers[instr.A2] = boolObject(result)
	frame.LastWritten = instr.A2
	frame.IP++
	return nil
}

func (vm *VM) execLogicalOr(frame *StackFrame, instr compiler.Instruction) error {
	lhs, rhs := frame.Registers[instr.A0], frame.Registers[instr.A1]
	lok, lval := truthy(lhs)
	rok, rval := truthy(rhs)
	if !lok || !rok {
		return errInvalidOperation(frame.IP, "LOGICAL_OR operand is not a boolean-like I64")
	}
	frame.Registers[instr.A2] = boolObject(lval || rval)
	frame.LastWritten = instr.A2
	frame.IP++
	return nil
}

func (vm *VM) execIfJmpFalse(frame *StackFrame, instr compiler.Instruction) error {
	ok, val := truthy(frame.Registers[instr.A0])
	if !ok {
		return errInvalidOperation(frame.IP, "IF_JMP_FALSE condition is not a boolean-like I64")
	}
	if !val {
		frame.IP = target(instr.A1, instr.A2)
		return nil
	}
	frame.IP++
	return nil
}

func (vm *VM) execAssertFail(frame *StackFrame, instr compiler.Instruction) error {
	var name string
	if instr.A1 == 1 && int(instr.A0) < len(frame.Chunk.GcRefData) {
		name = frame.Chunk.GcRefData[instr.A0].Str
	}
	return errAssertionFailed(frame.IP, name)
}

// execTry implements Try(expr)'s resolution (see DESIGN.md): invoke the
// zero-argument chunk in register a0; on success, dest holds the
// result; on a RuntimeError, dest holds Atom("error") instead of
// propagating.
func (vm *VM) execTry(frame *StackFrame, instr compiler.Instruction) error {
	data, ok := vm.derefFn(frame.Registers[instr.A0])
	if !ok {
		return errInvalidOperation(frame.IP, "TRY target is not a function")
	}
	result, err := vm.call(data.Fn, nil)
	if err != nil {
		result = compiler.Object{Kind: compiler.ObjAtom, Atom: "error"}
	}
	frame.Registers[instr.A2] = result
	frame.LastWritten = instr.A2
	frame.IP++
	return nil
}

// execCall implements CALL (spec.md §4.5): an Fn target pushes a new
// frame and copies arguments in; a DynamicObject target performs the
// positional/named field read Index and StructAccess compile down to
// (see compiler.Generator.compileIndex); an Atom target dispatches to
// the process context's native function table (spec.md §6's ABI — see
// DESIGN.md for why Atom, not a dedicated Value kind, marks a native
// binding); anything else is CallOnNonCallable.
func (vm *VM) execCall(frame *StackFrame, instr compiler.Instruction) error {
	callee := frame.Registers[instr.A0]
	argsBase, argCount := int(instr.A1), int(instr.A2)

	if callee.Kind == compiler.ObjAtom {
		return vm.execNativeCall(frame, instr, callee.Atom)
	}
	if callee.Kind != compiler.ObjGcRef {
		return errCallOnNonCallable(frame.IP, "cannot call %v", callee)
	}
	data, ok := vm.heap.Deref(callee.Ref)
	if !ok {
		return errInvalidOperation(frame.IP, "CALL target is a dangling reference")
	}
	switch data.Kind {
	case compiler.GcFn:
		args := make([]compiler.Object, argCount)
		copy(args, frame.Registers[argsBase:argsBase+argCount])
		result, err := vm.call(data.Fn, args)
		if err != nil {
			return err
		}
		frame.Registers[instr.A0] = result
		frame.LastWritten = instr.A0
		frame.IP++
		return nil
	case compiler.GcDynamicObject:
		return vm.execFieldRead(frame, instr, data)
	default:
		return errCallOnNonCallable(frame.IP, "CALL target is neither a function nor a dynamic object")
	}
}

func (vm *VM) execNativeCall(frame *StackFrame, instr compiler.Instruction, name string) error {
	fn, ok := vm.proc.Natives[name]
	if !ok {
		return errCallOnNonCallable(frame.IP, "no native function registered as %q", name)
	}
	argsBase, argCount := int(instr.A1), int(instr.A2)
	args := make([]compiler.Object, argCount)
	copy(args, frame.Registers[argsBase:argsBase+argCount])
	result, err := fn(vm.shared, vm.proc, args)
	if err != nil {
		return errInvalidOperation(frame.IP, "native %q: %s", name, err.Error())
	}
	frame.Registers[instr.A0] = result
	frame.LastWritten = instr.A0
	frame.IP++
	return nil
}

// execFieldRead reads one field out of a DynamicObject by the key
// Index/StructAccess compiled into the sole argument register: an I64
// for a positional Slice index, or a GcRef'd interned string for a
// StructAccess field name.
func (vm *VM) execFieldRead(frame *StackFrame, instr compiler.Instruction, data compiler.GcRefData) error {
	argsBase, argCount := int(instr.A1), int(instr.A2)
	if argCount != 1 {
		return errInvalidOperation(frame.IP, "field/index access expects exactly one key, got %d", argCount)
	}
	key, err := vm.fieldKey(frame.IP, frame.Registers[argsBase])
	if err != nil {
		return err
	}
	value, ok := data.Fields[key]
	if !ok {
		return errInvalidOperation(frame.IP, "no field %q on %s", key, data.Type)
	}
	frame.Registers[instr.A0] = value
	frame.LastWritten = instr.A0
	frame.IP++
	return nil
}

func (vm *VM) fieldKey(ip int, obj compiler.Object) (string, error) {
	switch obj.Kind {
	case compiler.ObjI64:
		return strconv.FormatInt(obj.I64, 10), nil
	case compiler.ObjAtom:
		return obj.Atom, nil
	case compiler.ObjGcRef:
		if data, ok := vm.heap.Deref(obj.Ref); ok && data.Kind == compiler.GcString {
			return data.Str, nil
		}
	}
	return "", errInvalidOperation(ip, "value %v is not a valid field/index key", obj)
}

// execNew implements NEW: trigger mark-and-sweep, then allocate a
// DynamicObject instance of the type in register a0 with field values
// from the argCount registers starting at argsBase, assigned
// positionally in the type's declared field order (spec.md §4.5/§4.6).
func (vm *VM) execNew(frame *StackFrame, instr compiler.Instruction) error {
	typeObj := frame.Registers[instr.A0]
	if typeObj.Kind != compiler.ObjGcRef {
		return errInvalidOperation(frame.IP, "NEW target is not a type")
	}
	typeData, ok := vm.heap.Deref(typeObj.Ref)
	if !ok || typeData.Kind != compiler.GcDynamicObject {
		return errInvalidOperation(frame.IP, "NEW target is not a dynamic object type")
	}

	vm.heap.MarkAndSweep(vm.frames)
	if vm.heapCap > 0 && vm.heap.LiveCount() >= vm.heapCap {
		return errHeapExhausted(frame.IP)
	}

	argsBase, argCount := int(instr.A1), int(instr.A2)
	fields := make(map[string]compiler.Object, len(typeData.FieldOrder))
	for i, name := range typeData.FieldOrder {
		if i < argCount {
			fields[name] = frame.Registers[argsBase+i]
		} else {
			fields[name] = compiler.Object{}
		}
	}
	instance := compiler.GcRefData{Kind: compiler.GcDynamicObject, Type: typeData.Type, FieldOrder: typeData.FieldOrder, Fields: fields}
	ref := vm.heap.New(instance)

	frame.Registers[instr.A0] = compiler.Object{Kind: compiler.ObjGcRef, Ref: ref}
	frame.LastWritten = instr.A0
	frame.IP++
	return nil
}

func (vm *VM) derefFn(obj compiler.Object) (compiler.GcRefData, bool) {
	if obj.Kind != compiler.ObjGcRef {
		return compiler.GcRefData{}, false
	}
	data, ok := vm.heap.Deref(obj.Ref)
	if !ok || data.Kind != compiler.GcFn {
		return compiler.GcRefData{}, false
	}
	return data, true
}

// truthy reports, for IF_JMP_FALSE/LOGICAL_OR, whether obj consults as
// a boolean at all (ok) and if so what it evaluates to (val): only an
// I64 is consulted (atoms and gc-refs report ok = false), and it is
// truthy iff > 0, so a negative value (reachable via SUB) is falsy like
// zero.
func truthy(obj compiler.Object) (ok bool, val bool) {
	if obj.Kind != compiler.ObjI64 {
		return false, false
	}
	return true, obj.I64 > 0
}

func boolObject(b bool) compiler.Object {
	if b {
		return compiler.Object{Kind: compiler.ObjI64, I64: 1}
	}
	return compiler.Object{Kind: compiler.ObjI64, I64: 0}
}

// target decodes a big-endian two-byte jump/constant-pool operand, the
// same encoding compiler.Chunk.PatchJumpTarget writes.
func target(hi, lo byte) int {
	return int(hi)<<8 | int(lo)
}
