package vm

import "gila/compiler"

// StackFrame is one call's activation record: an instruction pointer and
// a fixed-capacity register file, owned by the Chunk currently executing
// (spec.md §3's StackFrame). Heap objects never hold a backpointer to a
// frame; frames only ever get walked from the VM's own frame slice, as
// mark-and-sweep roots.
type StackFrame struct {
	IP          int
	Registers   []compiler.Object
	Chunk       *compiler.Chunk
	LastWritten byte
}

// newFrame creates a zeroed register file sized to chunk's high-water
// mark (spec.md §4.5's "Frame initialisation": "fill with I64(0)").
func newFrame(chunk *compiler.Chunk) *StackFrame {
	regs := make([]compiler.Object, chunk.RegisterCapacity())
	for i := range regs {
		regs[i] = compiler.Object{Kind: compiler.ObjI64, I64: 0}
	}
	return &StackFrame{Registers: regs, Chunk: chunk}
}
