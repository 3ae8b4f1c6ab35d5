package vm

import "gila/compiler"

// heapSlot is one append-only-vector entry: the payload it currently
// holds, whether it is live, and the mark bit mark-and-sweep sets during
// the mark phase (spec.md §4.6).
type heapSlot struct {
	data   compiler.GcRefData
	live   bool
	marked bool
}

// Heap is Gila's managed object space: an append-only vector of slots
// plus a free list of dead indices, exactly as spec.md §4.6 describes
// it. New reuses a dead slot if one is free, else grows the vector.
type Heap struct {
	slots     []heapSlot
	free      []int
	liveCount int
}

// NewHeap creates an empty Heap.
func NewHeap() *Heap {
	return &Heap{}
}

// New allocates data into a live slot, returning the GcRef that
// addresses it. It satisfies compiler.Allocator, which is how
// Chunk.Relocate reaches the heap without compiler importing vm.
func (h *Heap) New(data compiler.GcRefData) compiler.GcRef {
	h.liveCount++
	if n := len(h.free); n > 0 {
		idx := h.free[n-1]
		h.free = h.free[:n-1]
		h.slots[idx] = heapSlot{data: data, live: true}
		return compiler.GcRef{Index: idx}
	}
	idx := len(h.slots)
	h.slots = append(h.slots, heapSlot{data: data, live: true})
	return compiler.GcRef{Index: idx}
}

// Deref is an O(1) indexed read of ref's payload. ok is false for a
// dangling or out-of-range reference, which should never happen given
// §3's "every GcRef dereferences to a live slot" invariant but is
// checked rather than trusted, since it crosses from compiled bytecode.
func (h *Heap) Deref(ref compiler.GcRef) (compiler.GcRefData, bool) {
	if ref.Index < 0 || ref.Index >= len(h.slots) || !h.slots[ref.Index].live {
		return compiler.GcRefData{}, false
	}
	return h.slots[ref.Index].data, true
}

// Set overwrites a live slot's payload in place (used by NEW once a
// DynamicObject's fields are known).
func (h *Heap) Set(ref compiler.GcRef, data compiler.GcRefData) {
	h.slots[ref.Index].data = data
}

// LiveCount is the number of currently-allocated (non-freed) slots, used
// to enforce an optional heap cap (spec.md §6's HeapExhausted).
func (h *Heap) LiveCount() int {
	return h.liveCount
}

// MarkAndSweep traces reachability from each live frame's registers and
// the relocated constant pool of the chunk it's executing (spec.md
// §4.6's roots), then frees every slot that wasn't reached. A frame's
// own Constants are a root independently of its Registers: Relocate
// moves every GcRef constant into a live heap slot at first frame push,
// before any of it has necessarily been loaded into a register, so a
// constant not yet used by a LOAD_CONST would otherwise look
// unreachable to a sweep run between relocation and its first load (see
// DESIGN.md). Cycles are handled by the mark phase's own visited check.
func (h *Heap) MarkAndSweep(frames []*StackFrame) {
	for _, f := range frames {
		for _, obj := range f.Registers {
			h.markObject(obj)
		}
		if f.Chunk != nil {
			for _, obj := range f.Chunk.Constants {
				h.markObject(obj)
			}
		}
	}
	h.liveCount = 0
	for i := range h.slots {
		if !h.slots[i].live {
			continue
		}
		if !h.slots[i].marked {
			h.slots[i] = heapSlot{}
			h.free = append(h.free, i)
			continue
		}
		h.slots[i].marked = false
		h.liveCount++
	}
}

func (h *Heap) markObject(obj compiler.Object) {
	if obj.Kind != compiler.ObjGcRef {
		return
	}
	h.markRef(obj.Ref)
}

// markRef marks slot ref and walks every GcRef reachable from it: a
// Fn's chunk constant pool (already-relocated heap refs, per
// Chunk.Relocate) and a DynamicObject's field values, transitively
// (spec.md §4.6).
func (h *Heap) markRef(ref compiler.GcRef) {
	if ref.Index < 0 || ref.Index >= len(h.slots) {
		return
	}
	slot := &h.slots[ref.Index]
	if !slot.live || slot.marked {
		return
	}
	slot.marked = true
	switch slot.data.Kind {
	case compiler.GcFn:
		if slot.data.Fn != nil {
			for _, c := range slot.data.Fn.Constants {
				h.markObject(c)
			}
		}
	case compiler.GcDynamicObject:
		for _, v := range slot.data.Fields {
			h.markObject(v)
		}
	}
}
