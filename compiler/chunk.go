package compiler

import "fmt"

// ObjectKind tags the variant held by an Object value.
type ObjectKind int

const (
	ObjI64 ObjectKind = iota
	ObjF64
	ObjAtom
	ObjGcRef
)

// Object is the runtime value representation shared by the constant pool
// and the VM's registers: a 64-bit integer, a 64-bit float, an interned
// text atom, or a reference into the heap's gc_ref_data (a string,
// function, or dynamic object instance).
type Object struct {
	Kind ObjectKind
	I64  int64
	F64  float64
	Atom string
	Ref  GcRef
}

func (o Object) String() string {
	switch o.Kind {
	case ObjI64:
		return fmt.Sprintf("%d", o.I64)
	case ObjF64:
		return fmt.Sprintf("%g", o.F64)
	case ObjAtom:
		return ":" + o.Atom
	case ObjGcRef:
		return fmt.Sprintf("gc_ref(%d)", o.Ref.Index)
	default:
		return "?"
	}
}

// Truthy reports whether o counts as true for IF_JMP_FALSE/LOGICAL_OR
// purposes: numbers are truthy iff > 0 (spec.md §3), not merely nonzero,
// so a negative value (reachable via SUB) is falsy like zero.
func (o Object) Truthy() bool {
	return o.Kind == ObjI64 && o.I64 > 0
}

// Equal reports value equality for CMP_EQ/CMP_NEQ: operands of different
// Kinds are simply unequal rather than a type error, so a Match case's
// Atom tag can be compared against an Any-typed scrutinee without the VM
// rejecting the comparison outright.
func (o Object) Equal(other Object) bool {
	if o.Kind != other.Kind {
		return false
	}
	switch o.Kind {
	case ObjI64:
		return o.I64 == other.I64
	case ObjF64:
		return o.F64 == other.F64
	case ObjAtom:
		return o.Atom == other.Atom
	case ObjGcRef:
		return o.Ref == other.Ref
	default:
		return false
	}
}

// GcRef is an index into a GcRefData pool. Before a frame's constants
// are relocated onto the heap it indexes a Chunk's own gc_ref_data;
// after relocation the VM's Heap reuses the same representation to index
// live heap slots (spec.md §4.6).
type GcRef struct{ Index int }

// GcRefDataKind tags the variant held by a GcRefData value.
type GcRefDataKind int

const (
	GcFn GcRefDataKind = iota
	GcString
	GcDynamicObject
)

// GcRefData is one heap-allocated payload: a compiled function (its own
// nested Chunk), shared/interned string text, or a dynamic object
// instance's field values.
type GcRefData struct {
	Kind GcRefDataKind
	Fn   *Chunk
	Str  string
	Type string
	// FieldOrder records Fields' declaration order (NamedTypeDecl's
	// field order, or a Slice literal's positional "0","1",...): Go map
	// iteration is unordered, so NEW needs this to assign constructor
	// arguments to the right field.
	FieldOrder []string
	Fields     map[string]Object
}

// SlotManager hands out registers from a Chunk's flat register file. The
// next free register is rewound when a scope (block, if-branch
// temporaries) ends, so sibling scopes reuse the same registers; the
// high-water mark across the whole chunk is kept separately so that
// RegisterCapacity sizes frames for the deepest point reached.
type SlotManager struct {
	next byte
	high byte
}

// Alloc returns the next free register.
func (s *SlotManager) Alloc() byte {
	r := s.next
	s.next++
	if s.next > s.high {
		s.high = s.next
	}
	return r
}

// Mark returns the current high-water mark, to be passed to Rewind.
func (s *SlotManager) Mark() byte {
	return s.next
}

// Rewind frees every register allocated since mark.
func (s *SlotManager) Rewind(mark byte) {
	s.next = mark
}

// Chunk is one compiled unit: the top-level program or a single
// function's body. Each Chunk owns its own flat register file.
type Chunk struct {
	Instructions []Instruction
	Lines        []int // debug line info, parallel to Instructions
	Constants    []Object
	GcRefData    []GcRefData
	// StringInterns maps already-interned string text to its GcRefData
	// index, so identical literals share one gc_ref_data slot.
	StringInterns map[string]int
	Slots         *SlotManager
	// ParamCount records how many leading registers are bound to this
	// chunk's function parameters (0 for the top-level program chunk).
	ParamCount int
	// relocated guards Relocate: a chunk's constant pool is rewritten
	// from gc_ref_data indices to heap slots at most once, the first
	// time a frame for it is pushed (spec.md's chunk-load-time choice,
	// see DESIGN.md).
	relocated bool
}

// NewChunk creates an empty Chunk ready for code generation.
func NewChunk() *Chunk {
	return &Chunk{
		StringInterns: make(map[string]int),
		Slots:         &SlotManager{},
	}
}

// RegisterCapacity is the register file size a frame over this chunk
// needs: the compiler's high-water mark, or 5 if smaller (the reference
// VM's minimum register file size, spec.md §4.5).
func (c *Chunk) RegisterCapacity() int {
	if n := int(c.Slots.high); n >= 5 {
		return n
	}
	return 5
}

// Allocator is the heap operation Relocate needs: turning a pre-heap
// GcRefData payload into a live GcRef. vm.Heap satisfies this without
// either package importing the other.
type Allocator interface {
	New(data GcRefData) GcRef
}

// Relocate rewrites every GcRef constant in the pool from a gc_ref_data
// pool index to a live heap slot index, cloning the payload into h. It
// runs once per chunk; later calls are no-ops (spec.md §4.5 "Frame
// initialisation" / §9 "Constant relocation" — this core relocates at
// chunk-load time rather than re-relocating on every frame push, which
// the design notes call out as an equally valid reading that avoids
// corrupting an already-relocated index on a recursive or repeated
// call).
func (c *Chunk) Relocate(h Allocator) {
	if c.relocated {
		return
	}
	for i, obj := range c.Constants {
		if obj.Kind != ObjGcRef {
			continue
		}
		data := c.GcRefData[obj.Ref.Index]
		c.Constants[i] = Object{Kind: ObjGcRef, Ref: h.New(data)}
	}
	c.relocated = true
}

// InternString returns the gc_ref_data index holding text, reusing an
// existing slot if the same text was already interned in this chunk.
func (c *Chunk) InternString(text string) int {
	if idx, ok := c.StringInterns[text]; ok {
		return idx
	}
	idx := len(c.GcRefData)
	c.GcRefData = append(c.GcRefData, GcRefData{Kind: GcString, Str: text})
	c.StringInterns[text] = idx
	return idx
}

// AddConstant appends obj to the constant pool and returns its index.
func (c *Chunk) AddConstant(obj Object) int {
	c.Constants = append(c.Constants, obj)
	return len(c.Constants) - 1
}

// Emit appends one instruction, recording line for debug info, and
// returns the instruction's index (for later jump patching).
func (c *Chunk) Emit(line int, instr Instruction) int {
	pos := len(c.Instructions)
	c.Instructions = append(c.Instructions, instr)
	c.Lines = append(c.Lines, line)
	return pos
}

// PatchJumpTarget overwrites the jump-target operand bytes of the
// instruction at pos (an IF_JMP_FALSE or JMP) to point at target.
func (c *Chunk) PatchJumpTarget(pos int, target int) {
	hi, lo := splitJumpTarget(target)
	switch c.Instructions[pos].Op {
	case IF_JMP_FALSE:
		c.Instructions[pos].A1 = hi
		c.Instructions[pos].A2 = lo
	case JMP:
		c.Instructions[pos].A0 = hi
		c.Instructions[pos].A1 = lo
	}
}

// Disassemble renders every instruction in the chunk as a multi-line
// human-readable listing.
func (c *Chunk) Disassemble() string {
	out := ""
	for ip, instr := range c.Instructions {
		out += Disassemble(c, ip, instr) + "\n"
	}
	return out
}
