package compiler

// This file implements the Generator, which compiles the semantically
// analysed AST directly into register-based bytecode Chunks.

import (
	"fmt"
	"gila/ast"
	"gila/token"
	"os"
)

// Generator is a single AST-to-Chunk compiler. Each Generator instance
// compiles one Chunk (the top-level program, or one function body); a
// nested NamedFunction is compiled by a fresh Generator wrapping a new
// Chunk, since each Chunk owns its own register file.
type Generator struct {
	chunk *Chunk

	// scopes is a stack of (identifier -> register) maps, innermost
	// last, mirroring the analyser's scope stack but recording a
	// register instead of a DataType.
	scopes []map[string]byte

	// types records, per visible scope, which bound names are
	// NamedTypeDecl types rather than functions or plain values: Call's
	// codegen needs this to choose NEW over CALL (spec.md §4.4).
	types []map[string]bool

	// parent is the generator compiling the enclosing chunk, set for a
	// NamedFunction body's generator and for a Try expression's generator
	// (nil for the top-level program).
	// compileVariable walks it to resolve a name the analyser allowed
	// across enclosing scopes but that this chunk's own scopes don't
	// have (see DESIGN.md's upvalue/global resolution).
	parent *Generator
}

func newGenerator() *Generator {
	g := &Generator{chunk: NewChunk()}
	g.pushScope()
	return g
}

func (g *Generator) pushScope() {
	g.scopes = append(g.scopes, make(map[string]byte))
	g.types = append(g.types, make(map[string]bool))
}

func (g *Generator) popScope() {
	g.scopes = g.scopes[:len(g.scopes)-1]
	g.types = g.types[:len(g.types)-1]
}

func (g *Generator) bind(name string, reg byte) {
	g.scopes[len(g.scopes)-1][name] = reg
}

func (g *Generator) bindType(name string) {
	g.types[len(g.types)-1][name] = true
}

func (g *Generator) resolve(name string) (byte, bool) {
	for i := len(g.scopes) - 1; i >= 0; i-- {
		if reg, ok := g.scopes[i][name]; ok {
			return reg, true
		}
	}
	return 0, false
}

// resolveOuter walks g's parent chain looking for name, for a reference
// the analyser accepted against an enclosing scope (spec.md's scope
// stack lets a function body see globals and its own name) but that
// isn't in this chunk's own scopes. root reports whether the scope that
// bound it was the top-level program's: only that one is safe to read
// across chunks, since it's the only frame guaranteed to still be on
// the call stack for as long as any nested function might run (see
// DESIGN.md). A name found in some other, non-root enclosing function's
// scope is reported with root=false: an upvalue this register model
// can't express.
func (g *Generator) resolveOuter(name string) (reg byte, root bool, ok bool) {
	for p := g.parent; p != nil; p = p.parent {
		if r, found := p.resolve(name); found {
			return r, p.parent == nil, true
		}
	}
	return 0, false, false
}

// isType reports whether name was bound by a NamedTypeDecl, walking out
// through enclosing generators too: a type is always declared at the
// top level in practice, but a nested function constructing it (the
// same cross-chunk case compileVariable resolves via resolveOuter)
// needs this check to still say yes, or compileCall would wrongly treat
// the constructor call as an ordinary CALL.
func (g *Generator) isType(name string) bool {
	for p := g; p != nil; p = p.parent {
		for i := len(p.types) - 1; i >= 0; i-- {
			if p.types[i][name] {
				return true
			}
		}
	}
	return false
}

// Generate compiles a full program (an ast.Program node) into its
// top-level Chunk, or returns the first SemanticError/DeveloperError
// raised during compilation.
func Generate(program ast.Node) (chunk *Chunk, err error) {
	g := newGenerator()
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case SemanticError:
				err = v
			case DeveloperError:
				err = v
			default:
				panic(r)
			}
		}
	}()
	last := g.compile(program)
	g.chunk.Emit(program.Pos.LineEnd, Instruction{Op: RETURN, A0: last})
	return g.chunk, nil
}

// DumpBytecode writes chunk's raw instruction stream to filePath (with a
// `.gilac` extension) as a hex-encoded blob, so it can be inspected in a
// text editor.
func DumpBytecode(chunk *Chunk, filePath string) error {
	if filePath == "" {
		filePath = "bytecode"
	}
	f, err := os.Create(filePath + ".gilac")
	if err != nil {
		return fmt.Errorf("error creating gila bytecode file: %s", err.Error())
	}
	defer f.Close()
	for _, instr := range chunk.Instructions {
		fmt.Fprintf(f, "%02x%02x%02x%02x", byte(instr.Op), instr.A0, instr.A1, instr.A2)
	}
	return nil
}

// compile dispatches on the node's Statement variant, returning the
// register holding the node's resulting value (0 for statements with no
// meaningful value, e.g. Import).
func (g *Generator) compile(node ast.Node) byte {
	switch stmt := node.Stmt.(type) {
	case ast.Program:
		return g.compileStmts(stmt.Stmts)
	case ast.Block:
		mark := g.chunk.Slots.Mark()
		g.pushScope()
		reg := g.compileStmts(stmt.Stmts)
		g.popScope()
		g.chunk.Slots.Rewind(mark)
		return reg
	case ast.LiteralNum:
		return g.compileLiteralNum(node, stmt)
	case ast.LiteralBool:
		return g.compileLiteralBool(node, stmt)
	case ast.StringLit:
		return g.compileStringLit(node, stmt)
	case ast.Atom:
		return g.compileAtom(node, stmt)
	case ast.Variable:
		return g.compileVariable(stmt)
	case ast.Slice:
		return g.compileSlice(node, stmt)
	case ast.BinOp:
		return g.compileBinOp(node, stmt)
	case ast.Call:
		return g.compileCall(node, stmt)
	case ast.Index:
		return g.compileIndex(node, stmt)
	case ast.StructAccess:
		return g.compileStructAccess(node, stmt)
	case ast.Try:
		return g.compileTry(node, stmt)
	case ast.Assign:
		return g.compileAssign(stmt)
	case ast.Define:
		return g.compileDefine(stmt)
	case ast.NamedFunction:
		return g.compileNamedFunction(node, stmt)
	case ast.NamedTypeDecl:
		return g.compileNamedTypeDecl(node, stmt)
	case ast.If:
		return g.compileIf(node, stmt)
	case ast.For:
		return g.compileFor(node, stmt)
	case ast.Match:
		return g.compileMatch(node, stmt)
	case ast.Return:
		return g.compileReturn(node, stmt)
	case ast.Assert:
		return g.compileAssert(node, stmt)
	case ast.Test:
		return g.compile(stmt.Body)
	case ast.Annotation:
		// Annotations are a no-op at codegen time (see DESIGN.md): recurse
		// into the target only.
		return g.compile(stmt.Target)
	case ast.Import:
		return 0
	case ast.NamedArg:
		return g.compile(stmt.Value)
	default:
		panic(DeveloperError{Message: fmt.Sprintf("generator: unhandled node %T", stmt)})
	}
}

func (g *Generator) compileStmts(stmts []ast.Node) byte {
	var last byte
	for _, s := range stmts {
		last = g.compile(s)
	}
	return last
}

func (g *Generator) compileLiteralNum(node ast.Node, stmt ast.LiteralNum) byte {
	val := parseU32(stmt.Tok)
	idx := g.chunk.AddConstant(Object{Kind: ObjI64, I64: val})
	dest := g.chunk.Slots.Alloc()
	hi, lo := splitJumpTarget(idx)
	g.chunk.Emit(node.Pos.Line, Instruction{Op: LOAD_CONST, A0: hi, A1: lo, A2: dest})
	return dest
}

func parseU32(tok token.Token) int64 {
	var v int64
	for _, ch := range tok.Lexeme {
		v = v*10 + int64(ch-'0')
	}
	return v
}

func (g *Generator) compileLiteralBool(node ast.Node, stmt ast.LiteralBool) byte {
	var v int64
	if stmt.Value {
		v = 1
	}
	idx := g.chunk.AddConstant(Object{Kind: ObjI64, I64: v})
	dest := g.chunk.Slots.Alloc()
	hi, lo := splitJumpTarget(idx)
	g.chunk.Emit(node.Pos.Line, Instruction{Op: LOAD_CONST, A0: hi, A1: lo, A2: dest})
	return dest
}

func (g *Generator) compileStringLit(node ast.Node, stmt ast.StringLit) byte {
	refIdx := g.chunk.InternString(stmt.Tok.Lexeme)
	idx := g.chunk.AddConstant(Object{Kind: ObjGcRef, Ref: GcRef{Index: refIdx}})
	dest := g.chunk.Slots.Alloc()
	hi, lo := splitJumpTarget(idx)
	g.chunk.Emit(node.Pos.Line, Instruction{Op: LOAD_CONST, A0: hi, A1: lo, A2: dest})
	return dest
}

func (g *Generator) compileAtom(node ast.Node, stmt ast.Atom) byte {
	idx := g.chunk.AddConstant(Object{Kind: ObjAtom, Atom: stmt.Tok.Lexeme})
	dest := g.chunk.Slots.Alloc()
	hi, lo := splitJumpTarget(idx)
	g.chunk.Emit(node.Pos.Line, Instruction{Op: LOAD_CONST, A0: hi, A1: lo, A2: dest})
	return dest
}

// compileVariable reads a bound name's mapped register. A name bound in
// this chunk's own scopes needs no instruction: the value already lives
// where the caller needs it. A top-level name read from a nested chunk
// is copied into a fresh register with GET_GLOBAL. Reaching an unmapped
// name here would mean the analyser accepted a program this generator
// cannot compile, a developer error rather than a user one.
func (g *Generator) compileVariable(stmt ast.Variable) byte {
	if reg, ok := g.resolve(stmt.Tok.Lexeme); ok {
		return reg
	}
	if rootReg, root, ok := g.resolveOuter(stmt.Tok.Lexeme); ok {
		if !root {
			panic(SemanticError{Message: fmt.Sprintf("%q is captured from a non-global enclosing function; Gila's register model has no upvalue mechanism for that, only for top-level names", stmt.Tok.Lexeme)})
		}
		dest := g.chunk.Slots.Alloc()
		g.chunk.Emit(stmt.Tok.Pos.Line, Instruction{Op: GET_GLOBAL, A0: rootReg, A2: dest})
		return dest
	}
	panic(DeveloperError{Message: fmt.Sprintf("generator: unbound variable %q reached codegen", stmt.Tok.Lexeme)})
}

// compileSlice represents a Slice literal as a DynamicObject instance
// whose fields are its positional items ("0", "1", ...), reusing NEW
// rather than adding a dedicated heap payload kind.
func (g *Generator) compileSlice(node ast.Node, stmt ast.Slice) byte {
	itemRegs := make([]byte, len(stmt.Items))
	for i, item := range stmt.Items {
		itemRegs[i] = g.compile(item)
	}
	argsBase := g.chunk.Slots.Mark()
	for _, reg := range itemRegs {
		g.copyInto(node.Pos.Line, g.chunk.Slots.Alloc(), reg)
	}
	order := make([]string, len(stmt.Items))
	fields := make(map[string]Object, len(stmt.Items))
	for i := range stmt.Items {
		key := fmt.Sprintf("%d", i)
		order[i] = key
		fields[key] = Object{}
	}
	refIdx := len(g.chunk.GcRefData)
	g.chunk.GcRefData = append(g.chunk.GcRefData, GcRefData{Kind: GcDynamicObject, Type: "slice", FieldOrder: order, Fields: fields})
	constIdx := g.chunk.AddConstant(Object{Kind: ObjGcRef, Ref: GcRef{Index: refIdx}})
	typeReg := g.chunk.Slots.Alloc()
	hi, lo := splitJumpTarget(constIdx)
	g.chunk.Emit(node.Pos.Line, Instruction{Op: LOAD_CONST, A0: hi, A1: lo, A2: typeReg})
	g.chunk.Emit(node.Pos.Line, Instruction{Op: NEW, A0: typeReg, A1: argsBase, A2: byte(len(stmt.Items))})
	return typeReg
}

var comparisonOps = map[ast.Op]Opcode{
	ast.Eq: CMP_EQ, ast.Neq: CMP_NEQ, ast.Gt: CMP_GT,
	ast.Ge: CMP_GE, ast.Lt: CMP_LT, ast.Le: CMP_LE,
}

func (g *Generator) compileBinOp(node ast.Node, stmt ast.BinOp) byte {
	if op, immediate := g.immediateOp(stmt); immediate {
		lhsNum := stmt.Lhs.Stmt.(ast.LiteralNum)
		rhsNum := stmt.Rhs.Stmt.(ast.LiteralNum)
		dest := g.chunk.Slots.Alloc()
		g.chunk.Emit(node.Pos.Line, Instruction{
			Op: op, A0: byte(parseU32(lhsNum.Tok)), A1: byte(parseU32(rhsNum.Tok)), A2: dest,
		})
		return dest
	}

	lhs := g.compile(stmt.Lhs)
	rhs := g.compile(stmt.Rhs)
	dest := g.chunk.Slots.Alloc()

	if cmp, ok := comparisonOps[stmt.Op]; ok {
		g.chunk.Emit(node.Pos.Line, Instruction{Op: cmp, A0: lhs, A1: rhs, A2: dest})
		return dest
	}

	var op Opcode
	switch stmt.Op {
	case ast.Add:
		op = ADD
	case ast.Sub:
		op = SUB
	case ast.Mul:
		op = MUL
	case ast.Div:
		op = DIV
	case ast.LogicalOr, ast.BitwiseOr:
		op = LOGICAL_OR
	default:
		panic(DeveloperError{Message: fmt.Sprintf("generator: unhandled binary op %v", stmt.Op)})
	}
	g.chunk.Emit(node.Pos.Line, Instruction{Op: op, A0: lhs, A1: rhs, A2: dest})
	return dest
}

// immediateOp reports whether stmt is an Add/Sub of two literal numbers
// that each fit in a byte, in which case ADDI/SUBI can be emitted
// directly without materialising either operand into a register
// (spec.md §4.4's immediate-form rule).
func (g *Generator) immediateOp(stmt ast.BinOp) (Opcode, bool) {
	if stmt.Op != ast.Add && stmt.Op != ast.Sub {
		return 0, false
	}
	lhsNum, ok := stmt.Lhs.Stmt.(ast.LiteralNum)
	if !ok {
		return 0, false
	}
	rhsNum, ok := stmt.Rhs.Stmt.(ast.LiteralNum)
	if !ok {
		return 0, false
	}
	if parseU32(lhsNum.Tok) > 255 || parseU32(rhsNum.Tok) > 255 {
		return 0, false
	}
	if stmt.Op == ast.Add {
		return ADDI, true
	}
	return SUBI, true
}

func (g *Generator) compileCall(node ast.Node, stmt ast.Call) byte {
	if name, ok := calleeName(stmt.Callee); ok && g.isType(name) {
		return g.compileConstructorCall(node, stmt)
	}
	callee := g.compile(stmt.Callee)
	argRegs := make([]byte, len(stmt.Args))
	for i, arg := range stmt.Args {
		argRegs[i] = g.compile(arg)
	}
	argsBase := g.chunk.Slots.Mark()
	for _, reg := range argRegs {
		g.copyInto(node.Pos.Line, g.chunk.Slots.Alloc(), reg)
	}
	g.chunk.Emit(node.Pos.Line, Instruction{Op: CALL, A0: callee, A1: argsBase, A2: byte(len(stmt.Args))})
	return callee
}

func (g *Generator) compileConstructorCall(node ast.Node, stmt ast.Call) byte {
	typeReg := g.compile(stmt.Callee)
	argRegs := make([]byte, len(stmt.Args))
	for i, arg := range stmt.Args {
		argRegs[i] = g.compile(arg)
	}
	argsBase := g.chunk.Slots.Mark()
	for _, reg := range argRegs {
		g.copyInto(node.Pos.Line, g.chunk.Slots.Alloc(), reg)
	}
	g.chunk.Emit(node.Pos.Line, Instruction{Op: NEW, A0: typeReg, A1: argsBase, A2: byte(len(stmt.Args))})
	return typeReg
}

func calleeName(node ast.Node) (string, bool) {
	v, ok := node.Stmt.(ast.Variable)
	if !ok {
		return "", false
	}
	return v.Tok.Lexeme, true
}

func (g *Generator) compileIndex(node ast.Node, stmt ast.Index) byte {
	// Index reuses the same CALL shape as a single-arg accessor: the
	// collection register stands in for the callee, the key is the sole
	// argument. The VM recognises a GcDynamicObject target in the CALL
	// path and performs a positional field read (see vm package).
	coll := g.compile(stmt.Collection)
	key := g.compile(stmt.Key)
	argsBase := g.chunk.Slots.Alloc()
	g.copyInto(node.Pos.Line, argsBase, key)
	g.chunk.Emit(node.Pos.Line, Instruction{Op: CALL, A0: coll, A1: argsBase, A2: 1})
	return coll
}

func (g *Generator) compileStructAccess(node ast.Node, stmt ast.StructAccess) byte {
	base := g.compile(stmt.Base)
	fieldIdx := g.chunk.InternString(stmt.Field.Lexeme)
	constIdx := g.chunk.AddConstant(Object{Kind: ObjGcRef, Ref: GcRef{Index: fieldIdx}})
	fieldReg := g.chunk.Slots.Alloc()
	hi, lo := splitJumpTarget(constIdx)
	g.chunk.Emit(node.Pos.Line, Instruction{Op: LOAD_CONST, A0: hi, A1: lo, A2: fieldReg})
	g.chunk.Emit(node.Pos.Line, Instruction{Op: CALL, A0: base, A1: fieldReg, A2: 1})
	return base
}

// compileTry compiles expr into a zero-argument function chunk and emits
// a TRY call: at runtime the VM invokes that chunk and, on a
// RuntimeError, substitutes Atom("error") for the result instead of
// propagating (spec.md's Try(expr) resolution, see DESIGN.md).
func (g *Generator) compileTry(node ast.Node, stmt ast.Try) byte {
	inner := newGenerator()
	inner.parent = g
	last := inner.compile(stmt.Expr)
	inner.chunk.Emit(stmt.Expr.Pos.LineEnd, Instruction{Op: RETURN, A0: last})

	refIdx := len(g.chunk.GcRefData)
	g.chunk.GcRefData = append(g.chunk.GcRefData, GcRefData{Kind: GcFn, Fn: inner.chunk})
	constIdx := g.chunk.AddConstant(Object{Kind: ObjGcRef, Ref: GcRef{Index: refIdx}})
	fnReg := g.chunk.Slots.Alloc()
	hi, lo := splitJumpTarget(constIdx)
	g.chunk.Emit(node.Pos.Line, Instruction{Op: LOAD_CONST, A0: hi, A1: lo, A2: fnReg})

	dest := g.chunk.Slots.Alloc()
	g.chunk.Emit(node.Pos.Line, Instruction{Op: TRY, A0: fnReg, A2: dest})
	return dest
}

func (g *Generator) compileAssign(stmt ast.Assign) byte {
	name, ok := calleeName(stmt.Lhs)
	if !ok {
		panic(SemanticError{Message: "left-hand side of an assignment must be a variable"})
	}
	value := g.compile(stmt.Rhs)
	g.bind(name, value)
	return value
}

func (g *Generator) compileDefine(stmt ast.Define) byte {
	if stmt.Init == nil {
		// A bare field/parameter declaration: its register is assigned by
		// the enclosing NamedFunction/NamedTypeDecl compiler, not here.
		return 0
	}
	value := g.compile(*stmt.Init)
	g.bind(stmt.Name.Lexeme, value)
	return value
}

func (g *Generator) compileNamedFunction(node ast.Node, stmt ast.NamedFunction) byte {
	// Bound before the body compiles, mirroring the analyser's own
	// "declare before push" order (analyser.go's inferNamedFunction),
	// so a recursive self-call inside the body resolves: compileVariable
	// finds it via resolveOuter and reads it as a global (see
	// DESIGN.md). dest is filled in once the function value itself is
	// ready, below.
	dest := g.chunk.Slots.Alloc()
	g.bind(stmt.Name.Lexeme, dest)

	inner := newGenerator()
	inner.parent = g
	for _, p := range stmt.Params {
		def := p.Stmt.(ast.Define)
		reg := inner.chunk.Slots.Alloc()
		inner.bind(def.Name.Lexeme, reg)
	}
	inner.chunk.ParamCount = len(stmt.Params)
	last := inner.compile(stmt.Body)
	inner.chunk.Emit(stmt.Body.Pos.LineEnd, Instruction{Op: RETURN, A0: last})

	refIdx := len(g.chunk.GcRefData)
	g.chunk.GcRefData = append(g.chunk.GcRefData, GcRefData{Kind: GcFn, Fn: inner.chunk})
	constIdx := g.chunk.AddConstant(Object{Kind: ObjGcRef, Ref: GcRef{Index: refIdx}})
	hi, lo := splitJumpTarget(constIdx)
	g.chunk.Emit(node.Pos.Line, Instruction{Op: LOAD_CONST, A0: hi, A1: lo, A2: dest})
	return dest
}

func (g *Generator) compileNamedTypeDecl(node ast.Node, stmt ast.NamedTypeDecl) byte {
	order := make([]string, len(stmt.Fields))
	fields := make(map[string]Object, len(stmt.Fields))
	for i, f := range stmt.Fields {
		def := f.Stmt.(ast.Define)
		order[i] = def.Name.Lexeme
		fields[def.Name.Lexeme] = Object{}
	}
	refIdx := len(g.chunk.GcRefData)
	g.chunk.GcRefData = append(g.chunk.GcRefData, GcRefData{Kind: GcDynamicObject, Type: stmt.Name.Lexeme, FieldOrder: order, Fields: fields})
	constIdx := g.chunk.AddConstant(Object{Kind: ObjGcRef, Ref: GcRef{Index: refIdx}})
	dest := g.chunk.Slots.Alloc()
	hi, lo := splitJumpTarget(constIdx)
	g.chunk.Emit(node.Pos.Line, Instruction{Op: LOAD_CONST, A0: hi, A1: lo, A2: dest})
	g.bind(stmt.Name.Lexeme, dest)
	g.bindType(stmt.Name.Lexeme)
	return dest
}

func (g *Generator) compileIf(node ast.Node, stmt ast.If) byte {
	cond := g.compile(stmt.Cond)
	jumpIfFalse := g.chunk.Emit(node.Pos.Line, Instruction{Op: IF_JMP_FALSE, A0: cond})

	dest := g.chunk.Slots.Alloc()
	thenReg := g.compile(stmt.Then)
	g.copyInto(node.Pos.Line, dest, thenReg)

	if stmt.Else != nil {
		jumpEnd := g.chunk.Emit(node.Pos.Line, Instruction{Op: JMP})
		elsePos := len(g.chunk.Instructions)
		g.chunk.PatchJumpTarget(jumpIfFalse, elsePos)

		elseReg := g.compile(*stmt.Else)
		g.copyInto(node.Pos.Line, dest, elseReg)

		endPos := len(g.chunk.Instructions)
		g.chunk.PatchJumpTarget(jumpEnd, endPos)
	} else {
		afterPos := len(g.chunk.Instructions)
		g.chunk.PatchJumpTarget(jumpIfFalse, afterPos)
	}
	return dest
}

// copyInto materialises src's value into dest via MOV, used to merge
// If/Match branches (each compiled into its own temporary register) into
// one shared destination register.
func (g *Generator) copyInto(line int, dest, src byte) {
	if dest == src {
		return
	}
	g.chunk.Emit(line, Instruction{Op: MOV, A0: src, A2: dest})
}

func (g *Generator) compileFor(node ast.Node, stmt ast.For) byte {
	mark := g.chunk.Slots.Mark()
	g.pushScope()

	startReg := g.loadRangeBound(node.Pos.Line, stmt.Start)
	endReg := g.loadRangeBound(node.Pos.Line, stmt.End)
	varReg := g.chunk.Slots.Alloc()
	g.copyInto(node.Pos.Line, varReg, startReg)
	g.bind(stmt.Var.Lexeme, varReg)

	oneIdx := g.chunk.AddConstant(Object{Kind: ObjI64, I64: 1})
	oneReg := g.chunk.Slots.Alloc()
	oneHi, oneLo := splitJumpTarget(oneIdx)
	g.chunk.Emit(node.Pos.Line, Instruction{Op: LOAD_CONST, A0: oneHi, A1: oneLo, A2: oneReg})

	loopStart := len(g.chunk.Instructions)
	condReg := g.chunk.Slots.Alloc()
	g.chunk.Emit(node.Pos.Line, Instruction{Op: CMP_LT, A0: varReg, A1: endReg, A2: condReg})
	jumpIfFalse := g.chunk.Emit(node.Pos.Line, Instruction{Op: IF_JMP_FALSE, A0: condReg})

	g.compile(stmt.Body)
	// varReg += 1, via a real register+register ADD (spec.md §4.4's
	// ADDI is an immediate-immediate form for two literal operands; a
	// running loop variable is a register, not a literal, so this uses
	// ADD against the materialised constant 1 instead of overloading
	// ADDI with a register operand).
	g.chunk.Emit(node.Pos.Line, Instruction{Op: ADD, A0: varReg, A1: oneReg, A2: varReg})
	loopStartHi, loopStartLo := splitJumpTarget(loopStart)
	g.chunk.Emit(node.Pos.Line, Instruction{Op: JMP, A0: loopStartHi, A1: loopStartLo})

	loopEnd := len(g.chunk.Instructions)
	g.chunk.PatchJumpTarget(jumpIfFalse, loopEnd)

	g.popScope()
	g.chunk.Slots.Rewind(mark)
	return 0
}

func (g *Generator) loadRangeBound(line int, tok token.Token) byte {
	if tok.Kind == token.NUMBER {
		return g.compile(ast.Node{Pos: tok.Pos, Stmt: ast.LiteralNum{Tok: tok}})
	}
	return g.compile(ast.Node{Pos: tok.Pos, Stmt: ast.Variable{Tok: tok}})
}

// compileMatch lowers Match(scrutinee, cases) to a chain of
// IF_JMP_FALSE-gated equality comparisons against the scrutinee
// register: absent from the original codegen's visit dispatch (see
// DESIGN.md), implemented fully here per the expanded spec. No case
// matching falls through to returning the scrutinee's own value.
func (g *Generator) compileMatch(node ast.Node, stmt ast.Match) byte {
	scrutinee := g.compile(stmt.Scrutinee)
	dest := g.chunk.Slots.Alloc()
	var jumpEnds []int

	for _, c := range stmt.Cases {
		matchCase := c.Stmt.(ast.MatchCase)
		tagReg := g.compileMatchTag(c.Pos, matchCase.Tag)
		cmpReg := g.chunk.Slots.Alloc()
		g.chunk.Emit(c.Pos.Line, Instruction{Op: CMP_EQ, A0: scrutinee, A1: tagReg, A2: cmpReg})
		jumpNext := g.chunk.Emit(c.Pos.Line, Instruction{Op: IF_JMP_FALSE, A0: cmpReg})

		bodyReg := g.compile(matchCase.Body)
		g.copyInto(c.Pos.Line, dest, bodyReg)
		jumpEnds = append(jumpEnds, g.chunk.Emit(c.Pos.Line, Instruction{Op: JMP}))

		g.chunk.PatchJumpTarget(jumpNext, len(g.chunk.Instructions))
	}

	g.copyInto(node.Pos.Line, dest, scrutinee)
	end := len(g.chunk.Instructions)
	for _, pos := range jumpEnds {
		g.chunk.PatchJumpTarget(pos, end)
	}
	return dest
}

func (g *Generator) compileMatchTag(pos token.Position, tag token.Token) byte {
	if tag.Kind == token.NUMBER {
		return g.compile(ast.Node{Pos: pos, Stmt: ast.LiteralNum{Tok: tag}})
	}
	return g.compile(ast.Node{Pos: pos, Stmt: ast.Atom{Tok: tag}})
}

func (g *Generator) compileReturn(node ast.Node, stmt ast.Return) byte {
	var reg byte
	if stmt.Expr != nil {
		reg = g.compile(*stmt.Expr)
	} else {
		idx := g.chunk.AddConstant(Object{Kind: ObjI64, I64: 0})
		reg = g.chunk.Slots.Alloc()
		hi, lo := splitJumpTarget(idx)
		g.chunk.Emit(node.Pos.Line, Instruction{Op: LOAD_CONST, A0: hi, A1: lo, A2: reg})
	}
	g.chunk.Emit(node.Pos.Line, Instruction{Op: RETURN, A0: reg})
	return reg
}

func (g *Generator) compileAssert(node ast.Node, stmt ast.Assert) byte {
	cond := g.compile(stmt.Expr)
	jumpOK := g.chunk.Emit(node.Pos.Line, Instruction{Op: IF_JMP_FALSE, A0: cond})
	// Fallthrough means cond was truthy, so skip the trap.
	jumpPastTrap := g.chunk.Emit(node.Pos.Line, Instruction{Op: JMP})
	g.chunk.PatchJumpTarget(jumpOK, len(g.chunk.Instructions))

	// hasMsg distinguishes "no message" from a legitimate gc_ref_data
	// index 0, since ASSERT_FAIL's A0 alone can't tell them apart.
	var msgConstIdx, hasMsg byte
	if stmt.Message != nil {
		msgConstIdx = byte(g.chunk.InternString(stmt.Message.Lexeme))
		hasMsg = 1
	}
	g.chunk.Emit(node.Pos.Line, Instruction{Op: ASSERT_FAIL, A0: msgConstIdx, A1: hasMsg})

	g.chunk.PatchJumpTarget(jumpPastTrap, len(g.chunk.Instructions))
	return cond
}
