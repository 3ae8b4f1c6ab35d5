package parser

import (
	"gila/ast"
	"gila/lexer"
	"testing"
)

func parse(t *testing.T, src string) ast.Node {
	t.Helper()
	toks, err := lexer.New(src).Scan()
	if err != nil {
		t.Fatalf("lexer.Scan() error = %v", err)
	}
	node, err := New(toks).Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return node
}

func program(t *testing.T, node ast.Node) ast.Program {
	t.Helper()
	prog, ok := node.Stmt.(ast.Program)
	if !ok {
		t.Fatalf("root node = %T, want ast.Program", node.Stmt)
	}
	return prog
}

func TestParseLiterals(t *testing.T) {
	prog := program(t, parse(t, `42 true false "hi" :ready`))
	if len(prog.Stmts) != 5 {
		t.Fatalf("got %d statements, want 5", len(prog.Stmts))
	}
	if _, ok := prog.Stmts[0].Stmt.(ast.LiteralNum); !ok {
		t.Errorf("stmt 0 = %T, want LiteralNum", prog.Stmts[0].Stmt)
	}
	if b, ok := prog.Stmts[1].Stmt.(ast.LiteralBool); !ok || b.Value != true {
		t.Errorf("stmt 1 = %v, want LiteralBool{true}", prog.Stmts[1].Stmt)
	}
	if b, ok := prog.Stmts[2].Stmt.(ast.LiteralBool); !ok || b.Value != false {
		t.Errorf("stmt 2 = %v, want LiteralBool{false}", prog.Stmts[2].Stmt)
	}
	if _, ok := prog.Stmts[3].Stmt.(ast.StringLit); !ok {
		t.Errorf("stmt 3 = %T, want StringLit", prog.Stmts[3].Stmt)
	}
	if _, ok := prog.Stmts[4].Stmt.(ast.Atom); !ok {
		t.Errorf("stmt 4 = %T, want Atom", prog.Stmts[4].Stmt)
	}
}

func TestParseBinOpPrecedence(t *testing.T) {
	// 1 + 2 * 3 should bind as 1 + (2 * 3): the outer node is ADD.
	prog := program(t, parse(t, `1 + 2 * 3`))
	bin, ok := prog.Stmts[0].Stmt.(ast.BinOp)
	if !ok {
		t.Fatalf("stmt 0 = %T, want BinOp", prog.Stmts[0].Stmt)
	}
	if bin.Op != ast.Add {
		t.Errorf("outer op = %v, want Add", bin.Op)
	}
	rhs, ok := bin.Rhs.Stmt.(ast.BinOp)
	if !ok {
		t.Fatalf("rhs = %T, want BinOp", bin.Rhs.Stmt)
	}
	if rhs.Op != ast.Mul {
		t.Errorf("inner op = %v, want Mul", rhs.Op)
	}
}

func TestParseComparisonAndLogicalOr(t *testing.T) {
	prog := program(t, parse(t, `a == 1 or b == 2`))
	bin, ok := prog.Stmts[0].Stmt.(ast.BinOp)
	if !ok || bin.Op != ast.LogicalOr {
		t.Fatalf("stmt 0 = %v, want BinOp{Op: LogicalOr}", prog.Stmts[0].Stmt)
	}
	lhs, ok := bin.Lhs.Stmt.(ast.BinOp)
	if !ok || lhs.Op != ast.Eq {
		t.Errorf("lhs = %v, want BinOp{Op: Eq}", bin.Lhs.Stmt)
	}
}

func TestParseAssignment(t *testing.T) {
	// At statement position `x = ...` is an untyped Define (see
	// TestParseUntypedDefine); parentheses put it in expression position,
	// where `=` parses as Assign.
	prog := program(t, parse(t, `(x = 1 + 2)`))
	assign, ok := prog.Stmts[0].Stmt.(ast.Assign)
	if !ok {
		t.Fatalf("stmt 0 = %T, want Assign", prog.Stmts[0].Stmt)
	}
	if _, ok := assign.Lhs.Stmt.(ast.Variable); !ok {
		t.Errorf("lhs = %T, want Variable", assign.Lhs.Stmt)
	}
}

func TestParseTypedDefine(t *testing.T) {
	prog := program(t, parse(t, `x : u32 = 1`))
	def, ok := prog.Stmts[0].Stmt.(ast.Define)
	if !ok {
		t.Fatalf("stmt 0 = %T, want Define", prog.Stmts[0].Stmt)
	}
	if def.Type == nil || def.Type.Kind != ast.U32 {
		t.Errorf("def.Type = %v, want U32", def.Type)
	}
	if def.Init == nil {
		t.Fatal("def.Init = nil, want an initializer")
	}
}

func TestParseUntypedDefine(t *testing.T) {
	prog := program(t, parse(t, `x = 1`))
	def, ok := prog.Stmts[0].Stmt.(ast.Define)
	if !ok {
		t.Fatalf("stmt 0 = %T, want Define", prog.Stmts[0].Stmt)
	}
	if def.Type != nil {
		t.Errorf("def.Type = %v, want nil", def.Type)
	}
}

func TestParseNamedFunction(t *testing.T) {
	prog := program(t, parse(t, `add fn (a: u32, b: u32) -> u32 do return a + b end`))
	fn, ok := prog.Stmts[0].Stmt.(ast.NamedFunction)
	if !ok {
		t.Fatalf("stmt 0 = %T, want NamedFunction", prog.Stmts[0].Stmt)
	}
	if fn.Name.Lexeme != "add" {
		t.Errorf("fn.Name = %q, want add", fn.Name.Lexeme)
	}
	if len(fn.Params) != 2 {
		t.Fatalf("got %d params, want 2", len(fn.Params))
	}
	if fn.ReturnType == nil || fn.ReturnType.Kind != ast.U32 {
		t.Errorf("fn.ReturnType = %v, want U32", fn.ReturnType)
	}
	if _, ok := fn.Body.Stmt.(ast.Block); !ok {
		t.Errorf("fn.Body = %T, want Block", fn.Body.Stmt)
	}
}

func TestParseNamedTypeDecl(t *testing.T) {
	prog := program(t, parse(t, `Point type x: u32 y: u32 end`))
	decl, ok := prog.Stmts[0].Stmt.(ast.NamedTypeDecl)
	if !ok {
		t.Fatalf("stmt 0 = %T, want NamedTypeDecl", prog.Stmts[0].Stmt)
	}
	if len(decl.Fields) != 2 {
		t.Fatalf("got %d fields, want 2", len(decl.Fields))
	}
}

func TestParseIfElse(t *testing.T) {
	prog := program(t, parse(t, `if true then return 1 else return 2 end`))
	ifStmt, ok := prog.Stmts[0].Stmt.(ast.If)
	if !ok {
		t.Fatalf("stmt 0 = %T, want If", prog.Stmts[0].Stmt)
	}
	if ifStmt.Else == nil {
		t.Fatal("ifStmt.Else = nil, want an else branch")
	}
}

func TestParseFor(t *testing.T) {
	prog := program(t, parse(t, `for i in 0..10 do assert true end`))
	forStmt, ok := prog.Stmts[0].Stmt.(ast.For)
	if !ok {
		t.Fatalf("stmt 0 = %T, want For", prog.Stmts[0].Stmt)
	}
	if forStmt.Var.Lexeme != "i" {
		t.Errorf("forStmt.Var = %q, want i", forStmt.Var.Lexeme)
	}
}

func TestParseCallIndexStructAccessChain(t *testing.T) {
	// Postfix forms are layered by precedence (call below index below
	// struct-access, see the parser.go header), so a chain binds
	// struct-access first, then index, then call.
	prog := program(t, parse(t, `foo.bar[0](1, 2)`))
	call, ok := prog.Stmts[0].Stmt.(ast.Call)
	if !ok {
		t.Fatalf("stmt 0 = %T, want Call", prog.Stmts[0].Stmt)
	}
	idx, ok := call.Callee.Stmt.(ast.Index)
	if !ok {
		t.Fatalf("call.Callee = %T, want Index", call.Callee.Stmt)
	}
	if _, ok := idx.Collection.Stmt.(ast.StructAccess); !ok {
		t.Fatalf("idx.Collection = %T, want StructAccess", idx.Collection.Stmt)
	}
	if len(call.Args) != 2 {
		t.Errorf("got %d args, want 2", len(call.Args))
	}
}

func TestParseTry(t *testing.T) {
	prog := program(t, parse(t, `!risky()`))
	try, ok := prog.Stmts[0].Stmt.(ast.Try)
	if !ok {
		t.Fatalf("stmt 0 = %T, want Try", prog.Stmts[0].Stmt)
	}
	if _, ok := try.Expr.Stmt.(ast.Call); !ok {
		t.Errorf("try.Expr = %T, want Call", try.Expr.Stmt)
	}
}

func TestParseMatch(t *testing.T) {
	prog := program(t, parse(t, `
match x
case :a then 1
case :b then 2
end
`))
	match, ok := prog.Stmts[0].Stmt.(ast.Match)
	if !ok {
		t.Fatalf("stmt 0 = %T, want Match", prog.Stmts[0].Stmt)
	}
	if len(match.Cases) != 2 {
		t.Fatalf("got %d cases, want 2", len(match.Cases))
	}
	first, ok := match.Cases[0].Stmt.(ast.MatchCase)
	if !ok {
		t.Fatalf("case 0 = %T, want MatchCase", match.Cases[0].Stmt)
	}
	if first.Tag.Lexeme != "a" {
		t.Errorf("case 0 tag = %q, want a", first.Tag.Lexeme)
	}
}

func TestParseMatchRequiresNumberOrAtomTag(t *testing.T) {
	toks, err := lexer.New(`match x case 1 + 1 then 1 end`).Scan()
	if err != nil {
		t.Fatalf("lexer.Scan() error = %v", err)
	}
	if _, err := New(toks).Parse(); err == nil {
		t.Fatal("Parse() error = nil, want an error for a non-literal match tag")
	}
}

func TestParseSliceLiteral(t *testing.T) {
	prog := program(t, parse(t, `[1, 2, 3]`))
	slice, ok := prog.Stmts[0].Stmt.(ast.Slice)
	if !ok {
		t.Fatalf("stmt 0 = %T, want Slice", prog.Stmts[0].Stmt)
	}
	if len(slice.Items) != 3 {
		t.Errorf("got %d items, want 3", len(slice.Items))
	}
}

func TestParseImport(t *testing.T) {
	prog := program(t, parse(t, `import socket.time`))
	imp, ok := prog.Stmts[0].Stmt.(ast.Import)
	if !ok {
		t.Fatalf("stmt 0 = %T, want Import", prog.Stmts[0].Stmt)
	}
	if len(imp.Path) != 2 || imp.Path[0].Lexeme != "socket" || imp.Path[1].Lexeme != "time" {
		t.Errorf("imp.Path = %v, want [socket time]", imp.Path)
	}
}

func TestParseAssertWithMessage(t *testing.T) {
	prog := program(t, parse(t, `assert true, "should hold"`))
	assert, ok := prog.Stmts[0].Stmt.(ast.Assert)
	if !ok {
		t.Fatalf("stmt 0 = %T, want Assert", prog.Stmts[0].Stmt)
	}
	if assert.Message == nil || assert.Message.Lexeme != "should hold" {
		t.Errorf("assert.Message = %v, want \"should hold\"", assert.Message)
	}
}

func TestParseAnnotation(t *testing.T) {
	prog := program(t, parse(t, `&native(socket) connect`))
	ann, ok := prog.Stmts[0].Stmt.(ast.Annotation)
	if !ok {
		t.Fatalf("stmt 0 = %T, want Annotation", prog.Stmts[0].Stmt)
	}
	if ann.Name.Lexeme != "native" {
		t.Errorf("ann.Name = %q, want native", ann.Name.Lexeme)
	}
	if len(ann.Args) != 1 || ann.Args[0].Lexeme != "socket" {
		t.Errorf("ann.Args = %v, want [socket]", ann.Args)
	}
	if _, ok := ann.Target.Stmt.(ast.Variable); !ok {
		t.Errorf("ann.Target = %T, want Variable", ann.Target.Stmt)
	}
}

func TestParseUnexpectedTokenIsParseError(t *testing.T) {
	toks, err := lexer.New(`)`).Scan()
	if err != nil {
		t.Fatalf("lexer.Scan() error = %v", err)
	}
	_, err = New(toks).Parse()
	if err == nil {
		t.Fatal("Parse() expected an error for a leading ')'")
	}
	if _, ok := err.(ParseError); !ok {
		t.Errorf("Parse() error type = %T, want ParseError", err)
	}
}

func TestParseMissingEndIsParseError(t *testing.T) {
	toks, err := lexer.New(`do return 1`).Scan()
	if err != nil {
		t.Fatalf("lexer.Scan() error = %v", err)
	}
	_, err = New(toks).Parse()
	if err == nil {
		t.Fatal("Parse() expected an error for a missing 'end'")
	}
}
