package analyser

import (
	"gila/lexer"
	"gila/parser"
	"testing"
)

func analyse(t *testing.T, src string) error {
	t.Helper()
	toks, err := lexer.New(src).Scan()
	if err != nil {
		t.Fatalf("lexer.Scan() error = %v", err)
	}
	node, err := parser.New(toks).Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return New().Analyse(node)
}

func TestAnalyseTypedDefineOK(t *testing.T) {
	if err := analyse(t, `x : u32 = 1`); err != nil {
		t.Fatalf("Analyse() error = %v", err)
	}
}

func TestAnalyseTypedDefineMismatch(t *testing.T) {
	err := analyse(t, `x : string = 1`)
	if err == nil {
		t.Fatal("Analyse() expected a TypeNotAssignable error")
	}
	if _, ok := err.(TypeNotAssignable); !ok {
		t.Errorf("error type = %T, want TypeNotAssignable", err)
	}
}

func TestAnalyseUnknownVariable(t *testing.T) {
	err := analyse(t, `y = x + 1`)
	if err == nil {
		t.Fatal("Analyse() expected an UnknownVariable error")
	}
	if _, ok := err.(UnknownVariable); !ok {
		t.Errorf("error type = %T, want UnknownVariable", err)
	}
}

func TestAnalyseRedeclarationInSameScope(t *testing.T) {
	err := analyse(t, `x = 1 x = 2`)
	if err == nil {
		t.Fatal("Analyse() expected a Redeclared error")
	}
	if _, ok := err.(Redeclared); !ok {
		t.Errorf("error type = %T, want Redeclared", err)
	}
}

func TestAnalyseRedeclarationAcrossNestedScopeOK(t *testing.T) {
	if err := analyse(t, `x = 1 do x = 2 end`); err != nil {
		t.Fatalf("Analyse() error = %v", err)
	}
}

func TestAnalyseFunctionCall(t *testing.T) {
	err := analyse(t, `
add fn (a: u32, b: u32) -> u32 do return a + b end
result = add(1, 2)
`)
	if err != nil {
		t.Fatalf("Analyse() error = %v", err)
	}
}

func TestAnalyseFunctionCallArityMismatch(t *testing.T) {
	err := analyse(t, `
add fn (a: u32, b: u32) -> u32 do return a + b end
result = add(1)
`)
	if err == nil {
		t.Fatal("Analyse() expected an arity-mismatch error")
	}
}

func TestAnalyseNamedTypeDeclAndConstructor(t *testing.T) {
	err := analyse(t, `
Point type x: u32 y: u32 end
p = Point(1, 2)
`)
	if err != nil {
		t.Fatalf("Analyse() error = %v", err)
	}
}

func TestAnalyseStructAccess(t *testing.T) {
	err := analyse(t, `
Point type x: u32 y: u32 end
p = Point(1, 2)
v = p.x
`)
	if err != nil {
		t.Fatalf("Analyse() error = %v", err)
	}
}

func TestAnalyseStructAccessUnknownField(t *testing.T) {
	err := analyse(t, `
Point type x: u32 y: u32 end
p = Point(1, 2)
v = p.z
`)
	if err == nil {
		t.Fatal("Analyse() expected an UnknownVariable error for an unknown field")
	}
}

func TestAnalyseIfCondMustBeBool(t *testing.T) {
	err := analyse(t, `if 1 then return 1 end`)
	if err == nil {
		t.Fatal("Analyse() expected a TypeNotAssignable error for a non-bool if condition")
	}
}

func TestAnalyseSliceIndex(t *testing.T) {
	err := analyse(t, `xs = [1, 2, 3] y = xs[0]`)
	if err != nil {
		t.Fatalf("Analyse() error = %v", err)
	}
}

func TestAnalyseTryKeepsOperandType(t *testing.T) {
	err := analyse(t, `
risky fn () -> u32 do return 1 end
x = !risky()
`)
	if err != nil {
		t.Fatalf("Analyse() error = %v", err)
	}
}

func TestAnalyseForLoopVariableIsU32(t *testing.T) {
	err := analyse(t, `for i in 0..10 do x = i + 1 end`)
	if err != nil {
		t.Fatalf("Analyse() error = %v", err)
	}
}

func TestAnalyseMatchOK(t *testing.T) {
	err := analyse(t, `
x = :a
match x
case :a then 1
case :b then 2
end
`)
	if err != nil {
		t.Fatalf("Analyse() error = %v", err)
	}
}

func TestAnalyseMatchUnknownScrutineeIsError(t *testing.T) {
	err := analyse(t, `
match y
case :a then 1
end
`)
	if err == nil {
		t.Fatal("Analyse() expected an UnknownVariable error for an unknown scrutinee")
	}
	if _, ok := err.(UnknownVariable); !ok {
		t.Errorf("error type = %T, want UnknownVariable", err)
	}
}
