package lexer

import (
	"gila/token"
	"strings"
	"testing"
)

func kinds(toks []token.Token) []token.Kind {
	ks := make([]token.Kind, len(toks))
	for i, t := range toks {
		ks[i] = t.Kind
	}
	return ks
}

func TestScanOperators(t *testing.T) {
	toks, err := New("== != >= <= -> .. ... + - * / = > < & ! $").Scan()
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	want := []token.Kind{
		token.EQUALS, token.NOT_EQUAL, token.GREATER_EQ, token.LESS_EQ, token.ARROW,
		token.DOTDOT, token.DOTDOTDOT, token.ADD, token.SUB, token.MUL, token.DIV,
		token.ASSIGN, token.GREATER, token.LESS, token.AMPERSAND, token.EXCLAIM, token.DOLLAR,
		token.EOF,
	}
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("Scan() produced %d tokens, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestScanKeywordsAndIdentifiers(t *testing.T) {
	toks, err := New("fn if then do end let type test for in return assert pass true false else import any bool string u32 or foo").Scan()
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	want := []token.Kind{
		token.FN, token.IF, token.THEN, token.DO, token.END, token.LET, token.TYPE, token.TEST,
		token.FOR, token.IN, token.RETURN, token.ASSERT, token.PASS, token.TRUE, token.FALSE,
		token.ELSE, token.IMPORT, token.ANY, token.BOOL, token.STRING, token.U32, token.OR,
		token.IDENTIFIER, token.EOF,
	}
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("Scan() produced %d tokens, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestScanNumberStringAtom(t *testing.T) {
	toks, err := New(`42 "hello" :ready`).Scan()
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(toks) != 4 {
		t.Fatalf("Scan() produced %d tokens, want 4: %v", len(toks), toks)
	}
	if toks[0].Kind != token.NUMBER || toks[0].Lexeme != "42" {
		t.Errorf("token 0 = %v, want NUMBER 42", toks[0])
	}
	if toks[1].Kind != token.STRING_LIT || toks[1].Lexeme != "hello" {
		t.Errorf("token 1 = %v, want STRING_LIT hello", toks[1])
	}
	if toks[2].Kind != token.ATOM || toks[2].Lexeme != "ready" {
		t.Errorf("token 2 = %v, want ATOM ready", toks[2])
	}
}

func TestScanDefinePunctuation(t *testing.T) {
	toks, err := New("x : u32 = 1").Scan()
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	want := []token.Kind{token.IDENTIFIER, token.COLON, token.U32, token.ASSIGN, token.NUMBER, token.EOF}
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("Scan() produced %d tokens, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestScanUnclosedStringIsLexError(t *testing.T) {
	_, err := New(`"unterminated`).Scan()
	if err == nil {
		t.Fatal("Scan() expected an error for an unclosed string literal")
	}
	if _, ok := err.(LexError); !ok {
		t.Errorf("Scan() error type = %T, want LexError", err)
	}
}

func TestScanIllegalCharacter(t *testing.T) {
	_, err := New("@").Scan()
	if err == nil {
		t.Fatal("Scan() expected an error for an illegal character")
	}
	lexErr, ok := err.(LexError)
	if !ok {
		t.Fatalf("Scan() error type = %T, want LexError", err)
	}
	if lexErr.Ch != '@' {
		t.Errorf("LexError.Ch = %q, want '@'", lexErr.Ch)
	}
}

func TestTokenSpanMatchesSourceText(t *testing.T) {
	src := `foo 42 "bar" :baz`
	toks, err := New(src).Scan()
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	runes := []rune(src)
	for _, tok := range toks {
		switch tok.Kind {
		case token.IDENTIFIER, token.NUMBER:
			got := string(runes[tok.Pos.Index:tok.Pos.IndexEnd])
			if got != tok.Lexeme {
				t.Errorf("token %v span %q != lexeme %q", tok.Kind, got, tok.Lexeme)
			}
		case token.STRING_LIT:
			// span includes the surrounding quotes; lexeme is the inner text.
			got := string(runes[tok.Pos.Index:tok.Pos.IndexEnd])
			if got != `"`+tok.Lexeme+`"` {
				t.Errorf("token STRING_LIT span %q, want %q", got, `"`+tok.Lexeme+`"`)
			}
		case token.ATOM:
			got := string(runes[tok.Pos.Index:tok.Pos.IndexEnd])
			if got != ":"+tok.Lexeme {
				t.Errorf("token ATOM span %q, want %q", got, ":"+tok.Lexeme)
			}
		}
	}
}

// re-lexing a round-trip of token spellings joined by single spaces yields
// tokens with the same kinds (modulo position).
func TestRoundTripKindsStable(t *testing.T) {
	src := `add fn (a: u32, b: u32) -> u32 do return a + b end`
	toks, err := New(src).Scan()
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	spellings := make([]string, 0, len(toks))
	for _, tok := range toks {
		if tok.Kind == token.EOF {
			continue
		}
		if tok.Lexeme != "" {
			switch tok.Kind {
			case token.STRING_LIT:
				spellings = append(spellings, `"`+tok.Lexeme+`"`)
			case token.ATOM:
				spellings = append(spellings, ":"+tok.Lexeme)
			default:
				spellings = append(spellings, tok.Lexeme)
			}
			continue
		}
		spellings = append(spellings, spellingOf(tok.Kind))
	}

	reToks, err := New(strings.Join(spellings, " ")).Scan()
	if err != nil {
		t.Fatalf("re-Scan() error = %v", err)
	}
	if len(reToks) != len(toks) {
		t.Fatalf("re-Scan() produced %d tokens, want %d", len(reToks), len(toks))
	}
	for i := range toks {
		if reToks[i].Kind != toks[i].Kind {
			t.Errorf("token %d kind = %v, want %v", i, reToks[i].Kind, toks[i].Kind)
		}
	}
}

func spellingOf(k token.Kind) string {
	for spelling, kind := range token.Keywords {
		if kind == k {
			return spelling
		}
	}
	switch k {
	case token.LPAREN:
		return "("
	case token.RPAREN:
		return ")"
	case token.LSQUARE:
		return "["
	case token.RSQUARE:
		return "]"
	case token.COLON:
		return ":"
	case token.COMMA:
		return ","
	case token.DOT:
		return "."
	case token.DOTDOT:
		return ".."
	case token.DOTDOTDOT:
		return "..."
	case token.ADD:
		return "+"
	case token.SUB:
		return "-"
	case token.MUL:
		return "*"
	case token.DIV:
		return "/"
	case token.ASSIGN:
		return "="
	case token.EQUALS:
		return "=="
	case token.NOT_EQUAL:
		return "!="
	case token.GREATER:
		return ">"
	case token.GREATER_EQ:
		return ">="
	case token.LESS:
		return "<"
	case token.LESS_EQ:
		return "<="
	case token.AMPERSAND:
		return "&"
	case token.EXCLAIM:
		return "!"
	case token.DOLLAR:
		return "$"
	case token.ARROW:
		return "->"
	}
	return ""
}
