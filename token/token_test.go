package token

import "testing"

func TestJoin(t *testing.T) {
	p := Position{Index: 0, Line: 0, IndexEnd: 1, LineEnd: 0}
	q := Position{Index: 4, Line: 0, IndexEnd: 6, LineEnd: 0}

	got := p.Join(q)
	want := Position{Index: 0, Line: 0, IndexEnd: 6, LineEnd: 0}
	if got != want {
		t.Errorf("Join() = %v, want %v", got, want)
	}
}

func TestNewText(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		text string
	}{
		{"identifier", IDENTIFIER, "myVar"},
		{"number", NUMBER, "42"},
		{"atom", ATOM, "ready"},
		{"string", STRING_LIT, "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewText(tt.kind, tt.text, Position{})
			if got.Kind != tt.kind || got.Lexeme != tt.text {
				t.Errorf("NewText() = %v, want Kind=%s Lexeme=%q", got, tt.kind, tt.text)
			}
		})
	}
}

func TestKeywords(t *testing.T) {
	for spelling, kind := range Keywords {
		if Keywords[spelling] != kind {
			t.Errorf("Keywords[%q] = %v, want %v", spelling, Keywords[spelling], kind)
		}
	}
	if _, ok := Keywords["notakeyword"]; ok {
		t.Errorf("Keywords contains unexpected entry for notakeyword")
	}
}
