package token

import "testing"

func TestCreateToken(t *testing.T) {
	tok := CreateToken(ASSIGN, 3, 10)
	if tok.TokenType != ASSIGN {
		t.Errorf("got type %s, want %s", tok.TokenType, ASSIGN)
	}
	if tok.Lexeme != "=" {
		t.Errorf("got lexeme %q, want %q", tok.Lexeme, "=")
	}
	if tok.Line != 3 || tok.Column != 10 {
		t.Errorf("got position (%d,%d), want (3,10)", tok.Line, tok.Column)
	}
}

func TestCreateLiteralToken(t *testing.T) {
	tok := CreateLiteralToken(INT, int64(42), "42", 1, 0)
	if tok.Literal != int64(42) {
		t.Errorf("got literal %v, want 42", tok.Literal)
	}
	if tok.Lexeme != "42" {
		t.Errorf("got lexeme %q, want %q", tok.Lexeme, "42")
	}
}

func TestKeywordsCoverReservedWords(t *testing.T) {
	reserved := []string{
		"and", "class", "else", "false", "fun", "for", "if", "nil",
		"or", "print", "return", "super", "this", "true", "var", "while",
	}
	for _, word := range reserved {
		if _, ok := KeyWords[word]; !ok {
			t.Errorf("expected %q to be a reserved keyword", word)
		}
	}
}

func TestTokenString(t *testing.T) {
	tok := CreateToken(LPA, 0, 0)
	got := tok.String()
	want := `Token {Type: (, Value: "("}`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
