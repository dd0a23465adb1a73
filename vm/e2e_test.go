package vm

import (
	"bytes"
	"io"
	"nilan/compiler"
	"nilan/lexer"
	"nilan/parser"
	"os"
	"testing"
)

// runSource lexes, parses, compiles and runs source through the real
// ASTCompiler/VM pair (as opposed to the hand-assembled bytecode the rest of
// this package's tests use), capturing whatever the program prints to
// stdout.
func runSource(t *testing.T, source string) string {
	t.Helper()

	lex := lexer.New(source)
	tokens, lexErrs := lex.Scan()
	if len(lexErrs) > 0 {
		t.Fatalf("unexpected lex errors: %v", lexErrs)
	}

	p := parser.Make(tokens)
	statements, parseErrs := p.Parse()
	if len(parseErrs) > 0 {
		t.Fatalf("unexpected parse errors: %v", parseErrs)
	}

	astCompiler := compiler.NewASTCompiler()
	bytecode, err := astCompiler.CompileAST(statements)
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}

	stdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	machine := New()
	runErr := machine.Run(bytecode)

	w.Close()
	os.Stdout = stdout

	var buf bytes.Buffer
	io.Copy(&buf, r)

	if runErr != nil {
		t.Fatalf("unexpected runtime error: %v", runErr)
	}

	return buf.String()
}

// TestEndToEndScenarios compiles and runs real source through the full
// pipeline for each scenario, rather than hand-assembling bytecode, so a
// compiler bug that only shows up once its output actually reaches the VM
// (e.g. emitting the wrong global opcode, or misaligning a function's
// parameter slots) can't hide behind tests that skip straight to bytecode.
func TestEndToEndScenarios(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			name:   "arithmetic precedence",
			source: `print 1 + 2 * 3;`,
			want:   "7\n",
		},
		{
			name:   "global string variables and concatenation",
			source: `var a = "foo"; var b = "bar"; print a + b;`,
			want:   "foobar\n",
		},
		{
			name:   "while loop over a mutated global",
			source: `var i = 0; while (i < 3) { print i; i = i + 1; }`,
			want:   "0\n1\n2\n",
		},
		{
			name:   "if-else",
			source: `if (nil) print "a"; else print "b";`,
			want:   "b\n",
		},
		{
			name:   "equality and truthiness",
			source: `print 1 == 1; print 1 == "1"; print !nil;`,
			want:   "true\nfalse\ntrue\n",
		},
		{
			name:   "nested block scoping",
			source: `var a = 1; { var a = 2; { var a = 3; print a; } print a; } print a;`,
			want:   "3\n2\n1\n",
		},
		{
			name:   "global declared without an initializer is still installed for a later assignment",
			source: `var x; x = 5; print x;`,
			want:   "5\n",
		},
		{
			name:   "function call binds parameters to the right stack slots",
			source: `fun double(n) { return n + n; } print double(21);`,
			want:   "42\n",
		},
		{
			name:   "recursive function call",
			source: `fun fact(n) { if (n <= 1) return 1; return n * fact(n - 1); } print fact(5);`,
			want:   "120\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := runSource(t, tt.source)
			if got != tt.want {
				t.Errorf("source %q\n got: %q\nwant: %q", tt.source, got, tt.want)
			}
		})
	}
}
