package compiler

import (
	"encoding/binary"
	"math"
	"nilan/ast"
	"nilan/lexer"
	"nilan/parser"
	"nilan/token"
	"testing"
)

// immediate builds the expected OP_IMMEDIATE instruction bytes for a number literal, matching
// what the lexer/compiler pipeline produces for any numeric token.
func immediate(n float64) []byte {
	instr := make([]byte, IMMEDIATE_INSTRUCTION_LENGTH)
	instr[0] = byte(OP_IMMEDIATE)
	binary.LittleEndian.PutUint64(instr[1:], math.Float64bits(n))
	return instr
}

// TestFullPipeline demonstrates the complete pipeline: tokens -> AST -> bytecode.
// Numeric literals lexed from real source reach the compiler as float64, so they compile to
// OP_IMMEDIATE rather than a constants-pool entry.
func TestFullPipeline(t *testing.T) {
	tests := []struct {
		name                 string
		source               string
		expectedInstructions []byte
	}{
		{
			name:                 "Simple addition",
			source:               "5 + 1;",
			expectedInstructions: append(append(immediate(5), immediate(1)...), byte(OP_ADD), byte(OP_POP), byte(OP_END)),
		},
		{
			name:                 "Multiplication",
			source:               "5 * 3;",
			expectedInstructions: append(append(immediate(5), immediate(3)...), byte(OP_MULTIPLY), byte(OP_POP), byte(OP_END)),
		},
		{
			name:                 "Negation",
			source:               "-5;",
			expectedInstructions: append(immediate(5), byte(OP_NEGATE), byte(OP_POP), byte(OP_END)),
		},
		{
			name:   "Complex expression",
			source: "5 * 3 + 2;",
			expectedInstructions: append(
				append(append(immediate(5), immediate(3)...), byte(OP_MULTIPLY)),
				append(immediate(2), byte(OP_ADD), byte(OP_POP), byte(OP_END))...,
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {

			lex := lexer.New(tt.source)
			tokens, errs := lex.Scan()
			if len(errs) > 0 {
				t.Fatalf("lexing failed: %v", errs[0])
			}

			p := parser.Make(tokens)
			statements, parseErrors := p.Parse()
			if len(parseErrors) > 0 {
				t.Fatalf("parsing failed: %v", parseErrors[0])
			}

			compiler := NewASTCompiler()
			bytecode, err := compiler.CompileAST(statements)
			if err != nil {
				t.Fatalf("compilation failed: %v", err)
			}

			if len(bytecode.Instructions) != len(tt.expectedInstructions) {
				t.Fatalf("bytecode length mismatch - got: %d, want: %d", len(bytecode.Instructions), len(tt.expectedInstructions))
			}

			for i, instr := range bytecode.Instructions {
				if instr != tt.expectedInstructions[i] {
					t.Errorf("instruction mismatch at index %d - got: %d, want: %d", i, instr, tt.expectedInstructions[i])
				}
			}
		})
	}
}

// TestPipelineWithManualAST compiles a manually constructed AST, without the lexer or parser.
// The literals are int64 here, so they still exercise the OP_CONSTANT path -- the corner the
// lexer/parser pipeline no longer reaches.
func TestPipelineWithManualAST(t *testing.T) {
	five := ast.Literal{Value: int64(5)}
	three := ast.Literal{Value: int64(3)}

	binaryExpr := ast.Binary{
		Left:     five,
		Operator: token.CreateToken(token.MULT, 0, 0),
		Right:    three,
	}

	exprStmt := ast.ExpressionStmt{
		Expression: binaryExpr,
	}

	statements := []ast.Stmt{exprStmt}

	compiler := NewASTCompiler()
	bytecode, err := compiler.CompileAST(statements)
	if err != nil {
		t.Fatalf("compilation failed: %v", err)
	}

	if len(bytecode.Instructions) != 9 {
		t.Errorf("bytecode length mismatch - got: %d, want: 9", len(bytecode.Instructions))
	}

	if len(bytecode.ConstantsPool) != 2 {
		t.Errorf("constants pool length mismatch - got: %d, want: 2", len(bytecode.ConstantsPool))
	}

	if bytecode.ConstantsPool[0] != int64(5) {
		t.Errorf("first constant mismatch - got: %v, want: 5", bytecode.ConstantsPool[0])
	}

	if bytecode.ConstantsPool[1] != int64(3) {
		t.Errorf("second constant mismatch - got: %v, want: 3", bytecode.ConstantsPool[1])
	}
}
