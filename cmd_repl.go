package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"
	"github.com/google/subcommands"
	"nilan/interpreter"
	"nilan/lexer"
	"nilan/parser"
)

// replCmd implements the REPL command
type replCmd struct{}

func (*replCmd) Name() string     { return "repl" }
func (*replCmd) Synopsis() string { return "Start REPL session" }
func (*replCmd) Usage() string {
	return `repl:
  Start interactive REPL session.
`
}
func (r *replCmd) SetFlags(f *flag.FlagSet) {}

// treeWalkRepl drives an interactive tree-walking evaluator session over a
// readline-backed prompt, giving the user history and line editing.
func treeWalkRepl(out io.Writer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		HistoryFile:     "/tmp/nilan_repl_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	interp := interpreter.Make()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if line == "exit" {
			return nil
		}

		lex := lexer.New(line)
		tokens, lexErrs := lex.Scan()
		if len(lexErrs) > 0 {
			for _, lexErr := range lexErrs {
				fmt.Fprintln(out, lexErr)
			}
			continue
		}

		p := parser.Make(tokens)
		ast, parseErrs := p.Parse()
		if len(parseErrs) > 0 {
			for _, parseErr := range parseErrs {
				fmt.Fprintln(os.Stderr, parseErr)
			}
			continue
		}

		interp.Interpret(ast)
	}
}

func (r *replCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fmt.Println("\n\nWelcome to Nilan!")
	if err := treeWalkRepl(os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
