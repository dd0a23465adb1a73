package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"nilan/compiler"
	"nilan/lexer"
	"nilan/parser"
	"nilan/vm"
)

// main implements the CLI contract directly for the common case (`nilan
// <script>`, `nilan help`, bare `nilan`) and falls through to the
// subcommands framework for the diagnostic backends (run, runC, repl,
// cRepl, emit).
func main() {
	args := os.Args[1:]

	if len(args) == 0 {
		fmt.Println("Usage: nilan [script]")
		os.Exit(1)
	}

	switch args[0] {
	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)
	case "run", "runC", "repl", "cRepl", "emit", "commands", "flags":
		runSubcommands()
		return
	}

	os.Exit(runScript(args[0]))
}

func printUsage() {
	fmt.Print(`Usage: nilan [script]

Pass a path to execute a file with
the bytecode VM (the default backend), or use a subcommand to pick a
different backend or diagnostic:

  run    <file>   execute with the tree-walking evaluator
  runC   <file>   execute with the bytecode VM (same as the bare form)
  repl            tree-walking evaluator REPL
  cRepl           bytecode VM REPL
  emit   <file>   emit the compiled bytecode for a source file
`)
}

func runSubcommands() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&runCmd{}, "")
	subcommands.Register(&runCompiledCmd{}, "")
	subcommands.Register(&replCmd{}, "")
	subcommands.Register(&replCompiledCmd{}, "")
	subcommands.Register(&emitBytecodeCmd{}, "")

	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}

// runScript executes a single source file through the bytecode VM,
// matching the exit-status contract: a missing/unreadable file or a
// parse error exits 1, a runtime error exits 2.
func runScript(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[error]: Failed to read file: %v\n", err)
		return 1
	}

	lex := lexer.New(string(data))
	tokens, lexErrs := lex.Scan()
	if len(lexErrs) > 0 {
		for _, lexErr := range lexErrs {
			fmt.Fprintf(os.Stderr, "[error]: Parse: %v\n", lexErr)
		}
		return 1
	}

	p := parser.Make(tokens)
	statements, parseErrs := p.Parse()
	if len(parseErrs) > 0 {
		for _, parseErr := range parseErrs {
			fmt.Fprintf(os.Stderr, "[error]: Parse: %v\n", parseErr)
		}
		return 1
	}

	astCompiler := compiler.NewASTCompiler()
	bytecode, compileErr := astCompiler.CompileAST(statements)
	if compileErr != nil {
		fmt.Fprintf(os.Stderr, "[error]: Parse: %v\n", compileErr)
		return 1
	}

	machine := vm.New()
	if runErr := machine.Run(bytecode); runErr != nil {
		fmt.Fprintf(os.Stderr, "[error]: %v\n", runErr)
		return 2
	}

	return 0
}
