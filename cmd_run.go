package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"gila/analyser"
	"gila/compiler"
	"gila/lexer"
	"gila/parser"
	"gila/vm"
)

// runCmd implements the `run` subcommand: lex, parse, analyse, compile,
// and execute a source file, printing the value it halts with.
type runCmd struct {
	emitDisassembly bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "Execute a Gila source file" }
func (*runCmd) Usage() string {
	return `run <file>:
  Lex, parse, analyse, compile and execute a Gila source file.
`
}

func (r *runCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.emitDisassembly, "disassemble", false, "print the compiled chunk before executing it")
}

func (r *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		return fail("💥 file not provided")
	}
	filename := args[0]

	data, err := os.ReadFile(filename)
	if err != nil {
		return fail("💥 failed to read file: %v", err)
	}

	chunk, err := compileSource(string(data))
	if err != nil {
		return fail("%s", err.Error())
	}

	if r.emitDisassembly {
		fmt.Fprint(os.Stdout, wrapDisassembly(chunk.Disassemble(), terminalWidth()))
	}

	result, err := vm.New().Run(chunk)
	if err != nil {
		return fail("%s", err.Error())
	}
	fmt.Fprintln(os.Stdout, result.String())
	return subcommands.ExitSuccess
}

// compileSource runs the full lex -> parse -> analyse -> compile
// pipeline over src, returning the first phase error encountered.
func compileSource(src string) (*compiler.Chunk, error) {
	toks, err := lexer.New(src).Scan()
	if err != nil {
		return nil, err
	}
	node, err := parser.New(toks).Parse()
	if err != nil {
		return nil, err
	}
	if err := analyser.New().Analyse(node); err != nil {
		return nil, err
	}
	return compiler.Generate(node)
}
