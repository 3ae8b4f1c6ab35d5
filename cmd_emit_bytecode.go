package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/subcommands"

	"gila/compiler"
)

// emitBytecodeCmd implements the `emit` subcommand: compile a source
// file and print its disassembled chunk listing without executing it,
// grounded on cmd_emit_bytecode.go's dump/disassemble split.
type emitBytecodeCmd struct {
	dumpBytecode bool
}

func (*emitBytecodeCmd) Name() string { return "emit" }
func (*emitBytecodeCmd) Synopsis() string {
	return "Emit the disassembled bytecode for a source file"
}
func (*emitBytecodeCmd) Usage() string {
	return `emit <file>:
  Compile a Gila source file and print its disassembled chunk.
`
}

func (cmd *emitBytecodeCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&cmd.dumpBytecode, "dumpBytecode", false, "also write the raw hex-encoded bytecode to a .gilac file")
}

func (cmd *emitBytecodeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		return fail("💥 file not provided")
	}
	gilaFile := args[0]
	data, err := os.ReadFile(gilaFile)
	if err != nil {
		return fail("💥 failed to read file: %v", err)
	}

	chunk, err := compileSource(string(data))
	if err != nil {
		return fail("%s", err.Error())
	}

	fmt.Fprint(os.Stdout, wrapDisassembly(chunk.Disassemble(), terminalWidth()))

	if cmd.dumpBytecode {
		fileName := strings.TrimSuffix(gilaFile, filepath.Ext(gilaFile))
		if err := compiler.DumpBytecode(chunk, fileName); err != nil {
			return fail("💥 dump bytecode error: %s", err.Error())
		}
	}

	return subcommands.ExitSuccess
}
