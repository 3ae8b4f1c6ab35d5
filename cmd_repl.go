package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/chzyer/readline"
	"github.com/google/subcommands"

	"gila/lexer"
	"gila/token"
	"gila/vm"
)

// replCmd implements the `repl` subcommand: a line-buffered read-eval
// loop built on chzyer/readline for editing/history, the way the
// teacher's cRepl command does.
type replCmd struct {
	showDisassembly bool
}

func (*replCmd) Name() string     { return "repl" }
func (*replCmd) Synopsis() string { return "Start an interactive Gila session" }
func (*replCmd) Usage() string {
	return `repl:
  Start an interactive read-eval-print loop.
`
}
func (r *replCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.showDisassembly, "disassemble", false, "print each compiled chunk before executing it")
}

func (r *replCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fmt.Println("Welcome to Gila!")

	rl, err := readline.New(">>> ")
	if err != nil {
		return fail("💥 failed to start readline: %v", err)
	}
	defer rl.Close()

	// width tracks the terminal's current column count, refreshed on
	// SIGWINCH, so a long-lived session rewraps disassembly listings
	// after the user resizes their window instead of wrapping at
	// whatever width was current at startup.
	var width atomic.Int64
	stop := make(chan struct{})
	defer close(stop)
	go watchTerminalResize(stop, func(w int) { width.Store(int64(w)) })

	runREPL(rl, r.showDisassembly, func() int { return int(width.Load()) })
	return subcommands.ExitSuccess
}

// runREPL reads lines until EOF/interrupt, accumulating them into one
// buffer until isInputReady reports the buffered source is a complete
// statement (balanced do...end, no trailing operator/keyword), then
// recompiles and runs the whole buffer. Bytecode is not cached across
// iterations, the same simplification the teacher's cRepl leaves as a
// TODO — each line's state is rebuilt from the accumulated source text.
func runREPL(rl *readline.Instance, showDisassembly bool, width func() int) {
	var buffer strings.Builder
	machine := vm.New()

	for {
		if buffer.Len() == 0 {
			rl.SetPrompt(">>> ")
		} else {
			rl.SetPrompt("... ")
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				buffer.Reset()
				continue
			}
			return // io.EOF: Ctrl-D
		}
		if strings.TrimSpace(line) == "exit" && buffer.Len() == 0 {
			return
		}

		if buffer.Len() > 0 {
			buffer.WriteString("\n")
		}
		buffer.WriteString(line)
		source := buffer.String()

		toks, lexErr := lexer.New(source).Scan()
		if lexErr != nil {
			fmt.Println(lexErr)
			buffer.Reset()
			continue
		}
		if !isInputReady(toks) {
			continue
		}

		chunk, err := compileSource(source)
		if err != nil {
			fmt.Println(err)
			buffer.Reset()
			continue
		}
		if showDisassembly {
			fmt.Print(wrapDisassembly(chunk.Disassemble(), width()))
		}

		result, err := machine.Run(chunk)
		if err != nil {
			fmt.Println(err)
			buffer.Reset()
			continue
		}
		fmt.Println(result.String())
		buffer.Reset()
	}
}

// isInputReady reports whether tokens form a balanced, plausibly
// complete statement: every `do`, `if`, `for` and `match` matched by an
// `end`, and the last
// non-EOF token not left dangling mid-expression. Adapted from
// cmd_repl_compiled.go's isInputReady/allParseErrorsAtEOF, retargeted at
// Gila's do...end block delimiters instead of Nilan's braces.
func isInputReady(tokens []token.Token) bool {
	depth := 0
	for _, tok := range tokens {
		switch tok.Kind {
		case token.DO, token.IF, token.FOR, token.MATCH:
			depth++
		case token.END:
			depth--
		}
	}
	if depth > 0 {
		return false
	}

	last := lastNonEOF(tokens)
	if last == nil {
		return true
	}
	switch last.Kind {
	case token.ASSIGN, token.ADD, token.SUB, token.MUL, token.DIV,
		token.EQUALS, token.NOT_EQUAL, token.LESS, token.LESS_EQ,
		token.GREATER, token.GREATER_EQ, token.COMMA, token.LPAREN,
		token.THEN, token.ELSE, token.IN, token.OR, token.COLON,
		token.ARROW, token.EXCLAIM, token.DOLLAR:
		return false
	}
	return true
}

func lastNonEOF(tokens []token.Token) *token.Token {
	for i := len(tokens) - 1; i >= 0; i-- {
		if tokens[i].Kind != token.EOF {
			return &tokens[i]
		}
	}
	return nil
}
