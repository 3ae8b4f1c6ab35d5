//go:build unix

package main

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// terminalWidth reads the controlling terminal's column count via
// TIOCGWINSZ, falling back to 80 columns when stdout isn't a terminal
// (piped output, CI logs). Used to wrap long `disassemble` listings in
// the repl/emit commands.
func terminalWidth() int {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil || ws.Col == 0 {
		return 80
	}
	return int(ws.Col)
}

// watchTerminalResize calls onResize once immediately and again every
// time the terminal is resized (SIGWINCH), until stop is closed. The
// repl command uses this to keep its disassembly word-wrap width
// current across a long interactive session.
func watchTerminalResize(stop <-chan struct{}, onResize func(width int)) {
	onResize(terminalWidth())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGWINCH)
	defer signal.Stop(sigs)

	for {
		select {
		case <-stop:
			return
		case <-sigs:
			onResize(terminalWidth())
		}
	}
}
