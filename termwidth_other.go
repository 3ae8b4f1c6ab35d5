//go:build !unix

package main

// terminalWidth falls back to a fixed width on platforms without a
// TIOCGWINSZ ioctl (golang.org/x/sys/unix is unix-only).
func terminalWidth() int { return 80 }

func watchTerminalResize(stop <-chan struct{}, onResize func(width int)) {
	onResize(terminalWidth())
	<-stop
}
