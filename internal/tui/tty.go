package tui

import (
	"os"

	"github.com/mattn/go-isatty"
)

// IsTTY reports whether stdin and stdout are both terminals.
func IsTTY() bool {
	return isTerminal(os.Stdout.Fd()) && isTerminal(os.Stdin.Fd())
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
