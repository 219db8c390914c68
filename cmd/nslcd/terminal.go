package main

import (
	"os"

	"golang.org/x/sys/unix"
)

// stdinIsTerminal reports if the standard input is a terminal.
var stdinIsTerminal = func() bool {
	_, err := unix.IoctlGetTermios(int(os.Stdin.Fd()), ioctlReadTermios)
	return err == nil
}
