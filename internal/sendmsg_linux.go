//go:build linux

package internal

import "golang.org/x/sys/unix"

const sendNoSignal = unix.MSG_NOSIGNAL
