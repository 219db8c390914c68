//go:build unix && !linux

package internal

// sendNoSignal is unavailable; SIGPIPE must be handled otherwise.
const sendNoSignal = 0
