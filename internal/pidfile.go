package internal

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrInvalidPID is returned when the PID file contains invalid data.
var ErrInvalidPID = errors.New("invalid PID in file")

// WritePID writes this process' ID, followed by a newline, to the file.
//
// The file will be created or truncated. Its mode depends on the umask.
func WritePID(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return fmt.Errorf("cannot open pid file (%s): %w", path, err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		_ = f.Close()
		return fmt.Errorf("error writing pid file (%s): %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("error writing pid file (%s): %w", path, err)
	}
	return nil
}

// ReadPID reads a PID as written by WritePID.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPID, pidStr)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("%w: PID must be positive, got %d", ErrInvalidPID, pid)
	}
	return pid, nil
}

// processAlive checks if a process exists, even if it belongs to another user.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
