package internal

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"golang.org/x/sys/unix"
)

// SocketMode allows every local user to connect to the daemon.
const SocketMode os.FileMode = 0666

// ErrNoConnection is returned by Listener.Accept for transient failures, e.g.,
// an interrupted system call. The caller should just try again.
var ErrNoConnection = errors.New("no connection was accepted")

// fcntlInt is unix.FcntlInt, replaceable for tests.
var fcntlInt = unix.FcntlInt

// Listener owns the daemon's Unix domain socket.
type Listener struct {
	path string
	ln   *net.UnixListener

	closeOnce sync.Once
}

// OpenListener creates a listening Unix domain socket at the given path.
//
// An already existing socket file will be removed first. Any other kind of
// file at this path results in an error.
func OpenListener(path string) (*Listener, error) {
	if fileInfo, err := os.Lstat(path); err == nil {
		if fileInfo.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("cannot reuse %s: path exists and is not a Unix domain socket", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("cannot remove old Unix domain socket: %w", err)
		}
	}

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("cannot listen on Unix domain socket: %w", err)
	}

	ln.SetUnlinkOnClose(true)

	if err := os.Chmod(path, SocketMode); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("cannot chmod Unix domain socket: %w", err)
	}

	log.WithField("socket", path).Info("Created Unix domain socket listener")

	return &Listener{path: path, ln: ln}, nil
}

// Path of the Unix domain socket.
func (l *Listener) Path() string {
	return l.path
}

// isTransientAcceptError checks for errors where accept should be retried.
func isTransientAcceptError(err error) bool {
	return errors.Is(err, unix.EINTR) ||
		errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.EWOULDBLOCK) ||
		errors.Is(err, os.ErrDeadlineExceeded)
}

// Accept waits for the next connection.
//
// Transient errors result in ErrNoConnection. The accepted connection is
// switched to blocking mode; if this fails, the connection is closed and the
// error is returned. No error returned here should stop the daemon.
func (l *Listener) Accept() (*Conn, error) {
	uc, err := l.ln.AcceptUnix()
	if err != nil {
		if isTransientAcceptError(err) {
			log.WithError(err).Debug("accept() failed (ignored)")
			return nil, ErrNoConnection
		}

		log.WithError(err).Error("accept() failed")
		return nil, err
	}

	if err := clearNonblock(uc); err != nil {
		log.WithError(err).Error("Cannot switch connection to blocking mode")
		if closeErr := uc.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Problem closing socket")
		}
		return nil, err
	}

	return newConn(uc), nil
}

// clearNonblock removes an inherited O_NONBLOCK flag.
func clearNonblock(c syscall.Conn) error {
	rawConn, err := c.SyscallConn()
	if err != nil {
		return err
	}

	var fcntlErr error
	err = rawConn.Control(func(fd uintptr) {
		flags, err := fcntlInt(fd, unix.F_GETFL, 0)
		if err != nil {
			fcntlErr = fmt.Errorf("fcntl(F_GETFL) failed: %w", err)
			return
		}

		if _, err := fcntlInt(fd, unix.F_SETFL, flags&^unix.O_NONBLOCK); err != nil {
			fcntlErr = fmt.Errorf("fcntl(F_SETFL,~O_NONBLOCK) failed: %w", err)
		}
	})
	if err != nil {
		return err
	}
	return fcntlErr
}

// Interrupt a blocking Accept call, which will return ErrNoConnection.
func (l *Listener) Interrupt() {
	if err := l.ln.SetDeadline(time.Now()); err != nil {
		log.WithError(err).Debug("Cannot interrupt accept()")
	}
}

// Close the listener. Subsequent calls are no-ops.
func (l *Listener) Close() (err error) {
	l.closeOnce.Do(func() {
		err = l.ln.Close()
	})
	return
}
