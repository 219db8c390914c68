//go:build linux

package internal

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// PeerCredentials queries SO_PEERCRED of a Unix domain socket connection.
func PeerCredentials(conn net.Conn) (PeerIdentity, error) {
	sysConn, ok := conn.(syscall.Conn)
	if !ok {
		return PeerIdentity{}, fmt.Errorf("cannot use %T for peer credentials", conn)
	}

	rawConn, err := sysConn.SyscallConn()
	if err != nil {
		return PeerIdentity{}, err
	}

	var (
		ucred    *unix.Ucred
		ucredErr error
	)
	err = rawConn.Control(func(fd uintptr) {
		ucred, ucredErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return PeerIdentity{}, err
	}
	if ucredErr != nil {
		return PeerIdentity{}, ucredErr
	}

	return PeerIdentity{
		PID: ucred.Pid,
		UID: ucred.Uid,
		GID: ucred.Gid,
	}, nil
}
