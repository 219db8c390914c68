//go:build unix && !linux

package internal

import (
	"fmt"
	"net"
	"runtime"
)

// PeerCredentials are only implemented for Linux' SO_PEERCRED.
func PeerCredentials(conn net.Conn) (PeerIdentity, error) {
	return PeerIdentity{}, fmt.Errorf("peer credentials are not supported on %s", runtime.GOOS)
}
