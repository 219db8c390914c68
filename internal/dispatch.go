package internal

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net"

	"github.com/akamensky/base58"

	log "github.com/sirupsen/logrus"
)

// PeerIdentity is the kernel supplied identity of a connected process.
type PeerIdentity struct {
	PID int32
	UID uint32
	GID uint32
}

// Conn is an accepted client connection.
type Conn struct {
	net.Conn

	// ID is a short random identifier, used to correlate log entries.
	ID string

	// Peer is populated by the Dispatcher before calling the Handler.
	Peer PeerIdentity
}

// newConnID returns a base58 encoded random ID with 32 bits of randomness.
func newConnID() string {
	idBuff := make([]byte, 4)
	if _, err := rand.Read(idBuff); err != nil {
		return "-"
	}
	return string(base58.Encode(idBuff))
}

func newConn(c net.Conn) *Conn {
	return &Conn{
		Conn: c,
		ID:   newConnID(),
	}
}

// Handler serves exactly one accepted connection.
//
// The Handler is responsible for closing the connection. If an error is
// returned, the Dispatcher closes the connection as well.
type Handler interface {
	HandleRequest(conn *Conn) error
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(conn *Conn) error

// HandleRequest calls f(conn).
func (f HandlerFunc) HandleRequest(conn *Conn) error {
	return f(conn)
}

// Dispatcher identifies the peer of each connection and passes it on.
type Dispatcher struct {
	handler Handler
	audit   *AuditStore

	peerCredentials func(net.Conn) (PeerIdentity, error)
}

// NewDispatcher for a Handler. The AuditStore is optional and might be nil.
func NewDispatcher(handler Handler, audit *AuditStore) *Dispatcher {
	return &Dispatcher{
		handler:         handler,
		audit:           audit,
		peerCredentials: PeerCredentials,
	}
}

// Dispatch a connection to the Handler.
//
// Connections without retrievable peer credentials are closed without
// reaching the Handler. Errors or panics of the Handler are logged and
// result in a closed connection; they never reach the caller.
func (d *Dispatcher) Dispatch(conn *Conn) {
	logger := log.WithField("conn", conn.ID)

	peer, err := d.peerCredentials(conn.Conn)
	if err != nil {
		logger.WithError(err).Error("getsockopt(SO_PEERCRED) failed")
		closeConn(logger, conn)
		d.record(logger, conn, OutcomeNoCredentials)
		return
	}
	conn.Peer = peer

	logger.Infof("connection from pid=%d uid=%d gid=%d", peer.PID, peer.UID, peer.GID)

	outcome := OutcomeHandled
	if err := d.handle(conn); err != nil {
		logger.WithError(err).Warn("Request handling failed")
		closeConn(logger, conn)
		outcome = OutcomeFailed
	}

	d.record(logger, conn, outcome)
}

// handle calls the Handler and turns a panic into an error.
func (d *Dispatcher) handle(conn *Conn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("request handler panicked: %v", r)
		}
	}()

	return d.handler.HandleRequest(conn)
}

func (d *Dispatcher) record(logger *log.Entry, conn *Conn, outcome Outcome) {
	if d.audit == nil {
		return
	}

	if err := d.audit.Record(conn, outcome); err != nil {
		logger.WithError(err).Warn("Cannot write audit record")
	}
}

// closeConn closes a connection which might already be closed.
func closeConn(logger *log.Entry, conn *Conn) {
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.WithError(err).Warn("Problem closing socket")
	}
}
