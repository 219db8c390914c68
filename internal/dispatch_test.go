package internal

import (
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// acceptOne returns the server side of a new connection to the Listener.
func acceptOne(t *testing.T, l *Listener) (server *Conn, client net.Conn) {
	t.Helper()

	clientCh := make(chan net.Conn, 1)
	go func() {
		c, err := net.Dial("unix", l.Path())
		if err != nil {
			clientCh <- nil
			return
		}
		clientCh <- c
	}()

	server, err := l.Accept()
	require.NoError(t, err)

	client = <-clientCh
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })
	return
}

// assertClosed checks if the peer has closed the connection.
func assertClosed(t *testing.T, client net.Conn) {
	t.Helper()

	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := client.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestDispatchPeerCredentials(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	l := newTestListener(t)
	server, client := acceptOne(t, l)

	var peer PeerIdentity
	d := NewDispatcher(HandlerFunc(func(conn *Conn) error {
		peer = conn.Peer
		return conn.Close()
	}), nil)
	d.Dispatch(server)

	assert.Equal(t, int32(os.Getpid()), peer.PID)
	assert.Equal(t, uint32(os.Geteuid()), peer.UID)
	assert.Equal(t, uint32(os.Getegid()), peer.GID)
	assertClosed(t, client)

	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.InfoLevel && entry.Data["conn"] == server.ID {
			found = true
			assert.Contains(t, entry.Message, "connection from pid=")
		}
	}
	assert.True(t, found)
}

func TestDispatchNoPeerCredentials(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	server, client := net.Pipe()
	defer client.Close()

	called := false
	d := NewDispatcher(HandlerFunc(func(conn *Conn) error {
		called = true
		return nil
	}), nil)
	d.Dispatch(newConn(server))

	assert.False(t, called)

	_, err := client.Write([]byte{0})
	assert.ErrorIs(t, err, io.ErrClosedPipe)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "getsockopt(SO_PEERCRED) failed", hook.LastEntry().Message)
}

func TestDispatchHandlerFailure(t *testing.T) {
	handlers := map[string]Handler{
		"error": HandlerFunc(func(conn *Conn) error {
			return errors.New("oops")
		}),
		"panic": HandlerFunc(func(conn *Conn) error {
			panic("oops")
		}),
	}

	for name, handler := range handlers {
		t.Run(name, func(t *testing.T) {
			l := newTestListener(t)
			server, client := acceptOne(t, l)

			d := NewDispatcher(handler, nil)
			assert.NotPanics(t, func() { d.Dispatch(server) })
			assertClosed(t, client)
		})
	}
}

func TestDispatchAudit(t *testing.T) {
	audit, err := NewAuditStore(t.TempDir(), time.Hour, false)
	require.NoError(t, err)
	defer audit.Close()

	d := NewDispatcher(HandlerFunc(func(conn *Conn) error {
		return conn.Close()
	}), audit)

	l := newTestListener(t)
	server, _ := acceptOne(t, l)
	d.Dispatch(server)

	pipeServer, pipeClient := net.Pipe()
	defer pipeClient.Close()
	d.Dispatch(newConn(pipeServer))

	records, err := audit.All()
	require.NoError(t, err)
	require.Len(t, records, 2)

	outcomes := map[Outcome]AuditRecord{}
	for _, record := range records {
		outcomes[record.Outcome] = record
	}

	handled, ok := outcomes[OutcomeHandled]
	require.True(t, ok)
	assert.Equal(t, server.ID, handled.Conn)
	assert.Equal(t, uint32(os.Geteuid()), handled.UID)

	_, ok = outcomes[OutcomeNoCredentials]
	assert.True(t, ok)
}
