package internal

import (
	"context"
	"os"
	"os/signal"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/sys/unix"
)

// serveRequests dispatches n connections to a RequestHandler.
func serveRequests(t *testing.T, n int) *RequestClient {
	t.Helper()

	l := newTestListener(t)
	d := NewDispatcher(&RequestHandler{}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)

		for i := 0; i < n; i++ {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			d.Dispatch(conn)
		}
	}()

	t.Cleanup(func() {
		_ = l.Close()
		<-done
	})

	return &RequestClient{SocketPath: l.Path()}
}

func TestRequestRoundTrip(t *testing.T) {
	client := serveRequests(t, 6)
	ctx := context.Background()

	require.NoError(t, client.Ping(ctx))

	u, err := client.User(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), u.UID)

	u, err = client.UserByID(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "root", u.Name)

	g, err := client.Group(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), g.GID)

	g, err = client.GroupByID(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "root", g.Name)

	_, err = client.User(ctx, "nslcd-no-such-user")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestRequestUnsupportedType(t *testing.T) {
	client := serveRequests(t, 1)

	_, err := client.call(context.Background(), RequestMsg{Type: RequestMsgType(42)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
	assert.NotErrorIs(t, err, ErrRecordNotFound)
}

func TestRequestNoDaemon(t *testing.T) {
	client := &RequestClient{SocketPath: "/nonexistent/nslcd/socket"}
	assert.Error(t, client.Ping(context.Background()))
}

func TestWriteNoSignal(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGPIPE)
	defer signal.Stop(sigCh)

	l := newTestListener(t)
	server, client := acceptOne(t, l)
	defer server.Close()

	require.NoError(t, client.Close())

	err := writeNoSignal(server.Conn, []byte("hello"))
	assert.ErrorIs(t, err, unix.EPIPE)

	select {
	case sig := <-sigCh:
		t.Fatalf("received %v", sig)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRequestMsgTypeString(t *testing.T) {
	assert.Equal(t, "ping", RequestMsgPing.String())
	assert.Equal(t, "group-by-id", RequestMsgGroupByID.String())
	assert.Equal(t, "RequestMsgType(42)", RequestMsgType(42).String())
}
