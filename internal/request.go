package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"

	log "github.com/sirupsen/logrus"

	"golang.org/x/sys/unix"
)

// RequestMsgType identifies both requests and their replies.
type RequestMsgType uint

const (
	_ RequestMsgType = iota

	RequestMsgPing

	RequestMsgUserByName
	RequestMsgUserByID
	RequestMsgGroupByName
	RequestMsgGroupByID

	RequestMsgError
)

func (t RequestMsgType) String() string {
	switch t {
	case RequestMsgPing:
		return "ping"
	case RequestMsgUserByName:
		return "user-by-name"
	case RequestMsgUserByID:
		return "user-by-id"
	case RequestMsgGroupByName:
		return "group-by-name"
	case RequestMsgGroupByID:
		return "group-by-id"
	case RequestMsgError:
		return "error"
	default:
		return fmt.Sprintf("RequestMsgType(%d)", uint(t))
	}
}

const (
	requestMaxSize = 4096
	requestTimeout = 3 * time.Second
)

// RequestMsg is sent by a client. Either Name or ID is used, based on Type.
type RequestMsg struct {
	Type RequestMsgType
	Name string `cbor:",omitempty"`
	ID   uint32 `cbor:",omitempty"`
}

// ReplyMsg is the daemon's answer to a RequestMsg.
type ReplyMsg struct {
	Type RequestMsgType

	User  *UserRecord  `cbor:",omitempty"`
	Group *GroupRecord `cbor:",omitempty"`

	Error    string `cbor:",omitempty"`
	NotFound bool   `cbor:",omitempty"`
}

// RequestHandler serves one CBOR encoded RequestMsg per connection.
type RequestHandler struct{}

// HandleRequest reads a single request, replies, and closes the connection.
func (h *RequestHandler) HandleRequest(conn *Conn) error {
	defer func() { _ = conn.Close() }()

	logger := log.WithFields(log.Fields{
		"conn": conn.ID,
		"uid":  conn.Peer.UID,
	})

	var req RequestMsg
	err := cbor.NewDecoder(io.LimitReader(conn, requestMaxSize)).Decode(&req)
	if err != nil {
		return fmt.Errorf("cannot decode request: %w", err)
	}

	logger.WithField("type", req.Type).Debug("Received request")

	reply, reqErr := h.serve(req)
	if reqErr != nil && !errors.Is(reqErr, ErrRecordNotFound) {
		logger.WithError(reqErr).WithField("type", req.Type).Warn("Request failed")
	}

	b, err := cbor.Marshal(reply)
	if err != nil {
		return err
	}
	if err := writeNoSignal(conn.Conn, b); err != nil {
		return fmt.Errorf("cannot write reply: %w", err)
	}

	if reply.Type == RequestMsgError && !reply.NotFound {
		return reqErr
	}
	return nil
}

// serve a RequestMsg. An error is always accompanied by an error reply.
func (h *RequestHandler) serve(req RequestMsg) (reply ReplyMsg, err error) {
	reply.Type = req.Type

	switch req.Type {
	case RequestMsgPing:

	case RequestMsgUserByName, RequestMsgUserByID:
		var u UserRecord
		if req.Type == RequestMsgUserByName {
			u, err = LookupUser(req.Name)
		} else {
			u, err = LookupUserID(req.ID)
		}
		reply.User = &u

	case RequestMsgGroupByName, RequestMsgGroupByID:
		var g GroupRecord
		if req.Type == RequestMsgGroupByName {
			g, err = LookupGroup(req.Name)
		} else {
			g, err = LookupGroupID(req.ID)
		}
		reply.Group = &g

	default:
		err = fmt.Errorf("received request with unsupported type %v", req.Type)
	}

	if err != nil {
		reply = ReplyMsg{
			Type:     RequestMsgError,
			Error:    err.Error(),
			NotFound: errors.Is(err, ErrRecordNotFound),
		}
	}
	return
}

// writeNoSignal writes b without raising SIGPIPE for a vanished peer, which
// would otherwise shut down the daemon.
func writeNoSignal(conn net.Conn, b []byte) error {
	sysConn, ok := conn.(syscall.Conn)
	if !ok {
		_, err := conn.Write(b)
		return err
	}

	rawConn, err := sysConn.SyscallConn()
	if err != nil {
		return err
	}

	var sendErr error
	err = rawConn.Write(func(fd uintptr) bool {
		for len(b) > 0 {
			n, err := unix.SendmsgN(int(fd), b, nil, nil, sendNoSignal)
			switch {
			case err == unix.EINTR:
				continue
			case err == unix.EAGAIN:
				return false
			case err != nil:
				sendErr = err
				return true
			}
			b = b[n:]
		}
		return true
	})
	if err != nil {
		return err
	}
	return sendErr
}

// RequestClient talks to the daemon's Unix domain socket.
type RequestClient struct {
	SocketPath string
}

// call sends a RequestMsg over a new connection and awaits the reply.
func (client *RequestClient) call(ctx context.Context, req RequestMsg) (reply ReplyMsg, err error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", client.SocketPath)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		if err = conn.SetDeadline(deadline); err != nil {
			return
		}
	}

	b, err := cbor.Marshal(req)
	if err != nil {
		return
	}
	if _, err = conn.Write(b); err != nil {
		return
	}

	err = cbor.NewDecoder(io.LimitReader(conn, requestMaxSize)).Decode(&reply)
	if err != nil {
		return
	}

	switch {
	case reply.Type == RequestMsgError && reply.NotFound:
		err = fmt.Errorf("%w: %s", ErrRecordNotFound, reply.Error)
	case reply.Type == RequestMsgError:
		err = errors.New(reply.Error)
	case reply.Type != req.Type:
		err = fmt.Errorf("response has wrong type %v", reply.Type)
	}
	return
}

// Ping the daemon.
func (client *RequestClient) Ping(ctx context.Context) error {
	_, err := client.call(ctx, RequestMsg{Type: RequestMsgPing})
	return err
}

func (client *RequestClient) user(ctx context.Context, req RequestMsg) (UserRecord, error) {
	reply, err := client.call(ctx, req)
	if err != nil {
		return UserRecord{}, err
	}
	if reply.User == nil {
		return UserRecord{}, errors.New("response misses user record")
	}
	return *reply.User, nil
}

func (client *RequestClient) group(ctx context.Context, req RequestMsg) (GroupRecord, error) {
	reply, err := client.call(ctx, req)
	if err != nil {
		return GroupRecord{}, err
	}
	if reply.Group == nil {
		return GroupRecord{}, errors.New("response misses group record")
	}
	return *reply.Group, nil
}

// User looks up a user by its name.
func (client *RequestClient) User(ctx context.Context, name string) (UserRecord, error) {
	return client.user(ctx, RequestMsg{Type: RequestMsgUserByName, Name: name})
}

// UserByID looks up a user by its UID.
func (client *RequestClient) UserByID(ctx context.Context, uid uint32) (UserRecord, error) {
	return client.user(ctx, RequestMsg{Type: RequestMsgUserByID, ID: uid})
}

// Group looks up a group by its name.
func (client *RequestClient) Group(ctx context.Context, name string) (GroupRecord, error) {
	return client.group(ctx, RequestMsg{Type: RequestMsgGroupByName, Name: name})
}

// GroupByID looks up a group by its GID.
func (client *RequestClient) GroupByID(ctx context.Context, gid uint32) (GroupRecord, error) {
	return client.group(ctx, RequestMsg{Type: RequestMsgGroupByID, ID: gid})
}
