package internal

import (
	"errors"
	"fmt"
	"os/user"
	"strconv"
)

// ErrRecordNotFound is returned for unknown users or groups.
var ErrRecordNotFound = errors.New("no such record")

// UserRecord is the reply for user lookups.
type UserRecord struct {
	Name    string
	UID     uint32
	GID     uint32
	Gecos   string `cbor:",omitempty"`
	HomeDir string `cbor:",omitempty"`
}

// GroupRecord is the reply for group lookups.
type GroupRecord struct {
	Name string
	GID  uint32
}

// parseID parses a decimal user or group ID.
func parseID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("cannot parse ID %q: %w", s, err)
	}
	return uint32(id), nil
}

func userRecord(u *user.User) (UserRecord, error) {
	uid, err := parseID(u.Uid)
	if err != nil {
		return UserRecord{}, err
	}
	gid, err := parseID(u.Gid)
	if err != nil {
		return UserRecord{}, err
	}

	return UserRecord{
		Name:    u.Username,
		UID:     uid,
		GID:     gid,
		Gecos:   u.Name,
		HomeDir: u.HomeDir,
	}, nil
}

func groupRecord(g *user.Group) (GroupRecord, error) {
	gid, err := parseID(g.Gid)
	if err != nil {
		return GroupRecord{}, err
	}

	return GroupRecord{Name: g.Name, GID: gid}, nil
}

// notFound maps the os/user errors for unknown entries to ErrRecordNotFound.
func notFound(err error) error {
	var (
		unknownUser    user.UnknownUserError
		unknownUserID  user.UnknownUserIdError
		unknownGroup   user.UnknownGroupError
		unknownGroupID user.UnknownGroupIdError
	)

	switch {
	case errors.As(err, &unknownUser), errors.As(err, &unknownUserID),
		errors.As(err, &unknownGroup), errors.As(err, &unknownGroupID):
		return fmt.Errorf("%w: %v", ErrRecordNotFound, err)
	default:
		return err
	}
}

// LookupUser by its name.
func LookupUser(name string) (UserRecord, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return UserRecord{}, notFound(err)
	}
	return userRecord(u)
}

// LookupUserID by its numeric ID.
func LookupUserID(uid uint32) (UserRecord, error) {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return UserRecord{}, notFound(err)
	}
	return userRecord(u)
}

// LookupGroup by its name.
func LookupGroup(name string) (GroupRecord, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return GroupRecord{}, notFound(err)
	}
	return groupRecord(g)
}

// LookupGroupID by its numeric ID.
func LookupGroupID(gid uint32) (GroupRecord, error) {
	g, err := user.LookupGroupId(strconv.FormatUint(uint64(gid), 10))
	if err != nil {
		return GroupRecord{}, notFound(err)
	}
	return groupRecord(g)
}
