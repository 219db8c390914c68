//go:build unix && !linux

package internal

import (
	"errors"

	"golang.org/x/sys/unix"
)

// systemPrivilegeOps for Unix platforms without Linux capabilities.
type systemPrivilegeOps struct{}

func (systemPrivilegeOps) CapsSupported() bool {
	return false
}

var errNoCaps = errors.New("capabilities are not supported on this platform")

func (systemPrivilegeOps) ValidateCaps(names []string) error {
	return errNoCaps
}

func (systemPrivilegeOps) KeepCaps() error {
	return errNoCaps
}

func (systemPrivilegeOps) DropGroups() error {
	return unix.Setgroups(nil)
}

func (systemPrivilegeOps) SetGroupID(gid int) error {
	return unix.Setregid(gid, gid)
}

func (systemPrivilegeOps) SetUserID(uid int) error {
	return unix.Setreuid(uid, uid)
}

func (systemPrivilegeOps) LimitCaps(names []string) error {
	return errNoCaps
}
