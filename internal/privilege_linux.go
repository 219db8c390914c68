//go:build linux

package internal

import (
	"fmt"
	"strings"

	"github.com/syndtr/gocapability/capability"

	log "github.com/sirupsen/logrus"

	"golang.org/x/sys/unix"
)

// systemPrivilegeOps uses setres[ug]id(2) and Linux capabilities.
//
// Both prctl(2) and capset(2) work on the calling thread only. The daemon
// locks its serving goroutine to the OS thread dropping the privileges.
type systemPrivilegeOps struct{}

// parseCapabilities maps names like "net_bind_service" or "CAP_CHOWN".
func parseCapabilities(names []string) ([]capability.Cap, error) {
	known := make(map[string]capability.Cap)
	for _, c := range capability.List() {
		known[c.String()] = c
	}

	caps := make([]capability.Cap, 0, len(names))
	for _, name := range names {
		key := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "cap_")
		c, ok := known[key]
		if !ok {
			return nil, fmt.Errorf("unknown capability %q", name)
		}
		caps = append(caps, c)
	}
	return caps, nil
}

func (systemPrivilegeOps) CapsSupported() bool {
	return true
}

func (systemPrivilegeOps) ValidateCaps(names []string) error {
	_, err := parseCapabilities(names)
	return err
}

func (systemPrivilegeOps) KeepCaps() error {
	if err := unix.Prctl(unix.PR_SET_KEEPCAPS, 1, 0, 0, 0); err != nil {
		return err
	}

	if caps, err := capability.NewPid2(0); err == nil && caps.Load() == nil {
		log.WithField("capabilities", caps.StringCap(capability.PERMITTED)).Debug("Current capabilities")
	}
	return nil
}

func (systemPrivilegeOps) DropGroups() error {
	return unix.Setgroups(nil)
}

func (systemPrivilegeOps) SetGroupID(gid int) error {
	return unix.Setresgid(gid, gid, gid)
}

func (systemPrivilegeOps) SetUserID(uid int) error {
	return unix.Setresuid(uid, uid, uid)
}

func (systemPrivilegeOps) LimitCaps(names []string) error {
	capList, err := parseCapabilities(names)
	if err != nil {
		return err
	}

	caps, err := capability.NewPid2(0)
	if err != nil {
		return err
	}
	if err := caps.Load(); err != nil {
		return err
	}

	caps.Clear(capability.CAPS)
	caps.Set(capability.CAPS, capList...)

	if err := caps.Apply(capability.CAPS); err != nil {
		return err
	}

	log.WithField("capabilities", caps.StringCap(capability.EFFECTIVE)).Debug("Current capabilities")
	return nil
}
