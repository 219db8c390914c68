package internal

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// NoID marks an unset user or group ID within a ProcessIdentity.
const NoID = -1

// ProcessIdentity is the user and group the daemon should switch to.
type ProcessIdentity struct {
	UID int
	GID int
}

// privilegeOps are the system calls used for dropping privileges.
//
// It is an interface to allow tests to record the order of calls.
type privilegeOps interface {
	CapsSupported() bool
	ValidateCaps(names []string) error
	KeepCaps() error
	DropGroups() error
	SetGroupID(gid int) error
	SetUserID(uid int) error
	LimitCaps(names []string) error
}

type privilegeState int

const (
	privFailed privilegeState = iota - 1
	privStart
	privKeepCaps
	privGroupsDropped
	privGroupSet
	privUserSet
	privCapsLimited
)

func (s privilegeState) String() string {
	switch s {
	case privFailed:
		return "failed"
	case privStart:
		return "start"
	case privKeepCaps:
		return "keep-caps"
	case privGroupsDropped:
		return "groups-dropped"
	case privGroupSet:
		return "group-set"
	case privUserSet:
		return "user-set"
	case privCapsLimited:
		return "caps-limited"
	default:
		return fmt.Sprintf("privilegeState(%d)", int(s))
	}
}

// ErrPrivilegesDropped is returned when Drop is called more than once.
var ErrPrivilegesDropped = errors.New("privilege drop was already attempted")

// PrivilegeManager drops the privileges of this process in a fixed order.
//
// Each step must succeed before the next one is attempted. A failure leaves
// the PrivilegeManager in a failed state; the process is expected to exit.
type PrivilegeManager struct {
	identity     ProcessIdentity
	capabilities []string

	ops   privilegeOps
	state privilegeState
}

// NewPrivilegeManager for the target identity. A non-empty list of
// capabilities enables the capability mode, which is only supported on Linux.
func NewPrivilegeManager(identity ProcessIdentity, capabilities []string) *PrivilegeManager {
	return &PrivilegeManager{
		identity:     identity,
		capabilities: capabilities,
		ops:          systemPrivilegeOps{},
		state:        privStart,
	}
}

// step performs fn if next is the direct successor of the current state.
func (m *PrivilegeManager) step(next privilegeState, fn func() error) error {
	if m.state == privFailed || next != m.state+1 {
		return fmt.Errorf("invalid privilege state transition from %v to %v", m.state, next)
	}

	if err := fn(); err != nil {
		m.state = privFailed
		return err
	}

	m.state = next
	return nil
}

// Drop the privileges.
//
//  1. Keep capabilities over the following UID change, if capabilities are used.
//  2. Drop all supplementary groups. A failure is only logged.
//  3. Change the GID, if configured.
//  4. Change the UID, if configured.
//  5. Limit the capabilities to the configured set, if capabilities are used.
func (m *PrivilegeManager) Drop() error {
	if m.state != privStart {
		return ErrPrivilegesDropped
	}

	useCaps := len(m.capabilities) > 0
	if useCaps {
		if !m.ops.CapsSupported() {
			m.state = privFailed
			return errors.New("capabilities are not supported on this platform")
		}
		if err := m.ops.ValidateCaps(m.capabilities); err != nil {
			m.state = privFailed
			return err
		}
	}

	err := m.step(privKeepCaps, func() error {
		if !useCaps {
			return nil
		}
		if err := m.ops.KeepCaps(); err != nil {
			return fmt.Errorf("cannot prctl(PR_SET_KEEPCAPS,1): %w", err)
		}
		log.Debug("prctl(PR_SET_KEEPCAPS,1) done")
		return nil
	})
	if err != nil {
		return err
	}

	err = m.step(privGroupsDropped, func() error {
		if err := m.ops.DropGroups(); err != nil {
			log.WithError(err).Warn("Cannot drop supplementary groups (ignored)")
		} else {
			log.Debug("setgroups(0,NULL) done")
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = m.step(privGroupSet, func() error {
		if m.identity.GID == NoID {
			return nil
		}
		if err := m.ops.SetGroupID(m.identity.GID); err != nil {
			return fmt.Errorf("cannot setgid(%d): %w", m.identity.GID, err)
		}
		log.WithField("gid", m.identity.GID).Debug("Changed GID")
		return nil
	})
	if err != nil {
		return err
	}

	err = m.step(privUserSet, func() error {
		if m.identity.UID == NoID {
			return nil
		}
		if err := m.ops.SetUserID(m.identity.UID); err != nil {
			return fmt.Errorf("cannot setuid(%d): %w", m.identity.UID, err)
		}
		log.WithField("uid", m.identity.UID).Debug("Changed UID")
		return nil
	})
	if err != nil {
		return err
	}

	return m.step(privCapsLimited, func() error {
		if !useCaps {
			return nil
		}
		if err := m.ops.LimitCaps(m.capabilities); err != nil {
			return fmt.Errorf("cannot limit capabilities to %v: %w", m.capabilities, err)
		}
		log.WithField("capabilities", m.capabilities).Debug("Limited capabilities")
		return nil
	})
}
