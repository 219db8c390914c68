package internal

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	log "github.com/sirupsen/logrus"
)

// DetachedFlag is the hidden command line flag of the background processes.
const DetachedFlag = "detached"

// DetachStage identifies the process within the detaching sequence.
type DetachStage int

const (
	// DetachNone is the process started by the user or the init system.
	DetachNone DetachStage = iota
	// DetachSession leads a new session and only starts DetachDaemon.
	DetachSession
	// DetachDaemon is the final background process, not a session leader.
	DetachDaemon
)

func (s DetachStage) String() string {
	switch s {
	case DetachNone:
		return "none"
	case DetachSession:
		return "session"
	case DetachDaemon:
		return "daemon"
	default:
		return fmt.Sprintf("DetachStage(%d)", int(s))
	}
}

// ParseDetachStage from the DetachedFlag's value.
func ParseDetachStage(s string) (DetachStage, error) {
	n, err := strconv.Atoi(s)
	if err != nil || DetachStage(n) != DetachSession && DetachStage(n) != DetachDaemon {
		return DetachNone, fmt.Errorf("invalid detach stage %q", s)
	}
	return DetachStage(n), nil
}

// detachArgs for the next stage, replacing a previous DetachedFlag.
func detachArgs(args []string, stage DetachStage) []string {
	flag := "--" + DetachedFlag
	next := []string{fmt.Sprintf("%s=%d", flag, stage)}

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--":
			return append(next, args[i:]...)
		case strings.HasPrefix(args[i], flag+"="):
			continue
		case args[i] == flag:
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++
			}
			continue
		}
		next = append(next, args[i])
	}
	return next
}

// Detach starts this program again as a background process of the given
// stage.
//
// DetachSession runs in a new session and starts DetachDaemon, which stays in
// this session without leading it. Thus, the daemon cannot acquire a
// controlling terminal. Both have their standard streams connected to the
// null device, the same working directory, and an empty environment. The
// caller is expected to exit.
func Detach(args []string, stage DetachStage) (pid int, err error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("cannot find own executable: %w", err)
	}

	cmd := exec.Command(exe, detachArgs(args, stage)...)

	cmd.Env = []string{}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if stage == DetachSession {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	pid = cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		log.WithError(err).Debug("Cannot release child process")
	}
	return pid, nil
}

// notifyServiceManager reports a state change to systemd, if supervised.
func notifyServiceManager(state string) {
	if ok, err := daemon.SdNotify(false, state); err != nil {
		log.WithError(err).WithField("state", state).Warn("Cannot notify service manager")
	} else if ok {
		log.WithField("state", state).Debug("Notified service manager")
	}
}
