package internal

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/landlock-lsm/go-landlock/landlock"
	llsys "github.com/landlock-lsm/go-landlock/landlock/syscall"

	syscallset "github.com/oxzi/syscallset-go"
)

// hardeningLandlock restricts filesystem access with Landlock.
func hardeningLandlock(readOnly, readWrite []string) error {
	_, err := llsys.LandlockGetABIVersion()
	if err != nil {
		log.Warn("Landlock is not supported")
		return nil
	}

	// landlock_add_rule works on an open file descriptor, so the path must exist.
	existing := func(paths []string) (out []string) {
		for _, path := range paths {
			if _, stat := os.Stat(path); stat == nil {
				out = append(out, path)
			} else {
				log.WithField("path", path).Debug("Skipping non-existing path for Landlock")
			}
		}
		return
	}

	readOnly, readWrite = existing(readOnly), existing(readWrite)

	err = landlock.V2.BestEffort().RestrictPaths(
		landlock.RODirs(readOnly...),
		landlock.RWDirs(readWrite...))
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"read-only":  readOnly,
		"read-write": readWrite,
	}).Info("Applied Landlock filter")
	return nil
}

// hardeningSeccompBpf with a seccomp-bpf filter.
func hardeningSeccompBpf() error {
	if !syscallset.IsSupported() {
		log.Warn("No seccomp-bpf support is available")
		return nil
	}

	filter := []string{
		"@system-service",
		"~@chown",
		"~@clock",
		"~@cpu-emulation",
		"~@debug",
		"~@keyring",
		"~@memlock",
		"~@module",
		"~@mount",
		"~@privileged",
		"~@reboot",
		"~@resources",
		"~@setuid",
		"~@swap",
		"~execve ~execveat ~fork",
	}

	if err := syscallset.LimitTo(strings.Join(filter, " ")); err != nil {
		return err
	}

	log.Info("Applied seccomp-bpf filter")
	return nil
}

// Apply Landlock and seccomp-bpf, as configured.
func (opts *HardeningOpts) Apply() error {
	if opts.Landlock {
		if err := hardeningLandlock(opts.ReadOnly, opts.ReadWrite); err != nil {
			return err
		}
	}

	if opts.Seccomp {
		if err := hardeningSeccompBpf(); err != nil {
			return err
		}
	}

	return nil
}
