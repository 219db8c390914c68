//go:build !linux

package internal

import (
	"runtime"

	log "github.com/sirupsen/logrus"
)

// Apply warns that no hardening is available for this platform.
func (opts *HardeningOpts) Apply() error {
	if opts.Enabled() {
		log.Warnf("No hardening available for %s/%s", runtime.GOOS, runtime.GOARCH)
	}
	return nil
}
