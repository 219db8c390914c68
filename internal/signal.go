package internal

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	log "github.com/sirupsen/logrus"

	"golang.org/x/sys/unix"
)

// ExitSignals are those signals which make the daemon shut down.
var ExitSignals = []syscall.Signal{
	unix.SIGHUP,
	unix.SIGINT,
	unix.SIGQUIT,
	unix.SIGABRT,
	unix.SIGPIPE,
	unix.SIGTERM,
	unix.SIGUSR1,
	unix.SIGUSR2,
}

// SignalName returns the conventional name, e.g., "SIGTERM", or "UNKNOWN".
func SignalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return "UNKNOWN"
}

// SignalBridge turns received signals into a single exit signal number.
//
// The Go runtime owns the real signal handlers and installs them with
// SA_RESTART. The only thing happening on reception is an atomic store of the
// signal number, followed by the optional wakeup function, which should make
// a blocking accept return.
type SignalBridge struct {
	exitSignal atomic.Int32

	wakeup func()

	sigCh   chan os.Signal
	stopAck chan struct{}
}

// NewSignalBridge creates a SignalBridge. The wakeup function might be nil.
func NewSignalBridge(wakeup func()) *SignalBridge {
	return &SignalBridge{wakeup: wakeup}
}

// Install starts receiving the given signals.
//
// An error is returned if a signal cannot be caught at all, e.g., SIGKILL.
func (b *SignalBridge) Install(sigs ...syscall.Signal) error {
	if b.sigCh != nil {
		return fmt.Errorf("signal handlers are already installed")
	}

	notifySigs := make([]os.Signal, 0, len(sigs))
	for _, sig := range sigs {
		if sig == unix.SIGKILL || sig == unix.SIGSTOP {
			return fmt.Errorf("error installing signal handler for '%s': %w", SignalName(sig), unix.EINVAL)
		}
		notifySigs = append(notifySigs, sig)
	}

	b.sigCh = make(chan os.Signal, len(notifySigs))
	b.stopAck = make(chan struct{})

	signal.Notify(b.sigCh, notifySigs...)
	go b.receive()

	log.WithField("signals", len(notifySigs)).Debug("Installed signal handlers")
	return nil
}

// receive runs in its own goroutine until Stop closes the channel.
func (b *SignalBridge) receive() {
	defer close(b.stopAck)

	for sig := range b.sigCh {
		sysSig, ok := sig.(syscall.Signal)
		if !ok {
			continue
		}

		b.exitSignal.Store(int32(sysSig))
		if b.wakeup != nil {
			b.wakeup()
		}
	}
}

// ExitSignal returns the received signal or zero if none was received yet.
func (b *SignalBridge) ExitSignal() syscall.Signal {
	return syscall.Signal(b.exitSignal.Load())
}

// Stop the signal delivery. The recorded exit signal stays untouched.
func (b *SignalBridge) Stop() {
	if b.sigCh == nil {
		return
	}

	signal.Stop(b.sigCh)
	close(b.sigCh)
	<-b.stopAck

	b.sigCh = nil
}
