package internal

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	log "github.com/sirupsen/logrus"

	"golang.org/x/sys/unix"
)

// Version of nslcd, might be overwritten by the linker.
var Version = "0.1.0"

// State of the Daemon's lifecycle.
type State int32

const (
	StateStarting State = iota
	StateDaemonized
	StateServing
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateDaemonized:
		return "daemonized"
	case StateServing:
		return "serving"
	case StateShuttingDown:
		return "shutting down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// acceptBackoff is the pause after a non-transient accept error.
const acceptBackoff = 100 * time.Millisecond

// acceptor is the part of the Listener used by the Daemon.
type acceptor interface {
	Accept() (*Conn, error)
	Interrupt()
	Close() error
}

// Options for a Daemon, mostly from the command line.
type Options struct {
	// Debug keeps the Daemon in the foreground, logging to stderr.
	Debug bool

	// DetachStage is set for the background processes started by Detach.
	DetachStage DetachStage

	// Args are passed to the background process.
	Args []string

	Config Config
}

// Daemon controls nslcd's lifecycle, from startup until the shutdown.
type Daemon struct {
	opts    Options
	handler Handler

	state   atomic.Int32
	signals *SignalBridge

	listener acceptor

	detach       func(args []string, stage DetachStage) (int, error)
	openListener func(path string) (acceptor, error)
	privOps      privilegeOps
	backoff      time.Duration
}

// NewDaemon for these Options, passing accepted connections to the Handler.
func NewDaemon(opts Options, handler Handler) *Daemon {
	d := &Daemon{
		opts:    opts,
		handler: handler,

		detach: Detach,
		openListener: func(path string) (acceptor, error) {
			l, err := OpenListener(path)
			if err != nil {
				return nil, err
			}
			return l, nil
		},
		privOps: systemPrivilegeOps{},
		backoff: acceptBackoff,
	}
	d.signals = NewSignalBridge(d.interrupt)
	return d
}

// State of the Daemon, safe to be called concurrently.
func (d *Daemon) State() State {
	return State(d.state.Load())
}

func (d *Daemon) setState(s State) {
	log.WithField("state", s).Debug("Daemon changes state")
	d.state.Store(int32(s))
}

// interrupt a blocking accept, called from the SignalBridge.
func (d *Daemon) interrupt() {
	if d.listener != nil {
		d.listener.Interrupt()
	}
}

// warnIfRunning logs a warning if the PID file names a running process.
func (d *Daemon) warnIfRunning() {
	pid, err := ReadPID(d.opts.Config.PidFile)
	if err != nil {
		if !errors.Is(err, unix.ENOENT) {
			log.WithError(err).Debug("Cannot inspect old pid file")
		}
		return
	}

	if pid != unix.Getpid() && processAlive(pid) {
		log.WithField("pid", pid).Warn("nslcd may already be running")
	}
}

// Run the Daemon until it is stopped by a signal. The result is the process'
// exit status.
//
// Within the background process, Run only returns after receiving a signal or
// a startup failure. When starting a background process, Run returns 0
// directly after the start.
func (d *Daemon) Run() int {
	// Capabilities are per thread.
	runtime.LockOSThread()

	conf := d.opts.Config

	stage := d.opts.DetachStage
	if d.opts.Debug {
		stage = DetachNone
	}

	if stage == DetachNone {
		ConfigureLogger(d.opts.Debug)
		d.warnIfRunning()
	}

	if !d.opts.Debug && stage != DetachDaemon {
		next := DetachSession
		if stage == DetachSession {
			next = DetachDaemon
		}

		pid, err := d.detach(d.opts.Args, next)
		if err != nil {
			log.WithError(err).Error("Cannot detach into the background")
			return 1
		}

		log.WithFields(log.Fields{"pid": pid, "stage": next}).Debug("Started background process")
		return 0
	}
	d.setState(StateDaemonized)

	_ = unix.Umask(0022)

	if stage == DetachDaemon {
		if err := StartSyslog(); err != nil {
			log.WithError(err).Warn("Cannot log to syslog")
		}
	}

	log.Infof("version %s starting", Version)

	var audit *AuditStore
	defer func() {
		d.signals.Stop()

		if d.listener != nil {
			if err := d.listener.Close(); err != nil {
				log.WithError(err).Warn("problem closing server socket (ignored)")
			}
		}

		if audit != nil {
			if err := audit.Close(); err != nil {
				log.WithError(err).Warn("Cannot close AuditStore")
			}
		}

		log.Infof("version %s bailing out", Version)
		d.setState(StateStopped)
	}()

	if err := WritePID(conf.PidFile); err != nil {
		log.WithError(err).Error("Cannot write pid file")
		return 1
	}

	identity, err := conf.Identity()
	if err != nil {
		log.WithError(err).Error("Cannot resolve the target identity")
		return 1
	}

	listener, err := d.openListener(conf.Socket)
	if err != nil {
		log.WithError(err).Error("Cannot open the server socket")
		return 1
	}
	d.listener = listener

	if conf.Audit.Path != "" {
		if err := PrepareAuditDir(conf.Audit.Path, identity); err != nil {
			log.WithError(err).Error("Cannot prepare the audit directory")
			return 1
		}
	}

	privileges := NewPrivilegeManager(identity, conf.Capabilities)
	privileges.ops = d.privOps
	if err := privileges.Drop(); err != nil {
		log.WithError(err).Error("Cannot drop privileges")
		return 1
	}

	if conf.Audit.Path != "" {
		audit, err = NewAuditStore(conf.Audit.Path, time.Duration(conf.Audit.Retention), true)
		if err != nil {
			log.WithError(err).Error("Cannot open AuditStore")
			return 1
		}
	}

	if err := NewHardeningOpts(conf).Apply(); err != nil {
		log.WithError(err).Error("Cannot apply hardening")
		return 1
	}

	if err := d.signals.Install(ExitSignals...); err != nil {
		log.WithError(err).Error("Cannot install signal handlers")
		return 1
	}

	dispatcher := NewDispatcher(d.handler, audit)

	log.Info("accepting connections")
	d.setState(StateServing)
	notifyServiceManager(daemon.SdNotifyReady)

	for d.signals.ExitSignal() == 0 {
		conn, err := d.listener.Accept()
		if errors.Is(err, ErrNoConnection) {
			continue
		} else if err != nil {
			time.Sleep(d.backoff)
			continue
		}

		dispatcher.Dispatch(conn)
	}

	sig := d.signals.ExitSignal()
	d.setState(StateShuttingDown)
	log.Infof("caught signal %s (%d), shutting down", SignalName(sig), int(sig))
	notifyServiceManager(daemon.SdNotifyStopping)

	return 128 + int(sig)
}
