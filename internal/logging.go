package internal

import (
	"io"
	"log/syslog"
	"os"

	log "github.com/sirupsen/logrus"
	lsyslog "github.com/sirupsen/logrus/hooks/syslog"
)

// SyslogTag identifies the daemon's entries in the system log.
const SyslogTag = "nslcd"

// ConfigureLogger sets up logging to the terminal, at debug level if requested.
func ConfigureLogger(debug bool) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)

	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// StartSyslog sends all further log entries to the system log only.
func StartSyslog() error {
	hook, err := lsyslog.NewSyslogHook("", "", syslog.LOG_INFO|syslog.LOG_DAEMON, SyslogTag)
	if err != nil {
		return err
	}

	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	log.AddHook(hook)
	log.SetOutput(io.Discard)
	return nil
}
