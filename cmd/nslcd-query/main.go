package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/oxzi/gonslcd/internal"
)

var (
	socketPath string
	auditPath  string
	auditUID   uint32
	verbose    bool
)

func init() {
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [--socket PATH] ping|user NAME|uid N|group NAME|gid N\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s --audit PATH [--uid N]\n", os.Args[0])
		pflag.PrintDefaults()
	}

	pflag.StringVar(&socketPath, "socket", internal.DefaultSocket, "Path to nslcd's socket")
	pflag.StringVar(&auditPath, "audit", "", "Query the audit store at this path instead")
	pflag.Uint32Var(&auditUID, "uid", 0, "Only show audit records for this UID")
	pflag.BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
}

func prettyPrintRecord(record internal.AuditRecord) {
	log.Infof("### AuditRecord: %s", record.ID)
	log.Infof(" - Connection: %s", record.Conn)
	log.Infof(" - Peer: pid=%d uid=%d gid=%d", record.PID, record.UID, record.GID)
	log.Infof(" - Outcome: %s", record.Outcome)
	log.Infof(" - Time: %v", record.Time)
	if !record.Expires.IsZero() {
		log.Infof(" - Expires: %v", record.Expires)
	}

	log.Infof("")
}

func auditMain() {
	if _, stat := os.Stat(auditPath); os.IsNotExist(stat) {
		log.WithField("path", auditPath).Fatal("Audit store does not exist")
	}

	store, err := internal.NewAuditStore(auditPath, 0, false)
	if err != nil {
		log.WithError(err).WithField("path", auditPath).Fatal("Failed to open audit store")
	}

	if records, recordsErr := queryAudit(store); recordsErr != nil {
		log.WithError(recordsErr).Warn("Failed to execute query")
	} else {
		for _, record := range records {
			prettyPrintRecord(record)
		}
	}

	if err := store.Close(); err != nil {
		log.WithError(err).Fatal("Closing errored")
	}
}

func main() {
	pflag.Parse()

	if verbose {
		log.SetLevel(log.DebugLevel)
	}

	if auditPath != "" {
		auditMain()
		return
	}

	client := &internal.RequestClient{SocketPath: socketPath}
	if err := queryDaemon(context.Background(), client, pflag.Args()); err != nil {
		log.WithError(err).Fatal("Query failed")
	}
}
