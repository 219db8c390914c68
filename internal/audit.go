package internal

import (
	"crypto/rand"
	"errors"
	"os"
	"time"

	"github.com/akamensky/base58"
	"github.com/timshannon/badgerhold/v4"

	log "github.com/sirupsen/logrus"
)

// Outcome of a dispatched connection.
type Outcome string

const (
	OutcomeHandled       Outcome = "handled"
	OutcomeFailed        Outcome = "failed"
	OutcomeNoCredentials Outcome = "no-credentials"
)

// ErrNotFound is returned by AuditStore.Get for unknown IDs.
var ErrNotFound = errors.New("No AuditRecord found for this ID")

// AuditRecord describes one dispatched connection.
type AuditRecord struct {
	ID string `badgerhold:"key"`

	Conn string

	PID int32
	UID uint32 `badgerholdIndex:"UID"`
	GID uint32

	Outcome Outcome

	Time    time.Time
	Expires time.Time
}

// AuditStore keeps AuditRecords for a limited retention time.
type AuditStore struct {
	dir       string
	retention time.Duration

	bh *badgerhold.Store

	cleanup bool
	stopSyn chan struct{}
	stopAck chan struct{}
}

// PrepareAuditDir creates the audit directory, owned by the given identity.
//
// This must happen before dropping privileges, as the directory's parent is
// most likely not writable for the daemon's target user.
func PrepareAuditDir(dir string, identity ProcessIdentity) error {
	_, stat := os.Stat(dir)
	if os.IsNotExist(stat) {
		if err := os.Mkdir(dir, 0700); err != nil {
			return err
		}
	}

	if err := os.Chmod(dir, 0700); err != nil {
		return err
	}

	if identity.UID == NoID && identity.GID == NoID {
		return nil
	}
	return os.Chown(dir, identity.UID, identity.GID)
}

// NewAuditStore opens or initializes an AuditStore in the given directory.
//
// A non-positive retention keeps AuditRecords forever. autoCleanup launches a
// background job deleting expired AuditRecords.
func NewAuditStore(dir string, retention time.Duration, autoCleanup bool) (s *AuditStore, err error) {
	s = &AuditStore{
		dir:       dir,
		retention: retention,
		cleanup:   autoCleanup && retention > 0,
	}

	log.WithFields(log.Fields{
		"directory": dir,
		"retention": PrettyDuration(retention),
	}).Info("Opening AuditStore")

	opts := badgerhold.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = opts.Dir
	opts.Logger = log.StandardLogger()
	opts.Options.BaseLevelSize = 1 << 21    // 2MiB
	opts.Options.ValueLogFileSize = 1 << 24 // 16MiB
	opts.Options.BaseTableSize = 1 << 20    // 1MiB

	s.bh, err = badgerhold.Open(opts)
	if err != nil {
		return nil, err
	}

	if s.cleanup {
		s.stopSyn = make(chan struct{})
		s.stopAck = make(chan struct{})

		go s.cleanupExpired()
	}

	return s, nil
}

// cleanupExpired runs in a background goroutine to delete expired records.
func (s *AuditStore) cleanupExpired() {
	var ticker = time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSyn:
			close(s.stopAck)
			return

		case <-ticker.C:
			if err := s.DeleteExpired(); err != nil {
				log.WithError(err).Error("Deletion of expired AuditRecords failed")
			}
		}
	}
}

// createID creates a random ID for a new AuditRecord.
func (s *AuditStore) createID() (id string, err error) {
	idBuff := make([]byte, 6)

	for i := 0; i < 32; i++ {
		_, err = rand.Read(idBuff)
		if err != nil {
			return
		}

		id = string(base58.Encode(idBuff))

		switch bhErr := s.bh.Get(id, &AuditRecord{}); bhErr {
		case nil:
			continue

		case badgerhold.ErrNotFound:
			return

		default:
			err = bhErr
			return
		}
	}

	err = errors.New("Failed to calculate an ID")
	return
}

// Record a dispatched connection.
func (s *AuditStore) Record(conn *Conn, outcome Outcome) error {
	id, err := s.createID()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	record := AuditRecord{
		ID:      id,
		Conn:    conn.ID,
		PID:     conn.Peer.PID,
		UID:     conn.Peer.UID,
		GID:     conn.Peer.GID,
		Outcome: outcome,
		Time:    now,
	}
	if s.retention > 0 {
		record.Expires = now.Add(s.retention)
	}

	log.WithFields(log.Fields{
		"ID":   record.ID,
		"conn": record.Conn,
	}).Debug("Insert AuditRecord")

	return s.bh.Insert(record.ID, record)
}

// Get an AuditRecord by its ID.
func (s *AuditStore) Get(id string) (r AuditRecord, err error) {
	err = s.bh.Get(id, &r)
	if err == badgerhold.ErrNotFound {
		err = ErrNotFound
	}
	return
}

// FindByUID returns all AuditRecords of connections from this UID.
func (s *AuditStore) FindByUID(uid uint32) (records []AuditRecord, err error) {
	err = s.bh.Find(&records, badgerhold.Where("UID").Eq(uid).Index("UID"))
	return
}

// All AuditRecords.
func (s *AuditStore) All() (records []AuditRecord, err error) {
	err = s.bh.Find(&records, nil)
	return
}

// DeleteExpired removes all AuditRecords beyond their retention time.
func (s *AuditStore) DeleteExpired() error {
	if s.retention <= 0 {
		return nil
	}

	return s.bh.DeleteMatching(AuditRecord{}, badgerhold.Where("Expires").Lt(time.Now().UTC()))
}

// Close the AuditStore and its database.
func (s *AuditStore) Close() error {
	log.Info("Closing AuditStore")

	if s.cleanup {
		close(s.stopSyn)
		<-s.stopAck
	}

	return s.bh.Close()
}
