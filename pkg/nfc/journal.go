package nfc

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/inlock/fabric/pkg/log"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var scansBucket = []byte("scans")

// ScanRecord is one journaled tag scan.
type ScanRecord struct {
	TagID      string    `json:"tag_id"`
	UserID     string    `json:"user_id"`
	Action     string    `json:"action"`
	EventID    string    `json:"event_id,omitempty"`
	Message    string    `json:"message,omitempty"`
	ScannedAt  float64   `json:"scanned_at,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Journal is an append-only log of processed tag scans, kept separately from
// the ledger so scan telemetry survives even when a scan produces no event.
type Journal struct {
	db     *bolt.DB
	logger zerolog.Logger
}

// OpenJournal opens (or creates) the scan journal at path.
func OpenJournal(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(scansBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db, logger: log.WithComponent("nfc-journal")}, nil
}

// Record appends a scan record under the next sequence number.
func (j *Journal) Record(rec ScanRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(scansBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		val, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(key, val)
	})
}

// TagScans returns every journaled scan of a tag, oldest first.
func (j *Journal) TagScans(tagID string) ([]ScanRecord, error) {
	var out []ScanRecord
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(scansBucket).ForEach(func(_, v []byte) error {
			var rec ScanRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				j.logger.Warn().Err(err).Msg("skipping undecodable scan record")
				return nil
			}
			if rec.TagID == tagID {
				out = append(out, rec)
			}
			return nil
		})
	})
	return out, err
}

// Len returns the number of journaled scans.
func (j *Journal) Len() (int, error) {
	var n int
	err := j.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(scansBucket).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
