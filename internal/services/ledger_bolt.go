package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/casevault/reward-service/internal/errs"
	"github.com/casevault/reward-service/internal/models"
)

const (
	BucketOpenings       = "openings"
	BucketOpeningsByTime = "openings:by_time"
)

// BoltLedger is a durable single-node ledger. The time bucket is keyed by
// big-endian createdAt nanoseconds followed by the opening id, so a cursor walks
// it in creation order.
type BoltLedger struct {
	db *bolt.DB
}

func NewBoltLedger(dbPath string) (*BoltLedger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, errs.Wrap(err, "failed to create ledger directory")
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errs.Wrap(err, "failed to open ledger database")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{BucketOpenings, BucketOpeningsByTime} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return errs.Wrapf(err, "failed to create %s bucket", bucket)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errs.Wrap(err, "failed to initialize ledger buckets")
	}

	return &BoltLedger{db: db}, nil
}

func (l *BoltLedger) Record(_ context.Context, entry *models.LedgerEntry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return errs.Wrap(err, "failed to marshal ledger entry")
	}

	return l.db.Update(func(tx *bolt.Tx) error {
		openings := tx.Bucket([]byte(BucketOpenings))
		if openings.Get([]byte(entry.OpeningID)) != nil {
			return ledgerConflict(entry.OpeningID)
		}

		if err := openings.Put([]byte(entry.OpeningID), data); err != nil {
			return errs.Wrap(err, "failed to put ledger entry")
		}

		byTime := tx.Bucket([]byte(BucketOpeningsByTime))
		if err := byTime.Put(timeKey(entry.CreatedAt, entry.OpeningID), []byte(entry.OpeningID)); err != nil {
			return errs.Wrap(err, "failed to index ledger entry")
		}
		return nil
	})
}

func (l *BoltLedger) Lookup(_ context.Context, openingID string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry

	err := l.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(BucketOpenings)).Get([]byte(openingID))
		if data == nil {
			return openingNotFound(openingID)
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

func (l *BoltLedger) Recent(_ context.Context, limit int) ([]*models.LedgerEntry, error) {
	limit = clampLimit(limit)
	var out []*models.LedgerEntry

	err := l.db.View(func(tx *bolt.Tx) error {
		openings := tx.Bucket([]byte(BucketOpenings))
		c := tx.Bucket([]byte(BucketOpeningsByTime)).Cursor()

		for k, id := c.Last(); k != nil && len(out) < limit; k, id = c.Prev() {
			data := openings.Get(id)
			if data == nil {
				continue
			}
			var entry models.LedgerEntry
			if err := json.Unmarshal(data, &entry); err != nil {
				continue
			}
			out = append(out, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(err, "failed to list recent openings")
	}

	return out, nil
}

func (l *BoltLedger) Prune(_ context.Context, olderThan time.Time) (int, error) {
	cutoff := timePrefix(olderThan)
	pruned := 0

	err := l.db.Update(func(tx *bolt.Tx) error {
		openings := tx.Bucket([]byte(BucketOpenings))
		byTime := tx.Bucket([]byte(BucketOpeningsByTime))

		var stale [][]byte
		var ids [][]byte
		c := byTime.Cursor()
		for k, id := c.First(); k != nil && bytes.Compare(k[:8], cutoff) < 0; k, id = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
			ids = append(ids, append([]byte(nil), id...))
		}

		for i := range stale {
			if err := byTime.Delete(stale[i]); err != nil {
				return errs.Wrap(err, "failed to delete time index key")
			}
			if err := openings.Delete(ids[i]); err != nil {
				return errs.Wrap(err, "failed to delete ledger entry")
			}
		}
		pruned = len(stale)
		return nil
	})
	if err != nil {
		return 0, err
	}

	return pruned, nil
}

func (l *BoltLedger) Close() error {
	return l.db.Close()
}

func timePrefix(t time.Time) []byte {
	buf := make([]byte, 8)
	//nolint:gosec // timestamps after 1970 are positive
	binary.BigEndian.PutUint64(buf, uint64(t.UnixNano()))
	return buf
}

func timeKey(t time.Time, openingID string) []byte {
	return append(timePrefix(t), openingID...)
}
