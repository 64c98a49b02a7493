package spool

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"go.etcd.io/bbolt"
)

var bucketName = []byte("spool")

// BoltStore keeps entries in a single bbolt database file, keyed by the
// 16-byte binary ULID so that bbolt's byte order is creation order.
type BoltStore struct {
	db  *bbolt.DB
	ids *idSource
}

// OpenBolt opens (creating if needed) the database at path.
func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("spool: db dir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("spool: open db: %w", err)
	}
	s := &BoltStore{db: db, ids: newIDSource()}

	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		if k, _ := b.Cursor().Last(); k != nil {
			var last ulid.ULID
			copy(last[:], k)
			s.ids.seed(last)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("spool: init bucket: %w", err)
	}
	return s, nil
}

func (s *BoltStore) Put(payload []byte) (EntryID, error) {
	u, err := s.ids.next()
	if err != nil {
		return "", err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(u[:], payload)
	})
	if err != nil {
		return "", fmt.Errorf("spool: put: %w", err)
	}
	return EntryID(u.String()), nil
}

func (s *BoltStore) List() ([]EntryID, error) {
	var ids []EntryID
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, _ []byte) error {
			var u ulid.ULID
			copy(u[:], k)
			ids = append(ids, EntryID(u.String()))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("spool: list: %w", err)
	}
	return ids, nil
}

func (s *BoltStore) Read(id EntryID) ([]byte, error) {
	key, err := boltKey(id)
	if err != nil {
		return nil, err
	}
	var out []byte
	err = s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get(key)
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		// v is only valid for the life of the transaction.
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (s *BoltStore) Remove(id EntryID) error {
	key, err := boltKey(id)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get(key) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return b.Delete(key)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func boltKey(id EntryID) ([]byte, error) {
	u, err := ulid.ParseStrict(string(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return u[:], nil
}
