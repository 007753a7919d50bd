package logstore

import (
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// --------------------------------------------------------------------------
// bbolt-backed store
// --------------------------------------------------------------------------

var (
	bucketLog  = []byte("log")
	bucketMeta = []byte("meta")

	keyLastIndex = []byte("lastLogIndex")
	keyLastTerm  = []byte("lastLogTerm")
	keyCommit    = []byte("commitLogIndex")
)

// BoltStore persists the log and its cursors in a single bbolt file. Entry
// keys are big-endian indexes so bbolt's byte order matches log order.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (or creates) the store at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("logstore: cannot open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketLog); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("logstore: cannot initialize %s: %w", path, err)
	}
	return &BoltStore{db: db}, nil
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func btoi(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (s *BoltStore) meta(key []byte) int64 {
	var v int64
	_ = s.db.View(func(tx *bolt.Tx) error {
		v = btoi(tx.Bucket(bucketMeta).Get(key))
		return nil
	})
	return v
}

func (s *BoltStore) LastLogIndex() int64 {
	return s.meta(keyLastIndex)
}

func (s *BoltStore) LastLogTerm() int64 {
	return s.meta(keyLastTerm)
}

func (s *BoltStore) CommitLogIndex() int64 {
	return s.meta(keyCommit)
}

func (s *BoltStore) Append(entry Entry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		record := make([]byte, 8+len(entry.Data))
		binary.BigEndian.PutUint64(record, uint64(entry.Term))
		copy(record[8:], entry.Data)
		if err := tx.Bucket(bucketLog).Put(itob(entry.Index), record); err != nil {
			return err
		}
		meta := tx.Bucket(bucketMeta)
		if err := meta.Put(keyLastIndex, itob(entry.Index)); err != nil {
			return err
		}
		return meta.Put(keyLastTerm, itob(entry.Term))
	})
}

func (s *BoltStore) Commit(index int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if index <= btoi(meta.Get(keyCommit)) {
			return nil
		}
		return meta.Put(keyCommit, itob(index))
	})
}

// Get reads one entry back. It returns false when the index is absent.
func (s *BoltStore) Get(index int64) (Entry, bool, error) {
	var (
		entry Entry
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		record := tx.Bucket(bucketLog).Get(itob(index))
		if record == nil {
			return nil
		}
		found = true
		entry.Index = index
		entry.Term = int64(binary.BigEndian.Uint64(record[:8]))
		entry.Data = append([]byte(nil), record[8:]...)
		return nil
	})
	return entry, found, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
