package logstore

import (
	"sync"

	"github.com/holtenko/iotdb/lib/consensus"
)

// Entry is one opaque log record with its (index, term) coordinates.
type Entry struct {
	Index int64
	Term  int64
	Data  []byte
}

// LogStore extends the read-only LogManager contract with the append side
// used by the replication path.
type LogStore interface {
	consensus.LogManager
	// Append adds one entry. Indexes must be appended in ascending order.
	Append(entry Entry) error
	// Commit advances the commit cursor.
	Commit(index int64) error
	// Close releases the store.
	Close() error
}

// --------------------------------------------------------------------------
// In-memory store
// --------------------------------------------------------------------------

// MemoryStore is a volatile LogStore for tests and single-node setups.
type MemoryStore struct {
	mu       sync.RWMutex
	lastIdx  int64
	lastTerm int64
	commit   int64
	entries  []Entry
}

// NewMemoryStore creates an empty volatile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) LastLogIndex() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastIdx
}

func (s *MemoryStore) LastLogTerm() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTerm
}

func (s *MemoryStore) CommitLogIndex() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commit
}

func (s *MemoryStore) Append(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	s.lastIdx = entry.Index
	s.lastTerm = entry.Term
	return nil
}

func (s *MemoryStore) Commit(index int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index > s.commit {
		s.commit = index
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
