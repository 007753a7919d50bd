package logstore

import (
	"bytes"
	"path/filepath"
	"testing"
)

// TestMemoryStoreCursors checks the (index, term) and commit cursors.
func TestMemoryStoreCursors(t *testing.T) {
	s := NewMemoryStore()
	if s.LastLogIndex() != 0 || s.LastLogTerm() != 0 || s.CommitLogIndex() != 0 {
		t.Fatal("fresh store should report zero cursors")
	}

	if err := s.Append(Entry{Index: 1, Term: 1, Data: []byte("a")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(Entry{Index: 2, Term: 3, Data: []byte("b")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if s.LastLogIndex() != 2 || s.LastLogTerm() != 3 {
		t.Errorf("cursors = (%d, %d), want (2, 3)", s.LastLogIndex(), s.LastLogTerm())
	}

	if err := s.Commit(2); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := s.Commit(1); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if s.CommitLogIndex() != 2 {
		t.Errorf("commit cursor went backwards: %d", s.CommitLogIndex())
	}
}

// TestBoltStorePersistence appends entries, reopens the file and checks the
// cursors and payloads survived.
func TestBoltStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raft.db")

	s, err := OpenBoltStore(path)
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	if err := s.Append(Entry{Index: 1, Term: 2, Data: []byte("payload")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Commit(1); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = OpenBoltStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if s.LastLogIndex() != 1 || s.LastLogTerm() != 2 || s.CommitLogIndex() != 1 {
		t.Errorf("cursors after reopen = (%d, %d, %d), want (1, 2, 1)",
			s.LastLogIndex(), s.LastLogTerm(), s.CommitLogIndex())
	}
	entry, found, err := s.Get(1)
	if err != nil || !found {
		t.Fatalf("Get(1) = %v, found=%t", err, found)
	}
	if !bytes.Equal(entry.Data, []byte("payload")) {
		t.Errorf("entry data = %q, want payload", entry.Data)
	}

	if _, found, _ := s.Get(99); found {
		t.Error("Get(99) found a missing entry")
	}
}
