package wal

import (
	"errors"
	"sync"
)

// in-memory SegmentSink used across the package tests

var errInjected = errors.New("injected failure")

type memorySegment struct {
	mu       sync.Mutex
	data     []byte
	syncs    int
	closed   bool
	failSync bool
}

func (s *memorySegment) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, p...)
	return len(p), nil
}

func (s *memorySegment) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSync {
		return errInjected
	}
	s.syncs++
	return nil
}

func (s *memorySegment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySegment) snapshot() (data []byte, syncs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...), s.syncs
}

type memorySink struct {
	mu       sync.Mutex
	segments map[string]*memorySegment
	removed  []string
}

func newMemorySink() *memorySink {
	return &memorySink{segments: map[string]*memorySegment{}}
}

func (s *memorySink) Open(identifier string) (Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	segment, ok := s.segments[identifier]
	if !ok {
		segment = &memorySegment{}
		s.segments[identifier] = segment
	}
	return segment, nil
}

func (s *memorySink) Remove(identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.segments, identifier)
	s.removed = append(s.removed, identifier)
	return nil
}

func (s *memorySink) segment(identifier string) *memorySegment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segments[identifier]
}

// fixedSupplier always returns a fresh ring of two small buffers.
func fixedSupplier() [][]byte {
	return [][]byte{make([]byte, 64), make([]byte, 64)}
}

// emptySupplier models an exhausted pool.
func emptySupplier() [][]byte {
	return nil
}
