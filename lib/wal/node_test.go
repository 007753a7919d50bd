package wal

import (
	"bytes"
	"testing"
)

// TestNodeWriteAndForceSync checks that buffered records reach the segment on
// ForceSync and that ForceSync is idempotent.
func TestNodeWriteAndForceSync(t *testing.T) {
	sink := newMemorySink()
	node := newLogNode("g1-seq", sink)
	node.initBuffers([][]byte{make([]byte, 16), make([]byte, 16)})

	if err := node.Write([]byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := node.ForceSync(); err != nil {
		t.Fatalf("ForceSync: %v", err)
	}
	data, syncs := sink.segment("g1-seq").snapshot()
	if !bytes.Equal(data, []byte("abc")) {
		t.Errorf("segment data = %q, want abc", data)
	}
	if syncs != 1 {
		t.Errorf("syncs = %d, want 1", syncs)
	}

	// second sync without new writes must be harmless
	if err := node.ForceSync(); err != nil {
		t.Fatalf("second ForceSync: %v", err)
	}
	data, _ = sink.segment("g1-seq").snapshot()
	if !bytes.Equal(data, []byte("abc")) {
		t.Errorf("segment data after idempotent sync = %q, want abc", data)
	}
}

// TestNodeBufferSpill fills the active buffer past its capacity and checks
// the overflow is spilled to the segment.
func TestNodeBufferSpill(t *testing.T) {
	sink := newMemorySink()
	node := newLogNode("g1-seq", sink)
	node.initBuffers([][]byte{make([]byte, 4), make([]byte, 4)})

	for _, p := range []string{"aa", "bb", "cc"} {
		if err := node.Write([]byte(p)); err != nil {
			t.Fatalf("Write(%s): %v", p, err)
		}
	}
	if err := node.ForceSync(); err != nil {
		t.Fatalf("ForceSync: %v", err)
	}
	data, _ := sink.segment("g1-seq").snapshot()
	if !bytes.Equal(data, []byte("aabbcc")) {
		t.Errorf("segment data = %q, want aabbcc", data)
	}
}

// TestNodeOversizedRecord writes a record larger than one buffer.
func TestNodeOversizedRecord(t *testing.T) {
	sink := newMemorySink()
	node := newLogNode("g1-seq", sink)
	node.initBuffers([][]byte{make([]byte, 4), make([]byte, 4)})

	if err := node.Write([]byte("0123456789")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, _ := sink.segment("g1-seq").snapshot()
	if !bytes.Equal(data, []byte("0123456789")) {
		t.Errorf("segment data = %q, want the full record", data)
	}
}

// TestNodeCloseIsTerminal checks that writes fail after Close and that
// ForceSync stays a harmless no-op.
func TestNodeCloseIsTerminal(t *testing.T) {
	sink := newMemorySink()
	node := newLogNode("g1-seq", sink)
	node.initBuffers([][]byte{make([]byte, 16)})

	if err := node.Write([]byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := node.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := node.Write([]byte("x")); err != ErrNodeClosed {
		t.Errorf("Write after Close = %v, want ErrNodeClosed", err)
	}
	if err := node.ForceSync(); err != nil {
		t.Errorf("ForceSync after Close = %v, want nil", err)
	}
	if segment := sink.segment("g1-seq"); segment == nil || !segment.closed {
		t.Error("segment was not closed")
	}
}

// TestNodeDeleteReturnsBuffers checks that Delete returns the attached ring
// and removes the segment.
func TestNodeDeleteReturnsBuffers(t *testing.T) {
	sink := newMemorySink()
	node := newLogNode("g1-seq", sink)
	ring := [][]byte{make([]byte, 16), make([]byte, 16)}
	node.initBuffers(ring)

	if err := node.Write([]byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buffers, err := node.Delete()
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(buffers) != 2 {
		t.Fatalf("Delete returned %d buffers, want 2", len(buffers))
	}
	if len(sink.removed) != 1 || sink.removed[0] != "g1-seq" {
		t.Errorf("removed segments = %v, want [g1-seq]", sink.removed)
	}
}

// TestNodeWriteWithoutBuffers checks the registration race window.
func TestNodeWriteWithoutBuffers(t *testing.T) {
	node := newLogNode("g1-seq", newMemorySink())
	if err := node.Write([]byte("x")); err != ErrNoBuffers {
		t.Errorf("Write without buffers = %v, want ErrNoBuffers", err)
	}
}
