package service

import (
	"errors"
	"testing"
)

type recordingService struct {
	name    string
	events  *[]string
	failing bool
}

func (s *recordingService) Start() error {
	if s.failing {
		return errors.New("boom")
	}
	*s.events = append(*s.events, "start "+s.name)
	return nil
}

func (s *recordingService) Stop() {
	*s.events = append(*s.events, "stop "+s.name)
}

// TestStartStopOrder checks start order is registration order and stop order
// its reverse.
func TestStartStopOrder(t *testing.T) {
	var events []string
	r := NewRegistry()
	r.Register("wal", &recordingService{name: "wal", events: &events})
	r.Register("consensus", &recordingService{name: "consensus", events: &events})

	if err := r.StartAll(); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	r.StopAll()

	want := []string{"start wal", "start consensus", "stop consensus", "stop wal"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, events[i], want[i])
		}
	}
}

// TestStartFailureRollsBack checks an early failure stops what already ran.
func TestStartFailureRollsBack(t *testing.T) {
	var events []string
	r := NewRegistry()
	r.Register("wal", &recordingService{name: "wal", events: &events})
	r.Register("broken", &recordingService{name: "broken", events: &events, failing: true})

	if err := r.StartAll(); err == nil {
		t.Fatal("StartAll did not fail")
	}
	if len(events) != 2 || events[1] != "stop wal" {
		t.Errorf("events = %v, want the started service stopped again", events)
	}
}
