package consensus

import (
	"sync"
	"sync/atomic"
)

// --------------------------------------------------------------------------
// One election round
// --------------------------------------------------------------------------

// election is the shared state of a single election round. The quorum counter
// starts at N/2; every affirmative vote decrements it and the election is won
// when it reaches zero or below. Termination is cooperative: once terminated
// is set, late votes are discarded.
type election struct {
	term       int64
	quorum     atomic.Int32
	terminated atomic.Bool
	valid      atomic.Bool

	done     chan struct{}
	doneOnce sync.Once
}

func newElection(term int64, quorum int) *election {
	e := &election{
		term: term,
		done: make(chan struct{}),
	}
	e.quorum.Store(int32(quorum))
	if quorum <= 0 {
		// a single-node cluster wins immediately
		e.valid.Store(true)
		e.finish()
	}
	return e
}

// grant records one affirmative vote. The round is won when the counter
// reaches zero.
func (e *election) grant() {
	if e.terminated.Load() {
		return
	}
	if e.quorum.Add(-1) <= 0 {
		e.valid.Store(true)
		e.finish()
	}
}

// abort wakes the coordinator without declaring a win (a higher term was
// observed).
func (e *election) abort() {
	e.finish()
}

func (e *election) finish() {
	e.doneOnce.Do(func() {
		close(e.done)
	})
}
