package wal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	gometrics "github.com/rcrowley/go-metrics"
)

var plog = logger.GetLogger("wal")

// stopGracePeriod bounds how long Stop waits for the force-sync loop to exit.
const stopGracePeriod = 30 * time.Second

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a Manager.
type Options struct {
	// Enable turns the WAL on. When false, Start and Stop are no-ops.
	Enable bool
	// ForceWalPeriod is the interval of the background force-sync task.
	// 0 disables the task.
	ForceWalPeriod time.Duration
	// RegisterBufferSleepInterval is how long a registration waits between
	// buffer admission attempts.
	RegisterBufferSleepInterval time.Duration
	// RegisterBufferRejectThreshold is the cumulative wait after which a
	// registration is rejected with ErrBufferExhausted.
	RegisterBufferRejectThreshold time.Duration
}

// DefaultOptions returns the default Manager options.
func DefaultOptions() Options {
	return Options{
		Enable:                        true,
		ForceWalPeriod:                100 * time.Millisecond,
		RegisterBufferSleepInterval:   200 * time.Millisecond,
		RegisterBufferRejectThreshold: 10 * time.Second,
	}
}

// --------------------------------------------------------------------------
// Manager
// --------------------------------------------------------------------------

// Manager is the process-wide WAL node registry and force-sync service. It
// implements NodeManager plus the Start/Stop service lifecycle.
//
// Thread-safety: all methods can be called concurrently. Registry mutations
// are linearizable (compare-and-set insertion on a lock-free map); the buffer
// admission retry loop holds no registry lock while sleeping.
type Manager struct {
	opts Options
	sink SegmentSink

	nodes *xsync.MapOf[string, *exclusiveLogNode]

	readOnly atomic.Bool
	// firstReadOnly is touched only by the force-sync goroutine
	firstReadOnly bool

	stopCh  chan struct{}
	doneCh  chan struct{}
	started atomic.Bool

	metrics        gometrics.Registry
	forceTimer     gometrics.Timer
	admissionTimer gometrics.Timer
	rejections     gometrics.Counter
}

// NewManager creates a Manager writing segments through sink. A test harness
// may create any number of managers in isolation; Default() returns a lazily
// built process-wide instance with the default options.
func NewManager(opts Options, sink SegmentSink) *Manager {
	registry := gometrics.NewRegistry()
	m := &Manager{
		opts:           opts,
		sink:           sink,
		nodes:          xsync.NewMapOf[string, *exclusiveLogNode](),
		firstReadOnly:  true,
		metrics:        registry,
		forceTimer:     gometrics.NewRegisteredTimer("wal.force_sync", registry),
		admissionTimer: gometrics.NewRegisteredTimer("wal.buffer_admission_wait", registry),
		rejections:     gometrics.NewRegisteredCounter("wal.buffer_admission_rejects", registry),
	}
	return m
}

var (
	defaultManager     *Manager
	defaultManagerOnce sync.Once
)

// Default returns the lazily constructed process-wide Manager.
func Default() *Manager {
	defaultManagerOnce.Do(func() {
		defaultManager = NewManager(DefaultOptions(), NewFileSink("wal"))
	})
	return defaultManager
}

// Metrics returns the manager's metrics registry.
func (m *Manager) Metrics() gometrics.Registry {
	return m.metrics
}

// SetReadOnly switches the system read-only flag consulted by the force-sync
// task.
func (m *Manager) SetReadOnly(readOnly bool) {
	m.readOnly.Store(readOnly)
}

// --------------------------------------------------------------------------
// Registry operations
// --------------------------------------------------------------------------

// GetNode returns the unique LogNode registered for identifier, creating and
// publishing it first if needed. Publication is lose-races safe: when a
// concurrent creator published first, the local creation is discarded and the
// winner returned.
//
// A fresh node obtains its buffers from the supplier. When the supplier
// reports exhaustion, the registration sleeps RegisterBufferSleepInterval and
// retries; the first failure is logged, subsequent retries are silent. When
// the cumulative wait reaches RegisterBufferRejectThreshold the node is
// removed again and ErrBufferExhausted returned. Cancellation through ctx
// also removes the node and propagates.
func (m *Manager) GetNode(ctx context.Context, identifier string, supplier BufferSupplier) (LogNode, error) {
	if node, ok := m.nodes.Load(identifier); ok {
		return node, nil
	}

	node := newLogNode(identifier, m.sink)
	if winner, loaded := m.nodes.LoadOrStore(identifier, node); loaded {
		return winner, nil
	}

	start := time.Now()
	buffers := supplier()
	slept := time.Duration(0)
	for buffers == nil {
		if slept == 0 {
			plog.Errorf("cannot allocate byte buffers for wal node %s, waiting for the pool", identifier)
		}
		select {
		case <-ctx.Done():
			m.nodes.Delete(identifier)
			return nil, ctx.Err()
		case <-time.After(m.opts.RegisterBufferSleepInterval):
			slept += m.opts.RegisterBufferSleepInterval
		}
		if slept >= m.opts.RegisterBufferRejectThreshold {
			m.nodes.Delete(identifier)
			m.rejections.Inc(1)
			return nil, ErrBufferExhausted
		}
		buffers = supplier()
	}
	m.admissionTimer.UpdateSince(start)

	node.initBuffers(buffers)
	return node, nil
}

// DeleteNode removes the node for identifier and hands the buffers it held to
// the sink. Absent identifiers are a no-op.
func (m *Manager) DeleteNode(identifier string, sink BufferSink) error {
	node, ok := m.nodes.LoadAndDelete(identifier)
	if !ok {
		return nil
	}
	buffers, err := node.Delete()
	if buffers != nil {
		sink(buffers)
	}
	return err
}

// Close closes every registered node, releases its buffers and clears the
// registry. Per-node errors are logged, never propagated.
func (m *Manager) Close() {
	plog.Infof("%d wal nodes to be closed", m.nodes.Size())
	m.nodes.Range(func(identifier string, node *exclusiveLogNode) bool {
		if err := node.Close(); err != nil {
			plog.Errorf("failed to close %s: %v", node, err)
		}
		node.release()
		m.nodes.Delete(identifier)
		return true
	})
	plog.Infof("wal node manager closed")
}

// --------------------------------------------------------------------------
// Service lifecycle
// --------------------------------------------------------------------------

// Start schedules the periodic force-sync task. With the WAL disabled it is a
// no-op.
func (m *Manager) Start() error {
	if !m.opts.Enable {
		return nil
	}
	if m.opts.ForceWalPeriod <= 0 || !m.started.CompareAndSwap(false, true) {
		return nil
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.forceLoop()
	return nil
}

// Stop shuts the force-sync task down with a bounded grace period, then
// closes all nodes.
func (m *Manager) Stop() {
	if !m.opts.Enable {
		return
	}
	if m.started.CompareAndSwap(true, false) {
		close(m.stopCh)
		select {
		case <-m.doneCh:
		case <-time.After(stopGracePeriod):
			plog.Warningf("force flush wal task still has not exited after %v", stopGracePeriod)
		}
	}
	m.Close()
}

func (m *Manager) forceLoop() {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.opts.ForceWalPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.forceTask()
		case <-m.stopCh:
			return
		}
	}
}

// forceTask sweeps all nodes and forces their buffered writes to disk. While
// the system is read-only the sweep is skipped; the transition into read-only
// is logged exactly once.
func (m *Manager) forceTask() {
	if m.readOnly.Load() {
		if m.firstReadOnly {
			plog.Warningf("system mode is read-only, the force flush wal task is stopped")
			m.firstReadOnly = false
		}
		return
	}
	m.firstReadOnly = true

	start := time.Now()
	m.nodes.Range(func(_ string, node *exclusiveLogNode) bool {
		if err := node.ForceSync(); err != nil {
			plog.Errorf("cannot force %s: %v", node, err)
		}
		return true
	})
	m.forceTimer.UpdateSince(start)
}
