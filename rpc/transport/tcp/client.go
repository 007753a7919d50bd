package tcp

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/holtenko/iotdb/lib/consensus"
	"github.com/holtenko/iotdb/rpc/serializer"
	"github.com/holtenko/iotdb/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Client provider
// --------------------------------------------------------------------------

type provider struct {
	serializer serializer.ISerializer
	timeout    time.Duration
	clients    *xsync.MapOf[string, *client]
}

// NewProvider creates a client provider that dials peers lazily and caches
// one connection per endpoint. timeout bounds each in-flight request.
func NewProvider(s serializer.ISerializer, timeout time.Duration) transport.Provider {
	return &provider{
		serializer: s,
		timeout:    timeout,
		clients:    xsync.NewMapOf[string, *client](),
	}
}

func (p *provider) ConnectNode(node *consensus.Node) consensus.Client {
	endpoint := node.Endpoint()
	if c, ok := p.clients.Load(endpoint); ok {
		if !c.broken.Load() {
			return c
		}
		p.clients.Delete(endpoint)
		_ = c.close()
	}

	conn, err := net.DialTimeout("tcp", endpoint, p.timeout)
	if err != nil {
		plog.Debugf("cannot connect %s: %v", endpoint, err)
		return nil
	}
	c := newClient(conn, p.serializer, p.timeout)
	if winner, loaded := p.clients.LoadOrStore(endpoint, c); loaded {
		_ = c.close()
		return winner
	}
	return c
}

func (p *provider) Close() error {
	p.clients.Range(func(endpoint string, c *client) bool {
		_ = c.close()
		p.clients.Delete(endpoint)
		return true
	})
	return nil
}

// --------------------------------------------------------------------------
// Client connection
// --------------------------------------------------------------------------

type pendingResult struct {
	msg *serializer.Message
	err error
}

type client struct {
	conn       net.Conn
	serializer serializer.ISerializer
	timeout    time.Duration

	writeMu sync.Mutex
	nextID  atomic.Uint64
	pending *xsync.MapOf[uint64, chan pendingResult]
	broken  atomic.Bool
}

func newClient(conn net.Conn, s serializer.ISerializer, timeout time.Duration) *client {
	c := &client{
		conn:       conn,
		serializer: s,
		timeout:    timeout,
		pending:    xsync.NewMapOf[uint64, chan pendingResult](),
	}
	go c.readLoop()
	return c
}

// readLoop correlates response frames with pending requests until the
// connection breaks.
func (c *client) readLoop() {
	for {
		id, payload, err := readFrame(c.conn)
		if err != nil {
			c.fail(fmt.Errorf("tcp: connection to %s broke: %w", c.conn.RemoteAddr(), err))
			return
		}
		ch, ok := c.pending.LoadAndDelete(id)
		if !ok {
			// response after its deadline, drop it
			continue
		}
		msg, err := c.serializer.Unmarshal(payload)
		ch <- pendingResult{msg: msg, err: err}
	}
}

// fail marks the connection broken and wakes every waiter.
func (c *client) fail(err error) {
	c.broken.Store(true)
	c.pending.Range(func(id uint64, _ chan pendingResult) bool {
		if ch, ok := c.pending.LoadAndDelete(id); ok {
			ch <- pendingResult{err: err}
		}
		return true
	})
}

func (c *client) close() error {
	c.broken.Store(true)
	return c.conn.Close()
}

// call sends one request frame and waits for the matching response on a
// transport-owned goroutine, then hands the outcome to deliver.
func (c *client) call(msg *serializer.Message, deliver func(*serializer.Message, error)) {
	payload, err := c.serializer.Marshal(msg)
	if err != nil {
		go deliver(nil, err)
		return
	}

	id := c.nextID.Add(1)
	ch := make(chan pendingResult, 1)
	c.pending.Store(id, ch)

	c.writeMu.Lock()
	err = writeFrame(c.conn, id, payload)
	c.writeMu.Unlock()
	if err != nil {
		c.pending.Delete(id)
		c.broken.Store(true)
		go deliver(nil, err)
		return
	}

	go func() {
		select {
		case result := <-ch:
			deliver(result.msg, result.err)
		case <-time.After(c.timeout):
			c.pending.Delete(id)
			deliver(nil, fmt.Errorf("tcp: request %d to %s timed out", id, c.conn.RemoteAddr()))
		}
	}()
}

func (c *client) SendHeartbeat(req *consensus.HeartbeatRequest, handler func(*consensus.HeartbeatResponse, error)) {
	msg := &serializer.Message{Kind: serializer.KindHeartbeatRequest, HeartbeatRequest: req}
	c.call(msg, func(resp *serializer.Message, err error) {
		if err != nil {
			handler(nil, err)
			return
		}
		if resp.Kind != serializer.KindHeartbeatResponse || resp.HeartbeatResponse == nil {
			handler(nil, fmt.Errorf("tcp: unexpected reply kind %s", resp.Kind))
			return
		}
		handler(resp.HeartbeatResponse, nil)
	})
}

func (c *client) StartElection(req *consensus.ElectionRequest, handler func(*consensus.ElectionResponse, error)) {
	msg := &serializer.Message{Kind: serializer.KindElectionRequest, ElectionRequest: req}
	c.call(msg, func(resp *serializer.Message, err error) {
		if err != nil {
			handler(nil, err)
			return
		}
		if resp.Kind != serializer.KindElectionResponse || resp.ElectionResponse == nil {
			handler(nil, fmt.Errorf("tcp: unexpected reply kind %s", resp.Kind))
			return
		}
		handler(resp.ElectionResponse, nil)
	})
}
