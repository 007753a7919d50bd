package consensus

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var plog = logger.GetLogger("consensus")

var (
	electionsStarted  = metrics.GetOrCreateCounter("consensus_elections_started_total")
	electionsWon      = metrics.GetOrCreateCounter("consensus_elections_won_total")
	heartbeatsSent    = metrics.GetOrCreateCounter("consensus_heartbeats_sent_total")
	heartbeatFailures = metrics.GetOrCreateCounter("consensus_heartbeat_failures_total")
	voteFailures      = metrics.GetOrCreateCounter("consensus_vote_request_failures_total")
	stepDowns         = metrics.GetOrCreateCounter("consensus_step_downs_total")
)

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// Config holds the timing parameters of the driver.
type Config struct {
	// HeartbeatInterval is the leader's broadcast period.
	HeartbeatInterval time.Duration
	// ConnectionTimeout bounds heartbeat staleness, the election wait and the
	// follower sleep.
	ConnectionTimeout time.Duration
	// ElectionLeastTimeout and ElectionRandomTimeout bound the backoff
	// between election rounds: least + random([0, random)).
	ElectionLeastTimeout  time.Duration
	ElectionRandomTimeout time.Duration
	// Clock overrides the time source; nil means the system clock.
	Clock Clock
}

// DefaultConfig returns the production timing parameters: a failed election
// restarts in 5-10 s.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:     1000 * time.Millisecond,
		ConnectionTimeout:     20 * time.Second,
		ElectionLeastTimeout:  5 * time.Second,
		ElectionRandomTimeout: 5 * time.Second,
	}
}

// --------------------------------------------------------------------------
// Driver
// --------------------------------------------------------------------------

// Driver runs the consensus control loop of one node.
//
// Thread-safety: the exported queries and handlers can be called
// concurrently; the loop itself runs on a single goroutine started by Start.
type Driver struct {
	cfg      Config
	state    *raftState
	provider ClientProvider
	logMgr   LogManager
	clock    Clock

	// nodesMu guards thisNode, allNodes and the identifier fields of the
	// *Node instances the driver owns
	nodesMu  sync.RWMutex
	thisNode *Node
	allNodes []*Node

	idNodeMap       *xsync.MapOf[int32, *Node]
	idConflictNodes *xsync.MapOf[string, int32]
	blindNodes      *xsync.MapOf[string, struct{}]

	// blind is true until this node has received the full membership list
	blind atomic.Bool
	// lastVoteTerm is the highest term this node granted a vote in, guarded
	// by the term lock
	lastVoteTerm int64

	running atomic.Bool
	cancel  context.CancelFunc
	ctx     context.Context
	doneCh  chan struct{}
}

// NewDriver creates a driver for thisNode. nodes is the initially known
// membership including thisNode; a node started with only itself in the list
// is blind and will request the membership from the leader.
func NewDriver(cfg Config, thisNode *Node, nodes []*Node, provider ClientProvider, logMgr LogManager) *Driver {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}
	d := &Driver{
		cfg:             cfg,
		state:           newRaftState(),
		provider:        provider,
		logMgr:          logMgr,
		clock:           clock,
		thisNode:        thisNode,
		allNodes:        append([]*Node(nil), nodes...),
		idNodeMap:       xsync.NewMapOf[int32, *Node](),
		idConflictNodes: xsync.NewMapOf[string, int32](),
		blindNodes:      xsync.NewMapOf[string, struct{}](),
	}
	d.blind.Store(len(nodes) <= 1)
	if thisNode.IdentifierSet {
		d.idNodeMap.Store(thisNode.Identifier, thisNode)
	}
	return d
}

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

// Term returns the current term.
func (d *Driver) Term() int64 {
	return d.state.Term()
}

// Character returns the current character.
func (d *Driver) Character() NodeCharacter {
	return d.state.Character()
}

// Leader returns the currently known leader, or nil.
func (d *Driver) Leader() *Node {
	return d.state.Leader()
}

// ThisNode returns a snapshot of the local node's identity.
func (d *Driver) ThisNode() Node {
	d.nodesMu.RLock()
	defer d.nodesMu.RUnlock()
	return *d.thisNode
}

// Nodes returns a snapshot of the known membership.
func (d *Driver) Nodes() []Node {
	d.nodesMu.RLock()
	defer d.nodesMu.RUnlock()
	out := make([]Node, len(d.allNodes))
	for i, n := range d.allNodes {
		out[i] = *n
	}
	return out
}

// --------------------------------------------------------------------------
// Service lifecycle
// --------------------------------------------------------------------------

// Start launches the control loop.
func (d *Driver) Start() error {
	if !d.running.CompareAndSwap(false, true) {
		return nil
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.doneCh = make(chan struct{})
	go d.run()
	return nil
}

// Stop cancels the control loop and waits for it to exit.
func (d *Driver) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	d.cancel()
	<-d.doneCh
}

func (d *Driver) run() {
	plog.Infof("%s: heartbeat thread starts", d.thisNode)
	defer func() {
		plog.Infof("%s: heartbeat thread exits", d.thisNode)
		close(d.doneCh)
	}()

	for d.ctx.Err() == nil {
		switch d.Character() {
		case Leader:
			d.sendHeartbeats()
			d.sleep(d.cfg.HeartbeatInterval)
		case Follower:
			elapsed := d.clock.NowMillis() - d.state.LastHeartbeatReceived()
			if time.Duration(elapsed)*time.Millisecond >= d.cfg.ConnectionTimeout {
				// the leader is considered dead, an election starts next loop
				plog.Debugf("%s: the leader %s timed out", d.thisNode, d.Leader())
				d.state.setCharacter(Elector)
				d.state.setLeader(nil)
			} else {
				d.sleep(d.cfg.ConnectionTimeout)
			}
		default:
			plog.Infof("%s: start elections", d.thisNode)
			d.startElections()
		}
	}
}

// sleep waits for the duration or until the driver is stopped.
func (d *Driver) sleep(duration time.Duration) {
	select {
	case <-time.After(duration):
	case <-d.ctx.Done():
	}
}

// --------------------------------------------------------------------------
// Leader: heartbeat sweep
// --------------------------------------------------------------------------

func (d *Driver) sendHeartbeats() {
	d.state.termLock.Lock()
	defer d.state.termLock.Unlock()

	base := HeartbeatRequest{
		Term:           d.state.Term(),
		CommitLogIndex: d.logMgr.LastLogTerm(),
		Leader:         d.ThisNode(),
	}
	d.sendHeartbeatsTo(d.nodeSnapshot(), base)
}

func (d *Driver) sendHeartbeatsTo(nodes []*Node, base HeartbeatRequest) {
	for _, node := range nodes {
		if d.isSelf(node) {
			continue
		}
		if d.Character() != Leader {
			// the character changed, abort the remaining heartbeats
			return
		}
		client := d.provider.ConnectNode(node)
		if client == nil {
			continue
		}

		req := base
		d.nodesMu.RLock()
		req.RequireIdentifier = !node.IdentifierSet
		d.nodesMu.RUnlock()
		if _, conflict := d.idConflictNodes.Load(node.Endpoint()); conflict {
			req.RegenerateIdentifier = true
		}

		// a blind node gets the membership list once every identifier is
		// known; if the message is lost it will ask again next round
		if _, blind := d.blindNodes.Load(node.Endpoint()); blind && d.allNodesIdKnown() {
			plog.Debugf("%s: send node list to %s", d.thisNode, node)
			req.NodeSet = d.Nodes()
			d.blindNodes.Delete(node.Endpoint())
		}

		heartbeatsSent.Inc()
		client.SendHeartbeat(&req, d.heartbeatHandler(node))
	}
}

// heartbeatHandler processes one follower's reply on a transport-owned
// goroutine.
func (d *Driver) heartbeatHandler(node *Node) func(*HeartbeatResponse, error) {
	return func(resp *HeartbeatResponse, err error) {
		if err != nil {
			heartbeatFailures.Inc()
			plog.Warningf("%s: cannot send heartbeat to %s: %v", d.thisNode, node, err)
			return
		}
		if resp.Term > d.Term() {
			d.stepDown(resp.Term)
			return
		}
		if resp.Follower.IdentifierSet {
			d.registerIdentifier(node, resp.Follower.Identifier)
		}
		if resp.RequireNodeList {
			d.blindNodes.Store(node.Endpoint(), struct{}{})
		}
	}
}

// registerIdentifier records a follower's reported identifier, detecting
// conflicts with other members.
func (d *Driver) registerIdentifier(node *Node, id int32) {
	holder, ok := d.idNodeMap.Load(id)
	if ok && holder.Endpoint() != node.Endpoint() {
		plog.Warningf("%s: identifier %d of %s conflicts with %s", d.thisNode, id, node, holder)
		d.idConflictNodes.Store(node.Endpoint(), id)
		return
	}
	d.nodesMu.Lock()
	node.Identifier = id
	node.IdentifierSet = true
	d.nodesMu.Unlock()
	d.idNodeMap.Store(id, node)
	d.idConflictNodes.Delete(node.Endpoint())
}

// allNodesIdKnown reports whether every member's identifier is known.
func (d *Driver) allNodesIdKnown() bool {
	d.nodesMu.RLock()
	defer d.nodesMu.RUnlock()
	for _, n := range d.allNodes {
		if !n.IdentifierSet {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Elector: election rounds
// --------------------------------------------------------------------------

// startElections runs election rounds until this node becomes a leader or a
// follower. On exit the heartbeat timestamp is reset so a fresh follower does
// not immediately flap back into another election.
func (d *Driver) startElections() {
	for d.Character() == Elector && d.ctx.Err() == nil {
		d.startElection()
		if d.Character() != Elector {
			break
		}
		backoff := d.cfg.ElectionLeastTimeout
		if d.cfg.ElectionRandomTimeout > 0 {
			backoff += time.Duration(rand.Int63n(int64(d.cfg.ElectionRandomTimeout)))
		}
		plog.Infof("%s: sleep %v until next election", d.thisNode, backoff)
		d.sleep(backoff)
	}
	d.state.setLastHeartbeatReceived(d.clock.NowMillis())
}

// startElection runs one round: increment the term, fan vote requests out,
// wait for the outcome and self-declare leadership when the round is won.
func (d *Driver) startElection() {
	d.state.termLock.Lock()
	nextTerm := d.state.incrementTermLocked()
	nodes := d.nodeSnapshot()
	quorum := len(nodes) / 2
	plog.Infof("%s: election %d starts, quorum: %d", d.thisNode, nextTerm, quorum)
	e := newElection(nextTerm, quorum)
	req := &ElectionRequest{
		Term:         nextTerm,
		LastLogTerm:  d.logMgr.LastLogTerm(),
		LastLogIndex: d.logMgr.CommitLogIndex(),
	}
	electionsStarted.Inc()
	d.requestVotes(nodes, req, e)
	d.state.termLock.Unlock()

	select {
	case <-e.done:
	case <-time.After(d.cfg.ConnectionTimeout):
		plog.Infof("%s: election %d times out", d.thisNode, nextTerm)
	case <-d.ctx.Done():
	}
	e.terminated.Store(true)

	if e.valid.Load() {
		d.state.termLock.Lock()
		plog.Infof("%s: election %d accepted", d.thisNode, nextTerm)
		d.state.setCharacter(Leader)
		d.state.setLeader(d.thisNode)
		d.state.termLock.Unlock()
		electionsWon.Inc()
	}
}

func (d *Driver) requestVotes(nodes []*Node, req *ElectionRequest, e *election) {
	for _, node := range nodes {
		if d.isSelf(node) {
			continue
		}
		client := d.provider.ConnectNode(node)
		if client == nil {
			continue
		}
		plog.Infof("%s: requesting a vote from %s", d.thisNode, node)
		client.StartElection(req, d.electionHandler(node, e))
	}
}

// electionHandler processes one peer's vote on a transport-owned goroutine.
// Repeated replies from the same peer count once.
func (d *Driver) electionHandler(node *Node, e *election) func(*ElectionResponse, error) {
	var once sync.Once
	return func(resp *ElectionResponse, err error) {
		if err != nil {
			voteFailures.Inc()
			plog.Errorf("%s: cannot request a vote from %s: %v", d.thisNode, node, err)
			return
		}
		if e.terminated.Load() {
			// a stale reply from a finished election
			return
		}
		switch {
		case resp.VoteGranted:
			plog.Infof("%s: receive an agreement from %s for election %d", d.thisNode, node, e.term)
			once.Do(e.grant)
		case resp.Term > d.Term():
			d.stepDown(resp.Term)
			e.abort()
		default:
			plog.Infof("%s: election %d rejected by %s", d.thisNode, e.term, node)
		}
	}
}

// stepDown forces this node to Follower with a cleared leader after a higher
// term was observed in any reply.
func (d *Driver) stepDown(newTerm int64) {
	d.state.termLock.Lock()
	defer d.state.termLock.Unlock()
	d.state.setTermLocked(newTerm)
	d.state.setCharacter(Follower)
	d.state.setLeader(nil)
	d.state.setLastHeartbeatReceived(d.clock.NowMillis())
	stepDowns.Inc()
	plog.Infof("%s: stepped down in term %d", d.thisNode, newTerm)
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func (d *Driver) nodeSnapshot() []*Node {
	d.nodesMu.RLock()
	defer d.nodesMu.RUnlock()
	return append([]*Node(nil), d.allNodes...)
}

func (d *Driver) isSelf(node *Node) bool {
	d.nodesMu.RLock()
	defer d.nodesMu.RUnlock()
	return node.Endpoint() == d.thisNode.Endpoint()
}
