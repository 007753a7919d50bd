package consensus

import "math/rand"

// --------------------------------------------------------------------------
// Inbound RPC handling (the follower/voter side)
// --------------------------------------------------------------------------

// HandleHeartbeat processes a leader's heartbeat. A valid heartbeat makes
// this node a follower of the sender, refreshes the staleness clock and
// applies the identifier/membership side channel.
func (d *Driver) HandleHeartbeat(req *HeartbeatRequest) *HeartbeatResponse {
	if req.Term < d.Term() {
		// a stale leader, report the newer term
		return &HeartbeatResponse{Term: d.Term()}
	}

	d.state.termLock.Lock()
	d.state.setTermLocked(req.Term)
	leader := req.Leader
	d.state.setCharacter(Follower)
	d.state.setLeader(&leader)
	d.state.termLock.Unlock()
	d.state.setLastHeartbeatReceived(d.clock.NowMillis())

	if req.NodeSet != nil {
		d.adoptNodeSet(req.NodeSet)
	}
	if req.RegenerateIdentifier {
		d.generateIdentifier(true)
	} else if req.RequireIdentifier {
		d.generateIdentifier(false)
	}

	return &HeartbeatResponse{
		Term:            d.Term(),
		Follower:        d.ThisNode(),
		RequireNodeList: d.blind.Load(),
	}
}

// HandleElection processes a candidate's vote request. A vote is granted only
// for a term this node has not voted in yet and only when the candidate's
// (lastLogTerm, lastLogIndex) is at least as up to date as the local log's.
func (d *Driver) HandleElection(req *ElectionRequest) *ElectionResponse {
	d.state.termLock.Lock()
	defer d.state.termLock.Unlock()

	currentTerm := d.state.Term()
	if req.Term <= currentTerm || req.Term <= d.lastVoteTerm {
		return &ElectionResponse{Term: currentTerm, VoteGranted: false}
	}

	localLastLogTerm := d.logMgr.LastLogTerm()
	localLastLogIndex := d.logMgr.CommitLogIndex()
	if req.LastLogTerm < localLastLogTerm ||
		(req.LastLogTerm == localLastLogTerm && req.LastLogIndex < localLastLogIndex) {
		// the candidate's log is behind; still adopt the newer term
		d.state.setTermLocked(req.Term)
		return &ElectionResponse{Term: req.Term, VoteGranted: false}
	}

	d.state.setTermLocked(req.Term)
	d.lastVoteTerm = req.Term
	if d.state.Character() == Leader {
		d.state.setCharacter(Follower)
		d.state.setLeader(nil)
	}
	// granting a vote counts as cluster activity, do not start a rival
	// election right away
	d.state.setLastHeartbeatReceived(d.clock.NowMillis())
	plog.Infof("%s: granted a vote in term %d", d.thisNode, req.Term)
	return &ElectionResponse{Term: req.Term, VoteGranted: true}
}

// --------------------------------------------------------------------------
// Identifier and membership side channel
// --------------------------------------------------------------------------

// adoptNodeSet installs the membership list pushed by the leader. The node is
// no longer blind afterwards.
func (d *Driver) adoptNodeSet(nodeSet []Node) {
	d.nodesMu.Lock()
	defer d.nodesMu.Unlock()

	nodes := make([]*Node, len(nodeSet))
	for i := range nodeSet {
		n := nodeSet[i]
		if n.Endpoint() == d.thisNode.Endpoint() {
			// keep the canonical local instance
			nodes[i] = d.thisNode
			continue
		}
		nodes[i] = &n
		if n.IdentifierSet {
			d.idNodeMap.Store(n.Identifier, nodes[i])
		}
	}
	d.allNodes = nodes
	d.blind.Store(false)
	plog.Infof("%s: received the node list with %d members", d.thisNode, len(nodes))
}

// generateIdentifier picks the local identifier. With regenerate it always
// picks a fresh one (the current identifier conflicts with another member).
func (d *Driver) generateIdentifier(regenerate bool) {
	d.nodesMu.Lock()
	defer d.nodesMu.Unlock()
	if d.thisNode.IdentifierSet && !regenerate {
		return
	}
	d.thisNode.Identifier = rand.Int31()
	d.thisNode.IdentifierSet = true
	plog.Infof("%s: generated identifier %d", d.thisNode, d.thisNode.Identifier)
}
