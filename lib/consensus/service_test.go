package consensus

import (
	"testing"
	"time"
)

// TestHandleElectionVoteRules covers granting, same-term rejection, the
// one-vote-per-term rule and the log up-to-date check.
func TestHandleElectionVoteRules(t *testing.T) {
	clock := &manualClock{}
	self := testNode(1)
	d := NewDriver(testConfig(clock), self, []*Node{self, testNode(2)}, &staticProvider{}, fixedLog{lastTerm: 2, commit: 10})

	// candidate in a higher term with an up-to-date log gets the vote
	resp := d.HandleElection(&ElectionRequest{Term: 3, LastLogTerm: 2, LastLogIndex: 10})
	if !resp.VoteGranted {
		t.Fatal("up-to-date candidate was rejected")
	}
	if d.Term() != 3 {
		t.Errorf("term after granting = %d, want 3", d.Term())
	}

	// a second request in the same term is rejected (one vote per term)
	resp = d.HandleElection(&ElectionRequest{Term: 3, LastLogTerm: 2, LastLogIndex: 10})
	if resp.VoteGranted {
		t.Error("second vote granted in the same term")
	}

	// a stale-term candidate is rejected with the voter's term
	resp = d.HandleElection(&ElectionRequest{Term: 2, LastLogTerm: 2, LastLogIndex: 10})
	if resp.VoteGranted || resp.Term != 3 {
		t.Errorf("stale candidate got (granted=%t, term=%d), want (false, 3)", resp.VoteGranted, resp.Term)
	}
}

// TestHandleElectionRejectsStaleLog checks a candidate with an older log is
// rejected even in a newer term, while the newer term is still adopted.
func TestHandleElectionRejectsStaleLog(t *testing.T) {
	clock := &manualClock{}
	self := testNode(1)
	d := NewDriver(testConfig(clock), self, []*Node{self, testNode(2)}, &staticProvider{}, fixedLog{lastTerm: 5, commit: 20})

	resp := d.HandleElection(&ElectionRequest{Term: 8, LastLogTerm: 4, LastLogIndex: 30})
	if resp.VoteGranted {
		t.Error("candidate with an older log term got the vote")
	}
	if d.Term() != 8 {
		t.Errorf("term = %d, want 8 adopted despite the rejection", d.Term())
	}

	resp = d.HandleElection(&ElectionRequest{Term: 9, LastLogTerm: 5, LastLogIndex: 19})
	if resp.VoteGranted {
		t.Error("candidate with a shorter log got the vote")
	}
}

// TestHandleHeartbeatMakesFollower checks a valid heartbeat installs the
// leader and refreshes the staleness clock.
func TestHandleHeartbeatMakesFollower(t *testing.T) {
	clock := &manualClock{}
	clock.Advance(time.Minute)
	self := testNode(1)
	leader := testNode(9)
	d := NewDriver(testConfig(clock), self, []*Node{self, leader}, &staticProvider{}, fixedLog{})

	resp := d.HandleHeartbeat(&HeartbeatRequest{Term: 6, Leader: *leader})
	if d.Character() != Follower {
		t.Errorf("character = %s, want FOLLOWER", d.Character())
	}
	if got := d.Leader(); got == nil || got.Endpoint() != leader.Endpoint() {
		t.Errorf("leader = %s, want %s", got, leader)
	}
	if d.Term() != 6 || resp.Term != 6 {
		t.Errorf("terms = (%d, %d), want 6", d.Term(), resp.Term)
	}
	if d.state.LastHeartbeatReceived() != clock.NowMillis() {
		t.Error("heartbeat timestamp not refreshed")
	}
}

// TestHandleHeartbeatStaleLeader checks a lower-term heartbeat is rejected
// without touching local state.
func TestHandleHeartbeatStaleLeader(t *testing.T) {
	clock := &manualClock{}
	self := testNode(1)
	d := NewDriver(testConfig(clock), self, []*Node{self, testNode(2)}, &staticProvider{}, fixedLog{})
	d.HandleHeartbeat(&HeartbeatRequest{Term: 6, Leader: *testNode(2)})

	resp := d.HandleHeartbeat(&HeartbeatRequest{Term: 3, Leader: *testNode(3)})
	if resp.Term != 6 {
		t.Errorf("response term = %d, want 6", resp.Term)
	}
	if got := d.Leader(); got == nil || got.Endpoint() != testNode(2).Endpoint() {
		t.Errorf("stale heartbeat replaced the leader with %s", got)
	}
}

// TestHandleHeartbeatIdentifierAssignment checks RequireIdentifier makes a
// node pick an identifier and RegenerateIdentifier makes it pick a new one.
func TestHandleHeartbeatIdentifierAssignment(t *testing.T) {
	clock := &manualClock{}
	self := testNode(1)
	leader := testNode(9)
	d := NewDriver(testConfig(clock), self, []*Node{self, leader}, &staticProvider{}, fixedLog{})

	resp := d.HandleHeartbeat(&HeartbeatRequest{Term: 1, Leader: *leader, RequireIdentifier: true})
	if !resp.Follower.IdentifierSet {
		t.Fatal("follower did not report an identifier")
	}
	first := resp.Follower.Identifier

	// a repeated RequireIdentifier keeps the identifier stable
	resp = d.HandleHeartbeat(&HeartbeatRequest{Term: 1, Leader: *leader, RequireIdentifier: true})
	if resp.Follower.Identifier != first {
		t.Error("identifier changed without a regenerate request")
	}

	resp = d.HandleHeartbeat(&HeartbeatRequest{Term: 1, Leader: *leader, RegenerateIdentifier: true})
	if !resp.Follower.IdentifierSet {
		t.Fatal("follower lost its identifier on regeneration")
	}
}

// TestHandleHeartbeatMembershipPush checks a blind node asks for the node
// list and stops asking once it arrives.
func TestHandleHeartbeatMembershipPush(t *testing.T) {
	clock := &manualClock{}
	self := testNode(1)
	leader := testNode(9)
	d := NewDriver(testConfig(clock), self, []*Node{self}, &staticProvider{}, fixedLog{})

	resp := d.HandleHeartbeat(&HeartbeatRequest{Term: 1, Leader: *leader})
	if !resp.RequireNodeList {
		t.Fatal("blind node did not request the membership list")
	}

	nodeSet := []Node{*self, *leader, *testNode(3)}
	resp = d.HandleHeartbeat(&HeartbeatRequest{Term: 1, Leader: *leader, NodeSet: nodeSet})
	if resp.RequireNodeList {
		t.Error("node still blind after receiving the membership list")
	}
	if got := len(d.Nodes()); got != 3 {
		t.Errorf("membership size = %d, want 3", got)
	}
}

// TestHeartbeatSweepFlags drives one leader sweep and checks the per-target
// auxiliary flags.
func TestHeartbeatSweepFlags(t *testing.T) {
	clock := &manualClock{}
	self := testNode(1)
	self.Identifier, self.IdentifierSet = 100, true
	peerA, peerB := testNode(2), testNode(3)

	clientA, clientB := &fakeClient{}, &fakeClient{}
	provider := &staticProvider{clients: map[string]Client{
		peerA.Endpoint(): clientA,
		peerB.Endpoint(): clientB,
	}}
	d := NewDriver(testConfig(clock), self, []*Node{self, peerA, peerB}, provider, fixedLog{lastTerm: 4})
	d.state.setCharacter(Leader)
	d.state.setLeader(self)

	d.sendHeartbeats()

	req, ok := clientA.lastHeartbeat()
	if !ok {
		t.Fatal("peer A received no heartbeat")
	}
	if !req.RequireIdentifier {
		t.Error("heartbeat to a node with an unset identifier lacks RequireIdentifier")
	}
	if req.CommitLogIndex != 4 {
		t.Errorf("CommitLogIndex = %d, want the log manager's last log term", req.CommitLogIndex)
	}

	// after the follower reports its identifier, the flag clears
	d.registerIdentifier(d.nodeSnapshot()[1], 200)
	d.sendHeartbeats()
	req, _ = clientA.lastHeartbeat()
	if req.RequireIdentifier {
		t.Error("RequireIdentifier still set after the identifier was recorded")
	}

	// a conflicting identifier asks the holder to regenerate
	d.registerIdentifier(d.nodeSnapshot()[2], 200)
	d.sendHeartbeats()
	req, _ = clientB.lastHeartbeat()
	if !req.RegenerateIdentifier {
		t.Error("conflicting node was not asked to regenerate its identifier")
	}
}

// TestHeartbeatSweepSendsNodeSetToBlind checks the membership push fires only
// once all identifiers are known and clears the blind mark optimistically.
func TestHeartbeatSweepSendsNodeSetToBlind(t *testing.T) {
	clock := &manualClock{}
	self := testNode(1)
	self.Identifier, self.IdentifierSet = 100, true
	peerA := testNode(2)

	clientA := &fakeClient{}
	provider := &staticProvider{clients: map[string]Client{peerA.Endpoint(): clientA}}
	d := NewDriver(testConfig(clock), self, []*Node{self, peerA}, provider, fixedLog{})
	d.state.setCharacter(Leader)
	d.blindNodes.Store(peerA.Endpoint(), struct{}{})

	// peer A's identifier is unknown: no push yet
	d.sendHeartbeats()
	req, _ := clientA.lastHeartbeat()
	if req.NodeSet != nil {
		t.Error("node list pushed before all identifiers were known")
	}

	d.registerIdentifier(d.nodeSnapshot()[1], 200)
	d.sendHeartbeats()
	req, _ = clientA.lastHeartbeat()
	if req.NodeSet == nil {
		t.Fatal("node list not pushed to the blind node")
	}
	if _, stillBlind := d.blindNodes.Load(peerA.Endpoint()); stillBlind {
		t.Error("blind mark not cleared optimistically")
	}
}

// TestHeartbeatSweepAbortsOnRoleChange checks the sweep stops as soon as the
// local role is no longer leader.
func TestHeartbeatSweepAbortsOnRoleChange(t *testing.T) {
	clock := &manualClock{}
	self, peerA := testNode(1), testNode(2)
	clientA := &fakeClient{}
	provider := &staticProvider{clients: map[string]Client{peerA.Endpoint(): clientA}}

	d := NewDriver(testConfig(clock), self, []*Node{self, peerA}, provider, fixedLog{})
	// still an elector: the sweep must send nothing
	d.sendHeartbeatsTo(d.nodeSnapshot(), HeartbeatRequest{Term: 1, Leader: *self})

	if _, ok := clientA.lastHeartbeat(); ok {
		t.Error("non-leader sweep sent a heartbeat")
	}
}
