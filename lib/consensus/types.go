package consensus

import "fmt"

// --------------------------------------------------------------------------
// Node identity and character
// --------------------------------------------------------------------------

// NodeCharacter is the role a node occupies at one instant. A node holds
// exactly one character at a time; the initial character is Elector.
type NodeCharacter int32

const (
	Elector NodeCharacter = iota
	Follower
	Leader
)

func (c NodeCharacter) String() string {
	switch c {
	case Leader:
		return "LEADER"
	case Follower:
		return "FOLLOWER"
	case Elector:
		return "ELECTOR"
	default:
		return "UNKNOWN"
	}
}

// Node identifies one cluster member: a stable address plus an optional
// cluster-assigned integer identifier.
type Node struct {
	Host string
	Port uint16
	// Identifier is only meaningful while IdentifierSet is true.
	Identifier    int32
	IdentifierSet bool
}

// Endpoint returns the host:port address of the node.
func (n *Node) Endpoint() string {
	return fmt.Sprintf("%s:%d", n.Host, n.Port)
}

func (n *Node) String() string {
	if n == nil {
		return "Node{none}"
	}
	if n.IdentifierSet {
		return fmt.Sprintf("Node{%s, id=%d}", n.Endpoint(), n.Identifier)
	}
	return fmt.Sprintf("Node{%s}", n.Endpoint())
}

// --------------------------------------------------------------------------
// Request and response schemas
// --------------------------------------------------------------------------

// HeartbeatRequest is the leader-to-follower liveness message, doubling as
// log-commit advance and as the identifier/membership side channel.
type HeartbeatRequest struct {
	Term           int64
	CommitLogIndex int64
	Leader         Node
	// RequireIdentifier asks the target to report its identifier.
	RequireIdentifier bool
	// RegenerateIdentifier tells the target its identifier collides and must
	// be picked anew.
	RegenerateIdentifier bool
	// NodeSet carries the full membership list to a blind node. nil = absent.
	NodeSet []Node
}

// HeartbeatResponse reports the follower's term and identity back to the
// leader.
type HeartbeatResponse struct {
	Term     int64
	Follower Node
	// RequireNodeList is set while the follower has not yet received the full
	// membership list.
	RequireNodeList bool
}

// ElectionRequest asks a peer for a vote in the given term.
type ElectionRequest struct {
	Term         int64
	LastLogTerm  int64
	LastLogIndex int64
}

// ElectionResponse is a peer's vote. When the vote is not granted, Term
// carries the voter's term so a stale candidate can step down.
type ElectionResponse struct {
	Term        int64
	VoteGranted bool
}

// --------------------------------------------------------------------------
// Collaborator contracts
// --------------------------------------------------------------------------

// Client is the asynchronous RPC client for one peer. Handlers are invoked on
// transport-owned goroutines, never synchronously from the send call.
type Client interface {
	SendHeartbeat(req *HeartbeatRequest, handler func(*HeartbeatResponse, error))
	StartElection(req *ElectionRequest, handler func(*ElectionResponse, error))
}

// ClientProvider connects the driver to its peers. ConnectNode returns nil
// when the peer is unreachable right now; the caller skips it.
type ClientProvider interface {
	ConnectNode(node *Node) Client
}

// LogManager exposes the log coordinates the driver compares. Log contents
// stay opaque to the consensus layer.
type LogManager interface {
	LastLogIndex() int64
	LastLogTerm() int64
	CommitLogIndex() int64
}

// Clock is the millisecond time source for heartbeat staleness tracking.
type Clock interface {
	NowMillis() int64
}
