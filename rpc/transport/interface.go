package transport

import "github.com/holtenko/iotdb/lib/consensus"

// --------------------------------------------------------------------------
// Interface Definitions
// --------------------------------------------------------------------------

// Service is the inbound side of the consensus RPCs, implemented by
// consensus.Driver.
type Service interface {
	HandleHeartbeat(req *consensus.HeartbeatRequest) *consensus.HeartbeatResponse
	HandleElection(req *consensus.ElectionRequest) *consensus.ElectionResponse
}

// Server accepts consensus RPCs on an endpoint and dispatches them to a
// Service.
type Server interface {
	// Serve starts accepting connections. It returns once the listener is
	// up; dispatching happens on transport-owned goroutines.
	Serve(endpoint string, service Service) error
	// Close stops the listener and all connections.
	Close() error
}

// Provider hands out asynchronous per-peer clients. It implements
// consensus.ClientProvider: ConnectNode returns nil while the peer is
// unreachable, and the driver skips that peer for the current round.
type Provider interface {
	ConnectNode(node *consensus.Node) consensus.Client
	// Close releases all cached client connections.
	Close() error
}
